package store

import "time"

// Difficulty modes. The mode decides the life cap and whether a missed
// day is punished at all.
const (
	ModeSandbox  = "sandbox"
	ModeNormal   = "normal"
	ModeHardcore = "hardcore"
	ModeGod      = "god"
)

// Problem-set preference types.
const (
	SetDefault = "default"
	SetTopics  = "topics"
	SetSheet   = "sheet"
)

const ItemStreakFreeze = "streak-freeze"

// LifeCap returns the maximum number of lives a mode allows. Sandbox and
// god carry no buffer at all.
func LifeCap(mode string) int {
	switch mode {
	case ModeNormal:
		return 5
	case ModeHardcore:
		return 1
	default:
		return 0
	}
}

// User holds identity and the external-account credentials the engine
// reads. It is created by the identity layer; the engine never deletes it.
type User struct {
	ID       uint   `gorm:"primarykey"`
	PublicID string `gorm:"type:char(36);uniqueIndex"`
	Email    string `gorm:"size:255;uniqueIndex"`
	Name     string `gorm:"size:100"`

	LeetcodeUsername string `gorm:"size:100"`
	LeetcodeSession  string
	AllowPaid        bool
	// AllowNotifications gates reminder nudges, not penalty notices.
	AllowNotifications bool

	// Kite Connect credentials, stored encrypted by the identity layer.
	// Empty values mean the user never linked a trading account.
	KiteAPIKey      string
	KiteAccessToken string

	CreatedAt time.Time
	UpdatedAt time.Time
}

// Progress is the per-user mutable state the accountability engine
// advances. One row per user.
type Progress struct {
	UserID uint `gorm:"primarykey"`

	CurrentStreak         int
	MaxStreak             int
	ProblemsSolved        int
	ProblemsSinceLastLife int
	Lives                 int
	DifficultyMode        string `gorm:"size:16;default:normal"`

	ProblemSetType   string `gorm:"size:16;default:default"`
	ProblemSetTopics string `gorm:"size:255"`
	ProblemSetSheet  string `gorm:"size:64"`

	PowerupsUsedToday int
	Gamcoins          int
	TotalXP           int

	// LastActivityDate is the ISO calendar date (reference zone) of the
	// last day a solve was recorded; empty until the first solve.
	LastActivityDate string `gorm:"size:10"`

	DailyRiskAmount float64
	RiskLocked      bool

	CreatedAt time.Time
	UpdatedAt time.Time
}

// InventoryItem is a (user, item) quantity row. Quantity never goes
// negative; consumption is a guarded decrement.
type InventoryItem struct {
	ID       uint   `gorm:"primarykey"`
	UserID   uint   `gorm:"uniqueIndex:idx_inventory_user_item"`
	ItemID   string `gorm:"size:64;uniqueIndex:idx_inventory_user_item"`
	Quantity int

	CreatedAt time.Time
	UpdatedAt time.Time
}
