package store

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// Store wraps the sqlite database holding users, progress, and inventory,
// and owns the per-user mutual-exclusion scope required around a full
// evaluation.
type Store struct {
	db *gorm.DB

	mu    sync.Mutex
	locks map[uint]*sync.Mutex
}

// Open opens (creating if needed) the sqlite database at path and runs
// migrations for the store-owned tables.
func Open(path string) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(path), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("store: open %s: %w", path, err)
	}
	if err := db.AutoMigrate(&User{}, &Progress{}, &InventoryItem{}); err != nil {
		return nil, fmt.Errorf("store: migrate: %w", err)
	}
	return &Store{db: db, locks: make(map[uint]*sync.Mutex)}, nil
}

// DB exposes the underlying handle for collaborating packages (catalog,
// ledger) that keep their own tables in the same database.
func (s *Store) DB() *gorm.DB { return s.db }

// Lock acquires the per-user mutex and returns its release func. All
// streak/life/ledger mutations for one user must happen under it.
func (s *Store) Lock(userID uint) func() {
	s.mu.Lock()
	m, ok := s.locks[userID]
	if !ok {
		m = &sync.Mutex{}
		s.locks[userID] = m
	}
	s.mu.Unlock()

	m.Lock()
	return m.Unlock
}

// Users returns all registered users.
func (s *Store) Users(ctx context.Context) ([]User, error) {
	var users []User
	if err := s.db.WithContext(ctx).Find(&users).Error; err != nil {
		return nil, fmt.Errorf("store: list users: %w", err)
	}
	return users, nil
}

// UserCount reports the number of registered users.
func (s *Store) UserCount(ctx context.Context) (int, error) {
	var n int64
	if err := s.db.WithContext(ctx).Model(&User{}).Count(&n).Error; err != nil {
		return 0, fmt.Errorf("store: count users: %w", err)
	}
	return int(n), nil
}

// RegisterUser creates a user with default progress and the starter
// inventory (one streak-freeze). Idempotent on email.
func (s *Store) RegisterUser(ctx context.Context, email, name string) (*User, error) {
	var existing User
	err := s.db.WithContext(ctx).Where("email = ?", email).First(&existing).Error
	if err == nil {
		return &existing, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, fmt.Errorf("store: lookup user: %w", err)
	}

	user := User{
		PublicID:           uuid.NewString(),
		Email:              email,
		Name:               name,
		AllowNotifications: true,
	}
	err = s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&user).Error; err != nil {
			return err
		}
		if err := tx.Create(&Progress{UserID: user.ID, DifficultyMode: ModeNormal, ProblemSetType: SetDefault}).Error; err != nil {
			return err
		}
		return tx.Create(&InventoryItem{UserID: user.ID, ItemID: ItemStreakFreeze, Quantity: 1}).Error
	})
	if err != nil {
		return nil, fmt.Errorf("store: register user: %w", err)
	}
	return &user, nil
}

// ProgressFor returns the user's progress row, or nil when none exists.
func (s *Store) ProgressFor(ctx context.Context, userID uint) (*Progress, error) {
	var p Progress
	err := s.db.WithContext(ctx).Where("user_id = ?", userID).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("store: progress for %d: %w", userID, err)
	}
	return &p, nil
}

// SaveProgress persists the full progress row, clamping lives into the
// mode's valid range first.
func (s *Store) SaveProgress(ctx context.Context, p *Progress) error {
	if p.Lives < 0 {
		p.Lives = 0
	}
	if cap := LifeCap(p.DifficultyMode); p.Lives > cap {
		p.Lives = cap
	}
	if err := s.db.WithContext(ctx).Save(p).Error; err != nil {
		return fmt.Errorf("store: save progress for %d: %w", p.UserID, err)
	}
	return nil
}

// AddItem grants n units of an inventory item.
func (s *Store) AddItem(ctx context.Context, userID uint, itemID string, n int) error {
	res := s.db.WithContext(ctx).Model(&InventoryItem{}).
		Where("user_id = ? AND item_id = ?", userID, itemID).
		UpdateColumn("quantity", gorm.Expr("quantity + ?", n))
	if res.Error != nil {
		return fmt.Errorf("store: add item: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		if err := s.db.WithContext(ctx).Create(&InventoryItem{UserID: userID, ItemID: itemID, Quantity: n}).Error; err != nil {
			return fmt.Errorf("store: add item: %w", err)
		}
	}
	return nil
}

// ConsumeItem decrements one unit of an inventory item. The guarded
// update makes check-and-decrement a single statement, so a unit that
// exists once is consumed at most once.
func (s *Store) ConsumeItem(ctx context.Context, userID uint, itemID string) (bool, error) {
	res := s.db.WithContext(ctx).Model(&InventoryItem{}).
		Where("user_id = ? AND item_id = ? AND quantity > 0", userID, itemID).
		UpdateColumn("quantity", gorm.Expr("quantity - 1"))
	if res.Error != nil {
		return false, fmt.Errorf("store: consume item: %w", res.Error)
	}
	return res.RowsAffected > 0, nil
}

// ItemQuantity reports the current quantity of an item, zero when the
// row is absent.
func (s *Store) ItemQuantity(ctx context.Context, userID uint, itemID string) (int, error) {
	var item InventoryItem
	err := s.db.WithContext(ctx).Where("user_id = ? AND item_id = ?", userID, itemID).First(&item).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("store: item quantity: %w", err)
	}
	return item.Quantity, nil
}

// ResetDailyCounters zeroes powerups_used_today for every user. Safe to
// run more than once per day.
func (s *Store) ResetDailyCounters(ctx context.Context) error {
	err := s.db.WithContext(ctx).Model(&Progress{}).
		Where("powerups_used_today <> 0").
		UpdateColumn("powerups_used_today", 0).Error
	if err != nil {
		return fmt.Errorf("store: daily reset: %w", err)
	}
	return nil
}
