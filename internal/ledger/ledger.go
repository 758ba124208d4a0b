// Package ledger records reward grants once per (user, key). A grant
// key names the reward event: the problem id for a curated solve,
// "daily:<id>" for the daily challenge bonus.
package ledger

import (
	"context"
	"errors"
	"fmt"

	"gorm.io/gorm"
)

type Record struct {
	ID        uint   `gorm:"primaryKey"`
	UserID    uint   `gorm:"uniqueIndex:idx_reward_user_key"`
	Key       string `gorm:"uniqueIndex:idx_reward_user_key;size:64"`
	Coins     int
	XP        int
	CreatedAt int64 `gorm:"autoCreateTime"`
}

func (Record) TableName() string { return "reward_records" }

type Ledger struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Ledger, error) {
	if err := db.AutoMigrate(&Record{}); err != nil {
		return nil, fmt.Errorf("ledger: migrate: %w", err)
	}
	return &Ledger{db: db}, nil
}

// DailyKey is the grant key for the daily challenge bonus on the given
// problem.
func DailyKey(problemID string) string {
	return "daily:" + problemID
}

// Grant records the reward if no record with this key exists for the
// user. The bool reports whether the reward was newly granted; a
// duplicate key returns false with no error, so repeat evaluation
// passes are free to call it again.
func (l *Ledger) Grant(ctx context.Context, userID uint, key string, coins, xp int) (bool, error) {
	var existing Record
	err := l.db.WithContext(ctx).
		Where("user_id = ? AND key = ?", userID, key).
		First(&existing).Error
	if err == nil {
		return false, nil
	}
	if !errors.Is(err, gorm.ErrRecordNotFound) {
		return false, fmt.Errorf("ledger: lookup %d/%s: %w", userID, key, err)
	}

	rec := Record{UserID: userID, Key: key, Coins: coins, XP: xp}
	if err := l.db.WithContext(ctx).Create(&rec).Error; err != nil {
		// A concurrent grant can win the race; the unique index makes
		// the insert fail rather than double-pay.
		return false, nil
	}
	return true, nil
}

// Totals sums all granted coins and xp for the user.
func (l *Ledger) Totals(ctx context.Context, userID uint) (coins, xp int, err error) {
	var row struct {
		Coins int
		XP    int
	}
	err = l.db.WithContext(ctx).Model(&Record{}).
		Select("COALESCE(SUM(coins),0) AS coins, COALESCE(SUM(xp),0) AS xp").
		Where("user_id = ?", userID).
		Scan(&row).Error
	if err != nil {
		return 0, 0, fmt.Errorf("ledger: totals for %d: %w", userID, err)
	}
	return row.Coins, row.XP, nil
}
