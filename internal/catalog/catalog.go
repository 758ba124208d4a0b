package catalog

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

const (
	DifficultyEasy   = "Easy"
	DifficultyMedium = "Medium"
	DifficultyHard   = "Hard"
)

// Problem is a static reference entity, immutable after ingestion.
type Problem struct {
	ID         int    `gorm:"primarykey"`
	Slug       string `gorm:"size:100;uniqueIndex"`
	Title      string `gorm:"size:100"`
	Difficulty string `gorm:"size:10"`
	// Topics is comma-plus-space separated, as ingested.
	Topics   string `gorm:"size:255"`
	PaidOnly bool
	AccRate  string `gorm:"size:10"`
}

// TopicList splits the stored topic string into its tags.
func (p Problem) TopicList() []string {
	if p.Topics == "" {
		return nil
	}
	parts := strings.Split(p.Topics, ",")
	out := make([]string, 0, len(parts))
	for _, t := range parts {
		if t = strings.TrimSpace(t); t != "" {
			out = append(out, t)
		}
	}
	return out
}

// Filter narrows the eligible pool for curation. Zero value means the
// whole catalog.
type Filter struct {
	AllowPaid bool
	// Topics restricts to problems tagged with at least one of these.
	Topics []string
	// Slugs restricts to an explicit sheet pool.
	Slugs []string
}

// Catalog provides read access to the problem table.
type Catalog struct {
	db *gorm.DB
}

func New(db *gorm.DB) (*Catalog, error) {
	if err := db.AutoMigrate(&Problem{}); err != nil {
		return nil, fmt.Errorf("catalog: migrate: %w", err)
	}
	return &Catalog{db: db}, nil
}

// Eligible returns the problems passing the filter, in stable id order.
// Order matters: the curator's draws consume the pool in document order.
func (c *Catalog) Eligible(ctx context.Context, f Filter) ([]Problem, error) {
	q := c.db.WithContext(ctx).Model(&Problem{})
	if !f.AllowPaid {
		q = q.Where("paid_only = ?", false)
	}
	if len(f.Slugs) > 0 {
		q = q.Where("slug IN ?", f.Slugs)
	}
	if len(f.Topics) > 0 {
		topicQ := c.db.Where("topics LIKE ?", "%"+f.Topics[0]+"%")
		for _, t := range f.Topics[1:] {
			topicQ = topicQ.Or("topics LIKE ?", "%"+t+"%")
		}
		q = q.Where(topicQ)
	}

	var problems []Problem
	if err := q.Order("id").Find(&problems).Error; err != nil {
		return nil, fmt.Errorf("catalog: eligible: %w", err)
	}
	return problems, nil
}

// BySlug looks a problem up by its external key.
func (c *Catalog) BySlug(ctx context.Context, slug string) (*Problem, error) {
	var p Problem
	err := c.db.WithContext(ctx).Where("slug = ?", slug).First(&p).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("catalog: by slug: %w", err)
	}
	return &p, nil
}

// Upsert ingests or refreshes problems, keyed on id.
func (c *Catalog) Upsert(ctx context.Context, problems []Problem) error {
	if len(problems) == 0 {
		return nil
	}
	err := c.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:   []clause.Column{{Name: "id"}},
		UpdateAll: true,
	}).Create(&problems).Error
	if err != nil {
		return fmt.Errorf("catalog: upsert: %w", err)
	}
	return nil
}
