package ledger

import (
	"context"
	"path/filepath"
	"testing"

	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

func newTestLedger(t *testing.T) *Ledger {
	t.Helper()
	db, err := gorm.Open(sqlite.Open(filepath.Join(t.TempDir(), "ledger.db")), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	l, err := New(db)
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	return l
}

func TestGrantIdempotent(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	granted, err := l.Grant(ctx, 1, "p-100", 25, 100)
	if err != nil {
		t.Fatalf("Grant: %v", err)
	}
	if !granted {
		t.Fatal("first grant should succeed")
	}

	granted, err = l.Grant(ctx, 1, "p-100", 25, 100)
	if err != nil {
		t.Fatalf("repeat Grant: %v", err)
	}
	if granted {
		t.Fatal("repeat grant with same key must be a no-op")
	}

	coins, xp, err := l.Totals(ctx, 1)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if coins != 25 || xp != 100 {
		t.Errorf("totals = %d coins %d xp, want 25/100", coins, xp)
	}
}

func TestGrantScopedPerUser(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if granted, _ := l.Grant(ctx, 1, "p-100", 10, 50); !granted {
		t.Fatal("user 1 grant should succeed")
	}
	if granted, _ := l.Grant(ctx, 2, "p-100", 10, 50); !granted {
		t.Fatal("same key for a different user should succeed")
	}
}

func TestDailyKeyDistinctFromCurated(t *testing.T) {
	l := newTestLedger(t)
	ctx := context.Background()

	if granted, _ := l.Grant(ctx, 1, "p-100", 50, 200); !granted {
		t.Fatal("curated grant should succeed")
	}
	if granted, _ := l.Grant(ctx, 1, DailyKey("p-100"), 30, 150); !granted {
		t.Fatal("daily bonus must stack on top of the curated grant")
	}

	coins, xp, err := l.Totals(ctx, 1)
	if err != nil {
		t.Fatalf("Totals: %v", err)
	}
	if coins != 80 || xp != 350 {
		t.Errorf("totals = %d coins %d xp, want 80/350", coins, xp)
	}
}
