// internal/app/store/audit/store_test.go
package audit

import (
	"testing"
	"time"

	"github.com/dalemusser/kingsroom/internal/domain/models"
	"github.com/dalemusser/kingsroom/internal/testutil"
)

func TestAppend(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, "")

	ctx, cancel := testutil.TestContext()
	defer cancel()

	t.Run("fills ID and CreatedAt", func(t *testing.T) {
		entry, err := store.Append(ctx, models.AuditEntry{
			UserID: "user-1",
			Action: "match.report",
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if entry.ID.IsZero() {
			t.Error("expected ID to be filled")
		}
		if entry.CreatedAt.IsZero() {
			t.Error("expected CreatedAt to be filled")
		}
	})

	t.Run("preserves explicit CreatedAt", func(t *testing.T) {
		ts := time.Date(2026, 8, 29, 18, 0, 0, 0, time.UTC)
		entry, err := store.Append(ctx, models.AuditEntry{
			UserID:    "user-1",
			Action:    "login",
			CreatedAt: ts,
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
		if !entry.CreatedAt.Equal(ts) {
			t.Errorf("expected CreatedAt %v, got %v", ts, entry.CreatedAt)
		}
	})
}

func TestRecent(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, "")

	ctx, cancel := testutil.TestContext()
	defer cancel()

	base := time.Date(2026, 8, 30, 8, 0, 0, 0, time.UTC)
	for i := 0; i < 5; i++ {
		_, err := store.Append(ctx, models.AuditEntry{
			UserID:    "user-1",
			Action:    "login",
			CreatedAt: base.Add(time.Duration(i) * time.Minute),
		})
		if err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	entries, err := store.Recent(ctx, 3)
	if err != nil {
		t.Fatalf("Recent failed: %v", err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 entries, got %d", len(entries))
	}
	for i := 1; i < len(entries); i++ {
		if entries[i].CreatedAt.After(entries[i-1].CreatedAt) {
			t.Errorf("entries out of order at %d: %v before %v",
				i, entries[i-1].CreatedAt, entries[i].CreatedAt)
		}
	}
	if !entries[0].CreatedAt.Equal(base.Add(4 * time.Minute)) {
		t.Errorf("expected newest entry first, got %v", entries[0].CreatedAt)
	}
}

func TestCountByUser(t *testing.T) {
	db := testutil.SetupTestDB(t)
	store := New(db, "")

	ctx, cancel := testutil.TestContext()
	defer cancel()

	for _, userID := range []string{"user-1", "user-1", "user-2"} {
		if _, err := store.Append(ctx, models.AuditEntry{UserID: userID, Action: "login"}); err != nil {
			t.Fatalf("Append failed: %v", err)
		}
	}

	n, err := store.CountByUser(ctx, "user-1")
	if err != nil {
		t.Fatalf("CountByUser failed: %v", err)
	}
	if n != 2 {
		t.Errorf("expected 2 entries for user-1, got %d", n)
	}

	n, err = store.CountByUser(ctx, "user-3")
	if err != nil {
		t.Fatalf("CountByUser failed: %v", err)
	}
	if n != 0 {
		t.Errorf("expected 0 entries for user-3, got %d", n)
	}
}
