package sqlite

import (
	"context"
	"testing"
	"time"

	"github.com/sakif/commit-streak/internal/model"
)

func TestStreak_ZeroWhenMissing(t *testing.T) {
	db := newTestDB(t)

	s, err := db.GetStreak(context.Background(), "nobody")
	if err != nil {
		t.Fatalf("GetStreak() error = %v", err)
	}
	if !s.IsEmpty() {
		t.Errorf("GetStreak() = %+v, want empty", s)
	}
}

func TestStreak_SaveAndOverwrite(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, 1, "octo")
	at := time.Date(2024, 1, 5, 12, 0, 0, 0, time.UTC)

	first := model.StreakState{CurrentStreak: 3, LongestStreak: 3, LastActiveDay: model.NewDay(2024, 1, 3), UpdatedAt: at}
	if err := db.SaveStreak(ctx, user.ID, first); err != nil {
		t.Fatalf("SaveStreak() error = %v", err)
	}

	second := model.StreakState{CurrentStreak: 1, LongestStreak: 3, LastActiveDay: model.NewDay(2024, 1, 5), UpdatedAt: at.Add(time.Hour)}
	if err := db.SaveStreak(ctx, user.ID, second); err != nil {
		t.Fatalf("SaveStreak() overwrite error = %v", err)
	}

	got, err := db.GetStreak(ctx, user.ID)
	if err != nil {
		t.Fatalf("GetStreak() error = %v", err)
	}
	if got.CurrentStreak != 1 || got.LongestStreak != 3 || got.LastActiveDay != model.NewDay(2024, 1, 5) {
		t.Errorf("GetStreak() = %+v", got)
	}
	if !got.UpdatedAt.Equal(second.UpdatedAt) {
		t.Errorf("UpdatedAt = %v, want %v", got.UpdatedAt, second.UpdatedAt)
	}
}
