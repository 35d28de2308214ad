package sqlite

import (
	"context"
	"errors"
	"testing"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/model"
)

// =========================================================================
// UPSERT TESTS
// =========================================================================

func TestUpsert_NewUser(t *testing.T) {
	db := newTestDB(t)

	user := createTestUser(t, db, 12345, "testuser")

	if user.ID == "" {
		t.Error("Upsert() did not set user.ID")
	}
	if user.CreatedAt.IsZero() || user.UpdatedAt.IsZero() {
		t.Error("Upsert() did not set timestamps")
	}
}

func TestUpsert_ExistingUserKeepsIDAndOffset(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()

	first := createTestUser(t, db, 777, "oldlogin")
	if err := db.SetUTCOffset(ctx, first.ID, -300); err != nil {
		t.Fatalf("SetUTCOffset() error = %v", err)
	}

	again := &model.User{GitHubID: 777, Login: "newlogin", Email: "new@example.com"}
	if err := db.Upsert(ctx, again); err != nil {
		t.Fatalf("Upsert() error = %v", err)
	}
	if again.ID != first.ID {
		t.Errorf("Upsert() ID = %q, want existing %q", again.ID, first.ID)
	}

	got, err := db.GetUserByID(ctx, first.ID)
	if err != nil {
		t.Fatalf("GetUserByID() error = %v", err)
	}
	if got.Login != "newlogin" || got.Email != "new@example.com" {
		t.Errorf("profile not updated: %+v", got)
	}
	if got.UTCOffsetMinutes != -300 {
		t.Errorf("UTCOffsetMinutes = %d, want -300", got.UTCOffsetMinutes)
	}
}

// =========================================================================
// GET / OFFSET TESTS
// =========================================================================

func TestGetUserByID_NotFound(t *testing.T) {
	db := newTestDB(t)

	_, err := db.GetUserByID(context.Background(), "nope")
	if !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("GetUserByID() error = %v, want ErrNotFound", err)
	}
}

func TestSetUTCOffset(t *testing.T) {
	db := newTestDB(t)
	ctx := context.Background()
	user := createTestUser(t, db, 1, "octo")

	if err := db.SetUTCOffset(ctx, user.ID, 20*60); !errors.Is(err, apperror.ErrValidation) {
		t.Errorf("SetUTCOffset(+20h) error = %v, want ErrValidation", err)
	}
	if err := db.SetUTCOffset(ctx, "missing", 60); !errors.Is(err, apperror.ErrNotFound) {
		t.Errorf("SetUTCOffset(missing) error = %v, want ErrNotFound", err)
	}
	if err := db.SetUTCOffset(ctx, user.ID, 330); err != nil {
		t.Fatalf("SetUTCOffset(+5:30) error = %v", err)
	}

	got, _ := db.GetUserByID(ctx, user.ID)
	if got.UTCOffsetMinutes != 330 {
		t.Errorf("UTCOffsetMinutes = %d, want 330", got.UTCOffsetMinutes)
	}
}
