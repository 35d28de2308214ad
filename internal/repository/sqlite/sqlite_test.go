package sqlite

import (
	"context"
	"testing"

	"github.com/sakif/commit-streak/internal/auth"
	"github.com/sakif/commit-streak/internal/model"
)

// newTestDB returns a fresh in-memory database with a credential sealer.
// t.Cleanup closes it when the test (and its subtests) finish.
func newTestDB(t *testing.T) *DB {
	t.Helper()
	box, err := auth.NewCredentialBox("test-box-secret-16+")
	if err != nil {
		t.Fatalf("NewCredentialBox: %v", err)
	}
	db, err := New(":memory:", WithSealer(box))
	if err != nil {
		t.Fatalf("failed to create test db: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	return db
}

// createTestUser inserts a user and fails the test if it errors.
func createTestUser(t *testing.T, db *DB, githubID int64, login string) *model.User {
	t.Helper()
	user := &model.User{
		GitHubID:  githubID,
		Login:     login,
		Email:     login + "@example.com",
		AvatarURL: "https://avatars.githubusercontent.com/u/123",
	}
	if err := db.Upsert(context.Background(), user); err != nil {
		t.Fatalf("failed to create test user: %v", err)
	}
	return user
}

func TestNew_MigratesAndPings(t *testing.T) {
	db := newTestDB(t)
	if err := db.Ping(context.Background()); err != nil {
		t.Fatalf("Ping() error = %v", err)
	}

	// A second store on a fresh database must migrate cleanly too.
	other, err := New(":memory:")
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	other.Close()
}
