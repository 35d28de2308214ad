package sqlite

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"github.com/sakif/commit-streak/internal/apperror"
	"github.com/sakif/commit-streak/internal/model"
)

var errNoSealer = errors.New("sqlite: credential storage requires a sealer")

// SaveCredential stores the sealed token for userID, replacing any previous one.
func (db *DB) SaveCredential(ctx context.Context, userID string, cred model.Credential) error {
	if db.sealer == nil {
		return errNoSealer
	}
	if cred.Token == "" {
		return apperror.ValidationFailed("token", "token is required")
	}
	sealed, err := db.sealer.Seal([]byte(cred.Token))
	if err != nil {
		return fmt.Errorf("sqlite: sealing credential for user %s: %w", userID, err)
	}

	_, err = db.conn.ExecContext(ctx,
		`INSERT INTO credentials (user_id, token, identity, updated_at) VALUES (?, ?, ?, ?)
		 ON CONFLICT(user_id) DO UPDATE SET
		   token = excluded.token, identity = excluded.identity, updated_at = excluded.updated_at`,
		userID, sealed, cred.Identity, db.now(),
	)
	if err != nil {
		return fmt.Errorf("sqlite: saving credential for user %s: %w", userID, err)
	}
	return nil
}

// GetCredential returns apperror.ErrCredentialMissing when the user has none.
func (db *DB) GetCredential(ctx context.Context, userID string) (model.Credential, error) {
	if db.sealer == nil {
		return model.Credential{}, errNoSealer
	}

	var (
		sealed []byte
		cred   model.Credential
	)
	err := db.conn.QueryRowContext(ctx,
		`SELECT token, identity, updated_at FROM credentials WHERE user_id = ?`, userID,
	).Scan(&sealed, &cred.Identity, &cred.UpdatedAt)
	if errors.Is(err, sql.ErrNoRows) {
		return model.Credential{}, apperror.CredentialMissing(userID)
	}
	if err != nil {
		return model.Credential{}, fmt.Errorf("sqlite: getting credential for user %s: %w", userID, err)
	}

	token, err := db.sealer.Open(sealed)
	if err != nil {
		// A token sealed under a different key is as good as no token.
		return model.Credential{}, &apperror.AppError{
			Err:     apperror.ErrCredentialMissing,
			Message: fmt.Sprintf("stored credential for user %s cannot be opened", userID),
			Cause:   err,
		}
	}
	cred.Token = string(token)
	return cred, nil
}

func (db *DB) DeleteCredential(ctx context.Context, userID string) error {
	if _, err := db.conn.ExecContext(ctx, `DELETE FROM credentials WHERE user_id = ?`, userID); err != nil {
		return fmt.Errorf("sqlite: deleting credential for user %s: %w", userID, err)
	}
	return nil
}
