package github

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/sakif/commit-streak/internal/apperror"
)

// User is the authenticated account behind a token.
type User struct {
	ID        int64  `json:"id"`
	Login     string `json:"login"`
	Email     string `json:"email"`
	AvatarURL string `json:"avatar_url"`
}

// AuthenticatedUser resolves the identity of the client's token.
func (c *Client) AuthenticatedUser(ctx context.Context) (*User, error) {
	page, err := c.Get(ctx, "user", nil)
	if err != nil {
		return nil, fmt.Errorf("github: reading authenticated user: %w", err)
	}
	var u User
	if err := json.Unmarshal(page.Body, &u); err != nil {
		return nil, apperror.MalformedResponse("user", err)
	}
	if u.ID == 0 || u.Login == "" {
		return nil, apperror.MalformedResponse("user without id or login", nil)
	}
	return &u, nil
}
