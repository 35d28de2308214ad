// Package service holds the business logic between the HTTP handlers and
// storage:
//
//	Handler (HTTP layer)     → parses requests, writes responses
//	Service (business layer) → validates, enforces rules, orchestrates
//	Repository (data layer)  → reads/writes the database
//
// Services depend on repository interfaces, never on *sqlite.DB, so tests
// run against in-memory fakes and the CLI reuses the same logic as the
// server.
package service

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/sakif/commit-streak/internal/auth"
	"github.com/sakif/commit-streak/internal/model"
	"github.com/sakif/commit-streak/internal/repository"
)

// AuthService handles sign-in through GitHub. tokens may be nil for callers
// that never issue sessions (the CLI).
//
//	AuthHandler (HTTP) → AuthService → UserRepository / CredentialRepository
//	                                 ↘ TokenService (JWT)
type AuthService struct {
	users  repository.UserRepository
	creds  repository.CredentialRepository
	tokens *auth.TokenService
	logger *slog.Logger
}

func NewAuthService(
	users repository.UserRepository,
	creds repository.CredentialRepository,
	tokens *auth.TokenService,
	logger *slog.Logger,
) *AuthService {
	return &AuthService{users: users, creds: creds, tokens: tokens, logger: logger}
}

// AuthResult bundles the user and the issued session JWT so the handler can
// set the cookie and respond in one step.
type AuthResult struct {
	User  *model.User
	Token string
}

// LoginOrRegisterGitHub handles the end of the OAuth flow: it connects the
// account (see Connect) and issues a session JWT.
//
// It sets no cookies and reads no requests: that is the handler's job.
func (s *AuthService) LoginOrRegisterGitHub(ctx context.Context, ghUser *auth.GitHubUser, accessToken string) (*AuthResult, error) {
	user, err := s.Connect(ctx, ghUser, accessToken)
	if err != nil {
		return nil, err
	}
	if s.tokens == nil {
		return nil, fmt.Errorf("service/auth: no token service configured")
	}

	token, err := s.tokens.Generate(user.ID)
	if err != nil {
		return nil, fmt.Errorf("service/auth: generating token for user %s: %w", user.ID, err)
	}
	return &AuthResult{User: user, Token: token}, nil
}

// Connect links a GitHub account:
//
//  1. Upsert the user on GitHub ID (first login inserts, later ones refresh
//     the profile)
//  2. Store the GitHub access token as the user's credential; every commit
//     fetch for this user runs with it
//
// The CLI calls it directly with a personal access token; no session is
// issued.
func (s *AuthService) Connect(ctx context.Context, ghUser *auth.GitHubUser, accessToken string) (*model.User, error) {
	if ghUser == nil {
		return nil, fmt.Errorf("service/auth: GitHub user must not be nil")
	}

	user := &model.User{
		GitHubID:  ghUser.ID,
		Login:     ghUser.Login,
		Email:     ghUser.Email,
		AvatarURL: ghUser.AvatarURL,
	}
	if err := s.users.Upsert(ctx, user); err != nil {
		return nil, fmt.Errorf("service/auth: upserting user (githubID=%d): %w", ghUser.ID, err)
	}

	if accessToken != "" {
		cred := model.Credential{Token: accessToken, Identity: ghUser.Login}
		if err := s.creds.SaveCredential(ctx, user.ID, cred); err != nil {
			return nil, fmt.Errorf("service/auth: storing credential for user %s: %w", user.ID, err)
		}
	}

	s.logger.Info("GitHub account connected",
		slog.String("userID", user.ID),
		slog.String("login", user.Login),
		slog.Bool("credentialStored", accessToken != ""),
	)
	return user, nil
}

// GetUserByID is used by /api/me after the middleware has validated the JWT.
func (s *AuthService) GetUserByID(ctx context.Context, id string) (*model.User, error) {
	if id == "" {
		return nil, fmt.Errorf("service/auth: user ID must not be empty")
	}
	user, err := s.users.GetUserByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("service/auth: fetching user %s: %w", id, err)
	}
	return user, nil
}

// Disconnect forgets the stored GitHub credential. The account and its
// history stay; the next refresh fails with CredentialMissing until the
// user signs in again.
func (s *AuthService) Disconnect(ctx context.Context, userID string) error {
	if err := s.creds.DeleteCredential(ctx, userID); err != nil {
		return fmt.Errorf("service/auth: disconnecting user %s: %w", userID, err)
	}
	s.logger.Info("GitHub credential removed", slog.String("userID", userID))
	return nil
}

// ValidateToken returns the userID a session JWT was issued for.
func (s *AuthService) ValidateToken(tokenStr string) (string, error) {
	if s.tokens == nil {
		return "", fmt.Errorf("service/auth: no token service configured")
	}
	userID, err := s.tokens.Validate(tokenStr)
	if err != nil {
		return "", fmt.Errorf("service/auth: %w", err)
	}
	return userID, nil
}
