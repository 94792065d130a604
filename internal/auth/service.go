package auth

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/vovakirdan/wirechat-relay/internal/store"
)

var (
	// ErrInvalidCredentials is returned when username/password don't match.
	ErrInvalidCredentials = errors.New("invalid credentials")
	// ErrUserExists is returned when trying to create an existing username.
	ErrUserExists = errors.New("user already exists")
	// ErrInvalidUsername is returned when username doesn't meet constraints.
	ErrInvalidUsername = errors.New("invalid username")
	// ErrInvalidPassword is returned when password doesn't meet constraints.
	ErrInvalidPassword = errors.New("invalid password")
)

// Sessions issues and resolves opaque session tokens.
type Sessions interface {
	CreateSession(username string) string
	SessionUser(token string) (string, bool)
	EndSession(token string)
}

// Service provides authentication operations.
type Service struct {
	store    store.UserStore
	sessions Sessions
}

// NewService creates a new authentication service.
func NewService(userStore store.UserStore, sessions Sessions) *Service {
	return &Service{
		store:    userStore,
		sessions: sessions,
	}
}

// CreateUser stores a new user with a hashed password.
func (s *Service) CreateUser(ctx context.Context, username, password string) (*store.User, error) {
	username = strings.TrimSpace(username)
	if len(username) < 3 || len(username) > 32 {
		return nil, ErrInvalidUsername
	}
	if len(password) < 6 {
		return nil, ErrInvalidPassword
	}

	if existing, err := s.store.GetUserByUsername(ctx, username); err == nil && existing != nil {
		return nil, ErrUserExists
	}

	hashedPassword, err := HashPassword(password)
	if err != nil {
		return nil, err
	}

	user, err := s.store.CreateUser(ctx, username, hashedPassword)
	if err != nil {
		if errors.Is(err, store.ErrExists) {
			return nil, ErrUserExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	return user, nil
}

// Seed creates every user in creds that does not exist yet.
// Existing users keep their stored password. Returns the number created.
func (s *Service) Seed(ctx context.Context, creds map[string]string) (int, error) {
	names := make([]string, 0, len(creds))
	for name := range creds {
		names = append(names, name)
	}
	sort.Strings(names)

	created := 0
	for _, name := range names {
		_, err := s.CreateUser(ctx, name, creds[name])
		switch {
		case err == nil:
			created++
		case errors.Is(err, ErrUserExists):
		default:
			return created, fmt.Errorf("seed %q: %w", name, err)
		}
	}
	return created, nil
}

// Login validates credentials and opens a session.
func (s *Service) Login(ctx context.Context, username, password string) (string, error) {
	user, err := s.store.GetUserByUsername(ctx, strings.TrimSpace(username))
	if err != nil {
		return "", ErrInvalidCredentials
	}

	if errPwd := CheckPassword(user.PasswordHash, password); errPwd != nil {
		return "", ErrInvalidCredentials
	}

	return s.sessions.CreateSession(user.Username), nil
}

// Logout ends the session behind token.
func (s *Service) Logout(token string) {
	s.sessions.EndSession(token)
}

// SessionUser resolves the session cookie among cookies.
func (s *Service) SessionUser(cookies map[string]string, cookieName string) (string, bool) {
	return s.sessions.SessionUser(cookies[cookieName])
}

// LoadUsersFile reads a YAML mapping of username to password.
func LoadUsersFile(path string) (map[string]string, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read users file: %w", err)
	}

	creds := make(map[string]string)
	if err := yaml.Unmarshal(data, &creds); err != nil {
		return nil, fmt.Errorf("parse users file: %w", err)
	}
	return creds, nil
}
