package auth

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/vovakirdan/wirechat-relay/internal/core"
	"github.com/vovakirdan/wirechat-relay/internal/store/sqlite"
)

func newTestAuthService(t *testing.T) (*Service, *core.Registry) {
	t.Helper()

	st, err := sqlite.New(":memory:")
	if err != nil {
		t.Fatalf("failed to create store: %v", err)
	}
	t.Cleanup(func() { _ = st.Close() })

	reg := core.NewRegistry(core.Options{})
	return NewService(st, reg), reg
}

func TestCreateUser_RejectsInvalidUsername(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "ab", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}

	// Should be validated after trimming whitespace.
	if _, err := svc.CreateUser(ctx, " ab ", "password123"); !errors.Is(err, ErrInvalidUsername) {
		t.Fatalf("expected ErrInvalidUsername, got %v", err)
	}
}

func TestCreateUser_RejectsInvalidPassword(t *testing.T) {
	svc, _ := newTestAuthService(t)

	if _, err := svc.CreateUser(context.Background(), "abc", "12345"); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestCreateUser_TrimsUsernameAndRejectsDuplicate(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	user, err := svc.CreateUser(ctx, " alice ", "password123")
	if err != nil {
		t.Fatalf("expected success, got %v", err)
	}
	if user.Username != "alice" {
		t.Fatalf("expected trimmed username, got %q", user.Username)
	}
	if user.PasswordHash == "password123" {
		t.Fatalf("password stored in plaintext")
	}

	if _, err := svc.CreateUser(ctx, "alice", "password456"); !errors.Is(err, ErrUserExists) {
		t.Fatalf("expected ErrUserExists, got %v", err)
	}
}

func TestLogin_CreatesSession(t *testing.T) {
	svc, reg := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "alice", "password123"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	token, err := svc.Login(ctx, "alice", "password123")
	if err != nil {
		t.Fatalf("login: %v", err)
	}
	if got, ok := reg.SessionUser(token); !ok || got != "alice" {
		t.Fatalf("session not created: %q %v", got, ok)
	}
	if got, ok := svc.SessionUser(map[string]string{"session_id": token}, "session_id"); !ok || got != "alice" {
		t.Fatalf("cookie lookup failed: %q %v", got, ok)
	}

	svc.Logout(token)
	if _, ok := reg.SessionUser(token); ok {
		t.Fatalf("session survived logout")
	}
}

func TestLogin_RejectsBadCredentials(t *testing.T) {
	svc, reg := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "alice", "password123"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	if _, err := svc.Login(ctx, "alice", "wrong-password"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if _, err := svc.Login(ctx, "nobody", "password123"); !errors.Is(err, ErrInvalidCredentials) {
		t.Fatalf("expected ErrInvalidCredentials, got %v", err)
	}
	if stats := reg.Stats(); stats.Sessions != 0 {
		t.Fatalf("expected no sessions, got %d", stats.Sessions)
	}
}

func TestSeed_SkipsExistingUsers(t *testing.T) {
	svc, _ := newTestAuthService(t)
	ctx := context.Background()

	if _, err := svc.CreateUser(ctx, "alice", "original"); err != nil {
		t.Fatalf("create user: %v", err)
	}

	created, err := svc.Seed(ctx, map[string]string{"alice": "changed", "bob": "bobpass"})
	if err != nil {
		t.Fatalf("seed: %v", err)
	}
	if created != 1 {
		t.Fatalf("expected 1 created, got %d", created)
	}

	if _, err := svc.Login(ctx, "alice", "original"); err != nil {
		t.Fatalf("existing password should be kept: %v", err)
	}
	if _, err := svc.Login(ctx, "bob", "bobpass"); err != nil {
		t.Fatalf("seeded user cannot log in: %v", err)
	}
}

func TestSeed_FailsOnInvalidEntry(t *testing.T) {
	svc, _ := newTestAuthService(t)

	if _, err := svc.Seed(context.Background(), map[string]string{"bob": "123"}); !errors.Is(err, ErrInvalidPassword) {
		t.Fatalf("expected ErrInvalidPassword, got %v", err)
	}
}

func TestLoadUsersFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "users.yaml")
	if err := os.WriteFile(path, []byte("alice: wonderland\nbob: builder1\n"), 0o600); err != nil {
		t.Fatalf("write: %v", err)
	}

	creds, err := LoadUsersFile(path)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if len(creds) != 2 || creds["alice"] != "wonderland" || creds["bob"] != "builder1" {
		t.Fatalf("unexpected creds %v", creds)
	}

	if _, err := LoadUsersFile(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatalf("expected error for missing file")
	}
}
