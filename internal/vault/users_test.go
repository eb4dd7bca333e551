package vault

import (
	"context"
	"errors"
	"testing"
)

// newTestVault wires the three services over one in-memory store and
// bootstraps the initial admin.
func newTestVault(t *testing.T) (*UserService, *CategoryService, *SecretService, *User) {
	t.Helper()
	mem := NewMemory()
	users := NewUserService(mem)
	categories := NewCategoryService(mem, users)
	secrets := NewSecretService(mem, users, categories)

	admin, err := users.Bootstrap(context.Background(), "root", "root-password")
	if err != nil {
		t.Fatalf("bootstrap admin: %v", err)
	}
	return users, categories, secrets, admin
}

func mustCreateUser(t *testing.T, users *UserService, admin *User, login string, level AccessLevel, password string) *User {
	t.Helper()
	u, err := users.Create(context.Background(), admin.Key, login, level, password)
	if err != nil {
		t.Fatalf("create user %s: %v", login, err)
	}
	return u
}

func TestBootstrapOnlyWhileEmpty(t *testing.T) {
	users, _, _, _ := newTestVault(t)
	if _, err := users.Bootstrap(context.Background(), "second", "pw"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
}

func TestLoginEnumerationSafety(t *testing.T) {
	users, _, _, admin := newTestVault(t)
	ctx := context.Background()
	mustCreateUser(t, users, admin, "alice", LevelNormal, "alice-pw")

	if _, err := users.Login(ctx, "nobody", "whatever"); !errors.Is(err, ErrWrongCredentials) {
		t.Fatalf("unknown login: expected ErrWrongCredentials, got %v", err)
	}
	if _, err := users.Login(ctx, "alice", "wrong"); !errors.Is(err, ErrWrongCredentials) {
		t.Fatalf("bad password: expected ErrWrongCredentials, got %v", err)
	}
}

func TestLoginBanCheckedAfterCredentials(t *testing.T) {
	users, _, _, admin := newTestVault(t)
	ctx := context.Background()
	banned := mustCreateUser(t, users, admin, "mallory", LevelNormal, "mallory-pw")
	if err := users.ChangeAccessLevel(ctx, admin.Key, "mallory", LevelBanned); err != nil {
		t.Fatalf("ban: %v", err)
	}

	// Wrong password must not reveal the ban.
	if _, err := users.Login(ctx, "mallory", "wrong"); !errors.Is(err, ErrWrongCredentials) {
		t.Fatalf("expected ErrWrongCredentials, got %v", err)
	}
	if _, err := users.Login(ctx, "mallory", "mallory-pw"); !errors.Is(err, ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}
	if _, err := users.ResolveActive(ctx, banned.Key); !errors.Is(err, ErrBanned) {
		t.Fatalf("expected ErrBanned, got %v", err)
	}
}

func TestResolveActive(t *testing.T) {
	users, _, _, admin := newTestVault(t)
	ctx := context.Background()

	if _, err := users.ResolveActive(ctx, UserKey(9999)); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("stale key: expected ErrSessionExpired, got %v", err)
	}
	normal := mustCreateUser(t, users, admin, "bob", LevelNormal, "bob-pw")
	if _, err := users.ResolveActiveAdmin(ctx, normal.Key); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-admin: expected ErrPermissionDenied, got %v", err)
	}
	if _, err := users.ResolveActiveAdmin(ctx, admin.Key); err != nil {
		t.Fatalf("admin: %v", err)
	}
}

func TestCreateValidation(t *testing.T) {
	users, _, _, admin := newTestVault(t)
	ctx := context.Background()

	cases := []struct {
		login string
		want  error
	}{
		{"x", ErrInvalidValue},
		{string(make([]byte, 51)), ErrInvalidValue},
		{"root", ErrAlreadyExists},
	}
	for _, tc := range cases {
		if _, err := users.Create(ctx, admin.Key, tc.login, LevelNormal, "pw"); !errors.Is(err, tc.want) {
			t.Fatalf("login %q: expected %v, got %v", tc.login, tc.want, err)
		}
	}

	normal := mustCreateUser(t, users, admin, "carol", LevelNormal, "pw")
	if _, err := users.Create(ctx, normal.Key, "dave", LevelNormal, "pw"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-admin create: expected ErrPermissionDenied, got %v", err)
	}
}

func TestLoginUniquenessIsCaseSensitive(t *testing.T) {
	users, _, _, admin := newTestVault(t)
	ctx := context.Background()
	mustCreateUser(t, users, admin, "Alice", LevelNormal, "pw")

	// Differs only by case: must not collide.
	if _, err := users.Create(ctx, admin.Key, "alice", LevelNormal, "pw"); err != nil {
		t.Fatalf("case-differing login should succeed: %v", err)
	}
	if _, err := users.FindByLogin(ctx, admin.Key, "ALICE"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
}

func TestRenameChecksOldLoginFirst(t *testing.T) {
	users, _, _, admin := newTestVault(t)
	ctx := context.Background()
	mustCreateUser(t, users, admin, "erin", LevelNormal, "pw")

	// Missing old login wins over the malformed new one.
	if err := users.Rename(ctx, admin.Key, "ghost", "x"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}
	if err := users.Rename(ctx, admin.Key, "erin", "x"); !errors.Is(err, ErrInvalidValue) {
		t.Fatalf("expected ErrInvalidValue, got %v", err)
	}
	if err := users.Rename(ctx, admin.Key, "erin", "root"); !errors.Is(err, ErrAlreadyExists) {
		t.Fatalf("expected ErrAlreadyExists, got %v", err)
	}
	if err := users.Rename(ctx, admin.Key, "erin", "erin2"); err != nil {
		t.Fatalf("rename: %v", err)
	}
	if _, err := users.FindByLogin(ctx, admin.Key, "erin"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("old login still resolves: %v", err)
	}
}

func TestChangePassword(t *testing.T) {
	users, _, _, admin := newTestVault(t)
	ctx := context.Background()
	u := mustCreateUser(t, users, admin, "frank", LevelNormal, "old-pw")

	if err := users.ChangePassword(ctx, u.Key, "new-pw"); err != nil {
		t.Fatalf("change password: %v", err)
	}
	if _, err := users.Login(ctx, "frank", "old-pw"); !errors.Is(err, ErrWrongCredentials) {
		t.Fatalf("old password still valid: %v", err)
	}
	if key, err := users.Login(ctx, "frank", "new-pw"); err != nil || key != u.Key {
		t.Fatalf("new password login: key=%d err=%v", key, err)
	}
}

func TestResetPassword(t *testing.T) {
	users, _, _, admin := newTestVault(t)
	ctx := context.Background()
	u := mustCreateUser(t, users, admin, "grace", LevelNormal, "grace-pw")

	if _, err := users.ResetPassword(ctx, u.Key, "root"); !errors.Is(err, ErrPermissionDenied) {
		t.Fatalf("non-admin reset: expected ErrPermissionDenied, got %v", err)
	}
	if _, err := users.ResetPassword(ctx, admin.Key, "ghost"); !errors.Is(err, ErrUserNotFound) {
		t.Fatalf("expected ErrUserNotFound, got %v", err)
	}

	fresh, err := users.ResetPassword(ctx, admin.Key, "grace")
	if err != nil {
		t.Fatalf("reset: %v", err)
	}
	if _, err := users.Login(ctx, "grace", "grace-pw"); !errors.Is(err, ErrWrongCredentials) {
		t.Fatalf("old password survived reset: %v", err)
	}
	if key, err := users.Login(ctx, "grace", fresh); err != nil || key != u.Key {
		t.Fatalf("fresh password login: key=%d err=%v", key, err)
	}
}

func TestListRequiresActiveCaller(t *testing.T) {
	users, _, _, admin := newTestVault(t)
	ctx := context.Background()
	mustCreateUser(t, users, admin, "heidi", LevelNormal, "pw")

	list, err := users.List(ctx, admin.Key)
	if err != nil {
		t.Fatalf("list: %v", err)
	}
	if len(list) != 2 {
		t.Fatalf("expected 2 users, got %d", len(list))
	}
	if _, err := users.List(ctx, UserKey(404)); !errors.Is(err, ErrSessionExpired) {
		t.Fatalf("expected ErrSessionExpired, got %v", err)
	}
}
