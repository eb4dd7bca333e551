package vault

import (
	"context"
	"errors"
	"fmt"
	"time"
)

const (
	loginMinLen = 2
	loginMaxLen = 50
)

// UserService owns identity, role and credential lifecycle. It is the sole
// authority for "may this caller act at all": every operation in the system
// starts with ResolveActive.
type UserService struct {
	store UserStore
	tx    TxRunner
	now   func() time.Time
}

// NewUserService constructs the service over the store bundle.
func NewUserService(st Store) *UserService {
	return &UserService{store: st.Users(), tx: st, now: time.Now}
}

// ResolveActive looks up the caller key and rejects stale sessions and
// banned accounts. The mandatory first step of every other operation.
func (s *UserService) ResolveActive(ctx context.Context, caller UserKey) (*User, error) {
	user, err := s.store.GetByKey(ctx, caller)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return nil, ErrSessionExpired
		}
		return nil, storageErr(err)
	}
	if user.Level == LevelBanned {
		return nil, ErrBanned
	}
	return user, nil
}

// ResolveActiveAdmin is ResolveActive plus an admin gate.
func (s *UserService) ResolveActiveAdmin(ctx context.Context, caller UserKey) (*User, error) {
	user, err := s.ResolveActive(ctx, caller)
	if err != nil {
		return nil, err
	}
	if user.Level != LevelAdmin {
		return nil, ErrPermissionDenied
	}
	return user, nil
}

// Login verifies credentials and returns the account key. Unknown login and
// wrong password are indistinguishable; the ban check runs only after the
// credentials verified, so a banned caller with a wrong password still gets
// ErrWrongCredentials.
func (s *UserService) Login(ctx context.Context, login, password string) (UserKey, error) {
	user, err := s.store.GetByLogin(ctx, login)
	if err != nil {
		if errors.Is(err, ErrUserNotFound) {
			return 0, ErrWrongCredentials
		}
		return 0, storageErr(err)
	}
	ok, err := VerifyPassword(user.PasswordHash, password)
	if err != nil || !ok {
		return 0, ErrWrongCredentials
	}
	if user.Level == LevelBanned {
		return 0, ErrBanned
	}
	return user.Key, nil
}

// Create registers a new account. Admin only.
func (s *UserService) Create(ctx context.Context, caller UserKey, login string, level AccessLevel, password string) (*User, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (*User, error) {
		if _, err := s.ResolveActiveAdmin(ctx, caller); err != nil {
			return nil, err
		}
		if !validLogin(login) {
			return nil, fmt.Errorf("%w: login length must be %d-%d characters", ErrInvalidValue, loginMinLen, loginMaxLen)
		}
		if err := s.ensureLoginFree(ctx, login); err != nil {
			return nil, err
		}
		return s.insert(ctx, login, level, password)
	})
}

// Bootstrap creates the very first admin account. It is valid only while the
// store holds no users at all; afterwards accounts come from Create.
func (s *UserService) Bootstrap(ctx context.Context, login, password string) (*User, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (*User, error) {
		n, err := s.store.Count(ctx)
		if err != nil {
			return nil, storageErr(err)
		}
		if n > 0 {
			return nil, fmt.Errorf("%w: vault already has accounts", ErrAlreadyExists)
		}
		if !validLogin(login) {
			return nil, fmt.Errorf("%w: login length must be %d-%d characters", ErrInvalidValue, loginMinLen, loginMaxLen)
		}
		return s.insert(ctx, login, LevelAdmin, password)
	})
}

// ChangePassword lets any active caller replace their own password.
func (s *UserService) ChangePassword(ctx context.Context, caller UserKey, newPassword string) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.ResolveActive(ctx, caller)
		if err != nil {
			return err
		}
		hash, err := HashPassword(newPassword)
		if err != nil {
			return storageErr(err)
		}
		user.PasswordHash = hash
		return s.replace(ctx, user)
	})
}

// ResetPassword generates a fresh random password for the target account and
// returns it. The plaintext is never re-derivable afterwards. Admin only.
func (s *UserService) ResetPassword(ctx context.Context, caller UserKey, targetLogin string) (string, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (string, error) {
		if _, err := s.ResolveActiveAdmin(ctx, caller); err != nil {
			return "", err
		}
		target, err := s.store.GetByLogin(ctx, targetLogin)
		if err != nil {
			return "", storageErr(err)
		}
		password, err := GeneratePassword()
		if err != nil {
			return "", storageErr(err)
		}
		hash, err := HashPassword(password)
		if err != nil {
			return "", storageErr(err)
		}
		target.PasswordHash = hash
		if err := s.replace(ctx, target); err != nil {
			return "", err
		}
		return password, nil
	})
}

// ChangeAccessLevel sets the target account's role. Admin only.
func (s *UserService) ChangeAccessLevel(ctx context.Context, caller UserKey, targetLogin string, level AccessLevel) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.ResolveActiveAdmin(ctx, caller); err != nil {
			return err
		}
		target, err := s.store.GetByLogin(ctx, targetLogin)
		if err != nil {
			return storageErr(err)
		}
		target.Level = level
		return s.replace(ctx, target)
	})
}

// Rename changes an account's login. The old login is resolved before the
// new one is validated, so a missing account wins over a malformed or taken
// replacement. Admin only.
func (s *UserService) Rename(ctx context.Context, caller UserKey, oldLogin, newLogin string) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.ResolveActiveAdmin(ctx, caller); err != nil {
			return err
		}
		target, err := s.store.GetByLogin(ctx, oldLogin)
		if err != nil {
			return storageErr(err)
		}
		if !validLogin(newLogin) {
			return fmt.Errorf("%w: login length must be %d-%d characters", ErrInvalidValue, loginMinLen, loginMaxLen)
		}
		if err := s.ensureLoginFree(ctx, newLogin); err != nil {
			return err
		}
		target.Login = newLogin
		return s.replace(ctx, target)
	})
}

// FindByKey returns an account by key. Any active caller may read.
func (s *UserService) FindByKey(ctx context.Context, caller, key UserKey) (*User, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (*User, error) {
		if _, err := s.ResolveActive(ctx, caller); err != nil {
			return nil, err
		}
		user, err := s.store.GetByKey(ctx, key)
		if err != nil {
			return nil, storageErr(err)
		}
		return user, nil
	})
}

// FindByLogin returns an account by login. Any active caller may read.
func (s *UserService) FindByLogin(ctx context.Context, caller UserKey, login string) (*User, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (*User, error) {
		if _, err := s.ResolveActive(ctx, caller); err != nil {
			return nil, err
		}
		user, err := s.store.GetByLogin(ctx, login)
		if err != nil {
			return nil, storageErr(err)
		}
		return user, nil
	})
}

// List returns all accounts. Any active caller may read.
func (s *UserService) List(ctx context.Context, caller UserKey) ([]*User, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) ([]*User, error) {
		if _, err := s.ResolveActive(ctx, caller); err != nil {
			return nil, err
		}
		users, err := s.store.List(ctx)
		if err != nil {
			return nil, storageErr(err)
		}
		return users, nil
	})
}

func (s *UserService) insert(ctx context.Context, login string, level AccessLevel, password string) (*User, error) {
	hash, err := HashPassword(password)
	if err != nil {
		return nil, storageErr(err)
	}
	user := &User{
		Login:        login,
		Level:        level,
		PasswordHash: hash,
		CreatedAt:    s.now().UTC(),
	}
	key, err := s.store.Create(ctx, user)
	if err != nil {
		return nil, storageErr(err)
	}
	user.Key = key
	return user, nil
}

func (s *UserService) replace(ctx context.Context, user *User) error {
	found, err := s.store.Replace(ctx, user)
	if err != nil {
		return storageErr(err)
	}
	if !found {
		return ErrUserNotFound
	}
	return nil
}

func (s *UserService) ensureLoginFree(ctx context.Context, login string) error {
	_, err := s.store.GetByLogin(ctx, login)
	switch {
	case err == nil:
		return fmt.Errorf("%w: login %q", ErrAlreadyExists, login)
	case errors.Is(err, ErrUserNotFound):
		return nil
	default:
		return storageErr(err)
	}
}

// validLogin checks length bounds only; comparisons stay case-sensitive.
func validLogin(login string) bool {
	return len(login) >= loginMinLen && len(login) <= loginMaxLen
}
