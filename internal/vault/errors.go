package vault

import (
	"errors"
	"fmt"
)

// Every business-rule violation is one of these sentinels, possibly wrapped
// with detail via fmt.Errorf("%w: ..."). Callers classify with errors.Is;
// the transport layer maps each kind to a status code.
var (
	// ErrSessionExpired: the caller key no longer resolves to a stored user.
	ErrSessionExpired = errors.New("vault: session expired")
	// ErrBanned: the caller resolved, but the account is banned.
	ErrBanned = errors.New("vault: account banned")
	// ErrWrongCredentials covers both unknown login and bad password so the
	// login endpoint cannot be used to enumerate accounts.
	ErrWrongCredentials = errors.New("vault: wrong credentials")

	ErrPermissionDenied = errors.New("vault: permission denied")
	ErrInvalidValue     = errors.New("vault: invalid value")
	ErrAlreadyExists    = errors.New("vault: already exists")

	ErrUserNotFound     = errors.New("vault: user not found")
	ErrCategoryNotFound = errors.New("vault: category not found")
	ErrSecretNotFound   = errors.New("vault: secret not found")

	// ErrCategoryInUse: deletion refused while secrets still reference the
	// category. Never cascaded.
	ErrCategoryInUse = errors.New("vault: category still referenced by secrets")

	// ErrNotImplemented marks contract operations without semantics yet.
	ErrNotImplemented = errors.New("vault: not implemented")

	// ErrStorage wraps failures coming out of the persistence collaborator.
	ErrStorage = errors.New("vault: storage failure")
)

// IsNotFound reports whether err is any of the per-entity not-found kinds.
func IsNotFound(err error) bool {
	return errors.Is(err, ErrUserNotFound) ||
		errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrSecretNotFound)
}

// storageErr tags an unexpected persistence error. Sentinel failures from
// stores pass through untouched so precedence stays observable.
func storageErr(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, ErrUserNotFound) || errors.Is(err, ErrCategoryNotFound) ||
		errors.Is(err, ErrSecretNotFound) || errors.Is(err, ErrAlreadyExists) {
		return err
	}
	return fmt.Errorf("%w: %v", ErrStorage, err)
}
