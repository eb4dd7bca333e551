package vault

import (
	"context"
	"errors"
	"fmt"
	"time"
)

// CategoryService owns the tagging taxonomy. All mutations are admin only;
// reads require an active caller.
type CategoryService struct {
	store   CategoryStore
	secrets SecretStore
	users   *UserService
	tx      TxRunner
	now     func() time.Time
}

// NewCategoryService constructs the service. The secret store is consulted
// for reference counts at deletion time.
func NewCategoryService(st Store, users *UserService) *CategoryService {
	return &CategoryService{store: st.Categories(), secrets: st.Secrets(), users: users, tx: st, now: time.Now}
}

// Create registers a new category. Admin only.
func (s *CategoryService) Create(ctx context.Context, caller UserKey, name string) (*Category, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (*Category, error) {
		if _, err := s.users.ResolveActiveAdmin(ctx, caller); err != nil {
			return nil, err
		}
		if !validName(name) {
			return nil, fmt.Errorf("%w: category name length must be %d-%d characters", ErrInvalidValue, loginMinLen, loginMaxLen)
		}
		if err := s.ensureNameFree(ctx, name); err != nil {
			return nil, err
		}
		cat := &Category{Name: name, CreatedAt: s.now().UTC()}
		key, err := s.store.Create(ctx, cat)
		if err != nil {
			return nil, storageErr(err)
		}
		cat.Key = key
		return cat, nil
	})
}

// Rename changes a category name. The old name is resolved first, then the
// new name's shape, then its non-collision. Admin only.
func (s *CategoryService) Rename(ctx context.Context, caller UserKey, oldName, newName string) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.users.ResolveActiveAdmin(ctx, caller); err != nil {
			return err
		}
		cat, err := s.store.GetByName(ctx, oldName)
		if err != nil {
			return storageErr(err)
		}
		if !validName(newName) {
			return fmt.Errorf("%w: category name length must be %d-%d characters", ErrInvalidValue, loginMinLen, loginMaxLen)
		}
		if err := s.ensureNameFree(ctx, newName); err != nil {
			return err
		}
		cat.Name = newName
		found, err := s.store.Replace(ctx, cat)
		if err != nil {
			return storageErr(err)
		}
		if !found {
			return ErrCategoryNotFound
		}
		return nil
	})
}

// Delete removes a category. Refused, never cascaded, while any secret still
// references it; the reference count is computed now, not cached. Admin only.
func (s *CategoryService) Delete(ctx context.Context, caller UserKey, name string) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		if _, err := s.users.ResolveActiveAdmin(ctx, caller); err != nil {
			return err
		}
		cat, err := s.store.GetByName(ctx, name)
		if err != nil {
			return storageErr(err)
		}
		n, err := s.secrets.CountByCategory(ctx, cat.Key)
		if err != nil {
			return storageErr(err)
		}
		if n > 0 {
			return fmt.Errorf("%w: %d secrets", ErrCategoryInUse, n)
		}
		found, err := s.store.Delete(ctx, cat.Key)
		if err != nil {
			return storageErr(err)
		}
		if !found {
			return ErrCategoryNotFound
		}
		return nil
	})
}

// FindByKey returns a category by key. Any active caller may read.
func (s *CategoryService) FindByKey(ctx context.Context, caller UserKey, key CategoryKey) (*Category, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (*Category, error) {
		if _, err := s.users.ResolveActive(ctx, caller); err != nil {
			return nil, err
		}
		cat, err := s.store.GetByKey(ctx, key)
		if err != nil {
			return nil, storageErr(err)
		}
		return cat, nil
	})
}

// FindByName returns a category by its case-sensitive name.
func (s *CategoryService) FindByName(ctx context.Context, caller UserKey, name string) (*Category, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (*Category, error) {
		if _, err := s.users.ResolveActive(ctx, caller); err != nil {
			return nil, err
		}
		cat, err := s.store.GetByName(ctx, name)
		if err != nil {
			return nil, storageErr(err)
		}
		return cat, nil
	})
}

// List returns all categories ordered by key.
func (s *CategoryService) List(ctx context.Context, caller UserKey) ([]*Category, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) ([]*Category, error) {
		if _, err := s.users.ResolveActive(ctx, caller); err != nil {
			return nil, err
		}
		cats, err := s.store.List(ctx)
		if err != nil {
			return nil, storageErr(err)
		}
		return cats, nil
	})
}

// ListByNames resolves names in argument order and fails fast on the first
// one that does not exist.
func (s *CategoryService) ListByNames(ctx context.Context, caller UserKey, names []string) ([]*Category, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) ([]*Category, error) {
		if _, err := s.users.ResolveActive(ctx, caller); err != nil {
			return nil, err
		}
		return s.resolveNames(ctx, names)
	})
}

// resolveNames is the shared fail-fast resolution used by ListByNames and by
// the secret service.
func (s *CategoryService) resolveNames(ctx context.Context, names []string) ([]*Category, error) {
	if len(names) == 0 {
		return nil, nil
	}
	byName, err := s.store.GetByNames(ctx, names)
	if err != nil {
		return nil, storageErr(err)
	}
	out := make([]*Category, 0, len(names))
	for _, name := range names {
		cat, ok := byName[name]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrCategoryNotFound, name)
		}
		out = append(out, cat)
	}
	return out, nil
}

func (s *CategoryService) ensureNameFree(ctx context.Context, name string) error {
	_, err := s.store.GetByName(ctx, name)
	switch {
	case err == nil:
		return fmt.Errorf("%w: category %q", ErrAlreadyExists, name)
	case errors.Is(err, ErrCategoryNotFound):
		return nil
	default:
		return storageErr(err)
	}
}

// validName shares login's length bounds.
func validName(name string) bool {
	return len(name) >= loginMinLen && len(name) <= loginMaxLen
}
