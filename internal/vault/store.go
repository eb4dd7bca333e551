package vault

import "context"

// Store contracts for the three entities. Implementations must compare
// logins and names byte-wise regardless of the backing store's default
// collation, and must return the package sentinels for missing rows.
//
// Every service operation runs inside one storage transaction obtained from
// the TxRunner; read-then-write sequences rely on that, not on locks held by
// the engine.

// TxRunner runs fn inside one storage transaction. Store calls made with the
// context fn receives join that transaction; it commits when fn returns nil
// and rolls back otherwise. A call made while a transaction is already open
// joins it instead of starting a second one.
type TxRunner interface {
	InTx(ctx context.Context, fn func(context.Context) error) error
}

// Store bundles the three entity stores with the transaction runner backing
// them. *Memory and the pg store both satisfy it.
type Store interface {
	TxRunner
	Users() UserStore
	Categories() CategoryStore
	Secrets() SecretStore
}

// inTx is the value-returning form of TxRunner.InTx used by the services.
func inTx[T any](ctx context.Context, tx TxRunner, fn func(context.Context) (T, error)) (T, error) {
	var out T
	err := tx.InTx(ctx, func(ctx context.Context) error {
		v, err := fn(ctx)
		if err != nil {
			return err
		}
		out = v
		return nil
	})
	if err != nil {
		var zero T
		return zero, err
	}
	return out, nil
}

// UserStore persists accounts.
type UserStore interface {
	GetByKey(ctx context.Context, key UserKey) (*User, error)
	GetByKeys(ctx context.Context, keys []UserKey) ([]*User, error)
	GetByLogin(ctx context.Context, login string) (*User, error)
	// GetByLogins resolves logins to users. Missing logins are simply absent
	// from the result; the caller decides which miss to report.
	GetByLogins(ctx context.Context, logins []string) (map[string]*User, error)
	List(ctx context.Context) ([]*User, error)
	Count(ctx context.Context) (int, error)
	Create(ctx context.Context, u *User) (UserKey, error)
	Replace(ctx context.Context, u *User) (bool, error)
	Delete(ctx context.Context, key UserKey) (bool, error)
}

// CategoryStore persists the tagging taxonomy.
type CategoryStore interface {
	GetByKey(ctx context.Context, key CategoryKey) (*Category, error)
	GetByKeys(ctx context.Context, keys []CategoryKey) ([]*Category, error)
	GetByName(ctx context.Context, name string) (*Category, error)
	GetByNames(ctx context.Context, names []string) (map[string]*Category, error)
	List(ctx context.Context) ([]*Category, error)
	Create(ctx context.Context, c *Category) (CategoryKey, error)
	Replace(ctx context.Context, c *Category) (bool, error)
	Delete(ctx context.Context, key CategoryKey) (bool, error)
}

// SecretStore persists secrets together with their fields, permission rows
// and category links. GetByKey returns the fully assembled secret; deletion
// cascades to the child rows as a storage detail.
type SecretStore interface {
	GetByKey(ctx context.Context, key SecretKey) (*Secret, error)
	List(ctx context.Context) ([]*Secret, error)
	// ListVisibleTo returns secrets where the user holds a permission row or
	// the visibility tier is public/discoverable, ordered by key.
	ListVisibleTo(ctx context.Context, user UserKey) ([]*Secret, error)
	Create(ctx context.Context, s *Secret) (SecretKey, error)
	ReplaceHeader(ctx context.Context, s *Secret) (bool, error)
	ClearFieldsAndLinks(ctx context.Context, key SecretKey) error
	AddField(ctx context.Context, key SecretKey, name, value string) error
	AddPermission(ctx context.Context, key SecretKey, user UserKey, p PermissionType) error
	AddCategoryLink(ctx context.Context, key SecretKey, category CategoryKey) error
	FindPermission(ctx context.Context, key SecretKey, user UserKey) (PermissionType, bool, error)
	// CountByCategory is evaluated at call time, never cached; category
	// deletion depends on it.
	CountByCategory(ctx context.Context, category CategoryKey) (int, error)
	Delete(ctx context.Context, key SecretKey) (bool, error)
}
