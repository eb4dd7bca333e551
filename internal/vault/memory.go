package vault

import (
	"context"
	"sort"
	"sync"
)

// Memory is an in-process implementation of the three store contracts.
// Mutations on one Memory are serialized by a single mutex, which stands in
// for the per-operation transaction a durable store provides. Used by the
// test suites and anywhere a vault without Postgres is useful.
type Memory struct {
	mu sync.RWMutex

	users      map[UserKey]*User
	categories map[CategoryKey]*Category
	secrets    map[SecretKey]*secretRec

	nextUser     UserKey
	nextCategory CategoryKey
	nextSecret   SecretKey
}

type permRec struct {
	user UserKey
	typ  PermissionType
}

// secretRec keeps the header separate from the child rows, mirroring the
// relational layout. Logins in permission rows are joined at read time so
// renames stay visible.
type secretRec struct {
	header Secret
	fields map[string]string
	perms  []permRec
	links  []CategoryKey
}

// NewMemory creates an empty store.
func NewMemory() *Memory {
	return &Memory{
		users:      make(map[UserKey]*User),
		categories: make(map[CategoryKey]*Category),
		secrets:    make(map[SecretKey]*secretRec),
	}
}

// InTx implements TxRunner. Memory keeps no transaction log; the per-call
// mutex already serializes mutations, so fn runs directly and a failing fn is
// not rolled back.
func (m *Memory) InTx(ctx context.Context, fn func(context.Context) error) error {
	return fn(ctx)
}

// Users returns the UserStore view.
func (m *Memory) Users() UserStore { return (*memUsers)(m) }

// Categories returns the CategoryStore view.
func (m *Memory) Categories() CategoryStore { return (*memCategories)(m) }

// Secrets returns the SecretStore view.
func (m *Memory) Secrets() SecretStore { return (*memSecrets)(m) }

// User store ---------------------------------------------------------------

type memUsers Memory

func (m *memUsers) GetByKey(ctx context.Context, key UserKey) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	u, ok := m.users[key]
	if !ok {
		return nil, ErrUserNotFound
	}
	out := *u
	return &out, nil
}

func (m *memUsers) GetByKeys(ctx context.Context, keys []UserKey) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*User, 0, len(keys))
	for _, key := range keys {
		if u, ok := m.users[key]; ok {
			cp := *u
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memUsers) GetByLogin(ctx context.Context, login string) (*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	if u := m.findLogin(login); u != nil {
		out := *u
		return &out, nil
	}
	return nil, ErrUserNotFound
}

func (m *memUsers) GetByLogins(ctx context.Context, logins []string) (map[string]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*User, len(logins))
	for _, login := range logins {
		if u := m.findLogin(login); u != nil {
			cp := *u
			out[login] = &cp
		}
	}
	return out, nil
}

func (m *memUsers) List(ctx context.Context) ([]*User, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*User, 0, len(m.users))
	for _, u := range m.users {
		cp := *u
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memUsers) Count(ctx context.Context) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.users), nil
}

func (m *memUsers) Create(ctx context.Context, u *User) (UserKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextUser++
	cp := *u
	cp.Key = m.nextUser
	m.users[cp.Key] = &cp
	return cp.Key, nil
}

func (m *memUsers) Replace(ctx context.Context, u *User) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[u.Key]; !ok {
		return false, nil
	}
	cp := *u
	m.users[u.Key] = &cp
	return true, nil
}

func (m *memUsers) Delete(ctx context.Context, key UserKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.users[key]; !ok {
		return false, nil
	}
	delete(m.users, key)
	return true, nil
}

// findLogin is a byte-wise comparison scan. Caller holds the lock.
func (m *memUsers) findLogin(login string) *User {
	for _, u := range m.users {
		if u.Login == login {
			return u
		}
	}
	return nil
}

// Category store -----------------------------------------------------------

type memCategories Memory

func (m *memCategories) GetByKey(ctx context.Context, key CategoryKey) (*Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	c, ok := m.categories[key]
	if !ok {
		return nil, ErrCategoryNotFound
	}
	out := *c
	return &out, nil
}

func (m *memCategories) GetByKeys(ctx context.Context, keys []CategoryKey) ([]*Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Category, 0, len(keys))
	for _, key := range keys {
		if c, ok := m.categories[key]; ok {
			cp := *c
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (m *memCategories) GetByName(ctx context.Context, name string) (*Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	for _, c := range m.categories {
		if c.Name == name {
			out := *c
			return &out, nil
		}
	}
	return nil, ErrCategoryNotFound
}

func (m *memCategories) GetByNames(ctx context.Context, names []string) (map[string]*Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make(map[string]*Category, len(names))
	for _, name := range names {
		for _, c := range m.categories {
			if c.Name == name {
				cp := *c
				out[name] = &cp
				break
			}
		}
	}
	return out, nil
}

func (m *memCategories) List(ctx context.Context) ([]*Category, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	out := make([]*Category, 0, len(m.categories))
	for _, c := range m.categories {
		cp := *c
		out = append(out, &cp)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out, nil
}

func (m *memCategories) Create(ctx context.Context, c *Category) (CategoryKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextCategory++
	cp := *c
	cp.Key = m.nextCategory
	m.categories[cp.Key] = &cp
	return cp.Key, nil
}

func (m *memCategories) Replace(ctx context.Context, c *Category) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[c.Key]; !ok {
		return false, nil
	}
	cp := *c
	m.categories[c.Key] = &cp
	return true, nil
}

func (m *memCategories) Delete(ctx context.Context, key CategoryKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.categories[key]; !ok {
		return false, nil
	}
	delete(m.categories, key)
	return true, nil
}

// Secret store -------------------------------------------------------------

type memSecrets Memory

func (m *memSecrets) GetByKey(ctx context.Context, key SecretKey) (*Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.secrets[key]
	if !ok {
		return nil, ErrSecretNotFound
	}
	return m.assemble(rec), nil
}

func (m *memSecrets) List(ctx context.Context) ([]*Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(*secretRec) bool { return true }), nil
}

func (m *memSecrets) ListVisibleTo(ctx context.Context, user UserKey) ([]*Secret, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return m.collect(func(rec *secretRec) bool {
		if rec.header.Visibility != VisibilityConfidential {
			return true
		}
		for _, p := range rec.perms {
			if p.user == user {
				return true
			}
		}
		return false
	}), nil
}

func (m *memSecrets) Create(ctx context.Context, s *Secret) (SecretKey, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextSecret++
	header := *s
	header.Key = m.nextSecret
	header.Fields = nil
	header.Categories = nil
	header.Permissions = nil
	m.secrets[header.Key] = &secretRec{header: header, fields: map[string]string{}}
	return header.Key, nil
}

func (m *memSecrets) ReplaceHeader(ctx context.Context, s *Secret) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.secrets[s.Key]
	if !ok {
		return false, nil
	}
	rec.header.Name = s.Name
	rec.header.Description = s.Description
	rec.header.Visibility = s.Visibility
	return true, nil
}

func (m *memSecrets) ClearFieldsAndLinks(ctx context.Context, key SecretKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.secrets[key]
	if !ok {
		return ErrSecretNotFound
	}
	rec.fields = map[string]string{}
	rec.perms = nil
	rec.links = nil
	return nil
}

func (m *memSecrets) AddField(ctx context.Context, key SecretKey, name, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.secrets[key]
	if !ok {
		return ErrSecretNotFound
	}
	rec.fields[name] = value
	return nil
}

func (m *memSecrets) AddPermission(ctx context.Context, key SecretKey, user UserKey, p PermissionType) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.secrets[key]
	if !ok {
		return ErrSecretNotFound
	}
	rec.perms = append(rec.perms, permRec{user: user, typ: p})
	return nil
}

func (m *memSecrets) AddCategoryLink(ctx context.Context, key SecretKey, category CategoryKey) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	rec, ok := m.secrets[key]
	if !ok {
		return ErrSecretNotFound
	}
	rec.links = append(rec.links, category)
	return nil
}

func (m *memSecrets) FindPermission(ctx context.Context, key SecretKey, user UserKey) (PermissionType, bool, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	rec, ok := m.secrets[key]
	if !ok {
		return "", false, ErrSecretNotFound
	}
	for _, p := range rec.perms {
		if p.user == user {
			return p.typ, true, nil
		}
	}
	return "", false, nil
}

func (m *memSecrets) CountByCategory(ctx context.Context, category CategoryKey) (int, error) {
	m.mu.RLock()
	defer m.mu.RUnlock()
	n := 0
	for _, rec := range m.secrets {
		for _, link := range rec.links {
			if link == category {
				n++
				break
			}
		}
	}
	return n, nil
}

func (m *memSecrets) Delete(ctx context.Context, key SecretKey) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if _, ok := m.secrets[key]; !ok {
		return false, nil
	}
	delete(m.secrets, key)
	return true, nil
}

// assemble joins the record into a detached Secret. Caller holds the lock.
func (m *memSecrets) assemble(rec *secretRec) *Secret {
	out := rec.header
	out.Fields = make(map[string]string, len(rec.fields))
	for k, v := range rec.fields {
		out.Fields[k] = v
	}
	out.Permissions = make([]PermissionRow, 0, len(rec.perms))
	for _, p := range rec.perms {
		row := PermissionRow{UserKey: p.user, Type: p.typ}
		if u, ok := m.users[p.user]; ok {
			row.Login = u.Login
		}
		out.Permissions = append(out.Permissions, row)
	}
	out.Categories = append([]CategoryKey(nil), rec.links...)
	return &out
}

func (m *memSecrets) collect(keep func(*secretRec) bool) []*Secret {
	out := make([]*Secret, 0, len(m.secrets))
	for _, rec := range m.secrets {
		if keep(rec) {
			out = append(out, m.assemble(rec))
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Key < out[j].Key })
	return out
}
