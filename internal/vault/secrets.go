package vault

import (
	"context"
	"fmt"
	"sort"
	"time"
)

// SecretService owns secrets, their visibility tier, field data and per-user
// permission tables. Every operation resolves the caller through the user
// service first, then walks the fixed check order: write access, input
// shape, permission-map resolution, category resolution, mutation.
type SecretService struct {
	store      SecretStore
	users      *UserService
	categories *CategoryService
	tx         TxRunner
	now        func() time.Time
}

// NewSecretService constructs the service over its collaborators.
func NewSecretService(st Store, users *UserService, categories *CategoryService) *SecretService {
	return &SecretService{store: st.Secrets(), users: users, categories: categories, tx: st, now: time.Now}
}

// Create stores a new secret. Unless the caller is an admin, the permission
// list must name the caller as owner. Permission logins resolve before
// category names; shape defects win over both.
func (s *SecretService) Create(ctx context.Context, caller UserKey, in SecretInput) (*Secret, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (*Secret, error) {
		user, err := s.users.ResolveActive(ctx, caller)
		if err != nil {
			return nil, err
		}
		if err := validateInput(&in); err != nil {
			return nil, err
		}
		if user.Level != LevelAdmin && !grantsOwner(in.Permissions, user.Login) {
			return nil, fmt.Errorf("%w: creator must hold the owner permission", ErrInvalidValue)
		}
		rows, err := s.resolveGrants(ctx, in.Permissions)
		if err != nil {
			return nil, err
		}
		cats, err := s.categories.resolveNames(ctx, in.Categories)
		if err != nil {
			return nil, err
		}
		sec := &Secret{
			Name:        in.Name,
			Description: in.Description,
			Visibility:  in.Visibility,
			CreatedAt:   s.now().UTC(),
		}
		key, err := s.store.Create(ctx, sec)
		if err != nil {
			return nil, storageErr(err)
		}
		sec.Key = key
		if err := s.writeChildren(ctx, sec, in.Fields, rows, cats); err != nil {
			return nil, err
		}
		return sec, nil
	})
}

// Update replaces a secret wholesale: header, fields, categories and
// permissions together. Only owners may touch the permission table, and an
// owner may not strip their own owner row in the same call. The replace runs
// in one transaction, so a failed rewrite never leaves the secret without its
// fields or permission table.
func (s *SecretService) Update(ctx context.Context, caller UserKey, key SecretKey, in SecretInput) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.users.ResolveActive(ctx, caller)
		if err != nil {
			return err
		}
		sec, err := s.store.GetByKey(ctx, key)
		if err != nil {
			return storageErr(err)
		}
		if err := s.canWrite(sec, user, false); err != nil {
			return err
		}
		wasOwner := false
		if p, ok := sec.permissionFor(user.Key); ok {
			wasOwner = p == PermissionOwner
		}
		if err := validateInput(&in); err != nil {
			return err
		}
		if wasOwner && !grantsOwner(in.Permissions, user.Login) {
			return fmt.Errorf("%w: owner may not drop their own owner permission", ErrInvalidValue)
		}
		if user.Level != LevelAdmin && !wasOwner && grantsChanged(sec.Permissions, in.Permissions) {
			return fmt.Errorf("%w: only owners may alter permissions", ErrPermissionDenied)
		}
		rows, err := s.resolveGrants(ctx, in.Permissions)
		if err != nil {
			return err
		}
		cats, err := s.categories.resolveNames(ctx, in.Categories)
		if err != nil {
			return err
		}
		sec.Name = in.Name
		sec.Description = in.Description
		sec.Visibility = in.Visibility
		found, err := s.store.ReplaceHeader(ctx, sec)
		if err != nil {
			return storageErr(err)
		}
		if !found {
			return ErrSecretNotFound
		}
		if err := s.store.ClearFieldsAndLinks(ctx, sec.Key); err != nil {
			return storageErr(err)
		}
		return s.writeChildren(ctx, sec, in.Fields, rows, cats)
	})
}

// Delete removes a secret. Owner or admin only. Child rows cascade inside
// the store.
func (s *SecretService) Delete(ctx context.Context, caller UserKey, key SecretKey) error {
	return s.tx.InTx(ctx, func(ctx context.Context) error {
		user, err := s.users.ResolveActive(ctx, caller)
		if err != nil {
			return err
		}
		sec, err := s.store.GetByKey(ctx, key)
		if err != nil {
			return storageErr(err)
		}
		if err := s.canWrite(sec, user, true); err != nil {
			return err
		}
		found, err := s.store.Delete(ctx, key)
		if err != nil {
			return storageErr(err)
		}
		if !found {
			return ErrSecretNotFound
		}
		return nil
	})
}

// Get returns a secret after visibility resolution:
//
//	public        - full content for every active user
//	discoverable  - header and categories for everyone, fields only with a
//	                permission row
//	confidential  - reported as not found without a permission row, since
//	                existence itself is secret
func (s *SecretService) Get(ctx context.Context, caller UserKey, key SecretKey) (*Secret, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (*Secret, error) {
		user, err := s.users.ResolveActive(ctx, caller)
		if err != nil {
			return nil, err
		}
		sec, err := s.store.GetByKey(ctx, key)
		if err != nil {
			return nil, storageErr(err)
		}
		if user.Level == LevelAdmin {
			return sec, nil
		}
		if _, ok := sec.permissionFor(user.Key); ok {
			return sec, nil
		}
		switch sec.Visibility {
		case VisibilityPublic:
			return sec, nil
		case VisibilityDiscoverable:
			redacted := *sec
			redacted.Fields = map[string]string{}
			redacted.Permissions = nil
			return &redacted, nil
		default:
			return nil, ErrSecretNotFound
		}
	})
}

// GetUnauthenticated bypasses every role and visibility check. For trusted
// internal callers only; never reachable from transport.
func (s *SecretService) GetUnauthenticated(ctx context.Context, key SecretKey) (*Secret, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) (*Secret, error) {
		sec, err := s.store.GetByKey(ctx, key)
		if err != nil {
			return nil, storageErr(err)
		}
		return sec, nil
	})
}

// List returns secret headers ordered by key. Admins see everything; other
// callers see secrets where they hold a permission row or the tier is
// public/discoverable.
func (s *SecretService) List(ctx context.Context, caller UserKey) ([]SecretHeader, error) {
	return inTx(ctx, s.tx, func(ctx context.Context) ([]SecretHeader, error) {
		user, err := s.users.ResolveActive(ctx, caller)
		if err != nil {
			return nil, err
		}
		var secs []*Secret
		if user.Level == LevelAdmin {
			secs, err = s.store.List(ctx)
		} else {
			secs, err = s.store.ListVisibleTo(ctx, user.Key)
		}
		if err != nil {
			return nil, storageErr(err)
		}
		headers := make([]SecretHeader, 0, len(secs))
		for _, sec := range secs {
			headers = append(headers, sec.Header())
		}
		return headers, nil
	})
}

// Search is declared by the contract but has no agreed filter semantics yet.
func (s *SecretService) Search(ctx context.Context, caller UserKey, query string) ([]SecretHeader, error) {
	if _, err := s.users.ResolveActive(ctx, caller); err != nil {
		return nil, err
	}
	return nil, fmt.Errorf("%w: search", ErrNotImplemented)
}

// canWrite resolves write access. Admins always pass. Without a permission
// row a confidential secret stays hidden (not found, not denied); with one,
// the acceptable set is owner only or owner/read_write depending on ownerOnly.
func (s *SecretService) canWrite(sec *Secret, user *User, ownerOnly bool) error {
	if user.Level == LevelAdmin {
		return nil
	}
	perm, ok := sec.permissionFor(user.Key)
	if !ok {
		if sec.Visibility == VisibilityConfidential {
			return ErrSecretNotFound
		}
		return ErrPermissionDenied
	}
	if ownerOnly {
		if perm != PermissionOwner {
			return ErrPermissionDenied
		}
		return nil
	}
	if !perm.CanWrite() {
		return ErrPermissionDenied
	}
	return nil
}

// resolveGrants maps grant logins to stored users, in grant order, failing
// on the first login that does not resolve.
func (s *SecretService) resolveGrants(ctx context.Context, grants []Grant) ([]PermissionRow, error) {
	if len(grants) == 0 {
		return nil, nil
	}
	logins := make([]string, 0, len(grants))
	for _, g := range grants {
		logins = append(logins, g.Login)
	}
	byLogin, err := s.users.store.GetByLogins(ctx, logins)
	if err != nil {
		return nil, storageErr(err)
	}
	rows := make([]PermissionRow, 0, len(grants))
	for _, g := range grants {
		u, ok := byLogin[g.Login]
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrUserNotFound, g.Login)
		}
		rows = append(rows, PermissionRow{UserKey: u.Key, Login: u.Login, Type: g.Type})
	}
	return rows, nil
}

// writeChildren replaces the secret's dependent rows and fills the returned
// entity. Field names are written in sorted order so repeated listings stay
// deterministic.
func (s *SecretService) writeChildren(ctx context.Context, sec *Secret, fields map[string]string, rows []PermissionRow, cats []*Category) error {
	names := make([]string, 0, len(fields))
	for name := range fields {
		names = append(names, name)
	}
	sort.Strings(names)
	for _, name := range names {
		if err := s.store.AddField(ctx, sec.Key, name, fields[name]); err != nil {
			return storageErr(err)
		}
	}
	for _, row := range rows {
		if err := s.store.AddPermission(ctx, sec.Key, row.UserKey, row.Type); err != nil {
			return storageErr(err)
		}
	}
	keys := make([]CategoryKey, 0, len(cats))
	for _, cat := range cats {
		if err := s.store.AddCategoryLink(ctx, sec.Key, cat.Key); err != nil {
			return storageErr(err)
		}
		keys = append(keys, cat.Key)
	}
	if fields == nil {
		fields = map[string]string{}
	}
	sec.Fields = fields
	sec.Permissions = rows
	sec.Categories = keys
	return nil
}

// validateInput checks value shape: known visibility tier, known permission
// types, no duplicate grant logins, no duplicate category names.
func validateInput(in *SecretInput) error {
	if !in.Visibility.Valid() {
		return fmt.Errorf("%w: visibility %q", ErrInvalidValue, in.Visibility)
	}
	seenLogins := make(map[string]struct{}, len(in.Permissions))
	for _, g := range in.Permissions {
		if !g.Type.Valid() {
			return fmt.Errorf("%w: permission type %q", ErrInvalidValue, g.Type)
		}
		if _, dup := seenLogins[g.Login]; dup {
			return fmt.Errorf("%w: duplicate permission login %q", ErrInvalidValue, g.Login)
		}
		seenLogins[g.Login] = struct{}{}
	}
	seenNames := make(map[string]struct{}, len(in.Categories))
	for _, name := range in.Categories {
		if _, dup := seenNames[name]; dup {
			return fmt.Errorf("%w: duplicate category %q", ErrInvalidValue, name)
		}
		seenNames[name] = struct{}{}
	}
	return nil
}

// grantsOwner reports whether the grant list names login as owner.
func grantsOwner(grants []Grant, login string) bool {
	for _, g := range grants {
		if g.Login == login && g.Type == PermissionOwner {
			return true
		}
	}
	return false
}

// grantsChanged compares the stored permission table against the incoming
// grant list as sets of (login, type). Both sides are duplicate-free.
func grantsChanged(rows []PermissionRow, grants []Grant) bool {
	if len(rows) != len(grants) {
		return true
	}
	byLogin := make(map[string]PermissionType, len(rows))
	for _, row := range rows {
		byLogin[row.Login] = row.Type
	}
	for _, g := range grants {
		if byLogin[g.Login] != g.Type {
			return true
		}
	}
	return false
}
