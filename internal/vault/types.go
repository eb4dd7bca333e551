// Package vault implements the sandyq authorization and consistency engine:
// users, categories and secrets, plus the fixed check ordering every
// operation follows (session -> ban -> role -> shape -> existence -> mutation).
package vault

import "time"

// UserKey, CategoryKey and SecretKey are distinct types on purpose so a key
// of one entity cannot be handed to another entity's lookup.
type (
	UserKey     int64
	CategoryKey int64
	SecretKey   int64
)

// AccessLevel is the system-wide role of a user. Ordering matters:
// a banned account is below normal, admin is above everything.
type AccessLevel int

const (
	LevelBanned AccessLevel = iota
	LevelNormal
	LevelAdmin
)

func (l AccessLevel) String() string {
	switch l {
	case LevelBanned:
		return "banned"
	case LevelNormal:
		return "normal"
	case LevelAdmin:
		return "admin"
	default:
		return "unknown"
	}
}

// ParseAccessLevel maps the wire representation back to a level.
func ParseAccessLevel(s string) (AccessLevel, bool) {
	switch s {
	case "banned":
		return LevelBanned, true
	case "normal":
		return LevelNormal, true
	case "admin":
		return LevelAdmin, true
	default:
		return 0, false
	}
}

// Visibility governs whether a secret's existence and fields are exposed to
// users without an explicit permission row.
type Visibility string

const (
	VisibilityPublic       Visibility = "public"
	VisibilityDiscoverable Visibility = "discoverable"
	VisibilityConfidential Visibility = "confidential"
)

// Valid reports whether v is one of the three known tiers.
func (v Visibility) Valid() bool {
	switch v {
	case VisibilityPublic, VisibilityDiscoverable, VisibilityConfidential:
		return true
	}
	return false
}

// PermissionType governs what an explicitly listed user may do to a secret.
type PermissionType string

const (
	PermissionReadOnly  PermissionType = "read_only"
	PermissionReadWrite PermissionType = "read_write"
	PermissionOwner     PermissionType = "owner"
)

func (p PermissionType) Valid() bool {
	switch p {
	case PermissionReadOnly, PermissionReadWrite, PermissionOwner:
		return true
	}
	return false
}

// CanWrite reports whether the permission allows mutation.
func (p PermissionType) CanWrite() bool {
	return p == PermissionReadWrite || p == PermissionOwner
}

// User is an account known to the vault. Login uniqueness is case-sensitive.
type User struct {
	Key          UserKey     `json:"key"`
	Login        string      `json:"login"`
	Level        AccessLevel `json:"access_level"`
	PasswordHash string      `json:"-"`
	CreatedAt    time.Time   `json:"created_at"`
}

// Category is a tag attachable to secrets. Name uniqueness is case-sensitive.
type Category struct {
	Key       CategoryKey `json:"key"`
	Name      string      `json:"name"`
	CreatedAt time.Time   `json:"created_at"`
}

// PermissionRow is one entry of a secret's permission table. Login is carried
// alongside the key so permission maps can be compared and rendered without a
// second lookup.
type PermissionRow struct {
	UserKey UserKey        `json:"user_key"`
	Login   string         `json:"login"`
	Type    PermissionType `json:"type"`
}

// Secret is the protected resource: a named record with arbitrary field data,
// category tags and a per-user permission table.
type Secret struct {
	Key         SecretKey         `json:"key"`
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Visibility  Visibility        `json:"visibility"`
	Fields      map[string]string `json:"fields"`
	Categories  []CategoryKey     `json:"categories"`
	Permissions []PermissionRow   `json:"permissions"`
	CreatedAt   time.Time         `json:"created_at"`
}

// permissionFor returns the caller's permission row, if any.
func (s *Secret) permissionFor(key UserKey) (PermissionType, bool) {
	for _, row := range s.Permissions {
		if row.UserKey == key {
			return row.Type, true
		}
	}
	return "", false
}

// SecretHeader is the listing projection of a secret: everything except
// fields and the permission table.
type SecretHeader struct {
	Key         SecretKey     `json:"key"`
	Name        string        `json:"name"`
	Description string        `json:"description"`
	Visibility  Visibility    `json:"visibility"`
	Categories  []CategoryKey `json:"categories"`
	CreatedAt   time.Time     `json:"created_at"`
}

// Header builds the listing projection.
func (s *Secret) Header() SecretHeader {
	return SecretHeader{
		Key:         s.Key,
		Name:        s.Name,
		Description: s.Description,
		Visibility:  s.Visibility,
		Categories:  s.Categories,
		CreatedAt:   s.CreatedAt,
	}
}

// Grant names one user's permission inside a SecretInput. Grants are a slice,
// not a map: order determines which unresolved login is reported first.
type Grant struct {
	Login string         `json:"login"`
	Type  PermissionType `json:"type"`
}

// SecretInput is the wholesale payload for create and update. Header, fields,
// categories and permissions are always replaced together, never patched.
type SecretInput struct {
	Name        string            `json:"name"`
	Description string            `json:"description"`
	Visibility  Visibility        `json:"visibility"`
	Fields      map[string]string `json:"fields"`
	Categories  []string          `json:"categories"`
	Permissions []Grant           `json:"permissions"`
}
