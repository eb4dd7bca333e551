package pg

import (
	"context"
	"database/sql"
	"errors"

	"sandyq.org/internal/vault"
)

type secretStore struct{ db *sql.DB }

func (s *secretStore) q(ctx context.Context) querier { return querierFrom(ctx, s.db) }

const secretColumns = `key, name, description, visibility, created_at`

func (s *secretStore) GetByKey(ctx context.Context, key vault.SecretKey) (*vault.Secret, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`select `+secretColumns+` from secrets where key=$1`, key)
	sec, err := scanSecretHeader(row)
	if err != nil {
		return nil, err
	}
	if err := s.fill(ctx, sec); err != nil {
		return nil, err
	}
	return sec, nil
}

func (s *secretStore) List(ctx context.Context) ([]*vault.Secret, error) {
	return s.list(ctx, `select `+secretColumns+` from secrets order by key`)
}

func (s *secretStore) ListVisibleTo(ctx context.Context, user vault.UserKey) ([]*vault.Secret, error) {
	return s.list(ctx,
		`select `+secretColumns+` from secrets
		 where visibility in ('public','discoverable')
		    or exists (select 1 from secret_permissions p
		               where p.secret_key = secrets.key and p.user_key = $1)
		 order by key`, user)
}

func (s *secretStore) list(ctx context.Context, query string, args ...any) ([]*vault.Secret, error) {
	rows, err := s.q(ctx).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	var secrets []*vault.Secret
	for rows.Next() {
		sec, err := scanSecretHeader(rows)
		if err != nil {
			rows.Close()
			return nil, err
		}
		secrets = append(secrets, sec)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()
	for _, sec := range secrets {
		if err := s.fill(ctx, sec); err != nil {
			return nil, err
		}
	}
	return secrets, nil
}

// fill loads the child tables of an already scanned header.
func (s *secretStore) fill(ctx context.Context, sec *vault.Secret) error {
	fields, err := s.q(ctx).QueryContext(ctx,
		`select name, value from secret_fields where secret_key=$1 order by name`, sec.Key)
	if err != nil {
		return err
	}
	sec.Fields = map[string]string{}
	for fields.Next() {
		var name, value string
		if err := fields.Scan(&name, &value); err != nil {
			fields.Close()
			return err
		}
		sec.Fields[name] = value
	}
	if err := fields.Err(); err != nil {
		fields.Close()
		return err
	}
	fields.Close()

	perms, err := s.q(ctx).QueryContext(ctx,
		`select p.user_key, u.login, p.permission
		   from secret_permissions p join users u on u.key = p.user_key
		  where p.secret_key=$1 order by p.user_key`, sec.Key)
	if err != nil {
		return err
	}
	sec.Permissions = nil
	for perms.Next() {
		var row vault.PermissionRow
		if err := perms.Scan(&row.UserKey, &row.Login, &row.Type); err != nil {
			perms.Close()
			return err
		}
		sec.Permissions = append(sec.Permissions, row)
	}
	if err := perms.Err(); err != nil {
		perms.Close()
		return err
	}
	perms.Close()

	links, err := s.q(ctx).QueryContext(ctx,
		`select category_key from secret_categories where secret_key=$1 order by category_key`, sec.Key)
	if err != nil {
		return err
	}
	defer links.Close()
	sec.Categories = nil
	for links.Next() {
		var key vault.CategoryKey
		if err := links.Scan(&key); err != nil {
			return err
		}
		sec.Categories = append(sec.Categories, key)
	}
	return links.Err()
}

func (s *secretStore) Create(ctx context.Context, sec *vault.Secret) (vault.SecretKey, error) {
	var key vault.SecretKey
	err := s.q(ctx).QueryRowContext(ctx,
		`insert into secrets(name, description, visibility, created_at)
		 values($1,$2,$3,$4) returning key`,
		sec.Name, sec.Description, string(sec.Visibility), sec.CreatedAt,
	).Scan(&key)
	if err != nil {
		return 0, err
	}
	return key, nil
}

func (s *secretStore) ReplaceHeader(ctx context.Context, sec *vault.Secret) (bool, error) {
	res, err := s.q(ctx).ExecContext(ctx,
		`update secrets set name=$2, description=$3, visibility=$4 where key=$1`,
		sec.Key, sec.Name, sec.Description, string(sec.Visibility))
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *secretStore) ClearFieldsAndLinks(ctx context.Context, key vault.SecretKey) error {
	for _, q := range []string{
		`delete from secret_fields where secret_key=$1`,
		`delete from secret_permissions where secret_key=$1`,
		`delete from secret_categories where secret_key=$1`,
	} {
		if _, err := s.q(ctx).ExecContext(ctx, q, key); err != nil {
			return err
		}
	}
	return nil
}

func (s *secretStore) AddField(ctx context.Context, key vault.SecretKey, name, value string) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`insert into secret_fields(secret_key, name, value) values($1,$2,$3)`,
		key, name, value)
	return err
}

func (s *secretStore) AddPermission(ctx context.Context, key vault.SecretKey, user vault.UserKey, p vault.PermissionType) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`insert into secret_permissions(secret_key, user_key, permission) values($1,$2,$3)`,
		key, user, string(p))
	return err
}

func (s *secretStore) AddCategoryLink(ctx context.Context, key vault.SecretKey, category vault.CategoryKey) error {
	_, err := s.q(ctx).ExecContext(ctx,
		`insert into secret_categories(secret_key, category_key) values($1,$2)`,
		key, category)
	return err
}

func (s *secretStore) FindPermission(ctx context.Context, key vault.SecretKey, user vault.UserKey) (vault.PermissionType, bool, error) {
	var p vault.PermissionType
	err := s.q(ctx).QueryRowContext(ctx,
		`select permission from secret_permissions where secret_key=$1 and user_key=$2`,
		key, user).Scan(&p)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, err
	}
	return p, true, nil
}

func (s *secretStore) CountByCategory(ctx context.Context, category vault.CategoryKey) (int, error) {
	var n int
	err := s.q(ctx).QueryRowContext(ctx,
		`select count(*) from secret_categories where category_key=$1`, category).Scan(&n)
	return n, err
}

func (s *secretStore) Delete(ctx context.Context, key vault.SecretKey) (bool, error) {
	res, err := s.q(ctx).ExecContext(ctx, `delete from secrets where key=$1`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanSecretHeader(row rowScanner) (*vault.Secret, error) {
	var (
		sec vault.Secret
		vis string
	)
	if err := row.Scan(&sec.Key, &sec.Name, &sec.Description, &vis, &sec.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vault.ErrSecretNotFound
		}
		return nil, err
	}
	sec.Visibility = vault.Visibility(vis)
	return &sec, nil
}
