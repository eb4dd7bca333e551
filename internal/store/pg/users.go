package pg

import (
	"context"
	"database/sql"
	"errors"

	"sandyq.org/internal/vault"
)

type userStore struct{ db *sql.DB }

func (s *userStore) q(ctx context.Context) querier { return querierFrom(ctx, s.db) }

const userColumns = `key, login, access_level, password_hash, created_at`

func (s *userStore) GetByKey(ctx context.Context, key vault.UserKey) (*vault.User, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`select `+userColumns+` from users where key=$1`, key)
	return scanUser(row)
}

func (s *userStore) GetByKeys(ctx context.Context, keys []vault.UserKey) ([]*vault.User, error) {
	out := make([]*vault.User, 0, len(keys))
	for _, key := range keys {
		u, err := s.GetByKey(ctx, key)
		if errors.Is(err, vault.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, u)
	}
	return out, nil
}

func (s *userStore) GetByLogin(ctx context.Context, login string) (*vault.User, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`select `+userColumns+` from users where login=$1`, login)
	return scanUser(row)
}

func (s *userStore) GetByLogins(ctx context.Context, logins []string) (map[string]*vault.User, error) {
	out := make(map[string]*vault.User, len(logins))
	for _, login := range logins {
		if _, ok := out[login]; ok {
			continue
		}
		u, err := s.GetByLogin(ctx, login)
		if errors.Is(err, vault.ErrUserNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[login] = u
	}
	return out, nil
}

func (s *userStore) List(ctx context.Context) ([]*vault.User, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`select `+userColumns+` from users order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var users []*vault.User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	return users, rows.Err()
}

func (s *userStore) Count(ctx context.Context) (int, error) {
	var n int
	err := s.q(ctx).QueryRowContext(ctx, `select count(*) from users`).Scan(&n)
	return n, err
}

func (s *userStore) Create(ctx context.Context, u *vault.User) (vault.UserKey, error) {
	var key vault.UserKey
	err := s.q(ctx).QueryRowContext(ctx,
		`insert into users(login, access_level, password_hash, created_at)
		 values($1,$2,$3,$4) returning key`,
		u.Login, u.Level.String(), u.PasswordHash, u.CreatedAt,
	).Scan(&key)
	if err != nil {
		return 0, uniqueViolation(err)
	}
	return key, nil
}

func (s *userStore) Replace(ctx context.Context, u *vault.User) (bool, error) {
	res, err := s.q(ctx).ExecContext(ctx,
		`update users set login=$2, access_level=$3, password_hash=$4 where key=$1`,
		u.Key, u.Login, u.Level.String(), u.PasswordHash,
	)
	if err != nil {
		return false, uniqueViolation(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *userStore) Delete(ctx context.Context, key vault.UserKey) (bool, error) {
	res, err := s.q(ctx).ExecContext(ctx, `delete from users where key=$1`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

type rowScanner interface {
	Scan(dest ...any) error
}

func scanUser(row rowScanner) (*vault.User, error) {
	var (
		u     vault.User
		level string
	)
	if err := row.Scan(&u.Key, &u.Login, &level, &u.PasswordHash, &u.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vault.ErrUserNotFound
		}
		return nil, err
	}
	parsed, ok := vault.ParseAccessLevel(level)
	if !ok {
		return nil, errors.New("pg: malformed access_level value")
	}
	u.Level = parsed
	return &u, nil
}
