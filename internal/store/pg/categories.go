package pg

import (
	"context"
	"database/sql"
	"errors"

	"sandyq.org/internal/vault"
)

type categoryStore struct{ db *sql.DB }

func (s *categoryStore) q(ctx context.Context) querier { return querierFrom(ctx, s.db) }

const categoryColumns = `key, name, created_at`

func (s *categoryStore) GetByKey(ctx context.Context, key vault.CategoryKey) (*vault.Category, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`select `+categoryColumns+` from categories where key=$1`, key)
	return scanCategory(row)
}

func (s *categoryStore) GetByKeys(ctx context.Context, keys []vault.CategoryKey) ([]*vault.Category, error) {
	out := make([]*vault.Category, 0, len(keys))
	for _, key := range keys {
		c, err := s.GetByKey(ctx, key)
		if errors.Is(err, vault.ErrCategoryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, c)
	}
	return out, nil
}

func (s *categoryStore) GetByName(ctx context.Context, name string) (*vault.Category, error) {
	row := s.q(ctx).QueryRowContext(ctx,
		`select `+categoryColumns+` from categories where name=$1`, name)
	return scanCategory(row)
}

func (s *categoryStore) GetByNames(ctx context.Context, names []string) (map[string]*vault.Category, error) {
	out := make(map[string]*vault.Category, len(names))
	for _, name := range names {
		if _, ok := out[name]; ok {
			continue
		}
		c, err := s.GetByName(ctx, name)
		if errors.Is(err, vault.ErrCategoryNotFound) {
			continue
		}
		if err != nil {
			return nil, err
		}
		out[name] = c
	}
	return out, nil
}

func (s *categoryStore) List(ctx context.Context) ([]*vault.Category, error) {
	rows, err := s.q(ctx).QueryContext(ctx,
		`select `+categoryColumns+` from categories order by key`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var cats []*vault.Category
	for rows.Next() {
		c, err := scanCategory(rows)
		if err != nil {
			return nil, err
		}
		cats = append(cats, c)
	}
	return cats, rows.Err()
}

func (s *categoryStore) Create(ctx context.Context, c *vault.Category) (vault.CategoryKey, error) {
	var key vault.CategoryKey
	err := s.q(ctx).QueryRowContext(ctx,
		`insert into categories(name, created_at) values($1,$2) returning key`,
		c.Name, c.CreatedAt,
	).Scan(&key)
	if err != nil {
		return 0, uniqueViolation(err)
	}
	return key, nil
}

func (s *categoryStore) Replace(ctx context.Context, c *vault.Category) (bool, error) {
	res, err := s.q(ctx).ExecContext(ctx,
		`update categories set name=$2 where key=$1`, c.Key, c.Name)
	if err != nil {
		return false, uniqueViolation(err)
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func (s *categoryStore) Delete(ctx context.Context, key vault.CategoryKey) (bool, error) {
	res, err := s.q(ctx).ExecContext(ctx, `delete from categories where key=$1`, key)
	if err != nil {
		return false, err
	}
	n, err := res.RowsAffected()
	return n > 0, err
}

func scanCategory(row rowScanner) (*vault.Category, error) {
	var c vault.Category
	if err := row.Scan(&c.Key, &c.Name, &c.CreatedAt); err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, vault.ErrCategoryNotFound
		}
		return nil, err
	}
	return &c, nil
}
