package migrate

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
)

func writeFile(t *testing.T, dir, name, body string) {
	t.Helper()
	if err := os.WriteFile(filepath.Join(dir, name), []byte(body), 0o644); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

func newMock(t *testing.T) (*Manager, sqlmock.Sqlmock, string) {
	t.Helper()
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock.New: %v", err)
	}
	t.Cleanup(func() { db.Close() })
	dir := t.TempDir()
	return NewManager(db, dir, ""), mock, dir
}

func expectTables(mock sqlmock.Sqlmock) {
	mock.ExpectExec("create table if not exists schema_migrations").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("create table if not exists schema_seeds").
		WillReturnResult(sqlmock.NewResult(0, 0))
}

func TestUpSkipsAppliedAndRecordsNew(t *testing.T) {
	m, mock, dir := newMock(t)
	writeFile(t, dir, "0001_users.up.sql", "create table users (key bigserial);")
	writeFile(t, dir, "0002_categories.up.sql", "create table categories (key bigserial);")

	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).AddRow("0001_users.up.sql"))
	mock.ExpectBegin()
	mock.ExpectExec("create table categories").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectCommit()
	mock.ExpectExec("insert into schema_migrations").
		WithArgs("0002_categories.up.sql", sqlmock.AnyArg()).
		WillReturnResult(sqlmock.NewResult(0, 1))

	if err := m.Up(context.Background()); err != nil {
		t.Fatalf("Up: %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestUpRollsBackFailedFile(t *testing.T) {
	m, mock, dir := newMock(t)
	writeFile(t, dir, "0001_bad.up.sql", "create table a (x int);\ndrop table missing;")

	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations").
		WillReturnRows(sqlmock.NewRows([]string{"name"}))
	mock.ExpectBegin()
	mock.ExpectExec("create table a").
		WillReturnResult(sqlmock.NewResult(0, 0))
	mock.ExpectExec("drop table missing").
		WillReturnError(os.ErrNotExist)
	mock.ExpectRollback()

	err := m.Up(context.Background())
	if err == nil || !strings.Contains(err.Error(), "0001_bad.up.sql") {
		t.Fatalf("expected failure naming the file, got %v", err)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Fatalf("unmet expectations: %v", err)
	}
}

func TestStatusListsHistory(t *testing.T) {
	m, mock, _ := newMock(t)

	expectTables(mock)
	mock.ExpectQuery("select name from schema_migrations order by applied_at").
		WillReturnRows(sqlmock.NewRows([]string{"name"}).
			AddRow("0001_users.up.sql").
			AddRow("0002_categories.up.sql"))

	history, err := m.Status(context.Background())
	if err != nil {
		t.Fatalf("Status: %v", err)
	}
	if len(history) != 2 || history[0] != "0001_users.up.sql" {
		t.Fatalf("unexpected history: %v", history)
	}
}

func TestSplitStatementsIgnoresQuotedSemicolons(t *testing.T) {
	stmts := splitStatements("insert into t values ('a;b'); create index i on t (x);")
	if len(stmts) != 2 {
		t.Fatalf("expected 2 statements, got %d: %q", len(stmts), stmts)
	}
	if !strings.Contains(stmts[0], "'a;b'") {
		t.Fatalf("quoted semicolon split: %q", stmts[0])
	}
}
