package sqlrun_test

import (
	"context"
	"os"
	"path/filepath"
	"sync"
	"testing"

	"github.com/ieshan/sqlrun"
	"github.com/ieshan/sqlrun/drivers"
	"github.com/spf13/afero"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
)

func newTestManager(t *testing.T) (*sqlrun.ConnectionManager, string) {
	t.Helper()

	dbPath := filepath.Join(t.TempDir(), "test.db")
	m := sqlrun.NewConnectionManager()
	drivers.Register(m)
	m.SetDsn("test", sqlrun.DbSqlite, dbPath)
	t.Cleanup(func() { _ = m.CloseAll() })

	return m, dbPath
}

func writeSQL(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func tableNames(t *testing.T, db *gorm.DB) []string {
	t.Helper()
	var tables []string
	require.NoError(t, db.Raw("SELECT name FROM sqlite_master WHERE type='table' AND name NOT LIKE 'sqlite_%' ORDER BY name").Scan(&tables).Error)
	return tables
}

func countRows(t *testing.T, db *gorm.DB, table string) int64 {
	t.Helper()
	var count int64
	require.NoError(t, db.Table(table).Count(&count).Error)
	return count
}

func TestGetConnectionUnknownName(t *testing.T) {
	m := sqlrun.NewConnectionManager()

	_, err := m.GetConnection("missing")
	assert.ErrorContains(t, err, "config not found")
}

func TestGetConnectionUnknownDriver(t *testing.T) {
	m := sqlrun.NewConnectionManager()
	m.SetDsn("x", "oracle", "dsn")

	_, err := m.GetConnection("x")
	assert.ErrorContains(t, err, "connection function not found for driver oracle")
}

func TestGetConnectionIsShared(t *testing.T) {
	m, _ := newTestManager(t)

	var wg sync.WaitGroup
	conns := make([]*gorm.DB, 8)
	for i := range conns {
		wg.Add(1)
		go func() {
			defer wg.Done()
			conn, err := m.GetConnection("test")
			assert.NoError(t, err)
			conns[i] = conn
		}()
	}
	wg.Wait()

	for _, conn := range conns {
		assert.Same(t, conns[0], conn)
	}
}

func TestCloseAndReopen(t *testing.T) {
	m, _ := newTestManager(t)

	first, err := m.GetConnection("test")
	require.NoError(t, err)
	require.NoError(t, m.Close("test"))
	assert.ErrorContains(t, m.Close("test"), "not found")

	second, err := m.GetConnection("test")
	require.NoError(t, err)
	assert.NotSame(t, first, second)
}

func TestRunScriptRoundTrip(t *testing.T) {
	m, _ := newTestManager(t)
	script := writeSQL(t, "cats.sql", `
CREATE TABLE cats (
	id INTEGER PRIMARY KEY,
	name TEXT NOT NULL,
	breed TEXT,
	age INTEGER
);
INSERT INTO cats (name, breed, age) VALUES ('Maru', 'Scottish Fold', 3);
`)

	require.NoError(t, m.RunScript(context.Background(), "test", script))

	db, err := m.GetConnection("test")
	require.NoError(t, err)

	type cat struct {
		ID    int
		Name  string
		Breed string
		Age   int
	}
	var cats []cat
	require.NoError(t, db.Raw("SELECT id, name, breed, age FROM cats").Scan(&cats).Error)
	assert.Equal(t, []cat{{ID: 1, Name: "Maru", Breed: "Scottish Fold", Age: 3}}, cats)
}

func TestRunScriptLeavesEarlierStatementsApplied(t *testing.T) {
	m, _ := newTestManager(t)
	script := writeSQL(t, "broken.sql",
		"CREATE TABLE a (id INTEGER);\nCREATE TABLE broken (;\nCREATE TABLE c (id INTEGER);\n")

	err := m.RunScript(context.Background(), "test", script)
	require.Error(t, err)

	var stmtErr *sqlrun.StatementError
	require.ErrorAs(t, err, &stmtErr)
	assert.Equal(t, 2, stmtErr.Index)

	db, err := m.GetConnection("test")
	require.NoError(t, err)
	assert.Equal(t, []string{"a"}, tableNames(t, db))
}

func TestRunScriptUsesManagerFs(t *testing.T) {
	m, _ := newTestManager(t)
	fs := afero.NewMemMapFs()
	require.NoError(t, afero.WriteFile(fs, "/mem/schema.sql", []byte("CREATE TABLE mem (id INTEGER);"), 0o644))
	m.SetFs(fs)

	require.NoError(t, m.RunScript(context.Background(), "test", "/mem/schema.sql"))

	db, err := m.GetConnection("test")
	require.NoError(t, err)
	assert.Equal(t, []string{"mem"}, tableNames(t, db))
}

func TestRunScriptStrict(t *testing.T) {
	m, _ := newTestManager(t)
	script := writeSQL(t, "tail.sql", "CREATE TABLE a (id INTEGER); CREATE TABLE b (id INTEGER)")

	err := m.RunScript(context.Background(), "test", script, sqlrun.WithStrict())
	assert.ErrorIs(t, err, sqlrun.ErrUnterminated)

	db, err := m.GetConnection("test")
	require.NoError(t, err)
	assert.Empty(t, tableNames(t, db))
}

func TestRunMigrationRollsBack(t *testing.T) {
	m, _ := newTestManager(t)
	migration := writeSQL(t, "001.sql",
		"CREATE TABLE a (id INTEGER);\nINSERT INTO a VALUES (1);\nINSERT INTO missing VALUES (1);\n")

	err := m.RunMigration(context.Background(), "test", migration)
	require.Error(t, err)
	assert.ErrorContains(t, err, "001.sql")

	db, err := m.GetConnection("test")
	require.NoError(t, err)
	assert.Empty(t, tableNames(t, db))
}

func TestRunMigrationQuotedStatements(t *testing.T) {
	m, _ := newTestManager(t)
	migration := writeSQL(t, "002.sql", `
-- notes table
CREATE TABLE notes (body TEXT);
INSERT INTO notes VALUES ('first; with semicolon');
INSERT INTO notes VALUES ('it''s fine')
`)

	require.NoError(t, m.RunMigration(context.Background(), "test", migration))

	db, err := m.GetConnection("test")
	require.NoError(t, err)
	var bodies []string
	require.NoError(t, db.Raw("SELECT body FROM notes ORDER BY rowid").Scan(&bodies).Error)
	assert.Equal(t, []string{"first; with semicolon", "it's fine"}, bodies)
}

func TestRunMigrationSkipsComments(t *testing.T) {
	m, _ := newTestManager(t)
	migration := writeSQL(t, "003_comments.sql", `/*
  schema; v1
*/
CREATE TABLE a (id INTEGER); -- don't forget b
CREATE TABLE b (id INTEGER);
CREATE TABLE c (id INTEGER /* it's; fine */);
`)

	require.NoError(t, m.RunMigration(context.Background(), "test", migration))

	db, err := m.GetConnection("test")
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b", "c"}, tableNames(t, db))
}

func TestRunMigrationEmptyFile(t *testing.T) {
	m, _ := newTestManager(t)
	assert.NoError(t, m.RunMigration(context.Background(), "test", writeSQL(t, "empty.sql", "  \n")))
}

func TestRunMigrationOnce(t *testing.T) {
	m, _ := newTestManager(t)
	migration := writeSQL(t, "003.sql", "CREATE TABLE once (id INTEGER);")

	require.NoError(t, m.RunMigrationOnce(context.Background(), "test", migration))
	// a second real run would fail with "table once already exists"
	require.NoError(t, m.RunMigrationOnce(context.Background(), "test", migration))

	assert.Error(t, m.RunMigration(context.Background(), "test", migration))
}

func TestRunMigrationOnceRetriesFailures(t *testing.T) {
	m, _ := newTestManager(t)
	migration := writeSQL(t, "004.sql", "INSERT INTO later VALUES (1);")

	require.Error(t, m.RunMigrationOnce(context.Background(), "test", migration))

	db, err := m.GetConnection("test")
	require.NoError(t, err)
	require.NoError(t, db.Exec("CREATE TABLE later (id INTEGER)").Error)

	require.NoError(t, m.RunMigrationOnce(context.Background(), "test", migration))
	assert.Equal(t, int64(1), countRows(t, db, "later"))
}

func seedRelatedTables(t *testing.T, m *sqlrun.ConnectionManager) *gorm.DB {
	t.Helper()
	seed := writeSQL(t, "seed.sql", `
CREATE TABLE owners (id INTEGER PRIMARY KEY, name TEXT);
CREATE TABLE pets (id INTEGER PRIMARY KEY, owner_id INTEGER REFERENCES owners(id));
INSERT INTO owners VALUES (1, 'Ada');
INSERT INTO pets VALUES (1, 1);
`)
	require.NoError(t, m.RunScript(context.Background(), "test", seed))

	db, err := m.GetConnection("test")
	require.NoError(t, err)
	return db
}

func TestFlushAllTables(t *testing.T) {
	m, _ := newTestManager(t)
	db := seedRelatedTables(t, m)

	require.NoError(t, m.FlushAllTables(context.Background(), "test"))

	assert.Equal(t, []string{"owners", "pets"}, tableNames(t, db))
	assert.Zero(t, countRows(t, db, "owners"))
	assert.Zero(t, countRows(t, db, "pets"))
}

func TestDropAllTables(t *testing.T) {
	m, _ := newTestManager(t)
	db := seedRelatedTables(t, m)

	require.NoError(t, m.DropAllTables(context.Background(), "test"))
	assert.Empty(t, tableNames(t, db))
}

func TestDropAllTablesUnsupportedDriver(t *testing.T) {
	m := sqlrun.NewConnectionManager()
	m.AddConnectionFunc("oracle", func(dsn string) (*gorm.DB, error) {
		return drivers.OpenGorm(sqlrun.DbSqlite, filepath.Join(t.TempDir(), "o.db"))
	})
	m.SetDsn("o", "oracle", "ignored")
	t.Cleanup(func() { _ = m.CloseAll() })

	err := m.DropAllTables(context.Background(), "o")
	assert.ErrorContains(t, err, "unsupported database driver: oracle")
}

func TestResetTablesNeedingQuotes(t *testing.T) {
	m, _ := newTestManager(t)
	seed := writeSQL(t, "quoted.sql", `
CREATE TABLE "order items" (id INTEGER);
CREATE TABLE "group" (id INTEGER);
INSERT INTO "order items" VALUES (1);
INSERT INTO "group" VALUES (1);
`)
	require.NoError(t, m.RunScript(context.Background(), "test", seed))

	db, err := m.GetConnection("test")
	require.NoError(t, err)

	require.NoError(t, m.FlushAllTables(context.Background(), "test"))
	var count int64
	require.NoError(t, db.Raw(`SELECT (SELECT count(*) FROM "order items") + (SELECT count(*) FROM "group")`).Scan(&count).Error)
	assert.Zero(t, count)

	require.NoError(t, m.DropAllTables(context.Background(), "test"))
	assert.Empty(t, tableNames(t, db))
}

func TestGetManagerIsSingleton(t *testing.T) {
	assert.Same(t, sqlrun.GetManager(), sqlrun.GetManager())
}
