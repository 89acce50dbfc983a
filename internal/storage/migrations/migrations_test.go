package migrations

import (
	"strings"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSplitStatements(t *testing.T) {
	input := `-- header comment
CREATE TABLE a (x String);

-- second; with a semicolon
CREATE TABLE b (y String DEFAULT 'a;b', z String DEFAULT 'it''s')
ENGINE = MergeTree();
`
	stmts, err := splitStatements(input)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x String)", stmts[0])
	assert.True(t, strings.HasPrefix(stmts[1], "CREATE TABLE b"))
	assert.Contains(t, stmts[1], "'a;b'")
	assert.Contains(t, stmts[1], "'it''s'")
}

func TestSplitStatementsUnterminatedString(t *testing.T) {
	_, err := splitStatements(`SELECT 'open;`)
	assert.ErrorIs(t, err, errUnterminatedString)
}

func TestDatabaseFromDSN(t *testing.T) {
	db, err := databaseFromDSN("clickhouse://localhost:9000/phoenix")
	require.NoError(t, err)
	assert.Equal(t, "phoenix", db)

	_, err = databaseFromDSN("://bad")
	assert.Error(t, err)
}

func TestParseFileName(t *testing.T) {
	v, name, err := parseFileName("003_alerts.sql")
	require.NoError(t, err)
	assert.Equal(t, 3, v)
	assert.Equal(t, "alerts", name)

	for _, bad := range []string{"alerts.sql", "x_alerts.sql", "000_zero.sql", "004_.sql"} {
		_, _, err := parseFileName(bad)
		assert.Error(t, err, bad)
	}
}

func TestLoadOrdersAndRejectsDuplicates(t *testing.T) {
	fsys := fstest.MapFS{
		"m/010_later.sql":  {Data: []byte("SELECT 10;")},
		"m/002_second.sql": {Data: []byte("SELECT 2;")},
		"m/README.md":      {Data: []byte("ignored")},
	}
	got, err := load(fsys, "m")
	require.NoError(t, err)
	require.Len(t, got, 2)
	assert.Equal(t, 2, got[0].Version)
	assert.Equal(t, "later", got[1].Name)

	fsys["m/002_again.sql"] = &fstest.MapFile{Data: []byte("SELECT 2;")}
	_, err = load(fsys, "m")
	assert.Error(t, err)
}

func TestPending(t *testing.T) {
	all := []Migration{{Version: 1}, {Version: 2}, {Version: 3}}
	got := pending(all, map[int]bool{1: true, 3: true})
	require.Len(t, got, 1)
	assert.Equal(t, 2, got[0].Version)
}

func TestEmbeddedMigrations(t *testing.T) {
	pg, err := Postgres()
	require.NoError(t, err)
	require.Len(t, pg, 5)
	for i, m := range pg {
		assert.Equal(t, i+1, m.Version)
	}
	assert.Equal(t, "tokens", pg[0].Name)
	assert.Equal(t, "alert_delivery_attempts", pg[4].Name)

	ch, err := ClickHouse()
	require.NoError(t, err)
	require.NotEmpty(t, ch)
	for _, m := range ch {
		stmts, err := splitStatements(m.SQL)
		require.NoError(t, err, m.Name)
		assert.NotEmpty(t, stmts, m.Name)
	}
}
