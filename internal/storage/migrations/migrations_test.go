package migrations

import (
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestReadMigrations_Embedded(t *testing.T) {
	files, err := readMigrations(PostgresFS, "postgres")
	require.NoError(t, err)
	require.Len(t, files, 3)
	assert.Equal(t, "001_vaults.sql", files[0].name)
	assert.Equal(t, "002_asset_ledger.sql", files[1].name)
	assert.Equal(t, "003_vault_events.sql", files[2].name)
	assert.Equal(t, []int{1, 2, 3}, []int{files[0].version, files[1].version, files[2].version})

	files, err = readMigrations(ClickhouseFS, "clickhouse")
	require.NoError(t, err)
	require.Len(t, files, 2)
}

func TestReadMigrations_OrdersByVersion(t *testing.T) {
	fsys := fstest.MapFS{
		"m/10_late.sql": {Data: []byte("SELECT 10")},
		"m/2_early.sql": {Data: []byte("SELECT 2")},
		"m/3_empty.sql": {Data: []byte("  \n")},
		"m/README.md":   {Data: []byte("ignored")},
	}
	files, err := readMigrations(fsys, "m")
	require.NoError(t, err)
	require.Len(t, files, 2)
	assert.Equal(t, "2_early.sql", files[0].name)
	assert.Equal(t, "10_late.sql", files[1].name)
}

func TestReadMigrations_BadNames(t *testing.T) {
	tests := []struct {
		name string
		fsys fstest.MapFS
	}{
		{"no prefix", fstest.MapFS{"m/vaults.sql": {Data: []byte("SELECT 1")}}},
		{"non numeric", fstest.MapFS{"m/abc_vaults.sql": {Data: []byte("SELECT 1")}}},
		{"zero", fstest.MapFS{"m/000_vaults.sql": {Data: []byte("SELECT 1")}}},
		{"duplicate", fstest.MapFS{
			"m/001_a.sql": {Data: []byte("SELECT 1")},
			"m/01_b.sql":  {Data: []byte("SELECT 2")},
		}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := readMigrations(tt.fsys, "m")
			assert.Error(t, err)
		})
	}
}

func TestPending(t *testing.T) {
	all := []migration{{version: 1, name: "a"}, {version: 2, name: "b"}, {version: 3, name: "c"}}

	got := pending(all, map[int]bool{1: true, 3: true})
	require.Len(t, got, 1)
	assert.Equal(t, "b", got[0].name)

	assert.Len(t, pending(all, nil), 3)
	assert.Empty(t, pending(all, map[int]bool{1: true, 2: true, 3: true}))
}

func TestSplitStatements(t *testing.T) {
	stmts, err := splitStatements(`
-- comment; with semicolon
CREATE TABLE a (x String);

CREATE VIEW b AS SELECT 'it''s' AS y FROM a;
`)
	require.NoError(t, err)
	require.Len(t, stmts, 2)
	assert.Equal(t, "CREATE TABLE a (x String)", stmts[0])
	assert.Contains(t, stmts[1], "'it''s'")

	_, err = splitStatements(`SELECT 'a;b'`)
	assert.ErrorIs(t, err, errSemicolonInString)
}

func TestSplitStatements_EmbeddedClickhouse(t *testing.T) {
	files, err := readMigrations(ClickhouseFS, "clickhouse")
	require.NoError(t, err)

	var total int
	for _, f := range files {
		stmts, err := splitStatements(f.sql)
		require.NoError(t, err, f.name)
		total += len(stmts)
	}
	assert.Equal(t, 3, total)
}

func TestQuoteIdent(t *testing.T) {
	assert.Equal(t, "`vaults`", quoteIdent("vaults"))
	assert.Equal(t, "`a``b`", quoteIdent("a`b"))
}
