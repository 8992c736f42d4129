package db

import (
	"os"
	"testing"
	"testing/fstest"

	"github.com/stretchr/testify/require"

	"github.com/xxxsen/likegate/internal/config"
)

func TestDSN(t *testing.T) {
	require.Equal(t, "postgres://x", DSN(config.DatabaseConfig{DSN: "postgres://x", Host: "ignored"}))
	require.Equal(t,
		"host=db port=5432 user=u password=p dbname=likes sslmode=disable",
		DSN(config.DatabaseConfig{Host: "db", User: "u", Password: "p", DBName: "likes"}))
	require.Contains(t,
		DSN(config.DatabaseConfig{Host: "db", Port: 6543, SSLMode: "require"}),
		"port=6543 user= password= dbname= sslmode=require")
}

func TestSplitStatements(t *testing.T) {
	stmts := splitStatements("CREATE TABLE a (x INT);\n\n  ;CREATE INDEX i ON a (x);\n")
	require.Equal(t, []string{"CREATE TABLE a (x INT)", "CREATE INDEX i ON a (x)"}, stmts)
	require.Empty(t, splitStatements(" ; \n"))
}

func TestMigrationFilesSorted(t *testing.T) {
	fsys := fstest.MapFS{
		"migrations/002_b.sql":   {Data: []byte("x")},
		"migrations/001_a.sql":   {Data: []byte("x")},
		"migrations/README.md":   {Data: []byte("x")},
		"migrations/sub/003.sql": {Data: []byte("x")},
	}
	files, err := migrationFiles(fsys)
	require.NoError(t, err)
	require.Equal(t, []string{"001_a.sql", "002_b.sql"}, files)

	embedded, err := migrationFiles(migrationsFS)
	require.NoError(t, err)
	require.Contains(t, embedded, "001_init.sql")
}

func TestApplyMigrationsOnce(t *testing.T) {
	host := os.Getenv("TEST_DB_HOST")
	if host == "" {
		t.Skip("TEST_DB_HOST not set, skipping postgres test")
	}
	conn, err := Open(config.DatabaseConfig{
		Host:         host,
		Port:         5432,
		User:         "likegate",
		Password:     "likegate_pass",
		DBName:       "likegate_test",
		MaxOpenConns: 4,
	})
	require.NoError(t, err)
	defer conn.Close()

	require.NoError(t, ApplyMigrations(conn))
	require.NoError(t, ApplyMigrations(conn))

	var count int
	require.NoError(t, conn.QueryRow(
		"SELECT COUNT(*) FROM schema_migrations WHERE name = $1", "001_init.sql").Scan(&count))
	require.Equal(t, 1, count)
	require.Equal(t, 4, conn.Stats().MaxOpenConnections)
}
