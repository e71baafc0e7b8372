package database

import (
	"database/sql"
	"io/fs"
	"os"
	"testing"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEmbeddedMigrations(t *testing.T) {
	entries, err := fs.ReadDir(migrationFiles, "migrations")
	require.NoError(t, err)

	names := make([]string, 0, len(entries))
	for _, entry := range entries {
		names = append(names, entry.Name())
	}
	assert.Contains(t, names, "000001_create_documents.up.sql")
	assert.Contains(t, names, "000001_create_documents.down.sql")

	up, err := fs.ReadFile(migrationFiles, "migrations/000001_create_documents.up.sql")
	require.NoError(t, err)
	assert.Contains(t, string(up), "vector_id varchar(36) NOT NULL")
	assert.Contains(t, string(up), "UNIQUE (document_id, chunk_index)")
}

func TestMigrationManager(t *testing.T) {
	// 需要真实的数据库连接
	dbURL := os.Getenv("TEST_DB_URL")
	if dbURL == "" {
		t.Skip("Skipping migration test: TEST_DB_URL not set")
	}

	logger := logrus.New()
	logger.SetLevel(logrus.InfoLevel)

	manager, err := OpenMigrationManager(dbURL, logger)
	require.NoError(t, err)
	defer manager.Close()

	require.NoError(t, manager.Up())
	version, dirty, err := manager.Version()
	require.NoError(t, err)
	assert.False(t, dirty)
	assert.Equal(t, uint(1), version)

	// 再次执行不应报错
	require.NoError(t, manager.Up())

	check, err := sql.Open("postgres", dbURL)
	require.NoError(t, err)
	defer check.Close()

	var exists bool
	err = check.QueryRow("SELECT EXISTS (SELECT 1 FROM information_schema.tables WHERE table_name = 'document_chunks')").Scan(&exists)
	require.NoError(t, err)
	assert.True(t, exists)
}
