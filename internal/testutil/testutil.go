package testutil

import (
	"database/sql"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/biid/pointterminal/internal/db"
)

// OpenTestDB creates a migrated throwaway terminal database in a temp dir.
// Closed when the test stops.
func OpenTestDB(t *testing.T) *sql.DB {
	t.Helper()

	path := filepath.Join(t.TempDir(), "terminal.db")

	conn, err := db.ConnectAndMigrate(path)
	require.NoError(t, err, "Error happened when opening and migrating test database")

	t.Cleanup(func() {
		_ = conn.Close()
	})

	return conn
}
