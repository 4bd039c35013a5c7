// Package testutil holds the helpers shared by tests needing a real postgres database.
package testutil

import (
	"database/sql"
	"os"
	"testing"

	"github.com/trezcool/masomo-offline/core"
	"github.com/trezcool/masomo-offline/storage/database"
)

// PrepareDB opens the TEST database, migrates it and empties the local_storage table.
// The test is skipped when no TEST_DATABASE_HOST is configured.
func PrepareDB(t *testing.T) (*sql.DB, *core.Config) {
	t.Helper()
	if os.Getenv("TEST_DATABASE_HOST") == "" {
		t.Skip("TEST_DATABASE_HOST not set")
	}

	t.Setenv("ENV", "TEST")
	conf, err := core.LoadConfig()
	if err != nil {
		t.Fatalf("PrepareDB() failed to load config: %v", err)
	}
	if err = database.CreateIfNotExist(conf); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	db, err := database.Open(conf)
	if err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	if err = database.Ping(db, 10); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	if err = database.Migrate(db, "up"); err != nil {
		t.Fatalf("PrepareDB() failed: %v", err)
	}
	ResetDB(t, db)
	return db, conf
}

func ResetDB(t *testing.T, db *sql.DB) {
	t.Helper()
	if _, err := db.Exec("TRUNCATE TABLE local_storage"); err != nil {
		t.Fatalf("ResetDB() failed: %v", err)
	}
}
