package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"math/rand/v2"
	"os"
	"testing"

	"github.com/onnwee/ttvlog/db"
)

// SetupTestDB connects to TEST_PG_DSN and runs migrations.
// It skips the test if TEST_PG_DSN environment variable is not set.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	dsn := os.Getenv("TEST_PG_DSN")
	if dsn == "" {
		t.Skip("TEST_PG_DSN not set")
	}
	database, err := db.Connect(context.Background(), dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}
	if err := db.RunMigrations(database); err != nil {
		database.Close()
		t.Fatalf("failed to run migrations: %v", err)
	}
	t.Cleanup(func() {
		database.Close()
	})
	return database
}

// UniqueChannelID returns a numeric channel id unlikely to collide with other test runs.
// The directory row and log partition for it are removed when the test ends.
func UniqueChannelID(t *testing.T, database *sql.DB) string {
	t.Helper()
	id := fmt.Sprintf("9%011d", rand.Int64N(1e11))
	t.Cleanup(func() {
		ctx := context.Background()
		_, _ = database.ExecContext(ctx, fmt.Sprintf(`DROP TABLE IF EXISTS "chat_logs_%s"`, id))
		_, _ = database.ExecContext(ctx, `DELETE FROM channels WHERE channel_id = $1`, id)
	})
	return id
}
