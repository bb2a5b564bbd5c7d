// Package testdb connects integration tests to a real Postgres database.
//
// Tests call Open to get a shared, migrated connection; when no database URL
// is configured the test is skipped instead of failed. WithTx runs a test
// body in a transaction that is always rolled back, so store tests can share
// one database without cleaning up after themselves.
package testdb

import (
	"context"
	"database/sql"
	"errors"
	"io"
	"log/slog"
	"os"
	"sync"
	"testing"
	"time"

	"github.com/DimeNiceTry/EmotionClassifier/internal/platform/postgres"
	"github.com/DimeNiceTry/EmotionClassifier/internal/redact"
	_ "github.com/jackc/pgx/v5/stdlib"
)

// urlEnvVars are checked in order for the test database URL.
var urlEnvVars = []string{"CLASSIFIER_TEST_DATABASE_URL", "DATABASE_URL", "CLASSIFIER_DATABASE_URL"}

var (
	once    sync.Once
	shared  *sql.DB
	openErr error
)

// DatabaseURL returns the first configured test database URL, or "".
func DatabaseURL() string {
	for _, name := range urlEnvVars {
		if v := os.Getenv(name); v != "" {
			return v
		}
	}
	return ""
}

// SkipIfNoDatabase skips t when no test database is configured.
func SkipIfNoDatabase(t testing.TB) {
	t.Helper()
	if DatabaseURL() == "" {
		t.Skip("no test database configured, skipping integration test")
	}
}

// Open returns the shared test database, migrating it on first use.
// The connection stays open for the life of the test binary.
func Open(t testing.TB) *sql.DB {
	t.Helper()
	SkipIfNoDatabase(t)

	once.Do(func() {
		shared, openErr = connect(DatabaseURL())
	})
	if openErr != nil {
		// The driver may echo the DSN back.
		t.Fatalf("test database unavailable: %s", redact.Error(openErr))
	}
	return shared
}

func connect(url string) (*sql.DB, error) {
	db, err := sql.Open("pgx", url)
	if err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		_ = db.Close()
		return nil, err
	}

	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	if err := postgres.Migrate(ctx, db, "up", log); err != nil {
		_ = db.Close()
		return nil, err
	}
	return db, nil
}

// WithTx runs fn inside a transaction that is rolled back afterwards,
// including when fn panics or calls t.FailNow.
func WithTx(t *testing.T, db *sql.DB, fn func(t *testing.T, tx *sql.Tx)) {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	tx, err := db.BeginTx(ctx, nil)
	if err != nil {
		t.Fatalf("failed to begin test transaction: %s", redact.Error(err))
	}
	defer func() {
		if err := tx.Rollback(); err != nil && !errors.Is(err, sql.ErrTxDone) {
			t.Logf("failed to roll back test transaction: %s", redact.Error(err))
		}
	}()

	fn(t, tx)
}
