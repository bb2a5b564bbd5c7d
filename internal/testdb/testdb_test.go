package testdb

import (
	"context"
	"database/sql"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDatabaseURLPrecedence(t *testing.T) {
	t.Setenv("CLASSIFIER_TEST_DATABASE_URL", "")
	t.Setenv("DATABASE_URL", "")
	t.Setenv("CLASSIFIER_DATABASE_URL", "")
	assert.Empty(t, DatabaseURL())

	t.Setenv("CLASSIFIER_DATABASE_URL", "postgres://app@db/app")
	assert.Equal(t, "postgres://app@db/app", DatabaseURL())

	t.Setenv("DATABASE_URL", "postgres://ci@db/ci")
	assert.Equal(t, "postgres://ci@db/ci", DatabaseURL())

	t.Setenv("CLASSIFIER_TEST_DATABASE_URL", "postgres://test@db/test")
	assert.Equal(t, "postgres://test@db/test", DatabaseURL())
}

func TestWithTxRollsBack(t *testing.T) {
	db := Open(t)
	ctx := context.Background()

	WithTx(t, db, func(t *testing.T, tx *sql.Tx) {
		_, err := tx.ExecContext(ctx, `CREATE TABLE testdb_probe (id int)`)
		require.NoError(t, err)
	})

	var exists bool
	err := db.QueryRowContext(ctx, `SELECT to_regclass('public.testdb_probe') IS NOT NULL`).Scan(&exists)
	require.NoError(t, err)
	assert.False(t, exists)
}
