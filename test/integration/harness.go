// Package integration exercises the engine against a real PostgreSQL:
// durable ingestion, cycle sealing, and restart recovery.
package integration

import (
	"context"
	stdsql "database/sql"
	"os"
	"testing"
	"time"

	"github.com/jmoiron/sqlx"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/coglab/cognition-engine/pkg/database"
)

// connString provisions PostgreSQL for the test: an external service
// container in CI (CI_DATABASE_URL), a testcontainer locally.
func connString(t *testing.T) string {
	t.Helper()
	ctx := context.Background()

	if url := os.Getenv("CI_DATABASE_URL"); url != "" {
		t.Log("using external PostgreSQL from CI_DATABASE_URL")
		return url
	}

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("cognition_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(30*time.Second)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		if err := testcontainers.TerminateContainer(pgContainer); err != nil {
			t.Logf("failed to terminate container: %v", err)
		}
	})

	connStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)
	return connStr
}

// newTestClient opens a migrated client over a fresh database.
func newTestClient(t *testing.T) *database.Client {
	t.Helper()
	return clientFor(t, connString(t))
}

// clientFor opens an independent client over an existing database, used
// to model a process restart against the same data.
func clientFor(t *testing.T, connStr string) *database.Client {
	t.Helper()

	db, err := stdsql.Open("pgx", connStr)
	require.NoError(t, err)
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)

	require.NoError(t, database.Migrate(db, "cognition_test"))

	client := database.NewClientFromDB(sqlx.NewDb(db, "pgx"))
	t.Cleanup(func() { _ = client.Close() })
	return client
}
