package persistence

import (
	"context"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/stretchr/testify/require"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// startPostgres runs a disposable Postgres, applies the embedded schema and returns a pool.
func startPostgres(t *testing.T) (context.Context, *pgxpool.Pool) {
	t.Helper()

	if testing.Short() {
		t.Skip("skipping postgres integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	t.Cleanup(cancel)

	pgContainer, err := postgres.Run(ctx,
		"postgres:16-alpine",
		postgres.WithDatabase("nuzum"),
		postgres.WithUsername("postgres"),
		postgres.WithPassword("postgres"),
		testcontainers.WithWaitStrategy(wait.ForListeningPort("5432/tcp").WithStartupTimeout(2*time.Minute)),
	)
	require.NoError(t, err)
	t.Cleanup(func() {
		_ = pgContainer.Terminate(context.Background())
	})

	connString, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	pool, err := NewPool(ctx, PoolConfig{ConnString: connString, ApplicationName: "nuzum-test", MaxConns: 32, ConnectAttempts: 3})
	require.NoError(t, err)
	t.Cleanup(func() { ClosePool(pool) })

	var appName string
	require.NoError(t, pool.QueryRow(ctx, "SELECT current_setting('application_name')").Scan(&appName))
	require.Equal(t, "nuzum-test", appName)

	require.NoError(t, BootstrapSchema(ctx, pool))
	// Idempotent: a second run must not fail.
	require.NoError(t, BootstrapSchema(ctx, pool))

	return ctx, pool
}

func mustCompany(t *testing.T, ctx context.Context, store *CompanyStore, name string) CompanyRecord {
	t.Helper()
	rec, err := store.Create(ctx, CompanyRecord{CompanyID: uuid.New(), Name: name})
	require.NoError(t, err)
	return rec
}
