package testutil

import (
	"context"
	"database/sql"
	"os"
	"testing"
	"time"

	"github.com/testcontainers/testcontainers-go"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"
)

// PGContainer spins up a throwaway PostgreSQL container and returns a
// connected *sql.DB plus a cleanup function. Used by integration tests
// that need a real database without an externally provisioned one.
//
// Set SKIP_CONTAINER_TESTS=1 (or run without a container runtime) to
// skip these tests.
func PGContainer(t *testing.T) (*sql.DB, func()) {
	t.Helper()

	if os.Getenv("SKIP_CONTAINER_TESTS") != "" {
		t.Skip("SKIP_CONTAINER_TESTS set, skipping container test")
	}

	ctx := context.Background()
	ctr, err := tcpostgres.Run(ctx, "postgres:16-alpine",
		tcpostgres.WithDatabase("scamshield_test"),
		tcpostgres.WithUsername("scamshield"),
		tcpostgres.WithPassword("scamshield"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		t.Skipf("postgres container unavailable: %v", err)
	}

	connStr, err := ctr.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		_ = ctr.Terminate(ctx)
		t.Fatalf("pgcontainer: connection string: %v", err)
	}

	db, err := sql.Open("postgres", connStr)
	if err != nil {
		_ = ctr.Terminate(ctx)
		t.Fatalf("pgcontainer: open database: %v", err)
	}
	if err := db.Ping(); err != nil {
		_ = db.Close()
		_ = ctr.Terminate(ctx)
		t.Fatalf("pgcontainer: connect: %v", err)
	}

	cleanup := func() {
		_ = db.Close()
		_ = ctr.Terminate(ctx)
	}
	return db, cleanup
}
