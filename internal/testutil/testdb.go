package testutil

import (
	"context"
	"database/sql"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	_ "github.com/lib/pq"
	"github.com/testcontainers/testcontainers-go"
	"github.com/testcontainers/testcontainers-go/modules/postgres"
	"github.com/testcontainers/testcontainers-go/wait"

	"github.com/josh-kwaku/pointstore/internal/repository"
)

// One container per test binary; each test gets its own database in it.
// The container is reaped by testcontainers when the process exits.
var (
	containerOnce sync.Once
	containerURL  *url.URL
	containerErr  error
)

func startContainer() {
	ctx := context.Background()

	container, err := postgres.Run(ctx, "postgres:16-alpine",
		postgres.WithDatabase("pointstore_test"),
		postgres.WithUsername("test"),
		postgres.WithPassword("test"),
		testcontainers.WithWaitStrategy(
			wait.ForLog("database system is ready to accept connections").
				WithOccurrence(2).
				WithStartupTimeout(60*time.Second),
		),
	)
	if err != nil {
		containerErr = fmt.Errorf("start postgres container: %w", err)
		return
	}

	connStr, err := container.ConnectionString(ctx, "sslmode=disable")
	if err != nil {
		containerErr = fmt.Errorf("connection string: %w", err)
		return
	}
	containerURL, containerErr = url.Parse(connStr)
}

// SetupTestDB creates a fresh, fully migrated database and returns a pool
// connected to it. The database is dropped when the test ends.
func SetupTestDB(t *testing.T) *sql.DB {
	t.Helper()
	ctx := context.Background()

	containerOnce.Do(startContainer)
	if containerErr != nil {
		t.Fatalf("postgres unavailable: %v", containerErr)
	}

	admin, err := sql.Open("postgres", containerURL.String())
	if err != nil {
		t.Fatalf("open admin connection: %v", err)
	}
	defer admin.Close()

	name := "test_" + strings.ReplaceAll(uuid.NewString(), "-", "")
	if _, err := admin.ExecContext(ctx, "CREATE DATABASE "+name); err != nil {
		t.Fatalf("create database %s: %v", name, err)
	}

	dbURL := *containerURL
	dbURL.Path = "/" + name

	db, err := sql.Open("postgres", dbURL.String())
	if err != nil {
		t.Fatalf("open %s: %v", name, err)
	}

	t.Cleanup(func() {
		db.Close()
		cleanup, err := sql.Open("postgres", containerURL.String())
		if err != nil {
			t.Logf("drop %s: %v", name, err)
			return
		}
		defer cleanup.Close()
		if _, err := cleanup.ExecContext(context.Background(), "DROP DATABASE IF EXISTS "+name+" WITH (FORCE)"); err != nil {
			t.Logf("drop %s: %v", name, err)
		}
	})

	if err := repository.Migrate(ctx, db); err != nil {
		t.Fatalf("run migrations: %v", err)
	}

	return db
}
