// Package storetest opens throwaway SQLite databases for tests.
package storetest

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/example/posbackoffice/pkg/config"
	"github.com/example/posbackoffice/pkg/store"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

// Config returns a SQLite database config pointing into t.TempDir().
func Config(t testing.TB) *config.DatabaseConfig {
	t.Helper()
	return &config.DatabaseConfig{
		Driver:          config.DriverSQLite,
		Path:            filepath.Join(t.TempDir(), "pos.db"),
		ConnectAttempts: 1,
		ConnectInterval: 10 * time.Millisecond,
	}
}

// Open returns a migrated SQLite database that is closed when the test ends.
func Open(t testing.TB) *gorm.DB {
	t.Helper()

	ctx := context.Background()
	db, err := store.Open(ctx, Config(t), zap.NewNop())
	if err != nil {
		t.Fatalf("failed to open test database: %v", err)
	}
	if err := store.Migrate(ctx, db); err != nil {
		t.Fatalf("failed to migrate test database: %v", err)
	}
	t.Cleanup(func() { _ = store.Close(db) })

	return db
}
