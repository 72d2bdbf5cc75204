package repository

import (
	"context"
	"testing"
	"time"

	"github.com/example/posbackoffice/pkg/config"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
)

func setupMongo(t *testing.T) *MongoRepository {
	t.Helper()

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	cfg := &config.MongoDBConfig{
		URI:        "mongodb://localhost:27017/?serverSelectionTimeoutMS=1000",
		Database:   "pos_test",
		Collection: "audit_" + time.Now().Format("150405.000000"),
	}
	repo, err := NewMongoRepository(ctx, cfg)
	if err != nil {
		t.Skipf("MongoDB not available: %v", err)
	}
	if err := repo.Ping(ctx); err != nil {
		repo.Close(context.Background())
		t.Skipf("MongoDB not available: %v", err)
	}

	t.Cleanup(func() {
		ctx := context.Background()
		repo.collection.Drop(ctx)
		repo.Close(ctx)
	})
	return repo
}

func TestMongoRepository_AuditLogs(t *testing.T) {
	repo := setupMongo(t)
	ctx := context.Background()

	older := &AuditLog{
		Service:   "pos-backoffice",
		Action:    AuditReplaceMenu,
		Entity:    "menu",
		Data:      bson.M{"count": 3},
		CreatedAt: time.Now().Add(-time.Minute).UTC(),
	}
	newer := &AuditLog{Service: "pos-backoffice", Action: AuditReplaceMenu, Entity: "menu", Data: bson.M{"count": 4}}
	other := &AuditLog{Service: "pos-backoffice", Action: AuditReplaceTables, Entity: "tables"}

	for _, l := range []*AuditLog{older, newer, other} {
		require.NoError(t, repo.CreateAuditLog(ctx, l))
		assert.NotEmpty(t, l.ID)
	}

	logs, err := repo.GetAuditLogs(ctx, "menu", 10)
	require.NoError(t, err)
	require.Len(t, logs, 2)
	assert.Equal(t, newer.ID, logs[0].ID)
	assert.Equal(t, older.ID, logs[1].ID)

	latest, err := repo.GetAuditLogs(ctx, "", 2)
	require.NoError(t, err)
	require.Len(t, latest, 2)
	for _, l := range latest {
		assert.NotEqual(t, older.ID, l.ID, "limit keeps the newest entries")
	}
}
