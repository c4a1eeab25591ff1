package main

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

func TestSeed(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DatabaseConfig{Driver: db.DriverSQLite, Path: filepath.Join(dir, "seed.db")}

	files := []string{
		filepath.Join("..", "..", "seed", "senders.sql"),
		filepath.Join("..", "..", "seed", "contacts.sql"),
	}
	require.NoError(t, seed(context.Background(), cfg, files, zap.NewNop()))

	conn, err := db.Open(context.Background(), cfg.Driver, cfg.DSN())
	require.NoError(t, err)
	defer conn.Close()

	senders, err := (&repository.SenderRepository{DB: conn}).ListAll(context.Background())
	require.NoError(t, err)
	require.NotEmpty(t, senders)
	assert.True(t, senders[0].HasLedger())

	rows, err := (&repository.ContactRepository{DB: conn}).ReadAllRows(context.Background(), senders[0])
	require.NoError(t, err)
	assert.NotEmpty(t, rows)
	for _, row := range rows {
		assert.GreaterOrEqual(t, row.Position, 2)
	}
}

func TestSeed_MissingFile(t *testing.T) {
	dir := t.TempDir()
	cfg := config.DatabaseConfig{Driver: db.DriverSQLite, Path: filepath.Join(dir, "seed.db")}
	err := seed(context.Background(), cfg, []string{filepath.Join(dir, "nope.sql")}, zap.NewNop())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "failed to read")

	_, statErr := os.Stat(cfg.Path)
	assert.NoError(t, statErr, "schema applied before seed files")
}
