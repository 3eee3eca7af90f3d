package services

import (
	"context"
	"path/filepath"
	"testing"

	"github.com/nexconsult/mca-verify/internal/logger"
	"github.com/nexconsult/mca-verify/internal/models"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewContainer_WithoutRedis(t *testing.T) {
	dir := t.TempDir()
	cfg := testConfig()
	cfg.Redis.Enabled = false
	cfg.Storage.ArtifactsDir = filepath.Join(dir, "artifacts")
	cfg.Storage.Enabled = true
	cfg.Export.Format = "json"
	cfg.Export.Dir = filepath.Join(dir, "exports")
	cfg.Captcha.BaseURL = "http://127.0.0.1:0"
	cfg.Worker.Workers = 1

	c, err := NewContainer(cfg, logger.Discard())
	require.NoError(t, err)
	defer c.Close()

	require.NotNil(t, c.Engine)
	require.NotNil(t, c.Pool)
	assert.Len(t, c.Engine.Targets(), 2)

	// the worker pool persists its jobs in the cache service
	job, err := c.Pool.Submit(context.Background(), models.Query{Target: "din-status", Identifier: testDIN})
	require.NoError(t, err)
	got, err := c.Pool.Get(context.Background(), job.ID)
	require.NoError(t, err)
	assert.Equal(t, models.JobPending, got.Status)
}

func TestNewContainer_BadExportFormat(t *testing.T) {
	cfg := testConfig()
	cfg.Storage.ArtifactsDir = t.TempDir()
	cfg.Export.Format = "csv"

	_, err := NewContainer(cfg, logger.Discard())
	assert.Error(t, err)
}
