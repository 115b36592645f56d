package config

import (
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

func TestLoadDefaultsWithoutFile(t *testing.T) {
	t.Setenv("CONFIG_PATH", filepath.Join(t.TempDir(), "missing.yaml"))

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":8080", cfg.Service.HTTPAddr)
	assert.Equal(t, 6, cfg.Engine.ConfidenceThreshold)
	assert.Equal(t, 3, cfg.Engine.MaxResearchAttempts)
	assert.Equal(t, 2, cfg.Engine.MaxClarificationAttempts)
	assert.Equal(t, "localhost:6379", cfg.Redis.Addr)
	assert.False(t, cfg.Database.Enabled)
	assert.Equal(t, "info", cfg.Logging.Level)
}

func TestLoadFromFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`
service:
  http_addr: ":9090"
engine:
  confidence_threshold: 7
search:
  requests_per_second: 2.5
  burst: 4
logging:
  level: debug
  development: true
`), 0o644))
	t.Setenv("CONFIG_PATH", path)

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, ":9090", cfg.Service.HTTPAddr)
	assert.Equal(t, 7, cfg.Engine.ConfidenceThreshold)
	assert.Equal(t, 2.5, cfg.Search.RequestsPerSecond)
	assert.Equal(t, 4, cfg.Search.Burst)
	assert.True(t, cfg.Logging.Development)
	// Unset keys keep their defaults.
	assert.Equal(t, 3, cfg.Engine.MaxResearchAttempts)
	assert.Equal(t, 30*time.Second, cfg.LLM.Timeout)
}

func TestLoadEnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("redis:\n  addr: file:6379\n"), 0o644))
	t.Setenv("CONFIG_PATH", path)
	t.Setenv("FIRMLENS_REDIS_ADDR", "env:6379")

	cfg, err := Load()
	require.NoError(t, err)
	assert.Equal(t, "env:6379", cfg.Redis.Addr)
}

func TestLoadRejectsInvalidThreshold(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "orchestrator.yaml")
	require.NoError(t, os.WriteFile(path, []byte("engine:\n  confidence_threshold: 11\n"), 0o644))
	t.Setenv("CONFIG_PATH", path)

	_, err := Load()
	assert.Error(t, err)
}

func TestWatcherLoadsExistingFiles(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.yaml"),
		[]byte("confidence_threshold: 8\n"), 0o644))

	w, err := NewWatcher(dir, zap.NewNop())
	require.NoError(t, err)
	require.NoError(t, w.Start())
	defer w.Stop()

	vals, ok := w.Get("engine.yaml")
	require.True(t, ok)
	assert.Equal(t, 8, vals["confidence_threshold"])
}

func TestWatcherNotifiesOnWrite(t *testing.T) {
	dir := t.TempDir()
	w, err := NewWatcher(dir, zap.NewNop())
	require.NoError(t, err)

	got := make(chan ChangeEvent, 4)
	w.OnChange("engine.yaml", func(event ChangeEvent) error {
		got <- event
		return nil
	})
	require.NoError(t, w.Start())
	defer w.Stop()

	require.NoError(t, os.WriteFile(filepath.Join(dir, "engine.yaml"),
		[]byte("max_research_attempts: 5\n"), 0o644))

	select {
	case event := <-got:
		assert.Equal(t, "engine.yaml", event.File)
		assert.Equal(t, 5, event.Values["max_research_attempts"])
	case <-time.After(3 * time.Second):
		t.Fatal("no change event received")
	}
}

func TestEngineOverridesMergesPartially(t *testing.T) {
	current := EngineConfig{
		ConfidenceThreshold:      6,
		MaxResearchAttempts:      3,
		MaxClarificationAttempts: 2,
		MaxTransitions:           24,
	}

	out := EngineOverrides(map[string]interface{}{
		"confidence_threshold": 8,
		"max_transitions":      float64(30), // JSON decoder produces floats
	}, current)

	assert.Equal(t, 8, out.ConfidenceThreshold)
	assert.Equal(t, 30, out.MaxTransitions)
	assert.Equal(t, 3, out.MaxResearchAttempts)
	assert.Equal(t, 2, out.MaxClarificationAttempts)
}
