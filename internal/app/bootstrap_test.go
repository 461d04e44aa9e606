package app

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeUpstreamConfig(t *testing.T, dir string, body string) string {
	t.Helper()
	path := filepath.Join(dir, "config.json")
	require.NoError(t, os.WriteFile(path, []byte(body), 0600))
	return path
}

func TestBootstrapWithNoUpstreams(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeUpstreamConfig(t, dir, `{"mcpServers":{}}`)

	a, err := Bootstrap(Config{
		ConfigPath: cfgPath,
		Transport:  "stdio",
	})
	require.NoError(t, err)
	require.NotNil(t, a)
	assert.False(t, a.health.Ready())

	a.shutdown()
}

func TestBootstrapRejectsMissingConfigFile(t *testing.T) {
	_, err := Bootstrap(Config{
		ConfigPath: filepath.Join(t.TempDir(), "missing.json"),
		Transport:  "stdio",
	})
	assert.Error(t, err)
}

func TestBootstrapRejectsInvalidJSON(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeUpstreamConfig(t, dir, `not json`)

	_, err := Bootstrap(Config{ConfigPath: cfgPath, Transport: "stdio"})
	assert.Error(t, err)
}

func TestBootstrapWithAuthEnabled(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeUpstreamConfig(t, dir, `{"mcpServers":{}}`)

	a, err := Bootstrap(Config{
		ConfigPath:       cfgPath,
		Transport:        "http",
		EnableAuth:       true,
		OAuthStorageDir:  filepath.Join(dir, "oauth"),
		OAuthAutoApprove: true,
		BaseURL:          "https://proxy.example.com",
	})
	require.NoError(t, err)
	require.NotNil(t, a.oauthSrv)
	assert.NotEmpty(t, a.resourceMetadataURL())
	assert.NotNil(t, a.authHandler())

	a.shutdown()
}

func TestBootstrapMarksHealthReadyOnceAggregatorStarts(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeUpstreamConfig(t, dir, `{"mcpServers":{}}`)

	a, err := Bootstrap(Config{ConfigPath: cfgPath, Transport: "stdio"})
	require.NoError(t, err)
	assert.False(t, a.health.Ready())

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a.aggregator.Start(ctx)
	a.health.MarkAggregatorStarted()
	a.router.Start(ctx)

	assert.True(t, a.health.Ready())

	a.shutdown()
}

func TestReconcileClearsConfigError(t *testing.T) {
	dir := t.TempDir()
	cfgPath := writeUpstreamConfig(t, dir, `{"mcpServers":{}}`)

	a, err := Bootstrap(Config{ConfigPath: cfgPath, Transport: "stdio"})
	require.NoError(t, err)

	a.health.RecordConfigError(errors.New("boom"))
	report := a.health.Compute()
	assert.NotEmpty(t, report.ConfigError)

	a.reconcile(a.lastSnap)
	report = a.health.Compute()
	assert.Empty(t, report.ConfigError)

	a.shutdown()
}
