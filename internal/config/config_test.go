package config

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "aureahost.yaml")
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoad_AppliesDefaults(t *testing.T) {
	path := writeConfig(t, "signing:\n  kid: test-kid\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "info", cfg.LogLevel)
	assert.Equal(t, "./data/aurea.db", cfg.Store.Path)
	assert.Equal(t, ":8090", cfg.Host.Listen)
}

func TestLoad_MissingKIDFailsValidation(t *testing.T) {
	path := writeConfig(t, "logLevel: debug\n")
	_, err := Load(path)
	require.Error(t, err)
}

func TestLoad_EnvExpansion(t *testing.T) {
	t.Setenv("AUREA_TEST_KID", "env-kid")
	path := writeConfig(t, "signing:\n  kid: ${AUREA_TEST_KID}\n")
	cfg, err := Load(path)
	require.NoError(t, err)
	assert.Equal(t, "env-kid", cfg.Signing.KID)
}

func TestApplySupervisorDefaults_DerivesHealthURL(t *testing.T) {
	cfg := SupervisorConfig{Cmd: []string{"./aureahost"}, Listen: ":9090"}
	ApplySupervisorDefaults(&cfg)
	assert.Equal(t, "http://127.0.0.1:9090/healthz", cfg.HealthURL)
}
