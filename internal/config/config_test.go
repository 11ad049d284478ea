package config

import (
	"encoding/base64"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func clearAndSet(t *testing.T, vars map[string]string) {
	t.Helper()
	for k, v := range vars {
		t.Setenv(k, v)
	}
}

func TestLoad_AppliesDefaultsWhenUnset(t *testing.T) {
	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 3001, cfg.Port)
	assert.Equal(t, 10, cfg.RunIntervalMinutes)
	assert.Equal(t, 10, cfg.HealthProbeIntervalSeconds)
	assert.Equal(t, 100, cfg.BatchSize)
	assert.Equal(t, 3, cfg.MaxRetryAttempts)
	assert.Equal(t, "stats.json", cfg.StatsFilePath)
	assert.Equal(t, "SCRYPT", cfg.Hash.Algorithm)
	assert.Equal(t, 8, cfg.Hash.Rounds)
	assert.Equal(t, 14, cfg.Hash.MemoryCost)
}

func TestLoad_OverridesFromEnv(t *testing.T) {
	clearAndSet(t, map[string]string{
		"PORT":                    "8080",
		"BATCH_SIZE":              "250",
		"STATS_FILE_PATH":         "/tmp/custom-stats.json",
		"AUTH_HASH_ALGORITHM":     "HMAC_SHA256",
		"AUTH_HASH_KEY":           base64.StdEncoding.EncodeToString([]byte("secret-key")),
		"AUTH_HASH_SALT_SEPARATOR": base64.StdEncoding.EncodeToString([]byte("sep")),
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.Equal(t, 8080, cfg.Port)
	assert.Equal(t, 250, cfg.BatchSize)
	assert.Equal(t, "/tmp/custom-stats.json", cfg.StatsFilePath)
	assert.Equal(t, "HMAC_SHA256", cfg.Hash.Algorithm)
	assert.Equal(t, []byte("secret-key"), cfg.Hash.Key)
	assert.Equal(t, []byte("sep"), cfg.Hash.SaltSeparator)
}

func TestLoad_InvalidIntegerEnvVarFails(t *testing.T) {
	t.Setenv("BATCH_SIZE", "not-a-number")
	_, err := Load()
	assert.Error(t, err)
}

func TestCredentialFromEnv_RestoresEscapedNewlinesInPrivateKey(t *testing.T) {
	clearAndSet(t, map[string]string{
		"PRIMARY_PROJECT_ID":  "proj-1",
		"PRIMARY_CLIENT_EMAIL": "svc@proj-1.iam.gserviceaccount.com",
		"PRIMARY_PRIVATE_KEY": `-----BEGIN KEY-----\nabc123\n-----END KEY-----`,
	})

	cfg, err := Load()
	require.NoError(t, err)

	assert.True(t, cfg.Primary.Valid())
	assert.Contains(t, cfg.Primary.PrivateKey, "\nabc123\n")
}

func TestCredential_ValidRequiresProjectEmailAndKey(t *testing.T) {
	assert.False(t, Credential{}.Valid())
	assert.False(t, Credential{ProjectID: "p"}.Valid())
	assert.True(t, Credential{ProjectID: "p", ClientEmail: "e", PrivateKey: "k"}.Valid())
}

func TestPortAddr_FormatsListenAddress(t *testing.T) {
	cfg := Config{Port: 9090}
	assert.Equal(t, ":9090", cfg.PortAddr())
}
