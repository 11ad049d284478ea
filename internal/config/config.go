// Package config loads the engine's environment-variable
// configuration: credential fields for both sides, the
// HTTP adapter port, and the tunables the Gateway/Health
// Monitor/Coordinator read at startup.
package config

import (
	"encoding/base64"
	"fmt"
	"os"
	"strconv"
	"strings"
)

// Credential is one side's service-account credential, assembled from
// PRIMARY_*/STANDBY_* environment fields. PrivateKey has its escaped
// "\n" sequences restored, matching how the source environment stores
// multiline PEM keys in a single env var.
type Credential struct {
	Type                    string `json:"type"`
	ProjectID               string `json:"project_id"`
	PrivateKeyID            string `json:"private_key_id"`
	PrivateKey              string `json:"private_key"`
	ClientEmail             string `json:"client_email"`
	ClientID                string `json:"client_id"`
	AuthURI                 string `json:"auth_uri"`
	TokenURI                string `json:"token_uri"`
	AuthProviderX509CertURL string `json:"auth_provider_x509_cert_url"`
	ClientX509CertURL       string `json:"client_x509_cert_url"`
	UniverseDomain          string `json:"universe_domain"`
}

// Config is the fully parsed, defaulted environment configuration.
type Config struct {
	Primary Credential
	Standby Credential
	Hash    Hash

	Port                       int
	RunIntervalMinutes         int
	HealthProbeIntervalSeconds int
	BatchSize                  int
	MaxRetryAttempts           int
	StatsFilePath              string
}

// Hash describes the primary authentication directory's password-hash
// algorithm so it can be preserved opaquely on import into standby
// (AUTH_HASH_KEY/AUTH_HASH_SALT_SEPARATOR are base64-encoded, matching
// how the console prints them for a service account's hash config).
type Hash struct {
	Algorithm     string
	Rounds        int
	MemoryCost    int
	Key           []byte
	SaltSeparator []byte
}

func getenvDefault(key, def string) string {
	if v, ok := os.LookupEnv(key); ok && v != "" {
		return v
	}
	return def
}

func getenvIntDefault(key string, def int) (int, error) {
	v, ok := os.LookupEnv(key)
	if !ok || v == "" {
		return def, nil
	}
	n, err := strconv.Atoi(v)
	if err != nil {
		return 0, fmt.Errorf("config: invalid integer for %s: %w", key, err)
	}
	return n, nil
}

func credentialFromEnv(prefix string) Credential {
	get := func(field string) string {
		return os.Getenv(prefix + "_" + field)
	}

	return Credential{
		Type:                    get("TYPE"),
		ProjectID:               get("PROJECT_ID"),
		PrivateKeyID:            get("PRIVATE_KEY_ID"),
		PrivateKey:              strings.ReplaceAll(get("PRIVATE_KEY"), `\n`, "\n"),
		ClientEmail:             get("CLIENT_EMAIL"),
		ClientID:                get("CLIENT_ID"),
		AuthURI:                 get("AUTH_URI"),
		TokenURI:                get("TOKEN_URI"),
		AuthProviderX509CertURL: get("AUTH_PROVIDER_CERT_URL"),
		ClientX509CertURL:       get("CLIENT_CERT_URL"),
		UniverseDomain:          get("UNIVERSE_DOMAIN"),
	}
}

// Valid reports whether a credential has the minimum fields required
// to build a firebase App (project ID, client email, private key).
func (c Credential) Valid() bool {
	return c.ProjectID != "" && c.ClientEmail != "" && c.PrivateKey != ""
}

// Load reads Config from the process environment, applying the
// defaults.
func Load() (Config, error) {
	port, err := getenvIntDefault("PORT", 3001)
	if err != nil {
		return Config{}, err
	}
	runInterval, err := getenvIntDefault("RUN_INTERVAL_MINUTES", 10)
	if err != nil {
		return Config{}, err
	}
	healthInterval, err := getenvIntDefault("HEALTH_PROBE_INTERVAL_SECONDS", 10)
	if err != nil {
		return Config{}, err
	}
	batchSize, err := getenvIntDefault("BATCH_SIZE", 100)
	if err != nil {
		return Config{}, err
	}
	maxRetry, err := getenvIntDefault("MAX_RETRY_ATTEMPTS", 3)
	if err != nil {
		return Config{}, err
	}
	hash, err := hashFromEnv()
	if err != nil {
		return Config{}, err
	}

	cfg := Config{
		Primary:                    credentialFromEnv("PRIMARY"),
		Standby:                    credentialFromEnv("STANDBY"),
		Hash:                       hash,
		Port:                       port,
		RunIntervalMinutes:         runInterval,
		HealthProbeIntervalSeconds: healthInterval,
		BatchSize:                  batchSize,
		MaxRetryAttempts:           maxRetry,
		StatsFilePath:              getenvDefault("STATS_FILE_PATH", "stats.json"),
	}

	return cfg, nil
}

func hashFromEnv() (Hash, error) {
	rounds, err := getenvIntDefault("AUTH_HASH_ROUNDS", 8)
	if err != nil {
		return Hash{}, err
	}
	memCost, err := getenvIntDefault("AUTH_HASH_MEMORY_COST", 14)
	if err != nil {
		return Hash{}, err
	}
	key, err := base64.StdEncoding.DecodeString(os.Getenv("AUTH_HASH_KEY"))
	if err != nil {
		return Hash{}, fmt.Errorf("config: invalid base64 for AUTH_HASH_KEY: %w", err)
	}
	saltSep, err := base64.StdEncoding.DecodeString(os.Getenv("AUTH_HASH_SALT_SEPARATOR"))
	if err != nil {
		return Hash{}, fmt.Errorf("config: invalid base64 for AUTH_HASH_SALT_SEPARATOR: %w", err)
	}
	return Hash{
		Algorithm:     getenvDefault("AUTH_HASH_ALGORITHM", "SCRYPT"),
		Rounds:        rounds,
		MemoryCost:    memCost,
		Key:           key,
		SaltSeparator: saltSep,
	}, nil
}

// PortAddr renders the listen address for the HTTP adapter.
func (c Config) PortAddr() string {
	return getenvDefault("BIND_ADDR", "") + ":" + strconv.Itoa(c.Port)
}
