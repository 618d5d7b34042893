package config

import (
	"log"
	"os"
	"path/filepath"
	"strconv"
	"strings"
)

// Config holds the process configuration read from the environment.
// The user-facing settings (skip categories, automation flags, devices)
// live in the SQLite store, not here.
type Config struct {
	DataDir     string
	Debug       bool
	HTTPTracing bool

	APIHost string
	APIPort string

	AuthUsername string
	AuthPassword string
	JWTSecret    string
	JWTExpirySec int

	// LoungeEndpoint overrides the lounge service base URL, mainly for tests.
	LoungeEndpoint string
}

const (
	defaultUsername = "admin"
	defaultPassword = "admin"
	defaultSecret   = "change-me"
)

// Load reads configuration from environment variables with defaults.
func Load() (Config, error) {
	cfg := Config{
		DataDir:        envString("LOUNGESKIP_DATA_DIR", "data"),
		Debug:          envBool("LOUNGESKIP_DEBUG", false),
		HTTPTracing:    envBool("LOUNGESKIP_HTTP_TRACING", false),
		APIHost:        envString("LOUNGESKIP_API_HOST", "0.0.0.0"),
		APIPort:        envString("LOUNGESKIP_API_PORT", "8000"),
		AuthUsername:   envString("LOUNGESKIP_AUTH_USERNAME", defaultUsername),
		AuthPassword:   envString("LOUNGESKIP_AUTH_PASSWORD", defaultPassword),
		JWTSecret:      envString("LOUNGESKIP_JWT_SECRET", defaultSecret),
		JWTExpirySec:   envInt("LOUNGESKIP_JWT_EXPIRES_SECONDS", 3600),
		LoungeEndpoint: envString("LOUNGESKIP_LOUNGE_ENDPOINT", ""),
	}
	cfg.DataDir = filepath.Clean(cfg.DataDir)

	if cfg.AuthUsername == defaultUsername || cfg.AuthPassword == defaultPassword || cfg.JWTSecret == defaultSecret {
		log.Printf("WARNING: default credentials or JWT secret in use; set LOUNGESKIP_AUTH_USERNAME, LOUNGESKIP_AUTH_PASSWORD and LOUNGESKIP_JWT_SECRET")
	}

	return cfg, nil
}

// DBPath returns the location of the combined config + stats database.
func (cfg Config) DBPath() string {
	return filepath.Join(cfg.DataDir, "config.db")
}

func envString(key, fallback string) string {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	return val
}

func envInt(key string, fallback int) int {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	parsed, err := strconv.Atoi(val)
	if err != nil {
		return fallback
	}
	return parsed
}

func envBool(key string, fallback bool) bool {
	val := os.Getenv(key)
	if val == "" {
		return fallback
	}
	switch strings.ToLower(strings.TrimSpace(val)) {
	case "1", "true", "yes", "on":
		return true
	case "0", "false", "no", "off":
		return false
	}
	return fallback
}
