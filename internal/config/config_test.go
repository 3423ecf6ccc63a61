// Soundproof - Play Ingestion, Fraud Scoring, and Royalty Allocation
// Copyright 2026 Soundproof Authors
// SPDX-License-Identifier: AGPL-3.0-or-later
// https://github.com/soundproof/soundproof

package config

import (
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func TestLoad_Defaults(t *testing.T) {
	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8686 {
		t.Errorf("Server.Port = %d, want 8686", cfg.Server.Port)
	}
	if cfg.Server.Environment != "development" {
		t.Errorf("Server.Environment = %q, want development", cfg.Server.Environment)
	}
	if cfg.Database.Path != "/data/soundproof.duckdb" {
		t.Errorf("Database.Path = %q, want /data/soundproof.duckdb", cfg.Database.Path)
	}
	if cfg.Ingest.MaxBatchSize != 1000 {
		t.Errorf("Ingest.MaxBatchSize = %d, want 1000", cfg.Ingest.MaxBatchSize)
	}
	if cfg.Ingest.MaxClockAhead != 5*time.Minute {
		t.Errorf("Ingest.MaxClockAhead = %s, want 5m", cfg.Ingest.MaxClockAhead)
	}
	if cfg.NATS.Enabled {
		t.Error("NATS.Enabled = true, want false by default")
	}
	if cfg.NATS.StreamName != "PLAYS" {
		t.Errorf("NATS.StreamName = %q, want PLAYS", cfg.NATS.StreamName)
	}
	if cfg.Payout.DayOfMonth != 2 {
		t.Errorf("Payout.DayOfMonth = %d, want 2", cfg.Payout.DayOfMonth)
	}
	if cfg.Logging.Level != "info" {
		t.Errorf("Logging.Level = %q, want info", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverrides(t *testing.T) {
	t.Setenv("HTTP_PORT", "9090")
	t.Setenv("LOG_LEVEL", "debug")
	t.Setenv("IP_HASH_SALT", "test-salt")
	t.Setenv("NATS_ENABLED", "true")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want 9090", cfg.Server.Port)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want debug", cfg.Logging.Level)
	}
	if cfg.Security.IPHashSalt != "test-salt" {
		t.Errorf("Security.IPHashSalt = %q, want test-salt", cfg.Security.IPHashSalt)
	}
	if !cfg.NATS.Enabled {
		t.Error("NATS.Enabled = false, want true")
	}
}

func TestLoad_UnknownEnvIgnored(t *testing.T) {
	t.Setenv("RANDOM_UNRELATED_VAR", "value")

	if _, err := Load(); err != nil {
		t.Fatalf("Load() error = %v", err)
	}
}

func TestLoad_ConfigFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	yamlContent := `
server:
  port: 7777
logging:
  level: warn
`
	if err := os.WriteFile(path, []byte(yamlContent), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 7777 {
		t.Errorf("Server.Port = %d, want 7777", cfg.Server.Port)
	}
	if cfg.Logging.Level != "warn" {
		t.Errorf("Logging.Level = %q, want warn", cfg.Logging.Level)
	}
}

func TestLoad_EnvOverridesFile(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "config.yaml")
	if err := os.WriteFile(path, []byte("server:\n  port: 7777\n"), 0o600); err != nil {
		t.Fatalf("write config file: %v", err)
	}
	t.Setenv(ConfigPathEnvVar, path)
	t.Setenv("HTTP_PORT", "8888")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 8888 {
		t.Errorf("Server.Port = %d, want 8888 (env must win over file)", cfg.Server.Port)
	}
}

func TestValidate_ProductionSecrets(t *testing.T) {
	tests := []struct {
		name    string
		mutate  func(*Config)
		wantErr string
	}{
		{
			name: "missing jwt secret",
			mutate: func(c *Config) {
				c.Server.Environment = "production"
				c.Security.IPHashSalt = "salt"
			},
			wantErr: "JWT_SECRET is required",
		},
		{
			name: "short jwt secret",
			mutate: func(c *Config) {
				c.Server.Environment = "production"
				c.Security.JWTSecret = "too-short"
				c.Security.IPHashSalt = "salt"
			},
			wantErr: "at least 32 characters",
		},
		{
			name: "missing ip hash salt",
			mutate: func(c *Config) {
				c.Server.Environment = "production"
				c.Security.JWTSecret = strings.Repeat("s", 32)
			},
			wantErr: "IP_HASH_SALT is required",
		},
		{
			name: "valid production config",
			mutate: func(c *Config) {
				c.Server.Environment = "production"
				c.Security.JWTSecret = strings.Repeat("s", 32)
				c.Security.IPHashSalt = "salt"
			},
			wantErr: "",
		},
		{
			name:    "development passes without secrets",
			mutate:  func(c *Config) {},
			wantErr: "",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			err := cfg.Validate()
			if tt.wantErr == "" {
				if err != nil {
					t.Fatalf("Validate() error = %v, want nil", err)
				}
				return
			}
			if err == nil {
				t.Fatal("Validate() = nil, want error")
			}
			if !strings.Contains(err.Error(), tt.wantErr) {
				t.Errorf("Validate() error = %q, want containing %q", err, tt.wantErr)
			}
		})
	}
}

func TestValidate_Bounds(t *testing.T) {
	tests := []struct {
		name   string
		mutate func(*Config)
	}{
		{"port zero", func(c *Config) { c.Server.Port = 0 }},
		{"port too high", func(c *Config) { c.Server.Port = 70000 }},
		{"bad environment", func(c *Config) { c.Server.Environment = "prod" }},
		{"batch size zero", func(c *Config) { c.Ingest.MaxBatchSize = 0 }},
		{"batch size too large", func(c *Config) { c.Ingest.MaxBatchSize = 1001 }},
		{"clock ahead zero", func(c *Config) { c.Ingest.MaxClockAhead = 0 }},
		{"payout day zero", func(c *Config) { c.Payout.DayOfMonth = 0 }},
		{"payout day 29", func(c *Config) { c.Payout.DayOfMonth = 29 }},
		{"payout hour 24", func(c *Config) { c.Payout.Hour = 24 }},
		{"bad log level", func(c *Config) { c.Logging.Level = "verbose" }},
		{"bad log format", func(c *Config) { c.Logging.Format = "text" }},
		{"rate limit zero", func(c *Config) { c.Security.RateLimitReqs = 0 }},
		{"nats enabled without url", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.EmbeddedServer = false
			c.NATS.URL = ""
		}},
		{"nats empty stream name", func(c *Config) {
			c.NATS.Enabled = true
			c.NATS.StreamName = ""
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := defaultConfig()
			tt.mutate(cfg)
			if err := cfg.Validate(); err == nil {
				t.Error("Validate() = nil, want error")
			}
		})
	}
}

func TestEnvTransformFunc(t *testing.T) {
	tests := []struct {
		key  string
		want string
	}{
		{"JWT_SECRET", "security.jwt_secret"},
		{"HTTP_PORT", "server.port"},
		{"DUCKDB_PATH", "database.path"},
		{"NATS_ENABLED", "nats.enabled"},
		{"PATH", ""},
		{"HOME", ""},
		{"SOME_RANDOM_VAR", ""},
	}

	for _, tt := range tests {
		if got := envTransformFunc(tt.key); got != tt.want {
			t.Errorf("envTransformFunc(%q) = %q, want %q", tt.key, got, tt.want)
		}
	}
}
