package config

import (
	"strings"
	"testing"
	"time"
)

// testKey is a valid hex-encoded 32-byte key for tests.
const testKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

func setRequired(t *testing.T) {
	t.Helper()
	t.Setenv("DATABASE_URL", "postgres://localhost/qbank_test")
	t.Setenv("FIELD_ENCRYPTION_KEY", testKey)
}

func TestLoad_Defaults(t *testing.T) {
	setRequired(t)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Host != "0.0.0.0" {
		t.Errorf("Server.Host = %q, want %q", cfg.Server.Host, "0.0.0.0")
	}
	if cfg.Server.Port != 8080 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 8080)
	}
	if cfg.Import.BatchSize != 50 {
		t.Errorf("Import.BatchSize = %d, want %d", cfg.Import.BatchSize, 50)
	}
	if cfg.Import.MaxFileSize != 52428800 {
		t.Errorf("Import.MaxFileSize = %d, want %d", cfg.Import.MaxFileSize, 52428800)
	}
	if cfg.Rate.MaxRequests != 10 {
		t.Errorf("Rate.MaxRequests = %d, want %d", cfg.Rate.MaxRequests, 10)
	}
	if cfg.Rate.Window != 60*time.Second {
		t.Errorf("Rate.Window = %v, want %v", cfg.Rate.Window, 60*time.Second)
	}
	if cfg.Export.PageSize != 500 {
		t.Errorf("Export.PageSize = %d, want %d", cfg.Export.PageSize, 500)
	}
}

func TestLoad_OverrideDefaults(t *testing.T) {
	setRequired(t)
	t.Setenv("SERVER_PORT", "9090")
	t.Setenv("IMPORT_BATCH_SIZE", "25")
	t.Setenv("RATE_LIMIT_WINDOW", "2m")
	t.Setenv("LOG_LEVEL", "debug")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Server.Port != 9090 {
		t.Errorf("Server.Port = %d, want %d", cfg.Server.Port, 9090)
	}
	if cfg.Import.BatchSize != 25 {
		t.Errorf("Import.BatchSize = %d, want %d", cfg.Import.BatchSize, 25)
	}
	if cfg.Rate.Window != 2*time.Minute {
		t.Errorf("Rate.Window = %v, want %v", cfg.Rate.Window, 2*time.Minute)
	}
	if cfg.Logging.Level != "debug" {
		t.Errorf("Logging.Level = %q, want %q", cfg.Logging.Level, "debug")
	}
}

func TestLoad_AltEnvVar(t *testing.T) {
	t.Setenv("DB_URL", "postgres://localhost/alttest")
	t.Setenv("FIELD_ENCRYPTION_KEY", testKey)

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	if cfg.Database.URL != "postgres://localhost/alttest" {
		t.Errorf("Database.URL = %q, want %q", cfg.Database.URL, "postgres://localhost/alttest")
	}
}

func TestLoad_MissingRequired(t *testing.T) {
	t.Setenv("DATABASE_URL", "")
	t.Setenv("DB_URL", "")
	t.Setenv("FIELD_ENCRYPTION_KEY", testKey)

	if _, err := Load(); err == nil {
		t.Fatal("Load() succeeded without DATABASE_URL")
	}
}

func TestLoad_InvalidValues(t *testing.T) {
	tests := []struct {
		name  string
		key   string
		value string
	}{
		{"bad integer", "SERVER_PORT", "not-a-number"},
		{"bad duration", "IMPORT_TIMEOUT", "ten minutes"},
		{"bad boolean", "RATE_LIMIT_ENABLED", "maybe"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			setRequired(t)
			t.Setenv(tt.key, tt.value)

			if _, err := Load(); err == nil {
				t.Errorf("Load() succeeded with %s=%q", tt.key, tt.value)
			}
		})
	}
}

func TestLoad_CommaSeparatedSlice(t *testing.T) {
	setRequired(t)
	t.Setenv("SECURITY_API_KEYS", "alpha, beta ,gamma,")

	cfg, err := Load()
	if err != nil {
		t.Fatalf("Load() error = %v", err)
	}

	want := []string{"alpha", "beta", "gamma"}
	if len(cfg.Security.APIKeys) != len(want) {
		t.Fatalf("APIKeys = %v, want %v", cfg.Security.APIKeys, want)
	}
	for i := range want {
		if cfg.Security.APIKeys[i] != want[i] {
			t.Errorf("APIKeys[%d] = %q, want %q", i, cfg.Security.APIKeys[i], want[i])
		}
	}
}

func TestCryptoConfig_MasterKey(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		wantErr bool
	}{
		{"valid 32-byte key", testKey, false},
		{"not hex", "zz" + testKey[2:], true},
		{"too short", "00010203", true},
		{"empty", "", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			c := CryptoConfig{Key: tt.key}
			key, err := c.MasterKey()
			if (err != nil) != tt.wantErr {
				t.Fatalf("MasterKey() error = %v, wantErr %v", err, tt.wantErr)
			}
			if !tt.wantErr && len(key) != 32 {
				t.Errorf("key length = %d, want 32", len(key))
			}
		})
	}
}

func TestValidate_MaxConnsBelowMin(t *testing.T) {
	setRequired(t)
	t.Setenv("DB_MAX_CONNS", "2")
	t.Setenv("DB_MIN_CONNS", "4")

	_, err := Load()
	if err == nil {
		t.Fatal("Load() succeeded with DB_MAX_CONNS < DB_MIN_CONNS")
	}
	if !strings.Contains(err.Error(), "DB_MAX_CONNS") {
		t.Errorf("error %q does not mention DB_MAX_CONNS", err)
	}
}
