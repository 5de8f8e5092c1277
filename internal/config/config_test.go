package config

import (
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func lookupFromMap(env map[string]string) func(string) (string, bool) {
	return func(key string) (string, bool) {
		v, ok := env[key]
		return v, ok
	}
}

func TestLoad_Defaults(t *testing.T) {
	cfg, err := load(lookupFromMap(nil), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != DefaultListenAddr {
		t.Fatalf("ListenAddr=%q, want %q", cfg.ListenAddr, DefaultListenAddr)
	}
	if cfg.SessionLifetime != time.Hour {
		t.Fatalf("SessionLifetime=%v, want 1h", cfg.SessionLifetime)
	}
	if cfg.ReapInterval != 30*time.Second {
		t.Fatalf("ReapInterval=%v, want 30s", cfg.ReapInterval)
	}
	if cfg.Mode != ModeDev {
		t.Fatalf("Mode=%q, want dev", cfg.Mode)
	}
	// Dev mode defaults to text/debug logging.
	if cfg.LogFormat != LogFormatText || cfg.LogLevel != slog.LevelDebug {
		t.Fatalf("log defaults=(%q,%v), want (text,debug)", cfg.LogFormat, cfg.LogLevel)
	}
}

func TestLoad_ProdModeLogDefaults(t *testing.T) {
	cfg, err := load(lookupFromMap(nil), []string{"--mode=prod"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.LogFormat != LogFormatJSON || cfg.LogLevel != slog.LevelInfo {
		t.Fatalf("prod log defaults=(%q,%v), want (json,info)", cfg.LogFormat, cfg.LogLevel)
	}
}

func TestLoad_EnvOverriddenByFlags(t *testing.T) {
	env := map[string]string{
		"BEAMDROP_LISTEN_ADDR": "127.0.0.1:9000",
		"SESSION_LIFETIME":     "30m",
		"MAX_SESSIONS":         "10",
		"ALLOWED_ORIGINS":      "https://a.example, https://b.example",
	}

	cfg, err := load(lookupFromMap(env), []string{"--max-sessions=20"})
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != "127.0.0.1:9000" {
		t.Fatalf("ListenAddr=%q, want env value", cfg.ListenAddr)
	}
	if cfg.SessionLifetime != 30*time.Minute {
		t.Fatalf("SessionLifetime=%v, want 30m", cfg.SessionLifetime)
	}
	if cfg.MaxSessions != 20 {
		t.Fatalf("MaxSessions=%d, want flag override 20", cfg.MaxSessions)
	}
	if len(cfg.AllowedOrigins) != 2 || cfg.AllowedOrigins[0] != "https://a.example" || cfg.AllowedOrigins[1] != "https://b.example" {
		t.Fatalf("AllowedOrigins=%v, want trimmed two-entry list", cfg.AllowedOrigins)
	}
}

func TestLoad_ConfigFileBelowEnv(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	content := strings.Join([]string{
		`listen_addr = "0.0.0.0:7000"`,
		`session_lifetime = "2h"`,
		`max_sessions = 5`,
	}, "\n")
	if err := os.WriteFile(path, []byte(content), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	env := map[string]string{
		"BEAMDROP_CONFIG": path,
		"MAX_SESSIONS":    "50",
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}

	if cfg.ListenAddr != "0.0.0.0:7000" {
		t.Fatalf("ListenAddr=%q, want config file value", cfg.ListenAddr)
	}
	if cfg.SessionLifetime != 2*time.Hour {
		t.Fatalf("SessionLifetime=%v, want 2h from config file", cfg.SessionLifetime)
	}
	if cfg.MaxSessions != 50 {
		t.Fatalf("MaxSessions=%d, want env override 50", cfg.MaxSessions)
	}
}

func TestLoad_ConfigFileUnknownKey(t *testing.T) {
	path := filepath.Join(t.TempDir(), "relay.toml")
	if err := os.WriteFile(path, []byte(`listne_addr = "oops"`), 0o600); err != nil {
		t.Fatalf("WriteFile: %v", err)
	}

	_, err := load(lookupFromMap(nil), []string{"--config", path})
	if err == nil || !strings.Contains(err.Error(), "unknown key") {
		t.Fatalf("load err=%v, want unknown key error", err)
	}
}

func TestLoad_Validation(t *testing.T) {
	tests := []struct {
		name string
		env  map[string]string
		args []string
	}{
		{"zero session lifetime", map[string]string{"SESSION_LIFETIME": "0s"}, nil},
		{"bad reap interval", map[string]string{"REAP_INTERVAL": "soon"}, nil},
		{"ping >= idle", nil, []string{"--ws-ping-interval=90s"}},
		{"bad mode", nil, []string{"--mode=staging"}},
		{"bad log level", nil, []string{"--log-level=loud"}},
		{"negative max sessions", map[string]string{"MAX_SESSIONS": "-1"}, nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := load(lookupFromMap(tt.env), tt.args); err == nil {
				t.Fatalf("load succeeded, want error")
			}
		})
	}
}

func TestLoad_ICEConfigErrorIsNonFatal(t *testing.T) {
	env := map[string]string{
		"BEAMDROP_TURN_URLS": "turn:turn.example.com:3478",
		// Missing TURN username/credential.
	}
	cfg, err := load(lookupFromMap(env), nil)
	if err != nil {
		t.Fatalf("load: %v", err)
	}
	if cfg.ICEConfigError() == nil {
		t.Fatalf("expected ICE config error for TURN urls without credentials")
	}
}
