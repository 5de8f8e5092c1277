package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/BurntSushi/toml"
)

// fileDefaults carries the resolved defaults that env vars and flags layer
// on top of. A TOML config file only replaces fields it actually defines.
type fileDefaults struct {
	ListenAddr     string
	PublicBaseURL  string
	AllowedOrigins []string
	LogFormat      string
	LogLevel       string
	Mode           string

	ShutdownTimeout time.Duration
	SessionLifetime time.Duration
	ReapInterval    time.Duration
	MaxSessions     int

	WSIdleTimeout                 time.Duration
	WSPingInterval                time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	ICEServersJSON string
	StunURLs       string
	TurnURLs       string
	TurnUsername   string
	TurnCredential string
}

type fileConfig struct {
	ListenAddr     string   `toml:"listen_addr"`
	PublicBaseURL  string   `toml:"public_base_url"`
	AllowedOrigins []string `toml:"allowed_origins"`
	LogFormat      string   `toml:"log_format"`
	LogLevel       string   `toml:"log_level"`
	Mode           string   `toml:"mode"`

	ShutdownTimeout string `toml:"shutdown_timeout"`
	SessionLifetime string `toml:"session_lifetime"`
	ReapInterval    string `toml:"reap_interval"`
	MaxSessions     int    `toml:"max_sessions"`

	WSIdleTimeout                 string `toml:"ws_idle_timeout"`
	WSPingInterval                string `toml:"ws_ping_interval"`
	MaxSignalingMessageBytes      int64  `toml:"max_signaling_message_bytes"`
	MaxSignalingMessagesPerSecond int    `toml:"max_signaling_messages_per_second"`

	ICEServersJSON string `toml:"ice_servers_json"`
	StunURLs       string `toml:"stun_urls"`
	TurnURLs       string `toml:"turn_urls"`
	TurnUsername   string `toml:"turn_username"`
	TurnCredential string `toml:"turn_credential"`
}

func applyConfigFile(path string, defaults *fileDefaults) error {
	var raw fileConfig
	meta, err := toml.DecodeFile(path, &raw)
	if err != nil {
		return fmt.Errorf("load config file %s: %w", path, err)
	}
	if undecoded := meta.Undecoded(); len(undecoded) > 0 {
		return fmt.Errorf("config file %s: unknown key %q", path, undecoded[0].String())
	}

	if meta.IsDefined("listen_addr") && strings.TrimSpace(raw.ListenAddr) != "" {
		defaults.ListenAddr = strings.TrimSpace(raw.ListenAddr)
	}
	if meta.IsDefined("public_base_url") {
		defaults.PublicBaseURL = strings.TrimSpace(raw.PublicBaseURL)
	}
	if meta.IsDefined("allowed_origins") {
		defaults.AllowedOrigins = raw.AllowedOrigins
	}
	if meta.IsDefined("log_format") {
		defaults.LogFormat = strings.TrimSpace(raw.LogFormat)
	}
	if meta.IsDefined("log_level") {
		defaults.LogLevel = strings.TrimSpace(raw.LogLevel)
	}
	if meta.IsDefined("mode") {
		defaults.Mode = strings.TrimSpace(raw.Mode)
	}

	if err := applyFileDuration(meta, "shutdown_timeout", raw.ShutdownTimeout, path, &defaults.ShutdownTimeout); err != nil {
		return err
	}
	if err := applyFileDuration(meta, "session_lifetime", raw.SessionLifetime, path, &defaults.SessionLifetime); err != nil {
		return err
	}
	if err := applyFileDuration(meta, "reap_interval", raw.ReapInterval, path, &defaults.ReapInterval); err != nil {
		return err
	}
	if err := applyFileDuration(meta, "ws_idle_timeout", raw.WSIdleTimeout, path, &defaults.WSIdleTimeout); err != nil {
		return err
	}
	if err := applyFileDuration(meta, "ws_ping_interval", raw.WSPingInterval, path, &defaults.WSPingInterval); err != nil {
		return err
	}

	if meta.IsDefined("max_sessions") {
		defaults.MaxSessions = raw.MaxSessions
	}
	if meta.IsDefined("max_signaling_message_bytes") {
		defaults.MaxSignalingMessageBytes = raw.MaxSignalingMessageBytes
	}
	if meta.IsDefined("max_signaling_messages_per_second") {
		defaults.MaxSignalingMessagesPerSecond = raw.MaxSignalingMessagesPerSecond
	}

	if meta.IsDefined("ice_servers_json") {
		defaults.ICEServersJSON = raw.ICEServersJSON
	}
	if meta.IsDefined("stun_urls") {
		defaults.StunURLs = raw.StunURLs
	}
	if meta.IsDefined("turn_urls") {
		defaults.TurnURLs = raw.TurnURLs
	}
	if meta.IsDefined("turn_username") {
		defaults.TurnUsername = raw.TurnUsername
	}
	if meta.IsDefined("turn_credential") {
		defaults.TurnCredential = raw.TurnCredential
	}

	return nil
}

func applyFileDuration(meta toml.MetaData, key, raw, path string, dst *time.Duration) error {
	if !meta.IsDefined(key) {
		return nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return fmt.Errorf("config file %s: invalid %s %q: %w", path, key, raw, err)
	}
	*dst = d
	return nil
}
