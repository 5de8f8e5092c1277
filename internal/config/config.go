package config

import (
	"flag"
	"fmt"
	"log/slog"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"
)

const (
	envVarListenAddr      = "BEAMDROP_LISTEN_ADDR"
	envVarPublicBaseURL   = "BEAMDROP_PUBLIC_BASE_URL"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "BEAMDROP_LOG_FORMAT"
	envVarLogLevel        = "BEAMDROP_LOG_LEVEL"
	envVarShutdownTimeout = "BEAMDROP_SHUTDOWN_TIMEOUT"
	envVarMode            = "BEAMDROP_MODE"
	envVarConfigFile      = "BEAMDROP_CONFIG"

	// Session lifecycle knobs.
	envVarSessionLifetime = "SESSION_LIFETIME"
	envVarReapInterval    = "REAP_INTERVAL"
	envVarMaxSessions     = "MAX_SESSIONS"

	// WebSocket hardening knobs.
	envVarWSIdleTimeout                 = "WS_IDLE_TIMEOUT"
	envVarWSPingInterval                = "WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
)

const (
	DefaultListenAddr           = "127.0.0.1:8080"
	DefaultShutdown             = 15 * time.Second
	DefaultSessionLifetime      = time.Hour
	DefaultReapInterval         = 30 * time.Second
	DefaultWSIdleTimeout        = 60 * time.Second
	DefaultWSPingInterval       = 20 * time.Second
	DefaultMode            Mode = ModeDev

	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
)

type Mode string

const (
	ModeDev  Mode = "dev"
	ModeProd Mode = "prod"
)

type LogFormat string

const (
	LogFormatText LogFormat = "text"
	LogFormatJSON LogFormat = "json"
)

type Config struct {
	ListenAddr      string
	PublicBaseURL   string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	// Session lifecycle.
	SessionLifetime time.Duration
	ReapInterval    time.Duration
	MaxSessions     int

	// WebSocket hardening.
	WSIdleTimeout                 time.Duration
	WSPingInterval                time.Duration
	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int

	// ICEServers is handed to browser clients via GET /webrtc/ice; this
	// relay never opens PeerConnections itself.
	ICEServers []webrtc.ICEServer

	iceConfigErr error
}

// ICEConfigError surfaces an invalid ICE configuration without failing
// startup; /readyz reports it.
func (c Config) ICEConfigError() error {
	return c.iceConfigErr
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

// load resolves configuration with precedence: built-in defaults, then the
// optional TOML file, then environment, then flags.
func load(lookup func(string) (string, bool), args []string) (Config, error) {
	defaults := fileDefaults{
		ListenAddr:                    DefaultListenAddr,
		ShutdownTimeout:               DefaultShutdown,
		SessionLifetime:               DefaultSessionLifetime,
		ReapInterval:                  DefaultReapInterval,
		WSIdleTimeout:                 DefaultWSIdleTimeout,
		WSPingInterval:                DefaultWSPingInterval,
		MaxSignalingMessageBytes:      DefaultMaxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: DefaultMaxSignalingMessagesPerSecond,
	}

	configPath := envOrDefault(lookup, envVarConfigFile, "")
	if fromArgs := configPathFromArgs(args); fromArgs != "" {
		configPath = fromArgs
	}
	if configPath != "" {
		if err := applyConfigFile(configPath, &defaults); err != nil {
			return Config{}, err
		}
	}

	envMode, _ := lookup(envVarMode)
	modeDefault := string(DefaultMode)
	if defaults.Mode != "" {
		modeDefault = defaults.Mode
	}
	if envMode != "" {
		modeDefault = envMode
	}

	envLogFormat, envLogFormatOK := lookup(envVarLogFormat)
	envLogFormatSet := envLogFormatOK && envLogFormat != ""
	logFormatDefault := envLogFormat
	if !envLogFormatSet {
		logFormatDefault = defaults.LogFormat
	}
	if logFormatDefault == "" {
		logFormatDefault = defaultLogFormatForMode(modeDefault)
	}

	envLogLevel, envLogLevelOK := lookup(envVarLogLevel)
	envLogLevelSet := envLogLevelOK && envLogLevel != ""
	logLevelDefault := envLogLevel
	if !envLogLevelSet {
		logLevelDefault = defaults.LogLevel
	}
	if logLevelDefault == "" {
		logLevelDefault = defaultLogLevelForMode(modeDefault)
	}

	listenAddr := envOrDefault(lookup, envVarListenAddr, defaults.ListenAddr)
	publicBaseURL := envOrDefault(lookup, envVarPublicBaseURL, defaults.PublicBaseURL)
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, strings.Join(defaults.AllowedOrigins, ","))
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, defaults.ICEServersJSON)
	stunURLs := envOrDefault(lookup, envStunURLs, defaults.StunURLs)
	turnURLs := envOrDefault(lookup, envTurnURLs, defaults.TurnURLs)
	turnUsername := envOrDefault(lookup, envTurnUsername, defaults.TurnUsername)
	turnCredential := envOrDefault(lookup, envTurnCredential, defaults.TurnCredential)

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, defaults.ShutdownTimeout)
	if err != nil {
		return Config{}, err
	}
	sessionLifetime, err := envDurationOrDefault(lookup, envVarSessionLifetime, defaults.SessionLifetime)
	if err != nil {
		return Config{}, err
	}
	reapInterval, err := envDurationOrDefault(lookup, envVarReapInterval, defaults.ReapInterval)
	if err != nil {
		return Config{}, err
	}
	wsIdleTimeout, err := envDurationOrDefault(lookup, envVarWSIdleTimeout, defaults.WSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	wsPingInterval, err := envDurationOrDefault(lookup, envVarWSPingInterval, defaults.WSPingInterval)
	if err != nil {
		return Config{}, err
	}

	maxSessions, err := envIntOrDefault(lookup, envVarMaxSessions, defaults.MaxSessions)
	if err != nil {
		return Config{}, err
	}
	maxSignalingMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, defaults.MaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}

	maxSignalingMessageBytes := defaults.MaxSignalingMessageBytes
	if raw, ok := lookup(envVarMaxSignalingMessageBytes); ok && strings.TrimSpace(raw) != "" {
		n, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarMaxSignalingMessageBytes, raw, err)
		}
		maxSignalingMessageBytes = n
	}

	fs := flag.NewFlagSet("beamdrop-signal-relay", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)

	var (
		modeStr        string
		logFormatStr   string
		logLevelStr    string
		configPathFlag string
	)

	fs.StringVar(&configPathFlag, "config", configPath, "Optional TOML config file (env "+envVarConfigFile+")")
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP listen address (host:port)")
	fs.StringVar(&publicBaseURL, "public-base-url", publicBaseURL, "Public base URL (optional; used for logging)")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", modeDefault, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logFormatDefault, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logLevelDefault, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (env "+envVarShutdownTimeout+")")
	fs.DurationVar(&sessionLifetime, "session-lifetime", sessionLifetime, "Evict sessions older than this (env "+envVarSessionLifetime+")")
	fs.DurationVar(&reapInterval, "reap-interval", reapInterval, "How often the reaper scans for expired sessions (env "+envVarReapInterval+")")
	fs.IntVar(&maxSessions, "max-sessions", maxSessions, "Maximum concurrent sessions (0 = unlimited; env "+envVarMaxSessions+")")
	fs.DurationVar(&wsIdleTimeout, "ws-idle-timeout", wsIdleTimeout, "Close idle signaling WebSocket connections after this duration (env "+envVarWSIdleTimeout+")")
	fs.DurationVar(&wsPingInterval, "ws-ping-interval", wsPingInterval, "Send ping frames at this interval (must be < --ws-idle-timeout; env "+envVarWSPingInterval+")")
	fs.Int64Var(&maxSignalingMessageBytes, "max-signaling-message-bytes", maxSignalingMessageBytes, "Max inbound signaling message size in bytes (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&maxSignalingMessagesPerSecond, "max-signaling-messages-per-second", maxSignalingMessagesPerSecond, "Max inbound signaling messages per second per connection (env "+envVarMaxSignalingMessagesPerSecond+")")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config (env "+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "Comma-separated STUN URLs (env "+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "Comma-separated TURN URLs (env "+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username (env "+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential (env "+envTurnCredential+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return Config{}, err
	}

	if !envLogFormatSet && defaults.LogFormat == "" && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !envLogLevelSet && defaults.LogLevel == "" && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return Config{}, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return Config{}, err
	}

	if listenAddr == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--shutdown-timeout must be > 0", envVarShutdownTimeout)
	}
	if sessionLifetime <= 0 {
		return Config{}, fmt.Errorf("%s/--session-lifetime must be > 0", envVarSessionLifetime)
	}
	if reapInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--reap-interval must be > 0", envVarReapInterval)
	}
	if maxSessions < 0 {
		return Config{}, fmt.Errorf("%s/--max-sessions must be >= 0", envVarMaxSessions)
	}
	if wsIdleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-idle-timeout must be > 0", envVarWSIdleTimeout)
	}
	if wsPingInterval <= 0 {
		return Config{}, fmt.Errorf("%s/--ws-ping-interval must be > 0", envVarWSPingInterval)
	}
	if wsPingInterval >= wsIdleTimeout {
		return Config{}, fmt.Errorf("%s/--ws-ping-interval must be < %s/--ws-idle-timeout", envVarWSPingInterval, envVarWSIdleTimeout)
	}
	if maxSignalingMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > 0", envVarMaxSignalingMessageBytes)
	}
	if maxSignalingMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-messages-per-second must be > 0", envVarMaxSignalingMessagesPerSecond)
	}

	cfg := Config{
		ListenAddr:      listenAddr,
		PublicBaseURL:   publicBaseURL,
		AllowedOrigins:  splitCommaSeparated(allowedOriginsStr),
		LogFormat:       logFormat,
		LogLevel:        level,
		ShutdownTimeout: shutdownTimeout,
		Mode:            mode,

		SessionLifetime: sessionLifetime,
		ReapInterval:    reapInterval,
		MaxSessions:     maxSessions,

		WSIdleTimeout:                 wsIdleTimeout,
		WSPingInterval:                wsPingInterval,
		MaxSignalingMessageBytes:      maxSignalingMessageBytes,
		MaxSignalingMessagesPerSecond: maxSignalingMessagesPerSecond,
	}

	iceServers, iceErr := parseICEServersFromValues(iceServersJSON, stunURLs, turnURLs, turnUsername, turnCredential)
	cfg.ICEServers = iceServers
	cfg.iceConfigErr = iceErr

	return cfg, nil
}

// configPathFromArgs pre-scans args for --config so the TOML file can seed
// flag defaults before the flag set parses.
func configPathFromArgs(args []string) string {
	for i := 0; i < len(args); i++ {
		arg := args[i]
		name, value, hasValue := strings.Cut(arg, "=")
		if name != "-config" && name != "--config" {
			continue
		}
		if hasValue {
			return value
		}
		if i+1 < len(args) {
			return args[i+1]
		}
	}
	return ""
}

func parseMode(s string) (Mode, error) {
	switch Mode(strings.TrimSpace(s)) {
	case ModeDev:
		return ModeDev, nil
	case ModeProd:
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (want dev or prod)", s)
	}
}

func parseLogFormat(s string) (LogFormat, error) {
	switch LogFormat(strings.TrimSpace(s)) {
	case LogFormatText:
		return LogFormatText, nil
	case LogFormatJSON:
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (want text or json)", s)
	}
}

func parseLogLevel(s string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return 0, fmt.Errorf("invalid log level %q (want debug, info, warn, or error)", s)
	}
}

func defaultLogFormatForMode(mode string) string {
	if Mode(mode) == ModeProd {
		return string(LogFormatJSON)
	}
	return string(LogFormatText)
}

func defaultLogLevelForMode(mode string) string {
	if Mode(mode) == ModeProd {
		return "info"
	}
	return "debug"
}

func envOrDefault(lookup func(string) (string, bool), key, fallback string) string {
	if v, ok := lookup(key); ok && v != "" {
		return v
	}
	return fallback
}

func envIntOrDefault(lookup func(string) (string, bool), key string, fallback int) (int, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	n, err := strconv.Atoi(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return n, nil
}

func envDurationOrDefault(lookup func(string) (string, bool), key string, fallback time.Duration) (time.Duration, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	d, err := time.ParseDuration(strings.TrimSpace(raw))
	if err != nil {
		return 0, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return d, nil
}
