package config

import (
	"flag"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/pion/webrtc/v4"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/origin"
)

const (
	// envVarPort is honored for compatibility with PaaS-style deployments that
	// only hand the process a port number.
	envVarPort            = "PORT"
	envVarListenAddr      = "AERO_CALL_RELAY_LISTEN_ADDR"
	envVarAllowedOrigins  = "ALLOWED_ORIGINS"
	envVarLogFormat       = "AERO_CALL_RELAY_LOG_FORMAT"
	envVarLogLevel        = "AERO_CALL_RELAY_LOG_LEVEL"
	envVarShutdownTimeout = "AERO_CALL_RELAY_SHUTDOWN_TIMEOUT"
	envVarMode            = "AERO_CALL_RELAY_MODE"

	// Signaling WebSocket hardening.
	envVarSignalingWSIdleTimeout        = "SIGNALING_WS_IDLE_TIMEOUT"
	envVarSignalingWSPingInterval       = "SIGNALING_WS_PING_INTERVAL"
	envVarMaxSignalingMessageBytes      = "MAX_SIGNALING_MESSAGE_BYTES"
	envVarMaxSignalingMessagesPerSecond = "MAX_SIGNALING_MESSAGES_PER_SECOND"
	envVarSignalingSendQueueBytes       = "SIGNALING_SEND_QUEUE_BYTES"

	// TURN REST (coturn use-auth-secret) credentials minted by GET /webrtc/ice.
	envVarTURNRESTSharedSecret   = "TURN_REST_SHARED_SECRET"
	envVarTURNRESTTTLSeconds     = "TURN_REST_TTL_SECONDS"
	envVarTURNRESTUsernamePrefix = "TURN_REST_USERNAME_PREFIX"

	// Client only.
	envVarRelayURL     = "AERO_CALL_RELAY_URL"
	envVarRelayOrigin  = "AERO_CALL_RELAY_ORIGIN"
	envVarICEFromRelay = "AERO_ICE_FROM_RELAY"

	DefaultPort                 = 8081
	DefaultListenAddr           = "0.0.0.0:8081"
	DefaultShutdown             = 15 * time.Second
	DefaultMode            Mode = ModeDev
	DefaultRelayURL             = "ws://127.0.0.1:8081/"
	DefaultSTUNURL              = "stun:stun.l.google.com:19302"

	DefaultSignalingWSIdleTimeout        = 60 * time.Second
	DefaultSignalingWSPingInterval       = 20 * time.Second
	DefaultMaxSignalingMessageBytes      = int64(64 * 1024)
	DefaultMaxSignalingMessagesPerSecond = 50
	DefaultSignalingSendQueueBytes       = 1 << 20 // 1MiB

	DefaultTURNRESTTTLSeconds     int64 = 3600
	DefaultTURNRESTUsernamePrefix       = "aero"
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

// Config configures the relay process.
type Config struct {
	ListenAddr      string
	AllowedOrigins  []string
	LogFormat       LogFormat
	LogLevel        slog.Level
	ShutdownTimeout time.Duration
	Mode            Mode

	SignalingWSIdleTimeout  time.Duration
	SignalingWSPingInterval time.Duration

	MaxSignalingMessageBytes      int64
	MaxSignalingMessagesPerSecond int
	// SignalingSendQueueBytes bounds each connection's outbound queue. A
	// connection that falls this far behind is closed.
	SignalingSendQueueBytes int

	// ICEServers is the list GET /webrtc/ice hands to clients.
	ICEServers []webrtc.ICEServer
	TURNREST   TURNRESTConfig
}

type TURNRESTConfig struct {
	SharedSecret   string
	TTLSeconds     int64
	UsernamePrefix string
}

func (c TURNRESTConfig) Enabled() bool { return c.SharedSecret != "" }

// ClientConfig configures the headless call client.
type ClientConfig struct {
	RelayURL string
	// Origin is sent on the WebSocket handshake when set. Relays with an
	// ALLOWED_ORIGINS list require it.
	Origin     string
	LogFormat  LogFormat
	LogLevel   slog.Level
	Mode       Mode
	ICEServers []webrtc.ICEServer
	// ICEFromRelay replaces ICEServers with the relay's GET /webrtc/ice
	// answer at startup.
	ICEFromRelay bool

	// WebRTCUDPPortRange restricts the UDP ports used for ICE. When nil, pion
	// uses OS ephemeral port selection.
	WebRTCUDPPortRange *UDPPortRange
	// WebRTCUDPListenIP limits candidate gathering to one local address unless
	// it is unspecified.
	WebRTCUDPListenIP net.IP
}

func Load(args []string) (Config, error) {
	return load(os.LookupEnv, args)
}

func LoadClient(args []string) (ClientConfig, error) {
	return loadClient(os.LookupEnv, args)
}

func load(lookup func(string) (string, bool), args []string) (Config, error) {
	logDefaults := loggingDefaultsFromEnv(lookup)

	listenAddr := DefaultListenAddr
	if raw, ok := lookup(envVarPort); ok && strings.TrimSpace(raw) != "" {
		port, err := strconv.ParseUint(strings.TrimSpace(raw), 10, 16)
		if err != nil || port == 0 {
			return Config{}, fmt.Errorf("invalid %s %q", envVarPort, raw)
		}
		listenAddr = net.JoinHostPort("0.0.0.0", strconv.FormatUint(port, 10))
	}
	listenAddr = envOrDefault(lookup, envVarListenAddr, listenAddr)
	allowedOriginsStr := envOrDefault(lookup, envVarAllowedOrigins, "")

	shutdownTimeout, err := envDurationOrDefault(lookup, envVarShutdownTimeout, DefaultShutdown)
	if err != nil {
		return Config{}, err
	}
	idleTimeout, err := envDurationOrDefault(lookup, envVarSignalingWSIdleTimeout, DefaultSignalingWSIdleTimeout)
	if err != nil {
		return Config{}, err
	}
	pingInterval, err := envDurationOrDefault(lookup, envVarSignalingWSPingInterval, DefaultSignalingWSPingInterval)
	if err != nil {
		return Config{}, err
	}
	maxMessageBytes, err := envIntOrDefault(lookup, envVarMaxSignalingMessageBytes, int(DefaultMaxSignalingMessageBytes))
	if err != nil {
		return Config{}, err
	}
	maxMessagesPerSecond, err := envIntOrDefault(lookup, envVarMaxSignalingMessagesPerSecond, DefaultMaxSignalingMessagesPerSecond)
	if err != nil {
		return Config{}, err
	}
	sendQueueBytes, err := envIntOrDefault(lookup, envVarSignalingSendQueueBytes, DefaultSignalingSendQueueBytes)
	if err != nil {
		return Config{}, err
	}
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")
	turnRESTSharedSecret := envOrDefault(lookup, envVarTURNRESTSharedSecret, "")
	turnRESTTTLSeconds := DefaultTURNRESTTTLSeconds
	if raw, ok := lookup(envVarTURNRESTTTLSeconds); ok && strings.TrimSpace(raw) != "" {
		v, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
		if err != nil {
			return Config{}, fmt.Errorf("invalid %s %q: %w", envVarTURNRESTTTLSeconds, raw, err)
		}
		turnRESTTTLSeconds = v
	}
	turnRESTUsernamePrefix := envOrDefault(lookup, envVarTURNRESTUsernamePrefix, DefaultTURNRESTUsernamePrefix)

	fs := flag.NewFlagSet("aero-call-relay", flag.ContinueOnError)

	var modeStr, logFormatStr, logLevelStr string
	fs.StringVar(&listenAddr, "listen-addr", listenAddr, "HTTP/WebSocket listen address (host:port; env "+envVarListenAddr+" or "+envVarPort+")")
	fs.StringVar(&allowedOriginsStr, "allowed-origins", allowedOriginsStr, "Comma-separated list of allowed browser origins, * or self; empty allows any (env "+envVarAllowedOrigins+")")
	fs.StringVar(&modeStr, "mode", logDefaults.mode, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logDefaults.format, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logDefaults.level, "Log level: debug, info, warn, error")
	fs.DurationVar(&shutdownTimeout, "shutdown-timeout", shutdownTimeout, "Graceful shutdown timeout (e.g. 15s)")
	fs.DurationVar(&idleTimeout, "signaling-ws-idle-timeout", idleTimeout, "Close signaling WebSocket connections that stop answering pings after this duration (env "+envVarSignalingWSIdleTimeout+")")
	fs.DurationVar(&pingInterval, "signaling-ws-ping-interval", pingInterval, "Send ping frames on signaling WebSocket connections at this interval (must be < --signaling-ws-idle-timeout; env "+envVarSignalingWSPingInterval+")")
	fs.IntVar(&maxMessageBytes, "max-signaling-message-bytes", maxMessageBytes, "Max inbound signaling message size in bytes (env "+envVarMaxSignalingMessageBytes+")")
	fs.IntVar(&maxMessagesPerSecond, "max-signaling-messages-per-second", maxMessagesPerSecond, "Max inbound signaling messages per second per connection (env "+envVarMaxSignalingMessagesPerSecond+")")
	fs.IntVar(&sendQueueBytes, "signaling-send-queue-bytes", sendQueueBytes, "Max queued outbound bytes per connection before it is closed (env "+envVarSignalingSendQueueBytes+")")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE servers served on /webrtc/ice, as JSON ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential ("+envTurnCredential+")")
	fs.StringVar(&turnRESTSharedSecret, "turn-rest-shared-secret", turnRESTSharedSecret, "TURN REST shared secret ("+envVarTURNRESTSharedSecret+")")
	fs.Int64Var(&turnRESTTTLSeconds, "turn-rest-ttl-seconds", turnRESTTTLSeconds, "TURN REST credential TTL seconds ("+envVarTURNRESTTTLSeconds+")")
	fs.StringVar(&turnRESTUsernamePrefix, "turn-rest-username-prefix", turnRESTUsernamePrefix, "TURN REST username prefix ("+envVarTURNRESTUsernamePrefix+")")

	if err := fs.Parse(args); err != nil {
		return Config{}, err
	}

	mode, logFormat, level, err := resolveLogging(fs, logDefaults, modeStr, logFormatStr, logLevelStr)
	if err != nil {
		return Config{}, err
	}

	allowedOrigins, err := parseAllowedOrigins(allowedOriginsStr)
	if err != nil {
		return Config{}, fmt.Errorf("invalid %s/--allowed-origins: %w", envVarAllowedOrigins, err)
	}

	if strings.TrimSpace(listenAddr) == "" {
		return Config{}, fmt.Errorf("listen address must not be empty")
	}
	if _, _, err := net.SplitHostPort(listenAddr); err != nil {
		return Config{}, fmt.Errorf("invalid listen address %q: %w", listenAddr, err)
	}
	if shutdownTimeout <= 0 {
		return Config{}, fmt.Errorf("shutdown timeout must be > 0")
	}
	if idleTimeout <= 0 {
		return Config{}, fmt.Errorf("%s/--signaling-ws-idle-timeout must be > 0", envVarSignalingWSIdleTimeout)
	}
	if pingInterval <= 0 || pingInterval >= idleTimeout {
		return Config{}, fmt.Errorf("%s/--signaling-ws-ping-interval must be > 0 and < the idle timeout (%s)", envVarSignalingWSPingInterval, idleTimeout)
	}
	if maxMessageBytes <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-message-bytes must be > 0", envVarMaxSignalingMessageBytes)
	}
	if maxMessagesPerSecond <= 0 {
		return Config{}, fmt.Errorf("%s/--max-signaling-messages-per-second must be > 0", envVarMaxSignalingMessagesPerSecond)
	}
	if sendQueueBytes < maxMessageBytes {
		return Config{}, fmt.Errorf("%s/--signaling-send-queue-bytes must be >= the max message size (%d)", envVarSignalingSendQueueBytes, maxMessageBytes)
	}

	turnREST := TURNRESTConfig{
		SharedSecret:   strings.TrimSpace(turnRESTSharedSecret),
		TTLSeconds:     turnRESTTTLSeconds,
		UsernamePrefix: strings.TrimSpace(turnRESTUsernamePrefix),
	}
	if turnREST.Enabled() {
		if turnREST.TTLSeconds <= 0 {
			return Config{}, fmt.Errorf("%s must be > 0 when %s is set", envVarTURNRESTTTLSeconds, envVarTURNRESTSharedSecret)
		}
		if turnREST.UsernamePrefix == "" {
			return Config{}, fmt.Errorf("%s must be non-empty when %s is set", envVarTURNRESTUsernamePrefix, envVarTURNRESTSharedSecret)
		}
		if strings.Contains(turnREST.UsernamePrefix, ":") {
			return Config{}, fmt.Errorf("%s must not contain ':'", envVarTURNRESTUsernamePrefix)
		}
	}
	iceServers, err := ICESettings{
		JSON:           iceServersJSON,
		STUNURLs:       stunURLs,
		TURNURLs:       turnURLs,
		TURNUsername:   turnUsername,
		TURNCredential: turnCredential,
		MintedTURN:     turnREST.Enabled(),
	}.Resolve()
	if err != nil {
		return Config{}, err
	}

	return Config{
		ListenAddr:                    listenAddr,
		AllowedOrigins:                allowedOrigins,
		LogFormat:                     logFormat,
		LogLevel:                      level,
		ShutdownTimeout:               shutdownTimeout,
		Mode:                          mode,
		SignalingWSIdleTimeout:        idleTimeout,
		SignalingWSPingInterval:       pingInterval,
		MaxSignalingMessageBytes:      int64(maxMessageBytes),
		MaxSignalingMessagesPerSecond: maxMessagesPerSecond,
		SignalingSendQueueBytes:       sendQueueBytes,
		ICEServers:                    iceServers,
		TURNREST:                      turnREST,
	}, nil
}

func loadClient(lookup func(string) (string, bool), args []string) (ClientConfig, error) {
	logDefaults := loggingDefaultsFromEnv(lookup)

	relayURL := envOrDefault(lookup, envVarRelayURL, DefaultRelayURL)
	relayOrigin := envOrDefault(lookup, envVarRelayOrigin, "")
	iceServersJSON := envOrDefault(lookup, envICEServersJSON, "")
	stunURLs := envOrDefault(lookup, envStunURLs, "")
	turnURLs := envOrDefault(lookup, envTurnURLs, "")
	turnUsername := envOrDefault(lookup, envTurnUsername, "")
	turnCredential := envOrDefault(lookup, envTurnCredential, "")
	listenIPStr := envOrDefault(lookup, envVarWebRTCUDPListenIP, DefaultWebRTCUDPListenIP)
	iceFromRelay, err := envBoolOrDefault(lookup, envVarICEFromRelay, false)
	if err != nil {
		return ClientConfig{}, err
	}
	portMin, err := envIntOrDefault(lookup, envVarWebRTCUDPPortMin, 0)
	if err != nil {
		return ClientConfig{}, err
	}
	portMax, err := envIntOrDefault(lookup, envVarWebRTCUDPPortMax, 0)
	if err != nil {
		return ClientConfig{}, err
	}

	fs := flag.NewFlagSet("aero-call-client", flag.ContinueOnError)

	var modeStr, logFormatStr, logLevelStr string
	fs.StringVar(&relayURL, "relay-url", relayURL, "Signaling relay WebSocket URL (env "+envVarRelayURL+")")
	fs.StringVar(&relayOrigin, "origin", relayOrigin, "Origin header to present to the relay (env "+envVarRelayOrigin+")")
	fs.StringVar(&modeStr, "mode", logDefaults.mode, "Run mode: dev or prod")
	fs.StringVar(&logFormatStr, "log-format", logDefaults.format, "Log format: text or json")
	fs.StringVar(&logLevelStr, "log-level", logDefaults.level, "Log level: debug, info, warn, error")
	fs.StringVar(&iceServersJSON, "ice-servers-json", iceServersJSON, "ICE server JSON config ("+envICEServersJSON+")")
	fs.StringVar(&stunURLs, "stun-urls", stunURLs, "comma-separated STUN URLs ("+envStunURLs+")")
	fs.StringVar(&turnURLs, "turn-urls", turnURLs, "comma-separated TURN URLs ("+envTurnURLs+")")
	fs.StringVar(&turnUsername, "turn-username", turnUsername, "TURN username ("+envTurnUsername+")")
	fs.StringVar(&turnCredential, "turn-credential", turnCredential, "TURN credential ("+envTurnCredential+")")
	fs.BoolVar(&iceFromRelay, "ice-from-relay", iceFromRelay, "Fetch ICE servers from the relay's /webrtc/ice endpoint ("+envVarICEFromRelay+")")
	fs.IntVar(&portMin, "webrtc-udp-port-min", portMin, "Min UDP port for ICE (0 = unset; env "+envVarWebRTCUDPPortMin+")")
	fs.IntVar(&portMax, "webrtc-udp-port-max", portMax, "Max UDP port for ICE (0 = unset; env "+envVarWebRTCUDPPortMax+")")
	fs.StringVar(&listenIPStr, "webrtc-udp-listen-ip", listenIPStr, "Local IP for ICE UDP sockets (env "+envVarWebRTCUDPListenIP+")")

	if err := fs.Parse(args); err != nil {
		return ClientConfig{}, err
	}

	mode, logFormat, level, err := resolveLogging(fs, logDefaults, modeStr, logFormatStr, logLevelStr)
	if err != nil {
		return ClientConfig{}, err
	}

	u, err := url.Parse(strings.TrimSpace(relayURL))
	if err != nil {
		return ClientConfig{}, fmt.Errorf("invalid %s %q: %w", envVarRelayURL, relayURL, err)
	}
	if u.Scheme != "ws" && u.Scheme != "wss" {
		return ClientConfig{}, fmt.Errorf("invalid %s %q: scheme must be ws or wss", envVarRelayURL, relayURL)
	}
	if u.Host == "" {
		return ClientConfig{}, fmt.Errorf("invalid %s %q: missing host", envVarRelayURL, relayURL)
	}

	normalizedOrigin, err := normalizeOriginValue(relayOrigin)
	if err != nil {
		return ClientConfig{}, fmt.Errorf("invalid %s %q: %w", envVarRelayOrigin, relayOrigin, err)
	}

	iceServers, err := ICESettings{
		JSON:           iceServersJSON,
		STUNURLs:       stunURLs,
		TURNURLs:       turnURLs,
		TURNUsername:   turnUsername,
		TURNCredential: turnCredential,
	}.Resolve()
	if err != nil {
		return ClientConfig{}, err
	}

	portRange, err := parseUDPPortRange(portMin, portMax)
	if err != nil {
		return ClientConfig{}, err
	}
	listenIP, err := parseListenIP(listenIPStr)
	if err != nil {
		return ClientConfig{}, err
	}

	return ClientConfig{
		RelayURL:           u.String(),
		Origin:             normalizedOrigin,
		LogFormat:          logFormat,
		LogLevel:           level,
		Mode:               mode,
		ICEServers:         iceServers,
		ICEFromRelay:       iceFromRelay,
		WebRTCUDPPortRange: portRange,
		WebRTCUDPListenIP:  listenIP,
	}, nil
}

type loggingDefaults struct {
	mode, format, level string
	formatFromEnv       bool
	levelFromEnv        bool
}

func loggingDefaultsFromEnv(lookup func(string) (string, bool)) loggingDefaults {
	d := loggingDefaults{mode: envOrDefault(lookup, envVarMode, string(DefaultMode))}

	if raw, ok := lookup(envVarLogFormat); ok && raw != "" {
		d.format, d.formatFromEnv = raw, true
	} else {
		d.format = defaultLogFormatForMode(d.mode)
	}
	if raw, ok := lookup(envVarLogLevel); ok && raw != "" {
		d.level, d.levelFromEnv = raw, true
	} else {
		d.level = defaultLogLevelForMode(d.mode)
	}
	return d
}

// resolveLogging re-derives the log format and level from the final mode when
// neither the environment nor a flag pinned them.
func resolveLogging(fs *flag.FlagSet, d loggingDefaults, modeStr, logFormatStr, logLevelStr string) (Mode, LogFormat, slog.Level, error) {
	setFlags := map[string]bool{}
	fs.Visit(func(f *flag.Flag) {
		setFlags[f.Name] = true
	})

	mode, err := parseMode(modeStr)
	if err != nil {
		return "", "", 0, err
	}
	if !d.formatFromEnv && !setFlags["log-format"] {
		logFormatStr = defaultLogFormatForMode(string(mode))
	}
	if !d.levelFromEnv && !setFlags["log-level"] {
		logLevelStr = defaultLogLevelForMode(string(mode))
	}

	logFormat, err := parseLogFormat(logFormatStr)
	if err != nil {
		return "", "", 0, err
	}
	level, err := parseLogLevel(logLevelStr)
	if err != nil {
		return "", "", 0, err
	}
	return mode, logFormat, level, nil
}

// NewLogger builds the relay logger. Records go to stdout.
func NewLogger(cfg Config) (*slog.Logger, error) {
	return newLogger(os.Stdout, cfg.LogFormat, cfg.LogLevel)
}

// NewClientLogger builds the client logger. Records go to stderr so they do not
// interleave with the interactive console on stdout.
func NewClientLogger(cfg ClientConfig) (*slog.Logger, error) {
	return newLogger(os.Stderr, cfg.LogFormat, cfg.LogLevel)
}

func newLogger(w io.Writer, format LogFormat, level slog.Level) (*slog.Logger, error) {
	opts := &slog.HandlerOptions{
		Level: level,
	}

	var handler slog.Handler
	switch format {
	case LogFormatText:
		handler = slog.NewTextHandler(w, opts)
	case LogFormatJSON:
		handler = slog.NewJSONHandler(w, opts)
	default:
		return nil, fmt.Errorf("unsupported log format %q", format)
	}

	return slog.New(handler), nil
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

func envBoolOrDefault(lookup func(string) (string, bool), key string, fallback bool) (bool, error) {
	raw, ok := lookup(key)
	if !ok || strings.TrimSpace(raw) == "" {
		return fallback, nil
	}
	v, err := strconv.ParseBool(strings.TrimSpace(raw))
	if err != nil {
		return false, fmt.Errorf("invalid %s %q: %w", key, raw, err)
	}
	return v, nil
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

func defaultLogFormatForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return string(LogFormatJSON)
	default:
		return string(LogFormatText)
	}
}

func defaultLogLevelForMode(mode string) string {
	switch strings.ToLower(strings.TrimSpace(mode)) {
	case string(ModeProd), "production":
		return "info"
	default:
		return "debug"
	}
}

func parseMode(raw string) (Mode, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(ModeDev), "development":
		return ModeDev, nil
	case string(ModeProd), "production":
		return ModeProd, nil
	default:
		return "", fmt.Errorf("invalid mode %q (expected dev or prod)", raw)
	}
}

func parseLogFormat(raw string) (LogFormat, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case string(LogFormatText):
		return LogFormatText, nil
	case string(LogFormatJSON):
		return LogFormatJSON, nil
	default:
		return "", fmt.Errorf("invalid log format %q (expected text or json)", raw)
	}
}

func parseLogLevel(raw string) (slog.Level, error) {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "debug":
		return slog.LevelDebug, nil
	case "info":
		return slog.LevelInfo, nil
	case "warn", "warning":
		return slog.LevelWarn, nil
	case "error":
		return slog.LevelError, nil
	default:
		return slog.LevelInfo, fmt.Errorf("invalid log level %q (expected debug, info, warn, error)", raw)
	}
}

func normalizeOriginValue(raw string) (string, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return "", nil
	}
	normalized, _, ok := origin.NormalizeHeader(raw)
	if !ok {
		return "", fmt.Errorf("expected full origin like https://example.com")
	}
	return normalized, nil
}

func parseAllowedOrigins(raw string) ([]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}

	var out []string
	for _, entry := range splitCommaSeparated(raw) {
		if entry == origin.Any || entry == origin.SameHost || entry == "null" {
			out = append(out, entry)
			continue
		}
		normalizedOrigin, _, ok := origin.NormalizeHeader(entry)
		if !ok {
			return nil, fmt.Errorf("invalid origin %q (expected full origin like https://example.com)", entry)
		}
		out = append(out, normalizedOrigin)
	}
	return out, nil
}
