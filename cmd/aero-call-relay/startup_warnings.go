package main

import (
	"log/slog"
	"slices"
	"time"

	"github.com/wilsonzlin/aero/proxy/webrtc-call-relay/internal/config"
)

const (
	largeSignalingMessageBytes = 1 << 20 // 1MiB
	largeSendQueueBytes        = 8 << 20 // 8MiB
	largeIdleTimeout           = 10 * time.Minute
	largeTURNRESTTTLSeconds    = 24 * 60 * 60
)

func logStartupSecurityWarnings(logger *slog.Logger, cfg config.Config) {
	if logger == nil {
		logger = slog.Default()
	}

	if slices.Contains(cfg.AllowedOrigins, "*") {
		logger.Warn("startup security warning: ALLOWED_ORIGINS contains '*' (allows any origin)",
			"warning_code", "allowed_origins_wildcard",
			"allowed_origins", cfg.AllowedOrigins,
			"mode", cfg.Mode,
		)
	} else if cfg.Mode == config.ModeProd && len(cfg.AllowedOrigins) == 0 {
		logger.Warn("startup security warning: ALLOWED_ORIGINS is unset while --mode=prod (any page can open a signaling socket)",
			"warning_code", "allowed_origins_unset_in_prod",
			"mode", cfg.Mode,
		)
	}

	if cfg.MaxSignalingMessageBytes > largeSignalingMessageBytes {
		logger.Warn("startup security warning: MAX_SIGNALING_MESSAGE_BYTES is very large (increases per-message allocation risk)",
			"warning_code", "max_signaling_message_large",
			"max_signaling_message_bytes", cfg.MaxSignalingMessageBytes,
			"mode", cfg.Mode,
		)
	}
	if cfg.SignalingSendQueueBytes > largeSendQueueBytes {
		logger.Warn("startup security warning: SIGNALING_SEND_QUEUE_BYTES is very large (slow consumers can pin memory)",
			"warning_code", "signaling_send_queue_large",
			"signaling_send_queue_bytes", cfg.SignalingSendQueueBytes,
			"mode", cfg.Mode,
		)
	}
	if cfg.SignalingWSIdleTimeout > largeIdleTimeout {
		logger.Warn("startup security warning: SIGNALING_WS_IDLE_TIMEOUT is very large (half-open sockets linger)",
			"warning_code", "signaling_idle_timeout_large",
			"signaling_ws_idle_timeout", cfg.SignalingWSIdleTimeout,
			"mode", cfg.Mode,
		)
	}

	if cfg.TURNREST.Enabled() && cfg.TURNREST.TTLSeconds > largeTURNRESTTTLSeconds {
		logger.Warn("startup security warning: TURN_REST_TTL_SECONDS is longer than a day (leaked TURN credentials stay valid)",
			"warning_code", "turn_rest_ttl_large",
			"turn_rest_ttl_seconds", cfg.TURNREST.TTLSeconds,
			"mode", cfg.Mode,
		)
	}
}
