// Package monitoring - alerts.go flags anomalies and errors.
//
// DESIGN: AlertManager logs notable events at appropriate levels:
//   - FlagHighLatency:    Warn when request exceeds threshold
//   - FlagProviderError:  Warn on upstream 4xx/5xx responses
//   - FlagUpstreamTimeout: Error on a network_error/timeout (§7)
//   - FlagInvalidRequest: Debug on bad_request/route_not_found
//   - FlagPanic:          Error on recovered panics
package monitoring

import "time"

// AlertManager flags anomalies and errors.
type AlertManager struct {
	logger               *Logger
	highLatencyThreshold time.Duration
}

// NewAlertManager creates a new alert manager.
func NewAlertManager(logger *Logger, cfg AlertConfig) *AlertManager {
	threshold := cfg.HighLatencyThreshold
	if threshold == 0 {
		threshold = 5 * time.Second
	}
	return &AlertManager{logger: logger, highLatencyThreshold: threshold}
}

// FlagHighLatency logs when request latency exceeds threshold.
func (am *AlertManager) FlagHighLatency(requestID string, latency time.Duration, route, path string) {
	if latency < am.highLatencyThreshold {
		return
	}
	am.logger.Warn().
		Str("request_id", requestID).
		Dur("latency", latency).
		Str("route", route).
		Str("path", path).
		Msg("high_latency")
}

// FlagProviderError logs an upstream error status (§7 upstream_error).
func (am *AlertManager) FlagProviderError(requestID, route string, statusCode int, errorMsg string) {
	am.logger.Warn().
		Str("request_id", requestID).
		Str("route", route).
		Int("status", statusCode).
		Msg("provider_error")
}

// FlagInvalidRequest logs a bad_request/route_not_found rejection.
func (am *AlertManager) FlagInvalidRequest(requestID, reason string, details map[string]interface{}) {
	am.logger.Debug().
		Str("request_id", requestID).
		Str("reason", reason).
		Msg("invalid_request")
}

// FlagPanic logs recovered panic.
func (am *AlertManager) FlagPanic(requestID string, panicValue interface{}, stack string) {
	am.logger.Error().
		Str("request_id", requestID).
		Interface("panic", panicValue).
		Msg("panic_recovered")
}

// FlagUpstreamTimeout logs a network_error/timeout reaching upstream.
func (am *AlertManager) FlagUpstreamTimeout(requestID, route, targetURL string, timeout time.Duration) {
	am.logger.Error().
		Str("request_id", requestID).
		Str("route", route).
		Str("target", targetURL).
		Dur("timeout", timeout).
		Msg("upstream_timeout")
}
