package logger

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
)

type runIDKey struct{}

// NewRunID returns a fresh identifier for one retrieval run
func NewRunID() string {
	return uuid.NewString()
}

// ContextWithRunID stores the run id on ctx
func ContextWithRunID(ctx context.Context, id string) context.Context {
	return context.WithValue(ctx, runIDKey{}, id)
}

// RunIDFromContext returns the run id stored on ctx, or ""
func RunIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	id, _ := ctx.Value(runIDKey{}).(string)
	return id
}

// LogRequest logs one platform HTTP exchange
func LogRequest(l Logger, method, endpoint string, statusCode int, duration time.Duration) {
	fields := map[string]interface{}{
		"method":      method,
		"endpoint":    endpoint,
		"status_code": statusCode,
		"duration_ms": duration.Milliseconds(),
	}

	switch {
	case statusCode >= 500 || statusCode == 0:
		l.WarnWithFields("Platform request failed", fields)
	case statusCode >= 400:
		l.WarnWithFields("Platform request rejected", fields)
	default:
		l.DebugWithFields("Platform request completed", fields)
	}
}

// LogPhaseProgress logs the running count of a retrieval phase
func LogPhaseProgress(l Logger, phase string, fetched int, limit string) {
	l.InfoWithFields("Retrieval progress", map[string]interface{}{
		"phase":   phase,
		"fetched": fetched,
		"limit":   limit,
	})
}

// LogBackoff logs a pause taken after the platform pushed back
func LogBackoff(l Logger, phase, reason string, retry int, wait time.Duration) {
	l.WarnWithFields("Backing off before restarting phase", map[string]interface{}{
		"phase":  phase,
		"reason": reason,
		"retry":  retry,
		"wait":   wait,
	})
}

// NewNopLogger creates a no-operation logger for testing
func NewNopLogger() Logger {
	return &nopLogger{}
}

type nopLogger struct{}

func (n *nopLogger) Debug(msg string)                                          {}
func (n *nopLogger) Info(msg string)                                           {}
func (n *nopLogger) Warn(msg string)                                           {}
func (n *nopLogger) Error(msg string)                                          {}
func (n *nopLogger) Fatal(msg string)                                          {}
func (n *nopLogger) WithField(key string, value interface{}) Logger            { return n }
func (n *nopLogger) WithFields(fields map[string]interface{}) Logger           { return n }
func (n *nopLogger) WithError(err error) Logger                                { return n }
func (n *nopLogger) WithContext(ctx context.Context) Logger                    { return n }
func (n *nopLogger) DebugWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) InfoWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) WarnWithFields(msg string, fields map[string]interface{})  {}
func (n *nopLogger) ErrorWithFields(msg string, fields map[string]interface{}) {}
func (n *nopLogger) GetZerolog() *zerolog.Logger                               { return nil }
