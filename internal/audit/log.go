// Package audit emits structured audit events for every mutating operation.
// Events carry the request id and acting user when the context has them.
package audit

import (
	"context"
	"errors"
	"strings"

	"go.uber.org/zap"

	"sandyq.org/internal/vault"
)

type ctxKey string

const (
	requestIDKey ctxKey = "audit_request_id"
	actorKey     ctxKey = "audit_actor"
)

// Log writes audit events through a zap logger.
type Log struct {
	logger *zap.Logger
}

// NewLog constructs an audit log. A nil logger is replaced with a no-op one
// so call sites never have to guard.
func NewLog(logger *zap.Logger) *Log {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Log{logger: logger}
}

// WithRequestID attaches the request identifier to the context.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	requestID = strings.TrimSpace(requestID)
	if requestID == "" {
		return ctx
	}
	return context.WithValue(ctx, requestIDKey, requestID)
}

// WithActor attaches the acting user's key to the context.
func WithActor(ctx context.Context, key vault.UserKey) context.Context {
	if key <= 0 {
		return ctx
	}
	return context.WithValue(ctx, actorKey, key)
}

// RequestIDFromContext extracts the request id, if present.
func RequestIDFromContext(ctx context.Context) string {
	if ctx == nil {
		return ""
	}
	if v, ok := ctx.Value(requestIDKey).(string); ok {
		return v
	}
	return ""
}

// ActorFromContext extracts the acting user's key, if present.
func ActorFromContext(ctx context.Context) (vault.UserKey, bool) {
	if ctx == nil {
		return 0, false
	}
	key, ok := ctx.Value(actorKey).(vault.UserKey)
	return key, ok
}

// Event writes one audit entry enriched with request and actor context.
func (l *Log) Event(ctx context.Context, event string, fields ...zap.Field) error {
	event = strings.TrimSpace(event)
	if event == "" {
		return errors.New("event name is required")
	}
	entry := []zap.Field{
		zap.String("type", "audit"),
		zap.String("event", event),
	}
	if rid := RequestIDFromContext(ctx); rid != "" {
		entry = append(entry, zap.String("request_id", rid))
	}
	if actor, ok := ActorFromContext(ctx); ok {
		entry = append(entry, zap.Int64("actor", int64(actor)))
	}
	entry = append(entry, fields...)
	l.logger.Info("audit", entry...)
	return nil
}
