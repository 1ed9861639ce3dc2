package logger

import (
	"context"

	"go.uber.org/zap"
)

// Standard field names for consistent structured logging across savesync.
// Use these constants instead of raw strings to ensure consistency.
const (
	// Components
	FieldComponent = "component"
	FieldBackend   = "backend"
	FieldProvider  = "provider"

	// Sync controller
	FieldSession   = "session"   // session generation counter
	FieldPhase     = "phase"     // Idle, Resolving, Provisioning, Ready, Unbound
	FieldFrom      = "from"      // previous phase on transitions
	FieldHandle    = "handle"    // remote file identifier
	FieldFilename  = "filename"  // logical remote filename
	FieldNamespace = "namespace" // private remote namespace
	FieldKey       = "key"       // local persistence key
	FieldSize      = "size"      // blob size in bytes
	FieldCount     = "count"
	FieldPending   = "pending" // queued writes

	// Operations
	FieldOperation  = "operation"
	FieldDurationMS = "duration_ms"

	// Errors
	FieldError = "error"

	// Network
	FieldAddress  = "address"
	FieldClientID = "client_id"
)

type contextKey string

const (
	sessionKey   contextKey = "logger_session"
	operationKey contextKey = "logger_operation"
)

// WithSession tags ctx with the session generation that issued a remote call
func WithSession(ctx context.Context, session uint64) context.Context {
	return context.WithValue(ctx, sessionKey, session)
}

// WithOperation tags ctx with the remote operation in flight (locate, create, fetch, write)
func WithOperation(ctx context.Context, operation string) context.Context {
	return context.WithValue(ctx, operationKey, operation)
}

// FieldsFromContext extracts logging fields from context.
// Returns key-value pairs suitable for use with Infow/Errorw/etc.
func FieldsFromContext(ctx context.Context) []interface{} {
	var fields []interface{}

	if session, ok := ctx.Value(sessionKey).(uint64); ok && session != 0 {
		fields = append(fields, FieldSession, session)
	}
	if op, ok := ctx.Value(operationKey).(string); ok && op != "" {
		fields = append(fields, FieldOperation, op)
	}

	return fields
}

// FromContext returns base, or the global logger when base is nil, with the
// fields carried by ctx attached
func FromContext(ctx context.Context, base *zap.SugaredLogger) *zap.SugaredLogger {
	if base == nil {
		base = Logger
	}
	fields := FieldsFromContext(ctx)
	if len(fields) == 0 {
		return base
	}
	return base.With(fields...)
}

// ComponentLogger returns a named logger for a specific component.
// This is the preferred way to get a logger for dependency injection.
//
// Example:
//
//	ctrl := sync.NewController(transport, bus, logger.ComponentLogger("sync.controller"), sync.Options{})
func ComponentLogger(name string) *zap.SugaredLogger {
	return Logger.Named(name)
}
