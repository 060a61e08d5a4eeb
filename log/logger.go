package log

import "context"

// Logger is the structured logging interface threaded into services. The
// context is used to correlate log lines with the active trace span.
type Logger interface {
	Debug(ctx context.Context, msg string, fields ...map[string]interface{})
	Info(ctx context.Context, msg string, fields ...map[string]interface{})
	Warn(ctx context.Context, msg string, fields ...map[string]interface{})
	Error(ctx context.Context, msg string, err error, fields ...map[string]interface{})
	// With returns a new logger carrying additional structured fields.
	With(fields map[string]interface{}) Logger
}
