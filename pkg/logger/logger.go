// Package logger provides a structured, logrus-backed logger with typed fields
// and correlation ID propagation for HTTP handlers.
package logger

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"os"
	"strconv"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

const (
	// CorrelationIDHeader is the HTTP header carrying the correlation ID
	CorrelationIDHeader = "X-Correlation-ID"
	// CorrelationIDFieldKey is the field key used for correlation ID in log entries
	CorrelationIDFieldKey = "correlation_id"
)

type contextKey string

const correlationIDContextKey contextKey = "correlation_id"

// LogField represents a structured log field with concrete types
type LogField struct {
	Key   string
	Value string
}

// Logger is the logging surface used across the service
type Logger interface {
	Info(msg string, fields ...LogField)
	Error(msg string, fields ...LogField)
	Debug(msg string, fields ...LogField)
	Warn(msg string, fields ...LogField)
	WithFields(fields ...LogField) Logger
	WithCorrelationID(id string) Logger
	HTTPMiddleware(next http.Handler) http.Handler
}

// Config represents logger configuration
type Config struct {
	Level   Level
	Format  string
	Service string
	Output  io.Writer // Optional: defaults to os.Stdout if nil
}

type logger struct {
	logrus *logrus.Logger
	fields []LogField
}

// NewLogger creates a new logger instance with the given configuration
func NewLogger(config Config) Logger {
	l := logrus.New()

	if config.Format == "text" {
		l.SetFormatter(&logrus.TextFormatter{})
	} else {
		l.SetFormatter(&logrus.JSONFormatter{})
	}

	if config.Output != nil {
		l.SetOutput(config.Output)
	} else {
		l.SetOutput(os.Stdout)
	}

	l.SetLevel(config.Level.logrusLevel())

	var base []LogField
	if config.Service != "" {
		base = []LogField{{Key: "service", Value: config.Service}}
	}

	return &logger{logrus: l, fields: base}
}

// NewNopLogger returns a logger that discards everything. Handy for tests and
// for components constructed without an explicit logger.
func NewNopLogger() Logger {
	return NewLogger(Config{Level: ErrorLevel, Format: "text", Output: io.Discard})
}

// WithFields returns a new logger with additional fields (immutable)
func (l *logger) WithFields(fields ...LogField) Logger {
	merged := make([]LogField, 0, len(l.fields)+len(fields))
	merged = append(merged, l.fields...)
	merged = append(merged, fields...)
	return &logger{logrus: l.logrus, fields: merged}
}

// WithCorrelationID returns a new logger with correlation ID field
func (l *logger) WithCorrelationID(id string) Logger {
	return l.WithFields(CorrelationIDField(id))
}

func (l *logger) Info(msg string, fields ...LogField)  { l.log(logrus.InfoLevel, msg, fields) }
func (l *logger) Error(msg string, fields ...LogField) { l.log(logrus.ErrorLevel, msg, fields) }
func (l *logger) Debug(msg string, fields ...LogField) { l.log(logrus.DebugLevel, msg, fields) }
func (l *logger) Warn(msg string, fields ...LogField)  { l.log(logrus.WarnLevel, msg, fields) }

func (l *logger) log(level logrus.Level, msg string, fields []LogField) {
	if !l.logrus.IsLevelEnabled(level) {
		return
	}
	lf := make(logrus.Fields, len(l.fields)+len(fields))
	for _, f := range l.fields {
		lf[f.Key] = f.Value
	}
	for _, f := range fields {
		lf[f.Key] = f.Value
	}
	l.logrus.WithFields(lf).Log(level, msg)
}

// StringField returns a LogField for a string value.
func StringField(key, value string) LogField {
	return LogField{Key: key, Value: value}
}

// IntField returns a LogField for an integer value.
func IntField(key string, value int) LogField {
	return LogField{Key: key, Value: strconv.Itoa(value)}
}

// Int64Field returns a LogField for an int64 value.
func Int64Field(key string, value int64) LogField {
	return LogField{Key: key, Value: strconv.FormatInt(value, 10)}
}

// FloatField returns a LogField for a float64 value.
func FloatField(key string, value float64) LogField {
	return LogField{Key: key, Value: strconv.FormatFloat(value, 'f', -1, 64)}
}

// BoolField returns a LogField for a boolean value.
func BoolField(key string, value bool) LogField {
	return LogField{Key: key, Value: strconv.FormatBool(value)}
}

// DurationField returns a LogField for a time.Duration value.
func DurationField(key string, value time.Duration) LogField {
	return LogField{Key: key, Value: value.String()}
}

// TimeField returns a LogField for a time.Time value formatted as RFC3339.
func TimeField(key string, value time.Time) LogField {
	return LogField{Key: key, Value: value.Format(time.RFC3339)}
}

// ErrorField returns a LogField for an error value.
func ErrorField(err error) LogField {
	if err == nil {
		return LogField{Key: "error", Value: "<nil>"}
	}
	return LogField{Key: "error", Value: err.Error()}
}

// Field creates a log field with automatic type conversion for less common types
func Field[T any](key string, value T) LogField {
	return LogField{Key: key, Value: convertValue(value)}
}

func convertValue(value any) string {
	switch v := value.(type) {
	case string:
		return v
	case int:
		return strconv.Itoa(v)
	case int64:
		return strconv.FormatInt(v, 10)
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(v)
	case time.Time:
		return v.Format(time.RFC3339)
	case time.Duration:
		return v.String()
	case error:
		if v == nil {
			return "<nil>"
		}
		return v.Error()
	default:
		return fmt.Sprintf("%v", v)
	}
}

// CorrelationIDField returns a LogField for a correlation ID.
func CorrelationIDField(id string) LogField {
	return StringField(CorrelationIDFieldKey, id)
}

// WithCorrelationIDContext adds correlation ID to context
func WithCorrelationIDContext(ctx context.Context, correlationID string) context.Context {
	return context.WithValue(ctx, correlationIDContextKey, correlationID)
}

// GetCorrelationIDFromContext retrieves correlation ID from context
func GetCorrelationIDFromContext(ctx context.Context) string {
	if id, ok := ctx.Value(correlationIDContextKey).(string); ok {
		return id
	}
	return ""
}

// GetLoggerFromContext returns baseLogger enriched with the context's correlation ID, if any
func GetLoggerFromContext(ctx context.Context, baseLogger Logger) Logger {
	if id := GetCorrelationIDFromContext(ctx); id != "" {
		return baseLogger.WithCorrelationID(id)
	}
	return baseLogger
}

// EnsureHTTPCorrelationID makes sure the request carries a valid UUID correlation ID
func EnsureHTTPCorrelationID(r *http.Request) (*http.Request, string) {
	id := r.Header.Get(CorrelationIDHeader)
	if _, err := uuid.Parse(id); err != nil {
		id = uuid.New().String()
		r.Header.Set(CorrelationIDHeader, id)
	}
	return r.WithContext(WithCorrelationIDContext(r.Context(), id)), id
}

type responseWriter struct {
	http.ResponseWriter
	statusCode   int
	bytesWritten int
}

func (rw *responseWriter) WriteHeader(statusCode int) {
	rw.statusCode = statusCode
	rw.ResponseWriter.WriteHeader(statusCode)
}

func (rw *responseWriter) Write(b []byte) (int, error) {
	n, err := rw.ResponseWriter.Write(b)
	rw.bytesWritten += n
	return n, err
}

// HTTPMiddleware implements chi-compatible HTTP middleware for request logging
func (l *logger) HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := time.Now()
		r, correlationID := EnsureHTTPCorrelationID(r)
		w.Header().Set(CorrelationIDHeader, correlationID)

		reqLog := l.WithFields(
			StringField("client_ip", r.RemoteAddr),
			StringField("http_method", r.Method),
			StringField("http_path", r.URL.Path),
			CorrelationIDField(correlationID),
		)

		wrapped := &responseWriter{ResponseWriter: w, statusCode: http.StatusOK}
		next.ServeHTTP(wrapped, r)

		reqLog.Info("HTTP request handled",
			IntField("http_status", wrapped.statusCode),
			IntField("response_bytes", wrapped.bytesWritten),
			DurationField("duration", time.Since(start)),
		)
	})
}
