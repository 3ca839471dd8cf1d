package observability

import (
	"context"
	"log/slog"
	"net/http"
	"os"
)

type contextKey string

const loggerKey = contextKey("logger")

// SetupLogger builds the application logger: human-readable text at debug
// level in development, JSON otherwise.
func SetupLogger(env string) *slog.Logger {
	switch env {
	case "development", "dev":
		return slog.New(slog.NewTextHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelDebug}))
	default:
		return slog.New(slog.NewJSONHandler(os.Stdout, nil))
	}
}

// NewLoggerMiddleware adds the logger to the context of each request.
func NewLoggerMiddleware(logger *slog.Logger) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := context.WithValue(r.Context(), loggerKey, logger)
			next.ServeHTTP(w, r.WithContext(ctx))
		})
	}
}

// LoggerFromContext returns the request logger, falling back to the default.
func LoggerFromContext(ctx context.Context) *slog.Logger {
	if logger, ok := ctx.Value(loggerKey).(*slog.Logger); ok {
		return logger
	}
	return slog.Default()
}
