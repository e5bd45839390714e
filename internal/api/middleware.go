package api

import (
	"log/slog"
	"time"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
)

// HTTPLoggingMiddleware logs each request with a level derived from the
// outcome. Health probes stay at debug so they do not wash the ring
// buffer that /api/logs serves from. Prometheus scrapes and CORS
// preflights are handled on the mux outside Huma and never reach this
// middleware.
func HTTPLoggingMiddleware(ctx huma.Context, next func(huma.Context)) {
	start := time.Now()
	logger := logging.GetLogger("http")

	method := ctx.Method()
	path := ctx.URL().Path
	query := ctx.URL().RawQuery
	remoteAddr := ctx.RemoteAddr()

	next(ctx)

	status := ctx.Status()

	attrs := []slog.Attr{
		slog.String("method", method),
		slog.String("path", path),
		slog.String("remote_addr", remoteAddr),
		slog.Int("status", status),
		slog.Duration("duration", time.Since(start)),
	}
	if query != "" {
		attrs = append(attrs, slog.String("query", query))
	}

	level := slog.LevelInfo
	switch {
	case status >= 500:
		level = slog.LevelError
	case status >= 400:
		level = slog.LevelWarn
	case path == "/api/health":
		level = slog.LevelDebug
	}

	logger.LogAttrs(ctx.Context(), level, "HTTP request completed", attrs...)
}
