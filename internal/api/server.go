// Package api serves the node's local diagnostics over HTTP: status,
// presets, devices, the capture journal, recent logs, a live event
// stream and Prometheus metrics. It never drives capture; that stays
// on the wire protocol with the operator host. Its only mutation is
// tuning module log levels.
package api

import (
	"context"
	"encoding/base64"
	"log/slog"
	"net/http"
	"strings"

	"github.com/danielgtaylor/huma/v2"
	"github.com/danielgtaylor/huma/v2/adapters/humago"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/api/models"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/events"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/journal"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/presets"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/version"
)

// PresetSource lists the currently loaded presets. Both *presets.Table
// and *presets.Live satisfy it.
type PresetSource interface {
	All() []presets.Preset
}

// Options wires the server to the running node. Nil collaborators turn
// their endpoints into empty responses, not startup failures.
type Options struct {
	AuthUsername string
	AuthPassword string

	// Status snapshots the running session.
	Status func() models.StatusData
	// Presets lists the active preset table.
	Presets PresetSource
	// Journal serves /api/sessions.
	Journal *journal.Journal
	// Bus feeds the /api/events stream when set.
	Bus *events.Bus
	// PrometheusHandler is mounted at /metrics when set.
	PrometheusHandler http.Handler
}

// Server is the Huma v2 diagnostics API on the stdlib mux.
type Server struct {
	api        huma.API
	mux        *http.ServeMux
	httpServer *http.Server
	options    *Options
	logger     *slog.Logger
}

// NewServer builds the API server and registers all routes.
func NewServer(opts *Options) *Server {
	mux := http.NewServeMux()
	registerPreflight(mux)

	config := huma.DefaultConfig("Arducam Node API", "1.0.0")
	config.Info.Description = "Diagnostics for the quad-band capture node"
	// Empty servers list keeps OpenAPI on relative paths for any host.
	config.Servers = []*huma.Server{}
	config.Components.SecuritySchemes = map[string]*huma.SecurityScheme{
		"basicAuth": {
			Type:   "http",
			Scheme: "basic",
		},
	}

	api := humago.New(mux, config)

	server := &Server{
		api:     api,
		mux:     mux,
		options: opts,
		logger:  logging.GetLogger("api"),
	}

	api.UseMiddleware(corsMiddleware)
	api.UseMiddleware(HTTPLoggingMiddleware)
	if opts.AuthUsername != "" && opts.AuthPassword != "" {
		api.UseMiddleware(server.basicAuthMiddleware(opts.AuthUsername, opts.AuthPassword))
	}

	// Prometheus scrapes stay outside Huma and outside auth.
	if opts.PrometheusHandler != nil {
		mux.Handle("GET /metrics", opts.PrometheusHandler)
	}

	server.registerRoutes()
	return server
}

// basicAuthMiddleware enforces HTTP basic auth on operations that carry a
// security requirement.
func (s *Server) basicAuthMiddleware(username, password string) func(huma.Context, func(huma.Context)) {
	return func(ctx huma.Context, next func(huma.Context)) {
		op := ctx.Operation()
		if op != nil && len(op.Security) == 0 {
			next(ctx)
			return
		}

		authHeader := ctx.Header("Authorization")
		const prefix = "Basic "
		if !strings.HasPrefix(authHeader, prefix) {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="Arducam Node API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Authentication required")
			return
		}

		decoded, err := base64.StdEncoding.DecodeString(authHeader[len(prefix):])
		if err != nil {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="Arducam Node API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials format", err)
			return
		}

		parts := strings.SplitN(string(decoded), ":", 2)
		if len(parts) != 2 || parts[0] != username || parts[1] != password {
			ctx.SetHeader("WWW-Authenticate", `Basic realm="Arducam Node API"`)
			huma.WriteErr(s.api, ctx, http.StatusUnauthorized, "Invalid credentials")
			return
		}

		next(ctx)
	}
}

// GetMux returns the underlying mux for additional setup.
func (s *Server) GetMux() *http.ServeMux {
	return s.mux
}

// Start serves until the listener fails or Stop is called.
func (s *Server) Start(addr string) error {
	s.logger.Info("Starting diagnostics API", "addr", addr)
	s.httpServer = &http.Server{
		Addr:    addr,
		Handler: s.mux,
	}
	return s.httpServer.ListenAndServe()
}

// Stop shuts the server down without waiting for open connections; the
// node is going away and pollers will retry.
func (s *Server) Stop() error {
	s.logger.Info("Stopping diagnostics API")
	if s.httpServer != nil {
		return s.httpServer.Close()
	}
	return nil
}

// registerRoutes sets up all endpoints.
func (s *Server) registerRoutes() {
	// Health check, no auth so load balancers and systemd can probe it.
	huma.Register(s.api, huma.Operation{
		OperationID: "health-check",
		Method:      http.MethodGet,
		Path:        "/api/health",
		Summary:     "Health",
		Description: "Check API health status",
		Tags:        []string{"health"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.HealthResponse, error) {
		return &models.HealthResponse{
			Body: models.HealthData{
				Status:  "ok",
				Message: "API is healthy",
			},
		}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "get-version",
		Method:      http.MethodGet,
		Path:        "/api/version",
		Summary:     "Version",
		Description: "Get application version information",
		Tags:        []string{"system"},
		Security:    []map[string][]string{},
	}, func(ctx context.Context, input *struct{}) (*models.VersionResponse, error) {
		info := version.Get()
		return &models.VersionResponse{
			Body: models.VersionData{
				Version:   info.Version,
				GitCommit: info.GitCommit,
				BuildDate: info.BuildDate,
				BuildID:   info.BuildID,
				GoVersion: info.GoVersion,
				Compiler:  info.Compiler,
				Platform:  info.Platform,
			},
		}, nil
	})

	s.registerStatusRoutes()
	s.registerDeviceRoutes()
	s.registerSessionRoutes()
	s.registerLogRoutes()
	s.registerEventRoutes()
}

// withAuth returns the security requirement for basic auth.
func withAuth() []map[string][]string {
	return []map[string][]string{
		{"basicAuth": {}},
	}
}
