package api

import (
	"net/http"

	"github.com/danielgtaylor/huma/v2"
)

// The diagnostics API is reached from operator laptops on the field
// subnet, not from public origins, so cross-origin access stays open.
// The surface is GET everywhere plus the log-level PUT.
const (
	corsOrigin  = "*"
	corsMethods = "GET, PUT, OPTIONS"
	corsHeaders = "Content-Type, Authorization, Accept, Origin, X-Requested-With"
	corsMaxAge  = "86400"
)

func setCORSHeaders(set func(name, value string)) {
	set("Access-Control-Allow-Origin", corsOrigin)
	set("Access-Control-Allow-Methods", corsMethods)
	set("Access-Control-Allow-Headers", corsHeaders)
	set("Access-Control-Max-Age", corsMaxAge)
}

// corsMiddleware stamps CORS headers on every Huma response.
func corsMiddleware(ctx huma.Context, next func(huma.Context)) {
	setCORSHeaders(ctx.SetHeader)
	next(ctx)
}

// registerPreflight answers OPTIONS for all paths. Preflights never
// reach Huma middleware because no operation is registered for the
// OPTIONS method, so routing sends them straight to the mux.
func registerPreflight(mux *http.ServeMux) {
	mux.HandleFunc("OPTIONS /", func(w http.ResponseWriter, _ *http.Request) {
		setCORSHeaders(func(name, value string) { w.Header().Set(name, value) })
		w.WriteHeader(http.StatusNoContent)
	})
}
