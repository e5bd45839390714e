package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/api/models"
)

// registerStatusRoutes exposes the session snapshot and the preset table.
func (s *Server) registerStatusRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "get-status",
		Method:      http.MethodGet,
		Path:        "/api/status",
		Summary:     "Status",
		Description: "Snapshot of the running capture session and pipeline counters",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 503},
	}, func(ctx context.Context, input *struct{}) (*models.StatusResponse, error) {
		if s.options.Status == nil {
			return nil, huma.Error503ServiceUnavailable("No session is running")
		}
		return &models.StatusResponse{Body: s.options.Status()}, nil
	})

	huma.Register(s.api, huma.Operation{
		OperationID: "list-presets",
		Method:      http.MethodGet,
		Path:        "/api/presets",
		Summary:     "Presets",
		Description: "List the loaded resolution presets",
		Tags:        []string{"presets"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *struct{}) (*models.PresetResponse, error) {
		var data models.PresetData
		if s.options.Presets != nil {
			data.Presets = s.options.Presets.All()
			data.Count = len(data.Presets)
		}
		return &models.PresetResponse{Body: data}, nil
	})
}
