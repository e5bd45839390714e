package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/api/models"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/logging"
)

// LogsInput bounds how much of the ring buffer is returned.
type LogsInput struct {
	Limit int `query:"limit" default:"100" minimum:"1" maximum:"1000" doc:"Maximum log entries to return"`
}

// LogLevelInput names a module logger and the level to apply to it.
type LogLevelInput struct {
	Body struct {
		Module string `json:"module" example:"camera" doc:"Module logger to tune"`
		Level  string `json:"level" example:"debug" enum:"debug,info,warn,error" doc:"New level"`
	}
}

// registerLogRoutes exposes the in-memory log ring buffer. Useful in the
// field where journald may not be reachable from the operator host.
func (s *Server) registerLogRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "recent-logs",
		Method:      http.MethodGet,
		Path:        "/api/logs",
		Summary:     "Logs",
		Description: "Return recent log entries from the in-memory buffer, oldest first",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401},
	}, func(ctx context.Context, input *LogsInput) (*models.LogResponse, error) {
		var data models.LogData
		if buffer := logging.GetBuffer(); buffer != nil {
			entries := buffer.ReadLast(input.Limit)
			data.Entries = make([]models.LogEntry, len(entries))
			for i, entry := range entries {
				data.Entries[i] = models.LogEntry{
					Timestamp:  entry.Timestamp,
					Level:      entry.Level,
					Module:     entry.Module,
					Message:    entry.Message,
					Attributes: entry.Attributes,
				}
			}
			data.Count = len(data.Entries)
		}
		return &models.LogResponse{Body: data}, nil
	})

	// Crank one module to debug while chasing a field problem, without
	// restarting the capture process.
	huma.Register(s.api, huma.Operation{
		OperationID: "set-log-level",
		Method:      http.MethodPut,
		Path:        "/api/logs/level",
		Summary:     "Set log level",
		Description: "Change one module logger's level at runtime",
		Tags:        []string{"logs"},
		Security:    withAuth(),
		Errors:      []int{401, 422},
	}, func(ctx context.Context, input *LogLevelInput) (*models.LogLevelResponse, error) {
		if err := logging.SetModuleLevel(input.Body.Module, input.Body.Level); err != nil {
			return nil, huma.Error422UnprocessableEntity(err.Error())
		}
		return &models.LogLevelResponse{Body: models.LogLevelData{
			Module: input.Body.Module,
			Level:  input.Body.Level,
		}}, nil
	})
}
