package api

import (
	"context"
	"net/http"

	"github.com/danielgtaylor/huma/v2"

	"github.com/Adrian-Rod-Mol/arducam-apps/internal/api/models"
	"github.com/Adrian-Rod-Mol/arducam-apps/internal/journal"
)

// SessionsInput filters the capture journal.
type SessionsInput struct {
	Limit     int    `query:"limit" default:"20" minimum:"1" maximum:"500" doc:"Maximum spans to return"`
	SessionID string `query:"session_id" doc:"Return only spans of this session, oldest first"`
}

func toSessionSpan(span journal.Span) models.SessionSpan {
	out := models.SessionSpan{
		ID:         span.ID,
		SessionID:  span.SessionID,
		SpanIndex:  span.SpanIndex,
		Preset:     span.Preset,
		ExposureUS: span.ExposureUS,
		StartedAt:  span.StartedAt,
		Frames:     span.Frames,
		Bytes:      span.Bytes,
		Restarts:   span.Restarts,
		Status:     string(span.Status),
	}
	if !span.EndedAt.IsZero() {
		ended := span.EndedAt
		out.EndedAt = &ended
	}
	return out
}

// registerSessionRoutes exposes the capture journal.
func (s *Server) registerSessionRoutes() {
	huma.Register(s.api, huma.Operation{
		OperationID: "list-sessions",
		Method:      http.MethodGet,
		Path:        "/api/sessions",
		Summary:     "Sessions",
		Description: "List recorded capture spans from the journal",
		Tags:        []string{"session"},
		Security:    withAuth(),
		Errors:      []int{401, 500},
	}, func(ctx context.Context, input *SessionsInput) (*models.SessionResponse, error) {
		var data models.SessionData
		if s.options.Journal == nil {
			return &models.SessionResponse{Body: data}, nil
		}

		var (
			spans []journal.Span
			err   error
		)
		if input.SessionID != "" {
			spans, err = s.options.Journal.BySession(ctx, input.SessionID)
		} else {
			spans, err = s.options.Journal.Recent(ctx, input.Limit)
		}
		if err != nil {
			return nil, huma.Error500InternalServerError("Failed to read the journal", err)
		}

		data.Spans = make([]models.SessionSpan, len(spans))
		for i, span := range spans {
			data.Spans[i] = toSessionSpan(span)
		}
		data.Count = len(data.Spans)
		return &models.SessionResponse{Body: data}, nil
	})
}
