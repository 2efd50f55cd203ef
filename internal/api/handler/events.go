package handler

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"
	"time"

	"github.com/google/uuid"

	"github.com/vigilhq/vigil-master/internal/api/response"
	"github.com/vigilhq/vigil-master/pkg/models"
)

// EventProcessor runs one event through the correlation pipeline.
type EventProcessor interface {
	ProcessEvent(ctx context.Context, event *models.Event) error
}

// MachineChecker answers whether a machine is a known compute server.
type MachineChecker interface {
	ServerExists(ctx context.Context, serverUUID string) (bool, error)
}

// NewEventsHandler returns an http.HandlerFunc for POST /events. The
// handler owns validation: the engine assumes well-formed events and treats
// anything else as an internal fault. machines is advisory and may be nil;
// an unknown machine is logged but the event still correlates.
func NewEventsHandler(engine EventProcessor, machines MachineChecker) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		var req struct {
			UUID      string          `json:"uuid"`
			Type      string          `json:"type"`
			User      string          `json:"user"`
			ProbeUUID string          `json:"probeUuid"`
			Machine   string          `json:"machine"`
			Clear     bool            `json:"clear"`
			Time      string          `json:"time"`
			Data      json.RawMessage `json:"data"`
		}
		if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
			response.Error(w, http.StatusBadRequest, "InvalidRequest", "Invalid JSON body", nil)
			return
		}

		if req.Type == "" {
			response.Error(w, http.StatusBadRequest, "InvalidRequest", "type is required", nil)
			return
		}
		if !models.KnownEventType(req.Type) {
			response.Error(w, http.StatusBadRequest, "InvalidRequest", "unknown event type", nil)
			return
		}
		if req.User == "" {
			response.Error(w, http.StatusBadRequest, "InvalidRequest", "user is required", nil)
			return
		}

		// Agents stamp events at the source; an unstamped event gets the
		// arrival time.
		eventTime := time.Now().UTC()
		if req.Time != "" {
			t, err := time.Parse(time.RFC3339, req.Time)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "InvalidRequest",
					"time must be a valid RFC3339 timestamp", nil)
				return
			}
			eventTime = t.UTC()
		}

		id := uuid.New()
		if req.UUID != "" {
			parsed, err := uuid.Parse(req.UUID)
			if err != nil {
				response.Error(w, http.StatusBadRequest, "InvalidRequest",
					"uuid must be a valid UUID", nil)
				return
			}
			id = parsed
		}

		if machines != nil && req.Machine != "" {
			if known, err := machines.ServerExists(r.Context(), req.Machine); err == nil && !known {
				slog.Warn("event references unknown machine",
					"machine", req.Machine, "user", req.User)
			}
		}

		event := &models.Event{
			ID:        id,
			Type:      req.Type,
			User:      req.User,
			ProbeUUID: req.ProbeUUID,
			Machine:   req.Machine,
			Clear:     req.Clear,
			Time:      eventTime,
			Data:      req.Data,
		}

		if err := engine.ProcessEvent(r.Context(), event); err != nil {
			response.AppError(w, err)
			return
		}
		response.NoContent(w)
	}
}
