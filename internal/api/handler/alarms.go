package handler

import (
	"context"
	"errors"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/vigilhq/vigil-master/internal/api/response"
	"github.com/vigilhq/vigil-master/internal/store"
	"github.com/vigilhq/vigil-master/pkg/models"
)

// UserResolver resolves the {user} path segment, which may be a uuid or a
// login, to the canonical user record.
type UserResolver interface {
	Resolve(ctx context.Context, userID string) (*models.User, error)
}

// NewListAlarmsHandler returns an http.HandlerFunc for
// GET /pub/{user}/alarms.
func NewListAlarmsHandler(users UserResolver, alarms store.AlarmStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := resolveUser(w, r, users)
		if !ok {
			return
		}

		state := store.State(r.URL.Query().Get("state"))
		if state == "" {
			state = store.StateOpen
		}
		if !store.ValidState(state) {
			response.Error(w, http.StatusBadRequest, "InvalidRequest",
				"state must be one of open, closed, recent, all", nil)
			return
		}

		list, err := alarms.List(r.Context(), store.AlarmFilter{
			Owner:      user.UUID,
			State:      state,
			Probe:      r.URL.Query().Get("probe"),
			ProbeGroup: r.URL.Query().Get("probeGroup"),
		})
		if err != nil {
			response.AppError(w, err)
			return
		}
		response.JSON(w, list)
	}
}

// NewGetAlarmHandler returns an http.HandlerFunc for
// GET /pub/{user}/alarms/{id}.
func NewGetAlarmHandler(users UserResolver, alarms store.AlarmStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := resolveUser(w, r, users)
		if !ok {
			return
		}
		id, ok := alarmID(w, r)
		if !ok {
			return
		}

		alarm, err := alarms.Get(r.Context(), user.UUID, id)
		if err != nil {
			alarmError(w, err)
			return
		}
		response.JSON(w, alarm)
	}
}

// NewAlarmActionHandler returns an http.HandlerFunc for
// POST /pub/{user}/alarms/{id}?action=close|reopen|suppress|unsuppress.
func NewAlarmActionHandler(users UserResolver, alarms store.AlarmStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := resolveUser(w, r, users)
		if !ok {
			return
		}
		id, ok := alarmID(w, r)
		if !ok {
			return
		}

		var err error
		switch action := r.URL.Query().Get("action"); action {
		case "close":
			err = alarms.SetClosed(r.Context(), user.UUID, id, true)
		case "reopen":
			err = alarms.SetClosed(r.Context(), user.UUID, id, false)
		case "suppress":
			err = alarms.SetSuppressed(r.Context(), user.UUID, id, true)
		case "unsuppress":
			err = alarms.SetSuppressed(r.Context(), user.UUID, id, false)
		default:
			response.Error(w, http.StatusBadRequest, "InvalidRequest",
				"action must be one of close, reopen, suppress, unsuppress", nil)
			return
		}
		if err != nil {
			alarmError(w, err)
			return
		}
		response.NoContent(w)
	}
}

// NewDeleteAlarmHandler returns an http.HandlerFunc for
// DELETE /pub/{user}/alarms/{id}.
func NewDeleteAlarmHandler(users UserResolver, alarms store.AlarmStore) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		user, ok := resolveUser(w, r, users)
		if !ok {
			return
		}
		id, ok := alarmID(w, r)
		if !ok {
			return
		}

		if err := alarms.Delete(r.Context(), user.UUID, id); err != nil {
			alarmError(w, err)
			return
		}
		response.NoContent(w)
	}
}

func resolveUser(w http.ResponseWriter, r *http.Request, users UserResolver) (*models.User, bool) {
	user, err := users.Resolve(r.Context(), chi.URLParam(r, "user"))
	if err != nil {
		response.AppError(w, err)
		return nil, false
	}
	return user, true
}

func alarmID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id < 1 {
		response.Error(w, http.StatusBadRequest, "InvalidRequest",
			"alarm id must be a positive integer", nil)
		return 0, false
	}
	return id, true
}

func alarmError(w http.ResponseWriter, err error) {
	if errors.Is(err, store.ErrNotFound) {
		response.Error(w, http.StatusNotFound, "NotFound", "no such alarm", nil)
		return
	}
	response.AppError(w, err)
}
