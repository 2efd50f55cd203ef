package response

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/vigilhq/vigil-master/internal/apperr"
)

type envelope struct {
	Data any `json:"data"`
}

type errorEnvelope struct {
	Error errorBody `json:"error"`
}

type errorBody struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

func JSON(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusOK, envelope{Data: data})
}

func Created(w http.ResponseWriter, data any) {
	writeJSON(w, http.StatusCreated, envelope{Data: data})
}

func NoContent(w http.ResponseWriter) {
	w.WriteHeader(http.StatusNoContent)
}

func Error(w http.ResponseWriter, status int, code, message string, details any) {
	writeJSON(w, status, errorEnvelope{Error: errorBody{
		Code:    code,
		Message: message,
		Details: details,
	}})
}

// AppError renders an error from the core taxonomy. Only the kind and
// message cross the boundary; wrapped backend causes stay in the logs.
func AppError(w http.ResponseWriter, err error) {
	kind := apperr.KindOf(err)
	msg := "An unexpected error occurred"
	var ae *apperr.Error
	if errors.As(err, &ae) && kind != apperr.Internal {
		msg = ae.Msg
	}
	Error(w, apperr.HTTPStatus(kind), kind.String(), msg, nil)
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
