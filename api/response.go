// Package api exposes the HTTP and websocket surface of the messaging
// core. Every JSON response carries a success flag plus either a data
// payload or an error message; clients branch on the flag.
package api

import (
	"encoding/json"
	goerrors "errors"
	"net/http"

	"carechat/errors"
)

type envelope struct {
	Success bool   `json:"success"`
	Data    any    `json:"data,omitempty"`
	Error   string `json:"error,omitempty"`
}

func writeData(w http.ResponseWriter, status int, data any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(envelope{Success: true, Data: data})
}

func writeError(w http.ResponseWriter, err error) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(statusFor(err))
	_ = json.NewEncoder(w).Encode(envelope{Success: false, Error: err.Error()})
}

// statusFor maps the error taxonomy onto transport codes. Clients mostly
// branch on the success flag; the code is a hint for generic tooling.
func statusFor(err error) int {
	switch {
	case goerrors.Is(err, errors.ErrNotFound):
		return http.StatusNotFound
	case goerrors.Is(err, errors.ErrForbidden):
		return http.StatusForbidden
	case goerrors.Is(err, errors.ErrUnsupportedMedia):
		return http.StatusUnsupportedMediaType
	case goerrors.Is(err, errors.ErrPayloadTooLarge):
		return http.StatusRequestEntityTooLarge
	case goerrors.Is(err, errors.ErrInvalidArgument),
		goerrors.Is(err, errors.ErrInvalidParticipants),
		goerrors.Is(err, errors.ErrEmptyFile):
		return http.StatusBadRequest
	default:
		return http.StatusInternalServerError
	}
}
