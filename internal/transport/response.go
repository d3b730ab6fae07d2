// Package transport contains the HTTP router, middleware chain, and the
// screen session handlers of the admin API.
package transport

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/tshop/admin/model"
)

// statusForCode maps ErrorEnvelope codes to HTTP status codes.
var statusForCode = map[string]int{
	model.ErrBadRequest:         http.StatusBadRequest,
	model.ErrNotFound:           http.StatusNotFound,
	model.ErrValidationError:    http.StatusUnprocessableEntity,
	model.ErrScreenBusy:         http.StatusConflict,
	model.ErrTooManySessions:    http.StatusServiceUnavailable,
	model.ErrInternalError:      http.StatusInternalServerError,
	model.ErrBackendUnavailable: http.StatusBadGateway,
	model.ErrBackendTimeout:     http.StatusGatewayTimeout,
	model.ErrBackendRejected:    http.StatusBadGateway,
}

// WriteJSON writes a JSON response with the given status code.
func WriteJSON(w http.ResponseWriter, status int, body any) {
	w.Header().Set("Content-Type", "application/json; charset=utf-8")
	w.Header().Set("X-Content-Type-Options", "nosniff")
	w.WriteHeader(status)
	if body != nil {
		json.NewEncoder(w).Encode(body)
	}
}

// WriteError writes err as an error response. Screen, when non-nil, is the
// current state of the session the request was made against.
func WriteError(w http.ResponseWriter, err error, screen *model.ScreenDescriptor) {
	ee := Envelope(err)
	WriteJSON(w, StatusFor(ee), model.ErrorResponse{Error: ee, Screen: screen})
}

// StatusFor returns the HTTP status for an envelope.
func StatusFor(ee *model.ErrorEnvelope) int {
	if status := statusForCode[ee.Code]; status != 0 {
		return status
	}
	return http.StatusInternalServerError
}

// Envelope classifies err as an ErrorEnvelope. Errors that carry no
// classification become INTERNAL_ERROR.
func Envelope(err error) *model.ErrorEnvelope {
	var ee *model.ErrorEnvelope
	if errors.As(err, &ee) {
		return ee
	}
	if errors.Is(err, model.ErrFlowInProgress) {
		return model.NewScreenBusyError()
	}
	if te, ok := model.IsTransportError(err); ok {
		switch {
		case te.Timeout():
			return model.NewBackendTimeoutError()
		case te.StatusCode != 0 && (te.StatusCode < 200 || te.StatusCode > 299):
			return model.NewBackendRejectedError(te.StatusCode)
		default:
			return model.NewBackendUnavailableError()
		}
	}
	return model.NewInternalError()
}

// WriteNotFound writes a 404 error response.
func WriteNotFound(w http.ResponseWriter, msg string) {
	WriteError(w, model.NewNotFoundError(msg), nil)
}
