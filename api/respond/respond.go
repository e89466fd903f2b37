// Package respond writes JSON bodies and maps domain errors to HTTP status
// codes for the api handlers.
package respond

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"

	"github.com/kilianp07/autoaid/auth"
	"github.com/kilianp07/autoaid/core/model"
)

// ErrorBody is the payload of every error response.
type ErrorBody struct {
	Error     string       `json:"error"`
	Current   model.Status `json:"current,omitempty"`
	Attempted model.Status `json:"attempted,omitempty"`
}

// JSON writes v with the given status code.
func JSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// Status maps err to an HTTP status code.
func Status(err error) int {
	switch {
	case errors.Is(err, model.ErrInvalidRequest):
		return http.StatusBadRequest
	case errors.Is(err, model.ErrUnauthorized), errors.Is(err, auth.ErrUnauthorized):
		return http.StatusUnauthorized
	case errors.Is(err, model.ErrNotFound):
		return http.StatusNotFound
	case errors.Is(err, model.ErrStaleOffer):
		return http.StatusGone
	case errors.Is(err, model.ErrInvalidTransition),
		errors.Is(err, model.ErrAlreadyAssigned),
		errors.Is(err, model.ErrMechanicBusy):
		return http.StatusConflict
	}
	return http.StatusInternalServerError
}

// Error writes err using the status returned by Status. Transition errors
// carry the current and attempted states.
func Error(w http.ResponseWriter, err error) {
	body := ErrorBody{Error: err.Error()}
	var te *model.TransitionError
	if errors.As(err, &te) {
		body.Current = te.Current
		body.Attempted = te.Attempted
	}
	JSON(w, Status(err), body)
}

// Decode reads a JSON request body into v. Unknown fields are rejected.
func Decode(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return fmt.Errorf("%w: %v", model.ErrInvalidRequest, err)
	}
	return nil
}
