package respond

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/autoaid/auth"
	"github.com/kilianp07/autoaid/core/model"
)

func TestStatus(t *testing.T) {
	cases := map[error]int{
		fmt.Errorf("x: %w", model.ErrInvalidRequest):  http.StatusBadRequest,
		fmt.Errorf("x: %w", auth.ErrUnauthorized):     http.StatusUnauthorized,
		fmt.Errorf("x: %w", model.ErrNotFound):        http.StatusNotFound,
		fmt.Errorf("x: %w", model.ErrStaleOffer):      http.StatusGone,
		fmt.Errorf("x: %w", model.ErrAlreadyAssigned): http.StatusConflict,
		&model.TransitionError{}:                      http.StatusConflict,
		fmt.Errorf("boom"):                            http.StatusInternalServerError,
	}
	for err, want := range cases {
		assert.Equal(t, want, Status(err), err.Error())
	}
}

func TestErrorCarriesTransition(t *testing.T) {
	rr := httptest.NewRecorder()
	Error(rr, fmt.Errorf("cancel: %w", &model.TransitionError{
		Current: model.StatusCompleted, Attempted: model.StatusCancelled, Event: model.EventCancel,
	}))
	assert.Equal(t, http.StatusConflict, rr.Code)
	var body ErrorBody
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, model.StatusCompleted, body.Current)
	assert.Equal(t, model.StatusCancelled, body.Attempted)
	assert.Contains(t, body.Error, "invalid transition")
}

func TestDecodeRejectsUnknownFields(t *testing.T) {
	var v struct {
		A int `json:"a"`
	}
	req := httptest.NewRequest(http.MethodPost, "/", strings.NewReader(`{"a":1,"b":2}`))
	err := Decode(req, &v)
	assert.ErrorIs(t, err, model.ErrInvalidRequest)
}
