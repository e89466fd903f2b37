package simulator

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/kilianp07/autoaid/core/model"
)

// ProgressReporter reports job progress of a mechanic.
type ProgressReporter interface {
	Report(ctx context.Context, bookingID, mechanicID string, ev model.Event, finalCost *float64) error
}

// HTTPProgress posts progress events to the booking API.
type HTTPProgress struct {
	BaseURL string
	Client  *http.Client
	// Token returns the bearer token for a mechanic. Optional.
	Token func(mechanicID string) (string, error)
}

// NewHTTPProgress creates a reporter for the API at baseURL.
func NewHTTPProgress(baseURL string) *HTTPProgress {
	return &HTTPProgress{
		BaseURL: strings.TrimRight(baseURL, "/"),
		Client:  &http.Client{Timeout: 5 * time.Second},
	}
}

// Report implements ProgressReporter.
func (p *HTTPProgress) Report(ctx context.Context, bookingID, mechanicID string, ev model.Event, finalCost *float64) error {
	body, err := json.Marshal(struct {
		MechanicID string      `json:"mechanicId"`
		Event      model.Event `json:"event"`
		FinalCost  *float64    `json:"finalCost,omitempty"`
	}{mechanicID, ev, finalCost})
	if err != nil {
		return err
	}
	url := fmt.Sprintf("%s/api/bookings/%s/progress", p.BaseURL, bookingID)
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if p.Token != nil {
		tok, err := p.Token(mechanicID)
		if err != nil {
			return err
		}
		req.Header.Set("Authorization", "Bearer "+tok)
	}
	resp, err := p.Client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		return fmt.Errorf("progress %s: status %d: %s", ev, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	return nil
}
