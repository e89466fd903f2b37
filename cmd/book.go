package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/kilianp07/autoaid/auth"
	"github.com/kilianp07/autoaid/core/model"
)

var bookOpts struct {
	api      string
	customer string
	service  string
	lat, lng float64
	urgent   bool
	wait     time.Duration
}

var bookCmd = &cobra.Command{
	Use:   "book",
	Short: "Inject a test booking through the API",
	RunE:  runBook,
}

func init() {
	f := bookCmd.Flags()
	f.StringVar(&bookOpts.api, "api", "http://localhost:8080", "API base URL")
	f.StringVar(&bookOpts.customer, "customer", "cust-test", "customer id")
	f.StringVar(&bookOpts.service, "service", string(model.ServiceFlatTire), "service type")
	f.Float64Var(&bookOpts.lat, "lat", 48.8566, "pickup latitude")
	f.Float64Var(&bookOpts.lng, "lng", 2.3522, "pickup longitude")
	f.BoolVar(&bookOpts.urgent, "urgent", false, "flag the booking as SOS")
	f.DurationVar(&bookOpts.wait, "wait", 0, "poll the booking until it leaves searching or the duration elapses")
	rootCmd.AddCommand(bookCmd)
}

func runBook(cmd *cobra.Command, args []string) error {
	cfg, err := loadConfig()
	if err != nil {
		return err
	}
	var token string
	if cfg.Auth.Enabled() {
		if token, err = auth.NewTokenService(cfg.Auth).Issue(bookOpts.customer, string(model.RoleCustomer)); err != nil {
			return fmt.Errorf("issue token: %w", err)
		}
	}
	base := strings.TrimRight(bookOpts.api, "/")
	client := &http.Client{Timeout: 5 * time.Second}
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}

	req := model.BookingRequest{
		CustomerID:  bookOpts.customer,
		ServiceType: model.ServiceType(bookOpts.service),
		Location:    &model.Position{Lat: bookOpts.lat, Lng: bookOpts.lng},
		Urgent:      bookOpts.urgent,
	}
	var created struct {
		BookingID string       `json:"bookingId"`
		Status    model.Status `json:"status"`
	}
	if err := doJSON(ctx, client, http.MethodPost, base+"/api/bookings", token, req, http.StatusCreated, &created); err != nil {
		return err
	}
	fmt.Fprintf(cmd.OutOrStdout(), "booking %s %s\n", created.BookingID, created.Status)
	if bookOpts.wait <= 0 {
		return nil
	}

	deadline := time.Now().Add(bookOpts.wait)
	for time.Now().Before(deadline) {
		var b model.Booking
		if err := doJSON(ctx, client, http.MethodGet, base+"/api/bookings/"+created.BookingID, token, nil, http.StatusOK, &b); err != nil {
			return err
		}
		if b.Status != model.StatusSearching {
			fmt.Fprintf(cmd.OutOrStdout(), "booking %s %s mechanic=%s reason=%s\n", b.ID, b.Status, b.MechanicID, b.CancelReason)
			return nil
		}
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-time.After(500 * time.Millisecond):
		}
	}
	return fmt.Errorf("booking %s still searching after %s", created.BookingID, bookOpts.wait)
}

func doJSON(ctx context.Context, client *http.Client, method, url, token string, in any, want int, out any) error {
	var body io.Reader
	if in != nil {
		data, err := json.Marshal(in)
		if err != nil {
			return err
		}
		body = bytes.NewReader(data)
	}
	req, err := http.NewRequestWithContext(ctx, method, url, body)
	if err != nil {
		return err
	}
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := client.Do(req)
	if err != nil {
		return err
	}
	defer resp.Body.Close()
	if resp.StatusCode != want {
		msg, _ := io.ReadAll(io.LimitReader(resp.Body, 1024))
		return fmt.Errorf("%s %s: status %d: %s", method, url, resp.StatusCode, strings.TrimSpace(string(msg)))
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}
