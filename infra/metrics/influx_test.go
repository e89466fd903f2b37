package metrics

import (
	"io"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	coremetrics "github.com/kilianp07/autoaid/core/metrics"
	"github.com/kilianp07/autoaid/core/model"
)

type lineRecorder struct {
	mu    sync.Mutex
	lines []string
}

func (l *lineRecorder) server(t *testing.T) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		data, _ := io.ReadAll(r.Body)
		l.mu.Lock()
		l.lines = append(l.lines, strings.TrimSpace(string(data)))
		l.mu.Unlock()
		w.WriteHeader(http.StatusNoContent)
	}))
	t.Cleanup(srv.Close)
	return srv
}

func (l *lineRecorder) only(t *testing.T) string {
	t.Helper()
	l.mu.Lock()
	defer l.mu.Unlock()
	require.Len(t, l.lines, 1)
	return l.lines[0]
}

func TestInfluxSink_RecordBookingOutcome(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL+"/api/v2/write", "token", "org", "bucket")

	err := sink.RecordBookingOutcome(coremetrics.BookingOutcome{
		BookingID:    "b1",
		ServiceType:  model.ServiceFlatTire,
		Status:       model.StatusCompleted,
		MechanicID:   "m1",
		Rounds:       2,
		TimeToAssign: 12 * time.Second,
		Duration:     time.Hour,
		FinalCost:    99.1234,
		Time:         time.Unix(1700000000, 0),
	})
	require.NoError(t, err)

	line := rec.only(t)
	assert.True(t, strings.HasPrefix(line, "booking_outcome,"), line)
	for _, frag := range []string{"booking_id=b1", "service_type=FLAT_TIRE", "status=completed", "mechanic_id=m1",
		"rounds=2i", "time_to_assign_s=12", "final_cost=99.123", "1700000000000000000"} {
		assert.Contains(t, line, frag)
	}
	assert.NotContains(t, line, "reason=")
}

func TestInfluxSink_RecordRoundAndResponse(t *testing.T) {
	rec := &lineRecorder{}
	srv := rec.server(t)
	sink := NewInfluxSink(srv.URL, "token", "org", "bucket")
	now := time.Unix(1700000000, 0)

	require.NoError(t, sink.RecordRound(coremetrics.RoundEvent{
		BookingID: "b1", RoundID: "r1", Number: 1, Candidates: 3, RadiusMeters: 5000,
		Outcome: "exhausted", Duration: 30 * time.Second, Time: now,
	}))
	require.NoError(t, sink.RecordOfferResponse(coremetrics.OfferResponseEvent{
		BookingID: "b1", RoundID: "r1", MechanicID: "m1", Decision: "accept", Result: "won",
		Latency: 1500 * time.Millisecond, Time: now,
	}))

	rec.mu.Lock()
	defer rec.mu.Unlock()
	require.Len(t, rec.lines, 2)
	assert.Contains(t, rec.lines[0], "offer_round,")
	assert.Contains(t, rec.lines[0], "outcome=exhausted")
	assert.Contains(t, rec.lines[0], "candidates=3i")
	assert.Contains(t, rec.lines[1], "offer_response,")
	assert.Contains(t, rec.lines[1], "result=won")
	assert.Contains(t, rec.lines[1], "latency_ms=1500i")
}

func TestNewInfluxSinkWithFallback(t *testing.T) {
	called := false
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path == "/health" {
			called = true
			w.WriteHeader(http.StatusInternalServerError)
			return
		}
	}))
	defer srv.Close()

	sink := NewInfluxSinkWithFallback(srv.URL+"/api/v2/write", "tok", "org", "bucket")
	if _, ok := sink.(*InfluxSink); ok {
		t.Fatalf("expected NopSink on failing health check")
	}
	if !called {
		t.Fatalf("health endpoint not called")
	}
}
