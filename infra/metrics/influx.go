package metrics

import (
	"context"
	"math"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/autoaid/core/metrics"
	"github.com/kilianp07/autoaid/core/model"
	"github.com/kilianp07/autoaid/infra/logger"
)

// InfluxSink writes booking events to an InfluxDB instance using the official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback tries to ping the InfluxDB instance and
// returns a NopSink if the health check fails.
func NewInfluxSinkWithFallback(url, token, org, bucket string) coremetrics.MetricsSink {
	sink := NewInfluxSink(url, token, org, bucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopSink{}
	}
	return sink
}

// RecordBookingOutcome writes one booking_outcome point.
func (s *InfluxSink) RecordBookingOutcome(ev coremetrics.BookingOutcome) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("booking_outcome").
		AddTag("booking_id", ev.BookingID).
		AddTag("service_type", string(ev.ServiceType)).
		AddTag("status", string(ev.Status)).
		AddTag("urgent", strconv.FormatBool(ev.Urgent)).
		AddField("rounds", ev.Rounds).
		AddField("duration_s", round3(ev.Duration.Seconds())).
		SetTime(ev.Time)
	if ev.Reason != "" {
		p.AddTag("reason", string(ev.Reason))
	}
	if ev.MechanicID != "" {
		p.AddTag("mechanic_id", ev.MechanicID)
	}
	if ev.TimeToAssign > 0 {
		p.AddField("time_to_assign_s", round3(ev.TimeToAssign.Seconds()))
	}
	if ev.Status == model.StatusCompleted {
		p.AddField("final_cost", round3(ev.FinalCost))
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordRound persists a resolved offer round.
func (s *InfluxSink) RecordRound(ev coremetrics.RoundEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("offer_round").
		AddTag("booking_id", ev.BookingID).
		AddTag("round_id", ev.RoundID).
		AddTag("outcome", ev.Outcome).
		AddField("number", ev.Number).
		AddField("candidates", ev.Candidates).
		AddField("radius_m", round3(ev.RadiusMeters)).
		AddField("duration_s", round3(ev.Duration.Seconds())).
		SetTime(ev.Time)
	if ev.MechanicID != "" {
		p.AddTag("mechanic_id", ev.MechanicID)
	}
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordOfferResponse persists a mechanic response.
func (s *InfluxSink) RecordOfferResponse(ev coremetrics.OfferResponseEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("offer_response").
		AddTag("booking_id", ev.BookingID).
		AddTag("mechanic_id", ev.MechanicID).
		AddTag("decision", ev.Decision).
		AddTag("result", ev.Result).
		AddField("latency_ms", ev.Latency.Milliseconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordMechanicState writes a mechanic availability snapshot.
func (s *InfluxSink) RecordMechanicState(ev coremetrics.MechanicStateEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("mechanic_state").
		AddTag("mechanic_id", ev.MechanicID).
		AddField("online", ev.Online).
		AddField("busy", ev.Busy).
		AddField("stale", ev.Stale).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

func round3(f float64) float64 {
	return math.Round(f*1000) / 1000
}
