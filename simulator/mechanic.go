package simulator

import (
	"context"
	"encoding/json"
	"fmt"
	"log"
	"sync"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/autoaid/core/model"
	coremqtt "github.com/kilianp07/autoaid/core/mqtt"
	"github.com/kilianp07/autoaid/core/offer"
	"github.com/kilianp07/autoaid/infra/mqtt"
)

// SimulatedMechanic connects to MQTT, sends heartbeats and answers offers.
type SimulatedMechanic struct {
	ID             string
	Broker         string
	Position       model.Position
	Capabilities   model.Capabilities
	Strategy       ResponseStrategy
	Interval       time.Duration
	DisconnectRate float64
	Availability   [24]float64
	// Progress drives accepted jobs to completion when set.
	Progress ProgressReporter
	JobStep  time.Duration

	mu     sync.Mutex
	client paho.Client
	busy   string
	offers chan offer.Notification
	now    func() time.Time
}

// Run connects to the broker and plays the mechanic until ctx is done.
func (m *SimulatedMechanic) Run(ctx context.Context) error {
	m.init()
	go m.worker(ctx)
	interval := m.Interval
	if interval <= 0 {
		interval = 10 * time.Second
	}
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	m.handleAvailabilityTick(ctx)
	for {
		select {
		case <-ctx.Done():
			m.disconnect()
			return nil
		case <-ticker.C:
			m.handleAvailabilityTick(ctx)
		}
	}
}

func (m *SimulatedMechanic) init() {
	if m.offers == nil {
		m.offers = make(chan offer.Notification, 16)
	}
	if m.now == nil {
		m.now = time.Now
	}
	if m.Strategy == nil {
		m.Strategy = AutoAccept{}
	}
}

// handleAvailabilityTick connects or disconnects the mechanic following the
// availability profile and sends a heartbeat while connected.
func (m *SimulatedMechanic) handleAvailabilityTick(ctx context.Context) {
	m.mu.Lock()
	connected := m.client != nil
	busy := m.busy != ""
	m.mu.Unlock()

	if connected && !busy && m.DisconnectRate > 0 && randFloat() < m.DisconnectRate {
		m.disconnect()
		return
	}
	if !connected {
		if randFloat() >= m.Availability[m.now().Hour()] {
			return
		}
		if err := m.connect(ctx); err != nil {
			log.Printf("%s: connect: %v", m.ID, err)
			return
		}
	}
	if !busy {
		m.mu.Lock()
		m.Position = m.Position.Offset(randNorm()*20, randNorm()*20)
		m.mu.Unlock()
	}
	m.heartbeat(true)
}

func (m *SimulatedMechanic) connect(ctx context.Context) error {
	cli, err := mqttClientFactory(m.Broker, "sim-"+m.ID)
	if err != nil {
		return err
	}
	subs := map[string]paho.MessageHandler{
		coremqtt.OfferTopic(m.ID):  m.onOffer,
		coremqtt.ResultTopic(m.ID): m.onResult(ctx),
	}
	for topic, cb := range subs {
		if token := cli.Subscribe(topic, 1, cb); token.Wait() && token.Error() != nil {
			cli.Disconnect(250)
			return token.Error()
		}
	}
	m.mu.Lock()
	m.client = cli
	m.mu.Unlock()
	return nil
}

func (m *SimulatedMechanic) disconnect() {
	m.mu.Lock()
	cli := m.client
	m.mu.Unlock()
	if cli == nil {
		return
	}
	m.heartbeat(false)
	m.mu.Lock()
	m.client = nil
	m.mu.Unlock()
	cli.Disconnect(250)
}

func (m *SimulatedMechanic) heartbeat(online bool) {
	m.mu.Lock()
	hb := model.Heartbeat{
		MechanicID:   m.ID,
		Lat:          m.Position.Lat,
		Lng:          m.Position.Lng,
		Online:       online,
		Capabilities: m.Capabilities,
		At:           m.now().UTC(),
	}
	m.mu.Unlock()
	m.publish(coremqtt.HeartbeatTopic(m.ID), hb)
}

func (m *SimulatedMechanic) publish(topic string, v any) {
	m.mu.Lock()
	cli := m.client
	m.mu.Unlock()
	if cli == nil {
		return
	}
	payload, err := json.Marshal(v)
	if err != nil {
		log.Printf("%s: marshal: %v", m.ID, err)
		return
	}
	token := cli.Publish(topic, 1, false, payload)
	if !token.WaitTimeout(5 * time.Second) {
		log.Printf("%s: publish to %s timed out", m.ID, topic)
		return
	}
	if err := token.Error(); err != nil {
		log.Printf("%s: publish to %s: %v", m.ID, topic, err)
	}
}

func (m *SimulatedMechanic) onOffer(_ paho.Client, msg paho.Message) {
	var n offer.Notification
	if err := json.Unmarshal(msg.Payload(), &n); err != nil {
		log.Printf("%s: decode offer: %v", m.ID, err)
		return
	}
	select {
	case m.offers <- n:
	default:
		log.Printf("%s: offer queue full, dropping %s", m.ID, n.RoundID)
	}
}

func (m *SimulatedMechanic) worker(ctx context.Context) {
	for {
		select {
		case n := <-m.offers:
			m.answer(ctx, n)
		case <-ctx.Done():
			return
		}
	}
}

func (m *SimulatedMechanic) answer(ctx context.Context, n offer.Notification) {
	m.mu.Lock()
	busy := m.busy != ""
	m.mu.Unlock()
	decision := offer.Decline
	if !busy {
		d, ok := m.Strategy.Decide(ctx, n)
		if !ok {
			return
		}
		decision = d
	}
	m.publish(coremqtt.ResponseTopic(m.ID), offer.Response{
		BookingID:  n.BookingID,
		RoundID:    n.RoundID,
		MechanicID: m.ID,
		Decision:   decision,
	})
}

func (m *SimulatedMechanic) onResult(ctx context.Context) paho.MessageHandler {
	return func(_ paho.Client, msg paho.Message) {
		var res mqtt.Result
		if err := json.Unmarshal(msg.Payload(), &res); err != nil {
			log.Printf("%s: decode result: %v", m.ID, err)
			return
		}
		if res.Outcome != "accepted" {
			return
		}
		m.mu.Lock()
		m.busy = res.BookingID
		m.mu.Unlock()
		log.Printf("%s: assigned to %s", m.ID, res.BookingID)
		go m.runJob(ctx, res.BookingID)
	}
}

var jobEvents = []model.Event{
	model.EventMechanicDeparted,
	model.EventMechanicArrived,
	model.EventWorkStarted,
	model.EventWorkFinished,
}

// runJob reports the progress of an assigned booking and frees the
// mechanic. Without a reporter the mechanic stays busy until the booking
// is resolved elsewhere.
func (m *SimulatedMechanic) runJob(ctx context.Context, bookingID string) {
	if m.Progress == nil {
		return
	}
	defer func() {
		m.mu.Lock()
		if m.busy == bookingID {
			m.busy = ""
		}
		m.mu.Unlock()
	}()
	for _, ev := range jobEvents {
		if !wait(ctx, m.JobStep) {
			return
		}
		var cost *float64
		if ev == model.EventWorkFinished {
			c := 40 + 80*randFloat()
			cost = &c
		}
		if err := m.Progress.Report(ctx, bookingID, m.ID, ev, cost); err != nil {
			log.Printf("%s: %s for %s: %v", m.ID, ev, bookingID, err)
			return
		}
	}
}

func (m *SimulatedMechanic) String() string {
	return fmt.Sprintf("%s@%s", m.ID, m.Position)
}
