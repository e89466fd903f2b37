package simulator

import (
	"context"
	"encoding/json"
	"math/rand"
	"sync"
	"testing"
	"time"

	paho "github.com/eclipse/paho.mqtt.golang"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kilianp07/autoaid/core/model"
	coremqtt "github.com/kilianp07/autoaid/core/mqtt"
	"github.com/kilianp07/autoaid/core/offer"
	"github.com/kilianp07/autoaid/infra/mqtt"
)

type stubToken struct{ err error }

func (t *stubToken) Wait() bool                       { return true }
func (t *stubToken) WaitTimeout(d time.Duration) bool { return true }
func (t *stubToken) Done() <-chan struct{}            { ch := make(chan struct{}); close(ch); return ch }
func (t *stubToken) Error() error                     { return t.err }

type stubPub struct {
	topic   string
	payload []byte
}

type stubClient struct {
	mu           sync.Mutex
	subs         map[string]paho.MessageHandler
	pubs         []stubPub
	disconnected int
}

func newStubClient() *stubClient { return &stubClient{subs: map[string]paho.MessageHandler{}} }

func (c *stubClient) IsConnected() bool      { return c.disconnected == 0 }
func (c *stubClient) IsConnectionOpen() bool { return c.disconnected == 0 }
func (c *stubClient) Connect() paho.Token    { return &stubToken{} }
func (c *stubClient) Disconnect(uint)        { c.mu.Lock(); c.disconnected++; c.mu.Unlock() }
func (c *stubClient) Publish(topic string, qos byte, retained bool, payload interface{}) paho.Token {
	c.mu.Lock()
	b, _ := payload.([]byte)
	c.pubs = append(c.pubs, stubPub{topic, b})
	c.mu.Unlock()
	return &stubToken{}
}
func (c *stubClient) Subscribe(topic string, qos byte, cb paho.MessageHandler) paho.Token {
	c.mu.Lock()
	c.subs[topic] = cb
	c.mu.Unlock()
	return &stubToken{}
}
func (c *stubClient) SubscribeMultiple(map[string]byte, paho.MessageHandler) paho.Token {
	return &stubToken{}
}
func (c *stubClient) Unsubscribe(...string) paho.Token        { return &stubToken{} }
func (c *stubClient) AddRoute(string, paho.MessageHandler)    {}
func (c *stubClient) OptionsReader() paho.ClientOptionsReader { return paho.ClientOptionsReader{} }

func (c *stubClient) published(topic string) []stubPub {
	c.mu.Lock()
	defer c.mu.Unlock()
	var out []stubPub
	for _, p := range c.pubs {
		if p.topic == topic {
			out = append(out, p)
		}
	}
	return out
}

func (c *stubClient) deliver(topic string, v any) {
	c.mu.Lock()
	cb := c.subs[topic]
	c.mu.Unlock()
	payload, _ := json.Marshal(v)
	cb(c, stubMessage{topic: topic, payload: payload})
}

type stubMessage struct {
	topic   string
	payload []byte
}

func (m stubMessage) Duplicate() bool   { return false }
func (m stubMessage) Qos() byte         { return 1 }
func (m stubMessage) Retained() bool    { return false }
func (m stubMessage) Topic() string     { return m.topic }
func (m stubMessage) MessageID() uint16 { return 0 }
func (m stubMessage) Payload() []byte   { return m.payload }
func (m stubMessage) Ack()              {}

func useStub(t *testing.T) *stubClient {
	t.Helper()
	sc := newStubClient()
	mqttClientFactory = func(string, string) (paho.Client, error) { return sc, nil }
	t.Cleanup(func() { mqttClientFactory = realMQTTClient })
	return sc
}

func newMechanic() *SimulatedMechanic {
	m := &SimulatedMechanic{
		ID:           "mech1",
		Broker:       "tcp://localhost:1883",
		Position:     model.Position{Lat: 40.75, Lng: -73.98},
		Capabilities: model.NewCapabilities(model.ServiceFlatTire),
		Availability: AlwaysAvailable(),
	}
	m.init()
	return m
}

func TestHandleAvailabilityConnect(t *testing.T) {
	rng = rand.New(rand.NewSource(1))
	sc := useStub(t)
	m := newMechanic()

	m.handleAvailabilityTick(context.Background())
	require.NotNil(t, m.client)
	assert.Len(t, sc.subs, 2)
	assert.Contains(t, sc.subs, coremqtt.OfferTopic("mech1"))
	assert.Contains(t, sc.subs, coremqtt.ResultTopic("mech1"))

	beats := sc.published(coremqtt.HeartbeatTopic("mech1"))
	require.Len(t, beats, 1)
	var hb model.Heartbeat
	require.NoError(t, json.Unmarshal(beats[0].payload, &hb))
	assert.True(t, hb.Online)
	assert.True(t, hb.Capabilities.Has(model.ServiceFlatTire))
	assert.Less(t, hb.Position().DistanceMeters(model.Position{Lat: 40.75, Lng: -73.98}), 200.0)
}

func TestHandleAvailabilityUnavailableHour(t *testing.T) {
	sc := useStub(t)
	m := newMechanic()
	m.Availability = [24]float64{}

	m.handleAvailabilityTick(context.Background())
	assert.Nil(t, m.client)
	assert.Empty(t, sc.pubs)
}

func TestHandleAvailabilityDisconnect(t *testing.T) {
	rng = rand.New(rand.NewSource(1))
	sc := newStubClient()
	m := newMechanic()
	m.DisconnectRate = 1
	m.client = sc

	m.handleAvailabilityTick(context.Background())
	assert.Nil(t, m.client)
	assert.Equal(t, 1, sc.disconnected)
	beats := sc.published(coremqtt.HeartbeatTopic("mech1"))
	require.Len(t, beats, 1)
	var hb model.Heartbeat
	require.NoError(t, json.Unmarshal(beats[0].payload, &hb))
	assert.False(t, hb.Online)
}

func TestBusyMechanicStaysConnected(t *testing.T) {
	sc := newStubClient()
	m := newMechanic()
	m.DisconnectRate = 1
	m.client = sc
	m.busy = "b1"

	m.handleAvailabilityTick(context.Background())
	assert.NotNil(t, m.client)
	assert.Zero(t, sc.disconnected)
}

func TestOfferAnswered(t *testing.T) {
	sc := useStub(t)
	m := newMechanic()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.connect(ctx))
	go m.worker(ctx)

	sc.deliver(coremqtt.OfferTopic("mech1"), offer.Notification{BookingID: "b1", RoundID: "r1", MechanicID: "mech1"})
	require.Eventually(t, func() bool {
		return len(sc.published(coremqtt.ResponseTopic("mech1"))) == 1
	}, time.Second, 5*time.Millisecond)
	var resp offer.Response
	require.NoError(t, json.Unmarshal(sc.published(coremqtt.ResponseTopic("mech1"))[0].payload, &resp))
	assert.Equal(t, offer.Response{BookingID: "b1", RoundID: "r1", MechanicID: "mech1", Decision: offer.Accept}, resp)
}

func TestBusyMechanicDeclines(t *testing.T) {
	sc := newStubClient()
	m := newMechanic()
	m.client = sc
	m.busy = "b0"

	m.answer(context.Background(), offer.Notification{BookingID: "b1", RoundID: "r1"})
	pubs := sc.published(coremqtt.ResponseTopic("mech1"))
	require.Len(t, pubs, 1)
	var resp offer.Response
	require.NoError(t, json.Unmarshal(pubs[0].payload, &resp))
	assert.Equal(t, offer.Decline, resp.Decision)
}

type progressLog struct {
	mu     sync.Mutex
	events []model.Event
	cost   *float64
}

func (p *progressLog) Report(_ context.Context, bookingID, mechanicID string, ev model.Event, cost *float64) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, ev)
	if cost != nil {
		p.cost = cost
	}
	return nil
}

func (p *progressLog) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}

func TestAcceptedResultRunsJob(t *testing.T) {
	sc := useStub(t)
	progress := &progressLog{}
	m := newMechanic()
	m.Progress = progress
	m.JobStep = time.Millisecond
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	require.NoError(t, m.connect(ctx))

	sc.deliver(coremqtt.ResultTopic("mech1"), mqtt.Result{BookingID: "b1", Outcome: "stale"})
	m.mu.Lock()
	assert.Empty(t, m.busy)
	m.mu.Unlock()

	sc.deliver(coremqtt.ResultTopic("mech1"), mqtt.Result{BookingID: "b1", Outcome: "accepted"})
	require.Eventually(t, func() bool { return progress.count() == 4 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, jobEvents, progress.events)
	require.NotNil(t, progress.cost)
	assert.GreaterOrEqual(t, *progress.cost, 40.0)
	require.Eventually(t, func() bool {
		m.mu.Lock()
		defer m.mu.Unlock()
		return m.busy == ""
	}, time.Second, 5*time.Millisecond)
}
