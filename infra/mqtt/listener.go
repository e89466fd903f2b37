package mqtt

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	paho "github.com/eclipse/paho.mqtt.golang"

	"github.com/kilianp07/autoaid/core/model"
	coremon "github.com/kilianp07/autoaid/core/monitoring"
	coremqtt "github.com/kilianp07/autoaid/core/mqtt"
	"github.com/kilianp07/autoaid/core/offer"
)

// Handler consumes the messages sent by mechanic clients.
type Handler interface {
	Heartbeat(ctx context.Context, hb model.Heartbeat) error
	RespondToOffer(ctx context.Context, resp offer.Response) error
}

// Result is published on the mechanic's result topic after each response.
type Result struct {
	BookingID string `json:"bookingId"`
	RoundID   string `json:"roundId"`
	Decision  string `json:"decision"`
	// Outcome is one of accepted, declined, already_assigned, stale,
	// invalid_transition, rejected.
	Outcome string `json:"outcome"`
	Error   string `json:"error,omitempty"`
}

// Listen installs h and subscribes to the heartbeat and response topics.
func (p *PahoClient) Listen(h Handler) error {
	p.mu.Lock()
	p.handler = h
	p.mu.Unlock()
	if !p.cli.IsConnected() {
		// OnConnect subscribes once the connection is up
		return nil
	}
	return p.subscribe(p.cli)
}

type subscriber interface {
	Subscribe(topic string, qos byte, callback paho.MessageHandler) paho.Token
}

func (p *PahoClient) subscribe(c subscriber) error {
	subs := []struct {
		filter string
		kind   string
		cb     paho.MessageHandler
	}{
		{coremqtt.HeartbeatFilter, "heartbeat", p.onHeartbeat},
		{coremqtt.ResponseFilter, "response", p.onResponse},
	}
	for _, s := range subs {
		if token := c.Subscribe(s.filter, p.qosFor(s.kind), s.cb); token.Wait() && token.Error() != nil {
			p.logger.Errorf("subscribe %s error: %v", s.filter, token.Error())
			return token.Error()
		}
	}
	return nil
}

func (p *PahoClient) current() Handler {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.handler
}

func (p *PahoClient) onHeartbeat(_ paho.Client, msg paho.Message) {
	h := p.current()
	if h == nil {
		return
	}
	var hb model.Heartbeat
	id, err := decode(msg, &hb, &hb.MechanicID)
	if err != nil {
		p.logger.Warnf("invalid heartbeat on %s: %v", msg.Topic(), err)
		return
	}
	p.handle(map[string]string{"module": "mqtt", "mechanic_id": id}, func(ctx context.Context) {
		if err := h.Heartbeat(ctx, hb); err != nil {
			p.logger.Warnf("heartbeat from %s rejected: %v", id, err)
		}
	})
}

func (p *PahoClient) onResponse(_ paho.Client, msg paho.Message) {
	h := p.current()
	if h == nil {
		return
	}
	var resp offer.Response
	id, err := decode(msg, &resp, &resp.MechanicID)
	if err != nil {
		p.logger.Warnf("invalid offer response on %s: %v", msg.Topic(), err)
		return
	}
	tags := map[string]string{"module": "mqtt", "mechanic_id": id, "booking_id": resp.BookingID}
	p.handle(tags, func(ctx context.Context) {
		err := h.RespondToOffer(ctx, resp)
		res := Result{BookingID: resp.BookingID, RoundID: resp.RoundID, Decision: string(resp.Decision), Outcome: outcome(resp, err)}
		if err != nil {
			res.Error = err.Error()
			if errors.Is(err, model.ErrAlreadyAssigned) {
				p.logger.Debugf("offer response from %s: %v", id, err)
			} else {
				p.logger.Infof("offer response from %s rejected: %v", id, err)
			}
		}
		if perr := p.publish(ctx, coremqtt.ResultTopic(id), "result", res, tags); perr != nil {
			p.logger.Warnf("offer result to %s: %v", id, perr)
		}
	})
}

// handle runs fn on its own goroutine. Message callbacks run on the paho
// router and must not wait for a publish acknowledgement, which the handlers
// do when they send results and customer notices.
func (p *PahoClient) handle(tags map[string]string, fn func(ctx context.Context)) {
	coremon.Go(tags, func() {
		ctx, cancel := context.WithTimeout(context.Background(), p.timeout)
		defer cancel()
		fn(ctx)
	})
}

// decode unmarshals the payload into v and reconciles the mechanic id of the
// payload with the one in the topic.
func decode(msg paho.Message, v any, mechanicID *string) (string, error) {
	id, err := coremqtt.MechanicID(msg.Topic())
	if err != nil {
		return "", err
	}
	if err := json.Unmarshal(msg.Payload(), v); err != nil {
		return id, fmt.Errorf("decode: %w", err)
	}
	switch *mechanicID {
	case "":
		*mechanicID = id
	case id:
	default:
		return id, fmt.Errorf("%w: %s on %s", coremqtt.ErrIdentityMismatch, *mechanicID, msg.Topic())
	}
	return id, nil
}

func outcome(resp offer.Response, err error) string {
	switch {
	case err == nil && resp.Decision == offer.Decline:
		return "declined"
	case err == nil:
		return "accepted"
	case errors.Is(err, model.ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, model.ErrStaleOffer):
		return "stale"
	case errors.Is(err, model.ErrInvalidTransition):
		return "invalid_transition"
	}
	return "rejected"
}
