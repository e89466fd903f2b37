package mqtt

import (
	"context"
	"sync"

	"github.com/kilianp07/autoaid/core/dispatch"
	"github.com/kilianp07/autoaid/core/offer"
	"github.com/kilianp07/autoaid/infra/logger"
)

// LogNotifier stands in for the MQTT transport when no broker is configured.
// It logs every message and keeps the most recent ones for inspection.
type LogNotifier struct {
	logger logger.Logger

	mu      sync.Mutex
	Offers  []offer.Notification
	Notices []dispatch.CustomerNotice
	limit   int
}

// NewLogNotifier creates a LogNotifier keeping at most limit messages of each
// kind.
func NewLogNotifier(limit int) *LogNotifier {
	if limit <= 0 {
		limit = 100
	}
	return &LogNotifier{logger: logger.New("notifier"), limit: limit}
}

// NotifyOffer records the offer.
func (l *LogNotifier) NotifyOffer(_ context.Context, n offer.Notification) error {
	l.logger.Infof("offer %s for booking %s to %s (rank %d)", n.RoundID, n.BookingID, n.MechanicID, n.CandidateRank)
	l.mu.Lock()
	l.Offers = keep(append(l.Offers, n), l.limit)
	l.mu.Unlock()
	return nil
}

// NotifyCustomer records the notice.
func (l *LogNotifier) NotifyCustomer(_ context.Context, n dispatch.CustomerNotice) error {
	l.logger.Infof("booking %s is %s for customer %s", n.BookingID, n.Status, n.CustomerID)
	l.mu.Lock()
	l.Notices = keep(append(l.Notices, n), l.limit)
	l.mu.Unlock()
	return nil
}

// Snapshot returns copies of the recorded messages.
func (l *LogNotifier) Snapshot() ([]offer.Notification, []dispatch.CustomerNotice) {
	l.mu.Lock()
	defer l.mu.Unlock()
	return append([]offer.Notification(nil), l.Offers...), append([]dispatch.CustomerNotice(nil), l.Notices...)
}

func keep[T any](s []T, limit int) []T {
	if len(s) > limit {
		return s[len(s)-limit:]
	}
	return s
}
