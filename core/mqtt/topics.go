// Package mqtt holds the topic layout shared by the dispatch service and the
// mechanic clients.
package mqtt

import (
	"fmt"
	"strings"
)

const (
	// HeartbeatFilter matches the presence reports of every mechanic.
	HeartbeatFilter = "mechanic/+/heartbeat"
	// ResponseFilter matches the offer answers of every mechanic.
	ResponseFilter = "mechanic/+/offer/response"
	// OfferFilter matches the offers pushed to every mechanic.
	OfferFilter = "mechanic/+/offer"
)

// OfferTopic is where offers for one mechanic are published.
func OfferTopic(mechanicID string) string { return fmt.Sprintf("mechanic/%s/offer", mechanicID) }

// ResultTopic carries the outcome of a mechanic's offer response.
func ResultTopic(mechanicID string) string {
	return fmt.Sprintf("mechanic/%s/offer/result", mechanicID)
}

// HeartbeatTopic is where one mechanic reports its presence.
func HeartbeatTopic(mechanicID string) string {
	return fmt.Sprintf("mechanic/%s/heartbeat", mechanicID)
}

// ResponseTopic is where one mechanic answers offers.
func ResponseTopic(mechanicID string) string {
	return fmt.Sprintf("mechanic/%s/offer/response", mechanicID)
}

// CustomerTopic carries booking notices for one customer.
func CustomerTopic(customerID string) string {
	return fmt.Sprintf("customer/%s/booking", customerID)
}

// MechanicID extracts the mechanic id from a mechanic/{id}/... topic.
func MechanicID(topic string) (string, error) {
	parts := strings.Split(topic, "/")
	if len(parts) < 3 || parts[0] != "mechanic" || parts[1] == "" {
		return "", fmt.Errorf("%w: %q", ErrTopic, topic)
	}
	return parts[1], nil
}
