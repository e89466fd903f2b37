package mqtt

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestTopics(t *testing.T) {
	assert.Equal(t, "mechanic/m1/offer", OfferTopic("m1"))
	assert.Equal(t, "mechanic/m1/offer/result", ResultTopic("m1"))
	assert.Equal(t, "customer/c1/booking", CustomerTopic("c1"))

	id, err := MechanicID(HeartbeatTopic("m7"))
	require.NoError(t, err)
	assert.Equal(t, "m7", id)
	id, err = MechanicID(ResponseTopic("m8"))
	require.NoError(t, err)
	assert.Equal(t, "m8", id)

	for _, topic := range []string{"customer/c1/booking", "mechanic//heartbeat", "mechanic"} {
		_, err := MechanicID(topic)
		assert.ErrorIs(t, err, ErrTopic, topic)
	}
}
