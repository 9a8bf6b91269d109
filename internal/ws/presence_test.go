package ws

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"chat-broker/internal/models"
)

func TestPresenceSingleSession(t *testing.T) {
	tracker := NewPresenceTracker()

	assert.Equal(t, models.PresenceOffline, tracker.Status(1))
	assert.True(t, tracker.Connect(1))
	assert.Equal(t, models.PresenceOnline, tracker.Status(1))
	assert.True(t, tracker.Disconnect(1))
	assert.Equal(t, models.PresenceOffline, tracker.Status(1))
}

func TestPresenceMultiDeviceDoesNotFlap(t *testing.T) {
	tracker := NewPresenceTracker()

	assert.True(t, tracker.Connect(1))
	assert.False(t, tracker.Connect(1), "second device must not re-announce online")
	assert.Equal(t, 2, tracker.Sessions(1))

	assert.False(t, tracker.Disconnect(1), "first disconnect keeps the user online")
	assert.Equal(t, models.PresenceOnline, tracker.Status(1))
	assert.True(t, tracker.Disconnect(1), "last disconnect flips offline")
	assert.Equal(t, models.PresenceOffline, tracker.Status(1))
}

func TestPresenceExtraDisconnectIgnored(t *testing.T) {
	tracker := NewPresenceTracker()

	assert.False(t, tracker.Disconnect(9))
	assert.Equal(t, 0, tracker.Sessions(9))
}
