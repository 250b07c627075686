package model

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

func TestNewMessageIDIsStrictlyIncreasing(t *testing.T) {
	now := time.Now()

	previous := NewMessageID(now)
	for i := 0; i < 1000; i++ {
		id := NewMessageID(now)
		assert.True(t, id > previous, "id %s has to be greater than %s", id, previous)
		previous = id
	}
}

func TestIDCutoffOrdersByAge(t *testing.T) {
	instant := time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

	older := IDCutoff(instant.Add(-time.Minute)) + "-aaaaaaaaaa"
	newer := IDCutoff(instant.Add(time.Minute)) + "-aaaaaaaaaa"
	cutoff := IDCutoff(instant)

	assert.True(t, older < cutoff)
	assert.True(t, newer > cutoff)
}

func TestTokenChannelName(t *testing.T) {
	anonymous := Token{Kind: TokenKindAnonymous, Channel: "c1"}
	channel, bound := anonymous.ChannelName()
	assert.True(t, bound)
	assert.Equal(t, "c1", channel)

	privileged := Token{Kind: TokenKindPrivileged, Channel: "ignored"}
	_, bound = privileged.ChannelName()
	assert.False(t, bound)
}

func TestBusConfigValidate(t *testing.T) {
	valid := BusConfig{BusName: "b1", Owner: "o1", RetentionTimeSeconds: 60, RetentionStickyTimeSeconds: 3600}
	assert.NoError(t, valid.Validate())

	negativeRetention := BusConfig{BusName: "b1", Owner: "o1", RetentionTimeSeconds: -1, RetentionStickyTimeSeconds: 3600}
	assert.Equal(t, KindValidation, KindOf(negativeRetention.Validate()))

	missingOwner := BusConfig{BusName: "b1", RetentionTimeSeconds: 60, RetentionStickyTimeSeconds: 3600}
	assert.Equal(t, KindValidation, KindOf(missingOwner.Validate()))
}
