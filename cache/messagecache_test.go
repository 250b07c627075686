package cache

import (
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"

	"github.com/fiware/message-backplane/model"
)

func cachedMessage(sequence int) model.Message {
	return model.Message{ID: fmt.Sprintf("2024-05-01T10:00:00.%03dZ-x", sequence), Bus: "b1", Channel: "c1"}
}

func TestEmptyCache(t *testing.T) {
	messageCache := NewMessageCache(10)

	_, ok := messageCache.First()
	assert.False(t, ok)
	_, ok = messageCache.Last()
	assert.False(t, ok)
	_, ok = messageCache.Get("2024-05-01T10:00:00.000Z-x")
	assert.False(t, ok)
	assert.Empty(t, messageCache.SinceID(""))
	assert.False(t, messageCache.ContainsWindow("2024-05-01T10:00:00.000Z-x"))
}

func TestWindowBounds(t *testing.T) {
	messageCache := NewMessageCache(10)
	for i := 0; i < 5; i++ {
		messageCache.Add(cachedMessage(i))
	}

	first, ok := messageCache.First()
	assert.True(t, ok)
	assert.Equal(t, cachedMessage(0).ID, first.ID)

	last, ok := messageCache.Last()
	assert.True(t, ok)
	assert.Equal(t, cachedMessage(4).ID, last.ID)

	assert.True(t, messageCache.ContainsWindow(cachedMessage(2).ID))
	assert.False(t, messageCache.ContainsWindow("2024-05-01T09:00:00.000Z-x"))
	assert.False(t, messageCache.ContainsWindow("2024-05-01T11:00:00.000Z-x"))
}

func TestEviction(t *testing.T) {
	messageCache := NewMessageCache(3)
	for i := 0; i < 5; i++ {
		messageCache.Add(cachedMessage(i))
	}

	assert.Equal(t, 3, messageCache.Len())

	_, ok := messageCache.Get(cachedMessage(0).ID)
	assert.False(t, ok)
	_, ok = messageCache.Get(cachedMessage(1).ID)
	assert.False(t, ok)
	_, ok = messageCache.Get(cachedMessage(2).ID)
	assert.True(t, ok)

	first, _ := messageCache.First()
	assert.Equal(t, cachedMessage(2).ID, first.ID)
}

func TestOutOfOrderAddsAreSorted(t *testing.T) {
	messageCache := NewMessageCache(10)
	// concurrent publishers can complete out of id order, the younger
	// message must not leave a hole in the window
	messageCache.Add(cachedMessage(1))
	messageCache.Add(cachedMessage(3))
	messageCache.Add(cachedMessage(2))

	since := messageCache.SinceID(cachedMessage(1).ID)
	assert.Len(t, since, 2)
	assert.Equal(t, cachedMessage(2).ID, since[0].ID)
	assert.Equal(t, cachedMessage(3).ID, since[1].ID)
}

func TestDuplicateAddsAreIgnored(t *testing.T) {
	messageCache := NewMessageCache(10)
	messageCache.Add(cachedMessage(3))
	messageCache.Add(cachedMessage(3))

	assert.Equal(t, 1, messageCache.Len())
}

func TestAddsBelowEvictionFloorAreIgnored(t *testing.T) {
	messageCache := NewMessageCache(2)
	for i := 0; i < 3; i++ {
		messageCache.Add(cachedMessage(i))
	}

	// cachedMessage(0) was evicted, re-adding it may not re-open the
	// window below ids whose neighbors are already gone
	messageCache.Add(cachedMessage(0))

	assert.Equal(t, 2, messageCache.Len())
	first, _ := messageCache.First()
	assert.Equal(t, cachedMessage(1).ID, first.ID)
}

func TestSinceID(t *testing.T) {
	messageCache := NewMessageCache(10)
	for i := 0; i < 5; i++ {
		messageCache.Add(cachedMessage(i))
	}

	since := messageCache.SinceID(cachedMessage(2).ID)
	assert.Len(t, since, 2)
	assert.Equal(t, cachedMessage(3).ID, since[0].ID)
	assert.Equal(t, cachedMessage(4).ID, since[1].ID)

	all := messageCache.SinceID("")
	assert.Len(t, all, 5)
	for i := 1; i < len(all); i++ {
		assert.True(t, all[i-1].ID < all[i].ID)
	}
}

func TestClear(t *testing.T) {
	messageCache := NewMessageCache(10)
	messageCache.Add(cachedMessage(0))
	messageCache.Clear()

	assert.Equal(t, 0, messageCache.Len())
	_, ok := messageCache.First()
	assert.False(t, ok)
}
