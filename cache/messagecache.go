package cache

import (
	"sort"
	"sync"

	"github.com/fiware/message-backplane/model"
)

/**
* Bounded in-memory tail of the message stream, id ascending. The cache is a
* read-only view and never authoritative: callers may trust it only for ids
* inside [First().ID, Last().ID] and have to fall back to the backing store
* for anything outside the window.
 */
type MessageCache struct {
	mutex    sync.RWMutex
	limit    int
	ordered  []model.Message
	messages map[string]model.Message
	// highest evicted id; ids at or below it may no longer enter the
	// window, their neighbors are already gone
	floor string
}

func NewMessageCache(limit int) *MessageCache {
	if limit <= 0 {
		limit = 1
	}
	return &MessageCache{
		limit:    limit,
		messages: map[string]model.Message{},
	}
}

/**
* Adds a message to the window, keeping it id ordered. Concurrent publishers
* may complete out of id order, so a message older than the current tail is
* inserted in sorted position instead of being dropped, the window must stay
* gap free. Only duplicates and ids below the eviction floor are ignored.
* The oldest entries are evicted once the window is full.
 */
func (cache *MessageCache) Add(message model.Message) {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	if message.ID <= cache.floor {
		return
	}
	if _, ok := cache.messages[message.ID]; ok {
		return
	}

	if len(cache.ordered) == 0 || message.ID > cache.ordered[len(cache.ordered)-1].ID {
		cache.ordered = append(cache.ordered, message)
	} else {
		at := sort.Search(len(cache.ordered), func(i int) bool {
			return cache.ordered[i].ID > message.ID
		})
		cache.ordered = append(cache.ordered, model.Message{})
		copy(cache.ordered[at+1:], cache.ordered[at:])
		cache.ordered[at] = message
	}
	cache.messages[message.ID] = message

	for len(cache.ordered) > cache.limit {
		evicted := cache.ordered[0]
		cache.ordered = cache.ordered[1:]
		delete(cache.messages, evicted.ID)
		cache.floor = evicted.ID
	}
}

func (cache *MessageCache) First() (model.Message, bool) {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()

	if len(cache.ordered) == 0 {
		return model.Message{}, false
	}
	return cache.ordered[0], true
}

func (cache *MessageCache) Last() (model.Message, bool) {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()

	if len(cache.ordered) == 0 {
		return model.Message{}, false
	}
	return cache.ordered[len(cache.ordered)-1], true
}

func (cache *MessageCache) Get(id string) (model.Message, bool) {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()

	message, ok := cache.messages[id]
	return message, ok
}

/**
* All cached messages with an id strictly greater than the given one, in id
* order. The empty id means "from the beginning of the window".
 */
func (cache *MessageCache) SinceID(id string) []model.Message {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()

	since := []model.Message{}
	for _, message := range cache.ordered {
		if message.ID > id {
			since = append(since, message)
		}
	}
	return since
}

// ContainsWindow reports whether the given id falls inside the cached window,
// the only region the cache may be trusted for.
func (cache *MessageCache) ContainsWindow(id string) bool {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()

	if len(cache.ordered) == 0 {
		return false
	}
	return cache.ordered[0].ID <= id && id <= cache.ordered[len(cache.ordered)-1].ID
}

func (cache *MessageCache) Len() int {
	cache.mutex.RLock()
	defer cache.mutex.RUnlock()

	return len(cache.ordered)
}

func (cache *MessageCache) Clear() {
	cache.mutex.Lock()
	defer cache.mutex.Unlock()

	cache.ordered = nil
	cache.messages = map[string]model.Message{}
	cache.floor = ""
}
