package store

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"

	"github.com/fiware/message-backplane/bus"
	"github.com/fiware/message-backplane/cache"
	"github.com/fiware/message-backplane/logging"
	"github.com/fiware/message-backplane/model"
	"github.com/fiware/message-backplane/scope"
	dbModel "github.com/fiware/message-backplane/sql"
)

var logger = logging.Log()

/**
* The message repository. Serves reads from the bounded tail cache where the
* requested id range falls inside its window and reconciles with the backing
* store everywhere else.
 */
type MessageStore struct {
	repo         rel.Repository
	messageCache *cache.MessageCache
	buses        *bus.Registry
	channelLimit int
	now          func() time.Time
}

func NewMessageStore(repository rel.Repository, messageCache *cache.MessageCache, busRegistry *bus.Registry, channelLimit int) *MessageStore {
	return &MessageStore{
		repo:         repository,
		messageCache: messageCache,
		buses:        busRegistry,
		channelLimit: channelLimit,
		now:          time.Now,
	}
}

/**
* Appends a message. An empty id is assigned at persist time; an existing row
* is never overwritten. Publishing carries no scope check, publishers write
* to a bus and channel, not to a scope.
 */
func (messageStore *MessageStore) Persist(ctx context.Context, message model.Message) (model.Message, error) {
	if message.Bus == "" || message.Channel == "" {
		return model.Message{}, model.ValidationError("Messages need a bus and a channel.")
	}
	if message.ID == "" {
		message.ID = model.NewMessageID(messageStore.now())
	}

	row := toMessageRow(message)
	if err := messageStore.repo.Insert(ctx, &row); err != nil {
		return model.Message{}, model.BackingStoreError(fmt.Sprintf("Was not able to store message %s.", message.ID), err)
	}
	messageStore.messageCache.Add(message)
	return message, nil
}

/**
* Single-message retrieval under a token. A message that does not exist and a
* message outside the token's scope produce the identical not-found
* condition, out-of-scope ids must not be enumerable.
 */
func (messageStore *MessageStore) GetByID(ctx context.Context, messageId string, token model.Token) (model.Message, error) {
	tokenScope, err := scope.Parse(token.ScopeString)
	if err != nil {
		return model.Message{}, err
	}

	if messageStore.messageCache.ContainsWindow(messageId) {
		message, ok := messageStore.messageCache.Get(messageId)
		if !ok || !tokenScope.MatchesMessage(message) {
			return model.Message{}, notFoundMessage(messageId)
		}
		return message, nil
	}

	var row dbModel.Message
	err = messageStore.repo.Find(ctx, &row, where.Eq("id", messageId))
	if err != nil {
		if isNotFound(err) {
			return model.Message{}, notFoundMessage(messageId)
		}
		return model.Message{}, model.BackingStoreError(fmt.Sprintf("Was not able to load message %s.", messageId), err)
	}

	message := fromMessageRow(row)
	if !tokenScope.MatchesMessage(message) {
		return model.Message{}, notFoundMessage(messageId)
	}
	return message, nil
}

/**
* Advisory quota check: compares the live per-channel count plus the pending
* publishes against the configured ceiling. Concurrent publishers may race
* past the ceiling by a small margin, the backing store offers no
* compare-and-swap to serialize check-then-insert.
 */
func (messageStore *MessageStore) CanAccept(ctx context.Context, channel string, pendingCount int) (bool, error) {
	count, err := messageStore.channelMessageCount(ctx, channel)
	if err != nil {
		return false, err
	}
	logger.Debugf("Channel '%s' message count: %d, limit: %d.", channel, count, messageStore.channelLimit)
	return count+pendingCount < messageStore.channelLimit, nil
}

func (messageStore *MessageStore) ChannelCapacityRemaining(ctx context.Context, channel string) (int, error) {
	count, err := messageStore.channelMessageCount(ctx, channel)
	if err != nil {
		return 0, err
	}
	remaining := messageStore.channelLimit - count
	if remaining < 0 {
		remaining = 0
	}
	return remaining, nil
}

func (messageStore *MessageStore) CountMessages(ctx context.Context) (int, error) {
	count, err := messageStore.repo.Count(ctx, "messages")
	if err != nil {
		return 0, model.BackingStoreError("Was not able to count the messages.", err)
	}
	return count, nil
}

// LatestMessage returns the newest message in the store, used to seed the
// cache window and by the ops surface.
func (messageStore *MessageStore) LatestMessage(ctx context.Context) (model.Message, bool, error) {
	var rows []dbModel.Message
	err := messageStore.repo.FindAll(ctx, &rows, rel.From("messages").SortDesc("id").Limit(1))
	if err != nil {
		return model.Message{}, false, model.BackingStoreError("Was not able to load the latest message.", err)
	}
	if len(rows) == 0 {
		return model.Message{}, false, nil
	}
	return fromMessageRow(rows[0]), true, nil
}

/**
* Primes the tail cache with the newest stored message, so the window has a
* defined lower bound right after startup instead of only after the first
* publish.
 */
func (messageStore *MessageStore) SeedCache(ctx context.Context) error {
	latest, found, err := messageStore.LatestMessage(ctx)
	if err != nil {
		return err
	}
	if found {
		messageStore.messageCache.Add(latest)
	}
	return nil
}

func (messageStore *MessageStore) channelMessageCount(ctx context.Context, channel string) (int, error) {
	count, err := messageStore.repo.Count(ctx, "messages", rel.Where(where.Eq("channel", channel)))
	if err != nil {
		return 0, model.BackingStoreError(fmt.Sprintf("Was not able to count messages of channel %s.", channel), err)
	}
	return count, nil
}

func notFoundMessage(messageId string) *model.BackplaneError {
	return model.NotFoundError(fmt.Sprintf("Message id '%s' not found.", messageId))
}

func isNotFound(err error) bool {
	_, ok := err.(rel.NotFoundError)
	return ok
}

func toMessageRow(message model.Message) dbModel.Message {
	return dbModel.Message{
		ID:      message.ID,
		Bus:     message.Bus,
		Channel: message.Channel,
		Source:  message.Source,
		Type:    message.Type,
		Sticky:  message.Sticky,
		Payload: string(message.Payload),
	}
}

func fromMessageRow(row dbModel.Message) model.Message {
	return model.Message{
		ID:      row.ID,
		Bus:     row.Bus,
		Channel: row.Channel,
		Source:  row.Source,
		Type:    row.Type,
		Sticky:  row.Sticky,
		Payload: []byte(row.Payload),
	}
}
