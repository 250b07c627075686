package store

import (
	"context"
	"strings"
	"testing"
	"time"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"
	"github.com/go-rel/reltest"
	"github.com/stretchr/testify/assert"

	"github.com/fiware/message-backplane/bus"
	"github.com/fiware/message-backplane/cache"
	"github.com/fiware/message-backplane/model"
	dbModel "github.com/fiware/message-backplane/sql"
)

var fixedNow = time.Date(2024, 5, 1, 10, 0, 0, 0, time.UTC)

func getStoreMock(channelLimit int) (*reltest.Repository, *cache.MessageCache, *MessageStore) {
	dbMock := reltest.New()
	messageCache := cache.NewMessageCache(10)
	messageStore := NewMessageStore(dbMock, messageCache, bus.NewRegistry(dbMock), channelLimit)
	messageStore.now = func() time.Time { return fixedNow }
	return dbMock, messageCache, messageStore
}

func getMessage(id string, busName string, channel string) model.Message {
	return model.Message{ID: id, Bus: busName, Channel: channel, Source: "http://source.org", Type: "test-type", Payload: []byte(`{"v":1}`)}
}

func TestPersistAssignsId(t *testing.T) {
	dbMock, messageCache, messageStore := getStoreMock(50)
	dbMock.ExpectInsert().ForType("*sql.Message")

	message, err := messageStore.Persist(context.Background(), getMessage("", "busA", "chan1"))

	assert.NoError(t, err)
	assert.True(t, strings.HasPrefix(message.ID, "2024-05-01T10:00:00.000Z-"), "id should encode the creation instant, got %s", message.ID)
	assert.Equal(t, 1, messageCache.Len())
	dbMock.AssertExpectations(t)
}

func TestPersistRequiresBusAndChannel(t *testing.T) {
	_, _, messageStore := getStoreMock(50)

	_, err := messageStore.Persist(context.Background(), getMessage("", "", "chan1"))
	assert.Equal(t, model.KindValidation, model.KindOf(err))

	_, err = messageStore.Persist(context.Background(), getMessage("", "busA", ""))
	assert.Equal(t, model.KindValidation, model.KindOf(err))
}

func TestGetByIdFromCache(t *testing.T) {
	_, messageCache, messageStore := getStoreMock(50)
	messageCache.Add(getMessage("id-1", "busA", "chan1"))
	messageCache.Add(getMessage("id-2", "busB", "chan2"))
	token := model.Token{ScopeString: "bus:busA"}

	message, err := messageStore.GetByID(context.Background(), "id-1", token)

	assert.NoError(t, err)
	assert.Equal(t, "id-1", message.ID)
}

func TestGetByIdOutOfScopeIsNotFound(t *testing.T) {
	_, messageCache, messageStore := getStoreMock(50)
	messageCache.Add(getMessage("id-1", "busA", "chan1"))
	messageCache.Add(getMessage("id-2", "busB", "chan2"))
	token := model.Token{ScopeString: "bus:busA"}

	// inside the cache window but outside the token's scope, must be
	// indistinguishable from a missing id
	_, err := messageStore.GetByID(context.Background(), "id-2", token)

	assert.Equal(t, model.KindNotFound, model.KindOf(err))
}

func TestGetByIdFromStore(t *testing.T) {
	dbMock, _, messageStore := getStoreMock(50)
	dbMock.ExpectFind(where.Eq("id", "id-1")).Result(dbModel.Message{ID: "id-1", Bus: "busA", Channel: "chan1", Payload: "{}"})
	token := model.Token{ScopeString: "bus:busA"}

	message, err := messageStore.GetByID(context.Background(), "id-1", token)

	assert.NoError(t, err)
	assert.Equal(t, "busA", message.Bus)
	dbMock.AssertExpectations(t)
}

func TestGetByIdStoreHitOutOfScope(t *testing.T) {
	dbMock, _, messageStore := getStoreMock(50)
	dbMock.ExpectFind(where.Eq("id", "id-1")).Result(dbModel.Message{ID: "id-1", Bus: "busB", Channel: "chan1", Payload: "{}"})
	token := model.Token{ScopeString: "bus:busA"}

	_, err := messageStore.GetByID(context.Background(), "id-1", token)

	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	dbMock.AssertExpectations(t)
}

func TestGetByIdUnknownId(t *testing.T) {
	dbMock, _, messageStore := getStoreMock(50)
	dbMock.ExpectFind(where.Eq("id", "nope")).NotFound()
	token := model.Token{ScopeString: "bus:busA"}

	_, err := messageStore.GetByID(context.Background(), "nope", token)

	assert.Equal(t, model.KindNotFound, model.KindOf(err))
	dbMock.AssertExpectations(t)
}

func TestCanAccept(t *testing.T) {
	type quotaTest struct {
		testName       string
		storedCount    int
		pendingCount   int
		expectedAnswer bool
	}

	tests := []quotaTest{
		{"An empty channel accepts.", 0, 0, true},
		{"One below the ceiling accepts.", 49, 0, true},
		{"The ceiling refuses.", 50, 0, false},
		{"Pending publishes count against the ceiling.", 48, 2, false},
	}

	for _, tc := range tests {
		t.Run(tc.testName, func(t *testing.T) {
			dbMock, _, messageStore := getStoreMock(50)
			dbMock.ExpectCount("messages", rel.Where(where.Eq("channel", "chan1"))).Result(tc.storedCount)

			accepted, err := messageStore.CanAccept(context.Background(), "chan1", tc.pendingCount)

			assert.NoError(t, err)
			assert.Equal(t, tc.expectedAnswer, accepted)
			dbMock.AssertExpectations(t)
		})
	}
}

func TestChannelCapacityRemaining(t *testing.T) {
	dbMock, _, messageStore := getStoreMock(50)
	dbMock.ExpectCount("messages", rel.Where(where.Eq("channel", "chan1"))).Result(53)

	remaining, err := messageStore.ChannelCapacityRemaining(context.Background(), "chan1")

	assert.NoError(t, err)
	assert.Equal(t, 0, remaining)
	dbMock.AssertExpectations(t)
}

func TestLatestMessage(t *testing.T) {
	dbMock, _, messageStore := getStoreMock(50)
	dbMock.ExpectFindAll(rel.From("messages").SortDesc("id").Limit(1)).Result([]dbModel.Message{{ID: "id-9", Bus: "busA", Channel: "chan1", Payload: "{}"}})

	message, found, err := messageStore.LatestMessage(context.Background())

	assert.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, "id-9", message.ID)
	dbMock.AssertExpectations(t)
}

func TestSeedCache(t *testing.T) {
	dbMock, messageCache, messageStore := getStoreMock(50)
	dbMock.ExpectFindAll(rel.From("messages").SortDesc("id").Limit(1)).Result([]dbModel.Message{{ID: "id-9", Bus: "busA", Channel: "chan1", Payload: "{}"}})

	assert.NoError(t, messageStore.SeedCache(context.Background()))

	assert.Equal(t, 1, messageCache.Len())
	assert.True(t, messageCache.ContainsWindow("id-9"))
	dbMock.AssertExpectations(t)
}

func TestLatestMessageOnEmptyStore(t *testing.T) {
	dbMock, _, messageStore := getStoreMock(50)
	dbMock.ExpectFindAll(rel.From("messages").SortDesc("id").Limit(1)).Result([]dbModel.Message{})

	_, found, err := messageStore.LatestMessage(context.Background())

	assert.NoError(t, err)
	assert.False(t, found)
	dbMock.AssertExpectations(t)
}

func expectBusSweep(dbMock *reltest.Repository, busName string, retention time.Duration, stickyRetention time.Duration, deleted int, stickyDeleted int) {
	dbMock.ExpectDeleteAny(rel.From("messages").Where(
		where.Eq("bus", busName).AndEq("sticky", false).AndLt("id", model.IDCutoff(fixedNow.Add(-retention))))).DeletedCount(deleted)
	dbMock.ExpectDeleteAny(rel.From("messages").Where(
		where.Eq("bus", busName).AndEq("sticky", true).AndLt("id", model.IDCutoff(fixedNow.Add(-stickyRetention))))).DeletedCount(stickyDeleted)
}

func TestSweepExpired(t *testing.T) {
	dbMock, _, messageStore := getStoreMock(50)
	dbMock.ExpectFindAll().Result([]dbModel.BusConfig{
		{ID: "busA", Owner: "o1", RetentionTimeSeconds: 60, RetentionStickyTimeSeconds: 3600},
		{ID: "busB", Owner: "o2", RetentionTimeSeconds: 120, RetentionStickyTimeSeconds: 7200},
	})
	expectBusSweep(dbMock, "busA", time.Minute, time.Hour, 3, 1)
	expectBusSweep(dbMock, "busB", 2*time.Minute, 2*time.Hour, 2, 0)

	deleted, err := messageStore.SweepExpired(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 6, deleted)
	dbMock.AssertExpectations(t)
}

func TestSweepContinuesAfterBusFailure(t *testing.T) {
	dbMock, _, messageStore := getStoreMock(50)
	dbMock.ExpectFindAll().Result([]dbModel.BusConfig{
		{ID: "busA", Owner: "o1", RetentionTimeSeconds: 60, RetentionStickyTimeSeconds: 3600},
		{ID: "busB", Owner: "o2", RetentionTimeSeconds: 60, RetentionStickyTimeSeconds: 3600},
	})
	dbMock.ExpectDeleteAny(rel.From("messages").Where(
		where.Eq("bus", "busA").AndEq("sticky", false).AndLt("id", model.IDCutoff(fixedNow.Add(-time.Minute))))).ConnectionClosed()
	expectBusSweep(dbMock, "busB", time.Minute, time.Hour, 4, 0)

	deleted, err := messageStore.SweepExpired(context.Background())

	assert.NoError(t, err)
	assert.Equal(t, 4, deleted)
	dbMock.AssertExpectations(t)
}
