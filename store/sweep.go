package store

import (
	"context"
	"time"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"

	"github.com/fiware/message-backplane/model"
)

/**
* Deletes expired messages for every known bus: non-sticky messages older
* than the bus's retention window and sticky messages older than the sticky
* window. Ids encode creation time, so the age cutoff is expressed as an id
* lower bound. A failure on one bus is logged and the sweep continues with
* the remaining buses.
 */
func (messageStore *MessageStore) SweepExpired(ctx context.Context) (int, error) {
	logger.Info("Backplane message cleanup task started.")
	defer logger.Info("Backplane message cleanup task finished.")

	busConfigs, err := messageStore.buses.RetrieveAll(ctx)
	if err != nil {
		return 0, err
	}

	now := messageStore.now()
	deleted := 0
	for _, busConfig := range busConfigs {
		count, err := messageStore.sweepBus(ctx, busConfig, now)
		if err != nil {
			logger.Errorf("Error cleaning up expired messages on bus %s: %v.", busConfig.BusName, err)
			continue
		}
		deleted += count
	}
	return deleted, nil
}

func (messageStore *MessageStore) sweepBus(ctx context.Context, busConfig model.BusConfig, now time.Time) (int, error) {
	deleted, err := messageStore.deleteOlderThan(ctx, busConfig.BusName, false,
		now.Add(-time.Duration(busConfig.RetentionTimeSeconds)*time.Second))
	if err != nil {
		return deleted, err
	}

	stickyDeleted, err := messageStore.deleteOlderThan(ctx, busConfig.BusName, true,
		now.Add(-time.Duration(busConfig.RetentionStickyTimeSeconds)*time.Second))
	return deleted + stickyDeleted, err
}

func (messageStore *MessageStore) deleteOlderThan(ctx context.Context, busName string, sticky bool, cutoff time.Time) (int, error) {
	deleted, err := messageStore.repo.DeleteAny(ctx, rel.From("messages").Where(
		where.Eq("bus", busName).
			AndEq("sticky", sticky).
			AndLt("id", model.IDCutoff(cutoff))))
	if err != nil {
		return 0, model.BackingStoreError("Was not able to delete expired messages.", err)
	}
	return deleted, nil
}
