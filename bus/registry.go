package bus

import (
	"context"
	"fmt"
	"time"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"
	gocache "github.com/patrickmn/go-cache"

	"github.com/fiware/message-backplane/logging"
	"github.com/fiware/message-backplane/model"
	dbModel "github.com/fiware/message-backplane/sql"
)

var logger = logging.Log()

const busCacheExpiry = time.Hour

/**
* Registry of bus configurations. Single-bus lookups are served through an
* opportunistic TTL object cache, the repository stays authoritative.
 */
type Registry struct {
	repo      rel.Repository
	readCache *gocache.Cache
}

func NewRegistry(repository rel.Repository) *Registry {
	return &Registry{
		repo:      repository,
		readCache: gocache.New(busCacheExpiry, 10*time.Minute),
	}
}

func (registry *Registry) Create(ctx context.Context, busConfig model.BusConfig) error {
	if err := busConfig.Validate(); err != nil {
		return err
	}
	row := toBusRow(busConfig)
	if err := registry.repo.Insert(ctx, &row); err != nil {
		return model.BackingStoreError(fmt.Sprintf("Was not able to store bus %s.", busConfig.BusName), err)
	}
	registry.readCache.Delete(busConfig.BusName)
	return nil
}

func (registry *Registry) Retrieve(ctx context.Context, busName string) (model.BusConfig, error) {
	if cached, ok := registry.readCache.Get(busName); ok {
		return cached.(model.BusConfig), nil
	}

	var row dbModel.BusConfig
	err := registry.repo.Find(ctx, &row, where.Eq("id", busName))
	if err != nil {
		if isNotFound(err) {
			return model.BusConfig{}, model.NotFoundError(fmt.Sprintf("Bus %s not found.", busName))
		}
		return model.BusConfig{}, model.BackingStoreError(fmt.Sprintf("Was not able to load bus %s.", busName), err)
	}

	busConfig := fromBusRow(row)
	registry.readCache.Set(busName, busConfig, gocache.DefaultExpiration)
	return busConfig, nil
}

func (registry *Registry) RetrieveAll(ctx context.Context) ([]model.BusConfig, error) {
	var rows []dbModel.BusConfig
	if err := registry.repo.FindAll(ctx, &rows); err != nil {
		return nil, model.BackingStoreError("Was not able to load the bus configurations.", err)
	}
	busConfigs := make([]model.BusConfig, 0, len(rows))
	for _, row := range rows {
		busConfigs = append(busConfigs, fromBusRow(row))
	}
	return busConfigs, nil
}

func (registry *Registry) RetrieveByOwner(ctx context.Context, owner string) ([]model.BusConfig, error) {
	var rows []dbModel.BusConfig
	if err := registry.repo.FindAll(ctx, &rows, where.Eq("owner", owner)); err != nil {
		return nil, model.BackingStoreError(fmt.Sprintf("Was not able to load buses of owner %s.", owner), err)
	}
	busConfigs := make([]model.BusConfig, 0, len(rows))
	for _, row := range rows {
		busConfigs = append(busConfigs, fromBusRow(row))
	}
	return busConfigs, nil
}

func (registry *Registry) Delete(ctx context.Context, busName string) error {
	row := dbModel.BusConfig{ID: busName}
	if err := registry.repo.Delete(ctx, &row); err != nil {
		return model.BackingStoreError(fmt.Sprintf("Was not able to delete bus %s.", busName), err)
	}
	registry.readCache.Delete(busName)
	return nil
}

/**
* Deletes every bus of the given owner and returns the deleted bus names, so
* the authorization graph can continue the cascade over grants and tokens.
 */
func (registry *Registry) DeleteByOwner(ctx context.Context, owner string) ([]string, error) {
	busConfigs, err := registry.RetrieveByOwner(ctx, owner)
	if err != nil {
		return nil, err
	}
	busNames := make([]string, 0, len(busConfigs))
	for _, busConfig := range busConfigs {
		busNames = append(busNames, busConfig.BusName)
	}

	if _, err := registry.repo.DeleteAny(ctx, rel.From("bus_configs").Where(where.Eq("owner", owner))); err != nil {
		return nil, model.BackingStoreError(fmt.Sprintf("Was not able to delete buses of owner %s.", owner), err)
	}
	for _, busName := range busNames {
		registry.readCache.Delete(busName)
	}
	logger.Infof("Deleted %d buses of owner %s.", len(busNames), owner)
	return busNames, nil
}

func isNotFound(err error) bool {
	_, ok := err.(rel.NotFoundError)
	return ok
}

func toBusRow(busConfig model.BusConfig) dbModel.BusConfig {
	return dbModel.BusConfig{
		ID:                         busConfig.BusName,
		Owner:                      busConfig.Owner,
		RetentionTimeSeconds:       busConfig.RetentionTimeSeconds,
		RetentionStickyTimeSeconds: busConfig.RetentionStickyTimeSeconds,
	}
}

func fromBusRow(row dbModel.BusConfig) model.BusConfig {
	return model.BusConfig{
		BusName:                    row.ID,
		Owner:                      row.Owner,
		RetentionTimeSeconds:       row.RetentionTimeSeconds,
		RetentionStickyTimeSeconds: row.RetentionStickyTimeSeconds,
	}
}
