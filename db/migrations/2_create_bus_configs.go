package migrations

import "github.com/go-rel/rel"

func MigrateCreateBusConfigs(schema *rel.Schema) {
	schema.CreateTable("bus_configs", func(t *rel.Table) {
		t.String("id")
		t.String("owner")
		t.Int("retention_time_seconds")
		t.Int("retention_sticky_time_seconds")
		t.PrimaryKey("id")
	})
	schema.CreateIndex("bus_configs", "bus_configs_owner_idx", []string{"owner"})
}

func RollbackCreateBusConfigs(schema *rel.Schema) {
	schema.DropTable("bus_configs")
}
