package migrations

import "github.com/go-rel/rel"

func MigrateCreateGrants(schema *rel.Schema) {
	schema.CreateTable("grants", func(t *rel.Table) {
		t.String("id")
		t.String("client_id")
		t.String("buses")
		t.PrimaryKey("id")
	})
	schema.CreateIndex("grants", "grants_client_id_idx", []string{"client_id"})
}

func RollbackCreateGrants(schema *rel.Schema) {
	schema.DropTable("grants")
}
