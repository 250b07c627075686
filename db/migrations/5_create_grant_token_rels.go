package migrations

import "github.com/go-rel/rel"

func MigrateCreateGrantTokenRels(schema *rel.Schema) {
	schema.CreateTable("grant_token_rels", func(t *rel.Table) {
		t.ID("id")
		t.String("grant_id")
		t.String("token_id")
	})
	schema.CreateIndex("grant_token_rels", "grant_token_rels_grant_id_idx", []string{"grant_id"})
	schema.CreateIndex("grant_token_rels", "grant_token_rels_token_id_idx", []string{"token_id"})
}

func RollbackCreateGrantTokenRels(schema *rel.Schema) {
	schema.DropTable("grant_token_rels")
}
