package migrations

import "github.com/go-rel/rel"

func MigrateCreateAccessTokens(schema *rel.Schema) {
	schema.CreateTable("access_tokens", func(t *rel.Table) {
		t.String("id")
		t.String("kind")
		t.String("client_id")
		t.Text("scope")
		t.String("channel")
		t.DateTime("expires")
		t.PrimaryKey("id")
	})
	schema.CreateIndex("access_tokens", "access_tokens_channel_idx", []string{"channel"})
	schema.CreateIndex("access_tokens", "access_tokens_expires_idx", []string{"expires"})
}

func RollbackCreateAccessTokens(schema *rel.Schema) {
	schema.DropTable("access_tokens")
}
