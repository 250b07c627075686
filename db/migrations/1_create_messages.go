package migrations

import "github.com/go-rel/rel"

func MigrateCreateMessages(schema *rel.Schema) {
	schema.CreateTable("messages", func(t *rel.Table) {
		t.String("id")
		t.String("bus")
		t.String("channel")
		t.String("source")
		t.String("type")
		t.Bool("sticky")
		t.Text("payload")
		t.PrimaryKey("id")
	})
	schema.CreateIndex("messages", "messages_bus_sticky_idx", []string{"bus", "sticky", "id"})
	schema.CreateIndex("messages", "messages_channel_idx", []string{"channel"})
}

func RollbackCreateMessages(schema *rel.Schema) {
	schema.DropTable("messages")
}
