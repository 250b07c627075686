package scope

import (
	"strconv"

	"github.com/fiware/message-backplane/model"
)

// AttributesOf renders a message to its searchable attribute map. Every
// message, no matter if it was served from the cache or from the backing
// store, is evaluated through this single projection.
func AttributesOf(message model.Message) Attributes {
	return Attributes{
		FieldBus:     message.Bus,
		FieldChannel: message.Channel,
		FieldSource:  message.Source,
		FieldType:    message.Type,
		FieldSticky:  strconv.FormatBool(message.Sticky),
	}
}

// MatchesMessage is the message-level convenience over Matches.
func (scope Scope) MatchesMessage(message model.Message) bool {
	return scope.Matches(AttributesOf(message))
}
