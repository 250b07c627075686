package scope

import (
	"fmt"
	"sort"
	"strings"

	"github.com/fiware/message-backplane/model"
)

// Field is one of the searchable message attributes a scope may constrain.
type Field string

const (
	FieldBus     Field = "bus"
	FieldChannel Field = "channel"
	FieldSource  Field = "source"
	FieldType    Field = "type"
	FieldSticky  Field = "sticky"
)

var knownFields = map[Field]struct{}{
	FieldBus:     {},
	FieldChannel: {},
	FieldSource:  {},
	FieldType:    {},
	FieldSticky:  {},
}

// Attributes carries the searchable field values of a message, independent of
// where the message came from. Cache hits and store hits are rendered to the
// same attribute map, so both are filtered identically.
type Attributes map[Field]string

/**
* Scope restricts which messages a token may see. Fields are conjunctive,
* values within one field are disjunctive. An empty scope matches everything.
* Immutable once parsed.
 */
type Scope struct {
	values map[Field]map[string]struct{}
}

/**
* Parses the space-separated field:value wire format, e.g.
* "bus:customer1 channel:chan42". Repeated pairs collapse to set semantics.
 */
func Parse(scopeString string) (Scope, error) {
	scope := Scope{values: map[Field]map[string]struct{}{}}
	for _, token := range strings.Fields(scopeString) {
		field, value, found := strings.Cut(token, ":")
		if !found || field == "" || value == "" {
			return Scope{}, model.InvalidScopeError(fmt.Sprintf("Invalid scope token '%s', expected field:value.", token))
		}
		if _, known := knownFields[Field(field)]; !known {
			return Scope{}, model.InvalidScopeError(fmt.Sprintf("Unknown scope field '%s'.", field))
		}
		if scope.values[Field(field)] == nil {
			scope.values[Field(field)] = map[string]struct{}{}
		}
		scope.values[Field(field)][value] = struct{}{}
	}
	return scope, nil
}

func (scope Scope) IsEmpty() bool {
	return len(scope.values) == 0
}

/**
* A message matches when, for every field the scope constrains, the message
* value belongs to the allowed set. Unconstrained fields impose nothing.
 */
func (scope Scope) Matches(attributes Attributes) bool {
	for field, allowed := range scope.values {
		if _, ok := allowed[attributes[field]]; !ok {
			return false
		}
	}
	return true
}

// BusesInScope projects the bus field, used to validate privileged token
// requests against a client's authorized buses.
func (scope Scope) BusesInScope() []string {
	return scope.fieldValues(FieldBus)
}

// SingleValueFields returns the fields constrained to exactly one value.
// Those are pushed down into the backing store query; multi-value fields are
// re-filtered in memory.
func (scope Scope) SingleValueFields() map[Field]string {
	single := map[Field]string{}
	for field, allowed := range scope.values {
		if len(allowed) == 1 {
			for value := range allowed {
				single[field] = value
			}
		}
	}
	return single
}

// String renders the canonical wire form, fields and values sorted.
func (scope Scope) String() string {
	fields := make([]string, 0, len(scope.values))
	for field := range scope.values {
		fields = append(fields, string(field))
	}
	sort.Strings(fields)

	tokens := []string{}
	for _, field := range fields {
		for _, value := range scope.fieldValues(Field(field)) {
			tokens = append(tokens, field+":"+value)
		}
	}
	return strings.Join(tokens, " ")
}

func (scope Scope) fieldValues(field Field) []string {
	values := make([]string, 0, len(scope.values[field]))
	for value := range scope.values[field] {
		values = append(values, value)
	}
	sort.Strings(values)
	return values
}
