package sql

import "time"

// Row types for the rel repository. Table names are derived from the struct
// names (messages, bus_configs, grants, access_tokens, grant_token_rels).

type Message struct {
	ID      string
	Bus     string
	Channel string
	Source  string
	Type    string
	Sticky  bool
	Payload string
}

type BusConfig struct {
	ID                         string
	Owner                      string
	RetentionTimeSeconds       int
	RetentionStickyTimeSeconds int
}

type Grant struct {
	ID       string
	ClientID string
	// space separated bus names, same encoding as the scope wire format
	Buses string
}

type AccessToken struct {
	ID       string
	Kind     string
	ClientID string
	Scope    string
	Channel  string
	Expires  time.Time
}

type GrantTokenRel struct {
	ID      int
	GrantID string
	TokenID string
}
