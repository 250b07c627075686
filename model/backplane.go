package model

import (
	"encoding/json"
	"fmt"
	"time"
)

// TokenKind discriminates the single token shape instead of a subtype
// hierarchy, so storage and serialization handle one struct.
type TokenKind string

const (
	// Anonymous tokens are bound to exactly one channel.
	TokenKindAnonymous TokenKind = "anonymous"
	TokenKindRegular   TokenKind = "regular"
	// Privileged tokens are grant-backed and may request bus-wide scope.
	TokenKindPrivileged TokenKind = "privileged"
)

/**
* A single backplane message. Immutable once persisted; ids are
* lexicographically sortable and strictly increasing across the store.
 */
type Message struct {
	ID      string          `json:"messageURL,omitempty"`
	Bus     string          `json:"bus"`
	Channel string          `json:"channel"`
	Source  string          `json:"source"`
	Type    string          `json:"type"`
	Sticky  bool            `json:"sticky"`
	Payload json.RawMessage `json:"payload"`
}

/**
* Configuration of a single bus. Retention values are seconds and have to be
* positive.
 */
type BusConfig struct {
	BusName                    string `json:"busName"`
	Owner                      string `json:"owner"`
	RetentionTimeSeconds       int    `json:"retentionTimeSeconds"`
	RetentionStickyTimeSeconds int    `json:"retentionStickyTimeSeconds"`
}

func (busConfig BusConfig) Validate() error {
	if busConfig.BusName == "" {
		return ValidationError("Bus configurations need a BUS_NAME.")
	}
	if busConfig.Owner == "" {
		return ValidationError("Bus configurations need an OWNER.")
	}
	if busConfig.RetentionTimeSeconds <= 0 {
		return ValidationError(fmt.Sprintf("RETENTION_TIME_SECONDS has to be a positive integer, got %d.", busConfig.RetentionTimeSeconds))
	}
	if busConfig.RetentionStickyTimeSeconds <= 0 {
		return ValidationError(fmt.Sprintf("RETENTION_STICKY_TIME_SECONDS has to be a positive integer, got %d.", busConfig.RetentionStickyTimeSeconds))
	}
	return nil
}

/**
* A grant authorizes a client to request scope over a set of buses.
 */
type Grant struct {
	ID       string   `json:"id"`
	ClientID string   `json:"clientId"`
	Buses    []string `json:"buses"`
}

func (grant Grant) AuthorizesBus(bus string) bool {
	for _, authorized := range grant.Buses {
		if authorized == bus {
			return true
		}
	}
	return false
}

/**
* Bearer credential carrying a scope and an expiry. Kind-specific fields:
* channel for anonymous tokens, source grants for privileged ones.
 */
type Token struct {
	ID          string    `json:"token"`
	Kind        TokenKind `json:"kind"`
	ClientID    string    `json:"clientId,omitempty"`
	ScopeString string    `json:"scope"`
	Expires     time.Time `json:"expires"`
	Channel     string    `json:"channel,omitempty"`
	Grants      []Grant   `json:"-"`
	// Set when an empty-bus scope request was expanded to the grants' buses,
	// the expanded scope is then echoed back to the caller.
	MustReturnScope bool `json:"-"`
}

// ChannelName returns the bound channel for anonymous tokens and false for
// every other kind.
func (token Token) ChannelName() (string, bool) {
	if token.Kind == TokenKindAnonymous {
		return token.Channel, true
	}
	return "", false
}

func (token Token) Expired(now time.Time) bool {
	return !token.Expires.IsZero() && token.Expires.Before(now)
}

/**
* One bounded, ordered page of messages handed to a fetch request.
 */
type Frame struct {
	Messages      []Message `json:"messages"`
	LastMessageID string    `json:"lastMessageId"`
	MoreMessages  bool      `json:"moreMessages"`
}

type ProblemDetails struct {
	Type   string `json:"type"`
	Status int    `json:"status"`
	Title  string `json:"title"`
	Detail string `json:"detail"`
}
