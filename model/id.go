package model

import (
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
)

// Message ids start with an ISO8601 UTC millisecond timestamp, so
// lexicographic order is time order and age cutoffs can be expressed as id
// lower bounds.
const idTimeLayout = "2006-01-02T15:04:05.000Z"

var (
	idMutex      sync.Mutex
	lastIssuedID string
)

/**
* Produces the next message id: creation timestamp plus a random suffix.
* Strictly greater than every id issued before it by this process, even when
* the clock does not advance between two calls.
 */
func NewMessageID(now time.Time) string {
	idMutex.Lock()
	defer idMutex.Unlock()

	id := now.UTC().Format(idTimeLayout) + "-" + randomSuffix()
	for id <= lastIssuedID {
		id = lastIssuedID + "0"
	}
	lastIssuedID = id
	return id
}

// IDCutoff encodes "older than the given instant" as an id upper bound: every
// id created before it compares lexicographically smaller.
func IDCutoff(instant time.Time) string {
	return instant.UTC().Format(idTimeLayout)
}

func randomSuffix() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")[:10]
}
