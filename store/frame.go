package store

import (
	"context"
	"strconv"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"

	"github.com/fiware/message-backplane/model"
	"github.com/fiware/message-backplane/scope"
	dbModel "github.com/fiware/message-backplane/sql"
)

// MaxMessagesPerFrame is the hard frame cap, not configurable per request.
const MaxMessagesPerFrame = 25

const (
	storePageLimit = 250
	// Budget for a single retrieval: after this many backing store pages the
	// partial frame is returned with moreMessages set, instead of letting
	// one sparse-scope call scan the store without bound.
	maxStorePages = 40
)

/**
* Serves one ordered frame of scope-matching messages after lastSeenId.
*
* The bounded tail cache is consumed first when the cursor falls inside its
* window, then the backing store is scanned in id-ascending pages starting
* strictly after the last id considered so far. Filtering happens on this
* side of the query, so the store's own pagination cursor is never used, it
* would skip unseen ids. Single-valued scope fields are pushed into the query
* predicate, everything is still re-filtered in memory.
*
* Cursor contract: when the frame cap is reached the returned cursor is the
* id of the last returned message and moreMessages is true; when a store page
* comes back empty the cursor is the last scanned id, so a polling caller
* does not re-scan already rejected rows.
 */
func (messageStore *MessageStore) RetrieveFrame(ctx context.Context, token model.Token, lastSeenId string) (model.Frame, error) {
	tokenScope, err := scope.Parse(token.ScopeString)
	if err != nil {
		return model.Frame{}, err
	}

	frame := model.Frame{Messages: []model.Message{}, LastMessageID: lastSeenId}

	// the cache is only trusted when the cursor lies inside its window
	if first, ok := messageStore.messageCache.First(); ok && lastSeenId >= first.ID {
		filterIntoFrame(messageStore.messageCache.SinceID(lastSeenId), tokenScope, &frame)
		logger.Debugf("Local cache hits for request: %d messages.", len(frame.Messages))
	}

	pages := 0
	for !frame.MoreMessages {
		if pages >= maxStorePages {
			frame.MoreMessages = true
			break
		}

		var rows []dbModel.Message
		err := messageStore.repo.FindAll(ctx, &rows,
			rel.Where(frameScanFilter(tokenScope, frame.LastMessageID)).SortAsc("id").Limit(storePageLimit))
		if err != nil {
			return model.Frame{}, model.BackingStoreError("Was not able to scan the message store.", err)
		}
		if len(rows) == 0 {
			break
		}

		messages := make([]model.Message, 0, len(rows))
		for _, row := range rows {
			messages = append(messages, fromMessageRow(row))
		}
		filterIntoFrame(messages, tokenScope, &frame)
		pages++
	}

	return frame, nil
}

/**
* Administrative variant without a scope filter, used for cross-bus
* inspection. The frame cap still applies.
 */
func (messageStore *MessageStore) RetrieveUnscoped(ctx context.Context, sinceId string, hardCap int) ([]model.Message, error) {
	if hardCap <= 0 || hardCap > MaxMessagesPerFrame {
		hardCap = MaxMessagesPerFrame
	}

	messages := []model.Message{}
	cursor := sinceId
	for len(messages) < hardCap {
		var rows []dbModel.Message
		err := messageStore.repo.FindAll(ctx, &rows,
			rel.Where(where.Gt("id", cursor)).SortAsc("id").Limit(storePageLimit))
		if err != nil {
			return nil, model.BackingStoreError("Was not able to scan the message store.", err)
		}
		if len(rows) == 0 {
			break
		}
		for _, row := range rows {
			if len(messages) >= hardCap {
				break
			}
			messages = append(messages, fromMessageRow(row))
		}
		cursor = rows[len(rows)-1].ID
	}
	return messages, nil
}

/**
* Filters one batch into the frame, advancing the cursor per the contract
* described on RetrieveFrame. Candidates arrive in id order; the cache batch
* and the first store page are stitched at the same id boundary, so the
* combined result stays strictly ascending without gaps.
 */
func filterIntoFrame(unfiltered []model.Message, tokenScope scope.Scope, frame *model.Frame) {
	for _, message := range unfiltered {
		if !tokenScope.MatchesMessage(message) {
			continue
		}
		if len(frame.Messages) >= MaxMessagesPerFrame {
			frame.MoreMessages = true
			frame.LastMessageID = frame.Messages[len(frame.Messages)-1].ID
			break
		}
		frame.Messages = append(frame.Messages, message)
	}

	if len(unfiltered) > 0 && !frame.MoreMessages {
		frame.LastMessageID = unfiltered[len(unfiltered)-1].ID
	}
}

// Scope fields constrained to exactly one value are evaluated by the store,
// multi-valued fields stay in the in-memory filter.
func frameScanFilter(tokenScope scope.Scope, cursor string) rel.FilterQuery {
	filter := where.Gt("id", cursor)
	for field, value := range tokenScope.SingleValueFields() {
		if field == scope.FieldSticky {
			if sticky, err := strconv.ParseBool(value); err == nil {
				filter = filter.AndEq(string(field), sticky)
			}
			continue
		}
		filter = filter.AndEq(string(field), value)
	}
	return filter
}
