package authz

import (
	"context"
	"fmt"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"

	"github.com/fiware/message-backplane/model"
	dbModel "github.com/fiware/message-backplane/sql"
)

/**
* Deletes the token and its grant relations. Revoking an already revoked or
* unknown token is a no-op.
 */
func (graph *Graph) RevokeToken(ctx context.Context, tokenId string) error {
	if _, err := graph.repo.DeleteAny(ctx, rel.From("access_tokens").Where(where.Eq("id", tokenId))); err != nil {
		return model.BackingStoreError(fmt.Sprintf("Was not able to revoke token %s.", tokenId), err)
	}
	return graph.deleteRelsByTokenId(ctx, tokenId)
}

/**
* Revokes every token that was issued under the given grant, then the grant
* itself. Tokens are deleted, not rescoped: a token's lifetime is tied to the
* grants that authorized it.
 */
func (graph *Graph) RevokeByGrant(ctx context.Context, grantId string) error {
	var rels []dbModel.GrantTokenRel
	if err := graph.repo.FindAll(ctx, &rels, where.Eq("grant_id", grantId)); err != nil {
		return model.BackingStoreError(fmt.Sprintf("Was not able to load grant relations of grant %s.", grantId), err)
	}
	for _, relRow := range rels {
		if err := graph.RevokeToken(ctx, relRow.TokenID); err != nil {
			return err
		}
		logger.Infof("Revoked token %s.", relRow.TokenID)
	}

	if _, err := graph.repo.DeleteAny(ctx, rel.From("grants").Where(where.Eq("id", grantId))); err != nil {
		return model.BackingStoreError(fmt.Sprintf("Was not able to delete grant %s.", grantId), err)
	}
	logger.Infof("All tokens for grant %s have been revoked.", grantId)
	return nil
}

/**
* Deletes the bus, its grants and every token held under those grants. The
* cascade is eventually consistent with concurrent issuance: a token issued
* mid-cascade is caught by the next run, issuance against the deleted grant
* fails immediately.
 */
func (graph *Graph) RevokeByBus(ctx context.Context, busName string) error {
	if err := graph.buses.Delete(ctx, busName); err != nil {
		return err
	}
	return graph.revokeGrantsForBuses(ctx, []string{busName})
}

/**
* Deletes all buses of the owner and inherits the bus cascade for each.
 */
func (graph *Graph) RevokeByOwner(ctx context.Context, owner string) error {
	busNames, err := graph.buses.DeleteByOwner(ctx, owner)
	if err != nil {
		return err
	}
	return graph.revokeGrantsForBuses(ctx, busNames)
}

/**
* Deletes every token whose expiry lies in the past, with their relation
* rows.
 */
func (graph *Graph) DeleteExpired(ctx context.Context) error {
	now := graph.now()

	var expired []dbModel.AccessToken
	if err := graph.repo.FindAll(ctx, &expired, where.Lt("expires", now)); err != nil {
		return model.BackingStoreError("Was not able to load expired tokens.", err)
	}
	for _, row := range expired {
		if err := graph.RevokeToken(ctx, row.ID); err != nil {
			return err
		}
	}
	if len(expired) > 0 {
		logger.Infof("Deleted %d expired tokens.", len(expired))
	}
	return nil
}

// Bus membership of a grant is encoded in a space separated column, so the
// intersection check happens in memory over the full grant table.
func (graph *Graph) revokeGrantsForBuses(ctx context.Context, busNames []string) error {
	if len(busNames) == 0 {
		return nil
	}
	var rows []dbModel.Grant
	if err := graph.repo.FindAll(ctx, &rows); err != nil {
		return model.BackingStoreError("Was not able to load the grants.", err)
	}
	for _, row := range rows {
		grant := fromGrantRow(row)
		for _, busName := range busNames {
			if grant.AuthorizesBus(busName) {
				if err := graph.RevokeByGrant(ctx, grant.ID); err != nil {
					return err
				}
				break
			}
		}
	}
	return nil
}

func (graph *Graph) deleteRelsByTokenId(ctx context.Context, tokenId string) error {
	if _, err := graph.repo.DeleteAny(ctx, rel.From("grant_token_rels").Where(where.Eq("token_id", tokenId))); err != nil {
		return model.BackingStoreError(fmt.Sprintf("Was not able to delete grant relations of token %s.", tokenId), err)
	}
	return nil
}
