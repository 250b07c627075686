package authz

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/go-rel/rel"
	"github.com/go-rel/rel/where"
	"github.com/google/uuid"

	"github.com/fiware/message-backplane/bus"
	"github.com/fiware/message-backplane/logging"
	"github.com/fiware/message-backplane/model"
	"github.com/fiware/message-backplane/scope"
	dbModel "github.com/fiware/message-backplane/sql"
)

var logger = logging.Log()

/**
* The authorization graph owns grants, tokens and the grant-token relation
* rows, and cascades revocation through them: bus owner -> bus -> grant ->
* token.
 */
type Graph struct {
	repo     rel.Repository
	buses    *bus.Registry
	tokenTTL time.Duration
	now      func() time.Time
	random   func() string
}

func NewGraph(repository rel.Repository, busRegistry *bus.Registry, tokenTTL time.Duration) *Graph {
	return &Graph{repo: repository, buses: busRegistry, tokenTTL: tokenTTL, now: time.Now, random: randomTokenString}
}

func (graph *Graph) CreateGrant(ctx context.Context, grant model.Grant) error {
	if grant.ID == "" || grant.ClientID == "" || len(grant.Buses) == 0 {
		return model.ValidationError("Grants need an id, a client id and at least one bus.")
	}
	row := toGrantRow(grant)
	if err := graph.repo.Insert(ctx, &row); err != nil {
		return model.BackingStoreError(fmt.Sprintf("Was not able to store grant %s.", grant.ID), err)
	}
	return nil
}

func (graph *Graph) RetrieveGrant(ctx context.Context, grantId string) (model.Grant, error) {
	var row dbModel.Grant
	err := graph.repo.Find(ctx, &row, where.Eq("id", grantId))
	if err != nil {
		if isNotFound(err) {
			return model.Grant{}, model.NotFoundError(fmt.Sprintf("Grant %s not found.", grantId))
		}
		return model.Grant{}, model.BackingStoreError(fmt.Sprintf("Was not able to load grant %s.", grantId), err)
	}
	return fromGrantRow(row), nil
}

func (graph *Graph) RetrieveGrantsByClient(ctx context.Context, clientId string) ([]model.Grant, error) {
	var rows []dbModel.Grant
	if err := graph.repo.FindAll(ctx, &rows, where.Eq("client_id", clientId)); err != nil {
		return nil, model.BackingStoreError(fmt.Sprintf("Was not able to load grants of client %s.", clientId), err)
	}
	grants := make([]model.Grant, 0, len(rows))
	for _, row := range rows {
		grants = append(grants, fromGrantRow(row))
	}
	return grants, nil
}

/**
* Issues a token bound to exactly one channel. Its scope is restricted to
* that channel and nothing else.
 */
func (graph *Graph) IssueAnonymousToken(ctx context.Context, channel string) (model.Token, error) {
	if channel == "" {
		return model.Token{}, model.ValidationError("Anonymous tokens need a channel.")
	}
	token := model.Token{
		ID:          "an" + graph.random(),
		Kind:        model.TokenKindAnonymous,
		ScopeString: string(scope.FieldChannel) + ":" + channel,
		Channel:     channel,
		Expires:     graph.now().Add(graph.tokenTTL),
	}
	if err := graph.persistToken(ctx, token); err != nil {
		return model.Token{}, err
	}
	return token, nil
}

/**
* Issues a token for the requested scope after checking that the client holds
* a grant for every bus the scope names.
 */
func (graph *Graph) IssueRegularToken(ctx context.Context, clientId string, scopeString string) (model.Token, error) {
	requested, err := scope.Parse(scopeString)
	if err != nil {
		return model.Token{}, err
	}
	if requested.IsEmpty() {
		// an empty scope would match every message on every bus
		return model.Token{}, model.InvalidScopeError("Regular tokens need a non-empty scope.")
	}

	grants, err := graph.RetrieveGrantsByClient(ctx, clientId)
	if err != nil {
		return model.Token{}, err
	}
	for _, requestedBus := range requested.BusesInScope() {
		if !anyGrantAuthorizes(grants, requestedBus) {
			return model.Token{}, model.AuthorizationError(fmt.Sprintf("Client %s holds no grant for bus %s.", clientId, requestedBus))
		}
	}

	token := model.Token{
		ID:          "re" + graph.random(),
		Kind:        model.TokenKindRegular,
		ClientID:    clientId,
		ScopeString: requested.String(),
		Expires:     graph.now().Add(graph.tokenTTL),
	}
	if err := graph.persistToken(ctx, token); err != nil {
		return model.Token{}, err
	}
	return token, nil
}

/**
* Issues a grant-backed token. A request that names no bus is expanded to the
* union of all buses the supplied grants cover, and the expanded scope is
* flagged to be echoed back to the caller. A request naming buses outside the
* grants is refused.
 */
func (graph *Graph) IssuePrivilegedToken(ctx context.Context, clientId string, grants []model.Grant, scopeString string) (model.Token, error) {
	if len(grants) == 0 {
		return model.Token{}, model.AuthorizationError(fmt.Sprintf("Client %s holds no grant to issue a privileged token from.", clientId))
	}
	requested, err := scope.Parse(scopeString)
	if err != nil {
		return model.Token{}, err
	}

	authorizedBuses := map[string]struct{}{}
	for _, grant := range grants {
		if grant.ClientID != clientId {
			return model.Token{}, model.AuthorizationError(fmt.Sprintf("Grant %s was not issued to client %s.", grant.ID, clientId))
		}
		for _, authorizedBus := range grant.Buses {
			authorizedBuses[authorizedBus] = struct{}{}
		}
	}

	effectiveScopeString := scopeString
	mustReturnScope := false
	if len(requested.BusesInScope()) == 0 {
		// no bus requested: expand to all buses the grants authorize, keep
		// any non-bus scope terms from the request
		effectiveScopeString = strings.TrimSpace(encodeBusTerms(authorizedBuses) + " " + scopeString)
		mustReturnScope = true
	}

	effective, err := scope.Parse(effectiveScopeString)
	if err != nil {
		return model.Token{}, err
	}
	for _, requestedBus := range effective.BusesInScope() {
		if _, authorized := authorizedBuses[requestedBus]; !authorized {
			return model.Token{}, model.AuthorizationError("Scope request not allowed.")
		}
	}

	logger.Infof("Privileged token allowed scope: '%s'.", effective.String())

	token := model.Token{
		ID:              "pr" + graph.random(),
		Kind:            model.TokenKindPrivileged,
		ClientID:        clientId,
		ScopeString:     effective.String(),
		Expires:         graph.now().Add(graph.tokenTTL),
		Grants:          grants,
		MustReturnScope: mustReturnScope,
	}
	if err := graph.persistToken(ctx, token); err != nil {
		return model.Token{}, err
	}
	return token, nil
}

func (graph *Graph) RetrieveToken(ctx context.Context, tokenId string) (model.Token, error) {
	var row dbModel.AccessToken
	err := graph.repo.Find(ctx, &row, where.Eq("id", tokenId))
	if err != nil {
		if isNotFound(err) {
			return model.Token{}, model.NotFoundError(fmt.Sprintf("Token %s not found.", tokenId))
		}
		return model.Token{}, model.BackingStoreError(fmt.Sprintf("Was not able to load token %s.", tokenId), err)
	}

	token := fromTokenRow(row)
	if token.Kind == model.TokenKindPrivileged {
		grants, err := graph.retrieveGrantsByToken(ctx, tokenId)
		if err != nil {
			return model.Token{}, err
		}
		token.Grants = grants
	}
	return token, nil
}

// RetrieveTokenByChannel resolves the anonymous token a channel is bound to.
func (graph *Graph) RetrieveTokenByChannel(ctx context.Context, channel string) (model.Token, error) {
	var rows []dbModel.AccessToken
	if err := graph.repo.FindAll(ctx, &rows, where.Eq("channel", channel)); err != nil {
		return model.Token{}, model.BackingStoreError(fmt.Sprintf("Was not able to load tokens of channel %s.", channel), err)
	}
	if len(rows) == 0 {
		return model.Token{}, model.NotFoundError(fmt.Sprintf("No token bound to channel %s.", channel))
	}
	return fromTokenRow(rows[0]), nil
}

/**
* Stores a token. Prior relation rows are deleted first and re-derived from
* the token's current grant list, keeping the join table consistent without
* diff logic.
 */
func (graph *Graph) persistToken(ctx context.Context, token model.Token) error {
	if err := graph.deleteRelsByTokenId(ctx, token.ID); err != nil {
		return err
	}
	row := toTokenRow(token)
	if err := graph.repo.Insert(ctx, &row); err != nil {
		return model.BackingStoreError(fmt.Sprintf("Was not able to store token %s.", token.ID), err)
	}
	for _, grant := range token.Grants {
		relRow := dbModel.GrantTokenRel{GrantID: grant.ID, TokenID: token.ID}
		if err := graph.repo.Insert(ctx, &relRow); err != nil {
			return model.BackingStoreError(fmt.Sprintf("Was not able to store grant relation for token %s.", token.ID), err)
		}
	}
	return nil
}

func (graph *Graph) retrieveGrantsByToken(ctx context.Context, tokenId string) ([]model.Grant, error) {
	var rels []dbModel.GrantTokenRel
	if err := graph.repo.FindAll(ctx, &rels, where.Eq("token_id", tokenId)); err != nil {
		return nil, model.BackingStoreError(fmt.Sprintf("Was not able to load grant relations of token %s.", tokenId), err)
	}
	grants := []model.Grant{}
	for _, relRow := range rels {
		grant, err := graph.RetrieveGrant(ctx, relRow.GrantID)
		if err != nil {
			if model.IsKind(err, model.KindNotFound) {
				// grant already gone, the cascade will catch the token
				continue
			}
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, nil
}

func anyGrantAuthorizes(grants []model.Grant, busName string) bool {
	for _, grant := range grants {
		if grant.AuthorizesBus(busName) {
			return true
		}
	}
	return false
}

func encodeBusTerms(buses map[string]struct{}) string {
	busNames := make([]string, 0, len(buses))
	for busName := range buses {
		busNames = append(busNames, busName)
	}
	sort.Strings(busNames)
	terms := make([]string, 0, len(busNames))
	for _, busName := range busNames {
		terms = append(terms, string(scope.FieldBus)+":"+busName)
	}
	return strings.Join(terms, " ")
}

func randomTokenString() string {
	return strings.ReplaceAll(uuid.NewString()+uuid.NewString(), "-", "")
}

func isNotFound(err error) bool {
	_, ok := err.(rel.NotFoundError)
	return ok
}

func toGrantRow(grant model.Grant) dbModel.Grant {
	return dbModel.Grant{ID: grant.ID, ClientID: grant.ClientID, Buses: strings.Join(grant.Buses, " ")}
}

func fromGrantRow(row dbModel.Grant) model.Grant {
	return model.Grant{ID: row.ID, ClientID: row.ClientID, Buses: strings.Fields(row.Buses)}
}

func toTokenRow(token model.Token) dbModel.AccessToken {
	return dbModel.AccessToken{
		ID:       token.ID,
		Kind:     string(token.Kind),
		ClientID: token.ClientID,
		Scope:    token.ScopeString,
		Channel:  token.Channel,
		Expires:  token.Expires,
	}
}

func fromTokenRow(row dbModel.AccessToken) model.Token {
	return model.Token{
		ID:          row.ID,
		Kind:        model.TokenKind(row.Kind),
		ClientID:    row.ClientID,
		ScopeString: row.Scope,
		Channel:     row.Channel,
		Expires:     row.Expires,
	}
}
