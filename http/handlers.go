package http

import (
	"encoding/json"
	"io/ioutil"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"

	"github.com/fiware/message-backplane/authz"
	"github.com/fiware/message-backplane/bus"
	"github.com/fiware/message-backplane/logging"
	"github.com/fiware/message-backplane/model"
	"github.com/fiware/message-backplane/store"
)

var logger = logging.Log()

type BackplaneHandler struct {
	messageStore *store.MessageStore
	graph        *authz.Graph
	buses        *bus.Registry
}

func NewBackplaneHandler(messageStore *store.MessageStore, graph *authz.Graph, busRegistry *bus.Registry) *BackplaneHandler {
	return &BackplaneHandler{messageStore: messageStore, graph: graph, buses: busRegistry}
}

type publishRequest struct {
	Source  string          `json:"source"`
	Type    string          `json:"type"`
	Sticky  bool            `json:"sticky"`
	Payload json.RawMessage `json:"payload"`
}

type tokenRequest struct {
	Kind     string   `json:"kind"`
	ClientID string   `json:"clientId"`
	Scope    string   `json:"scope"`
	Channel  string   `json:"channel"`
	GrantIDs []string `json:"grants"`
}

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
	Scope       string `json:"scope,omitempty"`
}

func (handler *BackplaneHandler) PostMessage(c *gin.Context) {
	busName := c.Param("bus")
	channel := c.Param("channel")

	bodyData, err := ioutil.ReadAll(c.Request.Body)
	if err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "invalid_request", Status: http.StatusBadRequest, Title: "Unable to read body.", Detail: err.Error()})
		return
	}
	var request publishRequest
	if err := json.Unmarshal(bodyData, &request); err != nil {
		logger.Debugf("Was not able to unmarshal request body: %s.", string(bodyData))
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "invalid_request", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}

	// a channel only exists through the anonymous token it was bound to
	if _, err := handler.graph.RetrieveTokenByChannel(c.Request.Context(), channel); err != nil {
		abortWithBackplaneError(c, err)
		return
	}

	canAccept, err := handler.messageStore.CanAccept(c.Request.Context(), channel, 1)
	if err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	if !canAccept {
		abortWithBackplaneError(c, model.QuotaExceededError("Message limit exceeded for this channel."))
		return
	}

	message, err := handler.messageStore.Persist(c.Request.Context(), model.Message{
		Bus:     busName,
		Channel: channel,
		Source:  request.Source,
		Type:    request.Type,
		Sticky:  request.Sticky,
		Payload: request.Payload,
	})
	if err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	c.JSON(http.StatusCreated, message)
}

func (handler *BackplaneHandler) GetMessages(c *gin.Context) {
	token, ok := handler.resolveToken(c)
	if !ok {
		return
	}

	frame, err := handler.messageStore.RetrieveFrame(c.Request.Context(), token, c.Query("since"))
	if err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	c.JSON(http.StatusOK, frame)
}

func (handler *BackplaneHandler) GetMessageById(c *gin.Context) {
	token, ok := handler.resolveToken(c)
	if !ok {
		return
	}

	message, err := handler.messageStore.GetByID(c.Request.Context(), c.Param("id"), token)
	if err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	c.JSON(http.StatusOK, message)
}

func (handler *BackplaneHandler) CreateBus(c *gin.Context) {
	var busConfig model.BusConfig
	if err := c.ShouldBindJSON(&busConfig); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "invalid_request", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}
	if err := handler.buses.Create(c.Request.Context(), busConfig); err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	c.JSON(http.StatusCreated, busConfig)
}

// DeleteBus removes the bus and cascades over its grants and tokens.
func (handler *BackplaneHandler) DeleteBus(c *gin.Context) {
	if err := handler.graph.RevokeByBus(c.Request.Context(), c.Param("id")); err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	c.AbortWithStatus(http.StatusNoContent)
}

// DeleteOwner removes all buses of the owner, inheriting the bus cascade.
func (handler *BackplaneHandler) DeleteOwner(c *gin.Context) {
	if err := handler.graph.RevokeByOwner(c.Request.Context(), c.Param("id")); err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func (handler *BackplaneHandler) CreateGrant(c *gin.Context) {
	var grant model.Grant
	if err := c.ShouldBindJSON(&grant); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "invalid_request", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}
	if err := handler.graph.CreateGrant(c.Request.Context(), grant); err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	c.JSON(http.StatusCreated, grant)
}

// DeleteGrant revokes every token issued under the grant, then the grant.
func (handler *BackplaneHandler) DeleteGrant(c *gin.Context) {
	if err := handler.graph.RevokeByGrant(c.Request.Context(), c.Param("id")); err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	c.AbortWithStatus(http.StatusNoContent)
}

func (handler *BackplaneHandler) IssueToken(c *gin.Context) {
	var request tokenRequest
	if err := c.ShouldBindJSON(&request); err != nil {
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "invalid_request", Status: http.StatusBadRequest, Title: "Unable to unmarshal body.", Detail: err.Error()})
		return
	}

	var token model.Token
	var err error
	switch model.TokenKind(request.Kind) {
	case model.TokenKindAnonymous:
		token, err = handler.graph.IssueAnonymousToken(c.Request.Context(), request.Channel)
	case model.TokenKindRegular:
		token, err = handler.graph.IssueRegularToken(c.Request.Context(), request.ClientID, request.Scope)
	case model.TokenKindPrivileged:
		var grants []model.Grant
		grants, err = handler.resolveGrants(c, request)
		if err == nil {
			token, err = handler.graph.IssuePrivilegedToken(c.Request.Context(), request.ClientID, grants, request.Scope)
		}
	default:
		err = model.ValidationError("Token kind has to be one of anonymous, regular or privileged.")
	}
	if err != nil {
		abortWithBackplaneError(c, err)
		return
	}

	response := tokenResponse{
		AccessToken: token.ID,
		TokenType:   "Bearer",
		ExpiresIn:   int64(time.Until(token.Expires).Seconds()),
	}
	if token.MustReturnScope {
		response.Scope = token.ScopeString
	}
	c.JSON(http.StatusCreated, response)
}

// GetMessageCount reports the total number of stored messages for the ops
// surface.
func (handler *BackplaneHandler) GetMessageCount(c *gin.Context) {
	count, err := handler.messageStore.CountMessages(c.Request.Context())
	if err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	c.JSON(http.StatusOK, gin.H{"count": count})
}

func (handler *BackplaneHandler) RevokeToken(c *gin.Context) {
	if err := handler.graph.RevokeToken(c.Request.Context(), c.Param("id")); err != nil {
		abortWithBackplaneError(c, err)
		return
	}
	c.AbortWithStatus(http.StatusNoContent)
}

// When no grant ids are named, issuance runs over everything the client
// holds.
func (handler *BackplaneHandler) resolveGrants(c *gin.Context, request tokenRequest) ([]model.Grant, error) {
	if len(request.GrantIDs) == 0 {
		return handler.graph.RetrieveGrantsByClient(c.Request.Context(), request.ClientID)
	}
	grants := make([]model.Grant, 0, len(request.GrantIDs))
	for _, grantId := range request.GrantIDs {
		grant, err := handler.graph.RetrieveGrant(c.Request.Context(), grantId)
		if err != nil {
			return nil, err
		}
		grants = append(grants, grant)
	}
	return grants, nil
}

func (handler *BackplaneHandler) resolveToken(c *gin.Context) (model.Token, bool) {
	tokenId := bearerToken(c)
	if tokenId == "" {
		c.AbortWithStatusJSON(http.StatusUnauthorized, model.ProblemDetails{Type: "invalid_request", Status: http.StatusUnauthorized, Title: "Missing bearer token.", Detail: "Message retrieval requires a token."})
		return model.Token{}, false
	}

	token, err := handler.graph.RetrieveToken(c.Request.Context(), tokenId)
	if err != nil {
		if model.IsKind(err, model.KindNotFound) {
			c.AbortWithStatusJSON(http.StatusForbidden, model.ProblemDetails{Type: "access_denied", Status: http.StatusForbidden, Title: "Invalid token.", Detail: "The provided token was not accepted."})
			return model.Token{}, false
		}
		abortWithBackplaneError(c, err)
		return model.Token{}, false
	}
	if token.Expired(time.Now()) {
		c.AbortWithStatusJSON(http.StatusForbidden, model.ProblemDetails{Type: "access_denied", Status: http.StatusForbidden, Title: "Expired token.", Detail: "The provided token is expired."})
		return model.Token{}, false
	}
	return token, true
}

func abortWithBackplaneError(c *gin.Context, err error) {
	switch model.KindOf(err) {
	case model.KindValidation:
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "invalid_request", Status: http.StatusBadRequest, Title: "Invalid request.", Detail: err.Error()})
	case model.KindInvalidScope:
		c.AbortWithStatusJSON(http.StatusBadRequest, model.ProblemDetails{Type: "invalid_scope", Status: http.StatusBadRequest, Title: "Invalid scope.", Detail: err.Error()})
	case model.KindAuthorization:
		c.AbortWithStatusJSON(http.StatusForbidden, model.ProblemDetails{Type: "access_denied", Status: http.StatusForbidden, Title: "Access denied.", Detail: err.Error()})
	case model.KindNotFound:
		c.AbortWithStatusJSON(http.StatusNotFound, model.ProblemDetails{Type: "not_found", Status: http.StatusNotFound, Title: "Not found.", Detail: err.Error()})
	case model.KindQuotaExceeded:
		c.AbortWithStatusJSON(http.StatusForbidden, model.ProblemDetails{Type: "invalid_request", Status: http.StatusForbidden, Title: "Message limit exceeded.", Detail: err.Error()})
	default:
		logger.Warnf("Request failed on the backing store: %v.", err)
		c.AbortWithStatusJSON(http.StatusInternalServerError, model.ProblemDetails{Type: "server_error", Status: http.StatusInternalServerError, Title: "Backing store failure.", Detail: "Please retry later."})
	}
}
