package http

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"

	"github.com/fiware/message-backplane/model"
)

/**
* Protects the provisioning api. Expects a bearer jwt signed with the
* configured secret. With no secret configured the check is disabled, the
* config layer already warns about that.
 */
func AdminAuthMiddleware(secret string) gin.HandlerFunc {
	return func(c *gin.Context) {
		if secret == "" {
			c.Next()
			return
		}

		tokenString := bearerToken(c)
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, model.ProblemDetails{Type: "invalid_request", Status: http.StatusUnauthorized, Title: "Missing bearer token.", Detail: "The provisioning api requires an admin token."})
			return
		}

		_, err := jwt.Parse(tokenString, func(token *jwt.Token) (interface{}, error) {
			if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
			}
			return []byte(secret), nil
		})
		if err != nil {
			logger.Debugf("Admin token rejected: %v.", err)
			c.AbortWithStatusJSON(http.StatusForbidden, model.ProblemDetails{Type: "access_denied", Status: http.StatusForbidden, Title: "Invalid admin token.", Detail: "The provided token was not accepted."})
			return
		}
		c.Next()
	}
}

func bearerToken(c *gin.Context) string {
	authorization := c.GetHeader("Authorization")
	if strings.HasPrefix(authorization, "Bearer ") {
		return strings.TrimPrefix(authorization, "Bearer ")
	}
	return ""
}
