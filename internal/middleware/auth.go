package middleware

import (
	"context"
	"strings"

	"github.com/gin-gonic/gin"

	"marketplace/internal/model"
	"marketplace/pkg/utils"
)

const (
	// AuthorizationHeader authorization header name
	AuthorizationHeader = "Authorization"
	// BearerPrefix bearer prefix
	BearerPrefix = "Bearer "
	// ActorKey is where the authenticated actor lives in the gin context
	ActorKey = "actor"
)

// Authenticator resolves a bearer token into an actor
type Authenticator interface {
	Authenticate(ctx context.Context, token string) (*model.Actor, error)
}

// Auth authenticates every request and stores the actor in the context
func Auth(authn Authenticator) gin.HandlerFunc {
	return func(c *gin.Context) {
		token, ok := BearerToken(c)
		if !ok {
			utils.Error(c, utils.CodeUnauthorized, "Missing or malformed authorization header")
			c.Abort()
			return
		}

		actor, err := authn.Authenticate(c.Request.Context(), token)
		if err != nil {
			utils.HandleError(c, err)
			c.Abort()
			return
		}

		c.Set(ActorKey, *actor)
		c.Next()
	}
}

// RequireRole rejects actors holding none of roles. Must run after Auth.
func RequireRole(roles ...model.Role) gin.HandlerFunc {
	return func(c *gin.Context) {
		actor, ok := GetActor(c)
		if !ok {
			utils.Error(c, utils.CodeUnauthorized, "Not authenticated")
			c.Abort()
			return
		}
		for _, role := range roles {
			if actor.Role == role {
				c.Next()
				return
			}
		}
		utils.Error(c, utils.CodeForbidden, "Insufficient permissions")
		c.Abort()
	}
}

// BearerToken extracts the bearer token of the request
func BearerToken(c *gin.Context) (string, bool) {
	header := c.GetHeader(AuthorizationHeader)
	if !strings.HasPrefix(header, BearerPrefix) {
		return "", false
	}
	token := strings.TrimSpace(strings.TrimPrefix(header, BearerPrefix))
	return token, token != ""
}

// GetActor returns the authenticated actor
func GetActor(c *gin.Context) (model.Actor, bool) {
	v, exists := c.Get(ActorKey)
	if !exists {
		return model.Actor{}, false
	}
	actor, ok := v.(model.Actor)
	return actor, ok
}

// MustGetActor returns the authenticated actor, panicking when Auth did not run
func MustGetActor(c *gin.Context) model.Actor {
	actor, ok := GetActor(c)
	if !ok {
		panic("actor not found in context")
	}
	return actor
}
