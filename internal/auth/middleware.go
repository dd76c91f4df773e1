package auth

import (
	"net/http"
	"strings"

	"github.com/KevinKickass/et7000d/internal/types"
	"github.com/gin-gonic/gin"
)

const identityKey = "identity"

// AuthMiddleware validates tokens and enforces authentication. Browsers
// cannot set headers on WebSocket upgrades, so the token may also be passed
// as the access_token query parameter.
func (a *Service) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		token := c.Query("access_token")
		if authHeader := c.GetHeader("Authorization"); authHeader != "" {
			// Extract token from "Bearer <token>"
			parts := strings.SplitN(authHeader, " ", 2)
			if len(parts) != 2 || parts[0] != "Bearer" {
				c.AbortWithStatusJSON(http.StatusUnauthorized,
					types.NewErrorResponse(types.CodeUnauthorized, "invalid authorization header format", nil))
				return
			}
			token = parts[1]
		}

		if token == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "missing authorization header", nil))
			return
		}

		identity, err := a.Authenticate(token)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized,
				types.NewErrorResponse(types.CodeUnauthorized, "invalid or expired token", nil))
			return
		}

		c.Set(identityKey, identity)
		c.Next()
	}
}

// RequirePermission checks if the caller has the required permission.
// Without AuthMiddleware in the chain it lets every request through.
func RequirePermission(required Permission) gin.HandlerFunc {
	return func(c *gin.Context) {
		v, exists := c.Get(identityKey)
		if !exists {
			c.Next()
			return
		}

		identity := v.(Identity)
		for _, p := range identity.Role.Permissions() {
			if p == required {
				c.Next()
				return
			}
		}

		c.AbortWithStatusJSON(http.StatusForbidden,
			types.NewErrorResponse(types.CodeForbidden, "insufficient permissions", string(required)))
	}
}

// GetIdentity returns the authenticated caller, if any.
func GetIdentity(c *gin.Context) (Identity, bool) {
	v, ok := c.Get(identityKey)
	if !ok {
		return Identity{}, false
	}
	identity, ok := v.(Identity)
	return identity, ok
}
