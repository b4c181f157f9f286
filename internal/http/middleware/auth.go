// README: Bearer auth middleware; verifies the token and exposes the caller to handlers.
package middleware

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"waykel/internal/infra"
	"waykel/internal/modules/permission"
	"waykel/internal/types"
)

const (
	ctxUID    = "auth.uid"
	ctxClaims = "auth.claims"
)

func Auth(verifier infra.TokenVerifier) gin.HandlerFunc {
	return func(c *gin.Context) {
		header := c.GetHeader("Authorization")
		raw, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || strings.TrimSpace(raw) == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "missing bearer token"})
			return
		}
		token, err := verifier.VerifyIDToken(c.Request.Context(), strings.TrimSpace(raw))
		if err != nil || token == nil || token.UID == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"error": "invalid token"})
			return
		}
		claims := token.Claims
		if claims == nil {
			claims = map[string]interface{}{}
		}
		c.Set(ctxUID, token.UID)
		c.Set(ctxClaims, claims)
		c.Next()
	}
}

func CallerUID(c *gin.Context) string {
	return c.GetString(ctxUID)
}

// CallerRole returns the role claim. A token without one is a customer; an
// unrecognised value yields the empty role, which no ride rule accepts.
func CallerRole(c *gin.Context) permission.Role {
	v, present := claims(c)["role"]
	if !present {
		return permission.RoleCustomer
	}
	s, _ := v.(string)
	role, ok := permission.ParseRole(s)
	if !ok {
		return ""
	}
	return role
}

// Caller builds the authorizer's view of the authenticated user.
func Caller(c *gin.Context) permission.User {
	cl := claims(c)
	u := permission.User{
		ID:           types.ID(CallerUID(c)),
		Role:         CallerRole(c),
		IsSuperAdmin: boolClaim(cl, "is_super_admin"),
		IsSelfDriver: boolClaim(cl, "is_self_driver"),
	}
	if s, ok := cl["transporter_id"].(string); ok {
		u.TransporterID = types.ID(s)
	}
	return u
}

func claims(c *gin.Context) map[string]interface{} {
	v, ok := c.Get(ctxClaims)
	if !ok {
		return nil
	}
	m, _ := v.(map[string]interface{})
	return m
}

func boolClaim(cl map[string]interface{}, key string) bool {
	switch v := cl[key].(type) {
	case bool:
		return v
	case string:
		return v == "true"
	}
	return false
}
