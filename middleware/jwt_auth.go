package middleware

import (
	"net/http"
	"strings"

	"github.com/cockroachdb/errors"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	log "github.com/sirupsen/logrus"
)

// Roles accepted on the scheduler control endpoints
const (
	RoleAdmin     = "admin"
	RoleScheduler = "scheduler" // host platform cron
)

// ControlClaims are the claims carried by an admin or cron bearer token
type ControlClaims struct {
	jwt.RegisteredClaims
	Role string `json:"role"`
}

// AdminAuthMiddleware guards the scheduler control endpoints with an HS256
// bearer token. With an empty secret the guard is disabled.
func AdminAuthMiddleware(secret string, roles ...string) gin.HandlerFunc {
	if secret == "" {
		log.Warn("ADMIN_JWT_SECRET not set, scheduler control endpoints are unauthenticated")
		return func(c *gin.Context) { c.Next() }
	}
	if len(roles) == 0 {
		roles = []string{RoleAdmin}
	}

	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if authHeader == "" || tokenString == authHeader {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Authorization header is required. Use: Bearer <token>",
			})
			return
		}

		claims, err := ValidateControlToken(tokenString, secret)
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"error":   "unauthorized",
				"message": "Invalid token",
			})
			log.WithError(err).WithField("path", c.Request.URL.Path).Debug("Rejected control token")
			return
		}

		if !hasRole(claims.Role, roles) {
			c.AbortWithStatusJSON(http.StatusForbidden, gin.H{
				"error":   "forbidden",
				"message": "Insufficient role",
			})
			return
		}

		c.Set("control_subject", claims.Subject)
		c.Set("control_role", claims.Role)
		c.Next()
	}
}

// ValidateControlToken parses and verifies an HS256 control token
func ValidateControlToken(tokenString, secret string) (*ControlClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &ControlClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, errors.Newf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(secret), nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}))
	if err != nil {
		return nil, errors.Wrap(err, "failed to parse token")
	}

	claims, ok := token.Claims.(*ControlClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

func hasRole(role string, allowed []string) bool {
	for _, r := range allowed {
		if role == r {
			return true
		}
	}
	return false
}
