package middleware

import (
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testSecret = "test-secret"

func signToken(t *testing.T, secret, role string, expires time.Time) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, ControlClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   "ops",
			ExpiresAt: jwt.NewNumericDate(expires),
		},
		Role: role,
	})
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func guardedRouter(secret string, roles ...string) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	router.POST("/guarded", AdminAuthMiddleware(secret, roles...), func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"role": c.GetString("control_role")})
	})
	return router
}

func doGuarded(router *gin.Engine, authHeader string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/guarded", nil)
	if authHeader != "" {
		req.Header.Set("Authorization", authHeader)
	}
	w := httptest.NewRecorder()
	router.ServeHTTP(w, req)
	return w
}

func TestAdminAuthMiddleware(t *testing.T) {
	router := guardedRouter(testSecret, RoleAdmin, RoleScheduler)
	valid := time.Now().Add(time.Hour)

	tests := []struct {
		name   string
		header string
		want   int
	}{
		{"missing header", "", http.StatusUnauthorized},
		{"not a bearer token", "Basic abc", http.StatusUnauthorized},
		{"garbage token", "Bearer not.a.jwt", http.StatusUnauthorized},
		{"wrong secret", "Bearer " + signToken(t, "other", RoleAdmin, valid), http.StatusUnauthorized},
		{"expired", "Bearer " + signToken(t, testSecret, RoleAdmin, time.Now().Add(-time.Minute)), http.StatusUnauthorized},
		{"wrong role", "Bearer " + signToken(t, testSecret, "viewer", valid), http.StatusForbidden},
		{"admin", "Bearer " + signToken(t, testSecret, RoleAdmin, valid), http.StatusOK},
		{"scheduler", "Bearer " + signToken(t, testSecret, RoleScheduler, valid), http.StatusOK},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			w := doGuarded(router, tt.header)
			assert.Equal(t, tt.want, w.Code, w.Body.String())
		})
	}
}

func TestAdminAuthMiddlewareDefaultsToAdminRole(t *testing.T) {
	router := guardedRouter(testSecret)
	valid := time.Now().Add(time.Hour)

	assert.Equal(t, http.StatusOK, doGuarded(router, "Bearer "+signToken(t, testSecret, RoleAdmin, valid)).Code)
	assert.Equal(t, http.StatusForbidden, doGuarded(router, "Bearer "+signToken(t, testSecret, RoleScheduler, valid)).Code)
}

func TestAdminAuthMiddlewareDisabledWithoutSecret(t *testing.T) {
	router := guardedRouter("")
	assert.Equal(t, http.StatusOK, doGuarded(router, "").Code)
}

func TestValidateControlTokenRejectsOtherAlgorithms(t *testing.T) {
	token := jwt.NewWithClaims(jwt.SigningMethodHS512, ControlClaims{Role: RoleAdmin})
	signed, err := token.SignedString([]byte(testSecret))
	require.NoError(t, err)

	_, err = ValidateControlToken(signed, testSecret)
	assert.Error(t, err)
}
