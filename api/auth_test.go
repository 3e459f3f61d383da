package api

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

func signToken(t *testing.T, claims *Claims, secret string) string {
	t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString([]byte(secret))
	require.NoError(t, err)
	return signed
}

func TestParseAndValidateToken(t *testing.T) {
	claims := &Claims{
		UserID:   42,
		Username: "alice",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}

	t.Run("valid token", func(t *testing.T) {
		parsed, err := ParseAndValidateToken(signToken(t, claims, testSecret), []byte(testSecret))
		require.NoError(t, err)
		assert.Equal(t, uint64(42), parsed.UserID)
		assert.Equal(t, "alice", parsed.Username)
	})

	t.Run("wrong secret", func(t *testing.T) {
		_, err := ParseAndValidateToken(signToken(t, claims, "other-secret"), []byte(testSecret))
		assert.Error(t, err)
	})

	t.Run("expired token", func(t *testing.T) {
		expired := &Claims{
			UserID: 42,
			RegisteredClaims: jwt.RegisteredClaims{
				ExpiresAt: jwt.NewNumericDate(time.Now().Add(-time.Hour)),
			},
		}
		_, err := ParseAndValidateToken(signToken(t, expired, testSecret), []byte(testSecret))
		assert.Error(t, err)
	})

	t.Run("not a token", func(t *testing.T) {
		_, err := ParseAndValidateToken("not-a-token", []byte(testSecret))
		assert.Error(t, err)
	})
}

func TestAuthMiddleware(t *testing.T) {
	gin.SetMode(gin.TestMode)

	impl := &ServerImpl{config: ServerConfig{Auth: AuthConfig{JWTSecret: testSecret}}}
	router := gin.New()
	router.GET("/protected", impl.AuthMiddleware(), func(c *gin.Context) {
		claims := currentClaims(c)
		require.NotNil(t, claims)
		c.JSON(http.StatusOK, gin.H{"userId": claims.UserID})
	})

	token := signToken(t, &Claims{
		UserID:   7,
		Username: "bob",
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(time.Now().Add(time.Hour)),
		},
	}, testSecret)

	t.Run("bearer header", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer "+token)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
		assert.JSONEq(t, `{"userId":7}`, rec.Body.String())
	})

	t.Run("token query parameter", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected?token="+token, nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusOK, rec.Code)
	})

	t.Run("missing token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})

	t.Run("garbage token", func(t *testing.T) {
		req := httptest.NewRequest(http.MethodGet, "/protected", nil)
		req.Header.Set("Authorization", "Bearer garbage")
		rec := httptest.NewRecorder()
		router.ServeHTTP(rec, req)
		assert.Equal(t, http.StatusUnauthorized, rec.Code)
	})
}
