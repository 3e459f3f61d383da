package api

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
)

const contextKeyClaims = "auth_claims"

// Claims 是 bearer token 的內容
// token 由外部登入系統發行，這裡只做驗證
type Claims struct {
	UserID   uint64 `json:"userId"`
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// ParseAndValidateToken 驗證一個 HMAC 簽名的 token 並取出 claims
func ParseAndValidateToken(tokenString string, secret []byte) (*Claims, error) {
	const op = "ParseAndValidateToken"
	token, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", token.Header["alg"])
		}
		return secret, nil
	})
	if err != nil {
		return nil, fmt.Errorf("[%s] Fail to parse token, err=%w", op, err)
	}
	if !token.Valid {
		return nil, fmt.Errorf("[%s] token is invalid", op)
	}
	claims, ok := token.Claims.(*Claims)
	if !ok {
		return nil, fmt.Errorf("[%s] token claims are invalid", op)
	}
	return claims, nil
}

// AuthMiddleware 驗證 Authorization header 或 token query 參數
// websocket 升級請求帶不了自訂 header，所以也接受 query 參數
func (impl *ServerImpl) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		tokenString := strings.TrimPrefix(c.GetHeader("Authorization"), "Bearer ")
		if tokenString == "" {
			tokenString = c.Query("token")
		}
		if tokenString == "" {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "missing token"})
			return
		}

		claims, err := ParseAndValidateToken(tokenString, []byte(impl.config.Auth.JWTSecret))
		if err != nil {
			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{"message": "invalid token"})
			return
		}
		c.Set(contextKeyClaims, claims)
		c.Next()
	}
}

// currentClaims 取出中介層放進 context 的 claims
func currentClaims(c *gin.Context) *Claims {
	value, ok := c.Get(contextKeyClaims)
	if !ok {
		return nil
	}
	claims, _ := value.(*Claims)
	return claims
}
