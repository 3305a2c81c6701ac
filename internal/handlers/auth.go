package handlers

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v4"
)

// studentClaims are the token claims the exam service relies on. Tokens are
// issued by the portal's identity service; this middleware only verifies them.
type studentClaims struct {
	jwt.RegisteredClaims
	StudentClass string `json:"student_class,omitempty"`
	Role         string `json:"role,omitempty"`
}

// JWTAuthMiddleware validates bearer tokens and exposes the student identity
// to handlers via the gin context.
type JWTAuthMiddleware struct {
	secret []byte
}

func NewJWTAuthMiddleware(secret string) *JWTAuthMiddleware {
	return &JWTAuthMiddleware{secret: []byte(secret)}
}

func (m *JWTAuthMiddleware) AuthMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Message: "authorization header missing",
			})
			c.Abort()
			return
		}

		tokenParts := strings.Split(authHeader, " ")
		if len(tokenParts) != 2 || strings.ToLower(tokenParts[0]) != "bearer" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Message: "invalid authorization header format",
			})
			c.Abort()
			return
		}

		claims := &studentClaims{}
		token, err := jwt.ParseWithClaims(tokenParts[1], claims, func(t *jwt.Token) (interface{}, error) {
			if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
				return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
			}
			return m.secret, nil
		})
		if err != nil || !token.Valid {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Message: "invalid token",
			})
			c.Abort()
			return
		}

		if claims.Subject == "" {
			c.JSON(http.StatusUnauthorized, ErrorResponse{
				Message: "token missing subject",
			})
			c.Abort()
			return
		}

		c.Set("user_id", claims.Subject)
		if claims.StudentClass != "" {
			c.Set("student_class", claims.StudentClass)
		}
		if claims.Role != "" {
			c.Set("user_role", claims.Role)
		}

		c.Next()
	}
}

// RequireRoleMiddleware restricts an endpoint to the given roles.
func (m *JWTAuthMiddleware) RequireRoleMiddleware(roles ...string) gin.HandlerFunc {
	return func(c *gin.Context) {
		role := c.GetString("user_role")
		for _, r := range roles {
			if role == r {
				c.Next()
				return
			}
		}
		c.JSON(http.StatusForbidden, ErrorResponse{
			Message: "insufficient permissions",
		})
		c.Abort()
	}
}
