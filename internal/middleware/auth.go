package middleware

import (
	"net/http"
	"strings"

	"shieldpool/internal/handlers"

	"github.com/ethereum/go-ethereum/common"
	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
)

// AuthMiddleware JWT
type AuthMiddleware struct {
	logger logrus.FieldLogger
	secret []byte
}

// NewAuthMiddleware createJWT
func NewAuthMiddleware(logger logrus.FieldLogger, secret string) *AuthMiddleware {
	return &AuthMiddleware{
		logger: logger,
		secret: []byte(secret),
	}
}

// RequireAuth verifies the bearer JWT and stores the caller address under
// handlers.CallerAddressKey.
func (a *AuthMiddleware) RequireAuth() gin.HandlerFunc {
	return func(c *gin.Context) {
		authHeader := c.GetHeader("Authorization")
		if authHeader == "" {
			a.reject(c, "Authentication required", "Missing Authorization header. Please provide a valid JWT token.", "MISSING_AUTH_HEADER")
			return
		}

		if !strings.HasPrefix(authHeader, "Bearer ") {
			a.reject(c, "Invalid authorization format", "Authorization header must be in format: Bearer <token>", "INVALID_AUTH_FORMAT")
			return
		}

		tokenString := strings.TrimPrefix(authHeader, "Bearer ")
		if tokenString == "" {
			a.reject(c, "Empty token", "Token cannot be empty", "EMPTY_TOKEN")
			return
		}

		claims, err := handlers.ValidateJWTToken(a.secret, tokenString)
		if err != nil {
			a.reject(c, "Invalid or expired token", err.Error(), "INVALID_TOKEN")
			return
		}

		caller := common.HexToAddress(claims.Subject)
		c.Set(handlers.CallerAddressKey, caller)

		a.logger.WithFields(logrus.Fields{
			"path":   c.Request.URL.Path,
			"method": c.Request.Method,
			"caller": caller.Hex(),
		}).Debug("JWT verified")

		c.Next()
	}
}

func (a *AuthMiddleware) reject(c *gin.Context, errMsg, message, code string) {
	a.logger.WithFields(logrus.Fields{
		"path":   c.Request.URL.Path,
		"method": c.Request.Method,
		"code":   code,
	}).Warn("JWT authentication failed")

	c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
		"success": false,
		"error":   errMsg,
		"message": message,
		"code":    code,
	})
}
