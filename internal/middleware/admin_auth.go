package middleware

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/pquerna/otp/totp"
	"github.com/sirupsen/logrus"
)

// AdminTOTPHeader carries the admin's current one-time code.
const AdminTOTPHeader = "X-Admin-TOTP"

// AdminAuthMiddleware 管理员认证中间件
// Runs after RequireAuth; the pool itself checks that the caller is the
// configured admin.
type AdminAuthMiddleware struct {
	logger     logrus.FieldLogger
	totpSecret string
}

// NewAdminAuthMiddleware 创建管理员认证中间件
func NewAdminAuthMiddleware(logger logrus.FieldLogger, totpSecret string) *AdminAuthMiddleware {
	return &AdminAuthMiddleware{
		logger:     logger,
		totpSecret: totpSecret,
	}
}

// RequireTOTP requires a valid TOTP code when a secret is configured.
func (a *AdminAuthMiddleware) RequireTOTP() gin.HandlerFunc {
	return func(c *gin.Context) {
		if a.totpSecret == "" {
			c.Next()
			return
		}

		code := c.GetHeader(AdminTOTPHeader)
		if code == "" {
			a.logger.WithFields(logrus.Fields{
				"path":   c.Request.URL.Path,
				"method": c.Request.Method,
			}).Warn("Admin auth failed - missing TOTP code")

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "TOTP code required",
				"code":    "MISSING_TOTP",
			})
			return
		}

		if !totp.Validate(code, a.totpSecret) {
			a.logger.WithFields(logrus.Fields{
				"path":      c.Request.URL.Path,
				"method":    c.Request.Method,
				"client_ip": c.ClientIP(),
			}).Warn("Admin auth failed - invalid TOTP code")

			c.AbortWithStatusJSON(http.StatusUnauthorized, gin.H{
				"success": false,
				"error":   "Invalid TOTP code",
				"code":    "INVALID_TOTP",
			})
			return
		}

		c.Next()
	}
}
