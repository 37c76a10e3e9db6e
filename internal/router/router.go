package router

import (
	"net/http"
	"strconv"
	"strings"

	"shieldpool/internal/config"
	"shieldpool/internal/handlers"
	"shieldpool/internal/middleware"
	"shieldpool/internal/pool"
	"shieldpool/internal/services"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/sirupsen/logrus"
)

// corsMiddleware CORS middleware
// An empty origin list or "*" allows every origin.
func corsMiddleware(cfg config.CORSConfig, logger logrus.FieldLogger) gin.HandlerFunc {
	allowedOrigins := cfg.AllowedOrigins
	if len(allowedOrigins) == 0 {
		allowedOrigins = []string{"*"}
	}
	maxAge := cfg.MaxAge
	if maxAge <= 0 {
		maxAge = 3600
	}
	allowAll := len(allowedOrigins) == 1 && allowedOrigins[0] == "*"

	return func(c *gin.Context) {
		origin := c.GetHeader("Origin")

		if allowAll {
			c.Header("Access-Control-Allow-Origin", "*")
		} else if origin != "" {
			allowed := false
			for _, allowedOrigin := range allowedOrigins {
				if strings.TrimSpace(allowedOrigin) == origin {
					allowed = true
					break
				}
			}
			if allowed {
				c.Header("Access-Control-Allow-Origin", origin)
			} else {
				logger.WithFields(logrus.Fields{
					"request_origin":  origin,
					"allowed_origins": allowedOrigins,
					"path":            c.Request.URL.Path,
					"method":          c.Request.Method,
					"remote_addr":     c.ClientIP(),
				}).Warn("CORS: Request blocked - Origin not in whitelist")
			}
		}

		c.Header("Access-Control-Allow-Methods", "GET, POST, OPTIONS")
		c.Header("Access-Control-Allow-Headers", "Origin, Content-Type, Content-Length, Accept-Encoding, Authorization, Cache-Control, Accept, "+middleware.AdminTOTPHeader)
		if cfg.AllowCredentials {
			c.Header("Access-Control-Allow-Credentials", "true")
		}
		c.Header("Access-Control-Max-Age", strconv.Itoa(maxAge))

		// Preflight requests end here.
		if c.Request.Method == http.MethodOptions {
			c.AbortWithStatus(http.StatusNoContent)
			return
		}

		c.Header("Access-Control-Expose-Headers", "Content-Length, Content-Type")
		c.Next()
	}
}

// requestLogger logs every request through logrus.
func requestLogger(logger logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()
		entry := logger.WithFields(logrus.Fields{
			"status": c.Writer.Status(),
			"method": c.Request.Method,
			"path":   c.Request.URL.Path,
			"ip":     c.ClientIP(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Error("request failed")
			return
		}
		entry.Debug("request")
	}
}

// SetupRouter wires every HTTP route of the pool service.
func SetupRouter(cfg *config.Config, service *pool.Service, pushService *services.WebSocketPushService, logger logrus.FieldLogger) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(logger), corsMiddleware(cfg.CORS, logger))

	authHandler := handlers.NewAuthHandler(cfg.Auth, logger)
	poolHandler := handlers.NewPoolHandler(service, logger)
	adminHandler := handlers.NewAdminPoolHandler(service, logger, cfg.Pool.AllowCredit)
	wsHandler := handlers.NewWebSocketHandler(pushService)

	auth := middleware.NewAuthMiddleware(logger, cfg.Auth.JWTSecret)
	adminAuth := middleware.NewAdminAuthMiddleware(logger, cfg.Admin.TOTPSecret)
	if len(cfg.Admin.AllowedIPs) > 0 {
		logger.WithField("allowed_ips", cfg.Admin.AllowedIPs).Info("Admin API IP whitelist configured")
	} else {
		logger.Info("No admin.allowedIPs configured, using localhost-only mode")
	}
	localhostOnly := middleware.NewLocalhostOnly(logger, cfg.Admin.AllowedIPs)

	// ============ Health Check ============
	r.GET("/health", handlers.HealthCheckHandler)

	// ============ Prometheus Metrics ============
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	// ============ Event stream ============
	r.GET("/ws/events", wsHandler.HandleEvents)

	api := r.Group("/api")
	api.GET("/health", handlers.HealthCheckHandler)

	authGroup := api.Group("/auth")
	{
		authGroup.POST("/challenge", authHandler.GenerateChallengeHandler)
		authGroup.POST("/login", authHandler.LoginHandler)
	}

	poolGroup := api.Group("/pool")
	{
		poolGroup.GET("/state", poolHandler.GetState)
		poolGroup.GET("/commitments", poolHandler.ListCommitments)
		poolGroup.GET("/commitments/:index", poolHandler.GetCommitment)
		poolGroup.GET("/nullifiers/:hash", poolHandler.GetNullifier)
		poolGroup.GET("/roots/:root", poolHandler.GetRoot)
		poolGroup.GET("/custody/:asset", poolHandler.GetCustody)

		signed := poolGroup.Group("", auth.RequireAuth())
		signed.POST("/initialize", poolHandler.Initialize)
		signed.POST("/deposit", poolHandler.Deposit)
		signed.POST("/withdraw", poolHandler.Withdraw)
		signed.POST("/root", poolHandler.UpdateRoot)
	}

	adminGroup := api.Group("/admin", localhostOnly.Restrict(), auth.RequireAuth(), adminAuth.RequireTOTP())
	{
		adminGroup.POST("/pause", adminHandler.PauseHandler)
		adminGroup.POST("/unpause", adminHandler.UnpauseHandler)
		adminGroup.POST("/relayer", adminHandler.SetRelayerHandler)
		adminGroup.POST("/fee-recipient", adminHandler.SetFeeRecipientHandler)
		adminGroup.POST("/credit", adminHandler.CreditHandler)
	}

	r.NoRoute(func(c *gin.Context) {
		c.JSON(http.StatusNotFound, gin.H{
			"success": false,
			"error":   "API endpoint not found",
			"code":    "NOT_FOUND",
			"path":    c.Request.URL.Path,
		})
	})

	return r
}
