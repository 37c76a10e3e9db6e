package app

import (
	"context"
	"fmt"
	"sync"
	"time"

	"shieldpool/internal/clients"
	"shieldpool/internal/config"
	"shieldpool/internal/db"
	"shieldpool/internal/events"
	"shieldpool/internal/pool"
	"shieldpool/internal/router"
	"shieldpool/internal/services"
	"shieldpool/internal/store/memory"
	"shieldpool/internal/store/postgres"

	"github.com/gin-gonic/gin"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

// PoolStore is a transactional pool store that also holds the event outbox.
type PoolStore interface {
	pool.Store
	events.Outbox
}

// ServiceContainer holds the wired pool service and its event sinks.
type ServiceContainer struct {
	Config *config.Config
	Logger *logrus.Logger

	// Database, nil with the memory driver
	DB    *gorm.DB
	Store PoolStore

	// Core Services
	PoolService *pool.Service
	Dispatcher  *events.Dispatcher

	// Event sinks
	NATSClient           *clients.NATSClient
	WebSocketPushService *services.WebSocketPushService

	cancel context.CancelFunc
	wg     sync.WaitGroup
}

// NewServiceContainer opens the configured store and wires the pool
// service, the outbox dispatcher and its publishers. NATS is optional: a
// failed connection is logged and events still reach websocket clients.
func NewServiceContainer(cfg *config.Config, logger *logrus.Logger) (*ServiceContainer, error) {
	c := &ServiceContainer{Config: cfg, Logger: logger}

	if err := c.initStore(); err != nil {
		return nil, fmt.Errorf("failed to initialize store: %w", err)
	}

	c.WebSocketPushService = services.NewWebSocketPushService(logger, cfg.CORS.AllowedOrigins)
	publishers := []events.Publisher{c.WebSocketPushService}

	if cfg.NATS.URL != "" {
		natsClient, err := clients.NewNATSClient(cfg.NATS, logger)
		if err != nil {
			logger.WithError(err).Warn("NATS unavailable, events are delivered to websocket clients only")
		} else {
			c.NATSClient = natsClient
			publishers = append(publishers, natsClient)
		}
	}

	c.Dispatcher = events.NewDispatcher(c.Store, logger, cfg.Events.BatchSize, cfg.Events.PollIntervalDuration(), publishers...)
	c.PoolService = pool.NewService(c.Store, logger, pool.WithCommitHook(c.Dispatcher.Notify))

	logger.WithFields(logrus.Fields{
		"driver":     cfg.Database.Driver,
		"publishers": len(publishers),
	}).Info("Service container initialized")
	return c, nil
}

func (c *ServiceContainer) initStore() error {
	switch c.Config.Database.Driver {
	case "memory":
		c.Logger.Warn("Using in-memory pool store, state is lost on exit")
		c.Store = memory.New()
		return nil
	case "", "postgres":
		gdb, err := db.Open(c.Config.Database)
		if err != nil {
			return err
		}
		if err := db.Migrate(gdb); err != nil {
			return err
		}
		db.DB = gdb
		c.DB = gdb
		c.Store = postgres.New(gdb)
		return nil
	default:
		return fmt.Errorf("unsupported database driver %q", c.Config.Database.Driver)
	}
}

// Start runs the background workers until Cleanup.
func (c *ServiceContainer) Start(ctx context.Context) {
	ctx, c.cancel = context.WithCancel(ctx)

	c.wg.Add(1)
	go func() {
		defer c.wg.Done()
		c.Dispatcher.Run(ctx)
	}()

	if c.DB != nil {
		c.wg.Add(1)
		go func() {
			defer c.wg.Done()
			db.ReportPoolStats(ctx, c.DB, 30*time.Second)
		}()
	}
}

// Router builds the HTTP engine over the container's services.
func (c *ServiceContainer) Router() *gin.Engine {
	return router.SetupRouter(c.Config, c.PoolService, c.WebSocketPushService, c.Logger)
}

// Cleanup stops the workers and closes connections.
func (c *ServiceContainer) Cleanup() {
	c.Logger.Info("Cleaning up service container...")
	if c.cancel != nil {
		c.cancel()
	}
	c.wg.Wait()

	if c.NATSClient != nil {
		c.NATSClient.Close()
	}
	if c.DB != nil {
		if sqlDB, err := c.DB.DB(); err == nil {
			sqlDB.Close()
		}
	}
	c.Logger.Info("Service container cleaned up")
}
