package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"shieldpool/internal/config"
	"shieldpool/internal/metrics"
	"shieldpool/internal/pool"

	"github.com/nats-io/nats.go"
	"github.com/sirupsen/logrus"
)

// NATSClient publishes committed pool events to NATS. With JetStream
// enabled every event is published with its ID as Nats-Msg-Id, so
// redelivery after a dispatcher retry is dropped by the server.
type NATSClient struct {
	conn          *nats.Conn
	js            nats.JetStreamContext
	streamName    string
	subjectPrefix string
	logger        logrus.FieldLogger
}

// NewNATSClient connects to the configured server and, when JetStream is
// enabled, makes sure the event stream exists.
func NewNATSClient(cfg config.NATSConfig, logger logrus.FieldLogger) (*NATSClient, error) {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	logger = logger.WithField("component", "nats")

	connectTimeout := 10 * time.Second
	if cfg.Timeout > 0 {
		connectTimeout = time.Duration(cfg.Timeout) * time.Second
	}
	reconnectWait := 5 * time.Second
	if cfg.ReconnectWait > 0 {
		reconnectWait = time.Duration(cfg.ReconnectWait) * time.Second
	}
	maxReconnects := -1
	if cfg.MaxReconnects > 0 {
		maxReconnects = cfg.MaxReconnects
	}

	conn, err := nats.Connect(cfg.URL,
		nats.Name("shieldpool"),
		nats.Timeout(connectTimeout),
		nats.ReconnectWait(reconnectWait),
		nats.MaxReconnects(maxReconnects),
		nats.DisconnectErrHandler(func(nc *nats.Conn, err error) {
			logger.WithError(err).Warn("NATS connection lost")
			metrics.NATSConnectionStatus.Set(0)
		}),
		nats.ReconnectHandler(func(nc *nats.Conn) {
			logger.WithField("url", nc.ConnectedUrl()).Info("NATS reconnected")
			metrics.NATSConnectionStatus.Set(1)
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connect NATS: %w", err)
	}
	metrics.NATSConnectionStatus.Set(1)

	client := &NATSClient{
		conn:          conn,
		streamName:    cfg.Stream,
		subjectPrefix: cfg.SubjectPrefix,
		logger:        logger,
	}

	if cfg.EnableJetStream {
		js, err := conn.JetStream()
		if err != nil {
			conn.Close()
			return nil, fmt.Errorf("create JetStream context: %w", err)
		}
		client.js = js
		if err := client.ensureStream(); err != nil {
			conn.Close()
			return nil, err
		}
	}

	logger.WithFields(logrus.Fields{
		"url":       cfg.URL,
		"jetstream": cfg.EnableJetStream,
		"subjects":  client.subjectPrefix + ".>",
	}).Info("NATS client initialized")
	return client, nil
}

// ensureStream creates the event stream if it does not exist
func (c *NATSClient) ensureStream() error {
	if _, err := c.js.StreamInfo(c.streamName); err == nil {
		return nil
	}
	_, err := c.js.AddStream(&nats.StreamConfig{
		Name:       c.streamName,
		Subjects:   []string{c.subjectPrefix + ".>"},
		Retention:  nats.LimitsPolicy,
		MaxAge:     7 * 24 * time.Hour,
		Storage:    nats.FileStorage,
		Duplicates: 10 * time.Minute,
	})
	if err != nil {
		return fmt.Errorf("create stream %s: %w", c.streamName, err)
	}
	c.logger.WithField("stream", c.streamName).Info("JetStream stream created")
	return nil
}

// Subject returns the subject an event kind is published on.
func (c *NATSClient) Subject(kind pool.EventKind) string {
	return c.subjectPrefix + "." + string(kind)
}

// Name identifies the sink in metrics and logs.
func (c *NATSClient) Name() string {
	return "nats"
}

// Publish sends ev as JSON on its kind's subject.
func (c *NATSClient) Publish(ctx context.Context, ev pool.Event) error {
	data, err := json.Marshal(ev)
	if err != nil {
		return fmt.Errorf("encode event %s: %w", ev.ID, err)
	}
	subject := c.Subject(ev.Kind)
	if c.js != nil {
		if _, err := c.js.Publish(subject, data, nats.MsgId(ev.ID), nats.Context(ctx)); err != nil {
			return fmt.Errorf("publish %s to JetStream: %w", subject, err)
		}
		return nil
	}
	if err := c.conn.Publish(subject, data); err != nil {
		return fmt.Errorf("publish %s: %w", subject, err)
	}
	return nil
}

// Subscribe delivers every pool event published under the subject prefix
// until ctx is done.
func (c *NATSClient) Subscribe(ctx context.Context, handler func(subject string, ev pool.Event)) error {
	sub, err := c.conn.Subscribe(c.subjectPrefix+".>", func(msg *nats.Msg) {
		var ev pool.Event
		if err := json.Unmarshal(msg.Data, &ev); err != nil {
			c.logger.WithError(err).WithField("subject", msg.Subject).Warn("Dropping undecodable event")
			return
		}
		handler(msg.Subject, ev)
	})
	if err != nil {
		return fmt.Errorf("subscribe %s.>: %w", c.subjectPrefix, err)
	}
	<-ctx.Done()
	return sub.Unsubscribe()
}

// Close drains and closes the connection
func (c *NATSClient) Close() {
	if c.conn != nil {
		if err := c.conn.Drain(); err != nil {
			c.conn.Close()
		}
	}
	metrics.NATSConnectionStatus.Set(0)
}
