package pool

import (
	"context"
	"time"

	"shieldpool/internal/metrics"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
)

// Service is the entry point for every pool transition and query.
type Service struct {
	store    Store
	logger   logrus.FieldLogger
	now      func() time.Time
	newID    func() string
	onCommit func()
}

// Option configures a Service.
type Option func(*Service)

// WithClock overrides the time source used for records and events.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// WithCommitHook registers fn to run after every committed transition,
// typically to wake the event dispatcher.
func WithCommitHook(fn func()) Option {
	return func(s *Service) { s.onCommit = fn }
}

// NewService creates a Service over store.
func NewService(store Store, logger logrus.FieldLogger, opts ...Option) *Service {
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	s := &Service{
		store:  store,
		logger: logger.WithField("component", "pool"),
		now:    time.Now,
		newID:  func() string { return uuid.NewString() },
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// update runs fn as one transition and records its outcome.
func (s *Service) update(ctx context.Context, op string, fn func(tx Tx) error) error {
	start := time.Now()
	err := s.store.Update(ctx, fn)
	metrics.RecordTransition(op, start, codeOf(err))
	if err != nil {
		return err
	}
	if s.onCommit != nil {
		s.onCommit()
	}
	return nil
}

func codeOf(err error) string {
	if err == nil {
		return ""
	}
	return ErrorCode(err)
}

func (s *Service) emit(ctx context.Context, tx Tx, ev *Event) error {
	ev.ID = s.newID()
	ev.CreatedAt = s.now().UTC()
	if err := tx.Emit(ctx, ev); err != nil {
		return storeError("emit event", err)
	}
	return nil
}

func (s *Service) reject(op string, err error, fields logrus.Fields) {
	entry := s.logger.WithFields(fields).WithField("op", op)
	if _, ok := AsError(err); ok {
		entry.WithField("code", ErrorCode(err)).Warn("transition rejected")
		return
	}
	entry.WithError(err).Error("transition failed")
}
