package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/noah-isme/visitor-attendance-api/pkg/eventlog"
)

// ActivitySink stores activity events.
type ActivitySink interface {
	Record(ctx context.Context, event eventlog.Event) error
}

// ActivityReader lists stored activity events.
type ActivityReader interface {
	Recent(ctx context.Context, userID string, limit int64) ([]eventlog.Event, error)
}

// ActivityService writes the operator-facing activity feed. Failures never
// reach the caller.
type ActivityService struct {
	sink    ActivitySink
	reader  ActivityReader
	logger  *zap.Logger
	timeout time.Duration
}

// NewActivityService constructs the service. A nil sink disables logging.
func NewActivityService(sink ActivitySink, reader ActivityReader, logger *zap.Logger) *ActivityService {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &ActivityService{sink: sink, reader: reader, logger: logger, timeout: 3 * time.Second}
}

// Log records an event, logging and swallowing any sink error.
func (s *ActivityService) Log(ctx context.Context, eventType, userID, userName string, success bool, message string) {
	if s == nil || s.sink == nil {
		return
	}
	ctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), s.timeout)
	defer cancel()

	event := eventlog.Event{
		Timestamp: time.Now().UTC(),
		Type:      eventType,
		UserID:    userID,
		UserName:  userName,
		Success:   success,
		Message:   message,
	}
	if err := s.sink.Record(ctx, event); err != nil {
		s.logger.Warn("activity log write failed",
			zap.String("type", eventType),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// Recent returns the newest activity events.
func (s *ActivityService) Recent(ctx context.Context, userID string, limit int64) ([]eventlog.Event, error) {
	if s == nil || s.reader == nil {
		return []eventlog.Event{}, nil
	}
	return s.reader.Recent(ctx, userID, limit)
}
