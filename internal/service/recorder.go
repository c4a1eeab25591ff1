package service

import (
	"context"
	"errors"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
)

// Recorder appends email log entries and announces each one on the event
// bus. Publishing is best effort.
type Recorder struct {
	Logs  repository.EmailLogRepositoryInterface
	Queue queue.Queue
	Log   *zap.Logger
	Now   func() time.Time
}

func (r *Recorder) Record(ctx context.Context, senderID int, to, status, errText string) error {
	entry := &model.EmailLog{
		SenderID: senderID,
		ToEmail:  to,
		Status:   status,
		Error:    errText,
		SentAt:   now(r.Now),
	}
	if err := r.Logs.Append(ctx, entry); err != nil {
		return err
	}

	if r.Queue == nil {
		return nil
	}
	if err := r.Queue.Publish(queue.TopicOutreachEvents, model.EventFromLog(*entry)); err != nil && !errors.Is(err, queue.ErrNoSubscribers) {
		logger(r.Log).Warn("outreach event not published", zap.Int("sender_id", senderID), zap.Error(err))
	}
	return nil
}

func now(clock func() time.Time) time.Time {
	if clock == nil {
		return time.Now()
	}
	return clock()
}

func logger(l *zap.Logger) *zap.Logger {
	if l == nil {
		return zap.NewNop()
	}
	return l
}

// sleepCtx waits for d or until ctx is done.
func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}
