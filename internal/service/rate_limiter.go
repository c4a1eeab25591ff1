package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/sequence"
)

// RateLimiter caps the emails a sender gets through per local day. Every
// log entry since midnight counts, replies and bounces included.
type RateLimiter struct {
	Logs repository.EmailLogRepositoryInterface
	Now  func() time.Time
	Log  *zap.Logger
}

func (r *RateLimiter) SentToday(ctx context.Context, senderID int) (int, error) {
	midnight := sequence.DateOf(now(r.Now))
	return r.Logs.CountSince(ctx, senderID, midnight)
}

// Allow reports whether the sender is still below limit today. A failed
// count is treated as an exhausted limit.
func (r *RateLimiter) Allow(ctx context.Context, sender *model.Sender, limit int) bool {
	count, err := r.SentToday(ctx, sender.ID)
	if err != nil {
		logger(r.Log).Warn("daily count unavailable", zap.Int("sender_id", sender.ID), zap.Error(err))
		return false
	}
	return count < limit
}
