package service

import (
	"context"
	"time"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/repository"
)

// ReplyScheduler runs the reply scan for every sender with a ledger once a
// day at Hour local time. Paused senders are scanned too.
type ReplyScheduler struct {
	Senders  repository.SenderRepositoryInterface
	Detector *ReplyDetector
	Hour     int
	Now      func() time.Time
	Sleep    func(ctx context.Context, d time.Duration) error
	Log      *zap.Logger
}

// NextRun is the first time at hour:00 strictly after from.
func NextRun(from time.Time, hour int) time.Time {
	y, m, d := from.Date()
	next := time.Date(y, m, d, hour, 0, 0, 0, from.Location())
	if !next.After(from) {
		next = next.AddDate(0, 0, 1)
	}
	return next
}

// RunOnce scans all senders and returns the number of replies found.
func (s *ReplyScheduler) RunOnce(ctx context.Context) (int, error) {
	log := logger(s.Log)
	senders, err := s.Senders.ListAll(ctx)
	if err != nil {
		return 0, err
	}
	total := 0
	for _, sender := range senders {
		if err := ctx.Err(); err != nil {
			return total, err
		}
		if !sender.HasLedger() {
			continue
		}
		n, err := s.Detector.Scan(ctx, sender)
		total += n
		if err != nil {
			if ctx.Err() != nil {
				return total, ctx.Err()
			}
			log.Warn("reply scan failed", zap.Int("sender_id", sender.ID), zap.Error(err))
		}
	}
	log.Info("reply scan finished", zap.Int("replies", total))
	return total, nil
}

// Run waits for each scheduled time and scans until ctx is cancelled.
func (s *ReplyScheduler) Run(ctx context.Context) error {
	sleep := s.Sleep
	if sleep == nil {
		sleep = sleepCtx
	}
	for {
		current := now(s.Now)
		next := NextRun(current, s.Hour)
		logger(s.Log).Debug("next reply scan", zap.Time("at", next))
		if err := sleep(ctx, next.Sub(current)); err != nil {
			return nil
		}
		if _, err := s.RunOnce(ctx); err != nil {
			if ctx.Err() != nil {
				return nil
			}
			logger(s.Log).Error("reply scan aborted", zap.Error(err))
		}
	}
}
