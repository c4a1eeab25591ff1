package service

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/repository"
)

// ScanKind selects which detector a ScanJob runs.
type ScanKind string

const (
	ScanReplies ScanKind = "replies"
	ScanBounces ScanKind = "bounces"
)

// ScanJob asks for an out-of-schedule scan of one sender's mailbox.
type ScanJob struct {
	SenderID int      `json:"sender_id"`
	Kind     ScanKind `json:"kind"`
}

func ParseScanKind(s string) (ScanKind, error) {
	switch ScanKind(s) {
	case ScanReplies, ScanBounces:
		return ScanKind(s), nil
	}
	return "", fmt.Errorf("unknown scan kind %q", s)
}

// ScanResult is reported for every processed job.
type ScanResult struct {
	Job   ScanJob
	Found int
	Err   error
}

// Worker processes scan jobs one at a time
type Worker struct {
	Senders repository.SenderRepositoryInterface
	Replies *ReplyDetector
	Bounces *BounceDetector
	JobChan <-chan ScanJob
	// OnResult, when set, is called after each job.
	OnResult func(ScanResult)
	Log      *zap.Logger
}

// Constructor
func NewWorker(senders repository.SenderRepositoryInterface, replies *ReplyDetector, bounces *BounceDetector, jobChan <-chan ScanJob, logger *zap.Logger) *Worker {
	return &Worker{
		Senders: senders,
		Replies: replies,
		Bounces: bounces,
		JobChan: jobChan,
		Log:     logger,
	}
}

// Start processes jobs until ctx ends or the channel is closed.
func (w *Worker) Start(ctx context.Context) error {
	for {
		select {
		case <-ctx.Done():
			return nil
		case job, ok := <-w.JobChan:
			if !ok {
				return nil
			}
			found, err := w.Process(ctx, job)
			if err != nil {
				logger(w.Log).Warn("scan job failed",
					zap.Int("sender_id", job.SenderID),
					zap.String("kind", string(job.Kind)),
					zap.Error(err))
			}
			if w.OnResult != nil {
				w.OnResult(ScanResult{Job: job, Found: found, Err: err})
			}
		}
	}
}

// Process runs a single job and returns how many contacts it marked.
func (w *Worker) Process(ctx context.Context, job ScanJob) (int, error) {
	sender, err := w.Senders.GetByID(ctx, job.SenderID)
	if err != nil {
		return 0, err
	}
	if !sender.HasLedger() {
		return 0, nil
	}
	switch job.Kind {
	case ScanReplies:
		return w.Replies.Scan(ctx, sender)
	case ScanBounces:
		return w.Bounces.Scan(ctx, sender)
	default:
		return 0, fmt.Errorf("unknown scan kind %q", job.Kind)
	}
}
