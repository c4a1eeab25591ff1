package service

import (
	"context"
	"errors"
	"math/rand"
	"sync"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/ledger"
	"github.com/unclebandit/outreach-engine/internal/model"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/sequence"
)

// State is the phase the orchestrator is in.
type State string

const (
	StateIdle            State = "IDLE"
	StateScanningBounces State = "SCANNING_BOUNCES"
	StateReadingLedger   State = "READING_LEDGER"
	StateProcessingRow   State = "PROCESSING_ROW"
	StateSleeping        State = "SLEEPING"
	StateCycleSleep      State = "CYCLE_SLEEP"
)

// ErrAlreadyRunning is returned by Start on a running orchestrator.
var ErrAlreadyRunning = errors.New("orchestrator already running")

// CycleReport counts what one pass over all senders did.
type CycleReport struct {
	ID        string `json:"id"`
	Senders   int    `json:"senders"`
	Sent      int    `json:"sent"`
	Bounced   int    `json:"bounced"`
	Failed    int    `json:"failed"`
	CapHits   int    `json:"cap_hits"`
	Processed int    `json:"processed"`
}

// Orchestrator walks every active sender's ledger and sends what is due.
// Sends are sequential, with a randomized pause after each attempt.
type Orchestrator struct {
	Senders    repository.SenderRepositoryInterface
	Ledger     ledger.Store
	Dispatcher *Dispatcher
	Limiter    *RateLimiter
	Bounces    *BounceDetector
	Policy     sequence.Policy

	// Global defaults; senders may override cap and delays.
	DailyCap      int
	MinDelay      time.Duration
	MaxDelay      time.Duration
	CycleInterval time.Duration

	Now func() time.Time
	// Sleep waits for d unless ctx ends first.
	Sleep func(ctx context.Context, d time.Duration) error
	// Jitter picks a pause in [lo,hi].
	Jitter func(lo, hi time.Duration) time.Duration
	Log    *zap.Logger

	mu     sync.Mutex
	state  State
	cancel context.CancelFunc
	done   chan struct{}
}

func (o *Orchestrator) State() State {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.state == "" {
		return StateIdle
	}
	return o.state
}

func (o *Orchestrator) setState(s State) {
	o.mu.Lock()
	o.state = s
	o.mu.Unlock()
}

func (o *Orchestrator) sleep(ctx context.Context, d time.Duration) error {
	if o.Sleep != nil {
		return o.Sleep(ctx, d)
	}
	return sleepCtx(ctx, d)
}

func (o *Orchestrator) jitter(lo, hi time.Duration) time.Duration {
	if o.Jitter != nil {
		return o.Jitter(lo, hi)
	}
	return uniformSeconds(lo, hi)
}

// uniformSeconds picks a whole number of seconds in [lo,hi].
func uniformSeconds(lo, hi time.Duration) time.Duration {
	a, b := int64(lo/time.Second), int64(hi/time.Second)
	if b <= a {
		return time.Duration(a) * time.Second
	}
	return time.Duration(a+rand.Int63n(b-a+1)) * time.Second
}

// RunCycle makes one pass over all senders. Only cancellation of ctx is
// returned as an error; everything else is logged.
func (o *Orchestrator) RunCycle(ctx context.Context) (CycleReport, error) {
	report := CycleReport{ID: uuid.NewString()}
	log := logger(o.Log).With(zap.String("cycle_id", report.ID))
	defer o.setState(StateIdle)

	senders, err := o.Senders.ListAll(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return report, ctx.Err()
		}
		log.Error("listing senders failed", zap.Error(err))
		return report, nil
	}

	for _, sender := range senders {
		if err := ctx.Err(); err != nil {
			return report, err
		}
		if sender.Paused || !sender.HasLedger() {
			continue
		}
		report.Senders++
		if err := o.processSender(ctx, log, sender, &report); err != nil {
			return report, err
		}
	}

	log.Info("cycle finished",
		zap.Int("senders", report.Senders),
		zap.Int("sent", report.Sent),
		zap.Int("bounced", report.Bounced),
		zap.Int("failed", report.Failed))
	return report, nil
}

func (o *Orchestrator) processSender(ctx context.Context, log *zap.Logger, sender *model.Sender, report *CycleReport) error {
	log = log.With(zap.Int("sender_id", sender.ID))

	if o.Bounces != nil {
		o.setState(StateScanningBounces)
		if n, err := o.Bounces.Scan(ctx, sender); err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			log.Warn("bounce scan failed", zap.Error(err))
		} else if n > 0 {
			log.Info("bounces recorded", zap.Int("count", n))
		}
	}

	o.setState(StateReadingLedger)
	rows, err := o.Ledger.ReadAllRows(ctx, sender)
	if err != nil {
		if ctx.Err() != nil {
			return ctx.Err()
		}
		log.Warn("ledger unavailable, skipping sender", zap.Error(err))
		return nil
	}

	limit := o.DailyCap
	if sender.DailyCap > 0 {
		limit = sender.DailyCap
	}
	minDelay, maxDelay := o.delays(sender)

	for _, row := range rows {
		if err := ctx.Err(); err != nil {
			return err
		}
		o.setState(StateProcessingRow)
		if !o.Policy.IsDue(row, now(o.Now)) {
			continue
		}
		if !o.Limiter.Allow(ctx, sender, limit) {
			report.CapHits++
			log.Info("daily limit reached", zap.Int("limit", limit))
			return nil
		}

		report.Processed++
		outcome, err := o.Dispatcher.Dispatch(ctx, sender, row, o.Policy.Advance(row.FollowupCount))
		switch outcome {
		case OutcomeSent:
			report.Sent++
		case OutcomeBounced:
			report.Bounced++
		default:
			report.Failed++
		}
		if err != nil {
			log.Warn("dispatch problem",
				zap.String("outcome", outcome.String()),
				zap.String("email", row.Email),
				zap.Error(err))
		}

		o.setState(StateSleeping)
		if err := o.sleep(ctx, o.jitter(minDelay, maxDelay)); err != nil {
			return err
		}
	}
	return nil
}

func (o *Orchestrator) delays(sender *model.Sender) (time.Duration, time.Duration) {
	minDelay, maxDelay := o.MinDelay, o.MaxDelay
	if sender.MinDelaySeconds > 0 {
		minDelay = time.Duration(sender.MinDelaySeconds) * time.Second
	}
	if sender.MaxDelaySeconds > 0 {
		maxDelay = time.Duration(sender.MaxDelaySeconds) * time.Second
	}
	if maxDelay < minDelay {
		maxDelay = minDelay
	}
	return minDelay, maxDelay
}

// Run repeats cycles every CycleInterval until ctx is cancelled.
func (o *Orchestrator) Run(ctx context.Context) error {
	log := logger(o.Log)
	log.Info("orchestrator started", zap.Duration("cycle_interval", o.CycleInterval))
	for {
		if _, err := o.RunCycle(ctx); err != nil {
			break
		}
		o.setState(StateCycleSleep)
		if err := o.sleep(ctx, o.CycleInterval); err != nil {
			break
		}
		o.setState(StateIdle)
	}
	o.setState(StateIdle)
	log.Info("orchestrator stopped")
	return nil
}

// Start runs the loop in the background until Stop or ctx ends.
func (o *Orchestrator) Start(ctx context.Context) error {
	o.mu.Lock()
	defer o.mu.Unlock()
	if o.done != nil {
		return ErrAlreadyRunning
	}
	ctx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	o.cancel, o.done = cancel, done
	go func() {
		defer close(done)
		_ = o.Run(ctx)
	}()
	return nil
}

// Stop cancels the loop and waits for it to return.
func (o *Orchestrator) Stop() {
	o.mu.Lock()
	cancel, done := o.cancel, o.done
	o.mu.Unlock()
	if done == nil {
		return
	}
	cancel()
	<-done

	o.mu.Lock()
	o.cancel, o.done = nil, nil
	o.mu.Unlock()
}
