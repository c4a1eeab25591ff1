// Package app assembles the engine from configuration.
package app

import (
	"context"
	"fmt"
	"os"
	"time"

	"go.uber.org/multierr"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/ledger"
	"github.com/unclebandit/outreach-engine/internal/mail"
	"github.com/unclebandit/outreach-engine/internal/queue"
	"github.com/unclebandit/outreach-engine/internal/repository"
	"github.com/unclebandit/outreach-engine/internal/service"
	"github.com/unclebandit/outreach-engine/internal/sse"
)

// ScanQueueSize bounds the manual scan requests waiting for the worker.
const ScanQueueSize = 16

// App holds every long-lived collaborator of one process.
type App struct {
	Config *config.Config
	Log    *zap.Logger
	DB     *db.DB

	SenderRepo  *repository.SenderRepository
	LogRepo     *repository.EmailLogRepository
	ContactRepo *repository.ContactRepository

	Ledger    ledger.Store
	Transport mail.Transport
	Queue     queue.Queue

	Recorder      *service.Recorder
	Dispatcher    *service.Dispatcher
	Limiter       *service.RateLimiter
	Replies       *service.ReplyDetector
	Bounces       *service.BounceDetector
	Orchestrator  *service.Orchestrator
	Scheduler     *service.ReplyScheduler
	SenderService *service.SenderService
	Hub           *sse.Hub

	Scans chan service.ScanJob

	closers []func() error
}

// Build connects to the database and the configured backends and wires the
// engine. Close releases what Build opened.
func Build(ctx context.Context, cfg *config.Config, logger *zap.Logger) (*App, error) {
	if logger == nil {
		logger = zap.NewNop()
	}
	a := &App{Config: cfg, Log: logger, Hub: sse.NewHub(), Scans: make(chan service.ScanJob, ScanQueueSize)}

	conn, err := db.Open(ctx, cfg.Database.Driver, cfg.Database.DSN())
	if err != nil {
		return nil, err
	}
	a.DB = conn
	a.closers = append(a.closers, conn.Close)
	if err := conn.EnsureSchema(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.SenderRepo = &repository.SenderRepository{DB: conn}
	a.LogRepo = &repository.EmailLogRepository{DB: conn}
	a.ContactRepo = &repository.ContactRepository{DB: conn}

	if a.Ledger, err = a.buildLedger(ctx); err != nil {
		a.Close()
		return nil, err
	}
	a.Transport = a.buildTransport()
	if a.Queue, err = a.buildQueue(); err != nil {
		a.Close()
		return nil, err
	}

	a.wire()
	logger.Info("engine assembled",
		zap.String("db_driver", cfg.Database.Driver),
		zap.String("ledger", cfg.Ledger.Backend),
		zap.String("mail", cfg.Mail.Backend),
		zap.String("events", cfg.Events.Backend))
	return a, nil
}

func (a *App) buildLedger(ctx context.Context) (ledger.Store, error) {
	cfg := a.Config.Ledger
	if cfg.Backend == config.LedgerSQL {
		return a.ContactRepo, nil
	}
	key, err := os.ReadFile(cfg.ServiceAccountFile)
	if err != nil {
		return nil, fmt.Errorf("read service account key: %w", err)
	}
	return ledger.NewSheetsStore(ctx, key, cfg.DefaultSheetName, a.Log.Named("sheets"))
}

func (a *App) buildTransport() mail.Transport {
	cfg := a.Config.Mail
	if cfg.Backend == config.MailSMTP {
		return mail.NewSMTPTransport(cfg.SMTPAddr, cfg.IMAPAddr, cfg.Mailboxes(), a.Log.Named("smtp"))
	}
	return mail.NewGmailTransport(a.Log.Named("gmail"))
}

func (a *App) buildQueue() (queue.Queue, error) {
	cfg := a.Config.Events
	if cfg.Backend == config.EventsAMQP {
		q, err := queue.DialAMQP(cfg.AMQPURL, a.Log.Named("amqp"))
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, q.Close)
		return q, nil
	}
	return queue.NewInMemoryQueue(a.Log.Named("queue")), nil
}

func (a *App) wire() {
	engine := a.Config.Engine
	policy := engine.Policy()

	a.Recorder = &service.Recorder{Logs: a.LogRepo, Queue: a.Queue, Log: a.Log}
	a.Limiter = &service.RateLimiter{Logs: a.LogRepo, Log: a.Log}
	a.Dispatcher = &service.Dispatcher{
		Ledger:    a.Ledger,
		Transport: a.Transport,
		Recorder:  a.Recorder,
		Policy:    policy,
		Log:       a.Log.Named("dispatcher"),
	}
	a.Replies = &service.ReplyDetector{
		Ledger:    a.Ledger,
		Transport: a.Transport,
		Recorder:  a.Recorder,
		Log:       a.Log.Named("replies"),
	}
	a.Bounces = &service.BounceDetector{
		Ledger:    a.Ledger,
		Transport: a.Transport,
		Recorder:  a.Recorder,
		Log:       a.Log.Named("bounces"),
	}
	a.Orchestrator = &service.Orchestrator{
		Senders:       a.SenderRepo,
		Ledger:        a.Ledger,
		Dispatcher:    a.Dispatcher,
		Limiter:       a.Limiter,
		Bounces:       a.Bounces,
		Policy:        policy,
		DailyCap:      engine.MaxEmailsPerDay,
		MinDelay:      time.Duration(engine.MinDelaySeconds) * time.Second,
		MaxDelay:      time.Duration(engine.MaxDelaySeconds) * time.Second,
		CycleInterval: engine.CycleInterval(),
		Log:           a.Log.Named("orchestrator"),
	}
	a.Scheduler = &service.ReplyScheduler{
		Senders:  a.SenderRepo,
		Detector: a.Replies,
		Hour:     engine.ReplyScanHour,
		Log:      a.Log.Named("scheduler"),
	}
	a.SenderService = &service.SenderService{
		SenderRepo: a.SenderRepo,
		LogRepo:    a.LogRepo,
		Ledger:     a.Ledger,
		Limiter:    a.Limiter,
		Policy:     policy,
		DailyCap:   engine.MaxEmailsPerDay,
	}
}

// ScanWorker returns a worker draining a.Scans.
func (a *App) ScanWorker() *service.Worker {
	return service.NewWorker(a.SenderRepo, a.Replies, a.Bounces, a.Scans, a.Log.Named("scans"))
}

// StreamEvents forwards the event bus to the SSE hub.
func (a *App) StreamEvents() error {
	if a.Config.Events.Backend == config.EventsMemory {
		a.Log.Warn("in-process event bus: the stream only carries events from this process, set EVENTS_BACKEND=amqp to see worker sends",
			zap.String("events_backend", a.Config.Events.Backend))
	}
	return queue.StartEventSubscriber(a.Queue, a.Hub.Publish, a.Log.Named("events"))
}

// Close releases connections in reverse order of opening.
func (a *App) Close() error {
	var errs error
	for i := len(a.closers) - 1; i >= 0; i-- {
		errs = multierr.Append(errs, a.closers[i]())
	}
	a.closers = nil
	return errs
}
