package main

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/goleak"

	"github.com/unclebandit/outreach-engine/internal/app"
	"github.com/unclebandit/outreach-engine/internal/config"
	"github.com/unclebandit/outreach-engine/internal/db"
	"github.com/unclebandit/outreach-engine/internal/mail"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// MockTransport accepts every message
type MockTransport struct {
	sent chan mail.Outgoing
}

func (m *MockTransport) Send(_ context.Context, _ *model.Sender, msg mail.Outgoing) (string, error) {
	m.sent <- msg
	return "t-" + msg.To, nil
}

func (m *MockTransport) SearchThreads(context.Context, *model.Sender, mail.ThreadQuery) ([]string, error) {
	return nil, nil
}

func (m *MockTransport) GetThread(_ context.Context, _ *model.Sender, id string) (*mail.Thread, error) {
	return &mail.Thread{ID: id}, nil
}

func TestWorker(t *testing.T) {
	defer goleak.VerifyNone(t)

	cfg := &config.Config{
		Database: config.DatabaseConfig{Driver: db.DriverSQLite, Path: ":memory:"},
		Engine: config.EngineConfig{
			MaxEmailsPerDay:      50,
			MaxFollowups:         5,
			FollowupDelayDays:    7,
			Followup2DelayDays:   60,
			CycleIntervalSeconds: 3600,
			ReplyScanHour:        2,
		},
		Ledger: config.LedgerConfig{Backend: config.LedgerSQL},
		Mail:   config.MailConfig{Backend: config.MailSMTP},
		Events: config.EventsConfig{Backend: config.EventsMemory},
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	a, err := app.Build(ctx, cfg, nil)
	require.NoError(t, err)
	defer a.Close()

	transport := &MockTransport{sent: make(chan mail.Outgoing, 1)}
	a.Dispatcher.Transport = transport
	a.Bounces.Transport = transport
	a.Replies.Transport = transport

	sender := &model.Sender{Email: "me@example.com", LedgerID: "sql", EmailTemplate: "Hi {Name}"}
	require.NoError(t, a.SenderRepo.Create(ctx, sender))
	require.NoError(t, a.ContactRepo.Insert(ctx, sender.ID, model.ContactRow{Position: 2, Email: "bob@acme.io", Name: "Bob"}))

	done := make(chan error)
	go func() { done <- run(ctx, a) }()

	select {
	case msg := <-transport.sent:
		assert.Equal(t, "Hi Bob", msg.Body)
	case <-time.After(5 * time.Second):
		t.Fatal("no email sent")
	}
	require.Eventually(t, func() bool {
		n, err := a.Limiter.SentToday(context.Background(), sender.ID)
		return err == nil && n == 1
	}, 5*time.Second, 20*time.Millisecond)

	cancel()
	require.NoError(t, <-done)

	rows, err := a.ContactRepo.ReadAllRows(context.Background(), sender)
	require.NoError(t, err)
	require.Len(t, rows, 1)
	assert.Equal(t, 1, rows[0].FollowupCount)
	assert.NotEmpty(t, rows[0].NextSendDate)
}
