package service_test

import (
	"context"
	"errors"
	"sort"
	"strconv"
	"sync"
	"time"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/mail"
	"github.com/unclebandit/outreach-engine/internal/model"
)

// Mock ledger keyed by sender ID, rows kept in position order.
type MockLedger struct {
	mu      sync.Mutex
	rows    map[int][]model.ContactRow
	writes  []cellWrite
	readErr map[int]error
	failOn  model.LedgerField
}

type cellWrite struct {
	SenderID int
	Position int
	Field    model.LedgerField
	Value    string
}

func NewMockLedger() *MockLedger {
	return &MockLedger{rows: map[int][]model.ContactRow{}, readErr: map[int]error{}}
}

func (m *MockLedger) Add(senderID int, rows ...model.ContactRow) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.rows[senderID] = append(m.rows[senderID], rows...)
}

func (m *MockLedger) ReadAllRows(_ context.Context, sender *model.Sender) ([]model.ContactRow, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.readErr[sender.ID]; err != nil {
		return nil, err
	}
	out := append([]model.ContactRow(nil), m.rows[sender.ID]...)
	sort.Slice(out, func(i, j int) bool { return out[i].Position < out[j].Position })
	return out, nil
}

func (m *MockLedger) WriteCell(_ context.Context, sender *model.Sender, position int, field model.LedgerField, value string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if field == m.failOn {
		return errors.New("ledger write refused")
	}
	m.writes = append(m.writes, cellWrite{sender.ID, position, field, value})
	rows := m.rows[sender.ID]
	for i := range rows {
		if rows[i].Position != position {
			continue
		}
		switch field {
		case model.FieldStatus:
			rows[i].Status = value
		case model.FieldReplied:
			rows[i].Replied = value == model.FlagTrue
		case model.FieldBounced:
			rows[i].Bounced = value == model.FlagTrue
		case model.FieldFollowupCount:
			n, err := strconv.Atoi(value)
			if err != nil {
				return err
			}
			rows[i].FollowupCount = n
		case model.FieldLastSentDate:
			rows[i].LastSentDate = value
		case model.FieldNextSendDate:
			rows[i].NextSendDate = value
		case model.FieldLastError:
			rows[i].LastError = value
		}
		return nil
	}
	return errors.New("no such row")
}

func (m *MockLedger) Row(senderID, position int) model.ContactRow {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, r := range m.rows[senderID] {
		if r.Position == position {
			return r
		}
	}
	return model.ContactRow{}
}

func (m *MockLedger) Writes() []cellWrite {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]cellWrite(nil), m.writes...)
}

// Mock email log
type MockLogs struct {
	mu       sync.Mutex
	entries  []model.EmailLog
	countErr error
	appendErr error
}

func (m *MockLogs) Append(_ context.Context, entry *model.EmailLog) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.appendErr != nil {
		return m.appendErr
	}
	entry.ID = int64(len(m.entries) + 1)
	m.entries = append(m.entries, *entry)
	return nil
}

func (m *MockLogs) CountSince(_ context.Context, senderID int, since time.Time) (int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.countErr != nil {
		return 0, m.countErr
	}
	n := 0
	for _, e := range m.entries {
		if e.SenderID == senderID && !e.SentAt.Before(since) {
			n++
		}
	}
	return n, nil
}

func (m *MockLogs) ListBySender(_ context.Context, senderID int, limit int) ([]model.EmailLog, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []model.EmailLog
	for i := len(m.entries) - 1; i >= 0 && len(out) < limit; i-- {
		if m.entries[i].SenderID == senderID {
			out = append(out, m.entries[i])
		}
	}
	return out, nil
}

func (m *MockLogs) Entries() []model.EmailLog {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]model.EmailLog(nil), m.entries...)
}

// Mock sender directory
type MockSenders struct {
	mu      sync.Mutex
	senders []*model.Sender
	listErr error
}

func (m *MockSenders) ListAll(context.Context) ([]*model.Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.listErr != nil {
		return nil, m.listErr
	}
	out := make([]*model.Sender, len(m.senders))
	for i, s := range m.senders {
		c := *s
		out[i] = &c
	}
	return out, nil
}

func (m *MockSenders) GetByID(_ context.Context, id int) (*model.Sender, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.senders {
		if s.ID == id {
			c := *s
			return &c, nil
		}
	}
	return nil, appErrors.NewSenderNotFound(id)
}

func (m *MockSenders) SetPaused(_ context.Context, id int, paused bool) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.senders {
		if s.ID == id {
			s.Paused = paused
			return nil
		}
	}
	return appErrors.NewSenderNotFound(id)
}

func (m *MockSenders) Create(_ context.Context, s *model.Sender) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s.ID = len(m.senders) + 1
	m.senders = append(m.senders, s)
	return nil
}

// Mock transport. SendFunc decides the fate of each message; threads are
// served from the maps.
type MockTransport struct {
	mu       sync.Mutex
	SendFunc func(msg mail.Outgoing) error
	sent     []mail.Outgoing
	searches []mail.ThreadQuery
	results  map[string][]string // keyed by ThreadQuery.To, "" for other queries
	threads  map[string]*mail.Thread
	searchErr error
}

func NewMockTransport() *MockTransport {
	return &MockTransport{results: map[string][]string{}, threads: map[string]*mail.Thread{}}
}

func (m *MockTransport) Send(_ context.Context, _ *model.Sender, msg mail.Outgoing) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.SendFunc != nil {
		if err := m.SendFunc(msg); err != nil {
			return "", err
		}
	}
	m.sent = append(m.sent, msg)
	return "thread-" + msg.To, nil
}

func (m *MockTransport) SearchThreads(_ context.Context, _ *model.Sender, q mail.ThreadQuery) ([]string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.searches = append(m.searches, q)
	if m.searchErr != nil {
		return nil, m.searchErr
	}
	return m.results[q.To], nil
}

func (m *MockTransport) GetThread(_ context.Context, _ *model.Sender, id string) (*mail.Thread, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	th, ok := m.threads[id]
	if !ok {
		return nil, errors.New("thread not found")
	}
	return th, nil
}

func (m *MockTransport) Sent() []mail.Outgoing {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]mail.Outgoing(nil), m.sent...)
}

// Settable clock
type FakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func NewFakeClock(t time.Time) *FakeClock { return &FakeClock{t: t} }

func (c *FakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *FakeClock) Set(t time.Time) {
	c.mu.Lock()
	c.t = t
	c.mu.Unlock()
}

func (c *FakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

func day(y int, m time.Month, d, hour int) time.Time {
	return time.Date(y, m, d, hour, 0, 0, 0, time.Local)
}

func bounceErr(to string) error {
	return appErrors.NewBounce(to, "550 5.1.1 user unknown", errors.New("smtp: 550"))
}
