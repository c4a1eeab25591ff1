package mail

import (
	"bytes"
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/emersion/go-imap"
	"github.com/emersion/go-sasl"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
	"github.com/unclebandit/outreach-engine/internal/model"
)

type fakeIMAP struct {
	mailboxes map[string][]string
	selected  string
	loggedIn  string
	loggedOut bool
}

func (f *fakeIMAP) Login(username, _ string) error {
	f.loggedIn = username
	return nil
}

func (f *fakeIMAP) Select(name string, _ bool) (*imap.MailboxStatus, error) {
	if _, ok := f.mailboxes[name]; !ok {
		return nil, errors.New("no such mailbox")
	}
	f.selected = name
	return &imap.MailboxStatus{Name: name}, nil
}

// UidSearch returns every message; filtering is done by the caller.
func (f *fakeIMAP) UidSearch(_ *imap.SearchCriteria) ([]uint32, error) {
	var uids []uint32
	for i := range f.mailboxes[f.selected] {
		uids = append(uids, uint32(i+1))
	}
	return uids, nil
}

func (f *fakeIMAP) UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error {
	defer close(ch)
	// servers answer BODY.PEEK[] with a plain BODY[] section
	section := &imap.BodySectionName{}
	for i, raw := range f.mailboxes[f.selected] {
		uid := uint32(i + 1)
		if !seqset.Contains(uid) {
			continue
		}
		ch <- &imap.Message{
			Uid:  uid,
			Body: map[*imap.BodySectionName]imap.Literal{section: bytes.NewBufferString(raw)},
		}
	}
	return nil
}

func (f *fakeIMAP) Logout() error {
	f.loggedOut = true
	return nil
}

func newFakeTransport(f *fakeIMAP) *SMTPTransport {
	tr := NewSMTPTransport("smtp.test:587", "imap.test:993", []string{"INBOX", "Sent"}, nil)
	tr.dial = func(string) (imapClient, error) { return f, nil }
	return tr
}

const (
	sentMsg = "From: ada@example.com\r\nTo: jane@acme.io\r\nSubject: Hello\r\n" +
		"Date: Fri, 01 Mar 2024 09:00:00 +0000\r\nMessage-Id: <root@example.com>\r\n\r\nHi Jane\r\n"
	replyMsg = "From: Jane <jane@acme.io>\r\nTo: ada@example.com\r\nSubject: Re: Hello\r\n" +
		"Date: Sat, 02 Mar 2024 10:00:00 +0000\r\nMessage-Id: <reply@acme.io>\r\n" +
		"In-Reply-To: <root@example.com>\r\nReferences: <root@example.com>\r\n\r\nSounds good\r\n"
	otherMsg = "From: bob@else.io\r\nTo: ada@example.com\r\nSubject: Lunch\r\n" +
		"Date: Sat, 02 Mar 2024 11:00:00 +0000\r\nMessage-Id: <lunch@else.io>\r\n\r\nLunch?\r\n"
)

func TestSMTPTransport_SearchThreadsGroupsConversation(t *testing.T) {
	f := &fakeIMAP{mailboxes: map[string][]string{
		"INBOX": {replyMsg, otherMsg},
		"Sent":  {sentMsg},
	}}
	tr := newFakeTransport(f)
	sender := &model.Sender{ID: 1, Email: "ada@example.com", MailToken: "app-password"}

	ids, err := tr.SearchThreads(context.Background(), sender, ThreadQuery{To: "jane@acme.io"})
	require.NoError(t, err)
	assert.Equal(t, []string{"root@example.com"}, ids)
	assert.Equal(t, "ada@example.com", f.loggedIn)
	assert.True(t, f.loggedOut)

	thread, err := tr.GetThread(context.Background(), sender, "root@example.com")
	require.NoError(t, err)
	require.Len(t, thread.Messages, 2)
	assert.Equal(t, "Sent/1", thread.Messages[0].ID)
	assert.True(t, thread.Messages[1].FromAddress("jane@acme.io"))
	assert.Equal(t, time.Date(2024, 3, 2, 10, 0, 0, 0, time.UTC).Unix(), thread.Messages[1].Date.Unix())
}

func TestSMTPTransport_MissingMailboxSkipped(t *testing.T) {
	f := &fakeIMAP{mailboxes: map[string][]string{"INBOX": {otherMsg}}}
	tr := newFakeTransport(f)

	ids, err := tr.SearchThreads(context.Background(), &model.Sender{Email: "ada@example.com"}, BounceQuery(time.Now()))
	require.NoError(t, err)
	assert.Equal(t, []string{"lunch@else.io"}, ids)
}

func TestSMTPTransport_Send(t *testing.T) {
	var gotFrom string
	var gotTo []string
	var gotRaw []byte
	tr := NewSMTPTransport("smtp.test:587", "imap.test:993", nil, nil)
	tr.sendMail = func(addr string, a sasl.Client, from string, to []string, r io.Reader) error {
		gotFrom, gotTo = from, to
		gotRaw, _ = io.ReadAll(r)
		return nil
	}
	sender := &model.Sender{Email: "ada@example.com", FullName: "Ada", MailToken: "pw"}

	id, err := tr.Send(context.Background(), sender, Outgoing{To: "jane@acme.io", Subject: "Hello", Body: "Hi"})
	require.NoError(t, err)
	assert.Equal(t, "ada@example.com", gotFrom)
	assert.Equal(t, []string{"jane@acme.io"}, gotTo)
	parsed, err := Parse(gotRaw)
	require.NoError(t, err)
	assert.Equal(t, id, parsed.MessageID)
}

func TestSMTPTransport_SendBounce(t *testing.T) {
	tr := NewSMTPTransport("smtp.test:587", "imap.test:993", nil, nil)
	tr.sendMail = func(string, sasl.Client, string, []string, io.Reader) error {
		return errors.New("smtp: 550 5.1.1 Recipient address rejected")
	}
	_, err := tr.Send(context.Background(), &model.Sender{Email: "ada@example.com"}, Outgoing{To: "ghost@nowhere.io"})
	assert.True(t, appErrors.IsBounce(err))
}
