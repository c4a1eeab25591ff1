package mail

import (
	"context"
	"fmt"
	"io"
	"sort"

	"github.com/emersion/go-imap"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// imapClient is the part of *client.Client the transport uses.
type imapClient interface {
	Login(username, password string) error
	Select(name string, readOnly bool) (*imap.MailboxStatus, error)
	UidSearch(criteria *imap.SearchCriteria) ([]uint32, error)
	UidFetch(seqset *imap.SeqSet, items []imap.FetchItem, ch chan *imap.Message) error
	Logout() error
}

type headerMatch struct {
	key, value string
}

// SearchThreads groups matching messages into threads keyed by the first
// Message-ID of their reference chain. With q.To set, both directions of the
// conversation are searched and only threads that include a message to q.To
// are returned.
func (t *SMTPTransport) SearchThreads(ctx context.Context, sender *model.Sender, q ThreadQuery) ([]string, error) {
	msgs, err := t.fetch(ctx, sender, SearchCriteria(q))
	if err != nil {
		return nil, err
	}

	seen := map[string]bool{}
	var ids []string
	for _, threadID := range threadOrder(msgs) {
		if seen[threadID] {
			continue
		}
		if q.To != "" && !threadSentTo(msgs, threadID, q.To) {
			continue
		}
		seen[threadID] = true
		ids = append(ids, threadID)
	}
	return ids, nil
}

func (t *SMTPTransport) GetThread(ctx context.Context, sender *model.Sender, threadID string) (*Thread, error) {
	criteria := imap.NewSearchCriteria()
	criteria.Or = [][2]*imap.SearchCriteria{anyHeader([]headerMatch{
		{"Message-Id", threadID},
		{"References", threadID},
		{"In-Reply-To", threadID},
	}).Or[0]}

	msgs, err := t.fetch(ctx, sender, criteria)
	if err != nil {
		return nil, err
	}

	thread := &Thread{ID: threadID}
	seen := map[string]bool{}
	for _, m := range msgs {
		if ThreadRoot(m) != threadID {
			continue
		}
		if m.MessageID != "" {
			if seen[m.MessageID] {
				continue
			}
			seen[m.MessageID] = true
		}
		m.ThreadID = threadID
		thread.Messages = append(thread.Messages, m)
	}
	sort.SliceStable(thread.Messages, func(i, j int) bool {
		return thread.Messages[i].Date.Before(thread.Messages[j].Date)
	})
	return thread, nil
}

// ThreadRoot is the ID of the conversation a message belongs to.
func ThreadRoot(m Message) string {
	switch {
	case len(m.References) > 0:
		return m.References[0]
	case m.InReplyTo != "":
		return m.InReplyTo
	default:
		return m.MessageID
	}
}

// SearchCriteria translates q into an IMAP SEARCH.
func SearchCriteria(q ThreadQuery) *imap.SearchCriteria {
	criteria := imap.NewSearchCriteria()
	if q.To != "" {
		criteria.Or = append(criteria.Or, [2]*imap.SearchCriteria{
			headerCriteria("To", q.To),
			headerCriteria("From", q.To),
		})
	}

	var alts []headerMatch
	for _, from := range q.AnyFrom {
		alts = append(alts, headerMatch{"From", from})
	}
	for _, subject := range q.AnySubject {
		alts = append(alts, headerMatch{"Subject", subject})
	}
	switch len(alts) {
	case 0:
	case 1:
		criteria.Header.Add(alts[0].key, alts[0].value)
	default:
		criteria.Or = append(criteria.Or, anyHeader(alts).Or...)
	}

	if !q.Since.IsZero() {
		criteria.Since = q.Since
	}
	return criteria
}

func headerCriteria(key, value string) *imap.SearchCriteria {
	c := imap.NewSearchCriteria()
	c.Header.Add(key, value)
	return c
}

// anyHeader matches any of alts. It needs at least two entries and always
// returns a criteria with a single Or pair.
func anyHeader(alts []headerMatch) *imap.SearchCriteria {
	left := headerCriteria(alts[0].key, alts[0].value)
	for _, alt := range alts[1:] {
		c := imap.NewSearchCriteria()
		c.Or = [][2]*imap.SearchCriteria{{left, headerCriteria(alt.key, alt.value)}}
		left = c
	}
	return left
}

func (t *SMTPTransport) fetch(ctx context.Context, sender *model.Sender, criteria *imap.SearchCriteria) ([]Message, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	c, err := t.dial(t.IMAPAddr)
	if err != nil {
		return nil, fmt.Errorf("imap dial: %w", err)
	}
	defer c.Logout()

	if err := c.Login(sender.Email, sender.MailToken); err != nil {
		return nil, fmt.Errorf("imap login: %w", err)
	}

	var msgs []Message
	for _, mailbox := range t.Mailboxes {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		found, err := t.fetchMailbox(c, mailbox, criteria)
		if err != nil {
			t.log.Warn("imap mailbox skipped", zap.String("mailbox", mailbox), zap.Error(err))
			continue
		}
		msgs = append(msgs, found...)
	}
	return msgs, nil
}

func (t *SMTPTransport) fetchMailbox(c imapClient, mailbox string, criteria *imap.SearchCriteria) ([]Message, error) {
	if _, err := c.Select(mailbox, true); err != nil {
		return nil, err
	}
	uids, err := c.UidSearch(criteria)
	if err != nil {
		return nil, err
	}
	if len(uids) == 0 {
		return nil, nil
	}

	seqset := new(imap.SeqSet)
	seqset.AddNum(uids...)
	section := &imap.BodySectionName{Peek: true}
	items := []imap.FetchItem{section.FetchItem(), imap.FetchUid}

	ch := make(chan *imap.Message, 10)
	done := make(chan error, 1)
	go func() {
		done <- c.UidFetch(seqset, items, ch)
	}()

	var msgs []Message
	for im := range ch {
		body := im.GetBody(section)
		if body == nil {
			continue
		}
		raw, err := io.ReadAll(body)
		if err != nil {
			continue
		}
		m, err := Parse(raw)
		if err != nil {
			t.log.Debug("unparsable message", zap.String("mailbox", mailbox), zap.Uint32("uid", im.Uid), zap.Error(err))
			continue
		}
		m.ID = fmt.Sprintf("%s/%d", mailbox, im.Uid)
		m.ThreadID = ThreadRoot(m)
		msgs = append(msgs, m)
	}
	if err := <-done; err != nil {
		return nil, err
	}
	return msgs, nil
}

func threadOrder(msgs []Message) []string {
	var ids []string
	for _, m := range msgs {
		if root := ThreadRoot(m); root != "" {
			ids = append(ids, root)
		}
	}
	return ids
}

func threadSentTo(msgs []Message, threadID, address string) bool {
	for _, m := range msgs {
		if ThreadRoot(m) == threadID && m.SentTo(address) {
			return true
		}
	}
	return false
}
