package mail

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"sort"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/oauth2"
	"golang.org/x/oauth2/google"
	"google.golang.org/api/gmail/v1"
	"google.golang.org/api/option"

	"github.com/unclebandit/outreach-engine/internal/model"
)

const gmailUser = "me"

// authorizedUser is the token blob stored in Sender.MailToken after the
// sender connected their Gmail account.
type authorizedUser struct {
	Token        string    `json:"token"`
	AccessToken  string    `json:"access_token"`
	RefreshToken string    `json:"refresh_token"`
	TokenURI     string    `json:"token_uri"`
	ClientID     string    `json:"client_id"`
	ClientSecret string    `json:"client_secret"`
	Scopes       []string  `json:"scopes"`
	Expiry       time.Time `json:"expiry"`
}

// GmailTransport talks to the Gmail API on behalf of each sender.
type GmailTransport struct {
	newService func(ctx context.Context, sender *model.Sender) (*gmail.Service, error)
	log        *zap.Logger
	now        func() time.Time
}

// NewGmailTransport authenticates every call with the sender's stored token.
func NewGmailTransport(logger *zap.Logger) *GmailTransport {
	t := newGmailTransport(logger)
	t.newService = func(ctx context.Context, sender *model.Sender) (*gmail.Service, error) {
		ts, err := tokenSource(ctx, sender.MailToken)
		if err != nil {
			return nil, fmt.Errorf("gmail token for sender %d: %w", sender.ID, err)
		}
		return gmail.NewService(ctx, option.WithTokenSource(ts))
	}
	return t
}

// NewGmailTransportWithOptions ignores sender tokens and builds every client
// from opts.
func NewGmailTransportWithOptions(logger *zap.Logger, opts ...option.ClientOption) *GmailTransport {
	t := newGmailTransport(logger)
	t.newService = func(ctx context.Context, _ *model.Sender) (*gmail.Service, error) {
		return gmail.NewService(ctx, opts...)
	}
	return t
}

func newGmailTransport(logger *zap.Logger) *GmailTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &GmailTransport{log: logger, now: time.Now}
}

func tokenSource(ctx context.Context, blob string) (oauth2.TokenSource, error) {
	if strings.TrimSpace(blob) == "" {
		return nil, fmt.Errorf("no token stored")
	}
	var au authorizedUser
	if err := json.Unmarshal([]byte(blob), &au); err != nil {
		return nil, fmt.Errorf("decode token: %w", err)
	}
	access := au.Token
	if access == "" {
		access = au.AccessToken
	}
	endpoint := google.Endpoint
	if au.TokenURI != "" {
		endpoint.TokenURL = au.TokenURI
	}
	cfg := &oauth2.Config{
		ClientID:     au.ClientID,
		ClientSecret: au.ClientSecret,
		Endpoint:     endpoint,
		Scopes:       au.Scopes,
	}
	tok := &oauth2.Token{AccessToken: access, RefreshToken: au.RefreshToken, Expiry: au.Expiry}
	return cfg.TokenSource(ctx, tok), nil
}

func (t *GmailTransport) Send(ctx context.Context, sender *model.Sender, msg Outgoing) (string, error) {
	svc, err := t.newService(ctx, sender)
	if err != nil {
		return "", err
	}
	raw, _, err := Compose(sender.DisplayName(), sender.Email, msg, t.now())
	if err != nil {
		return "", err
	}
	sent, err := svc.Users.Messages.Send(gmailUser, &gmail.Message{
		Raw: base64.URLEncoding.EncodeToString(raw),
	}).Context(ctx).Do()
	if err != nil {
		return "", ClassifySendError(msg.To, fmt.Errorf("gmail send: %w", err))
	}
	return sent.ThreadId, nil
}

func (t *GmailTransport) SearchThreads(ctx context.Context, sender *model.Sender, q ThreadQuery) ([]string, error) {
	svc, err := t.newService(ctx, sender)
	if err != nil {
		return nil, err
	}
	resp, err := svc.Users.Threads.List(gmailUser).Q(GmailSearch(q)).MaxResults(100).Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail thread search: %w", err)
	}
	ids := make([]string, 0, len(resp.Threads))
	for _, th := range resp.Threads {
		ids = append(ids, th.Id)
	}
	return ids, nil
}

func (t *GmailTransport) GetThread(ctx context.Context, sender *model.Sender, threadID string) (*Thread, error) {
	svc, err := t.newService(ctx, sender)
	if err != nil {
		return nil, err
	}
	th, err := svc.Users.Threads.Get(gmailUser, threadID).Format("full").Context(ctx).Do()
	if err != nil {
		return nil, fmt.Errorf("gmail thread %s: %w", threadID, err)
	}
	thread := &Thread{ID: th.Id}
	for _, m := range th.Messages {
		thread.Messages = append(thread.Messages, fromGmail(m))
	}
	sort.SliceStable(thread.Messages, func(i, j int) bool {
		return thread.Messages[i].Date.Before(thread.Messages[j].Date)
	})
	return thread, nil
}

// GmailSearch renders q in Gmail search syntax.
func GmailSearch(q ThreadQuery) string {
	var terms []string
	if q.To != "" {
		terms = append(terms, "to:"+q.To)
	}
	var alts []string
	for _, from := range q.AnyFrom {
		alts = append(alts, "from:"+from)
	}
	for _, subject := range q.AnySubject {
		alts = append(alts, fmt.Sprintf("subject:%q", subject))
	}
	switch len(alts) {
	case 0:
	case 1:
		terms = append(terms, alts[0])
	default:
		terms = append(terms, "{"+strings.Join(alts, " ")+"}")
	}
	if !q.Since.IsZero() {
		terms = append(terms, fmt.Sprintf("after:%d", q.Since.Unix()))
	}
	return strings.Join(terms, " ")
}

func fromGmail(m *gmail.Message) Message {
	msg := Message{ID: m.Id, ThreadID: m.ThreadId}
	if m.InternalDate > 0 {
		msg.Date = time.UnixMilli(m.InternalDate)
	}
	if m.Payload == nil {
		return msg
	}
	for _, h := range m.Payload.Headers {
		switch strings.ToLower(h.Name) {
		case "from":
			msg.From = h.Value
		case "to":
			msg.To = append(msg.To, splitAddresses(h.Value)...)
		case "subject":
			msg.Subject = h.Value
		case "message-id":
			msg.MessageID = strings.Trim(h.Value, "<> ")
		case "x-failed-recipients":
			msg.FailedRecipients = splitAddresses(h.Value)
		}
	}
	msg.Body = plainText(m.Payload)
	return msg
}

// plainText collects the text/plain parts of a payload, depth first.
func plainText(part *gmail.MessagePart) string {
	if part == nil {
		return ""
	}
	if len(part.Parts) == 0 {
		if part.Body == nil || part.Body.Data == "" {
			return ""
		}
		if part.MimeType != "" && !strings.HasPrefix(part.MimeType, "text/plain") {
			return ""
		}
		return decodeBase64URL(part.Body.Data)
	}
	var texts []string
	for _, p := range part.Parts {
		if text := plainText(p); text != "" {
			texts = append(texts, text)
		}
	}
	return strings.Join(texts, "\n")
}

func decodeBase64URL(data string) string {
	if b, err := base64.URLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	if b, err := base64.RawURLEncoding.DecodeString(data); err == nil {
		return string(b)
	}
	return ""
}

var _ Transport = (*GmailTransport)(nil)
