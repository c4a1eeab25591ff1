package mail

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"time"

	"github.com/emersion/go-imap/client"
	"github.com/emersion/go-sasl"
	"github.com/emersion/go-smtp"
	"go.uber.org/zap"

	"github.com/unclebandit/outreach-engine/internal/model"
)

// SMTPTransport sends through an SMTP submission server and finds threads
// over IMAP. Sender.Email is the login and Sender.MailToken the password.
type SMTPTransport struct {
	SMTPAddr  string
	IMAPAddr  string
	Mailboxes []string

	log      *zap.Logger
	now      func() time.Time
	sendMail func(addr string, a sasl.Client, from string, to []string, r io.Reader) error
	dial     func(addr string) (imapClient, error)
}

func NewSMTPTransport(smtpAddr, imapAddr string, mailboxes []string, logger *zap.Logger) *SMTPTransport {
	if logger == nil {
		logger = zap.NewNop()
	}
	if len(mailboxes) == 0 {
		mailboxes = []string{"INBOX"}
	}
	return &SMTPTransport{
		SMTPAddr:  smtpAddr,
		IMAPAddr:  imapAddr,
		Mailboxes: mailboxes,
		log:       logger,
		now:       time.Now,
		sendMail:  smtp.SendMail,
		dial: func(addr string) (imapClient, error) {
			return client.DialTLS(addr, nil)
		},
	}
}

// Send submits the message and returns its Message-ID, which is also the ID
// of the thread it starts.
func (t *SMTPTransport) Send(ctx context.Context, sender *model.Sender, msg Outgoing) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}
	raw, messageID, err := Compose(sender.DisplayName(), sender.Email, msg, t.now())
	if err != nil {
		return "", err
	}
	auth := sasl.NewPlainClient("", sender.Email, sender.MailToken)
	if err := t.sendMail(t.SMTPAddr, auth, sender.Email, []string{msg.To}, bytes.NewReader(raw)); err != nil {
		return "", ClassifySendError(msg.To, fmt.Errorf("smtp send: %w", err))
	}
	t.log.Debug("smtp message submitted", zap.String("to", msg.To), zap.String("message_id", messageID))
	return messageID, nil
}

var _ Transport = (*SMTPTransport)(nil)
