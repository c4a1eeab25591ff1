package mail

import (
	"errors"
	"strings"

	"github.com/emersion/go-smtp"
	"google.golang.org/api/googleapi"

	appErrors "github.com/unclebandit/outreach-engine/internal/errors"
)

var bounceKeywords = []string{
	"address not found",
	"user unknown",
	"does not exist",
	"invalid recipient",
	"recipient address rejected",
}

// ClassifySendError wraps err in an appErrors.BounceError when the provider
// rejected the recipient address itself. Other errors are returned as is.
func ClassifySendError(recipient string, err error) error {
	if err == nil || appErrors.IsBounce(err) {
		return err
	}

	var smtpErr *smtp.SMTPError
	if errors.As(err, &smtpErr) {
		switch {
		case smtpErr.Code == 550 || smtpErr.Code == 551 || smtpErr.Code == 553:
			return appErrors.NewBounce(recipient, smtpErr.Message, err)
		case smtpErr.EnhancedCode[0] == 5 && smtpErr.EnhancedCode[1] == 1:
			return appErrors.NewBounce(recipient, smtpErr.Message, err)
		}
	}

	reason := err.Error()
	var apiErr *googleapi.Error
	if errors.As(err, &apiErr) && apiErr.Message != "" {
		reason = apiErr.Message
	}
	if hasBounceKeyword(err.Error()) || hasBounceKeyword(reason) {
		return appErrors.NewBounce(recipient, reason, err)
	}
	return err
}

func hasBounceKeyword(text string) bool {
	text = strings.ToLower(text)
	for _, keyword := range bounceKeywords {
		if strings.Contains(text, keyword) {
			return true
		}
	}
	return false
}
