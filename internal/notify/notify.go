// Package notify is the fire-and-forget email dispatch boundary. Delivery
// internals are out of scope; the log dispatcher stands in wherever no real
// provider is configured.
package notify

import (
	"context"

	"kassenwerk.org/internal/obs"
)

// Attachment is an inline email attachment.
type Attachment struct {
	Filename    string
	ContentType string
	Data        []byte
}

// Mailer sends one email. Implementations must not block request handling on
// provider latency beyond the context deadline.
type Mailer interface {
	SendEmail(ctx context.Context, from, to, subject, html string, attachments ...Attachment) error
}

// LogMailer writes would-be emails to the service log instead of sending.
type LogMailer struct{}

func (LogMailer) SendEmail(ctx context.Context, from, to, subject, html string, attachments ...Attachment) error {
	obs.Logger().WithFields(map[string]any{
		"from":        from,
		"to":          to,
		"subject":     subject,
		"attachments": len(attachments),
	}).Info("email suppressed (log mailer)")
	return nil
}

var _ Mailer = LogMailer{}
