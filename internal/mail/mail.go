// Package mail delivers outbound email through SMTP on a background queue.
package mail

import (
	"bytes"
	"context"
	"fmt"
	"html/template"
	"log/slog"
)

// Message is one outbound HTML email.
type Message struct {
	To      string
	Subject string
	HTML    string
}

// Sender delivers a message.
type Sender interface {
	Send(ctx context.Context, msg Message) error
}

// LogSender logs messages instead of delivering them. It is used when SMTP
// is not configured.
type LogSender struct{}

// Send writes the message metadata to the default logger.
func (LogSender) Send(ctx context.Context, msg Message) error {
	slog.InfoContext(ctx, "SMTP not configured, email not delivered",
		"to", msg.To,
		"subject", msg.Subject,
		"bytes", len(msg.HTML),
	)
	return nil
}

var verificationTmpl = template.Must(template.New("verify").Parse(`<html>
  <body>
    <h2>Welcome, {{.Username}} to CogniVyu</h2>
    <p>Please verify your email by clicking the button below:</p>
    <a href="{{.Link}}" style="display:inline-block;padding:10px 20px;background-color:#4CAF50;color:white;text-decoration:none;border-radius:5px;font-weight:bold;">
      Verify Email
    </a>
    <p>This link will expire in 1 hour.</p>
  </body>
</html>
`))

// VerificationEmail builds the account verification message.
func VerificationEmail(to, username, link string) (Message, error) {
	var buf bytes.Buffer
	if err := verificationTmpl.Execute(&buf, struct{ Username, Link string }{username, link}); err != nil {
		return Message{}, fmt.Errorf("render verification email: %w", err)
	}
	return Message{
		To:      to,
		Subject: "Verification Email from CogniVyu",
		HTML:    buf.String(),
	}, nil
}
