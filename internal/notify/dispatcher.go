package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"html/template"
	"strings"

	"go.uber.org/zap"

	"trackflow-backend/pkg/mailer"
	"trackflow-backend/pkg/messagequeue"
)

type emailTemplate struct {
	subject string
	html    *template.Template
}

const layoutHead = `<html><body style="font-family:Arial,sans-serif;color:#212529">`
const layoutFoot = `<p style="color:#6c757d;font-size:12px">TrackFlow</p></body></html>`

var templates = map[string]emailTemplate{
	TypeEmailVerification: {
		subject: "Verify your TrackFlow email",
		html: template.Must(template.New(TypeEmailVerification).Parse(layoutHead +
			`<h2>Hi {{.Name}},</h2><p>Confirm your email address to start tracking.</p>` +
			`<p><a href="{{.Data.link}}">Verify email</a></p>` + layoutFoot)),
	},
	TypePasswordReset: {
		subject: "Reset your TrackFlow password",
		html: template.Must(template.New(TypePasswordReset).Parse(layoutHead +
			`<h2>Hi {{.Name}},</h2><p>We received a request to reset your password.</p>` +
			`<p><a href="{{.Data.link}}">Choose a new password</a></p>` +
			`<p>If you did not ask for this, you can ignore this email.</p>` + layoutFoot)),
	},
	TypePremiumActivated: {
		subject: "Your TrackFlow Premium is active",
		html: template.Must(template.New(TypePremiumActivated).Parse(layoutHead +
			`<h2>Welcome to Premium, {{.Name}}!</h2><p>All trackers and AI insights are now unlocked.</p>` +
			`{{if .Data.endDate}}<p>Your access runs until {{.Data.endDate}}.</p>{{end}}` + layoutFoot)),
	},
	TypePremiumExpired: {
		subject: "Your TrackFlow Premium has ended",
		html: template.Must(template.New(TypePremiumExpired).Parse(layoutHead +
			`<h2>Hi {{.Name}},</h2><p>Your premium access ended{{if .Data.endDate}} on {{.Data.endDate}}{{end}}.</p>` +
			`<p>Your data is safe. Upgrade any time to unlock premium trackers again.</p>` + layoutFoot)),
	},
}

// Render builds the email for msg.
func Render(msg Message) (mailer.Message, error) {
	tmpl, ok := templates[msg.Type]
	if !ok {
		return mailer.Message{}, fmt.Errorf("unknown notification type %q", msg.Type)
	}
	if msg.Name == "" {
		msg.Name = "there"
	}
	var buf bytes.Buffer
	if err := tmpl.html.Execute(&buf, msg); err != nil {
		return mailer.Message{}, fmt.Errorf("render %s: %w", msg.Type, err)
	}
	return mailer.Message{
		To:      msg.To,
		ToName:  msg.Name,
		Subject: tmpl.subject,
		HTML:    buf.String(),
		Text:    plainText(msg),
	}, nil
}

func plainText(msg Message) string {
	var b strings.Builder
	b.WriteString("Hi " + msg.Name + ",\n\n")
	switch msg.Type {
	case TypeEmailVerification:
		b.WriteString("Confirm your email address: " + msg.Data["link"] + "\n")
	case TypePasswordReset:
		b.WriteString("Reset your password: " + msg.Data["link"] + "\n")
	case TypePremiumActivated:
		b.WriteString("Your TrackFlow Premium is active.")
		if end := msg.Data["endDate"]; end != "" {
			b.WriteString(" Access runs until " + end + ".")
		}
		b.WriteString("\n")
	case TypePremiumExpired:
		b.WriteString("Your TrackFlow Premium has ended.\n")
	}
	return b.String()
}

// Dispatcher consumes queued notifications and delivers them by email.
type Dispatcher struct {
	sender mailer.Sender
	logger *zap.Logger
}

// NewDispatcher creates a Dispatcher that sends through sender.
func NewDispatcher(sender mailer.Sender, logger *zap.Logger) *Dispatcher {
	return &Dispatcher{sender: sender, logger: logger.Named("dispatcher")}
}

// Handle decodes one queue message and sends it. It matches messagequeue.Handler; payload
// problems are permanent while send failures are left to the queue's retry policy.
func (d *Dispatcher) Handle(ctx context.Context, body []byte) error {
	var msg Message
	if err := json.Unmarshal(body, &msg); err != nil {
		return messagequeue.Permanent(fmt.Errorf("decode notification: %w", err))
	}
	if err := msg.Validate(); err != nil {
		return messagequeue.Permanent(err)
	}
	email, err := Render(msg)
	if err != nil {
		return messagequeue.Permanent(err)
	}
	if err := d.sender.Send(ctx, email); err != nil {
		d.logger.Error("Failed to send notification", zap.String("id", msg.ID), zap.String("type", msg.Type), zap.Error(err))
		return fmt.Errorf("send %s to %s: %w", msg.Type, msg.To, err)
	}
	d.logger.Info("Notification sent", zap.String("id", msg.ID), zap.String("type", msg.Type))
	return nil
}
