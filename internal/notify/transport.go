// Package notify renders advisor emails and delivers them through a
// configured transport, recording every attempt in the audit log.
package notify

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"github.com/wneessen/go-mail"
	"go.uber.org/zap"

	"github.com/sells-group/advisor-reports/internal/config"
)

// Message is one outbound notification.
type Message struct {
	From     string            `json:"from"`
	To       string            `json:"to"`
	Subject  string            `json:"subject"`
	HTML     string            `json:"html"`
	Template string            `json:"template"`
	Metadata map[string]string `json:"metadata,omitempty"`
}

// Transport delivers messages. Implementations make a single attempt.
type Transport interface {
	Send(ctx context.Context, msg Message) error
	Name() string
}

// NewTransport builds the transport selected by cfg.Transport.
func NewTransport(cfg config.NotifyConfig) (Transport, error) {
	timeout := time.Duration(cfg.TimeoutSecs) * time.Second
	if timeout <= 0 {
		timeout = 15 * time.Second
	}
	switch cfg.Transport {
	case "smtp":
		return NewSMTPTransport(cfg.SMTP, timeout)
	case "webhook":
		if cfg.Webhook.URL == "" {
			return nil, eris.New("notify: webhook url is required")
		}
		return NewWebhookTransport(cfg.Webhook.URL, timeout), nil
	case "log", "":
		return LogTransport{}, nil
	default:
		return nil, eris.Errorf("notify: unknown transport %q", cfg.Transport)
	}
}

// SMTPTransport sends mail through an SMTP relay such as SendGrid.
type SMTPTransport struct {
	mu     sync.Mutex
	client *mail.Client
}

// NewSMTPTransport creates an SMTP transport using STARTTLS and PLAIN auth.
func NewSMTPTransport(cfg config.SMTPConfig, timeout time.Duration) (*SMTPTransport, error) {
	opts := []mail.Option{
		mail.WithTimeout(timeout),
		mail.WithTLSPortPolicy(mail.TLSMandatory),
	}
	if cfg.Port > 0 {
		opts = append(opts, mail.WithPort(cfg.Port))
	}
	if cfg.Username != "" || cfg.Password != "" {
		opts = append(opts,
			mail.WithSMTPAuth(mail.SMTPAuthPlain),
			mail.WithUsername(cfg.Username),
			mail.WithPassword(cfg.Password),
		)
	}
	client, err := mail.NewClient(cfg.Host, opts...)
	if err != nil {
		return nil, eris.Wrap(err, "notify: smtp client")
	}
	return &SMTPTransport{client: client}, nil
}

// Name implements Transport.
func (t *SMTPTransport) Name() string { return "smtp" }

// Send implements Transport.
func (t *SMTPTransport) Send(ctx context.Context, msg Message) error {
	m, err := buildMail(msg)
	if err != nil {
		return err
	}
	t.mu.Lock()
	defer t.mu.Unlock()
	if err := t.client.DialAndSendWithContext(ctx, m); err != nil {
		return eris.Wrapf(err, "notify: smtp send to %s", msg.To)
	}
	return nil
}

func buildMail(msg Message) (*mail.Msg, error) {
	m := mail.NewMsg()
	if err := m.From(msg.From); err != nil {
		return nil, eris.Wrapf(err, "notify: invalid from address %q", msg.From)
	}
	if err := m.To(msg.To); err != nil {
		return nil, eris.Wrapf(err, "notify: invalid recipient %q", msg.To)
	}
	m.Subject(msg.Subject)
	m.SetDate()
	m.SetMessageID()
	m.SetBodyString(mail.TypeTextHTML, msg.HTML)
	return m, nil
}

// WebhookTransport posts each message as JSON.
type WebhookTransport struct {
	url    string
	client *http.Client
}

// NewWebhookTransport creates a webhook transport.
func NewWebhookTransport(url string, timeout time.Duration) *WebhookTransport {
	return &WebhookTransport{url: url, client: &http.Client{Timeout: timeout}}
}

// Name implements Transport.
func (t *WebhookTransport) Name() string { return "webhook" }

// Send implements Transport.
func (t *WebhookTransport) Send(ctx context.Context, msg Message) error {
	payload, err := json.Marshal(msg)
	if err != nil {
		return eris.Wrap(err, "notify: marshal message")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return eris.Wrap(err, "notify: create webhook request")
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return eris.Wrap(err, "notify: webhook request")
	}
	defer resp.Body.Close() //nolint:errcheck

	if resp.StatusCode >= 400 {
		return eris.Errorf("notify: webhook returned status %d", resp.StatusCode)
	}
	return nil
}

// LogTransport writes messages to the logger instead of sending them.
type LogTransport struct{}

// Name implements Transport.
func (LogTransport) Name() string { return "log" }

// Send implements Transport.
func (LogTransport) Send(_ context.Context, msg Message) error {
	zap.L().Info("notify: message",
		zap.String("to", msg.To),
		zap.String("subject", msg.Subject),
		zap.String("template", msg.Template),
		zap.Int("bytes", len(msg.HTML)),
	)
	return nil
}
