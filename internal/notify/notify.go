// Package notify renders the run digest and sends it over SMTP.
package notify

import (
	"bytes"
	"context"
	"embed"
	"errors"
	"fmt"
	"html/template"
	"mime"
	"net"
	"net/smtp"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
)

//go:embed templates/*.html
var templateFS embed.FS

var digestTemplate = template.Must(template.ParseFS(templateFS, "templates/digest.html"))

// Config holds SMTP settings. It is passed in explicitly; nothing here reads
// the environment.
type Config struct {
	Host     string
	Port     int
	From     string
	To       []string
	Username string
	Password string
}

// Enabled reports whether a digest can be delivered.
func (c Config) Enabled() bool {
	return c.Host != "" && len(c.To) > 0
}

// PlatformLine is one row of the digest table.
type PlatformLine struct {
	Platform string
	Posts    int
	Error    string
}

// TagLine is one ranked hashtag.
type TagLine struct {
	Tag   string
	Count int
	Score float64
}

// PostLine links one post.
type PostLine struct {
	Platform string
	PostID   string
	URL      string
}

// Digest is the data rendered into the email.
type Digest struct {
	RunID       string
	Niche       string
	FinishedAt  time.Time
	Platforms   []PlatformLine
	TopHashtags []TagLine
	Posts       []PostLine
}

// SendFunc matches smtp.SendMail.
type SendFunc func(addr string, a smtp.Auth, from string, to []string, msg []byte) error

// Mailer sends digests.
type Mailer struct {
	cfg    Config
	send   SendFunc
	logger *zap.Logger
}

// Option customizes a Mailer.
type Option func(*Mailer)

// WithSendFunc replaces smtp.SendMail, mainly for tests.
func WithSendFunc(fn SendFunc) Option {
	return func(m *Mailer) { m.send = fn }
}

// WithLogger sets the mailer logger.
func WithLogger(logger *zap.Logger) Option {
	return func(m *Mailer) {
		if logger != nil {
			m.logger = logger
		}
	}
}

// NewMailer validates cfg and returns a Mailer.
func NewMailer(cfg Config, opts ...Option) (*Mailer, error) {
	if cfg.Host == "" {
		return nil, errors.New("smtp host is required")
	}
	if len(cfg.To) == 0 {
		return nil, errors.New("at least one recipient is required")
	}
	if cfg.Port == 0 {
		cfg.Port = 25
	}
	if cfg.From == "" {
		cfg.From = "no-reply@trendscraper.local"
	}
	m := &Mailer{cfg: cfg, send: smtp.SendMail, logger: zap.NewNop()}
	for _, opt := range opts {
		opt(m)
	}
	return m, nil
}

// Render executes the digest template.
func Render(d Digest) (string, error) {
	var buf bytes.Buffer
	if err := digestTemplate.Execute(&buf, d); err != nil {
		return "", fmt.Errorf("render digest: %w", err)
	}
	return buf.String(), nil
}

// SendDigest renders d and delivers it to every configured recipient.
func (m *Mailer) SendDigest(ctx context.Context, subject string, d Digest) error {
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("send digest: %w", err)
	}
	body, err := Render(d)
	if err != nil {
		return err
	}
	msg := buildMessage(m.cfg.From, m.cfg.To, subject, body)

	var auth smtp.Auth
	if m.cfg.Username != "" {
		auth = smtp.PlainAuth("", m.cfg.Username, m.cfg.Password, m.cfg.Host)
	}
	addr := net.JoinHostPort(m.cfg.Host, strconv.Itoa(m.cfg.Port))
	if err := m.send(addr, auth, m.cfg.From, m.cfg.To, msg); err != nil {
		return fmt.Errorf("smtp send to %s: %w", addr, err)
	}
	m.logger.Info("digest sent", zap.String("run_id", d.RunID), zap.Strings("to", m.cfg.To))
	return nil
}

func buildMessage(from string, to []string, subject, html string) []byte {
	var b strings.Builder
	b.WriteString("From: " + from + "\r\n")
	b.WriteString("To: " + strings.Join(to, ", ") + "\r\n")
	b.WriteString("Subject: " + mime.QEncoding.Encode("utf-8", subject) + "\r\n")
	b.WriteString("MIME-Version: 1.0\r\n")
	b.WriteString("Content-Type: text/html; charset=\"utf-8\"\r\n")
	b.WriteString("\r\n")
	b.WriteString(html)
	return []byte(b.String())
}
