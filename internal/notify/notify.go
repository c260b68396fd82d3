// Package notify pushes SSH events to an ntfy-compatible HTTP endpoint.
package notify

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"strings"
	"time"

	"github.com/tinytelemetry/sshnotify/internal/model"
)

const (
	defaultTimeout = 5 * time.Second

	// maxErrorBody bounds how much of a failed response is copied into logs.
	maxErrorBody = 4096
)

// Option configures a Notifier.
type Option func(*Notifier)

// WithToken sets the bearer credential. An empty token sends no
// Authorization header.
func WithToken(token string) Option {
	return func(n *Notifier) { n.token = token }
}

// WithTimeout bounds each delivery, including reading the response. Default: 5s.
func WithTimeout(d time.Duration) Option {
	return func(n *Notifier) {
		if d > 0 {
			n.client.Timeout = d
		}
	}
}

// WithHTTPClient replaces the HTTP client. Its Timeout is kept as given.
func WithHTTPClient(c *http.Client) Option {
	return func(n *Notifier) { n.client = c }
}

// WithLogger sets the logger outcomes are written to. Default: slog.Default().
func WithLogger(l *slog.Logger) Option {
	return func(n *Notifier) { n.logger = l }
}

// Notifier delivers one plain-text message per event. Failures are
// reported in the returned outcome and never retried.
type Notifier struct {
	client *http.Client
	url    string
	token  string
	logger *slog.Logger
}

// New creates a Notifier posting to url.
func New(url string, opts ...Option) *Notifier {
	n := &Notifier{
		client: &http.Client{Timeout: defaultTimeout},
		url:    url,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(n)
	}
	return n
}

// Render builds the notification body for an event.
func Render(e model.Event) string {
	var b strings.Builder
	fmt.Fprintf(&b, "🔑 %s\n\n", e.Category.Label())
	fmt.Fprintf(&b, "👤 User: %s\n", e.User)
	fmt.Fprintf(&b, "🌍 IP: %s\n", e.SourceIP)
	return b.String()
}

// Deliver sends the event and classifies the result. Only HTTP 200 counts
// as delivered.
func (n *Notifier) Deliver(ctx context.Context, e model.Event) model.DeliveryOutcome {
	message := Render(e)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, n.url, bytes.NewReader([]byte(message)))
	if err != nil {
		return n.failed(e, 0, fmt.Sprintf("build request: %v", err), "")
	}
	req.Header.Set("Content-Type", "text/plain; charset=utf-8")
	req.Header.Set("Priority", e.Priority.String())
	if n.token != "" {
		req.Header.Set("Authorization", "Bearer "+n.token)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return n.failed(e, 0, transportReason(err), "")
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return n.failed(e, resp.StatusCode, fmt.Sprintf("HTTP %d", resp.StatusCode), string(body))
	}
	_, _ = io.Copy(io.Discard, resp.Body)

	n.logger.Info("notification sent",
		"category", e.Category.String(),
		"user", e.User,
		"source_ip", e.SourceIP,
		"priority", e.Priority.String(),
		"status", resp.StatusCode,
	)
	return model.DeliveryOutcome{Status: model.Delivered, StatusCode: resp.StatusCode}
}

func (n *Notifier) failed(e model.Event, code int, reason, body string) model.DeliveryOutcome {
	attrs := []any{
		"category", e.Category.String(),
		"user", e.User,
		"source_ip", e.SourceIP,
		"reason", reason,
	}
	if code != 0 {
		attrs = append(attrs, "status", code, "body", strings.TrimSpace(body))
	}
	n.logger.Error("notification failed", attrs...)
	return model.DeliveryOutcome{Status: model.Failed, StatusCode: code, Reason: reason}
}

func transportReason(err error) string {
	var netErr net.Error
	if errors.Is(err, context.DeadlineExceeded) || (errors.As(err, &netErr) && netErr.Timeout()) {
		return "timeout: " + err.Error()
	}
	return "transport: " + err.Error()
}
