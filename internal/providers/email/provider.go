package email

import (
	"context"
	"sync"

	"github.com/smallbiznis/procura/pkg/errs"
)

var ErrNotConfigured = errs.New(errs.ErrTransport, "email_not_configured")

type Message struct {
	To       string
	Subject  string
	HTMLBody string
}

type Provider interface {
	Send(ctx context.Context, msg Message) error
}

// NoOpProvider stands in when no SMTP host is configured. It refuses every
// message so nothing is ever recorded as sent.
type NoOpProvider struct{}

func (p *NoOpProvider) Send(ctx context.Context, msg Message) error {
	return ErrNotConfigured
}

// Configured reports whether p delivers mail at all.
func Configured(p Provider) bool {
	if p == nil {
		return false
	}
	_, noop := p.(*NoOpProvider)
	return !noop
}

// RecordingProvider keeps sent messages in memory and can be told to fail.
type RecordingProvider struct {
	mu   sync.Mutex
	sent []Message
	Err  error
}

func (p *RecordingProvider) Send(ctx context.Context, msg Message) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.Err != nil {
		return p.Err
	}
	p.sent = append(p.sent, msg)
	return nil
}

func (p *RecordingProvider) Sent() []Message {
	p.mu.Lock()
	defer p.mu.Unlock()
	return append([]Message(nil), p.sent...)
}
