package email

import (
	"context"
	"testing"

	"github.com/smallbiznis/procura/internal/config"
	"github.com/smallbiznis/procura/pkg/errs"
	"github.com/stretchr/testify/assert"
	"go.uber.org/zap"
)

func TestNewFromConfigFallsBackToNoOp(t *testing.T) {
	provider := NewFromConfig(config.Config{}, zap.NewNop())
	assert.IsType(t, &NoOpProvider{}, provider)
	assert.False(t, Configured(provider))
	err := provider.Send(context.Background(), Message{To: "a@example.com"})
	assert.ErrorIs(t, err, ErrNotConfigured)
	assert.ErrorIs(t, err, errs.ErrTransport)

	provider = NewFromConfig(config.Config{Email: config.EmailConfig{SMTPHost: "smtp.example.com", SMTPPort: 587}}, zap.NewNop())
	assert.IsType(t, &SMTPProvider{}, provider)
	assert.True(t, Configured(provider))
	assert.False(t, Configured(nil))
}

func TestSMTPRejectsEmptyRecipient(t *testing.T) {
	provider := NewSMTP(Config{Host: "smtp.example.com", Port: 587, From: "no-reply@example.com"})
	err := provider.Send(context.Background(), Message{Subject: "hi"})
	assert.ErrorIs(t, err, errs.ErrTransport)
}

func TestRecordingProvider(t *testing.T) {
	provider := &RecordingProvider{}
	assert.NoError(t, provider.Send(context.Background(), Message{To: "a@example.com", Subject: "s"}))
	assert.Len(t, provider.Sent(), 1)

	provider.Err = errs.ErrTransport
	assert.ErrorIs(t, provider.Send(context.Background(), Message{To: "b@example.com"}), errs.ErrTransport)
	assert.Len(t, provider.Sent(), 1)
}
