package email

import (
	"strings"

	"github.com/smallbiznis/procura/internal/config"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("providers.email",
	fx.Provide(NewFromConfig),
)

// NewFromConfig returns the SMTP provider, or a no-op provider when SMTP_HOST is unset.
func NewFromConfig(cfg config.Config, log *zap.Logger) Provider {
	if strings.TrimSpace(cfg.Email.SMTPHost) == "" {
		log.Warn("smtp host not configured, outbound email disabled")
		return &NoOpProvider{}
	}
	return NewSMTP(Config{
		Host:     cfg.Email.SMTPHost,
		Port:     cfg.Email.SMTPPort,
		Username: cfg.Email.SMTPUsername,
		Password: cfg.Email.SMTPPassword,
		From:     cfg.Email.SMTPFrom,
		FromName: cfg.Email.FromName,
	})
}
