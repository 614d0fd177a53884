package email

import (
	"context"
	"fmt"
	"strings"

	"github.com/smallbiznis/procura/pkg/errs"
	"gopkg.in/gomail.v2"
)

type Config struct {
	Host     string
	Port     int
	Username string
	Password string
	From     string
	FromName string
}

type SMTPProvider struct {
	cfg    Config
	dialer *gomail.Dialer
}

func NewSMTP(cfg Config) *SMTPProvider {
	return &SMTPProvider{
		cfg:    cfg,
		dialer: gomail.NewDialer(cfg.Host, cfg.Port, cfg.Username, cfg.Password),
	}
}

func (p *SMTPProvider) Send(ctx context.Context, msg Message) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to := strings.TrimSpace(msg.To)
	if to == "" {
		return fmt.Errorf("%w: empty recipient", errs.ErrTransport)
	}

	m := gomail.NewMessage()
	m.SetHeader("From", m.FormatAddress(p.cfg.From, p.cfg.FromName))
	m.SetHeader("To", to)
	m.SetHeader("Subject", msg.Subject)
	m.SetBody("text/html", msg.HTMLBody)

	if err := p.dialer.DialAndSend(m); err != nil {
		return fmt.Errorf("%w: smtp send: %w", errs.ErrTransport, err)
	}
	return nil
}
