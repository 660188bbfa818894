package factory

import (
	"go.uber.org/zap"

	"github.com/nfraser/mail-triage/internal/adapters/imap"
	"github.com/nfraser/mail-triage/internal/config"
	"github.com/nfraser/mail-triage/internal/core"
)

// MailFactory creates mail gateways
type MailFactory struct {
	cfg    *config.Config
	logger *zap.Logger
}

// NewMailFactory creates a new mail factory
func NewMailFactory(cfg *config.Config, logger *zap.Logger) *MailFactory {
	return &MailFactory{
		cfg:    cfg,
		logger: logger,
	}
}

// CreateMailGateway creates the configured mail gateway, or nil when
// no mail host is configured (one-shot classification has no mailbox).
func (f *MailFactory) CreateMailGateway() (core.MailGateway, error) {
	mailCfg := f.cfg.GetMail()
	if mailCfg.Host == "" {
		return nil, nil
	}

	return imap.NewGateway(
		mailCfg.Host,
		mailCfg.Port,
		mailCfg.Username,
		mailCfg.Password,
		mailCfg.TLS,
		mailCfg.Folder,
		f.logger,
	), nil
}
