package cmd

import (
	"context"

	"github.com/apex/log"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/config"
	"github.com/homelab-tools/labops/pkg/mailer"
)

// loadConfig resolves and loads the labops config for a command run.
// A missing config file is not an error; built-in defaults apply.
func loadConfig() (*config.Config, error) {
	cfg, path, err := config.LoadOrDefault(configFile)
	if err != nil {
		return nil, err
	}
	if path != "" {
		log.Debugf("using config file: %s", path)
	}
	return cfg, nil
}

// newMailer builds the alert mailer for the loaded config.
func newMailer(cfg *config.Config) *mailer.Mailer {
	return mailer.New(cfg.Mail, cfg.Host(), execx.System())
}

// sendAlert delivers alert mail, logging instead of failing: the
// findings themselves matter more than the notification.
func sendAlert(ctx context.Context, m *mailer.Mailer, subject, body string) {
	if !m.Enabled() {
		return
	}
	if err := m.Send(ctx, subject, body); err != nil {
		log.WithError(err).Error("failed to send alert mail")
	} else {
		log.Infof("alert mail sent: %s", subject)
	}
}
