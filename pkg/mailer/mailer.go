// Package mailer delivers alert and report mail. The command transport
// pipes the body to mail(1) the way the original cron one-liners did; the
// smtp transport talks to a relay directly.
package mailer

import (
	"context"
	"fmt"
	"strings"

	"github.com/apex/log"
	"github.com/pkg/errors"
	"github.com/shirou/gopsutil/v4/host"
	mail "gopkg.in/mail.v2"

	"github.com/homelab-tools/labops/internal/execx"
	"github.com/homelab-tools/labops/pkg/config"
)

// Mailer sends plain-text mail per the mail section of the config.
type Mailer struct {
	cfg      *config.MailConfig
	hostname string
	runner   execx.Runner
}

// New returns a Mailer for the given mail config and report hostname.
func New(cfg *config.MailConfig, hostname string, runner execx.Runner) *Mailer {
	return &Mailer{cfg: cfg, hostname: hostname, runner: runner}
}

// Enabled reports whether mail delivery is switched on.
func (m *Mailer) Enabled() bool {
	return m.cfg != nil && config.BoolValue(m.cfg.Enabled)
}

// Send delivers a plain-text message to the configured recipients. The
// configured subject prefix is prepended and a host footer appended.
func (m *Mailer) Send(ctx context.Context, subject, body string) error {
	if !m.Enabled() {
		log.Debug("mail disabled, not sending")
		return nil
	}
	if len(m.cfg.To) == 0 {
		return errors.New("no mail recipients configured")
	}

	fullSubject := strings.TrimSpace(m.cfg.SubjectPrefix + " " + subject)
	fullBody := body
	if footer := hostFooter(m.hostname); footer != "" {
		fullBody = strings.TrimRight(body, "\n") + "\n\n" + footer + "\n"
	}

	log.Debugf("sending mail %q to %s via %s", fullSubject, strings.Join(m.cfg.To, ", "), m.cfg.Transport)
	switch m.cfg.Transport {
	case "smtp":
		return m.sendSMTP(fullSubject, fullBody)
	default:
		return m.sendCommand(ctx, fullSubject, fullBody)
	}
}

// sendCommand pipes the body to the mail binary, one invocation for all
// recipients.
func (m *Mailer) sendCommand(ctx context.Context, subject, body string) error {
	if _, err := m.runner.LookPath(m.cfg.Command); err != nil {
		return errors.Wrapf(err, "mail transport 'command' needs %s installed", m.cfg.Command)
	}

	args := []string{"-s", subject}
	args = append(args, m.cfg.To...)
	cmd := execx.Command(m.cfg.Command, args...)
	cmd.Stdin = strings.NewReader(body)

	result, err := m.runner.Run(ctx, cmd)
	if err != nil {
		return errors.Wrap(err, "failed to run mail command")
	}
	if result.ExitCode != 0 {
		return errors.Errorf("mail command exited with status %d: %s", result.ExitCode, strings.TrimSpace(result.Stderr))
	}
	return nil
}

func (m *Mailer) sendSMTP(subject, body string) error {
	msg := mail.NewMessage()
	msg.SetHeader("From", m.from())
	msg.SetHeader("To", m.cfg.To...)
	msg.SetHeader("Subject", subject)
	msg.SetBody("text/plain", body)

	d := mail.NewDialer(m.cfg.SMTP.Host, m.cfg.SMTP.Port, m.cfg.SMTP.Username, m.cfg.SMTP.Password)
	d.StartTLSPolicy = startTLSPolicy(m.cfg.SMTP)

	if err := d.DialAndSend(msg); err != nil {
		return errors.Wrapf(err, "failed to send mail via %s:%d", m.cfg.SMTP.Host, m.cfg.SMTP.Port)
	}
	return nil
}

func (m *Mailer) from() string {
	if m.cfg.From != "" {
		return m.cfg.From
	}
	return "labops@" + m.hostname
}

func startTLSPolicy(cfg *config.SMTPConfig) mail.StartTLSPolicy {
	if config.BoolValue(cfg.StartTLS) {
		return mail.MandatoryStartTLS
	}
	return mail.NoStartTLS
}

// hostFooter renders the signature line appended to every message. Errors
// reading host info just drop the footer.
func hostFooter(hostname string) string {
	info, err := host.Info()
	if err != nil {
		return fmt.Sprintf("-- \nlabops on %s", hostname)
	}
	return fmt.Sprintf("-- \nlabops on %s (%s %s), up %s",
		hostname, info.Platform, info.PlatformVersion, formatUptime(info.Uptime))
}

func formatUptime(seconds uint64) string {
	days := seconds / 86400
	hours := (seconds % 86400) / 3600
	minutes := (seconds % 3600) / 60
	if days > 0 {
		return fmt.Sprintf("%dd %dh", days, hours)
	}
	if hours > 0 {
		return fmt.Sprintf("%dh %dm", hours, minutes)
	}
	return fmt.Sprintf("%dm", minutes)
}
