package config

import (
	"fmt"
	"regexp"
	"strings"
)

var (
	vacuumTimePattern = regexp.MustCompile(`^[0-9]+(s|m|min|h|d|days|weeks|months|years)$`)
	stepNamePattern   = regexp.MustCompile(`^[a-z0-9][a-z0-9-]*$`)
)

// Validate checks the config for values that would misbehave at run time.
// It expects SetDefaults to have run.
func (c *Config) Validate() error {
	if err := validatePercent("disk.threshold", IntValue(c.Disk.Threshold)); err != nil {
		return err
	}
	if err := validatePercent("lxc.threshold", IntValue(c.LXC.Threshold)); err != nil {
		return err
	}

	switch c.Mail.Transport {
	case "command", "smtp":
	default:
		return fmt.Errorf("mail.transport must be 'command' or 'smtp', got %q", c.Mail.Transport)
	}
	if c.MailEnabled() && c.Mail.Transport == "smtp" && c.Mail.SMTP.Host == "" {
		return fmt.Errorf("mail.smtp.host is required when mail.transport is 'smtp'")
	}
	for _, to := range c.Mail.To {
		if strings.TrimSpace(to) == "" {
			return fmt.Errorf("mail.to contains an empty recipient")
		}
	}

	if IntValue(c.Backup.Keep) < 0 {
		return fmt.Errorf("backup.keep must not be negative, got %d", IntValue(c.Backup.Keep))
	}
	if err := ValidateNameTemplate(c.Backup.NameTemplate); err != nil {
		return err
	}

	if !vacuumTimePattern.MatchString(c.Cleanup.JournalVacuum) {
		return fmt.Errorf("cleanup.journal_vacuum must look like '14d' or '2weeks', got %q", c.Cleanup.JournalVacuum)
	}
	if IntValue(c.Cleanup.TmpAgeDays) < 0 {
		return fmt.Errorf("cleanup.tmp_age_days must not be negative, got %d", IntValue(c.Cleanup.TmpAgeDays))
	}
	seen := map[string]bool{}
	for _, step := range c.Cleanup.Extra {
		if !stepNamePattern.MatchString(step.Name) {
			return fmt.Errorf("cleanup.extra step name %q must be lowercase alphanumeric with dashes", step.Name)
		}
		if seen[step.Name] {
			return fmt.Errorf("cleanup.extra step name %q is duplicated", step.Name)
		}
		seen[step.Name] = true
		if strings.TrimSpace(step.Script) == "" {
			return fmt.Errorf("cleanup.extra step %q has an empty script", step.Name)
		}
	}

	if IntValue(c.Images.TimeoutSeconds) < 1 {
		return fmt.Errorf("images.timeout_seconds must be at least 1, got %d", IntValue(c.Images.TimeoutSeconds))
	}

	return nil
}

func validatePercent(field string, v int) error {
	if v < 1 || v > 100 {
		return fmt.Errorf("%s must be between 1 and 100, got %d", field, v)
	}
	return nil
}

// ValidateNameTemplate validates that a backup archive name template cannot
// escape the destination directory or break the shell contexts the archive
// name later appears in.
func ValidateNameTemplate(template string) error {
	if strings.TrimSpace(template) == "" {
		return fmt.Errorf("backup.name_template must not be empty")
	}

	// Command substitution patterns
	if strings.Contains(template, "$(") {
		return fmt.Errorf("backup.name_template contains command substitution '$(': %s", template)
	}
	if strings.Contains(template, "`") {
		return fmt.Errorf("backup.name_template contains command substitution '`': %s", template)
	}

	dangerousChars := []struct {
		char string
		desc string
	}{
		{"/", "path separator"},
		{";", "semicolon"},
		{"|", "pipe"},
		{"&", "ampersand"},
		{">", "output redirection"},
		{"<", "input redirection"},
		{" ", "space"},
	}
	for _, dc := range dangerousChars {
		if strings.Contains(template, dc.char) {
			return fmt.Errorf("backup.name_template contains '%s' (%s): %s", dc.char, dc.desc, template)
		}
	}

	return nil
}
