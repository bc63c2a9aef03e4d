package config

import (
	"errors"
	"fmt"
	"net/url"
	"strings"
	"time"

	"github.com/robfig/cron/v3"
)

// Validation range constants.
const (
	minParallelUploads = 1
	maxParallelUploads = 64
	maxRetries         = 10
	minConnectTimeout  = 1 * time.Second
	minDataTimeout     = 5 * time.Second
)

var (
	validProviders  = map[string]bool{ProviderGDrive: true, ProviderOneDrive: true}
	validLogLevels  = map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	validLogFormats = map[string]bool{"text": true, "json": true, "auto": true}
)

// Validate checks all configuration values and returns every error found,
// so one run reports everything that needs fixing.
func Validate(cfg *Config) error {
	var errs []error

	errs = append(errs, validateBackup(&cfg.BackupConfig)...)
	errs = append(errs, validateLogging(&cfg.LoggingConfig)...)
	errs = append(errs, validateNetwork(&cfg.NetworkConfig)...)
	errs = append(errs, validateEndpoint("gdrive.endpoint", cfg.GDrive.Endpoint)...)
	errs = append(errs, validateEndpoint("onedrive.endpoint", cfg.OneDrive.Endpoint)...)
	errs = append(errs, validateMime(cfg.Mime)...)
	errs = append(errs, validateSchedules(cfg.Schedules)...)
	errs = append(errs, validateNotify(&cfg.Notify)...)

	return errors.Join(errs...)
}

func validateBackup(b *BackupConfig) []error {
	var errs []error

	if !validProviders[b.Provider] {
		errs = append(errs, fmt.Errorf("provider: must be %q or %q, got %q",
			ProviderGDrive, ProviderOneDrive, b.Provider))
	}

	if strings.TrimSpace(b.Folder) == "" {
		errs = append(errs, errors.New("folder: must not be empty"))
	}

	if strings.ContainsAny(b.Folder, "/\\") {
		errs = append(errs, fmt.Errorf("folder: must be a single name, got %q", b.Folder))
	}

	if b.ParallelUploads < minParallelUploads || b.ParallelUploads > maxParallelUploads {
		errs = append(errs, fmt.Errorf("parallel_uploads: must be between %d and %d, got %d",
			minParallelUploads, maxParallelUploads, b.ParallelUploads))
	}

	if _, err := ParseSize(b.MaxFileSize); err != nil {
		errs = append(errs, fmt.Errorf("max_file_size: %w", err))
	}

	return errs
}

func validateLogging(l *LoggingConfig) []error {
	var errs []error

	if !validLogLevels[l.LogLevel] {
		errs = append(errs, fmt.Errorf("log_level: must be one of debug, info, warn, error; got %q", l.LogLevel))
	}

	if !validLogFormats[l.LogFormat] {
		errs = append(errs, fmt.Errorf("log_format: must be one of text, json, auto; got %q", l.LogFormat))
	}

	return errs
}

func validateNetwork(n *NetworkConfig) []error {
	var errs []error

	errs = append(errs, validateDurationMin("connect_timeout", n.ConnectTimeout, minConnectTimeout)...)
	errs = append(errs, validateDurationMin("data_timeout", n.DataTimeout, minDataTimeout)...)

	if n.MaxRetries < 0 || n.MaxRetries > maxRetries {
		errs = append(errs, fmt.Errorf("max_retries: must be between 0 and %d, got %d", maxRetries, n.MaxRetries))
	}

	return errs
}

func validateDurationMin(field, value string, minimum time.Duration) []error {
	d, err := time.ParseDuration(value)
	if err != nil {
		return []error{fmt.Errorf("%s: invalid duration %q: %w", field, value, err)}
	}

	if d < minimum {
		return []error{fmt.Errorf("%s: must be at least %s, got %s", field, minimum, value)}
	}

	return nil
}

func validateEndpoint(field, value string) []error {
	if value == "" {
		return nil
	}

	u, err := url.Parse(value)
	if err != nil || u.Scheme == "" || u.Host == "" {
		return []error{fmt.Errorf("%s: must be an absolute URL, got %q", field, value)}
	}

	return nil
}

func validateMime(m map[string]string) []error {
	var errs []error

	for ext, ct := range m {
		if !strings.HasPrefix(ext, ".") {
			errs = append(errs, fmt.Errorf("mime: extension %q must start with a dot", ext))
		}

		if !strings.Contains(ct, "/") {
			errs = append(errs, fmt.Errorf("mime: content type %q for %q is not type/subtype", ct, ext))
		}
	}

	return errs
}

func validateSchedules(schedules []Schedule) []error {
	var errs []error

	seen := make(map[string]bool, len(schedules))

	for i, s := range schedules {
		label := fmt.Sprintf("schedule[%d]", i)
		if s.Name != "" {
			label = fmt.Sprintf("schedule %q", s.Name)
		}

		if s.Name == "" {
			errs = append(errs, fmt.Errorf("%s: name must not be empty", label))
		} else if seen[s.Name] {
			errs = append(errs, fmt.Errorf("%s: duplicate name", label))
		}

		seen[s.Name] = true

		if _, err := cron.ParseStandard(s.Cron); err != nil {
			errs = append(errs, fmt.Errorf("%s: invalid cron %q: %w", label, s.Cron, err))
		}

		if len(s.Paths) == 0 {
			errs = append(errs, fmt.Errorf("%s: paths must not be empty", label))
		}
	}

	return errs
}

func validateNotify(n *NotifyConfig) []error {
	if n.SNSTopic == "" {
		if n.Region != "" || n.Profile != "" {
			return []error{errors.New("notify: region and profile require sns_topic")}
		}

		return nil
	}

	if !strings.HasPrefix(n.SNSTopic, "arn:") {
		return []error{fmt.Errorf("notify.sns_topic: must be a topic ARN, got %q", n.SNSTopic)}
	}

	return nil
}
