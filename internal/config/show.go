package config

import (
	"fmt"
	"io"
	"sort"
	"strings"
)

// RenderEffective writes the resolved configuration as an annotated TOML-like
// summary to w, for the "config show" command. Secrets are masked.
func RenderEffective(r *Resolved, w io.Writer) error {
	ew := &errWriter{w: w}

	if r.Path != "" {
		ew.printf("# Effective configuration (file: %s)\n\n", r.Path)
	} else {
		ew.printf("# Effective configuration (defaults)\n\n")
	}

	renderBackup(ew, &r.BackupConfig)
	renderLoggingNetwork(ew, &r.Config)
	renderProviders(ew, &r.Config)
	renderMime(ew, r.Mime)
	renderSchedules(ew, r.Schedules)

	if r.Notify.SNSTopic != "" {
		ew.printf("[notify]\n")
		ew.printf("sns_topic = %q\n", r.Notify.SNSTopic)
		ew.printf("region    = %q\n", r.Notify.Region)
		ew.printf("profile   = %q\n\n", r.Notify.Profile)
	}

	return ew.err
}

// errWriter wraps an io.Writer and captures the first write error.
// Subsequent writes after an error are no-ops.
type errWriter struct {
	w   io.Writer
	err error
}

func (ew *errWriter) printf(format string, args ...any) {
	if ew.err != nil {
		return
	}

	_, ew.err = fmt.Fprintf(ew.w, format, args...)
}

func renderBackup(ew *errWriter, b *BackupConfig) {
	ew.printf("provider           = %q\n", b.Provider)
	ew.printf("folder             = %q\n", b.Folder)
	ew.printf("folder_description = %q\n", b.FolderDescription)
	ew.printf("description        = %q\n", b.Description)
	ew.printf("new_revision       = %t\n", b.NewRevision)
	ew.printf("require_ready      = %t\n", b.RequireReady)
	ew.printf("parallel_uploads   = %d\n", b.ParallelUploads)
	ew.printf("max_file_size      = %q\n", b.MaxFileSize)
}

func renderLoggingNetwork(ew *errWriter, c *Config) {
	ew.printf("log_level          = %q\n", c.LogLevel)
	ew.printf("log_format         = %q\n", c.LogFormat)

	if c.LogFile != "" {
		ew.printf("log_file           = %q\n", c.LogFile)
	}

	ew.printf("connect_timeout    = %q\n", c.ConnectTimeout)
	ew.printf("data_timeout       = %q\n", c.DataTimeout)
	ew.printf("max_retries        = %d\n", c.MaxRetries)

	if c.UserAgent != "" {
		ew.printf("user_agent         = %q\n", c.UserAgent)
	}

	ew.printf("\n")
}

func renderProviders(ew *errWriter, c *Config) {
	ew.printf("[gdrive]\n")
	ew.printf("client_id     = %q\n", c.GDrive.ClientID)
	ew.printf("client_secret = %q\n", mask(c.GDrive.ClientSecret))

	if c.GDrive.Endpoint != "" {
		ew.printf("endpoint      = %q\n", c.GDrive.Endpoint)
	}

	ew.printf("\n[onedrive]\n")

	if c.OneDrive.ClientID != "" {
		ew.printf("client_id = %q\n", c.OneDrive.ClientID)
	}

	ew.printf("drive_id  = %q\n", c.OneDrive.DriveID)

	if c.OneDrive.Endpoint != "" {
		ew.printf("endpoint  = %q\n", c.OneDrive.Endpoint)
	}

	ew.printf("\n")
}

func renderMime(ew *errWriter, m map[string]string) {
	if len(m) == 0 {
		return
	}

	exts := make([]string, 0, len(m))
	for ext := range m {
		exts = append(exts, ext)
	}

	sort.Strings(exts)

	ew.printf("[mime]\n")

	for _, ext := range exts {
		ew.printf("%q = %q\n", ext, m[ext])
	}

	ew.printf("\n")
}

func renderSchedules(ew *errWriter, schedules []Schedule) {
	for _, s := range schedules {
		quoted := make([]string, len(s.Paths))
		for i, p := range s.Paths {
			quoted[i] = fmt.Sprintf("%q", p)
		}

		ew.printf("[[schedule]]\n")
		ew.printf("name  = %q\n", s.Name)
		ew.printf("cron  = %q\n", s.Cron)
		ew.printf("paths = [%s]\n\n", strings.Join(quoted, ", "))
	}
}

func mask(secret string) string {
	if secret == "" {
		return ""
	}

	return "********"
}
