// Package config implements TOML configuration loading, validation, and
// platform-specific path resolution for drivebackup. Values flow through a
// four-layer override chain: defaults -> config file -> environment -> CLI
// flags.
package config

import "time"

// Provider names accepted by the provider key.
const (
	ProviderGDrive   = "gdrive"
	ProviderOneDrive = "onedrive"
)

// Config is the top-level configuration structure parsed from a TOML file.
// Core, logging and network settings are flat top-level keys; provider
// credentials, MIME overrides, schedules and notifications live in their own
// tables.
type Config struct {
	BackupConfig
	LoggingConfig
	NetworkConfig

	GDrive    GDriveConfig      `toml:"gdrive"`
	OneDrive  OneDriveConfig    `toml:"onedrive"`
	Mime      map[string]string `toml:"mime"`
	Schedules []Schedule        `toml:"schedule"`
	Notify    NotifyConfig      `toml:"notify"`
}

// BackupConfig controls where backups go and how objects are written.
type BackupConfig struct {
	Provider          string `toml:"provider"`
	Folder            string `toml:"folder"`
	FolderDescription string `toml:"folder_description"`
	Description       string `toml:"description"`
	NewRevision       bool   `toml:"new_revision"`
	RequireReady      bool   `toml:"require_ready"`
	ParallelUploads   int    `toml:"parallel_uploads"`
	MaxFileSize       string `toml:"max_file_size"`
}

// LoggingConfig controls log output: level, destination, and format.
type LoggingConfig struct {
	LogLevel  string `toml:"log_level"`
	LogFile   string `toml:"log_file"`
	LogFormat string `toml:"log_format"`
}

// NetworkConfig controls HTTP client behavior. max_retries only applies to
// the OneDrive transport; zero disables retries.
type NetworkConfig struct {
	ConnectTimeout string `toml:"connect_timeout"`
	DataTimeout    string `toml:"data_timeout"`
	MaxRetries     int    `toml:"max_retries"`
	UserAgent      string `toml:"user_agent"`
}

// GDriveConfig holds the Google OAuth2 client and an optional API endpoint
// override.
type GDriveConfig struct {
	ClientID     string `toml:"client_id"`
	ClientSecret string `toml:"client_secret"`
	Endpoint     string `toml:"endpoint"`
}

// OneDriveConfig selects the drive and optionally overrides the public client
// and Graph endpoint.
type OneDriveConfig struct {
	ClientID string `toml:"client_id"`
	DriveID  string `toml:"drive_id"`
	Endpoint string `toml:"endpoint"`
}

// Schedule is one [[schedule]] entry run by the run command.
type Schedule struct {
	Name  string   `toml:"name"`
	Cron  string   `toml:"cron"`
	Paths []string `toml:"paths"`
}

// NotifyConfig enables failure notifications over SNS when SNSTopic is set.
type NotifyConfig struct {
	SNSTopic string `toml:"sns_topic"`
	Region   string `toml:"region"`
	Profile  string `toml:"profile"`
}

// CLIOverrides holds values from CLI flags. Empty strings mean "not
// specified".
type CLIOverrides struct {
	ConfigPath string // --config
	Provider   string // --provider
	Folder     string // --folder
}

// Resolved is a validated Config with the override chain applied and its
// string-typed values parsed.
type Resolved struct {
	Config

	Path         string
	MaxFileBytes int64
	Timeouts     Timeouts
}

// Timeouts are the parsed network timeouts. Connect bounds dialing and the
// TLS handshake; Data bounds waiting for response headers.
type Timeouts struct {
	Connect time.Duration
	Data    time.Duration
}
