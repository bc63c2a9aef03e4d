package config

import "os"

// Environment variable names for overrides.
const (
	EnvConfig   = "DRIVEBACKUP_CONFIG"
	EnvProvider = "DRIVEBACKUP_PROVIDER"
	EnvFolder   = "DRIVEBACKUP_FOLDER"
)

// EnvOverrides holds values derived from environment variables.
type EnvOverrides struct {
	ConfigPath string // DRIVEBACKUP_CONFIG: config file path
	Provider   string // DRIVEBACKUP_PROVIDER: gdrive or onedrive
	Folder     string // DRIVEBACKUP_FOLDER: backup folder name
}

// ReadEnvOverrides reads the override variables from the environment.
func ReadEnvOverrides() EnvOverrides {
	return EnvOverrides{
		ConfigPath: os.Getenv(EnvConfig),
		Provider:   os.Getenv(EnvProvider),
		Folder:     os.Getenv(EnvFolder),
	}
}
