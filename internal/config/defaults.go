package config

// Default values: layer 0 of the override chain.
const (
	defaultProvider          = ProviderGDrive
	defaultFolder            = "DriveUploader Backup"
	defaultFolderDescription = "Backup of files"
	defaultDescription       = "uploaded by sync"
	defaultParallelUploads   = 4
	defaultMaxFileSize       = "5GB"
	defaultLogLevel          = "info"
	defaultLogFormat         = "auto"
	defaultConnectTimeout    = "10s"
	defaultDataTimeout       = "60s"
)

// DefaultConfig returns a Config populated with all default values. It is
// the starting point for TOML decoding, so unset keys keep their defaults.
func DefaultConfig() *Config {
	return &Config{
		BackupConfig: BackupConfig{
			Provider:          defaultProvider,
			Folder:            defaultFolder,
			FolderDescription: defaultFolderDescription,
			Description:       defaultDescription,
			NewRevision:       true,
			ParallelUploads:   defaultParallelUploads,
			MaxFileSize:       defaultMaxFileSize,
		},
		LoggingConfig: LoggingConfig{
			LogLevel:  defaultLogLevel,
			LogFormat: defaultLogFormat,
		},
		NetworkConfig: NetworkConfig{
			ConnectTimeout: defaultConnectTimeout,
			DataTimeout:    defaultDataTimeout,
		},
		Mime: make(map[string]string),
	}
}
