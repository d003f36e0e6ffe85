package config

const (
	defaultConfigPath    = "~/.config/brewcore/config.toml"
	projectConfigName    = "brewcore.toml"
	defaultStorageDriver = "sqlite"
	defaultSQLitePath    = "~/.local/share/brewcore/brewcore.db"
	defaultBackupDriver  = "fs"
	defaultBackupRoot    = "~/.local/share/brewcore/backups"
	defaultS3Region      = "us-east-1"
	defaultLogFormat     = "console"
	defaultLogLevel      = "info"
	defaultMetricsPrefix = "brewcore"
)

// Default returns a Config populated with repository defaults.
func Default() Config {
	return Config{
		Storage: Storage{
			Driver:     defaultStorageDriver,
			SQLitePath: defaultSQLitePath,
		},
		Backup: Backup{
			Driver:   defaultBackupDriver,
			FSRoot:   defaultBackupRoot,
			S3Region: defaultS3Region,
		},
		Logging: Logging{
			Format: defaultLogFormat,
			Level:  defaultLogLevel,
		},
		Metrics: Metrics{
			Exporter:  ExporterPrometheus,
			Namespace: defaultMetricsPrefix,
		},
	}
}
