package config

import (
	"errors"
	"fmt"
	"regexp"
)

var metricNamespace = regexp.MustCompile(`^[a-zA-Z_][a-zA-Z0-9_]*$`)

// Validate ensures the configuration is usable.
func (c *Config) Validate() error {
	if err := c.validateStorage(); err != nil {
		return err
	}
	if err := c.validateBackup(); err != nil {
		return err
	}
	if err := c.validateLogging(); err != nil {
		return err
	}
	return c.validateMetrics()
}

func (c *Config) validateStorage() error {
	switch c.Storage.Driver {
	case "memory", "sqlite":
		return nil
	case "postgres":
		if c.Storage.PostgresDSN == "" {
			return errors.New("storage.postgres_dsn is required when storage.driver is postgres")
		}
		return nil
	default:
		return fmt.Errorf("storage.driver: unsupported value %q (want memory, sqlite or postgres)", c.Storage.Driver)
	}
}

func (c *Config) validateBackup() error {
	switch c.Backup.Driver {
	case "fs", "memory":
		return nil
	case "s3":
		if c.Backup.S3Bucket == "" {
			return errors.New("backup.s3_bucket is required when backup.driver is s3")
		}
		return nil
	default:
		return fmt.Errorf("backup.driver: unsupported value %q (want fs, memory or s3)", c.Backup.Driver)
	}
}

func (c *Config) validateLogging() error {
	switch c.Logging.Format {
	case "console", "json":
	default:
		return fmt.Errorf("logging.format: unsupported value %q", c.Logging.Format)
	}
	switch c.Logging.Level {
	case "debug", "info", "warn", "error":
	default:
		return fmt.Errorf("logging.level: unsupported value %q", c.Logging.Level)
	}
	return nil
}

func (c *Config) validateMetrics() error {
	if !metricNamespace.MatchString(c.Metrics.Namespace) {
		return fmt.Errorf("metrics.namespace: invalid metric prefix %q", c.Metrics.Namespace)
	}
	switch c.Metrics.Exporter {
	case ExporterPrometheus, ExporterExpvar:
	default:
		return fmt.Errorf("metrics.exporter: unsupported value %q", c.Metrics.Exporter)
	}
	return nil
}
