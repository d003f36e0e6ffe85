package config

import (
	"fmt"
	"strings"
)

func (c *Config) normalize() error {
	if err := c.normalizeStorage(); err != nil {
		return err
	}
	if err := c.normalizeBackup(); err != nil {
		return err
	}
	c.normalizeLogging()
	c.normalizeMetrics()
	return nil
}

func (c *Config) normalizeStorage() error {
	c.Storage.Driver = strings.ToLower(strings.TrimSpace(c.Storage.Driver))
	if c.Storage.Driver == "" {
		c.Storage.Driver = defaultStorageDriver
	}
	if strings.TrimSpace(c.Storage.SQLitePath) == "" {
		c.Storage.SQLitePath = defaultSQLitePath
	}
	var err error
	if c.Storage.SQLitePath, err = expandPath(c.Storage.SQLitePath); err != nil {
		return fmt.Errorf("storage.sqlite_path: %w", err)
	}
	c.Storage.PostgresDSN = strings.TrimSpace(c.Storage.PostgresDSN)
	return nil
}

func (c *Config) normalizeBackup() error {
	c.Backup.Driver = strings.ToLower(strings.TrimSpace(c.Backup.Driver))
	if c.Backup.Driver == "" {
		c.Backup.Driver = defaultBackupDriver
	}
	if strings.TrimSpace(c.Backup.FSRoot) == "" {
		c.Backup.FSRoot = defaultBackupRoot
	}
	var err error
	if c.Backup.FSRoot, err = expandPath(c.Backup.FSRoot); err != nil {
		return fmt.Errorf("backup.fs_root: %w", err)
	}
	c.Backup.S3Bucket = strings.TrimSpace(c.Backup.S3Bucket)
	c.Backup.S3Endpoint = strings.TrimSpace(c.Backup.S3Endpoint)
	c.Backup.S3Region = strings.TrimSpace(c.Backup.S3Region)
	if c.Backup.S3Region == "" {
		c.Backup.S3Region = defaultS3Region
	}
	return nil
}

func (c *Config) normalizeLogging() {
	c.Logging.Format = strings.ToLower(strings.TrimSpace(c.Logging.Format))
	if c.Logging.Format == "" {
		c.Logging.Format = defaultLogFormat
	}
	c.Logging.Level = strings.ToLower(strings.TrimSpace(c.Logging.Level))
	if c.Logging.Level == "" {
		c.Logging.Level = defaultLogLevel
	}
}

func (c *Config) normalizeMetrics() {
	c.Metrics.Namespace = strings.TrimSpace(c.Metrics.Namespace)
	if c.Metrics.Namespace == "" {
		c.Metrics.Namespace = defaultMetricsPrefix
	}
	c.Metrics.Textfile = strings.TrimSpace(c.Metrics.Textfile)
	c.Metrics.Exporter = strings.ToLower(strings.TrimSpace(c.Metrics.Exporter))
	if c.Metrics.Exporter == "" {
		c.Metrics.Exporter = ExporterPrometheus
	}
}
