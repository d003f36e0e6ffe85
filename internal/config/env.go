package config

import (
	"fmt"
	"strconv"
	"strings"
)

type lookupFunc func(string) (string, bool)

// applyEnv layers BREWCORE_* variables over file values.
func (c *Config) applyEnv(lookup lookupFunc) error {
	strs := map[string]*string{
		"BREWCORE_STORAGE_DRIVER":     &c.Storage.Driver,
		"BREWCORE_SQLITE_PATH":        &c.Storage.SQLitePath,
		"BREWCORE_POSTGRES_DSN":       &c.Storage.PostgresDSN,
		"BREWCORE_BACKUP_DRIVER":      &c.Backup.Driver,
		"BREWCORE_BACKUP_FS_ROOT":     &c.Backup.FSRoot,
		"BREWCORE_BACKUP_S3_BUCKET":   &c.Backup.S3Bucket,
		"BREWCORE_BACKUP_S3_REGION":   &c.Backup.S3Region,
		"BREWCORE_BACKUP_S3_ENDPOINT": &c.Backup.S3Endpoint,
		"BREWCORE_LOG_LEVEL":          &c.Logging.Level,
		"BREWCORE_LOG_FORMAT":         &c.Logging.Format,
		"BREWCORE_METRICS_EXPORTER":   &c.Metrics.Exporter,
		"BREWCORE_METRICS_NAMESPACE":  &c.Metrics.Namespace,
		"BREWCORE_METRICS_TEXTFILE":   &c.Metrics.Textfile,
	}
	for key, dst := range strs {
		if v, ok := lookup(key); ok && strings.TrimSpace(v) != "" {
			*dst = v
		}
	}
	bools := map[string]*bool{
		"BREWCORE_BACKUP_S3_PATH_STYLE": &c.Backup.S3PathStyle,
		"BREWCORE_METRICS_ENABLED":      &c.Metrics.Enabled,
	}
	for key, dst := range bools {
		v, ok := lookup(key)
		if !ok || strings.TrimSpace(v) == "" {
			continue
		}
		parsed, err := strconv.ParseBool(strings.TrimSpace(v))
		if err != nil {
			return fmt.Errorf("%s: %w", key, err)
		}
		*dst = parsed
	}
	return nil
}
