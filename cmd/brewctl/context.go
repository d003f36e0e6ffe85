package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"strings"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"

	"brewcore/internal/backup"
	"brewcore/internal/config"
	"brewcore/internal/core"
	"brewcore/internal/logging"
	"brewcore/internal/storelock"
	"brewcore/pkg/domain"
)

// lockWait bounds how long a command queues behind another brewctl
// holding the same database.
const lockWait = 5 * time.Second

type commandContext struct {
	configFlag *string
	jsonFlag   *bool
	traceFlag  *string

	configOnce sync.Once
	config     *config.Config
	configPath string
	configErr  error
}

func newCommandContext(configFlag *string, jsonFlag *bool) *commandContext {
	return &commandContext{configFlag: configFlag, jsonFlag: jsonFlag}
}

func (c *commandContext) ensureConfig() (*config.Config, error) {
	c.configOnce.Do(func() {
		var path string
		if c.configFlag != nil {
			path = strings.TrimSpace(*c.configFlag)
		}
		cfg, resolved, _, err := config.Load(path)
		if err != nil {
			c.configErr = err
			return
		}
		c.config, c.configPath = cfg, resolved
	})
	return c.config, c.configErr
}

func (c *commandContext) jsonOutput() bool {
	return c.jsonFlag != nil && *c.jsonFlag
}

func (c *commandContext) logger(w io.Writer) (*slog.Logger, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return logging.New(logging.Options{Level: cfg.Logging.Level, Format: cfg.Logging.Format, Output: w})
}

// session is one opened store plus everything that must be released
// when the command finishes.
type session struct {
	svc      *core.ProductionService
	store    domain.PersistentStore
	lock     *storelock.Lock
	registry *prometheus.Registry
	expvar   *core.ExpvarMetricsRecorder
	textfile string
	trace    *os.File
	logger   *slog.Logger
}

func (s *session) close() error {
	var errs []error
	if s.registry != nil && s.textfile != "" {
		if err := prometheus.WriteToTextfile(s.textfile, s.registry); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if s.expvar != nil && s.textfile != "" {
		if err := writeExpvar(s.textfile, s.expvar); err != nil {
			errs = append(errs, fmt.Errorf("write metrics: %w", err))
		}
	}
	if closer, ok := s.store.(io.Closer); ok {
		if err := closer.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close store: %w", err))
		}
	}
	if s.trace != nil {
		if err := s.trace.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close trace: %w", err))
		}
	}
	if err := s.lock.Release(); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func writeExpvar(path string, rec *core.ExpvarMetricsRecorder) error {
	data, err := json.MarshalIndent(rec.Snapshot(), "", "  ")
	if err != nil {
		return err
	}
	return os.WriteFile(path, append(data, '\n'), 0o644)
}

func (c *commandContext) open(cmd *cobra.Command) (*session, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	logger, err := c.logger(cmd.ErrOrStderr())
	if err != nil {
		return nil, err
	}
	s := &session{logger: logger}

	driver := core.StorageDriver(cfg.Storage.Driver)
	if driver == core.StorageSQLite {
		waitCtx, cancel := context.WithTimeout(cmd.Context(), lockWait)
		s.lock, err = storelock.Wait(waitCtx, cfg.Storage.SQLitePath, 0)
		cancel()
		if err != nil {
			return nil, err
		}
	}
	store, err := core.OpenPersistentStore(core.StorageOptions{
		Driver:      driver,
		SQLitePath:  cfg.Storage.SQLitePath,
		PostgresDSN: cfg.Storage.PostgresDSN,
	}, nil)
	if err != nil {
		_ = s.lock.Release()
		return nil, fmt.Errorf("open %s store: %w", driver, err)
	}
	s.store = store

	opts := []core.Option{core.WithLogger(logging.Component(logger, "service"))}
	if cfg.Metrics.Enabled {
		s.textfile = cfg.Metrics.Textfile
		switch cfg.Metrics.Exporter {
		case config.ExporterExpvar:
			s.expvar = core.NewExpvarMetricsRecorder("")
			opts = append(opts, core.WithMetricsRecorder(s.expvar))
		default:
			s.registry = prometheus.NewRegistry()
			rec, err := core.NewPrometheusMetricsRecorder(s.registry, cfg.Metrics.Namespace)
			if err != nil {
				_ = s.close()
				return nil, err
			}
			opts = append(opts, core.WithMetricsRecorder(rec))
		}
	}
	if c.traceFlag != nil && strings.TrimSpace(*c.traceFlag) != "" {
		f, err := os.OpenFile(*c.traceFlag, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			_ = s.close()
			return nil, fmt.Errorf("open trace file: %w", err)
		}
		s.trace = f
		opts = append(opts, core.WithTracer(core.NewJSONTracer(f)))
	}
	s.svc = core.NewProductionService(store, opts...)
	logger.Debug("store opened", "driver", driver, "config", c.configPath)
	return s, nil
}

// withService runs fn against a freshly opened service.
func (c *commandContext) withService(cmd *cobra.Command, fn func(context.Context, *core.ProductionService) error) (err error) {
	s, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), s.svc)
}

// withSession is withService for commands that need the raw store.
func (c *commandContext) withSession(cmd *cobra.Command, fn func(context.Context, *session) error) (err error) {
	s, err := c.open(cmd)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := s.close(); err == nil {
			err = cerr
		}
	}()
	return fn(cmd.Context(), s)
}

func (c *commandContext) backupStore(ctx context.Context) (backup.Store, error) {
	cfg, err := c.ensureConfig()
	if err != nil {
		return nil, err
	}
	return backup.Open(ctx, backup.Config{
		Driver: backup.Driver(cfg.Backup.Driver),
		FSRoot: cfg.Backup.FSRoot,
		S3: backup.S3Config{
			Bucket:    cfg.Backup.S3Bucket,
			Region:    cfg.Backup.S3Region,
			Endpoint:  cfg.Backup.S3Endpoint,
			PathStyle: cfg.Backup.S3PathStyle,
		},
	})
}

func shouldSkipConfig(cmd *cobra.Command) bool {
	for c := cmd; c != nil; c = c.Parent() {
		if c.Annotations != nil && c.Annotations["skipConfigLoad"] == "true" {
			return true
		}
	}
	return false
}
