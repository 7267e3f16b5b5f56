package command

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/urfave/cli/v2"
	"golang.org/x/time/rate"

	"github.com/yndnr/tablesync/internal/cli/output"
	"github.com/yndnr/tablesync/internal/config"
	"github.com/yndnr/tablesync/internal/core/service"
	"github.com/yndnr/tablesync/internal/infra/buildinfo"
	"github.com/yndnr/tablesync/internal/infra/confloader"
	"github.com/yndnr/tablesync/internal/storage"
	"github.com/yndnr/tablesync/internal/telemetry/logger"
	"github.com/yndnr/tablesync/internal/telemetry/metric"
)

const sessionKey = "session"

// App creates the CLI application.
func App() *cli.App {
	return &cli.App{
		Name:                 "tablesync",
		Usage:                "Versioned table synchronization over memory, Badger, SQLite or Raft storage",
		Version:              buildinfo.String(),
		Flags:                globalFlags(),
		EnableBashCompletion: true,
		Commands: []*cli.Command{
			GetCommand(),
			SetCommand(),
			DeleteCommand(),
			GetAllCommand(),
			TablesCommand(),
			ResolveCommand(),
			ExportCommand(),
			ImportCommand(),
			SnapshotsCommand(),
			WatchCommand(),
			VersionCommand(),
			ConfigCommand(),
		},
		Before: setup,
		After:  teardown,
	}
}

// globalFlags returns the global CLI flags. Flags that are set override the
// configuration file and the environment.
func globalFlags() []cli.Flag {
	return []cli.Flag{
		&cli.StringFlag{
			Name:    "config",
			Aliases: []string{"c"},
			Usage:   "Configuration file (YAML or TOML)",
			EnvVars: []string{"TABLESYNC_CONFIG"},
		},
		&cli.StringFlag{
			Name:  "backend",
			Usage: "Storage backend: memory, badger, sqlite, raft",
		},
		&cli.StringFlag{
			Name:    "data-dir",
			Aliases: []string{"d"},
			Usage:   "Data directory",
		},
		&cli.StringFlag{
			Name:  "policy",
			Usage: "Conflict policy: reject, last-writer-wins, merge",
		},
		&cli.StringFlag{
			Name:    "output",
			Aliases: []string{"o"},
			Usage:   "Output format: table, json, yaml",
			Value:   "table",
		},
		&cli.BoolFlag{
			Name:    "wide",
			Aliases: []string{"w"},
			Usage:   "Show wide output (more columns)",
		},
		&cli.StringFlag{
			Name:  "log-level",
			Usage: "Log level: debug, info, warn, error",
		},
		&cli.StringFlag{
			Name:  "log-format",
			Usage: "Log format: text, json, console",
		},
		&cli.StringFlag{
			Name:  "log-file",
			Usage: "Write logs to a rotating file instead of standard error",
		},
	}
}

// flagKeys maps global flags onto configuration keys.
var flagKeys = map[string]string{
	"backend":    "storage.backend",
	"data-dir":   "storage.data_dir",
	"policy":     "storage.policy",
	"log-level":  "log.level",
	"log-format": "log.format",
	"log-file":   "log.file",
}

// session is the state shared by the commands of one run.
type session struct {
	cfg    *config.Config
	loader *confloader.Loader
	log    logger.Logger
	slog   *slog.Logger
	format output.Formatter
	out    io.Writer

	// metrics is set by commands that expose a registry.
	metrics *metric.Registry

	// logFile is the rotating log file, when one is configured.
	logFile io.Closer
}

func setup(c *cli.Context) error {
	format, err := output.ParseFormat(c.String("output"))
	if err != nil {
		return err
	}

	overrides := make(map[string]any)
	for flag, key := range flagKeys {
		if c.IsSet(flag) {
			overrides[key] = c.String(flag)
		}
	}

	loader := confloader.NewLoader(
		confloader.WithConfigFile(c.String("config")),
		confloader.WithOverrides(overrides),
	)
	cfg := config.Default()
	if err := loader.Load(cfg); err != nil {
		return err
	}
	if err := config.Verify(cfg); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	logOut := c.App.ErrWriter
	var logFile io.WriteCloser
	if cfg.Log.File != "" {
		logFile = logger.NewFileWriter(logger.FileConfig{
			Path:       cfg.Log.File,
			MaxSizeMB:  cfg.Log.MaxSizeMB,
			MaxBackups: cfg.Log.MaxBackups,
			MaxAge:     cfg.Log.MaxAge,
			Compress:   cfg.Log.Compress,
		})
		logOut = logFile
	}
	log, err := logger.New(logger.Config{
		Level:  cfg.Log.Level,
		Format: cfg.Log.Format,
		Output: logOut,
	})
	if err != nil {
		if logFile != nil {
			logFile.Close()
		}
		return err
	}
	logger.SetDefault(log)

	if c.App.Metadata == nil {
		c.App.Metadata = make(map[string]any)
	}
	c.App.Metadata[sessionKey] = &session{
		cfg:     cfg,
		loader:  loader,
		log:     log,
		slog:    logger.Slog(log),
		format:  output.NewFormatter(format, c.Bool("wide")),
		out:     c.App.Writer,
		logFile: logFile,
	}
	return nil
}

// teardown releases what setup opened.
func teardown(c *cli.Context) error {
	s := getSession(c)
	if s == nil || s.logFile == nil {
		return nil
	}
	return s.logFile.Close()
}

func getSession(c *cli.Context) *session {
	s, _ := c.App.Metadata[sessionKey].(*session)
	return s
}

// commandContext tags the command's context with a request ID and logger.
func (s *session) commandContext(c *cli.Context, command string) context.Context {
	ctx := logger.EnsureRequestID(c.Context)
	ctx = logger.WithLogger(ctx, s.log.With("command", command))
	return logger.WithLogger(ctx, logger.L(ctx))
}

// openEngine opens the configured storage engine.
func (s *session) openEngine(ctx context.Context) (*storage.Engine, error) {
	sc, err := config.ToStorageConfig(s.cfg, s.slog)
	if err != nil {
		return nil, err
	}
	if s.metrics != nil {
		sc.Metrics = s.metrics.Prometheus()
	}
	return storage.Open(ctx, sc)
}

// withEngine runs fn against a freshly opened engine and closes it after.
func (s *session) withEngine(ctx context.Context, fn func(*storage.Engine) error) error {
	engine, err := s.openEngine(ctx)
	if err != nil {
		return err
	}
	defer func() {
		if cerr := engine.Close(); cerr != nil {
			s.log.Warn("close storage engine", "error", cerr)
		}
	}()
	return fn(engine)
}

// print writes data with the configured formatter.
func (s *session) print(data any) error {
	return s.format.Format(s.out, data)
}

// bind returns the synchronizer for table wrapped in the configured
// middleware.
func bind[T any](s *session, backend storage.Backend, table string) service.Synchronizer[T] {
	mws := []service.Middleware[T]{service.WithLogging[T](table, s.slog)}
	if s.metrics != nil {
		mws = append(mws, service.WithMetrics[T](table, s.metrics))
	}
	if limit := s.cfg.Storage.RateLimit; limit > 0 {
		burst := max(s.cfg.Storage.RateBurst, 1)
		mws = append(mws, service.WithRateLimit[T](rate.NewLimiter(rate.Limit(limit), burst)))
	}
	return service.Chain(storage.Bind[T](backend, table), mws...)
}

func requireArgs(c *cli.Context, n int, usage string) error {
	if c.NArg() < n {
		return fmt.Errorf("usage: %s %s", c.Command.Name, usage)
	}
	return nil
}
