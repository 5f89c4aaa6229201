// Package app assembles the components a ggchat command needs from the
// resolved configuration: logger, session, service client and event
// publisher.
package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"
	"time"

	"github.com/spf13/cobra"

	"github.com/papercomputeco/ggchat/pkg/client"
	"github.com/papercomputeco/ggchat/pkg/config"
	"github.com/papercomputeco/ggchat/pkg/eventstream"
	"github.com/papercomputeco/ggchat/pkg/eventstream/kafka"
	"github.com/papercomputeco/ggchat/pkg/eventstream/nop"
	"github.com/papercomputeco/ggchat/pkg/eventstream/worker"
	"github.com/papercomputeco/ggchat/pkg/logger"
	"github.com/papercomputeco/ggchat/pkg/session"
)

// Options selects how an App is built.
type Options struct {
	// Config is the resolved configuration, typically config.FromViper.
	Config *config.Config

	// ConfigDir overrides the .ggchat/ directory used for session.toml.
	ConfigDir string

	Debug bool

	// LogWriter receives log output. Defaults to os.Stderr.
	LogWriter io.Writer

	// LogFile, when set, also appends JSON records at Debug level to
	// this path.
	LogFile string
}

// App holds the long-lived components shared by a command's run.
type App struct {
	Config  *config.Config
	Logger  *slog.Logger
	Store   *session.Store
	Session *session.Session
	Client  *client.Client

	// Publisher is asynchronous; Close drains it.
	Publisher eventstream.Publisher

	TurnTimeout    time.Duration
	ActiveInterval time.Duration
	IdleInterval   time.Duration

	logFile *os.File
}

// New builds an App. Callers must Close it.
func New(opts Options) (*App, error) {
	if opts.Config == nil {
		return nil, errors.New("app requires a config")
	}
	cfg := opts.Config

	w := opts.LogWriter
	if w == nil {
		w = os.Stderr
	}
	log := logger.New(
		logger.WithDebug(opts.Debug),
		logger.WithPretty(true),
		logger.WithWriter(w),
	)

	var logFile *os.File
	if opts.LogFile != "" {
		f, err := os.OpenFile(opts.LogFile, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600)
		if err != nil {
			return nil, fmt.Errorf("opening log file: %w", err)
		}
		logFile = f
		log = logger.Multi(log, logger.New(
			logger.WithDebug(true),
			logger.WithJSON(true),
			logger.WithSource(true),
			logger.WithWriter(f),
		))
	}

	a, err := build(cfg, opts.ConfigDir, log)
	if err != nil {
		if logFile != nil {
			_ = logFile.Close()
		}
		return nil, err
	}
	a.logFile = logFile
	return a, nil
}

func build(cfg *config.Config, configDir string, log *slog.Logger) (*App, error) {
	turnTimeout, active, idle, err := cfg.Durations()
	if err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	store, err := session.NewStore(configDir)
	if err != nil {
		return nil, fmt.Errorf("opening session store: %w", err)
	}

	sess, err := store.Open()
	if err != nil {
		return nil, err
	}

	c, err := client.New(client.Config{
		BaseURL: cfg.Server.URL,
		Session: sess,
		Logger:  log,
	})
	if err != nil {
		return nil, err
	}

	publisher, err := NewPublisher(cfg.Events, log)
	if err != nil {
		return nil, err
	}

	return &App{
		Config:         cfg,
		Logger:         log,
		Store:          store,
		Session:        sess,
		Client:         c,
		Publisher:      publisher,
		TurnTimeout:    turnTimeout,
		ActiveInterval: active,
		IdleInterval:   idle,
	}, nil
}

// FromCommand resolves configuration for cmd through viper, binding the
// given flag registry keys, and builds an App from it.
func FromCommand(cmd *cobra.Command, flagKeys []string) (*App, error) {
	configDir, _ := cmd.Flags().GetString("config-dir")
	debug, _ := cmd.Flags().GetBool("debug")
	logFile, _ := cmd.Flags().GetString("log-file")

	v, err := config.InitViper(configDir)
	if err != nil {
		return nil, fmt.Errorf("loading config: %w", err)
	}
	config.BindRegisteredFlags(v, cmd, config.Flags, flagKeys)

	return New(Options{
		Config:    config.FromViper(v),
		ConfigDir: configDir,
		Debug:     debug,
		LogWriter: cmd.ErrOrStderr(),
		LogFile:   logFile,
	})
}

// WatchSession keeps the live session in sync with session.toml until ctx
// is done. Errors are logged.
func (a *App) WatchSession(ctx context.Context) {
	go func() {
		err := session.Watch(ctx, a.Store, a.Session, a.Logger)
		if err != nil && !errors.Is(err, context.Canceled) {
			a.Logger.Warn("session watch stopped", "error", err)
		}
	}()
}

// Close drains queued events, closes the publisher backend and the log
// file if one was opened.
func (a *App) Close() error {
	err := a.Publisher.Close()
	if a.logFile != nil {
		err = errors.Join(err, a.logFile.Close())
	}
	return err
}

// NewPublisher returns the configured event backend wrapped in a worker
// pool, so publishing never blocks the caller.
func NewPublisher(cfg config.EventsConfig, log *slog.Logger) (eventstream.Publisher, error) {
	var backend eventstream.Publisher
	switch cfg.Provider {
	case "", config.EventsProviderNop:
		backend = nop.NewPublisher()
	case config.EventsProviderKafka:
		p, err := kafka.NewPublisher(kafka.Config{
			Brokers: cfg.Brokers,
			Topic:   cfg.Topic,
			Logger:  log,
		})
		if err != nil {
			return nil, fmt.Errorf("creating kafka publisher: %w", err)
		}
		backend = p
	default:
		return nil, fmt.Errorf("unknown events provider %q", cfg.Provider)
	}

	pool, err := worker.NewPool(&worker.Config{
		Publisher: backend,
		Logger:    log,
	})
	if err != nil {
		_ = backend.Close()
		return nil, err
	}
	return pool, nil
}
