package main

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"strings"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/nats-io/nats.go/jetstream"
	"golang.org/x/sync/errgroup"

	"github.com/c360studio/maclib/api"
	"github.com/c360studio/maclib/catalog"
	"github.com/c360studio/maclib/config"
	"github.com/c360studio/maclib/events"
	"github.com/c360studio/maclib/library"
	"github.com/c360studio/maclib/reconcile"
	"github.com/c360studio/maclib/storage"
	"github.com/c360studio/maclib/watch"
)

// natsStoreDir is the JetStream directory under the data directory.
const natsStoreDir = ".nats"

// App is the main application that wires together all components.
type App struct {
	cfg    *config.Config
	logger *slog.Logger

	// NATS
	embeddedServer *server.Server
	natsConn       *nats.Conn
	js             jetstream.JetStream
	mirror         *storage.KVMirror
	publisher      events.Publisher

	// Library
	store    *storage.FileStore
	catalog  *catalog.Controller
	importer *reconcile.Reconciler
}

// NewApp creates a new application instance.
func NewApp(cfg *config.Config, logger *slog.Logger) *App {
	if logger == nil {
		logger = slog.Default()
	}
	return &App{
		cfg:       cfg,
		logger:    logger,
		publisher: events.NopPublisher{},
	}
}

// Start initializes the library. With withNATS the app also starts or
// connects to NATS so changes are published and mirrored; offline commands
// skip it.
func (a *App) Start(ctx context.Context, withNATS bool) error {
	if withNATS {
		if err := a.startNATS(ctx); err != nil {
			return fmt.Errorf("start NATS: %w", err)
		}
	}

	opts := storage.Options{
		BaseDir:    a.cfg.BaseDir(),
		MaxBackups: a.cfg.Storage.MaxBackups,
		Logger:     a.logger.With("component", "storage"),
	}
	if a.mirror != nil {
		opts.Mirror = a.mirror
	}
	a.store = storage.NewFileStore(opts)
	if a.mirror != nil && !a.store.Exists() {
		a.recoverFromMirror(ctx)
	}

	ctrl, err := catalog.New(ctx, a.store,
		catalog.WithLogger(a.logger.With("component", "catalog")),
		catalog.WithPublisher(a.publisher))
	if err != nil {
		return fmt.Errorf("initialize catalog: %w", err)
	}
	a.catalog = ctrl
	a.importer = reconcile.New(ctrl,
		reconcile.WithLogger(a.logger.With("component", "reconcile")),
		reconcile.WithPublisher(a.publisher))

	a.logger.Debug("Components initialized", "base_dir", a.store.BaseDir())
	return nil
}

// recoverFromMirror writes the newest mirrored document to disk when the
// data directory has lost it. Failures are logged and startup continues
// with a default library.
func (a *App) recoverFromMirror(ctx context.Context) {
	data, rev, err := a.mirror.Latest(ctx)
	if err != nil {
		if !errors.Is(err, storage.ErrNoLibrary) {
			a.logger.Warn("Failed to read mirrored library", "error", err)
		}
		return
	}
	if _, err := library.Decode(data); err != nil {
		a.logger.Warn("Mirrored library is malformed", "revision", rev, "error", err)
		return
	}
	if err := a.store.RestoreFromStream(bytes.NewReader(data)); err != nil {
		a.logger.Warn("Failed to recover library from mirror", "revision", rev, "error", err)
		return
	}
	a.logger.Info("Recovered library from mirror", "revision", rev)
}

func (a *App) startNATS(ctx context.Context) error {
	if a.cfg.NATS.URL != "" && !a.cfg.NATS.Embedded {
		// Connect to external NATS
		a.logger.Info("Connecting to NATS", "url", a.cfg.NATS.URL)
		conn, err := nats.Connect(a.cfg.NATS.URL,
			nats.Name(appName),
			nats.MaxReconnects(-1),
			nats.ReconnectWait(time.Second))
		if err != nil {
			return wrapNATSError(err, a.cfg.NATS.URL)
		}
		a.natsConn = conn
	} else {
		// Start embedded NATS server
		a.logger.Info("Starting embedded NATS server")
		opts := &server.Options{
			Port:      -1, // Random available port
			JetStream: true,
			StoreDir:  filepath.Join(a.cfg.BaseDir(), natsStoreDir),
			NoLog:     true,
			NoSigs:    true,
		}

		ns, err := server.NewServer(opts)
		if err != nil {
			return fmt.Errorf("create embedded NATS server: %w", err)
		}

		go ns.Start()

		// Wait for server to be ready
		if !ns.ReadyForConnections(5 * time.Second) {
			ns.Shutdown()
			return fmt.Errorf("embedded NATS server failed to start")
		}

		a.embeddedServer = ns

		// Connect to embedded server
		conn, err := nats.Connect(ns.ClientURL())
		if err != nil {
			ns.Shutdown()
			return fmt.Errorf("connect to embedded NATS: %w", err)
		}
		a.natsConn = conn
	}

	a.publisher = events.NewNATSPublisher(a.natsConn, a.logger.With("component", "events"))

	if !a.cfg.NATS.Mirror {
		return nil
	}

	// Get JetStream context
	js, err := jetstream.New(a.natsConn)
	if err != nil {
		return fmt.Errorf("create JetStream context: %w", err)
	}
	a.js = js

	mirror, err := storage.NewKVMirror(ctx, js, a.cfg.NATS.History, a.logger.With("component", "kv"))
	if err != nil {
		return fmt.Errorf("create library mirror: %w", err)
	}
	a.mirror = mirror
	return nil
}

// wrapNATSError provides helpful guidance when NATS connection fails.
func wrapNATSError(err error, url string) error {
	errStr := err.Error()

	// Check for common connection errors
	if strings.Contains(errStr, "connection refused") ||
		strings.Contains(errStr, "no servers available") ||
		strings.Contains(errStr, "timeout") {
		return fmt.Errorf(`NATS connection failed: %w

NATS is not running at %s.

Unset %s (or nats.url in the config) to use the embedded server.`, err, url, config.EnvNATSURL)
	}

	return fmt.Errorf("NATS connection failed: %w", err)
}

// Serve runs the HTTP server and, when enabled, the library watcher until
// ctx is cancelled or either fails.
func (a *App) Serve(ctx context.Context) error {
	var opts []api.Option
	if a.mirror != nil {
		opts = append(opts, api.WithRevisions(a.mirror))
	}
	srv := api.NewServer(a.cfg.HTTP, a.catalog, a.importer, a.logger.With("component", "api"), opts...)

	var watcher *watch.LibraryWatcher
	if a.cfg.Watch.Enabled {
		w, err := watch.NewLibraryWatcher(a.cfg.Watch, a.store.LibraryPath(), a.catalog, a.store,
			a.logger.With("component", "watch"))
		if err != nil {
			return fmt.Errorf("create library watcher: %w", err)
		}
		watcher = w
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		return srv.ListenAndServe(gctx)
	})
	if watcher != nil {
		g.Go(func() error {
			return watcher.Run(gctx)
		})
	}

	return g.Wait()
}

// Shutdown gracefully stops NATS.
func (a *App) Shutdown() {
	// Close NATS connection
	if a.natsConn != nil {
		_ = a.natsConn.Drain()
		a.natsConn.Close()
	}

	// Shutdown embedded server
	if a.embeddedServer != nil {
		a.embeddedServer.Shutdown()
		a.embeddedServer.WaitForShutdown()
	}
}
