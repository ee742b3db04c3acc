// Canvas Link - cloud control plane for a 3D-printer hub
//
// This is the main entry point of the hub daemon. It registers the hub with
// the Canvas cloud, keeps the broker session up, answers cloud requests
// against the local printer and broadcasts printer state.
package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/nerrad567/canvas-link/internal/api"
	"github.com/nerrad567/canvas-link/internal/cloud"
	"github.com/nerrad567/canvas-link/internal/credentials"
	"github.com/nerrad567/canvas-link/internal/hubdata"
	"github.com/nerrad567/canvas-link/internal/infrastructure/config"
	"github.com/nerrad567/canvas-link/internal/infrastructure/database"
	"github.com/nerrad567/canvas-link/internal/infrastructure/influxdb"
	"github.com/nerrad567/canvas-link/internal/infrastructure/logging"
	"github.com/nerrad567/canvas-link/internal/infrastructure/mqtt"
	"github.com/nerrad567/canvas-link/internal/journal"
	"github.com/nerrad567/canvas-link/internal/printer"
	"github.com/nerrad567/canvas-link/internal/printer/octoprint"
	"github.com/nerrad567/canvas-link/internal/registration"
	"github.com/nerrad567/canvas-link/internal/router"
	"github.com/nerrad567/canvas-link/internal/state"
	"github.com/nerrad567/canvas-link/internal/storage"
	"github.com/nerrad567/canvas-link/internal/supervisor"
	"github.com/nerrad567/canvas-link/migrations"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

const (
	// Default configuration file path
	defaultConfigPath = "configs/config.yaml"

	// configPathEnv overrides defaultConfigPath.
	configPathEnv = "CANVASLINK_CONFIG"

	// rootCATimeout bounds the startup root CA download.
	rootCATimeout = 30 * time.Second
)

func main() {
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the application logic, separated from main for testability.
// It returns nil on clean shutdown.
func run(ctx context.Context) error {
	log := logging.Default()
	log.Info("starting Canvas Link",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	log = logging.New(cfg.Logging, version)

	// Command journal
	db, err := database.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("opening database: %w", err)
	}
	defer func() {
		log.Info("closing database")
		if closeErr := db.Close(); closeErr != nil {
			log.Error("error closing database", "error", closeErr)
		}
	}()
	if migrateErr := db.Migrate(ctx, migrations.FS, "."); migrateErr != nil {
		return fmt.Errorf("running migrations: %w", migrateErr)
	}
	journalRepo := journal.NewSQLiteRepository(db.DB)
	log.Info("database ready", "path", db.Path())

	// Telemetry sink (optional)
	var influxClient *influxdb.Client
	if cfg.InfluxDB.Enabled {
		influxClient, err = influxdb.Connect(ctx, cfg.InfluxDB)
		if err != nil {
			return fmt.Errorf("connecting to InfluxDB: %w", err)
		}
		defer func() {
			log.Info("closing InfluxDB connection")
			if closeErr := influxClient.Close(); closeErr != nil {
				log.Error("error closing InfluxDB", "error", closeErr)
			}
		}()
		influxClient.SetOnError(func(err error) {
			log.Error("InfluxDB write error", "error", err)
		})
		log.Info("InfluxDB connected", "url", cfg.InfluxDB.URL, "bucket", cfg.InfluxDB.Bucket)
	} else {
		log.Info("InfluxDB disabled")
	}

	// Identity
	docs, err := hubdata.Open(cfg.DocumentPath(), hubdata.Defaults(cfg.MQTT), log.Component("hubdata"))
	if err != nil {
		return fmt.Errorf("opening hub document: %w", err)
	}
	creds := credentials.NewStore(cfg.Hub.DataDir)
	ensureRootCA(ctx, creds, cfg.Cloud.RootCAURL, log)

	// UI channel, shared by every notifier
	hub := api.NewHub(cfg.WebSocket, log.Component("websocket"))

	// Broker session
	session := mqtt.NewSession(mqtt.Config{
		QueueCapacity: cfg.MQTT.QueueCapacity,
	}, log.Component("mqtt"))
	defer func() {
		log.Info("disconnecting from broker")
		session.Disconnect(false)
	}()

	workflow, err := registration.New(registration.Options{
		Store:       docs,
		Credentials: creds,
		API:         cloud.New(cfg.Cloud, nil),
		Session:     session,
		Notifier:    hub,
		Logger:      log.Component("registration"),
		Config:      cfg,
	})
	if err != nil {
		return fmt.Errorf("creating registration workflow: %w", err)
	}
	session.SetOnStatusChange(workflow.HandleConnectionStatus)

	registered, err := workflow.Prepare()
	if err != nil {
		return fmt.Errorf("preparing hub document: %w", err)
	}
	if err := workflow.RecordVersions(cfg.Hub.PluginVersion, ""); err != nil {
		log.Warn("recording plugin versions", "error", err)
	}

	// Printer and state
	tracker := state.NewTracker()
	events := &eventRelay{}
	octo, err := octoprint.New(cfg.Printer, octoprint.Options{
		Events: events,
		Logger: log.Component("octoprint"),
	})
	if err != nil {
		return fmt.Errorf("creating printer client: %w", err)
	}

	broadcasterOpts := state.Options{
		Tracker:       tracker,
		Source:        octo,
		Documents:     docs,
		Publisher:     session,
		Logger:        log.Component("state"),
		Base:          int64(cfg.Broadcast.Base),
		Tick:          time.Duration(cfg.Broadcast.TickMS) * time.Millisecond,
		WatchInterval: time.Duration(cfg.Broadcast.WatchIntervalMS) * time.Millisecond,
		StartDelay:    time.Duration(cfg.Broadcast.StartDelayMS) * time.Millisecond,
	}
	if influxClient != nil {
		broadcasterOpts.Sink = influxClient
	}
	broadcaster, err := state.NewBroadcaster(broadcasterOpts)
	if err != nil {
		return fmt.Errorf("creating state broadcaster: %w", err)
	}
	events.handler = broadcaster

	files, err := storage.NewManager(cfg.Storage, storage.Options{
		Notifier: hub,
		Logger:   log.Component("storage"),
	})
	if err != nil {
		return fmt.Errorf("creating storage manager: %w", err)
	}

	// Request routing
	rt, err := router.New(router.Options{
		Documents:    docs,
		Publisher:    session,
		Printer:      octo,
		Broadcaster:  broadcaster,
		Tracker:      tracker,
		Storage:      files,
		Palette:      hub,
		Notifier:     hub,
		Accounts:     workflow,
		Journal:      journalRepo,
		Errors:       router.LogErrorHandler{Logger: log.Component("router")},
		Logger:       log.Component("router"),
		SettleDelay:  cfg.SettleDelay(),
		PollAttempts: cfg.Router.PollAttempts,
	})
	if err != nil {
		return fmt.Errorf("creating request router: %w", err)
	}
	defer func() {
		// Stop inbound traffic before draining in-flight requests.
		session.Disconnect(false)
		log.Info("waiting for in-flight requests")
		rt.Close()
	}()
	session.SetDispatcher(rt)

	// Local API
	apiDeps := api.Deps{
		Config:    cfg.API,
		WS:        cfg.WebSocket,
		Logger:    log.Component("api"),
		Documents: docs,
		Accounts:  workflow,
		Palette:   broadcaster,
		Journal:   journalRepo,
		Database:  db,
		Hub:       hub,
		Version:   version,
	}
	if influxClient != nil {
		apiDeps.Telemetry = influxClient
	}
	server, err := api.New(apiDeps)
	if err != nil {
		return fmt.Errorf("creating API server: %w", err)
	}

	if registered {
		log.Info("device registered", "device_id", docs.Snapshot().DeviceID())
		if err := workflow.ConnectSession(); err != nil {
			log.Warn("initial broker connect failed", "error", err)
		}
		if err := workflow.SyncHostname(ctx); err != nil {
			log.Warn("hostname sync failed", "error", err)
		}
	}

	group := supervisor.New(ctx, supervisor.Config{
		RestartDelay:       time.Duration(cfg.Supervisor.RestartDelay) * time.Second,
		MaxRestartAttempts: cfg.Supervisor.MaxRestartAttempts,
	})
	group.SetLogger(log.Component("supervisor"))

	group.Go(supervisor.Task{Name: "websocket-hub", Run: hub.Run, RestartOnFailure: true})
	group.Go(supervisor.Task{Name: "api-server", Run: server.Run, RestartOnFailure: true})
	group.Go(supervisor.Task{Name: "registration", Run: func(ctx context.Context) error {
		if err := workflow.Run(ctx); err != nil {
			log.Error("device registration abandoned", "error", err)
		}
		return nil
	}})
	group.Go(supervisor.Task{Name: "session-keeper", Run: func(ctx context.Context) error {
		return workflow.KeepSession(ctx, time.Duration(cfg.MQTT.Reconnect.InitialDelay)*time.Second)
	}, RestartOnFailure: true})
	group.Go(supervisor.Task{Name: "link-poll", Run: workflow.PollLinkedAccount, RestartOnFailure: true})
	group.Go(supervisor.Task{Name: "state-broadcast", Run: broadcaster.RunBroadcast, RestartOnFailure: true})
	group.Go(supervisor.Task{Name: "state-watch", Run: broadcaster.RunWatcher, RestartOnFailure: true})

	watcher := octoprint.NewWatcher(octo, broadcaster,
		time.Duration(cfg.Printer.PollInterval)*time.Second, log.Component("octoprint"))
	group.Go(supervisor.Task{Name: "printer-watch", Run: watcher.Run, RestartOnFailure: true})

	log.Info("initialisation complete, waiting for shutdown signal")

	err = group.Wait()
	log.Info("shutdown signal received, cleaning up")
	if err != nil && !errors.Is(err, context.Canceled) {
		return fmt.Errorf("supervised task failed: %w", err)
	}

	// Deferred calls run in reverse order:
	// 1. Broker session, then router (in-flight requests)
	// 2. Broker session (no-op when already closed)
	// 3. InfluxDB (if enabled)
	// 4. Database

	log.Info("Canvas Link stopped")
	return nil
}

// getConfigPath returns the configuration file path.
// Uses CANVASLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv(configPathEnv); path != "" {
		return path
	}
	return defaultConfigPath
}

// ensureRootCA downloads the pinned broker root CA when it is missing.
// A failure is logged; the broker connect reports it again later.
func ensureRootCA(ctx context.Context, creds *credentials.Store, url string, log *logging.Logger) {
	if url == "" {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, rootCATimeout)
	defer cancel()

	fetched, err := creds.EnsureRootCA(ctx, nil, url)
	switch {
	case err != nil:
		log.Warn("root CA unavailable", "error", err)
	case fetched:
		log.Info("root CA downloaded", "path", creds.RootCAPath())
	}
}

// eventRelay forwards printer events to a handler set after the printer
// client is built, since the broadcaster reads from that client.
type eventRelay struct {
	handler printer.EventHandler
}

func (r *eventRelay) HandlePrinterEvent(ev printer.Event) {
	if r.handler != nil {
		r.handler.HandlePrinterEvent(ev)
	}
}
