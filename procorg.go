// Package procorg supervises registered shell scripts on a single host:
// launch, cron scheduling, non-blocking monitoring, and durable filesystem
// state that lets independent invocations agree on what is running.
package procorg

import (
	"fmt"
	"net/http"
	"os"

	"github.com/prometheus/client_golang/prometheus"

	"github.com/procorg/procorg/internal/auth"
	"github.com/procorg/procorg/internal/config"
	"github.com/procorg/procorg/internal/execution"
	"github.com/procorg/procorg/internal/history"
	"github.com/procorg/procorg/internal/logger"
	"github.com/procorg/procorg/internal/manager"
	"github.com/procorg/procorg/internal/metrics"
	"github.com/procorg/procorg/internal/registry"
	"github.com/procorg/procorg/internal/scheduler"
	"github.com/procorg/procorg/internal/server"
)

// Re-export core types for external consumers. These are aliases so
// conversions are zero-cost.

type Config = config.Config

type LogConfig = logger.Config

type Definition = registry.Definition

type Record = execution.Record

type Status = manager.ProcessStatus

type SchedulerEntry = scheduler.Entry

type HistorySink = history.Sink

type HistoryEvent = history.Event

type Identity = auth.Identity

// Execution statuses.
const (
	StatusPending   = execution.StatusPending
	StatusRunning   = execution.StatusRunning
	StatusCompleted = execution.StatusCompleted
	StatusFailed    = execution.StatusFailed
	StatusStopped   = execution.StatusStopped
)

// DefaultConfig returns the configuration used without a config file.
func DefaultConfig() Config { return config.Default() }

// LoadConfig reads a TOML configuration file.
func LoadConfig(path string) (Config, error) { return config.Load(path) }

// SetupLogging installs the process-wide structured logger.
func SetupLogging(cfg LogConfig) { logger.Setup(cfg) }

// App wires the registry, execution supervisor, manager and scheduler over
// one data directory. Every App over the same directory sees the same
// durable truth; an App is cheap enough to build per CLI invocation.
type App struct {
	cfg   Config
	reg   *registry.Registry
	mgr   *manager.Manager
	sched *scheduler.Scheduler
	sink  history.Sink
}

// New builds an App for cfg, creating the data directory as needed.
func New(cfg Config) (*App, error) {
	if cfg.DataDir == "" {
		cfg = config.Default()
	}
	if err := os.MkdirAll(cfg.DataDir, 0o750); err != nil {
		return nil, fmt.Errorf("create data dir %s: %w", cfg.DataDir, err)
	}
	reg, err := registry.Open(cfg.RegistryPath())
	if err != nil {
		return nil, err
	}
	sup := execution.NewSupervisor(execution.NewStore(cfg.DataDir), cfg.PollInterval, cfg.StopGrace)
	mgr := manager.New(reg, sup)
	app := &App{
		cfg:   cfg,
		reg:   reg,
		mgr:   mgr,
		sched: scheduler.New(reg, mgr, cfg.SchedulerTick),
	}
	if cfg.HistoryDSN != "" {
		sink, err := history.NewSinkFromDSN(cfg.HistoryDSN)
		if err != nil {
			return nil, fmt.Errorf("history sink: %w", err)
		}
		app.sink = sink
		mgr.SetHistorySinks(sink)
	}
	return app, nil
}

// Close releases resources held by the App. Running scripts are not
// touched; their monitors are abandoned and the durable artifacts remain
// authoritative.
func (a *App) Close() error {
	a.sched.Stop()
	a.mgr.Shutdown()
	if a.sink != nil {
		return a.sink.Close()
	}
	return nil
}

// Config returns the effective configuration.
func (a *App) Config() Config { return a.cfg }

// Register adds or overwrites a process definition. An empty Owner defaults
// to the invoking user.
func (a *App) Register(def Definition) error {
	if def.Owner == "" {
		id, err := auth.Current()
		if err != nil {
			return err
		}
		def.Owner = id.Username
		def.OwnerUID = id.UID
	} else {
		id, err := auth.Lookup(def.Owner)
		if err != nil {
			return err
		}
		def.OwnerUID = id.UID
	}
	return a.reg.Register(def)
}

// Unregister removes a definition; it reports whether one existed. Durable
// execution artifacts of past runs are kept.
func (a *App) Unregister(name string) (bool, error) { return a.reg.Unregister(name) }

// List returns all definitions ordered by name.
func (a *App) List() ([]Definition, error) { return a.reg.List() }

// Get returns a single definition.
func (a *App) Get(name string) (Definition, bool, error) { return a.reg.Get(name) }

// SetEnabled toggles a definition's enabled flag.
func (a *App) SetEnabled(name string, enabled bool) (bool, error) {
	return a.reg.SetEnabled(name, enabled)
}

// Run starts a registered script now and returns its initial record. The
// execution keeps running after the caller exits.
func (a *App) Run(name string, args ...string) (Record, error) {
	e, err := a.mgr.Run(name, args...)
	if err != nil {
		return Record{}, err
	}
	return e.Record(), nil
}

// RunWait starts a registered script and blocks until it finishes.
func (a *App) RunWait(name string, args ...string) (Record, error) {
	e, err := a.mgr.Run(name, args...)
	if err != nil {
		return Record{}, err
	}
	<-e.Done()
	return e.Record(), nil
}

// Stop terminates the running execution of name, whether it was started by
// this App or discovered through durable artifacts.
func (a *App) Stop(name string) bool { return a.mgr.Stop(name) }

// Status reports the state of one process.
func (a *App) Status(name string) (Status, error) { return a.mgr.Status(name) }

// AllStatuses reports every registered process.
func (a *App) AllStatuses() ([]Status, error) { return a.mgr.AllStatuses() }

// Logs returns trailing output of the latest execution of name.
func (a *App) Logs(name, stream string, lines int) (string, error) {
	return a.mgr.LatestLogs(name, stream, lines)
}

// ExecutionLogs returns output of a specific execution.
func (a *App) ExecutionLogs(name, id, stream string, lines int) (string, error) {
	return a.mgr.ExecutionLogs(name, id, stream, lines)
}

// StartScheduler launches the cron trigger loop.
func (a *App) StartScheduler() error { return a.sched.Start() }

// StopScheduler halts the cron trigger loop.
func (a *App) StopScheduler() { a.sched.Stop() }

// SchedulerRunning reports whether the trigger loop is active.
func (a *App) SchedulerRunning() bool { return a.sched.Running() }

// SchedulerInfo lists the cron entries the scheduler tracks.
func (a *App) SchedulerInfo() ([]SchedulerEntry, error) { return a.sched.Info() }

// SetHistorySinks replaces the lifecycle-event sinks.
func (a *App) SetHistorySinks(sinks ...HistorySink) { a.mgr.SetHistorySinks(sinks...) }

// HTTPHandler returns the embeddable HTTP API for this App, mountable in
// any mux or framework that accepts an http.Handler.
func (a *App) HTTPHandler() http.Handler {
	return server.NewRouter(a.reg, a.mgr, a.sched, "").Handler()
}

// Serve starts a standalone HTTP server for the App's API on addr.
func (a *App) Serve(addr string) *http.Server {
	return server.NewServer(addr, server.NewRouter(a.reg, a.mgr, a.sched, ""))
}

// RegisterMetrics installs the Prometheus collectors; nil uses the default
// registerer.
func RegisterMetrics(r prometheus.Registerer) error { return metrics.Register(r) }
