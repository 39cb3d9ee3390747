// Package daemon wires the policy engine to its collaborators and runs
// the whole assembly under one goroutine group.
package daemon

import (
	"context"

	"github.com/sirupsen/logrus"

	"github.com/datawire/dlib/dgroup"
	"github.com/datawire/dlib/dlog"

	"github.com/vireonet/vireo/pkg/dispatch"
	"github.com/vireonet/vireo/pkg/dnsmgr"
	"github.com/vireonet/vireo/pkg/firewall"
	"github.com/vireonet/vireo/pkg/hostctl"
	"github.com/vireonet/vireo/pkg/platform"
	"github.com/vireonet/vireo/pkg/policy"
	"github.com/vireonet/vireo/pkg/rdns"
	"github.com/vireonet/vireo/pkg/resolved"
	"github.com/vireonet/vireo/pkg/routes"
	"github.com/vireonet/vireo/pkg/state"
	"github.com/vireonet/vireo/pkg/task"
)

// LoggerContext returns a context carrying a logrus-backed root logger
// configured for the given level.
func LoggerContext(level string) context.Context {
	logger := logrus.StandardLogger()
	logger.SetFormatter(&logrus.TextFormatter{
		FullTimestamp:   true,
		TimestampFormat: "2006-01-02 15:04:05.0000",
	})
	if lv, err := logrus.ParseLevel(level); err == nil {
		logger.SetLevel(lv)
	}
	return dlog.WithLogger(context.Background(), dlog.WrapLogrus(logger))
}

// Daemon owns the assembled engine and its infrastructure.
type Daemon struct {
	cfg      *Config
	queue    *task.Queue
	manager  *state.Manager
	settings *state.Settings
	engine   *policy.Engine
}

// New assembles a daemon. The manager and settings store are the
// integration points for the device and persistence layers.
func New(ctx context.Context, cfg *Config) (*Daemon, error) {
	queue := task.NewQueue("policy")

	var writer dnsmgr.Writer
	if cfg.UseResolved && resolved.IsRunning(ctx) {
		writer = resolved.NewWriter()
	} else {
		dlog.Info(ctx, "systemd-resolved not available, DNS updates disabled")
		writer = dnsmgr.NopWriter{}
	}

	manager := state.NewManager()
	settings := state.NewSettings(hostctl.NewWriter())
	if cfg.ProfileFile != "" {
		if err := settings.LoadProfiles(cfg.ProfileFile); err != nil {
			dlog.Warnf(ctx, "could not load profiles from %s: %v", cfg.ProfileFile, err)
		}
	}

	resolver, err := rdns.NewResolver(rdns.WithTimeout(cfg.LookupTimeout))
	if err != nil {
		dlog.Warnf(ctx, "reverse-DNS disabled: %v", err)
		resolver = nil
	}

	engine, err := policy.New(policy.Config{
		Manager:    manager,
		Settings:   settings,
		DNS:        dnsmgr.NewManager(writer),
		Firewall:   firewall.NewBridge(),
		Dispatcher: dispatch.NewRunner(cfg.DispatcherDir),
		Platform:   platform.New(),
		Routes:     routes.NewManager(),
		Resolver:   resolver,
		Scheduler:  queue,
	})
	if err != nil {
		return nil, err
	}
	return &Daemon{cfg: cfg, queue: queue, manager: manager, settings: settings, engine: engine}, nil
}

// Manager exposes the manager so a device layer can feed it.
func (d *Daemon) Manager() *state.Manager {
	return d.manager
}

func (d *Daemon) Settings() *state.Settings {
	return d.settings
}

// Run drains the task queue until ctx is done. The engine starts and
// stops on the queue goroutine, honoring its single-threaded contract.
func (d *Daemon) Run(ctx context.Context) error {
	g := dgroup.NewGroup(ctx, dgroup.GroupConfig{
		EnableSignalHandling: true,
	})
	g.Go("policy", func(ctx context.Context) error {
		d.queue.Post("engine-start", func(ctx context.Context) {
			d.engine.Start(ctx)
		})
		err := d.queue.Run(ctx)
		d.engine.Close()
		return err
	})
	return g.Wait()
}
