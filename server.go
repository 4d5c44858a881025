// Package termdock composes the session controller, the tmux view
// host, and the SSH control channel into a runnable daemon.
package termdock

import (
	"context"
	"errors"
	"net"
	"path/filepath"
	"sync"
	"time"

	"pkt.systems/pslog"
	"pkt.systems/termdock/core"
	"pkt.systems/termdock/internal/appconfig"
	"pkt.systems/termdock/internal/auth"
	"pkt.systems/termdock/internal/command"
	"pkt.systems/termdock/internal/eventbus"
	"pkt.systems/termdock/internal/exithook"
	"pkt.systems/termdock/internal/exitlog"
	"pkt.systems/termdock/internal/tmuxhost"
	"pkt.systems/termdock/schema"
	"pkt.systems/termdock/sshserver"
)

// Server is the composed termdock daemon.
type Server interface {
	Start(ctx context.Context) error
	Wait() error
	Stop(ctx context.Context) error
}

// ServerDeps captures optional dependencies, mostly for tests. A nil
// Host is replaced with a tmux host built from the configuration.
type ServerDeps struct {
	Host      core.ViewHost
	EventSink core.EventSink
	Listener  net.Listener
	Logger    pslog.Logger
}

// New constructs the daemon from configuration.
func New(cfg appconfig.Config, deps ServerDeps) (Server, error) {
	logger := deps.Logger
	bus := eventbus.New(logger)

	host := deps.Host
	var tmux *tmuxhost.Host
	if host == nil {
		tmux = tmuxhost.New(tmuxhost.Config{
			Binary:        cfg.Tmux.Binary,
			SocketName:    cfg.Tmux.SocketName,
			DockSession:   cfg.Tmux.DockSession,
			TargetSession: cfg.Tmux.TargetSession,
			PollInterval:  time.Duration(cfg.Tmux.PollIntervalMS) * time.Millisecond,
		}, logger)
		host = tmux
	}
	fail := func(err error) (Server, error) {
		if tmux != nil {
			tmux.Close()
		}
		return nil, err
	}

	var exitLog *exitlog.Store
	if cfg.StateDir != "" {
		store, err := exitlog.NewStore(filepath.Join(cfg.StateDir, "exitlog"), logger)
		if err != nil {
			return fail(err)
		}
		exitLog = store
	}
	sinks := make([]core.EventSink, 0, 3)
	if deps.EventSink != nil {
		sinks = append(sinks, deps.EventSink)
	}
	sinks = append(sinks, bus)
	if exitLog != nil {
		sinks = append(sinks, exitLog)
	}
	sink := sinks[0]
	if len(sinks) > 1 {
		sink = eventFanout{sinks: sinks}
	}

	hooks := exithook.New(logger)
	ctrl, err := core.NewController(
		schema.ControllerConfig{CaptureMaxLines: cfg.Controller.CaptureMaxLines},
		buildSpecs(cfg.Sessions, hooks),
		core.ControllerDeps{Host: host, EventSink: sink, Logger: logger},
	)
	if err != nil {
		return fail(err)
	}

	authStore, err := auth.NewStore(cfg.Auth.UserFile, cfg.Auth.SeedUsers, logger)
	if err != nil {
		return fail(err)
	}

	handlerCfg := command.HandlerConfig{
		PubKeyStore:         authStore,
		Bus:                 bus,
		DisableAuditLogging: cfg.Logging.DisableAuditTrails || cfg.Controller.DisableAudit,
	}
	if exitLog != nil {
		handlerCfg.ExitLog = exitLog
	}
	handler := command.NewHandler(ctrl, handlerCfg)

	return &compositeServer{
		cfg:  cfg,
		tmux: tmux,
		ctrl: ctrl,
		sshSrv: &sshserver.Server{
			Addr:        cfg.SSH.Addr,
			HostKeyPath: cfg.SSH.HostKeyPath,
			Listener:    deps.Listener,
			Handler:     handler,
			AuthStore:   authStore,
		},
		logger: logger,
	}, nil
}

// buildSpecs maps configured sessions onto controller specs, wiring
// exit hooks and launch-time env expansion.
func buildSpecs(sessions []appconfig.SessionConfig, hooks *exithook.Runner) []core.SessionSpec {
	specs := make([]core.SessionSpec, 0, len(sessions))
	for _, sess := range sessions {
		spec := core.SessionSpec{
			Name:    schema.SessionName(sess.Name),
			Command: sess.Command,
			ViewTag: schema.ViewTag(sess.ViewTag),
		}
		if hook := sess.OnExit; hook != "" {
			name := spec.Name
			spec.OnExit = func(lines []string) {
				hooks.Run(name, hook, lines)
			}
		}
		if sess.ExpandEnv {
			spec.OnBeforeLaunch = appconfig.ExpandEnv
		}
		specs = append(specs, spec)
	}
	return specs
}

type compositeServer struct {
	cfg    appconfig.Config
	tmux   *tmuxhost.Host
	ctrl   core.Controller
	sshSrv *sshserver.Server
	logger pslog.Logger

	mu      sync.Mutex
	ctx     context.Context
	cancel  context.CancelFunc
	errCh   chan error
	started bool
}

func (s *compositeServer) Start(ctx context.Context) error {
	if ctx == nil {
		ctx = context.Background()
	}
	s.mu.Lock()
	if s.started {
		s.mu.Unlock()
		pslog.Ctx(ctx).Warn("server start rejected", "reason", "already started")
		return errors.New("server already started")
	}
	s.ctx, s.cancel = context.WithCancel(ctx)
	s.errCh = make(chan error, 2)
	s.started = true
	if s.logger == nil {
		s.logger = pslog.Ctx(s.ctx)
	}
	s.mu.Unlock()

	log := s.logger
	log.Info(
		"server start",
		"ssh_addr", s.cfg.SSH.Addr,
		"sessions", len(s.cfg.Sessions),
		"tmux_socket", s.cfg.Tmux.SocketName,
	)
	if s.tmux != nil {
		if err := s.tmux.EnsureReady(s.ctx); err != nil {
			log.Error("tmux host unavailable", "err", err)
			s.cancel()
			return err
		}
	}
	go func() {
		if err := s.sshSrv.ListenAndServe(s.ctx); err != nil {
			log.Error("ssh server failed", "err", err)
			s.errCh <- err
		}
	}()
	return nil
}

func (s *compositeServer) Wait() error {
	s.mu.Lock()
	ctx := s.ctx
	errCh := s.errCh
	started := s.started
	s.mu.Unlock()
	if !started {
		return errors.New("server not started")
	}

	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil {
			pslog.Ctx(ctx).Error("server stopped", "err", err)
			_ = s.Stop(context.Background())
			return err
		}
		return nil
	}
}

func (s *compositeServer) Stop(ctx context.Context) error {
	s.mu.Lock()
	cancel := s.cancel
	started := s.started
	log := s.logger
	s.mu.Unlock()
	if !started {
		return nil
	}
	if log == nil {
		log = pslog.Ctx(context.Background())
	}
	log.Info("server stop requested")
	if cancel != nil {
		cancel()
	}
	// Session processes live in the tmux server and survive the daemon;
	// only the exit watchers need to drain.
	if s.tmux != nil {
		s.tmux.Close()
	}
	if ctx == nil {
		log.Info("server stop completed")
		return nil
	}
	select {
	case <-ctx.Done():
		log.Warn("server stop timed out", "err", ctx.Err())
		return ctx.Err()
	case <-s.ctx.Done():
		log.Info("server stopped")
		return nil
	}
}
