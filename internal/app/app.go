package app

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/joho/godotenv"

	"backchannel/internal/maintenance"
	"backchannel/pkg/config"
	"backchannel/pkg/dispatch"
	"backchannel/pkg/logger"
	"backchannel/pkg/pipeline"
	"backchannel/pkg/progressor"
	"backchannel/pkg/registry"
	"backchannel/pkg/responder"
	"backchannel/pkg/session"
	"backchannel/pkg/state"
	"backchannel/pkg/store"
)

// App encapsulates the daemon components and lifecycle.
type App struct {
	cfg       *config.Config
	source    string
	version   string
	commit    string
	buildDate string

	chat *state.Store
	reg  *registry.Registry
	sess *session.Manager
	pipe *pipeline.Pipeline
	resp *responder.Responder

	srv         *http.Server
	maintCancel context.CancelFunc
}

// New initializes resources that do not require a running context: store,
// chat state, registry, dispatcher, pipeline. It does not bind the network
// endpoint or the gateway; call Run for those.
func New(cfg *config.Config, source, version, commit, buildDate string) (*App, error) {
	_ = godotenv.Load(".env")

	if err := validateConfig(cfg); err != nil {
		return nil, err
	}
	if err := store.Open(cfg.Storage.DBPath); err != nil {
		return nil, fmt.Errorf("failed to open pebble at %s: %w", cfg.Storage.DBPath, err)
	}
	if err := progressor.Sync(context.Background(), version); err != nil {
		return nil, fmt.Errorf("store migration failed: %w", err)
	}

	chat, err := state.Load()
	if err != nil {
		return nil, fmt.Errorf("failed to load chat state: %w", err)
	}
	chat.SeedBuiltins()
	if p := chat.Profile(); p.Username == "" {
		if cfg.Peer.Handle == "" {
			return nil, fmt.Errorf("no profile stored and peer.handle not set (flag -handle, env BACKCHANNEL_HANDLE or config)")
		}
		p.Username = cfg.Peer.Handle
		if p.DisplayName == "" {
			p.DisplayName = cfg.Peer.Handle
		}
		chat.SetProfile(p)
	}

	a := &App{
		cfg:       cfg,
		source:    source,
		version:   version,
		commit:    commit,
		buildDate: buildDate,
		chat:      chat,
		reg:       registry.New(),
	}

	var resp pipeline.Responder
	if cfg.Responder.Enabled {
		r, err := responder.New(context.Background(), cfg.Responder.APIKey, cfg.Responder.ChatModel, cfg.Responder.ImageModel)
		if err != nil {
			return nil, fmt.Errorf("responder init failed: %w", err)
		}
		a.resp = r
		resp = r
	} else {
		logger.Warn("responder_disabled", "reason", "no api key configured")
	}

	disp := dispatch.New(a.reg, chat)
	a.sess = session.New(chat, a.reg, disp, session.Options{
		ListenAddr:  cfg.Peer.ListenAddr,
		ListenPort:  cfg.Peer.ListenPort,
		MDNS:        cfg.Peer.MDNS,
		ServiceTag:  cfg.Peer.ServiceTag,
		Bootstrap:   cfg.Peer.Bootstrap,
		RateRPS:     cfg.Peer.RateRPS,
		RateBurst:   cfg.Peer.RateBurst,
		MaxEventLen: cfg.Peer.MaxEventLen,
	})
	a.pipe = pipeline.New(chat, a.reg, resp)
	return a, nil
}

// Run binds the peer endpoint, starts the maintenance scheduler and the
// gateway, and blocks until ctx is canceled or a fatal server error
// occurs. An address-in-use bind failure is reported but not fatal: the
// gateway still comes up so the UI can tell the user to close the
// duplicate session.
func (a *App) Run(ctx context.Context) error {
	handle := a.chat.Profile().Username
	if err := a.sess.Start(ctx, handle); err != nil {
		if errors.Is(err, session.ErrAddressInUse) {
			logger.Error("session_address_in_use", "handle", handle,
				"hint", "another client instance is already running under this handle")
		} else {
			logger.Error("session_start_failed", "handle", handle, "error", err)
		}
	}

	if cancel, err := maintenance.Start(ctx, a.chat, a.cfg.Maintenance.Cron); err == nil {
		a.maintCancel = cancel
	} else {
		logger.Warn("maintenance_start_failed", "error", err)
	}
	_ = maintenance.RunOnce(a.chat)

	a.printBanner()
	errCh := a.startHTTP(ctx)

	defer a.shutdown()
	select {
	case <-ctx.Done():
		return nil
	case err := <-errCh:
		if err != nil && err != http.ErrServerClosed {
			return err
		}
		return nil
	}
}

// shutdown tears components down in dependency order.
func (a *App) shutdown() {
	if a.maintCancel != nil {
		a.maintCancel()
	}
	if a.srv != nil {
		sctx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
		_ = a.srv.Shutdown(sctx)
		cancel()
	}
	if a.sess != nil {
		_ = a.sess.Close()
	}
	if a.resp != nil {
		_ = a.resp.Close()
	}
	if err := store.Close(); err != nil {
		logger.Error("store_close_failed", "error", err)
	}
	logger.Info("app_stopped")
}
