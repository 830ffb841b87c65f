package app

import (
	"errors"
	"fmt"

	"backchannel/pkg/config"
)

// validateConfig fails fast on configs the daemon cannot run with.
func validateConfig(cfg *config.Config) error {
	if cfg == nil {
		return errors.New("nil config")
	}
	if cfg.Storage.DBPath == "" {
		return errors.New("storage.db_path is required")
	}
	if cfg.Peer.ListenPort < 0 || cfg.Peer.ListenPort > 65535 {
		return fmt.Errorf("peer.listen_port out of range: %d", cfg.Peer.ListenPort)
	}
	if cfg.Server.Port < 0 || cfg.Server.Port > 65535 {
		return fmt.Errorf("server.port out of range: %d", cfg.Server.Port)
	}
	if cfg.Peer.RateRPS < 0 || cfg.Peer.RateBurst < 0 {
		return errors.New("peer rate limits must be non-negative")
	}
	return nil
}
