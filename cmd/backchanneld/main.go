package main

import (
	"context"
	"log"
	"strings"

	"backchannel/internal/app"
	"backchannel/pkg/config"
	"backchannel/pkg/logger"
	"backchannel/pkg/shutdown"
)

// build metadata - set via ldflags during build/release
var (
	version   = "dev"
	commit    = "none"
	buildDate = "unknown"
)

func main() {
	addrVal, dbVal, handleVal, cfgVal, setFlags := config.ParseCommandFlags()

	// Config path: flag wins over env.
	cfgPath := config.ResolveConfigPath(cfgVal, setFlags["config"])

	cfg, envUsed, err := config.LoadEffective(cfgPath)
	if err != nil {
		log.Fatalf("failed to load config: %v", err)
	}

	// Flags win over env/config when explicitly provided.
	if setFlags["addr"] {
		host, port := config.SplitAddr(addrVal)
		cfg.Server.Address = host
		cfg.Server.Port = port
	}
	if setFlags["db"] {
		cfg.Storage.DBPath = dbVal
	}
	if setFlags["handle"] {
		cfg.Peer.Handle = handleVal
	}

	logger.InitWithOptions(cfg.Logging.Level, cfg.Logging.Format)

	// Config sources summary for the startup banner.
	srcs := []string{}
	if len(setFlags) > 0 {
		srcs = append(srcs, "flags")
	}
	if envUsed {
		srcs = append(srcs, "env")
	}
	if _, err := config.Load(cfgPath); err == nil {
		srcs = append(srcs, "config")
	}

	ctx, cancel := shutdown.SetupSignalHandler(context.Background())
	defer cancel()

	a, err := app.New(cfg, strings.Join(srcs, ", "), version, commit, buildDate)
	if err != nil {
		shutdown.Abort("startup failed", err, cfg.Storage.DBPath)
	}
	if err := a.Run(ctx); err != nil {
		shutdown.Abort("runtime failure", err, cfg.Storage.DBPath)
	}
}
