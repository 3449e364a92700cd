package main

import (
	"flag"
	"os"

	"github.com/rs/zerolog/log"

	"github.com/barok/wactl/internal/api"
	"github.com/barok/wactl/internal/config"
	"github.com/barok/wactl/internal/engine"
	"github.com/barok/wactl/internal/engine/loopback"
	"github.com/barok/wactl/internal/logging"
	"github.com/barok/wactl/internal/observability"
	"github.com/barok/wactl/internal/session"
)

func main() {
	logging.ConfigureRuntime()

	var configPath string
	flag.StringVar(&configPath, "config", "wactl.toml", "path to TOML config")
	flag.Parse()

	cfg := config.Default()
	if _, err := os.Stat(configPath); err == nil {
		loaded, err := config.Load(configPath)
		if err != nil {
			log.Fatal().Err(err).Msg("config load failed")
		}
		cfg = loaded
	} else {
		log.Warn().Str("path", configPath).Msg("config file not found, using defaults")
	}

	logger := observability.InitLogger(cfg.Name)
	observability.RegisterMetrics()

	loopback.Register(loopback.DefaultConfig())
	dialer, err := engine.ResolveProvider(cfg.EngineName)
	if err != nil {
		logger.Fatal().Err(err).Msg("engine provider unavailable")
	}

	store, err := session.NewFileStore(cfg.StoreDir)
	if err != nil {
		logger.Fatal().Err(err).Msg("session store init failed")
	}

	registry := session.NewRegistry()
	coord := session.NewCoordinator(cfg.Name, registry, store, dialer)

	server := api.NewServer(api.Config{
		Name:            cfg.Name,
		Addr:            cfg.Addr,
		CorsOrigins:     cfg.CorsOrigins,
		AccountDomain:   cfg.AccountDomain,
		RegisterTimeout: cfg.RegisterTimeout(),
	}, coord)

	if err := server.Run(); err != nil {
		logger.Fatal().Err(err).Msg("server exited")
	}
}
