package main

import (
	"flag"
	"fmt"
	"log"

	"MarketScan/internal/di"
	"MarketScan/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	if err := run(*configPath); err != nil {
		log.Fatal(err)
	}
}

func run(configPath string) error {
	cfg, err := config.LoadWithEnv(configPath)
	if err != nil {
		return fmt.Errorf("config load failed: %w", err)
	}

	log.Printf("marketscan starting: env=%s storage=%s workers=%d",
		cfg.Environment, cfg.Storage.Type, cfg.Ingest.Workers)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		return fmt.Errorf("app initialization failed: %w", err)
	}

	return app.Run()
}
