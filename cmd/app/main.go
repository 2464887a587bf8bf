package main

import (
	"flag"
	"log"
	"os"

	"TradeLoop/internal/di"
	"TradeLoop/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config load failed: %v", err)
	}

	log.Printf("env=%s mode=%s broker=%s accounts=%v",
		cfg.Environment, cfg.Trading.Mode, cfg.Broker.Type, cfg.Trading.Accounts)

	app, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("app initialization failed: %v", err)
	}

	if err := app.Run(); err != nil {
		log.Printf("app error: %v", err)
		os.Exit(1)
	}
}
