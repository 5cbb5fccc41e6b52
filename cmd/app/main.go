package main

import (
	"context"
	"flag"
	"log"
	"os"

	"BrentShift/internal/di"
	"BrentShift/pkg/config"
)

func main() {
	configPath := flag.String("config", "config/config.yaml", "config file path")
	checkOnly := flag.Bool("check", false, "load and validate the config, then exit")
	flag.Parse()

	cfg, err := config.LoadWithEnv(*configPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	log.Printf("brentshift env=%s backend=%s prices=%s redis=%t kafka=%t queue=%t",
		cfg.Environment, cfg.Backend.Type, cfg.Data.PricesCSV,
		cfg.Redis.Enabled, cfg.Kafka.Enabled, cfg.Queue.Enabled)
	if *checkOnly {
		return
	}

	app, cleanup, err := di.InitializeApp(cfg)
	if err != nil {
		log.Fatalf("wire app: %v", err)
	}

	err = app.Run(context.Background())
	cleanup()
	if err != nil {
		log.Printf("brentshift stopped: %v", err)
		os.Exit(1)
	}
}
