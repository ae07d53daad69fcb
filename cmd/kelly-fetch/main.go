package main

import (
	"context"
	"flag"
	"log"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kellyq/internal/config"
	"kellyq/internal/gather"
	"kellyq/internal/scheduler"
	"kellyq/internal/source"
	"kellyq/internal/store"
	"kellyq/internal/util"
)

func main() {
	schedule := flag.String("schedule", "", "cron spec; run as a daemon instead of once (e.g. \"0 22 * * 1-5\")")
	market := flag.String("market", "", "market directory and Alpaca endpoint: us or crypto (default from config)")
	flag.Parse()

	_ = godotenv.Load()

	cfgPath := "config/kelly.yaml"
	if p := os.Getenv("KELLYQ_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.LoadOptional(cfgPath)
	if err != nil {
		log.Fatalf("loading config: %v", err)
	}
	if *market != "" {
		cfg.Source.Market = *market
	}
	if len(cfg.Symbols) == 0 {
		log.Fatal("no symbols configured")
	}
	if cfg.Alpaca.APIKey == "" || cfg.Alpaca.APISecret == "" {
		log.Fatal("alpaca credentials missing (APCA_API_KEY_ID / APCA_API_SECRET_KEY)")
	}

	logger := util.NewLogger(cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	start, err := time.Parse("2006-01-02", cfg.Source.StartDate)
	if err != nil {
		start = time.Date(2000, 1, 1, 0, 0, 0, 0, time.UTC)
	}
	alpaca := source.NewAlpacaSource(source.AlpacaOptions{
		APIKey:          cfg.Alpaca.APIKey,
		APISecret:       cfg.Alpaca.APISecret,
		DataURL:         cfg.Alpaca.DataURL,
		Market:          cfg.Source.Market,
		Start:           start,
		RateLimitPerMin: cfg.Alpaca.RateLimitPerMin,
	})
	ps := store.NewParquetStore(cfg.Storage.DataDir)
	g := gather.NewDailyBarGatherer(alpaca, ps, cfg.Source.Market, cfg.Symbols, cfg.Kelly.MaxWorkers)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	if *schedule == "" {
		logger.Info("fetching daily bars", "market", cfg.Source.Market, "symbols", len(cfg.Symbols), "dataDir", cfg.Storage.DataDir)
		if err := g.Run(ctx); err != nil {
			log.Fatalf("fetch failed: %v", err)
		}
		return
	}

	sched := scheduler.New(time.Hour, logger)
	if err := sched.AddJob(*schedule, g); err != nil {
		log.Fatalf("scheduling %q: %v", *schedule, err)
	}
	sched.Start()
	go sched.RunNow(g)
	logger.Info("kelly-fetch daemon started", "schedule", *schedule, "market", cfg.Source.Market)

	<-ctx.Done()
	logger.Info("shutting down kelly-fetch")
	sched.Stop()
}
