package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"net"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/joho/godotenv"

	"kellyq/internal/api"
	"kellyq/internal/config"
	"kellyq/internal/pipeline"
	"kellyq/internal/scheduler"
	"kellyq/internal/source"
	"kellyq/internal/store"
	"kellyq/internal/util"
)

func main() {
	logPath := flag.String("log-file", "", "also write logs to this file")
	noInitial := flag.Bool("no-initial-run", false, "wait for the first scheduled run instead of computing at startup")
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
	if err := cfg.Validate(); err != nil {
		log.Fatalf("invalid config: %v", err)
	}

	var w io.Writer = os.Stdout
	if *logPath != "" {
		logFile, err := os.OpenFile(*logPath, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o644)
		if err != nil {
			log.Fatalf("opening log file: %v", err)
		}
		defer logFile.Close()
		w = io.MultiWriter(os.Stdout, logFile)
	}
	logger := util.NewLoggerTo(w, cfg.Logging.Level, cfg.Logging.Format)
	util.SetDefault(logger)

	src, err := source.FromConfig(cfg)
	if err != nil {
		log.Fatalf("creating price source: %v", err)
	}
	runner := pipeline.NewRunner(src, pipeline.OptionsFromConfig(cfg), logger)

	var (
		curves store.CurveStore
		runs   store.RunStore
	)
	if cfg.Schedule.Persist {
		db, err := store.NewSQLiteStore(cfg.Storage.SQLitePath)
		if err != nil {
			log.Fatalf("opening run store: %v", err)
		}
		defer db.Close()
		curves, runs = store.NewParquetStore(cfg.Storage.DataDir), db
		runner.WithStores(curves, runs)
	}

	svc := api.NewService(runner, cfg.Symbols, curves, runs, cfg.Report.ShortMA, cfg.Report.LongMA, logger)

	ctx, cancel := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer cancel()

	sched := scheduler.New(30*time.Minute, logger)
	if err := sched.AddJob(cfg.Schedule.Cron, svc); err != nil {
		log.Fatalf("scheduling refresh %q: %v", cfg.Schedule.Cron, err)
	}
	sched.Start()
	if !*noInitial {
		go sched.RunNow(svc)
	}

	httpAddr := net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.Port))
	grpcAddr := ""
	if cfg.Server.GRPCPort > 0 {
		grpcAddr = net.JoinHostPort(cfg.Server.Host, strconv.Itoa(cfg.Server.GRPCPort))
	}
	logger.Info("kelly-server starting",
		"http", httpAddr,
		"grpc", grpcAddr,
		"symbols", cfg.Symbols,
		"source", cfg.Source.Kind,
		"schedule", cfg.Schedule.Cron,
		"persist", cfg.Schedule.Persist,
	)

	srv := api.NewServer(svc, httpAddr, grpcAddr, logger)
	serveErr := srv.ListenAndServe(ctx)
	sched.Stop()
	if serveErr != nil {
		fmt.Fprintf(os.Stderr, "server error: %v\n", serveErr)
		os.Exit(1)
	}
	logger.Info("kelly-server stopped")
}
