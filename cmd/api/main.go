package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"k8s.io/klog/v2"

	"cvrpsolver/internal/api"
	"cvrpsolver/internal/config"
	"cvrpsolver/internal/metrics"
)

func main() {
	klog.InitFlags(nil)
	configPath := flag.String("config", os.Getenv("CONFIG_FILE"), "path to the YAML config file")
	flag.Parse()
	defer klog.Flush()

	cfg, err := config.Load(*configPath)
	if err != nil {
		klog.ErrorS(err, "failed to load config")
		os.Exit(1)
	}
	srvDeps, err := api.NewServer(cfg)
	if err != nil {
		klog.ErrorS(err, "failed to init server")
		os.Exit(1)
	}
	metrics.RegisterDefault()

	srv := &http.Server{
		Addr:              cfg.Server.Addr,
		Handler:           srvDeps.Handler(),
		ReadHeaderTimeout: cfg.Server.ReadHeaderTimeout,
	}

	// Start webhook worker
	worker := srvDeps.NewWebhookWorker()
	worker.Start()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			klog.ErrorS(err, "http shutdown")
		}
	}()

	klog.InfoS("API listening", "addr", cfg.Server.Addr, "workers", cfg.Workers.PoolSize)
	if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
		klog.ErrorS(err, "server error")
		os.Exit(1)
	}
	if err := srvDeps.Close(30 * time.Second); err != nil {
		klog.ErrorS(err, "shutdown")
	}
	close(worker.Stop)
	klog.InfoS("API stopped")
}
