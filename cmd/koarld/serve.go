// Copyright (C) 2025 the Koarl authors
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os/signal"
	"syscall"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/spf13/cobra"

	koarlconfig "github.com/FlowMo7/Koarl/cmd/koarld/config"
	"github.com/FlowMo7/Koarl/pkg/logging"
	"github.com/FlowMo7/Koarl/services/collector"
	"github.com/FlowMo7/Koarl/services/collector/metricsapi"
	"github.com/FlowMo7/Koarl/services/collector/storage"
	"github.com/FlowMo7/Koarl/services/collector/store"
)

func newServeCommand() *cobra.Command {
	var configPath string

	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the collector HTTP server",
		RunE: func(cmd *cobra.Command, args []string) error {
			if configPath == "" {
				path, err := koarlconfig.DefaultPath()
				if err != nil {
					return err
				}
				configPath = path
			}
			cfg, err := koarlconfig.Load(configPath)
			if err != nil {
				return err
			}
			return runServe(cmd.Context(), cfg)
		},
	}
	cmd.Flags().StringVarP(&configPath, "config", "c", "", "path to koarld.yaml")
	return cmd
}

func runServe(ctx context.Context, cfg koarlconfig.Config) error {
	logger := logging.New(logging.Config{
		Level:   logging.ParseLevel(cfg.Logging.Level),
		LogDir:  cfg.Logging.Dir,
		Service: "koarld",
	})
	defer logger.Close()
	slogger := logger.Slog()

	storageCfg := storage.DefaultConfig()
	storageCfg.Path = cfg.Storage.Path
	storageCfg.InMemory = cfg.Storage.InMemory
	storageCfg.GCInterval = cfg.Storage.GCInterval
	storageCfg.Logger = slogger
	db, err := storage.Open(storageCfg)
	if err != nil {
		return fmt.Errorf("open storage: %w", err)
	}
	defer db.Close()

	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	metrics := collector.NewMetrics(registry)

	crashes := store.NewCrashStore(db, slogger)
	mappings := store.NewMappingStore(db, slogger)
	service := collector.NewService(crashes, mappings, metrics, slogger)
	handlers := collector.NewHandlers(service, metrics)
	datasource := metricsapi.NewDatasource(metricsapi.NewCrashMetrics(crashes, slogger), slogger)

	gin.SetMode(gin.ReleaseMode)
	router := gin.New()
	router.Use(gin.Recovery())
	collector.RegisterRoutes(router, handlers)
	datasource.RegisterRoutes(router.Group("grafana"))
	router.GET("/metrics", gin.WrapH(promhttp.HandlerFor(registry, promhttp.HandlerOpts{})))

	server := &http.Server{
		Addr:    cfg.Server.Listen,
		Handler: router,
	}

	ctx, stop := signal.NotifyContext(ctx, syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		logger.Info("collector listening", "addr", cfg.Server.Listen)
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	case <-ctx.Done():
	}

	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("shutdown: %w", err)
	}
	return nil
}
