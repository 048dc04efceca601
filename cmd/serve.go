/*
 * Copyright 2025 Google LLC
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *    https://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */
package cmd

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/GoogleCloudPlatform/db-query-playground/internal/config"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/playground"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/query"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/server"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
)

const shutdownTimeout = 30 * time.Second

var serveCmd = &cobra.Command{
	Use:     "serve",
	Short:   "Serve the playground HTTP API",
	Long:    `Opens the shared database pool and serves the playground API until interrupted.`,
	Example: `./db_query_playground serve --dialect tidb --host 127.0.0.1 --port 4000 --username root --database test --listen-port 1345`,
	RunE:    runServe,
}

func runServe(cmd *cobra.Command, args []string) error {
	ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	db, err := setupDatabase(ctx)
	if err != nil {
		logger.Fatal("Cannot serve without a database pool", zap.Error(err))
	}
	defer db.Close()

	reg := prometheus.NewRegistry()
	reg.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)

	cache, err := playground.NewValueCache(cfg.Cache.File, cfg.Cache.FlushInterval, logger)
	if err != nil {
		return fmt.Errorf("failed to open data cache: %w", err)
	}
	defer func() {
		if err := cache.Close(); err != nil {
			logger.Error("Failed to persist data cache on shutdown", zap.Error(err))
		}
	}()

	svc := playground.NewService(newExecutor(db, reg), query.NewCompiler(db.Handler, logger), cache, logger)
	srv := server.New(svc, reg, cfg.Server, logger)
	httpServer := &http.Server{
		Addr:              srv.Addr(),
		Handler:           srv.Handler(),
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("Server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	logger.Info("Shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("failed to shut down server: %w", err)
	}
	return nil
}

func init() {
	d := config.Default()
	flags := serveCmd.Flags()
	flags.String("listen-host", d.Server.Host, "Address the API listens on")
	flags.Int("listen-port", d.Server.Port, "Port the API listens on")
	flags.String("api-prefix", d.Server.APIPrefix, "Path prefix of every API route")
	flags.String("cors-origin", "", "Extra origin allowed by CORS")
	flags.String("cache-file", d.Cache.File, "File backing the column values cache (empty keeps it in memory)")

	for key, flag := range map[string]string{
		config.KeyServerHost: "listen-host",
		config.KeyServerPort: "listen-port",
		config.KeyAPIPrefix:  "api-prefix",
		config.KeyCORSOrigin: "cors-origin",
		config.KeyCacheFile:  "cache-file",
	} {
		if err := v.BindPFlag(key, flags.Lookup(flag)); err != nil {
			panic(fmt.Sprintf("failed to bind flag %s: %v", flag, err))
		}
	}
}
