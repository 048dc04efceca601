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
	"fmt"
	"os"

	"github.com/GoogleCloudPlatform/db-query-playground/internal/config"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/database"
	_ "github.com/GoogleCloudPlatform/db-query-playground/internal/database/mysql"
	_ "github.com/GoogleCloudPlatform/db-query-playground/internal/database/postgres"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/utils"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

var (
	v      = viper.New()
	cfg    *config.Config
	logger = zap.NewNop()
)

var rootCmd = &cobra.Command{
	Use:   "db_query_playground",
	Short: "Backend of the SQL query playground",
	Long: `db_query_playground serves the data exploration API of the query playground:
previews, column value listings, chart queries compiled from dimensions and
filters, and free-form notebook SQL executed with a row cap and a time budget.`,
	PersistentPreRunE: initFlagsAndConfig,
	SilenceUsage:      true,
}

// initFlagsAndConfig resolves flags, environment and defaults into cfg and
// builds the process logger.
func initFlagsAndConfig(cmd *cobra.Command, args []string) error {
	if err := config.SetDefaults(v); err != nil {
		return err
	}
	loaded, err := config.Load(v)
	if err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}
	cfg = loaded

	l, err := newLogger(cfg.LogLevel)
	if err != nil {
		return err
	}
	logger = l
	zap.ReplaceGlobals(logger)

	return validateDialect(cfg.Database.Dialect)
}

func newLogger(level string) (*zap.Logger, error) {
	lvl, err := zap.ParseAtomicLevel(level)
	if err != nil {
		return nil, fmt.Errorf("invalid log level %q: %w", level, err)
	}
	zcfg := zap.NewProductionConfig()
	zcfg.Level = lvl
	return zcfg.Build()
}

func validateDialect(dialect string) error {
	if _, err := database.GetDialectHandler(dialect); err != nil {
		return fmt.Errorf("%w (supported: tidb, mysql, cloudsqlmysql, postgres, cloudsqlpostgres)", err)
	}
	return nil
}

func setupDatabase(ctx context.Context) (*database.DB, error) {
	db, err := database.New(ctx, cfg.Database)
	if err != nil {
		logger.Error("Failed to connect to database", zap.String("dialect", cfg.Database.Dialect), zap.Error(err))
		return nil, fmt.Errorf("failed to connect to database: %w", err)
	}
	logger.Info("Database pool created",
		zap.String("dialect", cfg.Database.Dialect),
		zap.String("database", cfg.Database.DBName),
		zap.Int("connection_limit", cfg.Database.ConnectionLimit),
	)
	return db, nil
}

// newExecutor builds the execution pool front. reg may be nil to skip metrics.
func newExecutor(db *database.DB, reg prometheus.Registerer) *database.Executor {
	opts := database.ExecutorOptions{RowLimit: cfg.RowLimit}
	if reg != nil {
		opts.Metrics = database.NewMetrics(reg)
	}
	return database.NewExecutor(db, opts, logger)
}

// writeOutput prints data, or writes it to outFile when one is given.
func writeOutput(data []byte, outFile string) error {
	if outFile == "" {
		_, err := fmt.Fprintln(os.Stdout, string(data))
		return err
	}
	if err := utils.WriteFileAtomic(outFile, append(data, '\n'), 0o644); err != nil {
		return fmt.Errorf("failed to write output file: %w", err)
	}
	fmt.Printf("Results written to: %s\n", outFile)
	return nil
}

// Execute adds all child commands to the root command and sets flags appropriately.
func Execute() error {
	defer func() { _ = logger.Sync() }()
	return rootCmd.Execute()
}

func bindFlag(key, flag string) {
	if err := v.BindPFlag(key, rootCmd.PersistentFlags().Lookup(flag)); err != nil {
		panic(fmt.Sprintf("failed to bind flag %s: %v", flag, err))
	}
}

func init() {
	d := config.Default()
	flags := rootCmd.PersistentFlags()

	// Database connection flags
	flags.String("dialect", d.Database.Dialect, "Database dialect (tidb, mysql, cloudsqlmysql, postgres, cloudsqlpostgres)")
	flags.String("host", d.Database.Host, "Database host")
	flags.Int("port", d.Database.Port, "Database port")
	flags.String("username", d.Database.User, "Database username")
	flags.String("password", "", "Database password")
	flags.String("database", d.Database.DBName, "Database name")
	flags.String("sslmode", d.Database.SSLMode, "SSL mode for postgres connections")
	flags.Int("connection-limit", d.Database.ConnectionLimit, "Maximum number of pooled connections")
	flags.Int64("connect-timeout", d.Database.ConnectTimeout.Milliseconds(), "Connect timeout in milliseconds")
	flags.String("cloudsql-instance-connection-name", "", "Cloud SQL instance connection name (for Cloud SQL dialects)")
	flags.Bool("cloudsql-use-private-ip", false, "Use private IP for Cloud SQL connection (Cloud SQL)")

	flags.Int("row-limit", d.RowLimit, "Maximum number of rows returned by a SELECT")
	flags.String("log-level", d.LogLevel, "Log level (debug, info, warn, error)")

	bindFlag(config.KeyDialect, "dialect")
	bindFlag(config.KeyHost, "host")
	bindFlag(config.KeyPort, "port")
	bindFlag(config.KeyUser, "username")
	bindFlag(config.KeyPassword, "password")
	bindFlag(config.KeyDatabase, "database")
	bindFlag(config.KeySSLMode, "sslmode")
	bindFlag(config.KeyConnectionLimit, "connection-limit")
	bindFlag(config.KeyConnectTimeout, "connect-timeout")
	bindFlag(config.KeyCloudSQLName, "cloudsql-instance-connection-name")
	bindFlag(config.KeyCloudSQLPrivate, "cloudsql-use-private-ip")
	bindFlag(config.KeyRowLimit, "row-limit")
	bindFlag(config.KeyLogLevel, "log-level")

	// Add subcommands
	rootCmd.AddCommand(serveCmd)
	rootCmd.AddCommand(executeCmd)
	rootCmd.AddCommand(queryCmd)
}
