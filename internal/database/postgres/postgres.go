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
package postgres

import (
	"context"
	"database/sql"
	"fmt"
	"net"
	"strconv"
	"strings"

	"cloud.google.com/go/cloudsqlconn"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/stdlib"
	"github.com/lib/pq"

	"github.com/GoogleCloudPlatform/db-query-playground/internal/config"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/database"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/query"
)

// postgresHandler struct implements database.DialectHandler for PostgreSQL.
type postgresHandler struct{}

var _ database.DialectHandler = (*postgresHandler)(nil)

// CreateCloudSQLPool for PostgreSQL
func (h postgresHandler) CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	if cfg.User == "" || cfg.DBName == "" || cfg.CloudSQLInstanceConnectionName == "" {
		return nil, fmt.Errorf("missing required CloudSQL connection parameter (user, db, instance)")
	}
	instanceConnectionName := cfg.CloudSQLInstanceConnectionName

	dsn := fmt.Sprintf("user=%s password=%s database=%s", cfg.User, cfg.Password, cfg.DBName)
	pgxConfig, err := pgx.ParseConfig(dsn)
	if err != nil {
		return nil, err
	}
	if cfg.ConnectTimeout > 0 {
		pgxConfig.ConnectTimeout = cfg.ConnectTimeout
	}

	var opts []cloudsqlconn.Option
	if cfg.UsePrivateIP {
		opts = append(opts, cloudsqlconn.WithDefaultDialOptions(cloudsqlconn.WithPrivateIP()))
	}
	d, err := cloudsqlconn.NewDialer(context.Background(), opts...)
	if err != nil {
		return nil, err
	}
	pgxConfig.DialFunc = func(ctx context.Context, network, instance string) (net.Conn, error) {
		return d.Dial(ctx, instanceConnectionName)
	}
	dbURI := stdlib.RegisterConnConfig(pgxConfig)
	dbPool, err := sql.Open("pgx", dbURI)
	if err != nil {
		return nil, fmt.Errorf("sql.Open: %w", err)
	}

	return dbPool, nil
}

// CreateStandardPool creates a standard PostgreSQL connection pool
func (h postgresHandler) CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error) {
	connStr := fmt.Sprintf(
		"host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		cfg.Host, cfg.Port, cfg.User, cfg.Password, cfg.DBName, cfg.SSLMode,
	)
	if cfg.ConnectTimeout > 0 {
		connStr += fmt.Sprintf(" connect_timeout=%d", int(cfg.ConnectTimeout.Seconds()))
	}

	dbPool, err := sql.Open("postgres", connStr)
	if err != nil {
		return nil, fmt.Errorf("error opening database: %w", err)
	}
	return dbPool, err
}

// QuoteIdentifier for PostgreSQL
func (h postgresHandler) QuoteIdentifier(name string) string {
	return pq.QuoteIdentifier(name)
}

func (h postgresHandler) QuoteLiteral(value string) string {
	return pq.QuoteLiteral(value)
}

var patternReplacer = strings.NewReplacer("%Y", "YYYY", "%m", "MM", "%d", "DD")

// toCharPattern translates a strftime pattern to a to_char template.
func toCharPattern(pattern string) string {
	return patternReplacer.Replace(pattern)
}

func (h postgresHandler) FormatTemporal(expr string, pattern string) string {
	return fmt.Sprintf("to_char(%s, '%s')", expr, toCharPattern(pattern))
}

func (h postgresHandler) FromUnixTime(seconds string, pattern string) string {
	if pattern == "" {
		return fmt.Sprintf("to_timestamp(%s)", seconds)
	}
	return h.FormatTemporal(fmt.Sprintf("to_timestamp(%s)", seconds), pattern)
}

// TemporalFilterColumn formats the column like the bounds, since Postgres has no
// timestamp to text comparison.
func (h postgresHandler) TemporalFilterColumn(col string, pattern string) string {
	if pattern == "" {
		return col
	}
	return h.FormatTemporal(col, pattern)
}

func (h postgresHandler) Aggregate(fn query.AggregationFunction, expr string) string {
	if fn == query.AggregationCountDistinct {
		return fmt.Sprintf("COUNT(DISTINCT %s)", expr)
	}
	return fmt.Sprintf("%s(%s)", strings.ToUpper(string(fn)), expr)
}

// TaskLookupSQL skips the session running the lookup itself.
func (h postgresHandler) TaskLookupSQL() string {
	return "SELECT pid::text FROM pg_stat_activity WHERE query = $1 AND pid <> pg_backend_pid() LIMIT 1"
}

func (h postgresHandler) KillTaskSQL(taskID string) (string, []any, error) {
	pid, err := strconv.Atoi(strings.TrimSpace(taskID))
	if err != nil || pid <= 0 {
		return "", nil, &database.ErrInvalidTaskID{TaskID: taskID}
	}
	return "SELECT pg_terminate_backend($1)", []any{pid}, nil
}

// WarningCountSQL is empty: PostgreSQL reports notices, not a warning counter.
func (h postgresHandler) WarningCountSQL() string {
	return ""
}

// MapDataType maps the type names reported by lib/pq and pgx.
func (h postgresHandler) MapDataType(databaseTypeName string) (database.DataType, error) {
	switch strings.ToUpper(databaseTypeName) {
	case "INT2", "INT4", "INT8", "OID":
		return database.DataTypeInt, nil
	case "FLOAT4", "FLOAT8", "NUMERIC":
		return database.DataTypeFloat, nil
	case "DATE", "TIMESTAMP", "TIMESTAMPTZ":
		return database.DataTypeDatetime, nil
	case "TEXT", "VARCHAR", "BPCHAR", "NAME", "CHAR", "UUID":
		return database.DataTypeString, nil
	}
	return "", fmt.Errorf("%w: %q", database.ErrUnknownColumnType, databaseTypeName)
}

func init() {
	database.RegisterDialectHandler("postgres", postgresHandler{})
	database.RegisterDialectHandler("cloudsqlpostgres", postgresHandler{})
}
