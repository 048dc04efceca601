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
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config holds all configuration for the application
type Config struct {
	Database DatabaseConfig
	Server   ServerConfig
	Cache    CacheConfig
	RowLimit int // maximum number of rows a SELECT may return
	LogLevel string
}

// DatabaseConfig holds database connection configuration
type DatabaseConfig struct {
	Dialect                        string
	Host                           string
	Port                           int
	User                           string
	Password                       string
	DBName                         string
	SSLMode                        string
	ConnectionLimit                int
	ConnectTimeout                 time.Duration
	CloudSQLInstanceConnectionName string
	UsePrivateIP                   bool
}

// ServerConfig holds the HTTP listener configuration.
type ServerConfig struct {
	Host       string
	Port       int
	APIPrefix  string
	CORSOrigin string // extra allowed origin, optional
}

// CacheConfig controls the list-values cache.
type CacheConfig struct {
	File          string // empty keeps the cache in memory only
	FlushInterval time.Duration
}

// Keys understood by Load. Environment variables use the names the playground
// has always been deployed with.
const (
	KeyDialect         = "db.dialect"
	KeyHost            = "db.host"
	KeyPort            = "db.port"
	KeyUser            = "db.user"
	KeyPassword        = "db.password"
	KeyDatabase        = "db.database"
	KeySSLMode         = "db.sslmode"
	KeyConnectionLimit = "db.connection_limit"
	KeyConnectTimeout  = "db.connect_timeout_ms"
	KeyCloudSQLName    = "db.cloudsql_instance"
	KeyCloudSQLPrivate = "db.cloudsql_private_ip"
	KeyRowLimit        = "row_limit"
	KeyLogLevel        = "log_level"
	KeyServerHost      = "server.host"
	KeyServerPort      = "server.port"
	KeyAPIPrefix       = "server.api_prefix"
	KeyCORSOrigin      = "server.cors_origin"
	KeyCacheFile       = "cache.file"
)

var envNames = map[string]string{
	KeyDialect:         "PLAYGROUND_DB_DIALECT",
	KeyHost:            "MY_SQL_DB_HOST",
	KeyPort:            "MY_SQL_DB_PORT",
	KeyUser:            "MY_SQL_DB_USER",
	KeyPassword:        "MY_SQL_DB_PASSWORD",
	KeyDatabase:        "MY_SQL_DB_DATABASE",
	KeySSLMode:         "PLAYGROUND_DB_SSLMODE",
	KeyConnectionLimit: "MY_SQL_DB_CONNECTION_LIMIT",
	KeyConnectTimeout:  "MY_SQL_DB_CONNECT_TIMEOUT",
	KeyCloudSQLName:    "PLAYGROUND_CLOUDSQL_INSTANCE",
	KeyCloudSQLPrivate: "PLAYGROUND_CLOUDSQL_PRIVATE_IP",
	KeyRowLimit:        "LIMIT_RETURNED_ROWS",
	KeyLogLevel:        "PLAYGROUND_LOG_LEVEL",
	KeyServerHost:      "PLAYGROUND_HOST",
	KeyServerPort:      "PLAYGROUND_PORT",
	KeyAPIPrefix:       "PLAYGROUND_API_PREFIX",
	KeyCORSOrigin:      "PLAYGROUND_CORS_ORIGIN",
	KeyCacheFile:       "PLAYGROUND_CACHE_FILE",
}

// Default returns the configuration used when nothing is set.
func Default() *Config {
	return &Config{
		Database: DatabaseConfig{
			Dialect:         "tidb",
			Host:            "localhost",
			Port:            4000,
			User:            "root",
			DBName:          "test",
			SSLMode:         "disable",
			ConnectionLimit: 100,
			ConnectTimeout:  10 * time.Minute,
		},
		Server: ServerConfig{
			Host:      "127.0.0.1",
			Port:      1345,
			APIPrefix: "/api",
		},
		Cache: CacheConfig{
			File:          "./db_data_cache.json",
			FlushInterval: 10 * time.Second,
		},
		RowLimit: 1000,
		LogLevel: "info",
	}
}

// SetDefaults registers defaults and environment bindings on v.
func SetDefaults(v *viper.Viper) error {
	d := Default()
	v.SetDefault(KeyDialect, d.Database.Dialect)
	v.SetDefault(KeyHost, d.Database.Host)
	v.SetDefault(KeyPort, d.Database.Port)
	v.SetDefault(KeyUser, d.Database.User)
	v.SetDefault(KeyPassword, d.Database.Password)
	v.SetDefault(KeyDatabase, d.Database.DBName)
	v.SetDefault(KeySSLMode, d.Database.SSLMode)
	v.SetDefault(KeyConnectionLimit, d.Database.ConnectionLimit)
	v.SetDefault(KeyConnectTimeout, d.Database.ConnectTimeout.Milliseconds())
	v.SetDefault(KeyCloudSQLName, "")
	v.SetDefault(KeyCloudSQLPrivate, false)
	v.SetDefault(KeyRowLimit, d.RowLimit)
	v.SetDefault(KeyLogLevel, d.LogLevel)
	v.SetDefault(KeyServerHost, d.Server.Host)
	v.SetDefault(KeyServerPort, d.Server.Port)
	v.SetDefault(KeyAPIPrefix, d.Server.APIPrefix)
	v.SetDefault(KeyCORSOrigin, "")
	v.SetDefault(KeyCacheFile, d.Cache.File)

	for key, env := range envNames {
		if err := v.BindEnv(key, env); err != nil {
			return fmt.Errorf("failed to bind %s to %s: %w", key, env, err)
		}
	}
	return nil
}

// Load reads the configuration from v. Call SetDefaults first.
func Load(v *viper.Viper) (*Config, error) {
	cfg := Default()
	cfg.Database = DatabaseConfig{
		Dialect:                        strings.ToLower(v.GetString(KeyDialect)),
		Host:                           v.GetString(KeyHost),
		Port:                           v.GetInt(KeyPort),
		User:                           v.GetString(KeyUser),
		Password:                       v.GetString(KeyPassword),
		DBName:                         v.GetString(KeyDatabase),
		SSLMode:                        v.GetString(KeySSLMode),
		ConnectionLimit:                v.GetInt(KeyConnectionLimit),
		ConnectTimeout:                 time.Duration(v.GetInt64(KeyConnectTimeout)) * time.Millisecond,
		CloudSQLInstanceConnectionName: v.GetString(KeyCloudSQLName),
		UsePrivateIP:                   v.GetBool(KeyCloudSQLPrivate),
	}
	cfg.Server = ServerConfig{
		Host:       v.GetString(KeyServerHost),
		Port:       v.GetInt(KeyServerPort),
		APIPrefix:  v.GetString(KeyAPIPrefix),
		CORSOrigin: v.GetString(KeyCORSOrigin),
	}
	cfg.Cache.File = v.GetString(KeyCacheFile)
	cfg.RowLimit = v.GetInt(KeyRowLimit)
	cfg.LogLevel = v.GetString(KeyLogLevel)

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the whole configuration.
func (c *Config) Validate() error {
	if err := c.Database.Validate(); err != nil {
		return err
	}
	if c.RowLimit <= 0 {
		return fmt.Errorf("row limit must be positive, got %d", c.RowLimit)
	}
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("invalid server port: %d", c.Server.Port)
	}
	return nil
}

// IsCloudSQL reports whether the dialect connects through the Cloud SQL connector.
func (c DatabaseConfig) IsCloudSQL() bool {
	return strings.HasPrefix(c.Dialect, "cloudsql")
}

// Validate checks the database connection parameters.
func (c DatabaseConfig) Validate() error {
	if c.Dialect == "" {
		return fmt.Errorf("database dialect is required")
	}
	if c.IsCloudSQL() {
		if c.CloudSQLInstanceConnectionName == "" {
			return fmt.Errorf("cloud SQL instance connection name is required for dialect %s", c.Dialect)
		}
	} else {
		if c.Host == "" {
			return fmt.Errorf("database host is required")
		}
		if c.Port <= 0 || c.Port > 65535 {
			return fmt.Errorf("invalid database port: %d", c.Port)
		}
	}
	if c.User == "" {
		return fmt.Errorf("database user is required")
	}
	if c.DBName == "" {
		return fmt.Errorf("database name is required")
	}
	if c.ConnectionLimit <= 0 {
		return fmt.Errorf("connection limit must be positive, got %d", c.ConnectionLimit)
	}
	return nil
}
