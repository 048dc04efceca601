package database

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"sync"

	"github.com/GoogleCloudPlatform/db-query-playground/internal/config"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/query"
	"go.uber.org/zap"
)

// TaskKiller finds and terminates the server-side task running a statement.
type TaskKiller interface {
	// LookupTaskID returns ErrTaskNotFound when no task is running sqlText.
	LookupTaskID(ctx context.Context, sqlText string) (string, error)
	KillTask(ctx context.Context, taskID string) error
}

var _ TaskKiller = (*DB)(nil)

// DB holds the database connection pool and dialect handler.
type DB struct {
	Pool    *sql.DB
	Handler DialectHandler
	Config  config.DatabaseConfig
}

// DialectHandler provides everything engine specific: pool creation, SQL
// fragments for the query compiler, task cancellation and type mapping.
type DialectHandler interface {
	query.Dialect
	CreateCloudSQLPool(cfg config.DatabaseConfig) (*sql.DB, error)
	CreateStandardPool(cfg config.DatabaseConfig) (*sql.DB, error)
	// TaskLookupSQL takes the statement text as its only argument and yields
	// the id of the task running it, or NULL.
	TaskLookupSQL() string
	KillTaskSQL(taskID string) (string, []any, error)
	// WarningCountSQL returns "" when the engine has no warning counter.
	WarningCountSQL() string
	MapDataType(databaseTypeName string) (DataType, error)
}

var (
	dialectHandlers = make(map[string]DialectHandler)
	mu              sync.RWMutex
)

func RegisterDialectHandler(dialect string, handler DialectHandler) {
	mu.Lock()
	defer mu.Unlock()
	if _, exists := dialectHandlers[dialect]; exists {
		zap.L().Warn("Dialect handler is being overwritten", zap.String("dialect", dialect))
	}
	dialectHandlers[dialect] = handler
}

func GetDialectHandler(dialect string) (DialectHandler, error) {
	mu.RLock()
	defer mu.RUnlock()
	handler, ok := dialectHandlers[dialect]
	if !ok {
		return nil, fmt.Errorf("unsupported database dialect: %s", dialect)
	}
	return handler, nil
}

// New creates the shared pool for cfg and checks it is reachable.
func New(ctx context.Context, cfg config.DatabaseConfig) (*DB, error) {
	handler, err := GetDialectHandler(cfg.Dialect)
	if err != nil {
		return nil, err
	}

	var pool *sql.DB
	if cfg.IsCloudSQL() {
		pool, err = handler.CreateCloudSQLPool(cfg)
	} else {
		pool, err = handler.CreateStandardPool(cfg)
	}
	if err != nil {
		return nil, &ErrDatabaseConnection{Msg: fmt.Sprintf("failed to create database pool for dialect %s", cfg.Dialect), Err: err}
	}

	if cfg.ConnectionLimit > 0 {
		pool.SetMaxOpenConns(cfg.ConnectionLimit)
		pool.SetMaxIdleConns(cfg.ConnectionLimit)
	}

	if cfg.ConnectTimeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, cfg.ConnectTimeout)
		defer cancel()
	}
	if err := pool.PingContext(ctx); err != nil {
		pool.Close()
		return nil, &ErrDatabaseConnection{Msg: fmt.Sprintf("ping failed for dialect %s", cfg.Dialect), Err: err}
	}

	return &DB{
		Pool:    pool,
		Handler: handler,
		Config:  cfg,
	}, nil
}

func (db *DB) Ping(ctx context.Context) error {
	if db.Pool == nil {
		return fmt.Errorf("database connection pool is not initialized")
	}
	return db.Pool.PingContext(ctx)
}

func (db *DB) Close() error {
	if db.Pool != nil {
		return db.Pool.Close()
	}
	zap.L().Warn("Attempted to close a nil database connection pool")
	return nil
}

// LookupTaskID implements TaskKiller.
func (db *DB) LookupTaskID(ctx context.Context, sqlText string) (string, error) {
	if db.Pool == nil || db.Handler == nil {
		return "", fmt.Errorf("database connection pool is not initialized")
	}
	var id sql.NullString
	err := db.Pool.QueryRowContext(ctx, db.Handler.TaskLookupSQL(), sqlText).Scan(&id)
	if errors.Is(err, sql.ErrNoRows) || (err == nil && !id.Valid) {
		return "", ErrTaskNotFound
	}
	if err != nil {
		return "", &ErrTaskLookup{Msg: "failed to look up running task", Err: err}
	}
	return id.String, nil
}

// KillTask implements TaskKiller.
func (db *DB) KillTask(ctx context.Context, taskID string) error {
	if db.Pool == nil || db.Handler == nil {
		return fmt.Errorf("database connection pool is not initialized")
	}
	stmt, args, err := db.Handler.KillTaskSQL(taskID)
	if err != nil {
		return err
	}
	if _, err := db.Pool.ExecContext(ctx, stmt, args...); err != nil {
		return &ErrKillFailed{TaskID: taskID, Err: err}
	}
	return nil
}
