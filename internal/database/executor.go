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
package database

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"
)

const (
	// DefaultRowLimit caps SELECT results when no limit is configured.
	DefaultRowLimit = 1000
	// DefaultTimeout is the time budget of a single statement.
	DefaultTimeout = 10 * time.Minute
)

// queryer is satisfied by *sql.Conn.
type queryer interface {
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

// ExecutorOptions tunes an Executor. Zero values take the defaults.
type ExecutorOptions struct {
	RowLimit  int
	Timeout   time.Duration
	KillRetry RetryOptions
	// Killer defaults to the DB itself.
	Killer  TaskKiller
	Metrics *Metrics
}

// Executor runs arbitrary SQL on the shared pool. Every statement gets a row
// cap and a watchdog that kills it on the server once its budget runs out.
type Executor struct {
	db       *DB
	rowLimit int
	timeout  time.Duration
	killer   TaskKiller
	retry    RetryOptions
	metrics  *Metrics
	logger   *zap.Logger
}

func NewExecutor(db *DB, opts ExecutorOptions, logger *zap.Logger) *Executor {
	if logger == nil {
		logger = zap.NewNop()
	}
	if opts.RowLimit <= 0 {
		opts.RowLimit = DefaultRowLimit
	}
	if opts.Timeout <= 0 {
		opts.Timeout = DefaultTimeout
	}
	if opts.KillRetry.MaxAttempts <= 0 {
		opts.KillRetry = DefaultKillRetryOptions
	}
	if opts.Killer == nil && db != nil {
		opts.Killer = db
	}
	return &Executor{
		db:       db,
		rowLimit: opts.RowLimit,
		timeout:  opts.Timeout,
		killer:   opts.Killer,
		retry:    opts.KillRetry,
		metrics:  opts.Metrics,
		logger:   logger,
	}
}

// TimeoutMessage is the error reported for a statement that ran out of time.
func TimeoutMessage(budget time.Duration) string {
	return fmt.Sprintf("Execution time exceed %s, Timeout", formatBudget(budget))
}

func formatBudget(d time.Duration) string {
	if d >= time.Minute && d%time.Minute == 0 {
		return fmt.Sprintf("%dmin", d/time.Minute)
	}
	return d.String()
}

// Execute runs one statement and never fails: errors are reported in the
// result. Once the watchdog fires the result is the timeout error, even if
// the statement completes while the kill rounds are running.
func (e *Executor) Execute(ctx context.Context, sqlText string) ExecuteSQLResult {
	if e.db == nil || e.db.Pool == nil {
		return ExecuteSQLResult{Error: "Pool was not created. Ensure pool is created when running the app."}
	}

	stmt := LimitRows(sqlText, e.rowLimit)
	e.logger.Info("Executing SQL", zap.String("sql", stmt))
	begin := time.Now()

	wd := newWatchdog(stmt, e.timeout, e.killer, e.retry, e.metrics, e.logger)
	fired := wd.Arm()

	// The statement must not be interrupted by the caller going away; the
	// watchdog owns cancellation.
	done := make(chan ExecuteSQLResult, 1)
	go func() {
		done <- e.run(context.WithoutCancel(ctx), stmt, begin)
	}()

	var res ExecuteSQLResult
	status := statusOK
	select {
	case res = <-done:
		if !wd.Complete() {
			<-fired
			res, status = ExecuteSQLResult{Error: TimeoutMessage(e.timeout)}, statusTimeout
		}
	case <-fired:
		res, status = ExecuteSQLResult{Error: TimeoutMessage(e.timeout)}, statusTimeout
	}
	if status == statusOK && !res.OK() {
		status = statusError
	}
	e.metrics.observe(status, time.Since(begin))
	return res
}

func (e *Executor) run(ctx context.Context, stmt string, begin time.Time) ExecuteSQLResult {
	conn, err := e.db.Pool.Conn(ctx)
	if err != nil {
		return errorResult(err)
	}
	defer conn.Close()

	if returnsRows(stmt) {
		return e.queryRows(ctx, conn, stmt, begin)
	}
	return e.exec(ctx, conn, stmt, begin)
}

func (e *Executor) queryRows(ctx context.Context, conn queryer, stmt string, begin time.Time) ExecuteSQLResult {
	rows, err := conn.QueryContext(ctx, stmt)
	if err != nil {
		return errorResult(err)
	}
	defer rows.Close()

	types, err := rows.ColumnTypes()
	if err != nil {
		return errorResult(err)
	}
	columns := make([]DataColumn, len(types))
	for i, ct := range types {
		dt, err := e.db.Handler.MapDataType(ct.DatabaseTypeName())
		if err != nil {
			e.logger.Warn("Reporting column as string",
				zap.String("column", ct.Name()),
				zap.String("type", ct.DatabaseTypeName()),
				zap.Error(err))
			dt = DataTypeString
		}
		columns[i] = DataColumn{Name: ct.Name(), DataType: dt}
	}

	out := [][]any{}
	for rows.Next() {
		values := make([]any, len(columns))
		ptrs := make([]any, len(columns))
		for i := range values {
			ptrs[i] = &values[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return errorResult(err)
		}
		for i, v := range values {
			if b, ok := v.([]byte); ok {
				values[i] = string(b)
			}
		}
		out = append(out, values)
	}
	if err := rows.Err(); err != nil {
		return errorResult(err)
	}

	return ExecuteSQLResult{
		Columns:         columns,
		Rows:            out,
		TotalRows:       len(out),
		ExecutionTimeMs: time.Since(begin).Milliseconds(),
	}
}

func (e *Executor) exec(ctx context.Context, conn queryer, stmt string, begin time.Time) ExecuteSQLResult {
	result, err := conn.ExecContext(ctx, stmt)
	if err != nil {
		return errorResult(err)
	}
	affected, err := result.RowsAffected()
	if err != nil {
		e.logger.Debug("Driver does not report affected rows", zap.Error(err))
	}
	warnings := e.warningCount(ctx, conn)

	return ExecuteSQLResult{
		Columns:         []DataColumn{},
		Rows:            [][]any{{fmt.Sprintf("Query OK, %d rows affected, %d warning", affected, warnings)}},
		TotalRows:       1,
		ExecutionTimeMs: time.Since(begin).Milliseconds(),
	}
}

// warningCount must run on the connection that executed the statement.
func (e *Executor) warningCount(ctx context.Context, conn queryer) int64 {
	q := e.db.Handler.WarningCountSQL()
	if q == "" {
		return 0
	}
	var n int64
	if err := conn.QueryRowContext(ctx, q).Scan(&n); err != nil {
		e.logger.Debug("Failed to read warning count", zap.Error(err))
		return 0
	}
	return n
}
