package database

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
	"go.uber.org/zap/zaptest/observer"
)

// fakeKiller counts watchdog calls. Zero value reports "not found".
type fakeKiller struct {
	lookupFn func() (string, error)
	killErr  error

	lookups atomic.Int32
	kills   atomic.Int32
}

func (f *fakeKiller) LookupTaskID(ctx context.Context, sqlText string) (string, error) {
	f.lookups.Add(1)
	if f.lookupFn == nil {
		return "", ErrTaskNotFound
	}
	return f.lookupFn()
}

func (f *fakeKiller) KillTask(ctx context.Context, taskID string) error {
	f.kills.Add(1)
	if f.killErr != nil {
		return &ErrKillFailed{TaskID: taskID, Err: f.killErr}
	}
	return nil
}

func counterValue(t *testing.T, reg *prometheus.Registry, name, label, value string) float64 {
	t.Helper()
	mfs, err := reg.Gather()
	require.NoError(t, err)
	for _, mf := range mfs {
		if mf.GetName() != name {
			continue
		}
		for _, m := range mf.GetMetric() {
			for _, lp := range m.GetLabel() {
				if lp.GetName() == label && lp.GetValue() == value {
					return m.GetCounter().GetValue()
				}
			}
		}
	}
	return 0
}

var fastRetry = RetryOptions{MaxAttempts: 3, InitialBackoff: time.Millisecond, MaxBackoff: 5 * time.Millisecond, BackoffMultiplier: 2}

func newTestExecutor(t *testing.T, opts ExecutorOptions) (*Executor, sqlmock.Sqlmock) {
	t.Helper()
	db, mock := newTestDBWithMockHandler(t)
	t.Cleanup(func() { db.Pool.Close() })
	if opts.KillRetry.MaxAttempts == 0 {
		opts.KillRetry = fastRetry
	}
	return NewExecutor(db, opts, zap.NewNop()), mock
}

func TestExecuteSelect(t *testing.T) {
	killer := &fakeKiller{}
	exec, mock := newTestExecutor(t, ExecutorOptions{Killer: killer})

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("id").OfType("BIGINT", int64(0)),
		sqlmock.NewColumn("name").OfType("VARCHAR", ""),
		sqlmock.NewColumn("price").OfType("DOUBLE", float64(0)),
	).AddRow(int64(1), "bread", 2.5).AddRow(int64(2), []byte("coffee"), nil)
	mock.ExpectQuery("SELECT * FROM bakery LIMIT 1000;").WillReturnRows(rows)

	res := exec.Execute(context.Background(), "SELECT * FROM bakery")

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, []DataColumn{
		{Name: "id", DataType: DataTypeInt},
		{Name: "name", DataType: DataTypeString},
		{Name: "price", DataType: DataTypeFloat},
	}, res.Columns)
	assert.Equal(t, [][]any{{int64(1), "bread", 2.5}, {int64(2), "coffee", nil}}, res.Rows)
	assert.Equal(t, 2, res.TotalRows)
	assert.GreaterOrEqual(t, res.ExecutionTimeMs, int64(0))
	assert.Zero(t, killer.lookups.Load())
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteCommentPrefixedSelectReturnsRows(t *testing.T) {
	tests := []struct {
		name string
		sql  string
	}{
		{"Line comment", "-- bakery rows\nSELECT * FROM bakery"},
		{"Block comment", "/* bakery rows */ SELECT * FROM bakery"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			exec, mock := newTestExecutor(t, ExecutorOptions{Killer: &fakeKiller{}})
			rows := sqlmock.NewRowsWithColumnDefinition(
				sqlmock.NewColumn("name").OfType("VARCHAR", ""),
			).AddRow("bread")
			mock.ExpectQuery(tt.sql).WillReturnRows(rows)

			res := exec.Execute(context.Background(), tt.sql)

			require.True(t, res.OK(), res.Error)
			assert.Equal(t, []DataColumn{{Name: "name", DataType: DataTypeString}}, res.Columns)
			assert.Equal(t, [][]any{{"bread"}}, res.Rows)
			assert.Equal(t, 1, res.TotalRows)
			assert.NoError(t, mock.ExpectationsWereMet())
		})
	}
}

func TestExecuteUnknownColumnTypeFallsBackToString(t *testing.T) {
	db, mock := newTestDBWithMockHandler(t)
	defer db.Pool.Close()
	core, logs := observer.New(zap.WarnLevel)
	exec := NewExecutor(db, ExecutorOptions{Killer: &fakeKiller{}}, zap.New(core))

	rows := sqlmock.NewRowsWithColumnDefinition(
		sqlmock.NewColumn("doc").OfType("JSON", ""),
	).AddRow(`{"a":1}`)
	mock.ExpectQuery("SELECT doc FROM t LIMIT 1000;").WillReturnRows(rows)

	res := exec.Execute(context.Background(), "SELECT doc FROM t")

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, []DataColumn{{Name: "doc", DataType: DataTypeString}}, res.Columns)
	assert.Equal(t, 1, logs.FilterMessage("Reporting column as string").Len())
}

func TestExecuteNonRowStatement(t *testing.T) {
	exec, mock := newTestExecutor(t, ExecutorOptions{Killer: &fakeKiller{}})

	mock.ExpectExec("INSERT INTO t VALUES (1), (2)").WillReturnResult(sqlmock.NewResult(0, 2))
	mock.ExpectQuery("SELECT @@warning_count").
		WillReturnRows(sqlmock.NewRows([]string{"@@warning_count"}).AddRow(int64(1)))

	res := exec.Execute(context.Background(), "INSERT INTO t VALUES (1), (2)")

	require.True(t, res.OK(), res.Error)
	assert.Empty(t, res.Columns)
	assert.Equal(t, [][]any{{"Query OK, 2 rows affected, 1 warning"}}, res.Rows)
	assert.Equal(t, 1, res.TotalRows)
	assert.NoError(t, mock.ExpectationsWereMet())
}

func TestExecuteDriverError(t *testing.T) {
	exec, mock := newTestExecutor(t, ExecutorOptions{Killer: &fakeKiller{}})

	mock.ExpectQuery("SELECT * FROM missing LIMIT 1000;").
		WillReturnError(errors.New("Error 1146 (42S02): Table 'test.missing' doesn't exist"))

	res := exec.Execute(context.Background(), "SELECT * FROM missing")

	assert.False(t, res.OK())
	assert.Equal(t, "Error 1146 (42S02): Table 'test.missing' doesn't exist", res.Error)
	assert.Nil(t, res.Columns)
	assert.Nil(t, res.Rows)
}

func TestExecuteWithoutPool(t *testing.T) {
	exec := NewExecutor(&DB{}, ExecutorOptions{}, nil)
	res := exec.Execute(context.Background(), "SELECT 1")
	assert.Contains(t, res.Error, "Pool was not created")
}

func TestExecuteTimeout(t *testing.T) {
	tests := []struct {
		name        string
		killer      *fakeKiller
		wantLookups int32
		wantKills   int32
		wantOutcome string
	}{
		{
			name:        "Task already gone",
			killer:      &fakeKiller{},
			wantLookups: 1,
			wantKills:   0,
			wantOutcome: killOutcomeNotFound,
		},
		{
			name:        "Task killed",
			killer:      &fakeKiller{lookupFn: func() (string, error) { return "42", nil }},
			wantLookups: 1,
			wantKills:   1,
			wantOutcome: killOutcomeKilled,
		},
		{
			name: "Kill keeps failing",
			killer: &fakeKiller{
				lookupFn: func() (string, error) { return "42", nil },
				killErr:  errors.New("Error 1094: Unknown thread id"),
			},
			wantLookups: 3,
			wantKills:   3,
			wantOutcome: killOutcomeFailed,
		},
		{
			name: "Lookup keeps failing",
			killer: &fakeKiller{
				lookupFn: func() (string, error) { return "", &ErrTaskLookup{Msg: "lookup", Err: errors.New("boom")} },
			},
			wantLookups: 3,
			wantKills:   0,
			wantOutcome: killOutcomeLookupError,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			reg := prometheus.NewRegistry()
			metrics := NewMetrics(reg)
			exec, mock := newTestExecutor(t, ExecutorOptions{
				Killer:  tt.killer,
				Timeout: 20 * time.Millisecond,
				Metrics: metrics,
			})
			mock.ExpectQuery("SELECT SLEEP(60) LIMIT 1000;").
				WillDelayFor(time.Second).
				WillReturnRows(sqlmock.NewRows([]string{"SLEEP(60)"}).AddRow(int64(0)))

			res := exec.Execute(context.Background(), "SELECT SLEEP(60)")

			assert.Equal(t, "Execution time exceed 20ms, Timeout", res.Error)
			assert.Equal(t, tt.wantLookups, tt.killer.lookups.Load())
			assert.Equal(t, tt.wantKills, tt.killer.kills.Load())
			assert.Equal(t, 1.0, counterValue(t, reg, "playground_sql_executions_total", "status", statusTimeout))
			assert.Equal(t, float64(tt.wantLookups), counterValue(t, reg, "playground_sql_kill_attempts_total", "outcome", tt.wantOutcome))
		})
	}
}

func TestExecuteTimeoutWinsOverLateCompletion(t *testing.T) {
	// The statement finishes while the kill round is still looking it up.
	killer := &fakeKiller{lookupFn: func() (string, error) {
		time.Sleep(150 * time.Millisecond)
		return "", ErrTaskNotFound
	}}
	exec, mock := newTestExecutor(t, ExecutorOptions{Killer: killer, Timeout: 10 * time.Millisecond})
	mock.ExpectQuery("SELECT 1 LIMIT 1000;").
		WillDelayFor(50 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	res := exec.Execute(context.Background(), "SELECT 1")

	assert.Equal(t, TimeoutMessage(10*time.Millisecond), res.Error)
	assert.Equal(t, int32(1), killer.lookups.Load())
}

func TestExecuteIgnoresCallerCancellation(t *testing.T) {
	exec, mock := newTestExecutor(t, ExecutorOptions{Killer: &fakeKiller{}})
	mock.ExpectQuery("SELECT 1 LIMIT 1000;").
		WillDelayFor(30 * time.Millisecond).
		WillReturnRows(sqlmock.NewRows([]string{"1"}).AddRow(int64(1)))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	res := exec.Execute(ctx, "SELECT 1")

	require.True(t, res.OK(), res.Error)
	assert.Equal(t, 1, res.TotalRows)
}

func TestTimeoutMessage(t *testing.T) {
	assert.Equal(t, "Execution time exceed 10min, Timeout", TimeoutMessage(DefaultTimeout))
	assert.Equal(t, "Execution time exceed 1.5s, Timeout", TimeoutMessage(1500*time.Millisecond))
}

func TestExecuteSQLResultMarshalJSON(t *testing.T) {
	data, err := ExecuteSQLResult{Error: "boom", Rows: [][]any{{1}}}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"error":"boom"}`, string(data))

	data, err = ExecuteSQLResult{TotalRows: 0, ExecutionTimeMs: 3}.MarshalJSON()
	require.NoError(t, err)
	assert.JSONEq(t, `{"columns":[],"rows":[],"totalRows":0,"executionTimeMs":3}`, string(data))
}
