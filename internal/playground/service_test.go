package playground

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/GoogleCloudPlatform/db-query-playground/internal/database"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/query"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
)

// MockExecutor is a mock type for the Executor interface
type MockExecutor struct {
	mock.Mock
}

func (m *MockExecutor) Execute(ctx context.Context, sql string) database.ExecuteSQLResult {
	args := m.Called(ctx, sql)
	return args.Get(0).(database.ExecuteSQLResult)
}

func newTestService(t *testing.T, cache *ValueCache) (*Service, *MockExecutor) {
	t.Helper()
	exec := new(MockExecutor)
	return NewService(exec, query.NewCompiler(query.TiDB, nil), cache, nil), exec
}

func rowsResult(rows ...[]any) database.ExecuteSQLResult {
	return database.ExecuteSQLResult{
		Columns:   []database.DataColumn{{Name: "x", DataType: database.DataTypeString}},
		Rows:      rows,
		TotalRows: len(rows),
	}
}

func ptr(s string) *string { return &s }

func TestPreview(t *testing.T) {
	tests := []struct {
		name    string
		req     PreviewRequest
		wantSQL string
	}{
		{"Dataset rows", PreviewRequest{DataSource: query.DataSource{DatasetID: "bakery"}}, "SELECT * FROM bakery AS t LIMIT 200"},
		{"Header only", PreviewRequest{DataSource: query.DataSource{DatasetID: "bakery"}, HeaderOnly: true}, "SELECT * FROM bakery AS t LIMIT 0"},
		{"Sub-query", PreviewRequest{DataSource: query.DataSource{Query: "SELECT a FROM b;"}}, "SELECT * FROM (SELECT a FROM b) AS t LIMIT 200"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, exec := newTestService(t, nil)
			exec.On("Execute", mock.Anything, tt.wantSQL).Return(rowsResult([]any{"a"})).Once()

			got, err := svc.Preview(context.Background(), tt.req)

			require.NoError(t, err)
			assert.Equal(t, [][]any{{"a"}}, got.Rows)
			exec.AssertExpectations(t)
		})
	}
}

func TestPreviewRejectsEmptyDataSource(t *testing.T) {
	svc, exec := newTestService(t, nil)
	_, err := svc.Preview(context.Background(), PreviewRequest{DataSource: query.DataSource{Query: " ; "}})

	var invalid *ErrInvalidInput
	assert.True(t, errors.As(err, &invalid), "got %v", err)
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestQuery(t *testing.T) {
	svc, exec := newTestService(t, nil)
	req := query.QueryRequest{
		DataSource: query.DataSource{DatasetID: "sales"},
		X: &query.QueryDimension{NonCountOptions: &query.NonCountOptions{
			ColumnName: "year", TemporalValueFunction: query.TemporalYear,
		}},
		Y: &query.QueryDimension{IsCount: true},
	}
	exec.On("Execute", mock.Anything, "SELECT DATE_FORMAT(`year`, '%Y') AS x, COUNT(*) AS y FROM sales AS t GROUP BY x").
		Return(rowsResult([]any{"2024", int64(3)})).Once()

	got, err := svc.Query(context.Background(), req)

	require.NoError(t, err)
	assert.Equal(t, [][]any{{"2024", int64(3)}}, got.Rows)
	assert.Empty(t, got.Error)
	exec.AssertExpectations(t)
}

func TestQueryWithoutDimensionsSkipsDatabase(t *testing.T) {
	svc, exec := newTestService(t, nil)

	got, err := svc.Query(context.Background(), query.QueryRequest{DataSource: query.DataSource{DatasetID: "sales"}})

	require.NoError(t, err)
	assert.Equal(t, []database.DataColumn{}, got.Columns)
	assert.Equal(t, [][]any{}, got.Rows)
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestQueryCarriesExecutionError(t *testing.T) {
	svc, exec := newTestService(t, nil)
	exec.On("Execute", mock.Anything, mock.Anything).
		Return(database.ExecuteSQLResult{Error: "Execution time exceed 10min, Timeout"})

	got, err := svc.Query(context.Background(), query.QueryRequest{
		DataSource: query.DataSource{DatasetID: "t"},
		X:          &query.QueryDimension{IsCount: true},
	})

	require.NoError(t, err)
	assert.Equal(t, "Execution time exceed 10min, Timeout", got.Error)
	assert.Empty(t, got.Rows)
}

func TestExecuteSQLPassesThrough(t *testing.T) {
	svc, exec := newTestService(t, nil)
	want := database.ExecuteSQLResult{Rows: [][]any{{"Query OK, 1 rows affected, 0 warning"}}, TotalRows: 1}
	exec.On("Execute", mock.Anything, "DELETE FROM t WHERE id = 1").Return(want).Once()

	assert.Equal(t, want, svc.ExecuteSQL(context.Background(), "DELETE FROM t WHERE id = 1"))
	exec.AssertExpectations(t)
}

func TestListColumnValues(t *testing.T) {
	src := query.DataSource{DatasetID: "sales"}
	ts1 := time.Date(2020, 1, 1, 0, 0, 0, 0, time.UTC)
	ts2 := time.Date(2024, 6, 30, 12, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		req     ListColumnValuesRequest
		wantSQL string
		result  database.ExecuteSQLResult
		want    ListColumnValuesResponse
	}{
		{
			name:    "Datetime bucketed",
			req:     ListColumnValuesRequest{DataSource: src, ColumnName: "sold_at", ColumnType: database.DataTypeDatetime, TemporalValueFunction: query.TemporalYear},
			wantSQL: "SELECT DISTINCT DATE_FORMAT(`sold_at`, '%Y') AS `sold_at` FROM sales AS t GROUP BY `sold_at`",
			result:  rowsResult([]any{"2020"}, []any{"2024"}),
			want: ListColumnValuesResponse{
				ValueKind:       ValueKindCategorical,
				CategoricalInfo: &CategoricalInfo{Values: []*string{ptr("2020"), ptr("2024")}},
			},
		},
		{
			name:    "Datetime range",
			req:     ListColumnValuesRequest{DataSource: src, ColumnName: "sold_at", ColumnType: database.DataTypeDatetime},
			wantSQL: "SELECT MIN(`sold_at`), MAX(`sold_at`) FROM sales AS t",
			result:  rowsResult([]any{ts1, "2024-06-30 12:00:00"}),
			want: ListColumnValuesResponse{
				ValueKind:    ValueKindTemporal,
				TemporalInfo: &TemporalInfo{MinTimestampMs: ts1.UnixMilli(), MaxTimestampMs: ts2.UnixMilli()},
			},
		},
		{
			name:    "Numeric range",
			req:     ListColumnValuesRequest{DataSource: src, ColumnName: "price", ColumnType: database.DataTypeFloat},
			wantSQL: "SELECT MIN(`price`), MAX(`price`) FROM sales AS t",
			result:  rowsResult([]any{int64(1), "9.50"}),
			want: ListColumnValuesResponse{
				ValueKind:      ValueKindQuantitive,
				QuantitiveInfo: &QuantitiveInfo{Min: 1, Max: 9.5},
			},
		},
		{
			name:    "Strings with include filter",
			req:     ListColumnValuesRequest{DataSource: src, ColumnName: "item", ColumnType: database.DataTypeString, CategoricalValueInclude: `Br"ead`},
			wantSQL: "SELECT DISTINCT `item` AS x FROM sales AS t WHERE `item` LIKE \"%Br\\\"ead%\"",
			result:  rowsResult([]any{`Br"eadstick`}, []any{nil}),
			want: ListColumnValuesResponse{
				ValueKind:       ValueKindCategorical,
				CategoricalInfo: &CategoricalInfo{Values: []*string{ptr(`Br"eadstick`), nil}},
			},
		},
		{
			name:    "Execution error is reported",
			req:     ListColumnValuesRequest{DataSource: src, ColumnName: "item", ColumnType: database.DataTypeString},
			wantSQL: "SELECT DISTINCT `item` AS x FROM sales AS t",
			result:  database.ExecuteSQLResult{Error: "Unknown column 'item'"},
			want:    ListColumnValuesResponse{Error: "Unknown column 'item'"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			svc, exec := newTestService(t, nil)
			exec.On("Execute", mock.Anything, tt.wantSQL).Return(tt.result).Once()

			got, err := svc.ListColumnValues(context.Background(), tt.req)

			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
			exec.AssertExpectations(t)
		})
	}
}

func TestListColumnValuesUnknownType(t *testing.T) {
	svc, exec := newTestService(t, nil)

	got, err := svc.ListColumnValues(context.Background(), ListColumnValuesRequest{
		DataSource: query.DataSource{DatasetID: "t"}, ColumnName: "c", ColumnType: "geometry",
	})

	require.NoError(t, err)
	assert.Equal(t, ListColumnValuesResponse{}, got)
	exec.AssertNotCalled(t, "Execute", mock.Anything, mock.Anything)
}

func TestListColumnValuesIsCached(t *testing.T) {
	cache, err := NewValueCache("", 0, nil)
	require.NoError(t, err)
	svc, exec := newTestService(t, cache)
	req := ListColumnValuesRequest{DataSource: query.DataSource{DatasetID: "t"}, ColumnName: "n", ColumnType: database.DataTypeInt}

	exec.On("Execute", mock.Anything, "SELECT MIN(`n`), MAX(`n`) FROM t AS t").
		Return(rowsResult([]any{int64(0), int64(10)})).Once()

	first, err := svc.ListColumnValues(context.Background(), req)
	require.NoError(t, err)
	second, err := svc.ListColumnValues(context.Background(), req)
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, &QuantitiveInfo{Min: 0, Max: 10}, second.QuantitiveInfo)
	assert.Equal(t, 1, cache.Len())
	exec.AssertNumberOfCalls(t, "Execute", 1)
}

func TestListColumnValuesErrorsAreNotCached(t *testing.T) {
	cache, err := NewValueCache("", 0, nil)
	require.NoError(t, err)
	svc, exec := newTestService(t, cache)
	req := ListColumnValuesRequest{DataSource: query.DataSource{DatasetID: "t"}, ColumnName: "n", ColumnType: database.DataTypeInt}

	exec.On("Execute", mock.Anything, mock.Anything).Return(database.ExecuteSQLResult{Error: "boom"}).Twice()

	for i := 0; i < 2; i++ {
		got, err := svc.ListColumnValues(context.Background(), req)
		require.NoError(t, err)
		assert.Equal(t, "boom", got.Error)
	}
	assert.Zero(t, cache.Len())
	exec.AssertExpectations(t)
}
