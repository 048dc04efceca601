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
package playground

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"time"

	"github.com/GoogleCloudPlatform/db-query-playground/internal/database"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/query"
	"go.uber.org/zap"
)

const (
	previewRowLimit = 200
)

// Executor runs a single SQL statement.
type Executor interface {
	Execute(ctx context.Context, sql string) database.ExecuteSQLResult
}

var _ Executor = (*database.Executor)(nil)

// Service implements the data operations behind the playground UI.
type Service struct {
	executor Executor
	compiler *query.Compiler
	cache    *ValueCache
	logger   *zap.Logger
}

// NewService wires a service. cache may be nil to disable memoization.
func NewService(executor Executor, compiler *query.Compiler, cache *ValueCache, logger *zap.Logger) *Service {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Service{
		executor: executor,
		compiler: compiler,
		cache:    cache,
		logger:   logger,
	}
}

func validateDataSource(ds query.DataSource) error {
	if ds.IsEmpty() {
		return &ErrInvalidInput{Msg: "data source needs a query or a dataset_id"}
	}
	return nil
}

func toDataResult(res database.ExecuteSQLResult) DataResult {
	out := DataResult{Columns: res.Columns, Rows: res.Rows, Error: res.Error}
	if out.Columns == nil {
		out.Columns = []database.DataColumn{}
	}
	if out.Rows == nil {
		out.Rows = [][]any{}
	}
	return out
}

// Preview returns the header, or the first rows, of a data source.
func (s *Service) Preview(ctx context.Context, req PreviewRequest) (DataResult, error) {
	if err := validateDataSource(req.DataSource); err != nil {
		return DataResult{}, err
	}
	limit := previewRowLimit
	if req.HeaderOnly {
		limit = 0
	}
	sql := fmt.Sprintf("SELECT * FROM %s LIMIT %d", req.DataSource.Source(), limit)
	return toDataResult(s.executor.Execute(ctx, sql)), nil
}

// Query compiles req and runs it. A request without dimensions returns an
// empty result without touching the database.
func (s *Service) Query(ctx context.Context, req query.QueryRequest) (DataResult, error) {
	if err := validateDataSource(req.DataSource); err != nil {
		return DataResult{}, err
	}
	sql, ok := s.compiler.Compile(req)
	if !ok {
		return toDataResult(database.ExecuteSQLResult{}), nil
	}
	return toDataResult(s.executor.Execute(ctx, sql)), nil
}

// ExecuteSQL runs a notebook cell as is.
func (s *Service) ExecuteSQL(ctx context.Context, sql string) database.ExecuteSQLResult {
	return s.executor.Execute(ctx, sql)
}

// ListColumnValues describes the values of one column so the UI can offer a
// filter. Successful answers are memoized per request.
func (s *Service) ListColumnValues(ctx context.Context, req ListColumnValuesRequest) (ListColumnValuesResponse, error) {
	if err := validateDataSource(req.DataSource); err != nil {
		return ListColumnValuesResponse{}, err
	}
	if req.ColumnName == "" {
		return ListColumnValuesResponse{}, &ErrInvalidInput{Msg: "column_name is required"}
	}
	if s.cache == nil {
		return s.listColumnValuesFromDB(ctx, req), nil
	}

	key, err := json.Marshal(req)
	if err != nil {
		return ListColumnValuesResponse{}, fmt.Errorf("failed to build cache key: %w", err)
	}
	raw, err := s.cache.GetOrCompute(string(key), func() (string, bool, error) {
		resp := s.listColumnValuesFromDB(ctx, req)
		data, err := json.Marshal(resp)
		if err != nil {
			return "", false, err
		}
		return string(data), resp.Error == "", nil
	})
	if err != nil {
		return ListColumnValuesResponse{}, err
	}
	var resp ListColumnValuesResponse
	if err := json.Unmarshal([]byte(raw), &resp); err != nil {
		return ListColumnValuesResponse{}, fmt.Errorf("failed to decode cached value: %w", err)
	}
	return resp, nil
}

func (s *Service) listColumnValuesFromDB(ctx context.Context, req ListColumnValuesRequest) ListColumnValuesResponse {
	d := s.compiler.Dialect()
	col := d.QuoteIdentifier(string(req.ColumnName))
	src := req.DataSource.Source()

	switch req.ColumnType {
	case database.DataTypeDatetime:
		if req.TemporalValueFunction != "" {
			sql := fmt.Sprintf("SELECT DISTINCT %s AS %s FROM %s GROUP BY %s",
				query.TimeBucket(d, req.TemporalValueFunction, col), col, src, col)
			res := s.executor.Execute(ctx, sql)
			if !res.OK() {
				return ListColumnValuesResponse{Error: res.Error}
			}
			return ListColumnValuesResponse{
				ValueKind:       ValueKindCategorical,
				CategoricalInfo: &CategoricalInfo{Values: firstColumn(res.Rows)},
			}
		}
		res := s.executor.Execute(ctx, fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s", col, col, src))
		if !res.OK() {
			return ListColumnValuesResponse{Error: res.Error}
		}
		info := &TemporalInfo{}
		if len(res.Rows) > 0 && len(res.Rows[0]) >= 2 {
			info.MinTimestampMs = toTimestampMs(res.Rows[0][0])
			info.MaxTimestampMs = toTimestampMs(res.Rows[0][1])
		}
		return ListColumnValuesResponse{ValueKind: ValueKindTemporal, TemporalInfo: info}

	case database.DataTypeInt, database.DataTypeFloat:
		res := s.executor.Execute(ctx, fmt.Sprintf("SELECT MIN(%s), MAX(%s) FROM %s", col, col, src))
		if !res.OK() {
			return ListColumnValuesResponse{Error: res.Error}
		}
		info := &QuantitiveInfo{}
		if len(res.Rows) > 0 && len(res.Rows[0]) >= 2 {
			info.Min = toFloat(res.Rows[0][0])
			info.Max = toFloat(res.Rows[0][1])
		}
		return ListColumnValuesResponse{ValueKind: ValueKindQuantitive, QuantitiveInfo: info}

	case database.DataTypeString:
		sql := fmt.Sprintf("SELECT DISTINCT %s AS x FROM %s", col, src)
		if req.CategoricalValueInclude != "" {
			sql += fmt.Sprintf(" WHERE %s LIKE %s", col, d.QuoteLiteral("%"+req.CategoricalValueInclude+"%"))
		}
		res := s.executor.Execute(ctx, sql)
		if !res.OK() {
			return ListColumnValuesResponse{Error: res.Error}
		}
		return ListColumnValuesResponse{
			ValueKind:       ValueKindCategorical,
			CategoricalInfo: &CategoricalInfo{Values: firstColumn(res.Rows)},
		}

	default:
		s.logger.Info("Unknown column type", zap.String("column_type", string(req.ColumnType)))
		return ListColumnValuesResponse{}
	}
}

func firstColumn(rows [][]any) []*string {
	values := make([]*string, 0, len(rows))
	for _, row := range rows {
		if len(row) == 0 || row[0] == nil {
			values = append(values, nil)
			continue
		}
		v := stringify(row[0])
		values = append(values, &v)
	}
	return values
}

func stringify(v any) string {
	switch t := v.(type) {
	case string:
		return t
	case []byte:
		return string(t)
	case time.Time:
		return t.Format(time.DateTime)
	default:
		return fmt.Sprint(t)
	}
}

func toFloat(v any) float64 {
	switch t := v.(type) {
	case int64:
		return float64(t)
	case int32:
		return float64(t)
	case int:
		return float64(t)
	case uint64:
		return float64(t)
	case float64:
		return t
	case float32:
		return float64(t)
	case string:
		f, _ := strconv.ParseFloat(t, 64)
		return f
	case []byte:
		f, _ := strconv.ParseFloat(string(t), 64)
		return f
	}
	return 0
}

var timestampLayouts = []string{
	time.DateTime,
	"2006-01-02 15:04:05.999999",
	time.RFC3339Nano,
	time.DateOnly,
}

func toTimestampMs(v any) int64 {
	switch t := v.(type) {
	case time.Time:
		return t.UnixMilli()
	case []byte:
		return toTimestampMs(string(t))
	case string:
		for _, layout := range timestampLayouts {
			if ts, err := time.Parse(layout, t); err == nil {
				return ts.UnixMilli()
			}
		}
	}
	return 0
}
