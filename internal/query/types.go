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
package query

import "strings"

// TrustedIdent is a dataset or column name taken from the UI's own column list.
// It is interpolated into SQL text as-is (after dialect quoting), never bound as a parameter.
type TrustedIdent string

// TrustedSQL is a user supplied sub-query used as a row source. It is wrapped in
// parentheses and interpolated verbatim.
type TrustedSQL string

// TrustedLiteral is an enumerated value picked from a list the server produced.
// It is quoted by the dialect and inserted as a literal.
type TrustedLiteral string

// TemporalFunction buckets a datetime column.
type TemporalFunction string

const (
	TemporalYear         TemporalFunction = "year"
	TemporalMonth        TemporalFunction = "month"
	TemporalDay          TemporalFunction = "day"
	TemporalYearMonth    TemporalFunction = "year_month"
	TemporalYearMonthDay TemporalFunction = "year_month_day"
)

// AggregationFunction aggregates a (possibly bucketed) column.
type AggregationFunction string

const (
	AggregationMin           AggregationFunction = "min"
	AggregationMax           AggregationFunction = "max"
	AggregationAvg           AggregationFunction = "avg"
	AggregationSum           AggregationFunction = "sum"
	AggregationCountDistinct AggregationFunction = "count_distinct"
)

// FilterKind selects how a QueryFilter is rendered.
type FilterKind string

const (
	FilterMinMaxTemporal   FilterKind = "min_max_temporal"
	FilterMinMaxQuantitive FilterKind = "min_max_quantitive"
	FilterOneOf            FilterKind = "one_of"
)

// DataSource is either a stored dataset or an arbitrary sub-query. Query wins when both are set.
type DataSource struct {
	Query     TrustedSQL   `json:"query,omitempty"`
	DatasetID TrustedIdent `json:"dataset_id,omitempty"`
}

// Normalize strips trailing semicolons from the sub-query. A query that ends up
// empty is treated as absent.
func (ds DataSource) Normalize() DataSource {
	q := strings.TrimSpace(string(ds.Query))
	for strings.HasSuffix(q, ";") {
		q = strings.TrimSpace(strings.TrimSuffix(q, ";"))
	}
	ds.Query = TrustedSQL(q)
	return ds
}

// IsEmpty reports whether neither a query nor a dataset id is set.
func (ds DataSource) IsEmpty() bool {
	n := ds.Normalize()
	return n.Query == "" && strings.TrimSpace(string(n.DatasetID)) == ""
}

// Source renders the row source clause, including the fixed "AS t" alias.
func (ds DataSource) Source() string {
	n := ds.Normalize()
	if n.Query != "" {
		return "(" + string(n.Query) + ") AS t"
	}
	return string(n.DatasetID) + " AS t"
}

// NonCountOptions describes a column based dimension.
type NonCountOptions struct {
	ColumnName            TrustedIdent        `json:"column_name"`
	AggregationFunction   AggregationFunction `json:"aggregation_function,omitempty"`
	TemporalValueFunction TemporalFunction    `json:"temporal_value_function,omitempty"`
}

// QueryDimension is either COUNT(*) or a column with optional aggregation and bucketing.
type QueryDimension struct {
	IsCount         bool             `json:"is_count"`
	NonCountOptions *NonCountOptions `json:"non_count_options,omitempty"`
}

func (d *QueryDimension) temporal() TemporalFunction {
	if d == nil || d.NonCountOptions == nil {
		return ""
	}
	return d.NonCountOptions.TemporalValueFunction
}

func (d *QueryDimension) aggregation() AggregationFunction {
	if d == nil || d.NonCountOptions == nil {
		return ""
	}
	return d.NonCountOptions.AggregationFunction
}

// QueryFilter restricts rows before grouping. Min and Max are epoch milliseconds
// for temporal filters and raw bounds for quantitative ones.
type QueryFilter struct {
	ColumnName            TrustedIdent      `json:"column_name"`
	Kind                  FilterKind        `json:"kind"`
	Min                   *float64          `json:"min,omitempty"`
	Max                   *float64          `json:"max,omitempty"`
	OneOf                 []*TrustedLiteral `json:"one_of,omitempty"`
	TemporalValueFunction TemporalFunction  `json:"temporal_value_function,omitempty"`
}

// QueryRequest is the declarative "dimensions + filters" request.
type QueryRequest struct {
	DataSource DataSource      `json:"data_source"`
	Filters    []QueryFilter   `json:"filters,omitempty"`
	X          *QueryDimension `json:"x,omitempty"`
	Y          *QueryDimension `json:"y,omitempty"`
	Color      *QueryDimension `json:"color,omitempty"`
}
