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
	"github.com/GoogleCloudPlatform/db-query-playground/internal/database"
	"github.com/GoogleCloudPlatform/db-query-playground/internal/query"
)

// DataResult is the tabular answer to preview and query requests. Error
// carries the database message verbatim when execution failed.
type DataResult struct {
	Columns []database.DataColumn `json:"columns"`
	Rows    [][]any               `json:"rows"`
	Error   string                `json:"error,omitempty"`
}

type PreviewRequest struct {
	DataSource query.DataSource `json:"data_source"`
	HeaderOnly bool             `json:"header_only,omitempty"`
}

type ListColumnValuesRequest struct {
	DataSource              query.DataSource       `json:"data_source"`
	ColumnName              query.TrustedIdent     `json:"column_name"`
	ColumnType              database.DataType      `json:"column_type"`
	TemporalValueFunction   query.TemporalFunction `json:"temporal_value_function,omitempty"`
	CategoricalValueInclude string                 `json:"categorical_value_include,omitempty"`
}

// ValueKind tells the UI which filter widget fits a column.
type ValueKind string

const (
	ValueKindTemporal    ValueKind = "temporal"
	ValueKindQuantitive  ValueKind = "quantitive"
	ValueKindCategorical ValueKind = "categorical"
)

type QuantitiveInfo struct {
	Min float64 `json:"min"`
	Max float64 `json:"max"`
}

type TemporalInfo struct {
	MinTimestampMs int64 `json:"min_timestamp_ms"`
	MaxTimestampMs int64 `json:"max_timestamp_ms"`
}

// CategoricalInfo lists distinct values; nil entries are SQL NULLs.
type CategoricalInfo struct {
	Values []*string `json:"values"`
}

// ListColumnValuesResponse sets at most one of the info fields, matching ValueKind.
type ListColumnValuesResponse struct {
	ValueKind       ValueKind        `json:"value_kind,omitempty"`
	QuantitiveInfo  *QuantitiveInfo  `json:"quantitive_info,omitempty"`
	TemporalInfo    *TemporalInfo    `json:"temporal_info,omitempty"`
	CategoricalInfo *CategoricalInfo `json:"categorical_info,omitempty"`
	Error           string           `json:"error,omitempty"`
}
