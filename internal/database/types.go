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

import "encoding/json"

// DataType is the coarse type reported for a result column.
type DataType string

const (
	DataTypeDatetime DataType = "datetime"
	DataTypeInt      DataType = "int"
	DataTypeFloat    DataType = "float"
	DataTypeString   DataType = "string"
)

// DataColumn describes one result column.
type DataColumn struct {
	Name     string   `json:"name"`
	DataType DataType `json:"data_type"`
}

// ExecuteSQLResult is the outcome of a single statement. Either Error is set
// or the data fields are.
type ExecuteSQLResult struct {
	Error           string
	Columns         []DataColumn
	Rows            [][]any
	TotalRows       int
	ExecutionTimeMs int64
}

// OK reports whether the statement produced data.
func (r ExecuteSQLResult) OK() bool {
	return r.Error == ""
}

func errorResult(err error) ExecuteSQLResult {
	return ExecuteSQLResult{Error: err.Error()}
}

func (r ExecuteSQLResult) MarshalJSON() ([]byte, error) {
	if r.Error != "" {
		return json.Marshal(struct {
			Error string `json:"error"`
		}{r.Error})
	}
	columns := r.Columns
	if columns == nil {
		columns = []DataColumn{}
	}
	rows := r.Rows
	if rows == nil {
		rows = [][]any{}
	}
	return json.Marshal(struct {
		Columns         []DataColumn `json:"columns"`
		Rows            [][]any      `json:"rows"`
		TotalRows       int          `json:"totalRows"`
		ExecutionTimeMs int64        `json:"executionTimeMs"`
	}{columns, rows, r.TotalRows, r.ExecutionTimeMs})
}
