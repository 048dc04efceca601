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

import (
	"strings"

	"go.uber.org/zap"
)

// Compiler turns a QueryRequest into a single SQL statement.
type Compiler struct {
	dialect Dialect
	logger  *zap.Logger
}

// NewCompiler returns a compiler for the given dialect. A nil logger discards anomalies.
func NewCompiler(d Dialect, logger *zap.Logger) *Compiler {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Compiler{dialect: d, logger: logger}
}

// Dialect returns the dialect the compiler renders with.
func (c *Compiler) Dialect() Dialect {
	return c.dialect
}

// Where joins the conditions of filters with AND. It returns "" for no filters.
func (c *Compiler) Where(filters []QueryFilter) string {
	if len(filters) == 0 {
		return ""
	}
	conds := make([]string, 0, len(filters))
	for _, f := range filters {
		cond, err := FilterCondition(c.dialect, f)
		if err != nil {
			c.logger.Error("Unknown kind of filter, ignoring it",
				zap.String("column", string(f.ColumnName)),
				zap.String("kind", string(f.Kind)),
				zap.Error(err))
		}
		conds = append(conds, cond)
	}
	return strings.Join(conds, " AND ")
}

// Compile builds the aggregation statement for req. It returns false when no
// dimension is selected, in which case nothing should be executed.
func (c *Compiler) Compile(req QueryRequest) (string, bool) {
	from := "FROM " + req.DataSource.Source()
	if where := c.Where(req.Filters); where != "" {
		from += " WHERE " + where
	}

	dims, aliases := OrderDimensions([3]*QueryDimension{req.X, req.Y, req.Color}, DefaultAliases)

	var selectList, groupBy []string
	for i, dim := range dims {
		expr, ok := Aggregator(c.dialect, dim)
		if !ok {
			continue
		}
		selectList = append(selectList, expr+" AS "+aliases[i])
		if !isAggregated(dim) {
			groupBy = append(groupBy, aliases[i])
		}
	}

	if len(selectList) == 0 {
		c.logger.Info("No dimension selected")
		return "", false
	}

	sql := "SELECT " + strings.Join(selectList, ", ") + " " + from
	if len(groupBy) > 0 {
		sql += " GROUP BY " + strings.Join(groupBy, ", ")
	}
	return sql, true
}
