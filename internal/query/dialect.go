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
	"fmt"
	"strings"
)

// Dialect renders the database specific pieces of a compiled statement.
// Patterns passed to FormatTemporal and FromUnixTime use strftime notation (%Y, %m, %d).
type Dialect interface {
	QuoteIdentifier(name string) string
	QuoteLiteral(value string) string
	// FormatTemporal buckets a datetime expression with the given pattern.
	FormatTemporal(expr string, pattern string) string
	// FromUnixTime converts an epoch-seconds literal to a timestamp, formatted
	// with pattern when pattern is non-empty.
	FromUnixTime(seconds string, pattern string) string
	// TemporalFilterColumn is the column side of a temporal filter whose bounds
	// were rendered by FromUnixTime with the same pattern.
	TemporalFilterColumn(col string, pattern string) string
	// Aggregate applies fn to expr.
	Aggregate(fn AggregationFunction, expr string) string
}

// MySQLDialect covers TiDB and MySQL. TiDB has APPROX_COUNT_DISTINCT; plain MySQL
// falls back to an exact COUNT(DISTINCT ...).
type MySQLDialect struct {
	ApproxCountDistinct bool
}

var _ Dialect = MySQLDialect{}

// TiDB is the dialect of the shared cluster the playground runs against.
var TiDB = MySQLDialect{ApproxCountDistinct: true}

func (MySQLDialect) QuoteIdentifier(name string) string {
	return "`" + strings.ReplaceAll(name, "`", "``") + "`"
}

// QuoteLiteral uses double quotes, which TiDB and MySQL accept outside ANSI_QUOTES mode.
func (MySQLDialect) QuoteLiteral(value string) string {
	value = strings.ReplaceAll(value, `\`, `\\`)
	value = strings.ReplaceAll(value, `"`, `\"`)
	return `"` + value + `"`
}

func (MySQLDialect) FormatTemporal(expr string, pattern string) string {
	return fmt.Sprintf("DATE_FORMAT(%s, '%s')", expr, pattern)
}

func (MySQLDialect) FromUnixTime(seconds string, pattern string) string {
	if pattern == "" {
		return fmt.Sprintf("FROM_UNIXTIME(%s)", seconds)
	}
	return fmt.Sprintf("FROM_UNIXTIME(%s, '%s')", seconds, pattern)
}

// TemporalFilterColumn leaves the column as is; MySQL coerces the formatted bounds.
func (MySQLDialect) TemporalFilterColumn(col string, pattern string) string {
	return col
}

func (d MySQLDialect) Aggregate(fn AggregationFunction, expr string) string {
	switch fn {
	case AggregationCountDistinct:
		if d.ApproxCountDistinct {
			return fmt.Sprintf("APPROX_COUNT_DISTINCT(%s)", expr)
		}
		return fmt.Sprintf("COUNT(DISTINCT %s)", expr)
	default:
		return fmt.Sprintf("%s(%s)", strings.ToUpper(string(fn)), expr)
	}
}
