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
	"errors"
	"fmt"
	"strconv"
	"strings"
)

// Tautology is emitted in place of a filter that cannot be rendered.
const Tautology = "1 = 1"

// ErrUnknownFilterKind is returned alongside Tautology for filters of an unknown kind.
var ErrUnknownFilterKind = errors.New("unknown kind of filter")

var temporalPatterns = map[TemporalFunction]string{
	TemporalYear:         "%Y",
	TemporalMonth:        "%m",
	TemporalDay:          "%d",
	TemporalYearMonth:    "%Y-%m",
	TemporalYearMonthDay: "%Y-%m-%d",
}

// TemporalPattern returns the strftime pattern for fn.
func TemporalPattern(fn TemporalFunction) (string, bool) {
	p, ok := temporalPatterns[fn]
	return p, ok
}

// TimeBucket formats expr with the pattern of fn. Without a known function expr is returned unchanged.
func TimeBucket(d Dialect, fn TemporalFunction, expr string) string {
	pattern, ok := TemporalPattern(fn)
	if !ok {
		return expr
	}
	return d.FormatTemporal(expr, pattern)
}

// isAggregated reports whether dim renders as an aggregate and so stays out of GROUP BY.
func isAggregated(dim *QueryDimension) bool {
	return dim != nil && (dim.IsCount || dim.aggregation() != "")
}

// Aggregator returns the SELECT expression of dim, or false when dim is absent.
func Aggregator(d Dialect, dim *QueryDimension) (string, bool) {
	if dim == nil {
		return "", false
	}
	if dim.IsCount {
		return "COUNT(*)", true
	}
	if dim.NonCountOptions == nil || dim.NonCountOptions.ColumnName == "" {
		return "", false
	}
	col := TimeBucket(d, dim.temporal(), d.QuoteIdentifier(string(dim.NonCountOptions.ColumnName)))
	if fn := dim.aggregation(); fn != "" {
		return d.Aggregate(fn, col), true
	}
	return col, true
}

// FilterCondition renders one WHERE condition. For an unknown kind it returns
// Tautology together with ErrUnknownFilterKind so the caller can log and carry on.
func FilterCondition(d Dialect, f QueryFilter) (string, error) {
	col := d.QuoteIdentifier(string(f.ColumnName))
	switch f.Kind {
	case FilterMinMaxQuantitive:
		return between(col, formatBound(f.Min, 1), formatBound(f.Max, 1)), nil
	case FilterMinMaxTemporal:
		pattern, _ := TemporalPattern(f.TemporalValueFunction)
		toTime := func(ms *float64) string {
			s := formatBound(ms, 1000)
			if s == "" {
				return ""
			}
			return d.FromUnixTime(s, pattern)
		}
		return between(d.TemporalFilterColumn(col, pattern), toTime(f.Min), toTime(f.Max)), nil
	case FilterOneOf:
		if len(f.OneOf) == 0 {
			return "1 = 0", nil
		}
		values := make([]string, 0, len(f.OneOf))
		withNull := false
		for _, v := range f.OneOf {
			if v == nil {
				withNull = true
				continue
			}
			values = append(values, d.QuoteLiteral(string(*v)))
		}
		// IN never matches NULL rows.
		switch {
		case !withNull:
			return fmt.Sprintf("%s IN (%s)", col, strings.Join(values, ",")), nil
		case len(values) == 0:
			return fmt.Sprintf("%s IS NULL", col), nil
		default:
			return fmt.Sprintf("(%s IN (%s) OR %s IS NULL)", col, strings.Join(values, ","), col), nil
		}
	default:
		return Tautology, fmt.Errorf("%w: %q", ErrUnknownFilterKind, f.Kind)
	}
}

func between(col, lo, hi string) string {
	switch {
	case lo != "" && hi != "":
		return fmt.Sprintf("%s BETWEEN %s AND %s", col, lo, hi)
	case lo != "":
		return fmt.Sprintf("%s >= %s", col, lo)
	case hi != "":
		return fmt.Sprintf("%s <= %s", col, hi)
	default:
		return Tautology
	}
}

func formatBound(v *float64, divisor float64) string {
	if v == nil {
		return ""
	}
	return strconv.FormatFloat(*v/divisor, 'f', -1, 64)
}
