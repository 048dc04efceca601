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
	"regexp"
	"strconv"
	"strings"
	"unicode"
)

var (
	selectStatement = regexp.MustCompile(`(?i)^\s*select\b`)
	trailingLimit   = regexp.MustCompile(`(?i)\blimit\s+(?:\d+\s*,\s*)?(\d+)(?:\s+offset\s+\d+)?\s*;?$`)
	rowStatement    = regexp.MustCompile(`(?i)^[\s(]*(select|show|describe|desc|explain|with|values|table|call|admin|check|checksum|trace|help)\b`)
)

// LimitRows caps the number of rows a top-level SELECT can return. An existing
// trailing LIMIT below limit is kept; a larger one is lowered to limit. Other
// statements are returned unchanged.
func LimitRows(sqlText string, limit int) string {
	if limit <= 0 || !selectStatement.MatchString(sqlText) {
		return sqlText
	}
	stmt := strings.TrimRightFunc(sqlText, unicode.IsSpace)
	capped := strconv.Itoa(limit)

	if m := trailingLimit.FindStringSubmatchIndex(stmt); m != nil {
		n, err := strconv.Atoi(stmt[m[2]:m[3]])
		if err == nil && n < limit {
			return stmt
		}
		rewritten := stmt[:m[2]] + capped + stmt[m[3]:]
		if !strings.HasSuffix(rewritten, ";") {
			rewritten += ";"
		}
		return rewritten
	}

	return strings.TrimSuffix(stmt, ";") + " LIMIT " + capped + ";"
}

// returnsRows reports whether a statement produces a result set. Leading
// comments are ignored.
func returnsRows(sqlText string) bool {
	return rowStatement.MatchString(stripLeadingComments(sqlText))
}

// stripLeadingComments drops "--", "#" and "/* */" comments that precede the
// first keyword. An unterminated comment leaves nothing.
func stripLeadingComments(sqlText string) string {
	s := sqlText
	for {
		s = strings.TrimLeftFunc(s, unicode.IsSpace)
		switch {
		case strings.HasPrefix(s, "--"), strings.HasPrefix(s, "#"):
			i := strings.IndexByte(s, '\n')
			if i < 0 {
				return ""
			}
			s = s[i+1:]
		case strings.HasPrefix(s, "/*"):
			i := strings.Index(s[2:], "*/")
			if i < 0 {
				return ""
			}
			s = s[i+4:]
		default:
			return s
		}
	}
}
