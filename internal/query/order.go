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

// DefaultAliases are the output column aliases of the x, y and color dimensions.
var DefaultAliases = [3]string{"x", "y", "color"}

type slot struct {
	dim   *QueryDimension
	alias string
}

// OrderDimensions decides the SELECT-list placement of the three dimensions.
//
// Four passes run in sequence:
//  1. temporal dimensions move to the front, one at a time, so later matches land before earlier ones;
//  2. absent dimensions found from index 1 onwards move to the front the same way;
//  3. aggregated dimensions move to the back, scanning right to left from the second to last slot
//     and stopping at the number of absent dimensions moved in pass 2;
//  4. COUNT(*) dimensions move to the back under the same scan.
//
// Each move is a single remove-and-insert, so moved items reverse their relative order.
// Tests pin this; do not replace it with a filter-and-concatenate partition.
func OrderDimensions(dims [3]*QueryDimension, aliases [3]string) ([3]*QueryDimension, [3]string) {
	s := make([]slot, len(dims))
	for i := range dims {
		s[i] = slot{dim: dims[i], alias: aliases[i]}
	}

	for i := 0; i < len(s); i++ {
		if s[i].dim.temporal() != "" {
			moveToFront(s, i)
		}
	}

	absent := 0
	for i := 1; i < len(s); i++ {
		if s[i].dim == nil {
			moveToFront(s, i)
			absent++
		}
	}

	for i := len(s) - 2; i >= absent; i-- {
		if s[i].dim.aggregation() != "" {
			moveToBack(s, i)
		}
	}

	for i := len(s) - 2; i >= absent; i-- {
		if s[i].dim != nil && s[i].dim.IsCount {
			moveToBack(s, i)
		}
	}

	var outDims [3]*QueryDimension
	var outAliases [3]string
	for i := range s {
		outDims[i] = s[i].dim
		outAliases[i] = s[i].alias
	}
	return outDims, outAliases
}

// moveToFront removes s[i] and reinserts it at index 0.
func moveToFront(s []slot, i int) {
	v := s[i]
	copy(s[1:i+1], s[:i])
	s[0] = v
}

// moveToBack removes s[i] and reinserts it at the last index.
func moveToBack(s []slot, i int) {
	v := s[i]
	copy(s[i:], s[i+1:])
	s[len(s)-1] = v
}
