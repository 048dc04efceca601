package query

import (
	"errors"
	"testing"
)

func TestTimeBucket(t *testing.T) {
	tests := []struct {
		fn   TemporalFunction
		want string
	}{
		{TemporalYear, "DATE_FORMAT(`c`, '%Y')"},
		{TemporalMonth, "DATE_FORMAT(`c`, '%m')"},
		{TemporalDay, "DATE_FORMAT(`c`, '%d')"},
		{TemporalYearMonth, "DATE_FORMAT(`c`, '%Y-%m')"},
		{TemporalYearMonthDay, "DATE_FORMAT(`c`, '%Y-%m-%d')"},
		{"", "`c`"},
		{"week", "`c`"},
	}
	for _, tt := range tests {
		t.Run(string(tt.fn), func(t *testing.T) {
			if got := TimeBucket(TiDB, tt.fn, "`c`"); got != tt.want {
				t.Errorf("TimeBucket(%q) = %q, want %q", tt.fn, got, tt.want)
			}
		})
	}
}

func TestAggregator(t *testing.T) {
	tests := []struct {
		name   string
		d      Dialect
		dim    *QueryDimension
		want   string
		wantOK bool
	}{
		{"Absent", TiDB, nil, "", false},
		{"Count", TiDB, countDim(), "COUNT(*)", true},
		{"Bare", TiDB, bareDim("city"), "`city`", true},
		{"Sum", TiDB, aggDim("amount", AggregationSum), "SUM(`amount`)", true},
		{"Min of bucket", TiDB, &QueryDimension{NonCountOptions: &NonCountOptions{
			ColumnName: "ts", AggregationFunction: AggregationMin, TemporalValueFunction: TemporalYear,
		}}, "MIN(DATE_FORMAT(`ts`, '%Y'))", true},
		{"Approximate distinct", TiDB, aggDim("u", AggregationCountDistinct), "APPROX_COUNT_DISTINCT(`u`)", true},
		{"Exact distinct on MySQL", MySQLDialect{}, aggDim("u", AggregationCountDistinct), "COUNT(DISTINCT `u`)", true},
		{"Missing options", TiDB, &QueryDimension{}, "", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := Aggregator(tt.d, tt.dim)
			if got != tt.want || ok != tt.wantOK {
				t.Errorf("Aggregator() = (%q, %v), want (%q, %v)", got, ok, tt.want, tt.wantOK)
			}
		})
	}
}

func TestFilterCondition(t *testing.T) {
	tests := []struct {
		name    string
		filter  QueryFilter
		want    string
		wantErr bool
	}{
		{
			name:   "One of",
			filter: QueryFilter{ColumnName: "c", Kind: FilterOneOf, OneOf: []*TrustedLiteral{literal("a"), literal("b")}},
			want:   "`c` IN (\"a\",\"b\")",
		},
		{
			name:   "One of with null",
			filter: QueryFilter{ColumnName: "c", Kind: FilterOneOf, OneOf: []*TrustedLiteral{literal("a"), nil}},
			want:   "(`c` IN (\"a\") OR `c` IS NULL)",
		},
		{
			name:   "One of only null",
			filter: QueryFilter{ColumnName: "c", Kind: FilterOneOf, OneOf: []*TrustedLiteral{nil}},
			want:   "`c` IS NULL",
		},
		{
			name:   "One of with nothing selected",
			filter: QueryFilter{ColumnName: "c", Kind: FilterOneOf},
			want:   "1 = 0",
		},
		{
			name:   "Quantitive",
			filter: QueryFilter{ColumnName: "v", Kind: FilterMinMaxQuantitive, Min: float(10), Max: float(20)},
			want:   "`v` BETWEEN 10 AND 20",
		},
		{
			name:   "Quantitive lower bound only",
			filter: QueryFilter{ColumnName: "v", Kind: FilterMinMaxQuantitive, Min: float(-2.5)},
			want:   "`v` >= -2.5",
		},
		{
			name:   "Temporal raw",
			filter: QueryFilter{ColumnName: "ts", Kind: FilterMinMaxTemporal, Min: float(1600000000000), Max: float(1700000000500)},
			want:   "`ts` BETWEEN FROM_UNIXTIME(1600000000) AND FROM_UNIXTIME(1700000000.5)",
		},
		{
			name: "Temporal with year month",
			filter: QueryFilter{ColumnName: "ts", Kind: FilterMinMaxTemporal, TemporalValueFunction: TemporalYearMonth,
				Min: float(1600000000000), Max: float(1700000000000)},
			want: "`ts` BETWEEN FROM_UNIXTIME(1600000000, '%Y-%m') AND FROM_UNIXTIME(1700000000, '%Y-%m')",
		},
		{
			name:   "Temporal without bounds",
			filter: QueryFilter{ColumnName: "ts", Kind: FilterMinMaxTemporal},
			want:   Tautology,
		},
		{
			name:    "Unknown kind",
			filter:  QueryFilter{ColumnName: "c", Kind: "like"},
			want:    Tautology,
			wantErr: true,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := FilterCondition(TiDB, tt.filter)
			if got != tt.want {
				t.Errorf("FilterCondition() = %q, want %q", got, tt.want)
			}
			if tt.wantErr != (err != nil) {
				t.Fatalf("FilterCondition() error = %v, wantErr %v", err, tt.wantErr)
			}
			if err != nil && !errors.Is(err, ErrUnknownFilterKind) {
				t.Errorf("expected ErrUnknownFilterKind, got %v", err)
			}
		})
	}
}

func TestDataSourceSource(t *testing.T) {
	tests := []struct {
		name string
		ds   DataSource
		want string
	}{
		{"Dataset", DataSource{DatasetID: "bakery"}, "bakery AS t"},
		{"Query wins", DataSource{Query: "SELECT 1", DatasetID: "bakery"}, "(SELECT 1) AS t"},
		{"Trailing semicolons stripped", DataSource{Query: "SELECT 1;;\n"}, "(SELECT 1) AS t"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.ds.Source(); got != tt.want {
				t.Errorf("Source() = %q, want %q", got, tt.want)
			}
		})
	}
	if !(DataSource{Query: ";"}).IsEmpty() {
		t.Errorf("expected a lone semicolon to be an empty data source")
	}
}
