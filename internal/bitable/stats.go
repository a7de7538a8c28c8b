package bitable

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"sort"
)

// Field type codes used by the statistics
const (
	TypeNumber       = 2
	TypeSingleSelect = 3
	TypeMultiSelect  = 4
)

// maxDistribution caps the number of option counts reported per select field
const maxDistribution = 10

var fieldTypeNames = map[int]string{
	1:    "Text",
	2:    "Number",
	3:    "SingleSelect",
	4:    "MultiSelect",
	5:    "DateTime",
	7:    "Checkbox",
	11:   "Person",
	13:   "Phone",
	15:   "URL",
	17:   "Attachment",
	18:   "Link",
	19:   "Lookup",
	20:   "Formula",
	21:   "DuplexLink",
	22:   "Location",
	23:   "GroupChat",
	1001: "CreatedTime",
	1002: "ModifiedTime",
	1003: "CreatedBy",
	1004: "ModifiedBy",
	1005: "AutoNumber",
}

// FieldTypeName maps a field type code to its name, e.g. 2 → "Number"
func FieldTypeName(t int) string {
	if name, ok := fieldTypeNames[t]; ok {
		return name
	}
	return fmt.Sprintf("Unknown(%d)", t)
}

// OptionCount is one entry of a select field distribution
type OptionCount struct {
	Value string `json:"value"`
	Count int    `json:"count"`
}

// FieldStats summarizes one column
type FieldStats struct {
	Name         string        `json:"name"`
	Type         int           `json:"type"`
	TypeName     string        `json:"type_name"`
	FillRate     string        `json:"fill_rate"`
	Min          *float64      `json:"min,omitempty"`
	Max          *float64      `json:"max,omitempty"`
	Avg          *float64      `json:"avg,omitempty"`
	Sum          *float64      `json:"sum,omitempty"`
	Distribution []OptionCount `json:"distribution,omitempty"`
}

// TableStats summarizes a table
type TableStats struct {
	TableID      string       `json:"table_id"`
	TotalRecords int          `json:"total_records"`
	TotalFields  int          `json:"total_fields"`
	Fields       []FieldStats `json:"fields"`
}

// Stats computes fill rates, numeric aggregates and select distributions
func (e *Engine) Stats(ctx context.Context, app, table string) (*TableStats, error) {
	fields, records, err := e.fetch(ctx, app, table)
	if err != nil {
		return nil, err
	}

	out := &TableStats{
		TableID:      table,
		TotalRecords: len(records),
		TotalFields:  len(fields),
		Fields:       make([]FieldStats, 0, len(fields)),
	}

	for _, f := range fields {
		fs := FieldStats{Name: f.FieldName, Type: f.Type, TypeName: FieldTypeName(f.Type)}

		var filled []interface{}
		for _, r := range records {
			v := r.Fields[f.FieldName]
			if !isBlank(v) {
				filled = append(filled, v)
			}
		}
		fs.FillRate = fmt.Sprintf("%d/%d", len(filled), len(records))

		switch f.Type {
		case TypeNumber:
			numericStats(&fs, filled)
		case TypeSingleSelect, TypeMultiSelect:
			fs.Distribution = distribution(filled)
		}
		out.Fields = append(out.Fields, fs)
	}

	return out, nil
}

func numericStats(fs *FieldStats, values []interface{}) {
	var nums []float64
	for _, v := range values {
		if n, ok := number(v); ok {
			nums = append(nums, n)
		}
	}
	if len(nums) == 0 {
		return
	}

	lo, hi, sum := nums[0], nums[0], 0.0
	for _, n := range nums {
		lo = math.Min(lo, n)
		hi = math.Max(hi, n)
		sum += n
	}
	avg := round2(sum / float64(len(nums)))
	sum = round2(sum)
	fs.Min, fs.Max, fs.Avg, fs.Sum = &lo, &hi, &avg, &sum
}

// distribution counts options, most frequent first, ties in first-seen order
func distribution(values []interface{}) []OptionCount {
	counts := map[string]int{}
	var order []string
	add := func(s string) {
		if _, seen := counts[s]; !seen {
			order = append(order, s)
		}
		counts[s]++
	}

	for _, v := range values {
		switch x := v.(type) {
		case string:
			add(x)
		case []interface{}:
			for _, item := range x {
				if s, ok := item.(string); ok {
					add(s)
				} else {
					add(fmt.Sprint(item))
				}
			}
		}
	}

	out := make([]OptionCount, 0, len(order))
	for _, s := range order {
		out = append(out, OptionCount{Value: s, Count: counts[s]})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Count > out[j].Count })
	if len(out) > maxDistribution {
		out = out[:maxDistribution]
	}
	return out
}

func isBlank(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return true
	case string:
		return x == ""
	case []interface{}:
		return len(x) == 0
	}
	return false
}

func number(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	}
	return 0, false
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}
