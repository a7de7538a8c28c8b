package docflow

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"

	"golang.org/x/sync/errgroup"

	"github.com/zj00777/feishu-power-skill/internal/eval/template"
	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

// Ungrouped is the group key for records with no value in the group field
const Ungrouped = "未分类"

const (
	fieldTypeNumber       = 2
	fieldTypeSingleSelect = 3
)

// RecordSource provides table schemas and records. *feishu.Client satisfies it.
type RecordSource interface {
	ListFields(ctx context.Context, app, table string) ([]feishu.Field, error)
	ListAllRecords(ctx context.Context, app, table string, opts feishu.ListOptions) ([]feishu.Record, error)
}

// ContextOptions shapes the template context built from a table
type ContextOptions struct {
	// GroupBy adds a "groups" map keyed by this field's display value
	GroupBy string
	// Filter is passed through to the record listing
	Filter string
	// Extra entries are merged last and win over generated keys
	Extra map[string]interface{}
}

// BuildContext reads a table and produces a template context with
// records, total, fields, optional groups, and summary
func BuildContext(ctx context.Context, source RecordSource, app, table string, opts ContextOptions) (map[string]interface{}, error) {
	var (
		fields  []feishu.Field
		records []feishu.Record
	)

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		fs, err := source.ListFields(gctx, app, table)
		if err != nil {
			return fmt.Errorf("failed to list fields: %w", err)
		}
		fields = fs
		return nil
	})
	g.Go(func() error {
		rs, err := source.ListAllRecords(gctx, app, table, feishu.ListOptions{Filter: opts.Filter})
		if err != nil {
			return fmt.Errorf("failed to list records: %w", err)
		}
		records = rs
		return nil
	})
	if err := g.Wait(); err != nil {
		return nil, err
	}

	names := make([]string, 0, len(fields))
	for _, f := range fields {
		names = append(names, f.FieldName)
	}

	rows := make([]map[string]interface{}, 0, len(records))
	for _, r := range records {
		row := make(map[string]interface{}, len(names))
		for _, name := range names {
			row[name] = DisplayValue(r.Fields[name])
		}
		rows = append(rows, row)
	}

	out := map[string]interface{}{
		"records": rows,
		"total":   len(rows),
		"fields":  names,
	}

	if opts.GroupBy != "" && contains(names, opts.GroupBy) {
		out["groups"] = groupRows(rows, opts.GroupBy)
	}
	out["summary"] = summarize(rows, fields)

	for k, v := range opts.Extra {
		out[k] = v
	}
	return out, nil
}

func groupRows(rows []map[string]interface{}, field string) map[string]interface{} {
	groups := map[string]interface{}{}
	for _, row := range rows {
		key := Ungrouped
		if v := row[field]; v != nil {
			if s := template.Format(v); s != "" {
				key = s
			}
		}
		list, _ := groups[key].([]map[string]interface{})
		groups[key] = append(list, row)
	}
	return groups
}

// summarize counts single-select options and aggregates number fields.
// Only truthy values take part.
func summarize(rows []map[string]interface{}, fields []feishu.Field) map[string]interface{} {
	summary := map[string]interface{}{"total": len(rows)}

	for _, f := range fields {
		var values []interface{}
		for _, row := range rows {
			if v := row[f.FieldName]; template.Truthy(v) {
				values = append(values, v)
			}
		}

		switch f.Type {
		case fieldTypeSingleSelect:
			dist := map[string]interface{}{}
			for _, v := range values {
				key := template.Format(v)
				n, _ := dist[key].(int)
				dist[key] = n + 1
			}
			summary["by_"+f.FieldName] = dist

		case fieldTypeNumber:
			var nums []float64
			for _, v := range values {
				if n, ok := toNumber(v); ok {
					nums = append(nums, n)
				}
			}
			if len(nums) == 0 {
				continue
			}
			lo, hi, sum := nums[0], nums[0], 0.0
			for _, n := range nums {
				lo = math.Min(lo, n)
				hi = math.Max(hi, n)
				sum += n
			}
			summary[f.FieldName+"_sum"] = round2(sum)
			summary[f.FieldName+"_avg"] = round2(sum / float64(len(nums)))
			summary[f.FieldName+"_max"] = hi
			summary[f.FieldName+"_min"] = lo
		}
	}
	return summary
}

// DisplayValue turns a raw bitable cell into something a template can print.
// Rich text segments are joined, people become a comma separated name list,
// plain lists become string lists, and link objects reduce to their text.
func DisplayValue(raw interface{}) interface{} {
	switch v := raw.(type) {
	case nil:
		return nil
	case string, bool, float64, float32, int, int64, json.Number:
		return v
	case []interface{}:
		if len(v) == 0 {
			return nil
		}
		if first, ok := v[0].(map[string]interface{}); ok {
			switch {
			case has(first, "text"):
				var b strings.Builder
				for _, item := range v {
					b.WriteString(stringKey(item, "text"))
				}
				return b.String()
			case has(first, "name"), has(first, "id"):
				names := make([]string, 0, len(v))
				for _, item := range v {
					name := stringKey(item, "name")
					if name == "" {
						name = stringKey(item, "id")
					}
					names = append(names, name)
				}
				return strings.Join(names, ", ")
			}
		}
		out := make([]string, 0, len(v))
		for _, item := range v {
			out = append(out, fmt.Sprint(item))
		}
		return out
	case map[string]interface{}:
		if t, ok := v["text"]; ok {
			return t
		}
		if l, ok := v["link"]; ok {
			return l
		}
		return fmt.Sprint(v)
	}
	return fmt.Sprint(raw)
}

func has(m map[string]interface{}, key string) bool {
	_, ok := m[key]
	return ok
}

func stringKey(item interface{}, key string) string {
	m, ok := item.(map[string]interface{})
	if !ok {
		return ""
	}
	s, _ := m[key].(string)
	return s
}

func toNumber(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case json.Number:
		f, err := x.Float64()
		return f, err == nil
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

func round2(f float64) float64 {
	return math.Round(f*100) / 100
}

func contains(list []string, s string) bool {
	for _, v := range list {
		if v == s {
			return true
		}
	}
	return false
}
