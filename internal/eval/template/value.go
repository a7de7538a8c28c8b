package template

import (
	"encoding/json"
	"fmt"
	"math"
	"reflect"
	"strconv"
	"strings"
	"time"
)

const (
	dateLayout = "2006-01-02"
	nowLayout  = "2006-01-02 15:04"
)

// Builtins returns the built-in time variables for now. Weeks start on
// Monday.
func Builtins(now time.Time) map[string]interface{} {
	sinceMonday := (int(now.Weekday()) + 6) % 7
	weekStart := now.AddDate(0, 0, -sinceMonday)

	return map[string]interface{}{
		"TODAY":      now.Format(dateLayout),
		"YESTERDAY":  now.AddDate(0, 0, -1).Format(dateLayout),
		"WEEK_START": weekStart.Format(dateLayout),
		"WEEK_END":   weekStart.AddDate(0, 0, 6).Format(dateLayout),
		"NOW":        now.Format(nowLayout),
	}
}

// Resolve descends ctx one key per dot-separated segment of path. It returns
// nil when a segment is missing or an intermediate value is not a record.
func Resolve(ctx map[string]interface{}, path string) interface{} {
	var cur interface{} = ctx
	for _, seg := range strings.Split(path, ".") {
		rec, ok := asRecord(cur)
		if !ok {
			return nil
		}
		if cur, ok = rec[seg]; !ok {
			return nil
		}
	}
	return cur
}

// Truthy reports whether v counts as present for a conditional block.
// Null, false, zero, "" and empty lists are falsy; everything else is truthy.
func Truthy(v interface{}) bool {
	switch x := v.(type) {
	case nil:
		return false
	case bool:
		return x
	case string:
		return x != ""
	}
	if f, ok := toFloat(v); ok {
		return f != 0
	}
	if l, ok := asList(v); ok {
		return len(l) > 0
	}
	return true
}

// Format converts a value to its display text. Integer-valued numbers print
// without a decimal point, other floats with two decimals, and lists as
// their formatted elements joined by ", ".
func Format(v interface{}) string {
	switch x := v.(type) {
	case nil:
		return ""
	case string:
		return x
	case bool:
		return strconv.FormatBool(x)
	case float64:
		return formatFloat(x)
	case float32:
		return formatFloat(float64(x))
	case int:
		return strconv.Itoa(x)
	case int8, int16, int32, int64:
		return strconv.FormatInt(reflect.ValueOf(x).Int(), 10)
	case uint, uint8, uint16, uint32, uint64:
		return strconv.FormatUint(reflect.ValueOf(x).Uint(), 10)
	case json.Number:
		if i, err := x.Int64(); err == nil {
			return strconv.FormatInt(i, 10)
		}
		if f, err := x.Float64(); err == nil {
			return formatFloat(f)
		}
		return x.String()
	}

	if l, ok := asList(v); ok {
		parts := make([]string, len(l))
		for i, item := range l {
			parts[i] = Format(item)
		}
		return strings.Join(parts, ", ")
	}
	return fmt.Sprint(v)
}

func formatFloat(f float64) string {
	switch {
	case math.IsNaN(f) || math.IsInf(f, 0):
		return strconv.FormatFloat(f, 'f', -1, 64)
	case f == 0:
		return "0"
	case f == math.Trunc(f):
		return strconv.FormatFloat(f, 'f', 0, 64)
	default:
		return strconv.FormatFloat(f, 'f', 2, 64)
	}
}

// toFloat reports the numeric value of v for any Go number kind
func toFloat(v interface{}) (float64, bool) {
	if n, ok := v.(json.Number); ok {
		f, err := n.Float64()
		return f, err == nil
	}
	rv := reflect.ValueOf(v)
	switch rv.Kind() {
	case reflect.Int, reflect.Int8, reflect.Int16, reflect.Int32, reflect.Int64:
		return float64(rv.Int()), true
	case reflect.Uint, reflect.Uint8, reflect.Uint16, reflect.Uint32, reflect.Uint64:
		return float64(rv.Uint()), true
	case reflect.Float32, reflect.Float64:
		return rv.Float(), true
	}
	return 0, false
}

// asList returns v as a list when it is any slice or array other than bytes
func asList(v interface{}) ([]interface{}, bool) {
	switch l := v.(type) {
	case nil, string, []byte:
		return nil, false
	case []interface{}:
		return l, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Slice && rv.Kind() != reflect.Array {
		return nil, false
	}
	out := make([]interface{}, rv.Len())
	for i := range out {
		out[i] = rv.Index(i).Interface()
	}
	return out, true
}

// asRecord returns v as a record when it is a map keyed by strings
func asRecord(v interface{}) (map[string]interface{}, bool) {
	switch m := v.(type) {
	case nil:
		return nil, false
	case map[string]interface{}:
		return m, true
	}
	rv := reflect.ValueOf(v)
	if rv.Kind() != reflect.Map || rv.Type().Key().Kind() != reflect.String {
		return nil, false
	}
	out := make(map[string]interface{}, rv.Len())
	iter := rv.MapRange()
	for iter.Next() {
		out[iter.Key().String()] = iter.Value().Interface()
	}
	return out, true
}
