package bitable

import (
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strconv"
	"strings"

	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

// ErrUnsupportedFormat is returned by LoadRecords for extensions other than
// .json and .csv
var ErrUnsupportedFormat = errors.New("unsupported record file format")

// LoadRecords reads records from a .json file (an array, or an object with a
// "records" array) or a .csv file with a header row. CSV cells that parse as
// numbers are converted: cells containing "." become floats, others ints.
func LoadRecords(path string) ([]map[string]interface{}, error) {
	ext := strings.ToLower(filepath.Ext(path))
	switch ext {
	case ".json":
		return loadJSON(path)
	case ".csv":
		return loadCSV(path)
	default:
		return nil, fmt.Errorf("%w: %q (want .json or .csv)", ErrUnsupportedFormat, ext)
	}
}

func loadJSON(path string) ([]map[string]interface{}, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read %s: %w", path, err)
	}

	var list []map[string]interface{}
	if err := json.Unmarshal(data, &list); err == nil {
		return list, nil
	}

	var wrapped struct {
		Records []map[string]interface{} `json:"records"`
	}
	if err := json.Unmarshal(data, &wrapped); err != nil || wrapped.Records == nil {
		return nil, fmt.Errorf("invalid JSON in %s: want an array or an object with a records field", path)
	}
	return wrapped.Records, nil
}

func loadCSV(path string) ([]map[string]interface{}, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("failed to open %s: %w", path, err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1

	header, err := r.Read()
	if err == io.EOF {
		return []map[string]interface{}{}, nil
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read csv header: %w", err)
	}
	if len(header) > 0 {
		header[0] = strings.TrimPrefix(header[0], "\ufeff")
	}

	records := []map[string]interface{}{}
	for {
		row, err := r.Read()
		if err == io.EOF {
			return records, nil
		}
		if err != nil {
			return nil, fmt.Errorf("failed to read csv row: %w", err)
		}

		rec := make(map[string]interface{}, len(header))
		for i, name := range header {
			cell := ""
			if i < len(row) {
				cell = row[i]
			}
			rec[name] = convertCell(cell)
		}
		records = append(records, rec)
	}
}

// Updates turns loaded rows into record updates. A row either nests its
// values under "fields" or carries them next to "record_id", as CSV rows do.
func Updates(rows []map[string]interface{}) ([]feishu.Record, error) {
	out := make([]feishu.Record, 0, len(rows))
	for i, row := range rows {
		id, _ := ExtractText(row["record_id"])
		if id == "" {
			return nil, fmt.Errorf("row %d has no record_id", i)
		}
		fields, ok := row["fields"].(map[string]interface{})
		if !ok {
			fields = make(map[string]interface{}, len(row))
			for k, v := range row {
				if k != "record_id" {
					fields[k] = v
				}
			}
		}
		out = append(out, feishu.Record{RecordID: id, Fields: fields})
	}
	return out, nil
}

func convertCell(s string) interface{} {
	if strings.Contains(s, ".") {
		if f, err := strconv.ParseFloat(s, 64); err == nil {
			return f
		}
		return s
	}
	if n, err := strconv.Atoi(s); err == nil {
		return n
	}
	return s
}

// ExtractText reduces a bitable cell to plain text. Rich text segments are
// concatenated; objects yield their "text" or "value" key. The boolean is
// false for nil and for lists with no text.
func ExtractText(v interface{}) (string, bool) {
	switch x := v.(type) {
	case nil:
		return "", false
	case string:
		return x, true
	case float64:
		return strconv.FormatFloat(x, 'f', -1, 64), true
	case int:
		return strconv.Itoa(x), true
	case int64:
		return strconv.FormatInt(x, 10), true
	case json.Number:
		return x.String(), true
	case []interface{}:
		var parts []string
		for _, item := range x {
			switch it := item.(type) {
			case map[string]interface{}:
				s, _ := it["text"].(string)
				parts = append(parts, s)
			case string:
				parts = append(parts, it)
			}
		}
		if len(parts) == 0 {
			return "", false
		}
		return strings.Join(parts, ""), true
	case map[string]interface{}:
		if s, ok := x["text"].(string); ok && s != "" {
			return s, true
		}
		if s, ok := x["value"].(string); ok && s != "" {
			return s, true
		}
		return fmt.Sprint(x), true
	}
	return fmt.Sprint(v), true
}
