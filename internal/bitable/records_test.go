package bitable

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

func writeFile(t *testing.T, name, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), name)
	require.NoError(t, os.WriteFile(path, []byte(content), 0o644))
	return path
}

func TestLoadRecordsJSON(t *testing.T) {
	arr := writeFile(t, "a.json", `[{"名称":"A","销量":3}]`)
	recs, err := LoadRecords(arr)
	require.NoError(t, err)
	assert.Equal(t, []map[string]interface{}{{"名称": "A", "销量": 3.0}}, recs)

	wrapped := writeFile(t, "b.JSON", `{"records":[{"x":1},{"x":2}]}`)
	recs, err = LoadRecords(wrapped)
	require.NoError(t, err)
	assert.Len(t, recs, 2)

	bad := writeFile(t, "c.json", `{"rows":[]}`)
	_, err = LoadRecords(bad)
	assert.Error(t, err)
}

func TestLoadRecordsCSV(t *testing.T) {
	path := writeFile(t, "s.csv", "\ufeff门店,销量,单价,备注\n北京店,12,3.5,\n上海店,abc,1.2.3,新店\n")
	recs, err := LoadRecords(path)
	require.NoError(t, err)
	require.Len(t, recs, 2)

	assert.Equal(t, map[string]interface{}{"门店": "北京店", "销量": 12, "单价": 3.5, "备注": ""}, recs[0])
	assert.Equal(t, "abc", recs[1]["销量"])
	assert.Equal(t, "1.2.3", recs[1]["单价"])
}

func TestLoadRecordsUnsupported(t *testing.T) {
	path := writeFile(t, "s.xlsx", "")
	_, err := LoadRecords(path)
	assert.ErrorIs(t, err, ErrUnsupportedFormat)
}

func TestExtractText(t *testing.T) {
	tests := []struct {
		name   string
		in     interface{}
		want   string
		wantOK bool
	}{
		{"nil", nil, "", false},
		{"string", "abc", "abc", true},
		{"integral float", 3.0, "3", true},
		{"float", 2.5, "2.5", true},
		{"rich text", []interface{}{map[string]interface{}{"text": "上海"}, map[string]interface{}{"text": "店"}}, "上海店", true},
		{"string list", []interface{}{"a", "b"}, "ab", true},
		{"empty list", []interface{}{}, "", false},
		{"link object", map[string]interface{}{"text": "官网", "link": "https://x"}, "官网", true},
		{"value object", map[string]interface{}{"value": "v"}, "v", true},
		{"bool", true, "true", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, ok := ExtractText(tt.in)
			assert.Equal(t, tt.want, got)
			assert.Equal(t, tt.wantOK, ok)
		})
	}
}

func TestFieldTypeName(t *testing.T) {
	assert.Equal(t, "Text", FieldTypeName(1))
	assert.Equal(t, "AutoNumber", FieldTypeName(1005))
	assert.Equal(t, "Unknown(6)", FieldTypeName(6))
}

func TestUpdates(t *testing.T) {
	updates, err := Updates([]map[string]interface{}{
		{"record_id": "rec1", "fields": map[string]interface{}{"状态": "完成"}},
		{"record_id": "rec2", "状态": "进行中", "进度": 50},
	})
	require.NoError(t, err)
	require.Len(t, updates, 2)
	assert.Equal(t, feishu.Record{RecordID: "rec1", Fields: map[string]interface{}{"状态": "完成"}}, updates[0])
	assert.Equal(t, feishu.Record{RecordID: "rec2", Fields: map[string]interface{}{"状态": "进行中", "进度": 50}}, updates[1])

	_, err = Updates([]map[string]interface{}{{"状态": "完成"}})
	assert.ErrorContains(t, err, "row 0 has no record_id")
}
