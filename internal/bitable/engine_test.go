package bitable

import (
	"context"
	"encoding/json"
	"errors"
	"os"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

type fakeStore struct {
	mu      sync.Mutex
	fields  map[string][]feishu.Field
	records map[string][]feishu.Record
	created [][]map[string]interface{}
	updated [][]feishu.Record
	failAt  map[int]bool // batch call number → fail
	calls   int
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		fields:  map[string][]feishu.Field{},
		records: map[string][]feishu.Record{},
		failAt:  map[int]bool{},
	}
}

func (s *fakeStore) ListFields(_ context.Context, _, table string) ([]feishu.Field, error) {
	return s.fields[table], nil
}

func (s *fakeStore) ListAllRecords(_ context.Context, _, table string, _ feishu.ListOptions) ([]feishu.Record, error) {
	if table == "missing" {
		return nil, errors.New("table not found")
	}
	return s.records[table], nil
}

func (s *fakeStore) BatchCreateRecords(_ context.Context, _, _ string, records []map[string]interface{}) ([]feishu.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt[s.calls] {
		return nil, errors.New("rate limited")
	}
	s.created = append(s.created, records)
	return nil, nil
}

func (s *fakeStore) BatchUpdateRecords(_ context.Context, _, _ string, records []feishu.Record) ([]feishu.Record, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.calls++
	if s.failAt[s.calls] {
		return nil, errors.New("rate limited")
	}
	s.updated = append(s.updated, records)
	return records, nil
}

func makeRecords(n int) []map[string]interface{} {
	out := make([]map[string]interface{}, n)
	for i := range out {
		out[i] = map[string]interface{}{"序号": i}
	}
	return out
}

func TestBatchCreateChunks(t *testing.T) {
	store := newFakeStore()
	store.failAt[2] = true
	e := NewEngine(store, zap.NewNop(), WithChunkPause(0))

	res, err := e.BatchCreate(context.Background(), "app", "tbl", makeRecords(1201), false)
	require.NoError(t, err)

	assert.Equal(t, 1201, res.Total)
	assert.Equal(t, 701, res.Done)
	require.Len(t, res.Errors, 1)
	assert.Equal(t, ChunkError{Offset: 500, Count: 500, Error: "rate limited"}, res.Errors[0])
	require.Len(t, store.created, 2)
	assert.Len(t, store.created[0], 500)
	assert.Len(t, store.created[1], 201)
}

func TestBatchCreateDryRunAndEmpty(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, zap.NewNop())

	res, err := e.BatchCreate(context.Background(), "app", "tbl", makeRecords(10), true)
	require.NoError(t, err)
	assert.True(t, res.DryRun)
	assert.Equal(t, 10, res.Total)
	assert.Len(t, res.Sample, 3)
	assert.Zero(t, store.calls)

	res, err = e.BatchCreate(context.Background(), "app", "tbl", nil, false)
	require.NoError(t, err)
	assert.Equal(t, "no records to create", res.Message)
	assert.Zero(t, res.Done)
}

func TestBatchUpdateRequiresRecordID(t *testing.T) {
	e := NewEngine(newFakeStore(), zap.NewNop())
	_, err := e.BatchUpdate(context.Background(), "app", "tbl", []feishu.Record{{Fields: map[string]interface{}{"a": 1}}}, false)
	assert.Error(t, err)
}

func TestBatchUpdatePaced(t *testing.T) {
	store := newFakeStore()
	e := NewEngine(store, zap.NewNop(), WithChunkSize(2), WithChunkPause(20*time.Millisecond))

	updates := []feishu.Record{
		{RecordID: "r1", Fields: map[string]interface{}{"x": 1}},
		{RecordID: "r2", Fields: map[string]interface{}{"x": 2}},
		{RecordID: "r3", Fields: map[string]interface{}{"x": 3}},
	}
	start := time.Now()
	res, err := e.BatchUpdate(context.Background(), "app", "tbl", updates, false)
	require.NoError(t, err)

	assert.Equal(t, 3, res.Done)
	assert.Len(t, store.updated, 2)
	assert.GreaterOrEqual(t, time.Since(start), 15*time.Millisecond)
}

func TestBatchCreateCancelled(t *testing.T) {
	e := NewEngine(newFakeStore(), zap.NewNop(), WithChunkSize(1), WithChunkPause(time.Hour))
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := e.BatchCreate(ctx, "app", "tbl", makeRecords(2), false)
	assert.Error(t, err)
}

func TestJoin(t *testing.T) {
	store := newFakeStore()
	store.records["stores"] = []feishu.Record{
		{RecordID: "l1", Fields: map[string]interface{}{"门店": "北京店", "区域": "华北", "备注": "left"}},
		{RecordID: "l2", Fields: map[string]interface{}{"门店": []interface{}{map[string]interface{}{"text": "上海店"}}, "区域": "华东"}},
		{RecordID: "l3", Fields: map[string]interface{}{"门店": "广州店"}},
		{RecordID: "l4", Fields: map[string]interface{}{"区域": "无门店"}},
	}
	store.records["sales"] = []feishu.Record{
		{RecordID: "r1", Fields: map[string]interface{}{"门店": "北京店", "销售额": 100.0, "备注": "right"}},
		{RecordID: "r2", Fields: map[string]interface{}{"门店": "北京店", "销售额": 50.0}},
		{RecordID: "r3", Fields: map[string]interface{}{"门店": "上海店", "销售额": 80.0}},
	}
	e := NewEngine(store, zap.NewNop())

	rows, err := e.Join(context.Background(), "app", "stores", "sales", "门店", nil)
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, "right", rows[0]["备注"])
	assert.Equal(t, "华北", rows[0]["区域"])
	assert.Equal(t, 50.0, rows[1]["销售额"])
	assert.Equal(t, "华东", rows[2]["区域"])

	rows, err = e.Join(context.Background(), "app", "stores", "sales", "门店", []string{"区域", "销售额"})
	require.NoError(t, err)
	require.Len(t, rows, 3)
	assert.Equal(t, map[string]interface{}{"区域": "华北", "销售额": 100.0}, rows[0])

	_, err = e.Join(context.Background(), "app", "stores", "missing", "门店", nil)
	assert.Error(t, err)
}

func TestSnapshot(t *testing.T) {
	store := newFakeStore()
	store.fields["tbl1"] = []feishu.Field{{FieldName: "名称", Type: 1}, {FieldName: "销量", Type: 2}}
	store.records["tbl1"] = []feishu.Record{{RecordID: "rec1", Fields: map[string]interface{}{"名称": "A", "销量": 3.0}}}
	e := NewEngine(store, zap.NewNop())

	dir := filepath.Join(t.TempDir(), "snapshots")
	now := time.Date(2024, 1, 3, 10, 30, 5, 0, time.UTC)
	path, err := e.Snapshot(context.Background(), "app", "tbl1", dir, now)
	require.NoError(t, err)
	assert.Equal(t, filepath.Join(dir, "tbl1_20240103_103005.json"), path)

	data, err := os.ReadFile(path)
	require.NoError(t, err)
	var snap Snapshot
	require.NoError(t, json.Unmarshal(data, &snap))
	assert.Equal(t, "app", snap.AppToken)
	assert.Equal(t, "2024-01-03T10:30:05", snap.SnapshotTime)
	assert.Equal(t, 2, snap.FieldCount)
	assert.Equal(t, 1, snap.RecordCount)
	assert.Equal(t, SnapshotField{Name: "销量", Type: 2}, snap.Fields[1])
	assert.Equal(t, "rec1", snap.Records[0].RecordID)
}

func TestStats(t *testing.T) {
	store := newFakeStore()
	store.fields["tbl"] = []feishu.Field{
		{FieldName: "销量", Type: 2},
		{FieldName: "状态", Type: 3},
		{FieldName: "标签", Type: 4},
		{FieldName: "备注", Type: 1},
		{FieldName: "奇怪", Type: 99},
	}
	store.records["tbl"] = []feishu.Record{
		{Fields: map[string]interface{}{"销量": 10.0, "状态": "进行中", "标签": []interface{}{"a", "b"}}},
		{Fields: map[string]interface{}{"销量": 2.5, "状态": "已完成", "标签": []interface{}{"b"}, "备注": ""}},
		{Fields: map[string]interface{}{"销量": 1.0 / 3, "状态": "进行中", "标签": []interface{}{}}},
		{Fields: map[string]interface{}{"状态": "已完成", "备注": "x"}},
	}
	e := NewEngine(store, zap.NewNop())

	st, err := e.Stats(context.Background(), "app", "tbl")
	require.NoError(t, err)
	assert.Equal(t, 4, st.TotalRecords)
	assert.Equal(t, 5, st.TotalFields)

	num := st.Fields[0]
	assert.Equal(t, "Number", num.TypeName)
	assert.Equal(t, "3/4", num.FillRate)
	assert.InDelta(t, 1.0/3, *num.Min, 1e-9)
	assert.Equal(t, 10.0, *num.Max)
	assert.Equal(t, 4.28, *num.Avg)
	assert.Equal(t, 12.83, *num.Sum)

	sel := st.Fields[1]
	assert.Equal(t, []OptionCount{{Value: "进行中", Count: 2}, {Value: "已完成", Count: 2}}, sel.Distribution)

	multi := st.Fields[2]
	assert.Equal(t, "2/4", multi.FillRate)
	assert.Equal(t, []OptionCount{{Value: "b", Count: 2}, {Value: "a", Count: 1}}, multi.Distribution)

	assert.Equal(t, "1/4", st.Fields[3].FillRate)
	assert.Nil(t, st.Fields[3].Distribution)
	assert.Equal(t, "Unknown(99)", st.Fields[4].TypeName)
}

func TestDistributionTopTen(t *testing.T) {
	var values []interface{}
	for i := 0; i < 12; i++ {
		values = append(values, string(rune('a'+i)))
	}
	values = append(values, "l")
	got := distribution(values)
	require.Len(t, got, maxDistribution)
	assert.Equal(t, OptionCount{Value: "l", Count: 2}, got[0])
	assert.Equal(t, "a", got[1].Value)
}
