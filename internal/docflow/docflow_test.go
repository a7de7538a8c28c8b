package docflow

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

var fixedNow = time.Date(2024, 1, 3, 10, 30, 0, 0, time.UTC)

type fakeSource struct {
	fields  []feishu.Field
	records []feishu.Record
	filter  string
}

func (s *fakeSource) ListFields(context.Context, string, string) ([]feishu.Field, error) {
	return s.fields, nil
}

func (s *fakeSource) ListAllRecords(_ context.Context, _, _ string, opts feishu.ListOptions) ([]feishu.Record, error) {
	s.filter = opts.Filter
	return s.records, nil
}

func taskSource() *fakeSource {
	return &fakeSource{
		fields: []feishu.Field{
			{FieldName: "任务", Type: 1},
			{FieldName: "状态", Type: 3},
			{FieldName: "工时", Type: 2},
			{FieldName: "负责人", Type: 11},
		},
		records: []feishu.Record{
			{Fields: map[string]interface{}{
				"任务":  []interface{}{map[string]interface{}{"text": "写"}, map[string]interface{}{"text": "周报"}},
				"状态":  "进行中",
				"工时":  3.0,
				"负责人": []interface{}{map[string]interface{}{"name": "张三", "id": "ou_1"}},
			}},
			{Fields: map[string]interface{}{
				"任务": "评审",
				"状态": "已完成",
				"工时": 1.5,
			}},
			{Fields: map[string]interface{}{
				"任务":  "上线",
				"状态":  "进行中",
				"工时":  "2",
				"负责人": []interface{}{map[string]interface{}{"id": "ou_2"}, map[string]interface{}{"name": "李四"}},
			}},
		},
	}
}

func TestBuildContext(t *testing.T) {
	src := taskSource()
	ctx, err := BuildContext(context.Background(), src, "app", "tbl", ContextOptions{
		GroupBy: "负责人",
		Filter:  `CurrentValue.[状态]="进行中"`,
		Extra:   map[string]interface{}{"total": 99, "团队": "平台组"},
	})
	require.NoError(t, err)

	assert.Equal(t, `CurrentValue.[状态]="进行中"`, src.filter)
	assert.Equal(t, 99, ctx["total"])
	assert.Equal(t, "平台组", ctx["团队"])
	assert.Equal(t, []string{"任务", "状态", "工时", "负责人"}, ctx["fields"])

	rows := ctx["records"].([]map[string]interface{})
	require.Len(t, rows, 3)
	assert.Equal(t, "写周报", rows[0]["任务"])
	assert.Equal(t, "张三", rows[0]["负责人"])
	assert.Nil(t, rows[1]["负责人"])
	assert.Equal(t, "ou_2, 李四", rows[2]["负责人"])

	groups := ctx["groups"].(map[string]interface{})
	assert.Len(t, groups[Ungrouped], 1)
	assert.Len(t, groups["张三"], 1)

	summary := ctx["summary"].(map[string]interface{})
	assert.Equal(t, 3, summary["total"])
	assert.Equal(t, map[string]interface{}{"进行中": 2, "已完成": 1}, summary["by_状态"])
	assert.Equal(t, 6.5, summary["工时_sum"])
	assert.Equal(t, 2.17, summary["工时_avg"])
	assert.Equal(t, 3.0, summary["工时_max"])
	assert.Equal(t, 1.5, summary["工时_min"])
}

func TestBuildContextUnknownGroupField(t *testing.T) {
	ctx, err := BuildContext(context.Background(), taskSource(), "app", "tbl", ContextOptions{GroupBy: "不存在"})
	require.NoError(t, err)
	assert.NotContains(t, ctx, "groups")
}

func TestDisplayValue(t *testing.T) {
	tests := []struct {
		name string
		in   interface{}
		want interface{}
	}{
		{"nil", nil, nil},
		{"string", "a", "a"},
		{"number", 2.5, 2.5},
		{"bool", true, true},
		{"empty list", []interface{}{}, nil},
		{"rich text", []interface{}{map[string]interface{}{"text": "a"}, map[string]interface{}{"text": "b"}}, "ab"},
		{"people", []interface{}{map[string]interface{}{"name": "甲"}, map[string]interface{}{"name": "乙"}}, "甲, 乙"},
		{"multi select", []interface{}{"x", "y"}, []string{"x", "y"}},
		{"link", map[string]interface{}{"link": "https://a"}, "https://a"},
		{"url with text", map[string]interface{}{"text": "官网", "link": "https://a"}, "官网"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, DisplayValue(tt.in))
		})
	}
}

func content(b feishu.Block, key string) []map[string]interface{} {
	return b[key].(map[string]interface{})["elements"].([]map[string]interface{})
}

func TestMarkdownToBlocks(t *testing.T) {
	md := "# 周报\n\n## 进展\n- 完成 **三项** 任务\n1. 第一\n---\nplain line\n> quoted\n| 名称 | 数量 |\n|---|---|\n| 苹果 | 3 |\n| 梨 |\n"
	blocks := MarkdownToBlocks(md)
	require.Len(t, blocks, 8)

	assert.Equal(t, 3, blocks[0]["block_type"])
	assert.Equal(t, "周报", content(blocks[0], "heading1")[0]["text_run"].(map[string]interface{})["content"])
	assert.Equal(t, 4, blocks[1]["block_type"])

	bullet := content(blocks[2], "bullet")
	require.Len(t, bullet, 3)
	assert.Equal(t, BlockBullet, blocks[2]["block_type"])
	bold := bullet[1]["text_run"].(map[string]interface{})
	assert.Equal(t, "三项", bold["content"])
	assert.Equal(t, map[string]interface{}{"bold": true}, bold["text_element_style"])

	assert.Equal(t, BlockOrdered, blocks[3]["block_type"])
	assert.Equal(t, BlockDivider, blocks[4]["block_type"])
	assert.Equal(t, BlockText, blocks[5]["block_type"])
	assert.Equal(t, "quoted", content(blocks[6], "text")[0]["text_run"].(map[string]interface{})["content"])

	table := content(blocks[7], "text")[0]["text_run"].(map[string]interface{})["content"]
	assert.Equal(t, "名称 | 数量\n-------\n苹果 | 3\n梨 | ", table)
}

func TestMarkdownToBlocksSingleTableLine(t *testing.T) {
	blocks := MarkdownToBlocks("| 孤行 |")
	require.Len(t, blocks, 1)
	assert.Equal(t, "| 孤行 |", content(blocks[0], "text")[0]["text_run"].(map[string]interface{})["content"])
}

func TestMarkdownToBlocksEmpty(t *testing.T) {
	assert.Empty(t, MarkdownToBlocks("\n\n  \n"))
}

type fakeWriter struct {
	calls   [][]feishu.Block
	rejectN int // reject batches larger than this
	badText string
}

func (w *fakeWriter) CreateDocument(_ context.Context, title, _ string) (*feishu.Document, error) {
	if title == "" {
		return nil, errors.New("title required")
	}
	return &feishu.Document{DocumentID: "doc1", Title: title}, nil
}

func (w *fakeWriter) CreateBlocks(_ context.Context, _, _ string, children []feishu.Block, _ int) error {
	if w.rejectN > 0 && len(children) > w.rejectN {
		return errors.New("too many blocks")
	}
	for _, b := range children {
		if tb, ok := b["text"].(map[string]interface{}); ok && w.badText != "" {
			els := tb["elements"].([]map[string]interface{})
			if els[0]["text_run"].(map[string]interface{})["content"] == w.badText {
				return errors.New("invalid block")
			}
		}
	}
	w.calls = append(w.calls, children)
	return nil
}

func TestPublisherBatches(t *testing.T) {
	w := &fakeWriter{}
	p := NewPublisher(w, zap.NewNop(), WithBatchSize(2), WithBatchPause(0), WithDocURL("https://x.feishu.cn/docx"))

	res, err := p.Publish(context.Background(), "标题", "", "a\nb\nc\nd\ne")
	require.NoError(t, err)
	assert.Equal(t, "doc1", res.DocToken)
	assert.Equal(t, "https://x.feishu.cn/docx/doc1", res.URL)
	assert.Equal(t, 5, res.Blocks)
	assert.Zero(t, res.Failed)
	assert.Len(t, w.calls, 3)
}

func TestPublisherRetriesBlockByBlock(t *testing.T) {
	w := &fakeWriter{rejectN: 1, badText: "bad"}
	p := NewPublisher(w, zap.NewNop(), WithBatchSize(3), WithBatchPause(0))

	written, failed, err := p.Append(context.Background(), "doc1", "ok1\nbad\nok2")
	require.NoError(t, err)
	assert.Equal(t, 2, written)
	assert.Equal(t, 1, failed)
	assert.Len(t, w.calls, 2)
}

func TestGenerate(t *testing.T) {
	dir := t.TempDir()
	tmplPath := filepath.Join(dir, "weekly.md")
	require.NoError(t, os.WriteFile(tmplPath, []byte("# {{团队}}周报 {{TODAY}}\n{{#each records}}\n- {{任务}}\n{{/each}}"), 0o644))

	w := &fakeWriter{}
	g := NewGenerator(NewPublisher(w, zap.NewNop(), WithBatchPause(0)), zap.NewNop())
	g.clock = func() time.Time { return fixedNow }

	out := filepath.Join(dir, "out", "weekly.md")
	res, err := g.Generate(context.Background(), tmplPath, map[string]interface{}{
		"团队":      "平台组",
		"records": []map[string]interface{}{{"任务": "评审"}, {"任务": "上线"}},
	}, GenerateOptions{OutputLocal: out, Publish: true})
	require.NoError(t, err)

	assert.Equal(t, "平台组周报 2024-01-03", res.Title)
	assert.Equal(t, "# 平台组周报 2024-01-03\n- 评审\n- 上线", res.Content)
	assert.Equal(t, "doc1", res.DocToken)
	assert.Equal(t, DefaultDocURL+"doc1", res.URL)
	assert.Equal(t, 3, res.Blocks)

	saved, err := os.ReadFile(out)
	require.NoError(t, err)
	assert.Equal(t, res.Content, string(saved))
}

func TestGenerateWithoutPublisher(t *testing.T) {
	g := NewGenerator(nil, zap.NewNop())
	_, err := g.GenerateText(context.Background(), "x", nil, GenerateOptions{Publish: true})
	assert.ErrorIs(t, err, ErrNoPublisher)

	res, err := g.GenerateText(context.Background(), "x", nil, GenerateOptions{Title: "自定义"})
	require.NoError(t, err)
	assert.Equal(t, "自定义", res.Title)
}

func TestDeriveTitle(t *testing.T) {
	assert.Equal(t, "月报", DeriveTitle("## 月报 \nbody", fixedNow))
	assert.Equal(t, "报告_20240103_1030", DeriveTitle("no heading", fixedNow))
	assert.Equal(t, "报告_20240103_1030", DeriveTitle("#\nbody", fixedNow))
}
