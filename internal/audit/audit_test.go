package audit

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/zj00777/feishu-power-skill/internal/eval/cel"
	"github.com/zj00777/feishu-power-skill/internal/feishu"
)

var fixedNow = time.Date(2024, 1, 3, 10, 30, 0, 0, time.UTC)

func testStore(overrides map[string]interface{}) map[string]interface{} {
	s := map[string]interface{}{
		"门店名称": "测试店", "期初库存": 100, "销售数量": 50,
		"当前库存": 50, "上架天数": 14, "实际销售额": 10000,
		"目标销售额": 20000, "总SKU数": 100, "有销SKU数": 70,
		"平均库存金额": 50000, "日均销售成本": 1000, "营业状态": "营业",
	}
	for k, v := range overrides {
		s[k] = v
	}
	return s
}

func newAuditor(t *testing.T, cfg *Config) *Auditor {
	t.Helper()
	a, err := NewAuditor(cfg, cel.NewEvaluator(), zap.NewNop())
	require.NoError(t, err)
	a.clock = func() time.Time { return fixedNow }
	return a
}

func runChecker(key string, record map[string]interface{}, ctx map[string]interface{}) *Finding {
	r, _ := DefaultConfig().Rules.Get(key)
	return checkers[key](NewStore(record, DefaultFieldMapping()), ctx, *r)
}

func TestCheckers(t *testing.T) {
	tests := []struct {
		name    string
		key     string
		record  map[string]interface{}
		ctx     map[string]interface{}
		trigger bool
	}{
		{"sell through high", "sell_through_high", testStore(map[string]interface{}{"期初库存": 100, "销售数量": 95, "当前库存": 5}), map[string]interface{}{"daily_avg_sold": 10}, true},
		{"sell through normal", "sell_through_high", testStore(nil), map[string]interface{}{"daily_avg_sold": 5}, false},
		{"sell through low", "sell_through_low", testStore(map[string]interface{}{"销售数量": 10, "上架天数": 20}), nil, true},
		{"sell through low short shelf", "sell_through_low", testStore(map[string]interface{}{"销售数量": 10, "上架天数": 5}), nil, false},
		{"achievement low", "target_achievement_low", testStore(map[string]interface{}{"实际销售额": 5000}), nil, true},
		{"achievement ok", "target_achievement_low", testStore(map[string]interface{}{"实际销售额": 15000}), nil, false},
		{"no target", "target_achievement_low", testStore(map[string]interface{}{"目标销售额": 0}), nil, false},
		{"negative inventory", "negative_inventory", testStore(map[string]interface{}{"当前库存": -10}), nil, true},
		{"positive inventory", "negative_inventory", testStore(nil), nil, false},
		{"zero sales", "zero_sales", testStore(map[string]interface{}{"实际销售额": 0}), nil, true},
		{"zero sales closed", "zero_sales", testStore(map[string]interface{}{"实际销售额": 0, "营业状态": "停业"}), nil, false},
		{"turnover slow", "inventory_turnover_slow", testStore(map[string]interface{}{"平均库存金额": 100000}), nil, true},
		{"turnover ok", "inventory_turnover_slow", testStore(map[string]interface{}{"平均库存金额": 30000}), nil, false},
		{"sell rate low", "low_sell_rate", testStore(map[string]interface{}{"有销SKU数": 40}), nil, true},
		{"sell rate ok", "low_sell_rate", testStore(map[string]interface{}{"有销SKU数": 80}), nil, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := runChecker(tt.key, tt.record, tt.ctx)
			if tt.trigger {
				assert.NotNil(t, got)
			} else {
				assert.Nil(t, got)
			}
		})
	}
}

func TestCheckerTexts(t *testing.T) {
	f := runChecker("target_achievement_low", testStore(map[string]interface{}{"实际销售额": 5000}), nil)
	require.NotNil(t, f)
	assert.Equal(t, "达成率 25%", f.Metric)
	assert.Equal(t, "实际 ¥5,000 / 目标 ¥20,000，差距 ¥15,000", f.Detail)

	f = runChecker("sell_through_high", testStore(map[string]interface{}{"期初库存": 100, "销售数量": 95, "当前库存": 5}), map[string]interface{}{"daily_avg_sold": 10})
	require.NotNil(t, f)
	assert.Equal(t, "售罄率 95%", f.Metric)
	assert.Equal(t, "剩余库存 5 件，预计 0.5 天售罄", f.Detail)

	f = runChecker("low_sell_rate", testStore(map[string]interface{}{"有销SKU数": 40}), nil)
	require.NotNil(t, f)
	assert.Equal(t, "60 个 SKU 无销售（共 100 个）", f.Detail)

	f = runChecker("inventory_turnover_slow", testStore(map[string]interface{}{"平均库存金额": 100000}), nil)
	require.NotNil(t, f)
	assert.Equal(t, "周转天数 100 天", f.Metric)
	assert.Contains(t, f.Advice, "超过 45 天阈值")
}

func TestMoney(t *testing.T) {
	assert.Equal(t, "0", money(0))
	assert.Equal(t, "999", money(999))
	assert.Equal(t, "1,000", money(999.6))
	assert.Equal(t, "1,234,567", money(1234567))
	assert.Equal(t, "-12,000", money(-12000))
}

func TestRunHealthyStore(t *testing.T) {
	a := newAuditor(t, nil)
	res, err := a.Run(context.Background(), []map[string]interface{}{testStore(map[string]interface{}{
		"销售数量": 60, "当前库存": 40, "实际销售额": 15000, "有销SKU数": 80, "平均库存金额": 30000,
	})}, nil)
	require.NoError(t, err)

	assert.Equal(t, 1, res.Summary.Healthy)
	assert.Empty(t, res.Alerts)
	assert.Equal(t, []StoreScore{{Store: "测试店", Score: 100}}, res.StoreScores)
	assert.Equal(t, fixedNow, res.AuditTime)
}

func TestRunMultipleAlertsAndScore(t *testing.T) {
	a := newAuditor(t, nil)
	bad := testStore(map[string]interface{}{
		"门店名称": "问题店", "销售数量": 5, "当前库存": -3, "上架天数": 20,
		"实际销售额": 0, "有销SKU数": 30, "平均库存金额": 100000, "日均销售成本": 500,
	})
	ok := testStore(map[string]interface{}{"门店名称": "一般店", "当前库存": -5})

	res, err := a.Run(context.Background(), []map[string]interface{}{ok, bad}, nil)
	require.NoError(t, err)

	assert.Equal(t, 0, res.Summary.Healthy)
	assert.Greater(t, len(res.Alerts), 3)

	// 一般店: two criticals and one warning; 问题店 floors at 0
	require.Len(t, res.StoreScores, 2)
	assert.Equal(t, "问题店", res.StoreScores[0].Store)
	assert.Equal(t, 0, res.StoreScores[0].Score)
	assert.Equal(t, "一般店", res.StoreScores[1].Store)
	assert.Equal(t, 40, res.StoreScores[1].Score)

	assert.Equal(t, "一般店", res.Alerts[0].Store)
	assert.Equal(t, "target_achievement_low", res.Alerts[0].Rule)
	assert.Equal(t, "目标达成率不足", res.Alerts[0].Type)
}

func TestRunDisabledRule(t *testing.T) {
	cfg := DefaultConfig()
	r, _ := cfg.Rules.Get("negative_inventory")
	off := false
	r.Enabled = &off

	res, err := newAuditor(t, cfg).Run(context.Background(), []map[string]interface{}{testStore(map[string]interface{}{"当前库存": -10})}, nil)
	require.NoError(t, err)
	for _, al := range res.Alerts {
		assert.NotEqual(t, "负库存", al.Type)
	}
}

func TestRunUnknownLevelAndFallbackName(t *testing.T) {
	cfg := &Config{
		Industry: "测试",
		Rules: Rules{
			{Key: "negative_inventory", Rule: Rule{Level: "notice"}},
			{Key: "no_such_checker", Rule: Rule{Level: LevelCritical}},
		},
		FieldMapping: DefaultFieldMapping(),
		Scoring:      DefaultScoring(),
	}
	res, err := newAuditor(t, cfg).Run(context.Background(), []map[string]interface{}{
		{"name": "别名店", "当前库存": -1},
	}, nil)
	require.NoError(t, err)

	require.Len(t, res.Alerts, 1)
	assert.Equal(t, "别名店", res.Alerts[0].Store)
	assert.Equal(t, "negative_inventory", res.Alerts[0].Type)
	assert.Equal(t, 90, res.StoreScores[0].Score)
}

func TestConditionRule(t *testing.T) {
	cfg := DefaultConfig()
	cfg.FieldMapping["return_rate"] = "退货率"
	cfg.Rules = append(cfg.Rules, NamedRule{Key: "high_return_rate", Rule: Rule{
		Level:      LevelInfo,
		Name:       "退货率过高",
		Condition:  "f.return_rate > t.max && ctx.season == 'peak'",
		Thresholds: map[string]float64{"max": 0.15},
		Metric:     "退货率 {{退货率}}",
		Detail:     "{{门店名称}} 超过阈值 {{t.max}}",
		Advice:     "{{#if 区域}}联系{{区域}}区域经理{{/if}}",
	}})

	a := newAuditor(t, cfg)
	stores := []map[string]interface{}{
		testStore(map[string]interface{}{"门店名称": "甲店", "退货率": 0.3, "区域": "华东", "销售数量": 60, "实际销售额": 15000, "有销SKU数": 80, "平均库存金额": 30000}),
		testStore(map[string]interface{}{"门店名称": "乙店", "退货率": 0.05, "销售数量": 60, "实际销售额": 15000, "有销SKU数": 80, "平均库存金额": 30000}),
		testStore(map[string]interface{}{"门店名称": "丙店", "销售数量": 60, "实际销售额": 15000, "有销SKU数": 80, "平均库存金额": 30000}),
	}

	res, err := a.Run(context.Background(), stores, map[string]interface{}{"season": "peak"})
	require.NoError(t, err)

	require.Len(t, res.Alerts, 1)
	al := res.Alerts[0]
	assert.Equal(t, "甲店", al.Store)
	assert.Equal(t, LevelInfo, al.Level)
	assert.Equal(t, "退货率 0.30", al.Metric)
	assert.Equal(t, "甲店 超过阈值 0.15", al.Detail)
	assert.Equal(t, "联系华东区域经理", al.Advice)
	assert.Equal(t, 1, res.Summary.Info)
	assert.Equal(t, 2, res.Summary.Healthy)
	assert.Equal(t, 97, res.StoreScores[0].Score)
}

func TestInvalidCondition(t *testing.T) {
	cfg := DefaultConfig()
	cfg.Rules = append(cfg.Rules, NamedRule{Key: "broken", Rule: Rule{Condition: "f.x >"}})
	_, err := NewAuditor(cfg, cel.NewEvaluator(), zap.NewNop())
	assert.Error(t, err)
}

func TestDemoStores(t *testing.T) {
	stores := DemoStores(50)
	require.Len(t, stores, 50)
	assert.Equal(t, stores, DemoStores(50))
	assert.Equal(t, "上海01店", stores[0]["门店名称"])
	assert.Equal(t, "广州02店", stores[1]["门店名称"])
	assert.Equal(t, "杭州11店", stores[10]["门店名称"])

	res, err := newAuditor(t, nil).Run(context.Background(), stores, nil)
	require.NoError(t, err)

	count := map[string]map[string]bool{}
	for _, al := range res.Alerts {
		if count[al.Rule] == nil {
			count[al.Rule] = map[string]bool{}
		}
		count[al.Rule][al.Store] = true
	}
	assert.Len(t, count["zero_sales"], 3)
	assert.Len(t, count["negative_inventory"], 3)
	assert.Len(t, count["sell_through_high"], 5)
	assert.GreaterOrEqual(t, len(count["target_achievement_low"]), 8)
	assert.GreaterOrEqual(t, len(count["low_sell_rate"]), 5)
}

func TestReportMarkdown(t *testing.T) {
	res, err := newAuditor(t, nil).Run(context.Background(), DemoStores(16), nil)
	require.NoError(t, err)

	md := ReportMarkdown(res, fixedNow)
	assert.True(t, strings.HasPrefix(md, "# 门店运营诊断报告 2024-01-03\n> 行业配置：通用零售\n"))
	assert.Contains(t, md, "- 门店总数：16")
	assert.Contains(t, md, "## 🔴 严重异常（需立即处理）")
	assert.Contains(t, md, "| 排名 | 门店 | 健康评分 | 异常数 |")
	assert.Contains(t, md, "### 杭州11店 — 零销售")
}

func TestReportMarkdownEmpty(t *testing.T) {
	res, err := newAuditor(t, nil).Run(context.Background(), nil, nil)
	require.NoError(t, err)

	md := ReportMarkdown(res, fixedNow)
	assert.Contains(t, md, "- 门店总数：0\n- 🟢 健康门店：0\n")
	assert.NotContains(t, md, "严重异常（")
}

func TestLoadConfig(t *testing.T) {
	dir := t.TempDir()
	path := filepath.Join(dir, "fmcg.yaml")
	require.NoError(t, os.WriteFile(path, []byte(`industry: 快消零售
rules:
  zero_sales:
    level: critical
    name: 零销售
  inventory_turnover_slow:
    level: warning
    name: 库存周转过慢
    thresholds:
      turnover_days_max: 21
  negative_inventory:
    enabled: false
`), 0o644))

	cfg, err := LoadConfig(path, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "快消零售", cfg.Industry)
	require.Len(t, cfg.Rules, 3)
	assert.Equal(t, []string{"zero_sales", "inventory_turnover_slow", "negative_inventory"},
		[]string{cfg.Rules[0].Key, cfg.Rules[1].Key, cfg.Rules[2].Key})
	assert.Equal(t, 21.0, cfg.Rules[1].Threshold("turnover_days_max", 45))
	assert.False(t, cfg.Rules[2].IsEnabled())
	assert.Equal(t, 2, cfg.EnabledRules())
	assert.Equal(t, "门店名称", cfg.Field("store_name"))
	assert.Equal(t, 25, cfg.Penalty(LevelCritical))
	assert.Equal(t, 10, cfg.Penalty("other"))

	missing, err := LoadConfig(filepath.Join(dir, "nope.yaml"), zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, "通用零售", missing.Industry)

	bad := filepath.Join(dir, "bad.yaml")
	require.NoError(t, os.WriteFile(bad, []byte("rules: [1, 2]"), 0o644))
	_, err = LoadConfig(bad, zap.NewNop())
	assert.Error(t, err)

	infos, err := ListConfigs(dir, zap.NewNop())
	assert.Error(t, err, "bad.yaml fails the listing")
	assert.Nil(t, infos)

	require.NoError(t, os.Remove(bad))
	infos, err = ListConfigs(dir, zap.NewNop())
	require.NoError(t, err)
	assert.Equal(t, []ConfigInfo{{File: "fmcg.yaml", Industry: "快消零售", EnabledRules: 2}}, infos)
}

type fakeLister struct{ records []feishu.Record }

func (f fakeLister) ListAllRecords(context.Context, string, string, feishu.ListOptions) ([]feishu.Record, error) {
	return f.records, nil
}

type fakeJoiner struct {
	rows []map[string]interface{}
	on   string
}

func (f *fakeJoiner) Join(_ context.Context, _, _, _, on string, _ []string) ([]map[string]interface{}, error) {
	f.on = on
	return f.rows, nil
}

func TestFetchStores(t *testing.T) {
	lister := fakeLister{records: []feishu.Record{{Fields: map[string]interface{}{"门店名称": "甲店"}}, {}}}
	cfg := DefaultConfig()

	stores, err := FetchStores(context.Background(), lister, nil, cfg, TableSource{App: "app", SalesTable: "sales"})
	require.NoError(t, err)
	require.Len(t, stores, 2)
	assert.NotNil(t, stores[1])

	joiner := &fakeJoiner{}
	stores, err = FetchStores(context.Background(), lister, joiner, cfg, TableSource{App: "app", SalesTable: "sales", TargetTable: "targets"})
	require.NoError(t, err)
	assert.Len(t, stores, 2, "empty join keeps sales rows")
	assert.Equal(t, "门店名称", joiner.on)

	joiner.rows = []map[string]interface{}{{"门店名称": "甲店", "目标销售额": 100}}
	stores, err = FetchStores(context.Background(), lister, joiner, cfg, TableSource{App: "app", SalesTable: "sales", TargetTable: "targets"})
	require.NoError(t, err)
	assert.Equal(t, joiner.rows, stores)
}
