package audit

import (
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	"github.com/dustin/go-humanize"

	"github.com/zj00777/feishu-power-skill/internal/eval/template"
)

// Finding is the store-specific part of an alert
type Finding struct {
	Metric string
	Detail string
	Advice string
}

// Checker inspects one store. It returns nil when the store passes.
type Checker func(s Store, ctx map[string]interface{}, r Rule) *Finding

var checkers = map[string]Checker{
	"sell_through_high":       checkSellThroughHigh,
	"sell_through_low":        checkSellThroughLow,
	"target_achievement_low":  checkTargetAchievementLow,
	"negative_inventory":      checkNegativeInventory,
	"zero_sales":              checkZeroSales,
	"inventory_turnover_slow": checkInventoryTurnoverSlow,
	"low_sell_rate":           checkLowSellRate,
}

// RegisterChecker adds or replaces a built-in checker. It is not safe to
// call concurrently with Run.
func RegisterChecker(key string, fn Checker) {
	checkers[key] = fn
}

// CheckerKeys lists the registered checker keys
func CheckerKeys() []string {
	keys := make([]string, 0, len(checkers))
	for k := range checkers {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// Store is a store record read through a field mapping
type Store struct {
	Record  map[string]interface{}
	mapping map[string]string
}

// NewStore wraps a record with a canonical-key to column mapping
func NewStore(record map[string]interface{}, mapping map[string]string) Store {
	return Store{Record: record, mapping: mapping}
}

func (s Store) column(key string) string {
	if name, ok := s.mapping[key]; ok && name != "" {
		return name
	}
	return key
}

// Value returns the raw value of a canonical field
func (s Store) Value(key string) (interface{}, bool) {
	v, ok := s.Record[s.column(key)]
	return v, ok
}

// Num returns a canonical field as a number, or def when missing or not numeric
func (s Store) Num(key string, def float64) float64 {
	v, ok := s.Value(key)
	if !ok {
		return def
	}
	if f, ok := toFloat(v); ok {
		return f
	}
	return def
}

// Text returns a canonical field as display text, or def when missing
func (s Store) Text(key, def string) string {
	v, ok := s.Value(key)
	if !ok || v == nil {
		return def
	}
	return template.Format(v)
}

// Mapped returns the record keyed by canonical names, for expressions
func (s Store) Mapped() map[string]interface{} {
	out := make(map[string]interface{}, len(s.mapping))
	for key := range s.mapping {
		if v, ok := s.Value(key); ok {
			out[key] = v
		}
	}
	return out
}

func checkSellThroughHigh(s Store, ctx map[string]interface{}, r Rule) *Finding {
	initial := s.Num("initial_stock", 0)
	sold := s.Num("sold_qty", 0)
	current := s.Num("current_stock", initial-sold)
	if initial <= 0 {
		return nil
	}

	sellThrough := sold / initial
	dailyAvg := sold
	if v, ok := toFloat(ctx["daily_avg_sold"]); ok {
		dailyAvg = v
	}
	daysLeft := 999.0
	if dailyAvg > 0 {
		daysLeft = current / dailyAvg
	}

	if sellThrough > r.Threshold("sell_through_min", 0.85) && daysLeft < r.Threshold("days_left_max", 3) {
		return &Finding{
			Metric: "售罄率 " + percent(sellThrough),
			Detail: fmt.Sprintf("剩余库存 %s 件，预计 %.1f 天售罄", num(current), daysLeft),
			Advice: "⚠️ 立即补货或从低动销门店调拨",
		}
	}
	return nil
}

func checkSellThroughLow(s Store, _ map[string]interface{}, r Rule) *Finding {
	initial := s.Num("initial_stock", 0)
	sold := s.Num("sold_qty", 0)
	days := s.Num("days_on_shelf", 14)
	if initial <= 0 {
		return nil
	}

	sellThrough := sold / initial
	if sellThrough < r.Threshold("sell_through_max", 0.20) && days >= r.Threshold("days_on_shelf_min", 14) {
		return &Finding{
			Metric: fmt.Sprintf("售罄率 %s（上架 %s 天）", percent(sellThrough), num(days)),
			Detail: fmt.Sprintf("已售 %s / 期初 %s", num(sold), num(initial)),
			Advice: "⚠️ 滞销预警，建议促销清仓或调拨至高动销门店",
		}
	}
	return nil
}

func checkTargetAchievementLow(s Store, _ map[string]interface{}, r Rule) *Finding {
	actual := s.Num("actual_sales", 0)
	target := s.Num("target_sales", 0)
	if target <= 0 {
		return nil
	}

	achievement := actual / target
	if achievement < r.Threshold("achievement_min", 0.60) {
		return &Finding{
			Metric: "达成率 " + percent(achievement),
			Detail: fmt.Sprintf("实际 ¥%s / 目标 ¥%s，差距 ¥%s", money(actual), money(target), money(target-actual)),
			Advice: "🔴 严重落后，排查：客流下降？转化率低？客单价异常？",
		}
	}
	return nil
}

func checkNegativeInventory(s Store, _ map[string]interface{}, _ Rule) *Finding {
	stock := s.Num("current_stock", 0)
	if stock < 0 {
		return &Finding{
			Metric: "库存 " + num(stock),
			Detail: "系统库存为负数，存在数据错误",
			Advice: "🔴 立即盘点核实，检查出入库记录",
		}
	}
	return nil
}

func checkZeroSales(s Store, _ map[string]interface{}, _ Rule) *Finding {
	sales := s.Num("actual_sales", 0)
	open := s.Text("status", "营业") == "营业"
	if sales == 0 && open {
		return &Finding{
			Metric: "当日销售额 ¥0",
			Detail: "门店处于营业状态但无任何销售记录",
			Advice: "🔴 确认：是否停业？POS系统是否故障？数据是否上传？",
		}
	}
	return nil
}

func checkInventoryTurnoverSlow(s Store, _ map[string]interface{}, r Rule) *Finding {
	avgInventory := s.Num("avg_inventory_value", 0)
	dailyCOGS := s.Num("daily_cogs", 0)
	limit := r.Threshold("turnover_days_max", 45)
	if dailyCOGS <= 0 || avgInventory <= 0 {
		return nil
	}

	days := avgInventory / dailyCOGS
	if days > limit {
		return &Finding{
			Metric: fmt.Sprintf("周转天数 %.0f 天", days),
			Detail: fmt.Sprintf("平均库存 ¥%s，日均成本 ¥%s", money(avgInventory), money(dailyCOGS)),
			Advice: fmt.Sprintf("⚠️ 超过 %s 天阈值，需清理慢动销商品释放资金", num(limit)),
		}
	}
	return nil
}

func checkLowSellRate(s Store, _ map[string]interface{}, r Rule) *Finding {
	active := s.Num("active_sku", 0)
	total := s.Num("total_sku", 0)
	if total <= 0 {
		return nil
	}

	rate := active / total
	if rate < r.Threshold("sell_rate_min", 0.60) {
		sleeping := num(total - active)
		return &Finding{
			Metric: "动销率 " + percent(rate),
			Detail: fmt.Sprintf("%s 个 SKU 无销售（共 %s 个）", sleeping, num(total)),
			Advice: fmt.Sprintf("⚠️ %s 个 SKU 在睡觉，检查品类结构和陈列", sleeping),
		}
	}
	return nil
}

func toFloat(v interface{}) (float64, bool) {
	switch x := v.(type) {
	case float64:
		return x, true
	case float32:
		return float64(x), true
	case int:
		return float64(x), true
	case int64:
		return float64(x), true
	case int32:
		return float64(x), true
	case string:
		f, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		return f, err == nil
	}
	return 0, false
}

// percent formats a ratio as a whole percentage, e.g. 0.256 → "26%"
func percent(f float64) string {
	return fmt.Sprintf("%.0f%%", f*100)
}

// num prints integral values without a decimal point
func num(f float64) string {
	if f == math.Trunc(f) && !math.IsInf(f, 0) {
		return strconv.FormatFloat(f, 'f', 0, 64)
	}
	return strconv.FormatFloat(f, 'f', -1, 64)
}

// money rounds to a whole amount with thousands separators, e.g. 12345.6 → "12,346"
func money(f float64) string {
	return humanize.Comma(int64(math.Round(f)))
}
