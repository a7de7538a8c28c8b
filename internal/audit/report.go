package audit

import (
	"fmt"
	"strings"
	"time"
)

// ReportTitle is the document title for a report dated now
func ReportTitle(now time.Time) string {
	return "门店运营诊断报告 " + now.Format("2006-01-02")
}

// ReportMarkdown renders an audit result as a markdown report
func ReportMarkdown(r *Result, now time.Time) string {
	var lines []string
	add := func(format string, args ...interface{}) {
		lines = append(lines, fmt.Sprintf(format, args...))
	}

	add("# %s", ReportTitle(now))
	if r.Industry != "" {
		add("> 行业配置：%s", r.Industry)
	}
	add("")

	add("## 📊 总览")
	add("")
	add("- 门店总数：%d", r.TotalStores)
	healthyPct := ""
	if r.TotalStores > 0 {
		healthyPct = fmt.Sprintf(" (%s)", percent(float64(r.Summary.Healthy)/float64(r.TotalStores)))
	}
	add("- 🟢 健康门店：%d%s", r.Summary.Healthy, healthyPct)
	add("- 🔴 严重异常：%d 条", r.Summary.Critical)
	add("- 🟡 警告：%d 条", r.Summary.Warning)
	if r.Summary.Info > 0 {
		add("- 🔵 提示：%d 条", r.Summary.Info)
	}
	add("")

	sections := []struct {
		level   string
		heading string
	}{
		{LevelCritical, "## 🔴 严重异常（需立即处理）"},
		{LevelWarning, "## 🟡 警告（需关注）"},
		{LevelInfo, "## 🔵 提示"},
	}
	for _, sec := range sections {
		alerts := r.AlertsAt(sec.level)
		if len(alerts) == 0 {
			continue
		}
		add(sec.heading)
		add("")
		for _, a := range alerts {
			add("### %s — %s", a.Store, a.Type)
			add("- **指标**：%s", a.Metric)
			add("- **详情**：%s", a.Detail)
			add("- **建议**：%s", a.Advice)
			add("")
		}
	}

	add("## 📋 门店健康排名")
	add("")
	add("| 排名 | 门店 | 健康评分 | 异常数 |")
	add("|------|------|---------|--------|")
	for i, s := range r.StoreScores {
		add("| %d | %s | %s %d | %d |", i+1, s.Store, scoreEmoji(s.Score), s.Score, s.Alerts)
	}
	add("")

	return strings.Join(lines, "\n")
}

func scoreEmoji(score int) string {
	switch {
	case score < 50:
		return "🔴"
	case score < 75:
		return "🟡"
	default:
		return "🟢"
	}
}
