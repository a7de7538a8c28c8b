// Package audit checks retail store records against an industry profile and
// produces scored diagnostic reports.
//
// A profile (YAML) names rules by key. Keys with a registered checker run the
// built-in logic with the rule's thresholds; a rule with a condition runs a
// CEL expression instead, with these variables:
//
//	store  the raw record, keyed by column name
//	f      the record keyed by canonical name (actual_sales, current_stock, ...)
//	t      the rule thresholds
//	ctx    run-wide context such as daily_avg_sold
//
// Example profile:
//
//	industry: 服装零售
//	rules:
//	  negative_inventory:
//	    level: critical
//	    name: 负库存
//	  high_return_rate:
//	    level: warning
//	    name: 退货率过高
//	    condition: 'f.return_rate > t.max'
//	    thresholds: {max: 0.15}
//	    metric: '退货率 {{退货率}}'
//	field_mapping:
//	  return_rate: 退货率
//
// Example usage:
//
//	cfg, err := audit.LoadConfig("configs/retail_default.yaml", logger)
//	auditor, err := audit.NewAuditor(cfg, cel.NewEvaluator(), logger)
//	result, err := auditor.Run(ctx, audit.DemoStores(50), nil)
//	md := audit.ReportMarkdown(result, time.Now())
package audit
