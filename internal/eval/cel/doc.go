// Package cel provides a CEL (Common Expression Language) evaluator for
// custom audit rules.
//
// CEL is a non-Turing complete expression language that provides fast, safe evaluation
// of conditions over store records.
//
// Expressions see four map variables:
//   - store - the raw store record, keyed by source column name
//   - f - the same record keyed by canonical field name (via field mapping)
//   - t - the rule's thresholds
//   - ctx - extra audit context
//
// Example usage:
//
//	evaluator := cel.NewEvaluator()
//
//	vars := map[string]interface{}{
//	    "f": map[string]interface{}{"current_stock": 12.0, "sold_qty": 300.0},
//	    "t": map[string]interface{}{"stock_min": 20},
//	}
//
//	matched, err := evaluator.EvaluateBool(ctx, "f.current_stock < t.stock_min", vars)
//	if err != nil {
//	    log.Fatal(err)
//	}
//	// matched == true
//
// Mixed int/double comparisons are allowed, so YAML integer thresholds can
// be compared with JSON-decoded numbers.
package cel
