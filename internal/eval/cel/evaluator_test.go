package cel

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestEvaluator_EvaluateBool(t *testing.T) {
	evaluator := NewEvaluator()
	ctx := context.Background()

	vars := map[string]interface{}{
		"store": map[string]interface{}{"门店名称": "北京01店", "当前库存": -3.0},
		"f":     map[string]interface{}{"current_stock": -3.0, "sold_qty": 120.0},
		"t":     map[string]interface{}{"stock_min": 0.0, "ratio": 0.5},
	}

	tests := []struct {
		name string
		expr string
		want bool
	}{
		{"canonical field", "f.current_stock < t.stock_min", true},
		{"raw column", `store["当前库存"] < 0.0`, true},
		{"string compare", `store["门店名称"].startsWith("北京")`, true},
		{"has macro", "has(f.unknown)", false},
		{"arithmetic", "f.sold_qty * t.ratio > 50.0", true},
		{"missing ctx defaults to empty map", "size(ctx) == 0", true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := evaluator.EvaluateBool(ctx, tt.expr, vars)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestEvaluator_Errors(t *testing.T) {
	evaluator := NewEvaluator()
	ctx := context.Background()

	_, err := evaluator.Evaluate(ctx, "f.x <", nil)
	assert.Error(t, err)

	_, err = evaluator.EvaluateBool(ctx, "1 + 2", nil)
	assert.Error(t, err)

	_, err = evaluator.EvaluateBool(ctx, "f.missing > 1.0", nil)
	assert.Error(t, err, "missing keys are evaluation errors")
}

func TestEvaluator_ValidateExpression(t *testing.T) {
	evaluator := NewEvaluator()

	assert.NoError(t, evaluator.ValidateExpression("f.a > 1.0"))
	assert.NoError(t, evaluator.ValidateExpression("f.flag"))
	assert.Error(t, evaluator.ValidateExpression("'text'"))
	assert.Error(t, evaluator.ValidateExpression("unknown_var > 1"))
}

func TestEvaluator_Cache(t *testing.T) {
	evaluator := NewEvaluator()
	ctx := context.Background()

	_, err := evaluator.Evaluate(ctx, "true", nil)
	require.NoError(t, err)
	_, err = evaluator.Evaluate(ctx, "true", nil)
	require.NoError(t, err)
	assert.Len(t, evaluator.cache, 1)

	evaluator.ClearCache()
	assert.Empty(t, evaluator.cache)
}
