package rule

import (
	"testing"

	"github.com/stretchr/testify/require"
)

func TestJsEvaluator(t *testing.T) {
	data := map[string]any{
		"amount": 120.0,
		"status": "approved",
		"order":  map[string]any{"region": "eu-west"},
		"a-b":    1.0,
	}
	tests := []struct {
		name       string
		expression string
		want       bool
	}{
		{"empty is true", "", true},
		{"top level variable", "amount > 100", true},
		{"dollar binding", `$.status == "approved"`, true},
		{"quoted key", `$["a-b"] == 1`, true},
		{"nested", `order.region == "eu-west"`, true},
		{"contains", `String(order.region).indexOf("west") >= 0`, true},
		{"false comparison", "amount < 100", false},
		{"missing variable", "missing == 1", false},
		{"missing nested", "$.missing.deep == 1", false},
		{"and binds tighter", `amount < 100 && status == "x" || status == "approved"`, true},
	}
	e := NewJsEvaluator()
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := e.Evaluate(tt.expression, data)
			require.NoError(t, err)
			require.Equal(t, tt.want, got)
		})
	}
}

func TestJsEvaluatorSyntaxError(t *testing.T) {
	_, err := NewJsEvaluator().Evaluate("amount >", map[string]any{"amount": 1})
	require.Error(t, err)
}

func TestJsEvaluatorCachesPrograms(t *testing.T) {
	e := NewJsEvaluator()
	for i := 0; i < 3; i++ {
		ok, err := e.Evaluate("x == 1", map[string]any{"x": 1})
		require.NoError(t, err)
		require.True(t, ok)
	}
	require.Equal(t, 1, e.programs.ItemCount())
}

func TestJsEvaluatorKeepsBuiltins(t *testing.T) {
	data := map[string]any{
		"String": "shadow",
		"Object": 1.0,
		"region": "eu-west",
	}
	e := NewJsEvaluator()
	for expression, want := range map[string]bool{
		`String(region).indexOf("west") >= 0`: true,
		`typeof Object.keys == "function"`:    true,
		`$.String == "shadow"`:                true,
		`$.Object == 1`:                       true,
	} {
		got, err := e.Evaluate(expression, data)
		require.NoError(t, err, expression)
		require.Equal(t, want, got, expression)
	}
}
