package dsl

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRule(t *testing.T) {
	tests := []struct {
		name   string
		expr   string
		value  float64
		raw    any
		record map[string]any
		want   bool
	}{
		{name: "non-negative", expr: "value >= 0", value: 3, want: true},
		{name: "negative fails", expr: "value >= 0", value: -1, want: false},
		{name: "range", expr: "value >= 0.0 && value <= 1.0", value: 0.8, want: true},
		{name: "raw membership", expr: `raw in ["male", "female"]`, raw: "other", want: false},
		{name: "cross column", expr: `!has(record.runs_count) || record.runs_count > 0`, record: map[string]any{"runs_count": 5}, want: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rule, err := Compile(tt.expr)
			require.NoError(t, err)
			got, err := rule.Evaluate(tt.value, tt.raw, tt.record)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestCompile_Errors(t *testing.T) {
	_, err := Compile("value >=")
	assert.Error(t, err)

	_, err = Compile("value + 1.0")
	assert.Error(t, err)
}
