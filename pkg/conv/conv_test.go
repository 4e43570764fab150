package conv

import (
	"encoding/json"
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestParseFloat64(t *testing.T) {
	tests := []struct {
		in   any
		want float64
		ok   bool
	}{
		{in: 1.5, want: 1.5, ok: true},
		{in: 5, want: 5, ok: true},
		{in: " 12.0 ", want: 12, ok: true},
		{in: json.Number("0.25"), want: 0.25, ok: true},
		{in: true, want: 1, ok: true},
		{in: "medium", ok: false},
		{in: nil, ok: false},
		{in: []int{1}, ok: false},
	}
	for _, tt := range tests {
		got, ok := ParseFloat64(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		if tt.ok {
			assert.Equal(t, tt.want, got, "%v", tt.in)
		}
	}

	_, ok := ToFloat64("1")
	assert.False(t, ok)
}

func TestToBool(t *testing.T) {
	tests := []struct {
		in   any
		want bool
		ok   bool
	}{
		{in: true, want: true, ok: true},
		{in: "YES", want: true, ok: true},
		{in: "0", want: false, ok: true},
		{in: 2, want: true, ok: true},
		{in: 0.0, want: false, ok: true},
		{in: "maybe", ok: false},
		{in: nil, ok: false},
	}
	for _, tt := range tests {
		got, ok := ToBool(tt.in)
		assert.Equal(t, tt.ok, ok, "%v", tt.in)
		assert.Equal(t, tt.want, got, "%v", tt.in)
	}
}

func TestToString(t *testing.T) {
	s, ok := ToString(3.0)
	assert.True(t, ok)
	assert.Equal(t, "3", s)

	s, ok = ToString(false)
	assert.True(t, ok)
	assert.Equal(t, "false", s)

	_, ok = ToString(map[string]any{})
	assert.False(t, ok)
}

func TestConfigGet(t *testing.T) {
	m := map[string]any{
		"name":   "stress",
		"k":      3,
		"lo":     0,
		"hi":     3.5,
		"labels": []any{"low", "high", 2.0},
	}
	assert.Equal(t, "stress", ConfigGet(m, "name", ""))
	assert.Equal(t, "x", ConfigGet(m, "missing", "x"))
	assert.Equal(t, "x", ConfigGet(m, "k", "x"))
	assert.Equal(t, int64(3), ConfigGetInt64(m, "k", 0))
	assert.Equal(t, 0.0, ConfigGetFloat64(m, "lo", 9))
	assert.Equal(t, 3.5, ConfigGetFloat64(m, "hi", 9))
	assert.Equal(t, 9.0, ConfigGetFloat64(m, "name", 9))
	assert.Equal(t, []string{"low", "high", "2"}, ConfigGetStrings(m, "labels"))
	assert.Nil(t, ConfigGetStrings(nil, "labels"))
}
