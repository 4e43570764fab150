package decode

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/feature"
)

func intPtr(v int) *int { return &v }

func TestArgmax(t *testing.T) {
	d, err := New(PolicyArgmax, Options{})
	require.NoError(t, err)

	tests := []struct {
		name      string
		probs     []float64
		wantIdx   int
		wantLabel string
		wantLower string
		wantProb  float64
	}{
		{name: "high", probs: []float64{0.1, 0.2, 0.6, 0.1}, wantIdx: 2, wantLabel: "High", wantLower: "high", wantProb: 0.6},
		{name: "tie takes lowest index", probs: []float64{0.4, 0.4, 0.1, 0.1}, wantIdx: 0, wantLabel: "Low", wantLower: "low", wantProb: 0.4},
		{name: "critical", probs: []float64{0, 0, 0, 1}, wantIdx: 3, wantLabel: "Critical", wantLower: "critical", wantProb: 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := d.Decode(core.VectorOutput(tt.probs), 0)
			require.NoError(t, err)
			assert.Equal(t, core.ResultDistribution, r.Kind)
			assert.Equal(t, tt.wantIdx, r.Index)
			assert.Equal(t, tt.wantLabel, r.Label)
			assert.Equal(t, tt.wantLower, r.LabelLower)
			assert.Equal(t, tt.wantProb, r.Probability)
			assert.Equal(t, tt.probs, r.Distribution)
		})
	}

	_, err = d.Decode(core.ScalarOutput(1), 0)
	assert.True(t, core.IsInferenceError(err))

	_, err = d.Decode(core.VectorOutput([]float64{0.2, 0.3, 0.5}), 0)
	require.Error(t, err)
	assert.True(t, core.IsInferenceError(err))
	assert.Contains(t, err.Error(), "(3,) want (4,)")
}

func TestVectorDecoders_NonFinite(t *testing.T) {
	argmax, err := New(PolicyArgmax, Options{})
	require.NoError(t, err)
	topk := &TopK{Labels: []string{"a", "b", "c", "d"}, Scale: 100, DefaultK: 3}

	tests := []struct {
		name  string
		probs []float64
	}{
		{name: "nan", probs: []float64{math.NaN(), 0.2, 0.6, 0.1}},
		{name: "positive inf", probs: []float64{0.1, math.Inf(1), 0.6, 0.1}},
		{name: "negative inf", probs: []float64{0.1, 0.2, 0.6, math.Inf(-1)}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := argmax.Decode(core.VectorOutput(tt.probs), 0)
			require.Error(t, err)
			assert.True(t, core.IsInferenceError(err))
			assert.Contains(t, err.Error(), "non-finite")

			_, err = topk.Decode(core.VectorOutput(tt.probs), 2)
			require.Error(t, err)
			assert.True(t, core.IsInferenceError(err))
		})
	}
}

func TestClamp(t *testing.T) {
	d, err := New(PolicyClamp, Options{})
	require.NoError(t, err)

	tests := []struct {
		in        float64
		wantIdx   int
		wantLabel string
	}{
		{in: 4.7, wantIdx: 3, wantLabel: "Critical"},
		{in: 1.5, wantIdx: 2, wantLabel: "High"},
		{in: 1.49, wantIdx: 1, wantLabel: "Medium"},
		{in: -0.5, wantIdx: 0, wantLabel: "Low"},
		{in: -7, wantIdx: 0, wantLabel: "Low"},
		{in: 2.5, wantIdx: 3, wantLabel: "Critical"},
		{in: 1e19, wantIdx: 3, wantLabel: "Critical"},
		{in: 1e300, wantIdx: 3, wantLabel: "Critical"},
		{in: -1e19, wantIdx: 0, wantLabel: "Low"},
	}
	for _, tt := range tests {
		r, err := d.Decode(core.ScalarOutput(tt.in), 0)
		require.NoError(t, err)
		assert.Equal(t, tt.wantIdx, r.Index, "input %v", tt.in)
		assert.Equal(t, tt.wantLabel, r.Label, "input %v", tt.in)
		assert.Equal(t, 0.0, r.Probability)
		assert.Equal(t, []float64{tt.in}, r.Raw)
	}

	_, err = d.Decode(core.VectorOutput([]float64{1, 2}), 0)
	assert.True(t, core.IsInferenceError(err))
}

func TestClamp_CustomRange(t *testing.T) {
	d, err := New(PolicyClamp, Options{Lo: intPtr(1), Hi: intPtr(2)})
	require.NoError(t, err)
	r, err := d.Decode(core.ScalarOutput(9), 0)
	require.NoError(t, err)
	assert.Equal(t, "High", r.Label)

	_, err = New(PolicyClamp, Options{Hi: intPtr(4)})
	assert.Error(t, err)
	_, err = New(PolicyClamp, Options{Lo: intPtr(3), Hi: intPtr(1)})
	assert.Error(t, err)
}

func TestLevel_DispatchesOnShape(t *testing.T) {
	d, err := New(PolicyLevel, Options{})
	require.NoError(t, err)

	r, err := d.Decode(core.VectorOutput([]float64{0.1, 0.7, 0.1, 0.1}), 0)
	require.NoError(t, err)
	assert.Equal(t, core.ResultDistribution, r.Kind)
	assert.Equal(t, "Medium", r.Label)
	assert.Equal(t, 0.7, r.Probability)

	r, err = d.Decode(core.ScalarOutput(4.7), 0)
	require.NoError(t, err)
	assert.Equal(t, core.ResultLabel, r.Kind)
	assert.Equal(t, "Critical", r.Label)
	assert.Equal(t, 0.0, r.Probability)
}

func TestRoundTrip(t *testing.T) {
	enc, err := feature.NewLabelEncoder([]string{"easy", "medium", "hard"}, "")
	require.NoError(t, err)
	d, err := New(PolicyRoundTrip, Options{Encoder: enc})
	require.NoError(t, err)

	r, err := d.Decode(core.ScalarOutput(2.0), 0)
	require.NoError(t, err)
	assert.Equal(t, core.ResultLabel, r.Kind)
	assert.Equal(t, "hard", r.Label)
	assert.Equal(t, 2, r.Index)

	r, err = d.Decode(core.ScalarOutput(0.6), 0)
	require.NoError(t, err)
	assert.Equal(t, "medium", r.Label)

	_, err = d.Decode(core.ScalarOutput(7), 0)
	assert.True(t, core.IsInferenceError(err))

	_, err = New(PolicyRoundTrip, Options{})
	assert.Error(t, err)
}

func TestScore(t *testing.T) {
	d, err := New(PolicyScore, Options{})
	require.NoError(t, err)
	r, err := d.Decode(core.ScalarOutput(71.25), 0)
	require.NoError(t, err)
	assert.Equal(t, core.ResultScore, r.Kind)
	assert.Equal(t, 71.25, r.Score)

	_, err = d.Decode(core.VectorOutput([]float64{1}), 0)
	assert.True(t, core.IsInferenceError(err))
}

func TestTopK(t *testing.T) {
	labels := []string{"apple", "bag", "cat", "dog"}
	d, err := New(PolicyTopK, Options{Labels: labels})
	require.NoError(t, err)

	probs := []float64{0.1, 0.5, 0.3, 0.1}
	tests := []struct {
		name       string
		k          int
		wantLabels []string
	}{
		{name: "default k", k: 0, wantLabels: []string{"bag", "cat", "apple"}},
		{name: "k one", k: 1, wantLabels: []string{"bag"}},
		{name: "k above len clamps", k: 10, wantLabels: []string{"bag", "cat", "apple", "dog"}},
		{name: "negative k uses default", k: -2, wantLabels: []string{"bag", "cat", "apple"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r, err := d.Decode(core.VectorOutput(probs), tt.k)
			require.NoError(t, err)
			got := make([]string, len(r.TopK))
			for i, rk := range r.TopK {
				got[i] = rk.Label
			}
			assert.Equal(t, tt.wantLabels, got)
			top1, ok := r.Top1()
			require.True(t, ok)
			assert.Equal(t, r.TopK[0], top1)
			assert.InDelta(t, 50.0, top1.Confidence, 1e-9)
		})
	}

	_, err = d.Decode(core.VectorOutput([]float64{0.5, 0.5}), 1)
	assert.True(t, core.IsInferenceError(err))

	_, err = New(PolicyTopK, Options{})
	assert.Error(t, err)
}

func TestNew_UnknownPolicy(t *testing.T) {
	_, err := New("softmax", Options{})
	assert.Error(t, err)
}

func TestRender(t *testing.T) {
	d, err := New(PolicyLevel, Options{})
	require.NoError(t, err)
	r, err := d.Decode(core.VectorOutput([]float64{0.1, 0.2, 0.6, 0.1}), 0)
	require.NoError(t, err)

	body := Render(r, DefaultKeys(PolicyLevel))
	assert.Equal(t, 2, body["stress_score"])
	assert.Equal(t, "High", body["stress_level"])
	assert.Equal(t, "high", body["stress_level_lower"])
	assert.Equal(t, 0.6, body["stress_probability"])
	assert.Equal(t, [][]float64{{0.1, 0.2, 0.6, 0.1}}, body["raw"])

	keys, err := DefaultKeys(PolicyLevel).Override(map[string]string{"raw": "", "label": "level"})
	require.NoError(t, err)
	body = Render(r, keys)
	assert.NotContains(t, body, "raw")
	assert.Equal(t, "High", body["level"])

	_, err = keys.Override(map[string]string{"bogus": "x"})
	assert.Error(t, err)
}

func TestRender_ScoreWithExplanation(t *testing.T) {
	r := &core.PredictionResult{
		Kind:  core.ResultScore,
		Score: 3.5,
		Raw:   []float64{3.5},
		Explanation: &core.Explanation{
			Warning: "Feature-name length mismatch with SHAP output",
		},
	}
	body := Render(r, DefaultKeys(PolicyScore))
	assert.Equal(t, 3.5, body["predicted_score_next_14_days"])
	assert.NotContains(t, body, "raw")

	exp, ok := body["explainability"].(map[string]any)
	require.True(t, ok)
	assert.Equal(t, []map[string]any{}, exp["top_positive_factors"])
	assert.Equal(t, []map[string]any{}, exp["top_negative_factors"])
	assert.Equal(t, "Feature-name length mismatch with SHAP output", exp["warning"])
}

func TestRender_ExplanationImpactKey(t *testing.T) {
	age := 7.0
	r := &core.PredictionResult{
		Kind:  core.ResultScore,
		Score: 3.5,
		Explanation: &core.Explanation{
			Positive: []core.Attribution{{Feature: "sleep", Impact: 0.9}},
			Negative: []core.Attribution{{Feature: "age", Value: &age, Impact: -0.3}},
		},
	}

	body := Render(r, DefaultKeys(PolicyScore))
	exp := body["explainability"].(map[string]any)
	assert.Equal(t, []map[string]any{{"feature": "sleep", "shap_value": 0.9}}, exp["top_positive_factors"])
	assert.Equal(t, []map[string]any{{"feature": "age", "shap_value": -0.3, "value": 7.0}}, exp["top_negative_factors"])

	keys, err := DefaultKeys(PolicyScore).Override(map[string]string{"impact": "contribution"})
	require.NoError(t, err)
	exp = Render(r, keys)["explainability"].(map[string]any)
	assert.Equal(t, []map[string]any{{"feature": "sleep", "contribution": 0.9}}, exp["top_positive_factors"])

	exp = Render(r, Keys{Explanation: "why"})["why"].(map[string]any)
	assert.Equal(t, []map[string]any{{"feature": "sleep", "impact": 0.9}}, exp["top_positive_factors"])

	_, err = DefaultKeys(PolicyScore).Override(map[string]string{"impact": ""})
	assert.Error(t, err)
}

func TestRender_Ranking(t *testing.T) {
	d, err := New(PolicyTopK, Options{Labels: []string{"a", "b"}})
	require.NoError(t, err)
	r, err := d.Decode(core.VectorOutput([]float64{0.25, 0.75}), 2)
	require.NoError(t, err)
	body := Render(r, DefaultKeys(PolicyTopK))
	assert.Equal(t, core.Ranked{Label: "b", Confidence: 75}, body["top1"])
	assert.Len(t, body["topk"], 2)

	routine := Render(&core.PredictionResult{Kind: core.ResultLabel, Label: "hard", HasIndex: true, Index: 2, Raw: []float64{2}}, DefaultKeys(PolicyRoundTrip))
	assert.Equal(t, map[string]any{"next_difficulty_level": "hard"}, routine)
}
