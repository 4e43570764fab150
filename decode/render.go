package decode

import (
	"fmt"

	"github.com/rushteam/inferkit/core"
)

// Keys 响应字段名。空字符串表示不输出该字段。
type Keys struct {
	Index       string
	Score       string
	Label       string
	LabelLower  string
	Probability string
	Raw         string
	Top1        string
	TopK        string
	Explanation string

	// Impact 归因条目中影响值的字段名，为空时使用 "impact"
	Impact string
}

// DefaultKeys 返回策略的默认字段名，与既有客户端的响应格式保持一致。
func DefaultKeys(policy Policy) Keys {
	switch policy {
	case PolicyArgmax, PolicyClamp, PolicyLevel:
		return Keys{
			Index:       "stress_score",
			Label:       "stress_level",
			LabelLower:  "stress_level_lower",
			Probability: "stress_probability",
			Raw:         "raw",
		}
	case PolicyRoundTrip:
		return Keys{Label: "next_difficulty_level"}
	case PolicyScore:
		return Keys{Score: "predicted_score_next_14_days", Explanation: "explainability", Impact: "shap_value"}
	case PolicyTopK:
		return Keys{Top1: "top1", TopK: "topk"}
	default:
		return Keys{}
	}
}

// Override 用配置中的映射覆盖字段名，未知字段返回错误
func (k Keys) Override(overrides map[string]string) (Keys, error) {
	for name, v := range overrides {
		switch name {
		case "index":
			k.Index = v
		case "score":
			k.Score = v
		case "label":
			k.Label = v
		case "label_lower":
			k.LabelLower = v
		case "probability":
			k.Probability = v
		case "raw":
			k.Raw = v
		case "top1":
			k.Top1 = v
		case "topk":
			k.TopK = v
		case "explanation":
			k.Explanation = v
		case "impact":
			if v == "" {
				return k, fmt.Errorf("response key %q cannot be empty", name)
			}
			k.Impact = v
		default:
			return k, fmt.Errorf("unknown response key %q", name)
		}
	}
	return k, nil
}

func put(out map[string]any, key string, v any) {
	if key != "" {
		out[key] = v
	}
}

// Render 把领域结果渲染为响应体
func Render(r *core.PredictionResult, keys Keys) map[string]any {
	out := make(map[string]any)
	if r == nil {
		return out
	}
	switch r.Kind {
	case core.ResultDistribution, core.ResultLabel:
		if r.HasIndex {
			put(out, keys.Index, r.Index)
		}
		put(out, keys.Label, r.Label)
		put(out, keys.LabelLower, r.LabelLower)
		put(out, keys.Probability, r.Probability)
	case core.ResultScore:
		put(out, keys.Score, r.Score)
	case core.ResultRanking:
		if top1, ok := r.Top1(); ok {
			put(out, keys.Top1, top1)
		}
		put(out, keys.TopK, r.TopK)
	}
	if r.Raw != nil {
		// 原始输出保留批维度：[[...]]
		put(out, keys.Raw, [][]float64{r.Raw})
	}
	if r.Explanation != nil {
		put(out, keys.Explanation, renderExplanation(r.Explanation, keys.Impact))
	}
	return out
}

func renderExplanation(e *core.Explanation, impactKey string) map[string]any {
	m := map[string]any{
		"top_positive_factors": renderFactors(e.Positive, impactKey),
		"top_negative_factors": renderFactors(e.Negative, impactKey),
	}
	if e.Warning != "" {
		m["warning"] = e.Warning
	}
	return m
}

// renderFactors 渲染归因条目：{feature, <impactKey>, value?}
func renderFactors(factors []core.Attribution, impactKey string) []map[string]any {
	if impactKey == "" {
		impactKey = "impact"
	}
	out := make([]map[string]any, 0, len(factors))
	for _, f := range factors {
		m := map[string]any{
			"feature": f.Feature,
			impactKey: f.Impact,
		}
		if f.Value != nil {
			m["value"] = *f.Value
		}
		out = append(out, m)
	}
	return out
}
