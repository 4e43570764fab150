// Package explain 对外部归因服务返回的逐特征影响值做后处理：
// 按 |impact| 降序排序、截断到 topK、再按正负拆分。
package explain

import (
	"math"
	"sort"

	"github.com/rushteam/inferkit/core"
)

// MismatchWarning 特征名数量与影响值数量不一致时的降级提示
const MismatchWarning = "Feature-name length mismatch with SHAP output"

// DefaultTopK 默认保留的归因条数
const DefaultTopK = 10

// Explain 按 |impact| 降序（稳定排序）截断到 topK，并拆分正负因子。
// impact 为 0 的条目保留在 Factors 中，但不进入正负任一侧。topK <= 0 时使用 DefaultTopK。
func Explain(attributions []core.Attribution, topK int) *core.Explanation {
	if topK <= 0 {
		topK = DefaultTopK
	}
	sorted := make([]core.Attribution, len(attributions))
	copy(sorted, attributions)
	sort.SliceStable(sorted, func(i, j int) bool {
		return math.Abs(sorted[i].Impact) > math.Abs(sorted[j].Impact)
	})
	if len(sorted) > topK {
		sorted = sorted[:topK]
	}

	exp := &core.Explanation{
		Factors:  sorted,
		Positive: []core.Attribution{},
		Negative: []core.Attribution{},
	}
	for _, a := range sorted {
		switch {
		case a.Impact > 0:
			exp.Positive = append(exp.Positive, a)
		case a.Impact < 0:
			exp.Negative = append(exp.Negative, a)
		}
	}
	return exp
}

// FromImpacts 把并列的特征名 / 特征值 / 影响值组装为归因后再调用 Explain。
//
// names 与 impacts 数量不一致时（例如模型内部做了 one-hot 展开）不报错，
// 返回空的正负列表并附带 MismatchWarning。values 可以为 nil；
// 长度与 names 一致时每个条目会带上对应的特征值。
func FromImpacts(names []string, values []float64, impacts []float64, topK int) *core.Explanation {
	if len(names) != len(impacts) {
		return Degraded()
	}
	attrs := make([]core.Attribution, len(names))
	for i, name := range names {
		attrs[i] = core.Attribution{Feature: name, Impact: impacts[i]}
		if len(values) == len(names) {
			v := values[i]
			attrs[i].Value = &v
		}
	}
	return Explain(attrs, topK)
}

// Degraded 返回降级的解释结果
func Degraded() *core.Explanation {
	return &core.Explanation{
		Positive: []core.Attribution{},
		Negative: []core.Attribution{},
		Warning:  MismatchWarning,
	}
}

// IsDegraded 判断解释结果是否为降级结果
func IsDegraded(e *core.Explanation) bool {
	return e != nil && e.Warning != ""
}
