package feature

import (
	"context"

	"github.com/rushteam/inferkit/artifact"
	"github.com/rushteam/inferkit/core"
)

// Scaler 特征标准化器，对应 scaler.json
// 每个特征对应一个 ScalerParams，包含 mean 和 std
type Scaler map[string]ScalerParams

// ScalerParams 标准化参数
type ScalerParams struct {
	// Mean 均值
	Mean float64 `json:"mean"`
	// Std 标准差
	Std float64 `json:"std"`
}

// LoadScaler 从制品加载标准化器（先按 JSON Schema 校验）
func LoadScaler(ctx context.Context, s artifact.Store, path string) (Scaler, error) {
	var scaler Scaler
	if err := artifact.ReadValidatedJSON(ctx, s, path, artifact.SchemaScaler, &scaler); err != nil {
		return nil, err
	}
	return scaler, nil
}

// NormalizeValue 对单个特征值进行标准化（Z-score）
//
// 公式：normalized = (x - mean) / std
//
// 如果特征不在 scaler 中，或 std <= 0，则返回原值。
func (s Scaler) NormalizeValue(featureName string, value float64) float64 {
	if params, ok := s[featureName]; ok {
		if params.Std > 0 {
			return (value - params.Mean) / params.Std
		}
	}
	return value
}

// Apply 按 schema 顺序对向量做标准化，返回新向量（不修改输入）
func (s Scaler) Apply(schema *Schema, vector core.FeatureVector) core.FeatureVector {
	out := make(core.FeatureVector, len(vector))
	for i, v := range vector {
		out[i] = v
		if i < len(schema.Columns) {
			out[i] = s.NormalizeValue(schema.Columns[i].Name, v)
		}
	}
	return out
}
