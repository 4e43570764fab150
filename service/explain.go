package service

import (
	"encoding/json"
	"fmt"

	"github.com/rushteam/inferkit/core"
)

// explainPayload 归因响应的通用形式：
//
//	{"shap_values": [[...]], "feature_names": [...]}
//	{"data": {"shap_values": [...], "feature_names": [...]}}
type explainPayload struct {
	ShapValues   interface{} `json:"shap_values"`
	FeatureNames []string    `json:"feature_names"`
	Data         *struct {
		ShapValues   interface{} `json:"shap_values"`
		FeatureNames []string    `json:"feature_names"`
	} `json:"data"`
}

// parseExplainResponse 解析单实例归因响应，shap_values 为 [[...]] 时取第一行。
func parseExplainResponse(body []byte) (*core.ExplainResponse, error) {
	var p explainPayload
	if err := json.Unmarshal(body, &p); err != nil {
		return nil, fmt.Errorf("explain parse response: %w", err)
	}
	values, names := p.ShapValues, p.FeatureNames
	if values == nil && p.Data != nil {
		values, names = p.Data.ShapValues, p.Data.FeatureNames
	}
	if values == nil {
		return nil, fmt.Errorf("explain response has no shap_values")
	}
	if rows, ok := values.([]interface{}); ok && len(rows) > 0 {
		if _, nested := rows[0].([]interface{}); nested {
			values = rows[0]
		}
	}
	impacts, err := flatten(values, nil)
	if err != nil {
		return nil, fmt.Errorf("explain: %w", err)
	}
	return &core.ExplainResponse{Impacts: impacts, FeatureNames: names}, nil
}
