package service

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"

	"github.com/rushteam/inferkit/core"
)

// doJSON 发送 JSON 请求并返回响应体。
// 传输失败与非 2xx 状态统一转为 UNAVAILABLE，调用方无需区分后端类型。
func doJSON(ctx context.Context, client *http.Client, auth *AuthConfig, method, url string, body any, tag string) ([]byte, error) {
	var reader io.Reader
	if body != nil {
		jsonData, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("%s marshal request: %w", tag, err)
		}
		reader = bytes.NewReader(jsonData)
	}

	httpReq, err := http.NewRequestWithContext(ctx, method, url, reader)
	if err != nil {
		return nil, fmt.Errorf("%s create request: %w", tag, err)
	}
	if body != nil {
		httpReq.Header.Set("Content-Type", "application/json")
	}
	auth.apply(httpReq)

	resp, err := client.Do(httpReq)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleService, core.ErrorCodeUnavailable, tag+" request failed", err)
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, core.WrapDomainError(core.ModuleService, core.ErrorCodeUnavailable, tag+" read response", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeUnavailable,
			fmt.Sprintf("%s error: status=%d, body=%s", tag, resp.StatusCode, truncate(string(respBody), 512)))
	}
	return respBody, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}

func toFloat64(v interface{}) (float64, bool) {
	switch val := v.(type) {
	case float64:
		return val, true
	case float32:
		return float64(val), true
	case int:
		return float64(val), true
	case int64:
		return float64(val), true
	case int32:
		return float64(val), true
	case json.Number:
		f, err := val.Float64()
		return f, err == nil
	case bool:
		if val {
			return 1, true
		}
		return 0, true
	default:
		return 0, false
	}
}

// flatten 把单个实例的输出（标量 / 数组 / 嵌套数组）按行优先展平。
func flatten(v interface{}, out []float64) ([]float64, error) {
	if f, ok := toFloat64(v); ok {
		return append(out, f), nil
	}
	switch val := v.(type) {
	case []interface{}:
		var err error
		for _, item := range val {
			if out, err = flatten(item, out); err != nil {
				return nil, err
			}
		}
		return out, nil
	case []float64:
		return append(out, val...), nil
	default:
		return nil, fmt.Errorf("unexpected prediction type: %T", v)
	}
}

// rowsFromPredictions 把 predictions 数组转换为逐实例的输出行。
func rowsFromPredictions(predictions []interface{}) ([][]float64, error) {
	rows := make([][]float64, 0, len(predictions))
	for _, pred := range predictions {
		row, err := flatten(pred, nil)
		if err != nil {
			return nil, err
		}
		rows = append(rows, row)
	}
	return rows, nil
}

// splitRows 把展平的数据按 batch 均分为逐实例的输出行。
func splitRows(data []float64, batch int) ([][]float64, error) {
	if batch <= 1 {
		return [][]float64{data}, nil
	}
	if len(data)%batch != 0 {
		return nil, fmt.Errorf("output length %d is not divisible by batch size %d", len(data), batch)
	}
	width := len(data) / batch
	rows := make([][]float64, batch)
	for i := range rows {
		rows[i] = data[i*width : (i+1)*width]
	}
	return rows, nil
}

// nestTensor 把张量按 Shape 还原为嵌套数组，返回第一维（batch）上的实例列表。
// TF Serving / KServe V1 的 instances 需要这种形式。
func nestTensor(t *core.Tensor) []interface{} {
	if t == nil || len(t.Shape) == 0 {
		return nil
	}
	var build func(dims []int, data []float32) interface{}
	build = func(dims []int, data []float32) interface{} {
		if len(dims) == 0 {
			return data[0]
		}
		if len(dims) == 1 {
			row := make([]float32, dims[0])
			copy(row, data)
			return row
		}
		stride := len(data) / dims[0]
		out := make([]interface{}, dims[0])
		for i := range out {
			out[i] = build(dims[1:], data[i*stride:(i+1)*stride])
		}
		return out
	}
	nested := build(t.Shape, t.Data)
	if len(t.Shape) == 1 {
		row := nested.([]float32)
		out := make([]interface{}, len(row))
		for i, v := range row {
			out[i] = v
		}
		return out
	}
	return nested.([]interface{})
}

// instancesOf 返回请求中的实例（特征向量或张量），用于 JSON 请求体。
func instancesOf(req *core.MLPredictRequest) (interface{}, error) {
	switch {
	case req.Tensor != nil:
		if req.Tensor.Size() != len(req.Tensor.Data) {
			return nil, fmt.Errorf("tensor shape %v does not match data length %d", req.Tensor.Shape, len(req.Tensor.Data))
		}
		return nestTensor(req.Tensor), nil
	case len(req.Instances) > 0:
		return req.Instances, nil
	case len(req.Features) > 0:
		return req.Features, nil
	default:
		return nil, fmt.Errorf("instances, features or tensor are required")
	}
}

func checkRowCount(rows [][]float64, req *core.MLPredictRequest, tag string) error {
	if want := req.BatchSize(); want > 0 && len(rows) != want {
		return fmt.Errorf("%s response count mismatch: expected %d, got %d", tag, want, len(rows))
	}
	return nil
}
