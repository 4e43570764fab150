package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rushteam/inferkit/core"
)

// TorchServeClient 是 TorchServe REST API 的客户端实现。
//
// REST API 格式：
//   - 推理端点：POST /predictions/{model_name}[/{version}]
//   - 请求体：{"data": [[f1, f2, ...]]}（由模型 Handler 定义）
//   - 响应：数组、{"predictions": [...]} 或 {"prediction": x}
//   - 健康检查：GET /ping
//
// 使用场景：
//   - PyTorch / TorchScript 模型
//   - 自定义 Handler 包装的 sklearn 模型
type TorchServeClient struct {
	// Endpoint 服务端点，如 "http://localhost:8080"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本（可选）
	ModelVersion string

	// Timeout 超时时间
	Timeout time.Duration

	// Auth 认证信息
	Auth *AuthConfig

	httpClient *http.Client
}

// NewTorchServeClient 创建一个新的 TorchServe 客户端。
func NewTorchServeClient(endpoint, modelName string, opts ...TorchServeOption) *TorchServeClient {
	client := &TorchServeClient{
		Endpoint:  endpoint,
		ModelName: modelName,
		Timeout:   30 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: client.Timeout}
	}
	return client
}

// TorchServeOption TorchServe 客户端配置选项
type TorchServeOption func(*TorchServeClient)

// WithTorchServeVersion 设置模型版本
func WithTorchServeVersion(version string) TorchServeOption {
	return func(c *TorchServeClient) {
		c.ModelVersion = version
	}
}

// WithTorchServeTimeout 设置超时时间
func WithTorchServeTimeout(timeout time.Duration) TorchServeOption {
	return func(c *TorchServeClient) {
		c.Timeout = timeout
		if c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithTorchServeAuth 设置认证信息
func WithTorchServeAuth(auth *AuthConfig) TorchServeOption {
	return func(c *TorchServeClient) {
		c.Auth = auth
	}
}

// WithTorchServeHTTPClient 设置自定义 HTTP 客户端
func WithTorchServeHTTPClient(httpClient *http.Client) TorchServeOption {
	return func(c *TorchServeClient) {
		c.httpClient = httpClient
	}
}

// Predict 实现 core.MLService 接口
func (c *TorchServeClient) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	instances, err := instancesOf(req)
	if err != nil {
		return nil, err
	}

	url := fmt.Sprintf("%s/predictions/%s", c.Endpoint, c.ModelName)
	if c.ModelVersion != "" {
		url = fmt.Sprintf("%s/%s", url, c.ModelVersion)
	}
	body, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodPost, url, map[string]interface{}{"data": instances}, "torchserve")
	if err != nil {
		return nil, err
	}

	rows, err := c.parseResponse(body, req.BatchSize())
	if err != nil {
		return nil, err
	}
	if err := checkRowCount(rows, req, "torchserve"); err != nil {
		return nil, err
	}
	return core.NewMLPredictResponse(rows, c.ModelVersion), nil
}

// parseResponse 解析 TorchServe 响应，格式由 Handler 决定：
//   - 批量数组：[[p0, p1, ...], ...] 或 [s0, s1, ...]
//   - 对象：{"predictions": [...]} / {"prediction": x}
//   - 单个数值
//
// 单实例请求时，扁平数组被视为该实例的完整输出向量。
func (c *TorchServeClient) parseResponse(body []byte, batch int) ([][]float64, error) {
	var raw interface{}
	if err := json.Unmarshal(body, &raw); err != nil {
		return nil, fmt.Errorf("torchserve unable to parse response: %w", err)
	}

	switch v := raw.(type) {
	case map[string]interface{}:
		if preds, ok := v["predictions"]; ok {
			raw = preds
		} else if pred, ok := v["prediction"]; ok {
			raw = []interface{}{pred}
		} else {
			return nil, fmt.Errorf("torchserve response has no predictions: %s", truncate(string(body), 256))
		}
	case float64:
		raw = []interface{}{v}
	}

	arr, ok := raw.([]interface{})
	if !ok {
		return nil, fmt.Errorf("unexpected torchserve response type: %T", raw)
	}
	if batch <= 1 && len(arr) > 1 {
		if _, nested := arr[0].([]interface{}); !nested {
			row, err := flatten(arr, nil)
			if err != nil {
				return nil, err
			}
			return [][]float64{row}, nil
		}
	}
	return rowsFromPredictions(arr)
}

// Health 健康检查：GET /ping
func (c *TorchServeClient) Health(ctx context.Context) error {
	_, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodGet, c.Endpoint+"/ping", nil, "torchserve health")
	return err
}

// Close 关闭连接
func (c *TorchServeClient) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// 确保 TorchServeClient 实现了 core.MLService 接口
var _ core.MLService = (*TorchServeClient)(nil)
