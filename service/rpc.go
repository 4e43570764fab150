package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rushteam/inferkit/core"
)

// RPCClient 通过 HTTP/JSON 调用自定义模型服务（如包装 joblib / xgboost 模型的 sidecar）。
//
// 请求格式（JSON）：
//
//	{"instances": [[0.8, 1.0, 12.0, 5, 0.1, 1.0]]}
//
// 响应格式（JSON，二选一）：
//
//	{"outputs": [[2.0]]}
//	{"scores": [2.0]}
//
// 可选的归因端点：
//
//	请求：{"instances": [[...]], "feature_names": [...]}
//	响应：{"shap_values": [[...]], "feature_names": [...]}
type RPCClient struct {
	// Endpoint 预测端点，如 "http://localhost:8080/predict"
	Endpoint string

	// ExplainEndpoint 归因端点（可选）
	ExplainEndpoint string

	// HealthEndpoint 健康检查端点（可选，为空时 Health 直接返回 nil）
	HealthEndpoint string

	Timeout time.Duration
	Auth    *AuthConfig

	httpClient *http.Client
}

// RPCOption RPC 客户端配置选项
type RPCOption func(*RPCClient)

// WithRPCExplainEndpoint 设置归因端点
func WithRPCExplainEndpoint(endpoint string) RPCOption {
	return func(c *RPCClient) {
		c.ExplainEndpoint = endpoint
	}
}

// WithRPCHealthEndpoint 设置健康检查端点
func WithRPCHealthEndpoint(endpoint string) RPCOption {
	return func(c *RPCClient) {
		c.HealthEndpoint = endpoint
	}
}

// WithRPCTimeout 设置超时时间
func WithRPCTimeout(timeout time.Duration) RPCOption {
	return func(c *RPCClient) {
		c.Timeout = timeout
	}
}

// WithRPCAuth 设置认证信息
func WithRPCAuth(auth *AuthConfig) RPCOption {
	return func(c *RPCClient) {
		c.Auth = auth
	}
}

// WithRPCHTTPClient 设置自定义 HTTP 客户端
func WithRPCHTTPClient(client *http.Client) RPCOption {
	return func(c *RPCClient) {
		c.httpClient = client
	}
}

func NewRPCClient(endpoint string, opts ...RPCOption) *RPCClient {
	c := &RPCClient{
		Endpoint: endpoint,
		Timeout:  5 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// Predict 调用远程模型服务进行批量预测。
func (c *RPCClient) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	instances, err := instancesOf(req)
	if err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodPost, c.Endpoint, map[string]interface{}{"instances": instances}, "rpc")
	if err != nil {
		return nil, err
	}

	var result struct {
		Outputs []interface{} `json:"outputs"`
		Scores  []float64     `json:"scores"`
	}
	if err := json.Unmarshal(body, &result); err != nil {
		return nil, fmt.Errorf("rpc decode response: %w", err)
	}

	var rows [][]float64
	switch {
	case result.Outputs != nil:
		if rows, err = rowsFromPredictions(result.Outputs); err != nil {
			return nil, fmt.Errorf("rpc: %w", err)
		}
	case result.Scores != nil:
		rows = make([][]float64, len(result.Scores))
		for i, s := range result.Scores {
			rows[i] = []float64{s}
		}
	default:
		return nil, fmt.Errorf("rpc response has neither outputs nor scores")
	}
	if err := checkRowCount(rows, req, "rpc"); err != nil {
		return nil, err
	}
	return core.NewMLPredictResponse(rows, ""), nil
}

// Explain 实现 core.Explainer
func (c *RPCClient) Explain(ctx context.Context, req *core.ExplainRequest) (*core.ExplainResponse, error) {
	if c.ExplainEndpoint == "" {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeNotSupported, "rpc explain endpoint is not configured")
	}
	payload := map[string]interface{}{"instances": [][]float64{req.Instance}}
	if len(req.FeatureNames) > 0 {
		payload["feature_names"] = req.FeatureNames
	}
	body, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodPost, c.ExplainEndpoint, payload, "rpc explain")
	if err != nil {
		return nil, err
	}
	return parseExplainResponse(body)
}

// Health 健康检查
func (c *RPCClient) Health(ctx context.Context) error {
	if c.HealthEndpoint == "" {
		return nil
	}
	_, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodGet, c.HealthEndpoint, nil, "rpc health")
	return err
}

// Close 关闭连接
func (c *RPCClient) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var (
	_ core.MLService = (*RPCClient)(nil)
	_ core.Explainer = (*RPCClient)(nil)
)
