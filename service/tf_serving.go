package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rushteam/inferkit/core"
)

// TFServingClient 是 TensorFlow Serving REST API 的客户端实现。
//
// 接口：
//   - Predict: POST /v1/models/{model}[/versions/{version}]:predict
//   - 请求：{"instances": [...], "signature_name": "serving_default"}
//   - 响应：{"predictions": [...]}
//   - Model Status: GET /v1/models/{model}[/versions/{version}]
//
// 使用场景：
//   - Keras 稠密网络（如压力等级四分类，输出 softmax 概率向量）
//   - TFLite 转换前的图像分类模型（输入 NHWC 张量）
type TFServingClient struct {
	// Endpoint 服务端点，如 "http://localhost:8501"
	Endpoint string

	// ModelName 模型名称
	ModelName string

	// ModelVersion 模型版本（可选，为空则使用最新版本）
	ModelVersion string

	// SignatureName 签名名称（可选，默认为 "serving_default"）
	SignatureName string

	// Timeout 超时时间
	Timeout time.Duration

	// Auth 认证信息
	Auth *AuthConfig

	httpClient *http.Client
}

// NewTFServingClient 创建一个新的 TF Serving 客户端。
func NewTFServingClient(endpoint, modelName string, opts ...TFServingOption) *TFServingClient {
	client := &TFServingClient{
		Endpoint:      endpoint,
		ModelName:     modelName,
		SignatureName: "serving_default",
		Timeout:       30 * time.Second,
	}

	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: client.Timeout}
	}
	return client
}

// TFServingOption TF Serving 客户端配置选项
type TFServingOption func(*TFServingClient)

// WithTFServingVersion 设置模型版本
func WithTFServingVersion(version string) TFServingOption {
	return func(c *TFServingClient) {
		c.ModelVersion = version
	}
}

// WithTFServingSignature 设置签名名称
func WithTFServingSignature(signatureName string) TFServingOption {
	return func(c *TFServingClient) {
		c.SignatureName = signatureName
	}
}

// WithTFServingTimeout 设置超时时间
func WithTFServingTimeout(timeout time.Duration) TFServingOption {
	return func(c *TFServingClient) {
		c.Timeout = timeout
	}
}

// WithTFServingAuth 设置认证信息
func WithTFServingAuth(auth *AuthConfig) TFServingOption {
	return func(c *TFServingClient) {
		c.Auth = auth
	}
}

// WithTFServingHTTPClient 设置自定义 HTTP 客户端
func WithTFServingHTTPClient(client *http.Client) TFServingOption {
	return func(c *TFServingClient) {
		c.httpClient = client
	}
}

func (c *TFServingClient) modelURL() string {
	if c.ModelVersion != "" {
		return fmt.Sprintf("%s/v1/models/%s/versions/%s", c.Endpoint, c.ModelName, c.ModelVersion)
	}
	return fmt.Sprintf("%s/v1/models/%s", c.Endpoint, c.ModelName)
}

// Predict 实现 core.MLService 接口
func (c *TFServingClient) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	instances, err := instancesOf(req)
	if err != nil {
		return nil, err
	}

	body := map[string]interface{}{"instances": instances}
	if len(req.Features) > 0 && len(req.Instances) == 0 && req.Tensor == nil {
		// 字典格式走列式 inputs
		body = map[string]interface{}{"inputs": req.Features}
	}
	signature := c.SignatureName
	if req.SignatureName != "" {
		signature = req.SignatureName
	}
	if signature != "" {
		body["signature_name"] = signature
	}

	respBody, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodPost, c.modelURL()+":predict", body, "tf serving")
	if err != nil {
		return nil, err
	}

	var result struct {
		Predictions []interface{} `json:"predictions"`
		Outputs     interface{}   `json:"outputs,omitempty"`
	}
	if err := json.Unmarshal(respBody, &result); err != nil {
		return nil, fmt.Errorf("tf serving decode response: %w", err)
	}

	predictions := result.Predictions
	if predictions == nil && result.Outputs != nil {
		// 列式请求返回 outputs
		if arr, ok := result.Outputs.([]interface{}); ok {
			predictions = arr
		} else {
			predictions = []interface{}{result.Outputs}
		}
	}
	rows, err := rowsFromPredictions(predictions)
	if err != nil {
		return nil, fmt.Errorf("tf serving: %w", err)
	}
	if err := checkRowCount(rows, req, "tf serving"); err != nil {
		return nil, err
	}
	return core.NewMLPredictResponse(rows, c.ModelVersion), nil
}

// Health 健康检查：GET 模型状态，不触发推理
func (c *TFServingClient) Health(ctx context.Context) error {
	_, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodGet, c.modelURL(), nil, "tf serving health")
	return err
}

// Close 关闭连接
func (c *TFServingClient) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

// 确保 TFServingClient 实现了 core.MLService 接口
var _ core.MLService = (*TFServingClient)(nil)
