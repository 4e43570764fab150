package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"

	"github.com/rushteam/inferkit/core"
)

// KServeProtocol 指定 KServe 协议版本。
const (
	KServeV1 = "v1"
	KServeV2 = "v2"
)

// KServeClient 是 KServe V1/V2 协议的客户端实现。
//
// KServe V1（基于 TensorFlow Serving REST）：
//   - Predict: POST /v1/models/{model_name}:predict
//   - Explain: POST /v1/models/{model_name}:explain（需部署 explainer）
//   - 请求：{"instances": [...]}
//   - 响应：{"predictions": [...]}
//   - Model Ready: GET /v1/models/{model_name}
//
// KServe V2（Open Inference Protocol）：
//   - Infer: POST /v2/models/{model_name}[/versions/{version}]/infer
//   - 请求：{"inputs": [{"name": "input0", "shape": [batch, dim], "datatype": "FP64", "data": [...]}]}
//   - 响应：{"outputs": [{"name": "...", "shape": [...], "data": [...]}]}
//   - Model Ready: GET /v2/models/{model_name}/ready
//
// 使用场景：sklearn / xgboost / lightgbm 树模型服务、兼容 KServe 协议的自建推理服务。
type KServeClient struct {
	// Endpoint 服务根地址，如 "http://localhost:8000"
	Endpoint string
	// ModelName 模型名称
	ModelName string
	// ModelVersion 模型版本（可选，V2 路径中会带 /versions/{version}）
	ModelVersion string
	// Protocol 协议版本："v1" 或 "v2"，默认 "v2"
	Protocol string
	// V2InputName V2 协议下输入张量名称，默认 "input0"
	V2InputName string
	// V2OutputName V2 协议下期望的输出张量名称；空则取 outputs[0]
	V2OutputName string
	// Timeout 请求超时
	Timeout time.Duration
	// Auth 认证配置
	Auth *AuthConfig

	httpClient *http.Client
}

// NewKServeClient 创建 KServe 客户端。endpoint 为根地址（如 http://localhost:8000），modelName 为模型名。
func NewKServeClient(endpoint, modelName string, opts ...KServeOption) *KServeClient {
	c := &KServeClient{
		Endpoint:    endpoint,
		ModelName:   modelName,
		Protocol:    KServeV2,
		V2InputName: "input0",
		Timeout:     30 * time.Second,
	}
	for _, opt := range opts {
		opt(c)
	}
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.Timeout}
	}
	return c
}

// KServeOption 配置 KServe 客户端
type KServeOption func(*KServeClient)

// WithKServeVersion 设置模型版本（V2 路径会带 /versions/{version}）
func WithKServeVersion(version string) KServeOption {
	return func(c *KServeClient) {
		c.ModelVersion = version
	}
}

// WithKServeProtocol 设置协议："v1" 或 "v2"
func WithKServeProtocol(protocol string) KServeOption {
	return func(c *KServeClient) {
		if protocol == KServeV1 || protocol == KServeV2 {
			c.Protocol = protocol
		}
	}
}

// WithKServeV2InputName 设置 V2 协议下输入张量名称
func WithKServeV2InputName(name string) KServeOption {
	return func(c *KServeClient) {
		if name != "" {
			c.V2InputName = name
		}
	}
}

// WithKServeV2OutputName 设置 V2 协议下期望的输出张量名称（解析响应时优先匹配）
func WithKServeV2OutputName(name string) KServeOption {
	return func(c *KServeClient) {
		c.V2OutputName = name
	}
}

// WithKServeTimeout 设置超时
func WithKServeTimeout(timeout time.Duration) KServeOption {
	return func(c *KServeClient) {
		c.Timeout = timeout
		if c.httpClient != nil {
			c.httpClient.Timeout = timeout
		}
	}
}

// WithKServeAuth 设置认证
func WithKServeAuth(auth *AuthConfig) KServeOption {
	return func(c *KServeClient) {
		c.Auth = auth
	}
}

// WithKServeHTTPClient 设置自定义 HTTP 客户端
func WithKServeHTTPClient(client *http.Client) KServeOption {
	return func(c *KServeClient) {
		c.httpClient = client
	}
}

// Predict 实现 core.MLService。
func (c *KServeClient) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	if c.Protocol == KServeV1 {
		return c.predictV1(ctx, req)
	}
	return c.predictV2(ctx, req)
}

// predictV1 使用 V1 协议：POST /v1/models/{model_name}:predict，请求 instances，响应 predictions。
func (c *KServeClient) predictV1(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	instances, err := instancesOf(req)
	if err != nil {
		return nil, err
	}
	url := fmt.Sprintf("%s/v1/models/%s:predict", c.Endpoint, c.ModelName)
	body, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodPost, url, map[string]interface{}{"instances": instances}, "kserve v1")
	if err != nil {
		return nil, err
	}

	var out struct {
		Predictions []interface{} `json:"predictions"`
	}
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("kserve v1 parse response: %w", err)
	}
	rows, err := rowsFromPredictions(out.Predictions)
	if err != nil {
		return nil, fmt.Errorf("kserve v1: %w", err)
	}
	if err := checkRowCount(rows, req, "kserve v1"); err != nil {
		return nil, err
	}
	return core.NewMLPredictResponse(rows, c.ModelVersion), nil
}

// v2InferInput 对应 V2 推理请求中的输入张量
type v2InferInput struct {
	Name     string      `json:"name"`
	Shape    []int       `json:"shape"`
	Datatype string      `json:"datatype"`
	Data     interface{} `json:"data"`
}

// v2InferResponse 对应 V2 推理响应
type v2InferResponse struct {
	ModelName    string           `json:"model_name"`
	ModelVersion string           `json:"model_version"`
	Outputs      []v2OutputTensor `json:"outputs"`
}

type v2OutputTensor struct {
	Name     string        `json:"name"`
	Shape    []int         `json:"shape"`
	Datatype string        `json:"datatype"`
	Data     []interface{} `json:"data"`
}

// v2Input 将张量或特征向量转为 V2 输入（展平、行优先）。
// 张量使用 FP32，表格特征使用 FP64。
func (c *KServeClient) v2Input(req *core.MLPredictRequest) (*v2InferInput, error) {
	if req.Tensor != nil {
		if req.Tensor.Size() != len(req.Tensor.Data) {
			return nil, fmt.Errorf("tensor shape %v does not match data length %d", req.Tensor.Shape, len(req.Tensor.Data))
		}
		return &v2InferInput{Name: c.V2InputName, Shape: req.Tensor.Shape, Datatype: "FP32", Data: req.Tensor.Data}, nil
	}
	if len(req.Instances) == 0 {
		return nil, fmt.Errorf("instances or tensor are required")
	}
	rows := len(req.Instances)
	dim := len(req.Instances[0])
	data := make([]float64, 0, rows*dim)
	for i, row := range req.Instances {
		if len(row) != dim {
			return nil, fmt.Errorf("instance %d has %d features, want %d", i, len(row), dim)
		}
		data = append(data, row...)
	}
	return &v2InferInput{Name: c.V2InputName, Shape: []int{rows, dim}, Datatype: "FP64", Data: data}, nil
}

// predictV2 使用 V2 协议：POST /v2/models/{model_name}/infer，请求 inputs 张量，响应 outputs。
func (c *KServeClient) predictV2(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	input, err := c.v2Input(req)
	if err != nil {
		return nil, err
	}
	body, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodPost, c.v2ModelURL()+"/infer",
		map[string]interface{}{"inputs": []*v2InferInput{input}}, "kserve v2")
	if err != nil {
		return nil, err
	}

	var out v2InferResponse
	if err := json.Unmarshal(body, &out); err != nil {
		return nil, fmt.Errorf("kserve v2 parse response: %w", err)
	}
	if len(out.Outputs) == 0 {
		return nil, fmt.Errorf("kserve v2 empty outputs")
	}
	tensor := &out.Outputs[0]
	if c.V2OutputName != "" {
		for i := range out.Outputs {
			if out.Outputs[i].Name == c.V2OutputName {
				tensor = &out.Outputs[i]
				break
			}
		}
	}
	data, err := flatten(tensor.Data, nil)
	if err != nil {
		return nil, fmt.Errorf("kserve v2: %w", err)
	}
	rows, err := splitRows(data, req.BatchSize())
	if err != nil {
		return nil, fmt.Errorf("kserve v2: %w", err)
	}
	version := out.ModelVersion
	if version == "" {
		version = c.ModelVersion
	}
	return core.NewMLPredictResponse(rows, version), nil
}

func (c *KServeClient) v2ModelURL() string {
	path := fmt.Sprintf("%s/v2/models/%s", c.Endpoint, c.ModelName)
	if c.ModelVersion != "" {
		path = fmt.Sprintf("%s/versions/%s", path, c.ModelVersion)
	}
	return path
}

// Explain 实现 core.Explainer，仅 V1 协议：POST /v1/models/{model_name}:explain。
// 响应中的 shap_values 可位于顶层或 data 字段下。
func (c *KServeClient) Explain(ctx context.Context, req *core.ExplainRequest) (*core.ExplainResponse, error) {
	if c.Protocol != KServeV1 {
		return nil, core.NewDomainError(core.ModuleService, core.ErrorCodeNotSupported, "kserve explain requires protocol v1")
	}
	url := fmt.Sprintf("%s/v1/models/%s:explain", c.Endpoint, c.ModelName)
	body, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodPost, url,
		map[string]interface{}{"instances": [][]float64{req.Instance}}, "kserve v1 explain")
	if err != nil {
		return nil, err
	}
	return parseExplainResponse(body)
}

// Health 实现 core.MLService。V1 使用 GET /v1/models/{model_name}，V2 使用 GET /v2/models/{model_name}/ready。
func (c *KServeClient) Health(ctx context.Context) error {
	url := fmt.Sprintf("%s/v1/models/%s", c.Endpoint, c.ModelName)
	if c.Protocol != KServeV1 {
		url = c.v2ModelURL() + "/ready"
	}
	_, err := doJSON(ctx, c.httpClient, c.Auth, http.MethodGet, url, nil, "kserve health")
	return err
}

// Close 实现 core.MLService。
func (c *KServeClient) Close(ctx context.Context) error {
	c.httpClient.CloseIdleConnections()
	return nil
}

var (
	_ core.MLService = (*KServeClient)(nil)
	_ core.Explainer = (*KServeClient)(nil)
)
