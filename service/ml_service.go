package service

import (
	"net/http"
	"time"
)

// ServiceType 服务类型
type ServiceType string

const (
	ServiceTypeTFServing  ServiceType = "tf_serving"  // TensorFlow Serving（REST）
	ServiceTypeKServe     ServiceType = "kserve"      // KServe V1/V2
	ServiceTypeTorchServe ServiceType = "torch_serve" // TorchServe
	ServiceTypeRPC        ServiceType = "rpc"         // 自定义 JSON 推理服务
)

// ServiceConfig 服务配置，可直接从用例 YAML 的 service 段解析。
//
// 示例：
//
//	service:
//	  type: kserve
//	  endpoint: http://stress-model:8080
//	  model_name: stress
//	  protocol: v1
//	  timeout: 5
type ServiceConfig struct {
	// Type 服务类型
	Type ServiceType `yaml:"type" json:"type"`

	// Endpoint 服务端点
	// TF Serving: "http://localhost:8501"
	// KServe: "http://localhost:8080"
	// TorchServe: "http://localhost:8080"
	// RPC: "http://localhost:8080/predict"
	Endpoint string `yaml:"endpoint" json:"endpoint"`

	// ExplainEndpoint 归因端点（仅 RPC，可选）
	ExplainEndpoint string `yaml:"explain_endpoint" json:"explain_endpoint"`

	// HealthEndpoint 健康检查端点（仅 RPC，可选）
	HealthEndpoint string `yaml:"health_endpoint" json:"health_endpoint"`

	// ModelName 模型名称
	ModelName string `yaml:"model_name" json:"model_name"`

	// ModelVersion 模型版本
	ModelVersion string `yaml:"model_version" json:"model_version"`

	// Protocol 协议版本（仅 KServe："v1" / "v2"）
	Protocol string `yaml:"protocol" json:"protocol"`

	// InputName / OutputName 张量名（KServe V2 使用）
	InputName  string `yaml:"input_name" json:"input_name"`
	OutputName string `yaml:"output_name" json:"output_name"`

	// SignatureName 签名名称（TF Serving 使用）
	SignatureName string `yaml:"signature_name" json:"signature_name"`

	// Timeout 超时时间（秒）
	Timeout int `yaml:"timeout" json:"timeout"`

	// Auth 认证信息（可选）
	Auth *AuthConfig `yaml:"auth" json:"auth"`

	// Params 额外参数
	Params map[string]interface{} `yaml:"params" json:"params"`
}

// TimeoutDuration 返回超时时长，未配置时为 30 秒
func (c *ServiceConfig) TimeoutDuration() time.Duration {
	if c.Timeout <= 0 {
		return 30 * time.Second
	}
	return time.Duration(c.Timeout) * time.Second
}

// AuthConfig 认证配置
type AuthConfig struct {
	Type     string `yaml:"type" json:"type"` // "basic", "bearer", "api_key"
	Username string `yaml:"username" json:"username"`
	Password string `yaml:"password" json:"password"`
	Token    string `yaml:"token" json:"token"`
	APIKey   string `yaml:"api_key" json:"api_key"`
}

// apply 添加认证信息到 HTTP 请求
func (a *AuthConfig) apply(req *http.Request) {
	if a == nil {
		return
	}
	switch a.Type {
	case "basic":
		req.SetBasicAuth(a.Username, a.Password)
	case "bearer":
		req.Header.Set("Authorization", "Bearer "+a.Token)
	case "api_key":
		req.Header.Set("X-API-Key", a.APIKey)
	}
}
