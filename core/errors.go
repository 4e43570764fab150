package core

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
)

// DomainError 是领域层的统一错误类型。
//
// 设计原则：
//   - 所有领域层错误都使用此类型
//   - 提供错误代码（Code）和消息（Message）
//   - 支持错误检查函数（IsXXX）
//   - 传输层只在边界处把 Code 映射为 HTTP 状态码
//
// 使用场景：
//   - 请求校验错误：SCHEMA_ERROR, INVALID_INPUT
//   - 推理错误：INFERENCE_ERROR, UNAVAILABLE
//   - 启动错误：ARTIFACT_LOAD_ERROR（进程拒绝启动）
type DomainError struct {
	Code    string // 错误代码（如 "SCHEMA_ERROR", "INFERENCE_ERROR"）
	Message string // 错误消息（面向调用方，可读）
	Module  string // 模块名称（如 "feature", "infer", "artifact"）

	// Missing 缺失的必填列（仅 SCHEMA_ERROR）
	Missing []string

	// Violations 未通过校验规则的列（仅 SCHEMA_ERROR）
	Violations []string

	// ExpectedCount / ReceivedCount 期望与实际收到的字段数（仅 SCHEMA_ERROR）
	ExpectedCount int
	ReceivedCount int

	// Err 底层错误（可选）
	Err error
}

func (e *DomainError) Error() string {
	if e.Err != nil && !strings.Contains(e.Message, e.Err.Error()) {
		return e.Message + ": " + e.Err.Error()
	}
	return e.Message
}

func (e *DomainError) Unwrap() error {
	return e.Err
}

// IsDomainError 检查错误是否为 DomainError 类型
func IsDomainError(err error) bool {
	return GetDomainError(err) != nil
}

// GetDomainError 获取 DomainError（沿 %w 链查找），如果不是则返回 nil
func GetDomainError(err error) *DomainError {
	if err == nil {
		return nil
	}
	var domainErr *DomainError
	if errors.As(err, &domainErr) {
		return domainErr
	}
	return nil
}

// NewDomainError 创建新的领域错误
func NewDomainError(module, code, message string) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
	}
}

// WrapDomainError 创建带底层错误的领域错误
func WrapDomainError(module, code, message string, err error) *DomainError {
	return &DomainError{
		Module:  module,
		Code:    code,
		Message: message,
		Err:     err,
	}
}

// 错误代码常量
const (
	// 通用错误代码
	ErrorCodeNotFound      = "NOT_FOUND"      // 资源不存在
	ErrorCodeNotSupported  = "NOT_SUPPORTED"  // 操作不支持
	ErrorCodeUnavailable   = "UNAVAILABLE"    // 服务不可用
	ErrorCodeInvalidInput  = "INVALID_INPUT"  // 输入无效
	ErrorCodeInternalError = "INTERNAL_ERROR" // 内部错误

	// 推理管道错误代码
	ErrorCodeSchema       = "SCHEMA_ERROR"        // 请求缺少必填列或未通过列规则
	ErrorCodeInference    = "INFERENCE_ERROR"     // 模型输出形状与期望不符
	ErrorCodeArtifactLoad = "ARTIFACT_LOAD_ERROR" // 启动时制品缺失或格式错误
)

// 模块名称常量
const (
	ModuleStore    = "store"    // 存储模块
	ModuleFeature  = "feature"  // 特征模块
	ModuleService  = "service"  // 服务模块
	ModuleArtifact = "artifact" // 制品模块
	ModuleInfer    = "infer"    // 推理适配模块
	ModuleDecode   = "decode"   // 输出解码模块
	ModuleExplain  = "explain"  // 可解释性模块
	ModuleImage    = "image"    // 图像预处理模块
	ModulePipeline = "pipeline" // 编排模块
)

// NewSchemaError 创建缺失列错误，missing 为全部缺失的必填列。
func NewSchemaError(missing []string, expected, received int) *DomainError {
	return &DomainError{
		Module:        ModuleFeature,
		Code:          ErrorCodeSchema,
		Message:       "columns are missing",
		Missing:       missing,
		ExpectedCount: expected,
		ReceivedCount: received,
	}
}

// NewInferenceError 创建推理错误，message 中应包含观察到的输出形状。
func NewInferenceError(format string, args ...any) *DomainError {
	return NewDomainError(ModuleInfer, ErrorCodeInference, fmt.Sprintf(format, args...))
}

// NewArtifactLoadError 创建制品加载错误，path 为出错的制品路径。
func NewArtifactLoadError(path string, err error) *DomainError {
	return WrapDomainError(ModuleArtifact, ErrorCodeArtifactLoad, fmt.Sprintf("failed to load artifact %q", path), err)
}

// 通用错误检查函数

func hasCode(err error, code string) bool {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code == code
	}
	return false
}

// IsNotFound 检查错误是否为 NOT_FOUND
func IsNotFound(err error) bool { return hasCode(err, ErrorCodeNotFound) }

// IsNotSupported 检查错误是否为 NOT_SUPPORTED
func IsNotSupported(err error) bool { return hasCode(err, ErrorCodeNotSupported) }

// IsUnavailable 检查错误是否为 UNAVAILABLE
func IsUnavailable(err error) bool { return hasCode(err, ErrorCodeUnavailable) }

// IsInvalidInput 检查错误是否为 INVALID_INPUT
func IsInvalidInput(err error) bool { return hasCode(err, ErrorCodeInvalidInput) }

// IsSchemaError 检查错误是否为 SCHEMA_ERROR
func IsSchemaError(err error) bool { return hasCode(err, ErrorCodeSchema) }

// IsInferenceError 检查错误是否为 INFERENCE_ERROR
func IsInferenceError(err error) bool { return hasCode(err, ErrorCodeInference) }

// IsArtifactLoadError 检查错误是否为 ARTIFACT_LOAD_ERROR
func IsArtifactLoadError(err error) bool { return hasCode(err, ErrorCodeArtifactLoad) }

// ErrorKind 返回错误代码；非 DomainError 视为 INTERNAL_ERROR。
func ErrorKind(err error) string {
	if domainErr := GetDomainError(err); domainErr != nil {
		return domainErr.Code
	}
	return ErrorCodeInternalError
}

// HTTPStatus 把错误映射为 HTTP 状态码。
// 请求侧问题（缺列、规则不通过、输入无法解析）为 400，其余一律 500。
func HTTPStatus(err error) int {
	switch ErrorKind(err) {
	case ErrorCodeSchema, ErrorCodeInvalidInput:
		return http.StatusBadRequest
	case ErrorCodeNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}
