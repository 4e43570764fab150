package server

import (
	"github.com/gin-gonic/gin"

	"github.com/rushteam/inferkit/core"
)

// ErrorBody 错误响应体；调用方只看到错误类型与可读信息，不含堆栈
type ErrorBody struct {
	Detail        string   `json:"detail"`
	Kind          string   `json:"kind"`
	Missing       []string `json:"missing,omitempty"`
	Violations    []string `json:"violations,omitempty"`
	ExpectedCount *int     `json:"expected_count,omitempty"`
	ReceivedCount *int     `json:"received_count,omitempty"`
}

// NewErrorBody 把错误转换为响应体。非 DomainError 的内部信息不回传调用方。
func NewErrorBody(err error) ErrorBody {
	domainErr := core.GetDomainError(err)
	if domainErr == nil {
		return ErrorBody{Detail: "internal server error", Kind: core.ErrorCodeInternalError}
	}
	body := ErrorBody{
		Detail:     domainErr.Error(),
		Kind:       domainErr.Code,
		Missing:    domainErr.Missing,
		Violations: domainErr.Violations,
	}
	if len(domainErr.Missing) > 0 {
		expected, received := domainErr.ExpectedCount, domainErr.ReceivedCount
		body.ExpectedCount = &expected
		body.ReceivedCount = &received
	}
	return body
}

// abortWithError 写入错误响应，并把原始错误挂到 gin 上下文供访问日志使用
func abortWithError(c *gin.Context, err error) int {
	status := core.HTTPStatus(err)
	_ = c.Error(err)
	c.AbortWithStatusJSON(status, NewErrorBody(err))
	return status
}

func invalidInput(message string, err error) error {
	if err == nil {
		return core.NewDomainError(core.ModulePipeline, core.ErrorCodeInvalidInput, message)
	}
	return core.WrapDomainError(core.ModulePipeline, core.ErrorCodeInvalidInput, message, err)
}

