// Package infer 把异构的外部模型运行时统一为 "向量进 -> RawOutput 出" 的调用。
package infer

import (
	"context"
	"fmt"

	"github.com/rushteam/inferkit/core"
)

// Kind 适配器类型（封闭集合）
type Kind string

const (
	// TreeEnsemble 树集成模型：返回类别索引或回归标量
	TreeEnsemble Kind = "tree_ensemble"
	// DenseNetwork 稠密神经网络：返回固定宽度的概率向量
	DenseNetwork Kind = "dense_network"
	// QuantizedInterpreter 量化解释器（图像模型）：输入预处理后的张量，返回置信度向量
	QuantizedInterpreter Kind = "quantized_interpreter"
)

// ParseKind 校验适配器类型
func ParseKind(s string) (Kind, error) {
	switch k := Kind(s); k {
	case TreeEnsemble, DenseNetwork, QuantizedInterpreter:
		return k, nil
	default:
		return "", fmt.Errorf("unknown adapter kind %q", s)
	}
}

// Adapter 推理适配器：对外部模型做一次推理，把输出归一化为 Scalar | Vector。
//
// 输出形状与期望不符时返回 INFERENCE_ERROR（带观察到的形状），不做静默截断或补齐，
// 否则会掩盖模型与制品之间的不匹配。
type Adapter struct {
	kind  Kind
	svc   core.MLService
	arity int
	model string
}

// Option 适配器选项
type Option func(*Adapter)

// WithArity 设置期望的输出宽度（DenseNetwork / QuantizedInterpreter）；0 表示不校验
func WithArity(n int) Option {
	return func(a *Adapter) {
		a.arity = n
	}
}

// WithModelName 设置请求中携带的模型名
func WithModelName(name string) Option {
	return func(a *Adapter) {
		a.model = name
	}
}

// New 创建适配器
func New(kind Kind, svc core.MLService, opts ...Option) (*Adapter, error) {
	if _, err := ParseKind(string(kind)); err != nil {
		return nil, err
	}
	if svc == nil {
		return nil, fmt.Errorf("model service is required")
	}
	a := &Adapter{kind: kind, svc: svc}
	for _, opt := range opts {
		opt(a)
	}
	if a.arity < 0 {
		return nil, fmt.Errorf("arity must be >= 0, got %d", a.arity)
	}
	return a, nil
}

// Kind 返回适配器类型
func (a *Adapter) Kind() Kind { return a.kind }

// Arity 返回期望的输出宽度
func (a *Adapter) Arity() int { return a.arity }

// Service 返回底层模型服务
func (a *Adapter) Service() core.MLService { return a.svc }

// Infer 对单个特征向量推理（TreeEnsemble / DenseNetwork）。
func (a *Adapter) Infer(ctx context.Context, vector core.FeatureVector) (core.RawOutput, error) {
	if a.kind == QuantizedInterpreter {
		return core.RawOutput{}, fmt.Errorf("%s adapter requires a tensor input", a.kind)
	}
	return a.call(ctx, &core.MLPredictRequest{
		Instances: [][]float64{vector},
		ModelName: a.model,
	})
}

// InferTensor 对预处理后的张量推理（QuantizedInterpreter）。
func (a *Adapter) InferTensor(ctx context.Context, tensor *core.Tensor) (core.RawOutput, error) {
	if a.kind != QuantizedInterpreter {
		return core.RawOutput{}, fmt.Errorf("%s adapter requires a feature vector input", a.kind)
	}
	return a.call(ctx, &core.MLPredictRequest{
		Tensor:    tensor,
		ModelName: a.model,
	})
}

func (a *Adapter) call(ctx context.Context, req *core.MLPredictRequest) (core.RawOutput, error) {
	resp, err := a.svc.Predict(ctx, req)
	if err != nil {
		if core.IsDomainError(err) {
			return core.RawOutput{}, err
		}
		return core.RawOutput{}, core.WrapDomainError(core.ModuleInfer, core.ErrorCodeInference, "model call failed", err)
	}
	if resp == nil || len(resp.Outputs) == 0 {
		return core.RawOutput{}, core.NewInferenceError("model returned no output")
	}
	if len(resp.Outputs) != 1 {
		return core.RawOutput{}, core.NewInferenceError("unexpected model batch size: got %d outputs for 1 instance", len(resp.Outputs))
	}
	return a.normalize(resp.Outputs[0])
}

// normalize 按适配器类型把单个实例的输出归一化为两态结果并校验形状。
func (a *Adapter) normalize(row []float64) (core.RawOutput, error) {
	if len(row) == 0 {
		return core.RawOutput{}, core.NewInferenceError("unexpected model output shape: (0,)")
	}
	switch a.kind {
	case TreeEnsemble:
		if len(row) != 1 {
			return core.RawOutput{}, core.NewInferenceError("unexpected model output shape: (%d,) want (1,)", len(row))
		}
		return core.ScalarOutput(row[0]), nil
	default:
		if a.arity > 0 && len(row) != a.arity {
			return core.RawOutput{}, core.NewInferenceError("unexpected model output shape: (%d,) want (%d,)", len(row), a.arity)
		}
		if a.arity == 1 {
			return core.ScalarOutput(row[0]), nil
		}
		out := make([]float64, len(row))
		copy(out, row)
		return core.VectorOutput(out), nil
	}
}
