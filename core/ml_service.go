package core

import "context"

// MLService 是外部模型服务的领域接口。
//
// 设计原则：
//   - 定义在领域层（core），由基础设施层（service）实现
//   - 遵循依赖倒置原则：领域层定义接口，基础设施层实现接口
//   - 模型本身是不透明的制品，本仓库只负责一次推理调用，不实现任何模型内部逻辑
//
// 使用场景：
//   - 树集成模型（分类器 / 回归器）：返回类别索引或回归值
//   - 稠密神经网络：返回固定宽度的概率向量
//   - 量化解释器（图像分类）：输入 NHWC 张量，返回置信度向量
//
// 实现：
//   - service.TFServingClient 实现此接口
//   - service.KServeClient 实现此接口
//   - service.TorchServeClient 实现此接口
//   - service.RPCClient 实现此接口
type MLService interface {
	// Predict 批量预测
	Predict(ctx context.Context, req *MLPredictRequest) (*MLPredictResponse, error)

	// Health 健康检查（不得触发推理）
	Health(ctx context.Context) error

	// Close 关闭连接
	Close(ctx context.Context) error
}

// MLPredictRequest 预测请求
type MLPredictRequest struct {
	// Instances 特征实例列表（每个实例是一个特征向量）
	// 格式：[[f1, f2, f3, ...], [f1, f2, f3, ...], ...]
	Instances [][]float64

	// Features 特征字典列表（可选，与 Instances 二选一）
	// 格式：[{"feature1": 0.1, "feature2": 0.2}, ...]
	Features []map[string]float64

	// Tensor 稠密张量输入（可选，图像管道使用），与 Instances 二选一
	Tensor *Tensor

	// ModelName 模型名称（可选，如果服务支持多模型）
	ModelName string

	// ModelVersion 模型版本（可选）
	ModelVersion string

	// SignatureName 签名名称（可选，TF Serving 使用）
	SignatureName string

	// Params 额外参数（可选）
	Params map[string]interface{}
}

// BatchSize 返回请求中的实例数。
func (r *MLPredictRequest) BatchSize() int {
	switch {
	case r.Tensor != nil && len(r.Tensor.Shape) > 0:
		return r.Tensor.Shape[0]
	case len(r.Instances) > 0:
		return len(r.Instances)
	default:
		return len(r.Features)
	}
}

// MLPredictResponse 预测响应
type MLPredictResponse struct {
	// Outputs 每个实例的完整输出（与请求实例一一对应）
	// 标量模型每行长度为 1，概率模型每行长度为类别数
	Outputs [][]float64

	// Predictions 每个实例的首个输出（兼容只关心单值分数的调用方）
	Predictions []float64

	// ModelVersion 模型版本（如果服务返回）
	ModelVersion string
}

// NewMLPredictResponse 由逐实例输出构造响应，并填充 Predictions。
func NewMLPredictResponse(outputs [][]float64, version string) *MLPredictResponse {
	preds := make([]float64, 0, len(outputs))
	for _, row := range outputs {
		if len(row) > 0 {
			preds = append(preds, row[0])
		}
	}
	return &MLPredictResponse{
		Outputs:      outputs,
		Predictions:  preds,
		ModelVersion: version,
	}
}

// Explainer 是特征归因服务的领域接口（如 KServe explainer、自定义 SHAP 服务）。
//
// 归因算法本身在外部完成，这里只消费每个特征的影响值。
type Explainer interface {
	// Explain 返回单个实例的逐特征影响值
	Explain(ctx context.Context, req *ExplainRequest) (*ExplainResponse, error)
}

// ExplainRequest 归因请求
type ExplainRequest struct {
	// Instance 已组装好的特征向量
	Instance []float64

	// FeatureNames 特征名（可选，部分服务需要）
	FeatureNames []string

	// ModelName 模型名称（可选）
	ModelName string
}

// ExplainResponse 归因响应
type ExplainResponse struct {
	// Impacts 逐特征影响值；长度可能与特征名不一致（如 one-hot 展开），由调用方降级处理
	Impacts []float64

	// FeatureNames 服务端返回的特征名（可选，优先于本地配置）
	FeatureNames []string
}
