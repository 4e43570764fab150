package core

// PredictContext 承载单次预测请求的全部中间状态，贯穿整个 Pipeline 透传。
//
// 每个请求独立构造，节点按顺序读写其中的字段：
//
//	Validate -> Assemble -> Infer -> Decode -> (Explain)
//
// 请求之间不共享 PredictContext，因此不需要加锁。
type PredictContext struct {
	// RequestID 请求 ID（日志 / 追踪）
	RequestID string

	// UseCase 用例名称
	UseCase string

	// Record 表格类请求的原始输入
	Record InputRecord

	// Image 图像类请求的原始字节
	Image []byte

	// TopK 请求指定的 K（归因 top_k 或图像 top-k），0 表示使用用例默认值
	TopK int

	// Vector 组装后的特征向量（assemble 节点写入）
	Vector FeatureVector

	// Tensor 图像预处理后的张量（preprocess 节点写入）
	Tensor *Tensor

	// Raw 推理适配器的归一化输出（infer 节点写入）
	Raw *RawOutput

	// Result 解码结果（decode / explain 节点写入）
	Result *PredictionResult

	// Params 请求级附加参数
	Params map[string]any
}

// NewPredictContext 创建表格类请求上下文
func NewPredictContext(useCase string, record InputRecord) *PredictContext {
	if record == nil {
		record = InputRecord{}
	}
	return &PredictContext{
		UseCase: useCase,
		Record:  record,
		Params:  make(map[string]any),
	}
}

// GetParam 读取请求级参数
func (pctx *PredictContext) GetParam(key string) (any, bool) {
	if pctx.Params == nil {
		return nil, false
	}
	v, ok := pctx.Params[key]
	return v, ok
}

// PutParam 写入请求级参数
func (pctx *PredictContext) PutParam(key string, value any) {
	if pctx.Params == nil {
		pctx.Params = make(map[string]any)
	}
	pctx.Params[key] = value
}
