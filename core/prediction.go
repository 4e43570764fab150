package core

import "fmt"

// InputRecord 是单次请求的原始输入：特征名 -> 原始值（string / number / bool）。
// 由请求体构造，只被消费一次。
type InputRecord map[string]any

// FeatureVector 是按 schema 顺序组装好的数值特征向量，构造后不再修改。
type FeatureVector []float64

// Tensor 是稠密张量（行优先），图像管道中为 NHWC 布局 [1, H, W, 3]。
type Tensor struct {
	Shape []int
	Data  []float32
}

// Size 返回 Shape 各维乘积。
func (t *Tensor) Size() int {
	if t == nil || len(t.Shape) == 0 {
		return 0
	}
	n := 1
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// RawOutputKind 模型原始输出的形态
type RawOutputKind int

const (
	RawScalar RawOutputKind = iota // 单个数值（类别索引或回归值）
	RawVector                      // 固定宽度的数值向量（概率 / 置信度）
)

func (k RawOutputKind) String() string {
	if k == RawScalar {
		return "scalar"
	}
	return "vector"
}

// RawOutput 是推理适配器归一化后的两态输出：Scalar(float) | Vector([]float)。
type RawOutput struct {
	Kind   RawOutputKind
	Scalar float64
	Vector []float64
}

// ScalarOutput 构造标量输出
func ScalarOutput(v float64) RawOutput {
	return RawOutput{Kind: RawScalar, Scalar: v}
}

// VectorOutput 构造向量输出
func VectorOutput(v []float64) RawOutput {
	return RawOutput{Kind: RawVector, Vector: v}
}

// Shape 以 "(n,)" 形式描述输出形状，用于错误信息。
func (o RawOutput) Shape() string {
	if o.Kind == RawScalar {
		return "()"
	}
	return fmt.Sprintf("(%d,)", len(o.Vector))
}

// Values 以切片形式返回输出值（标量为长度 1）。
func (o RawOutput) Values() []float64 {
	if o.Kind == RawScalar {
		return []float64{o.Scalar}
	}
	return o.Vector
}

// ResultKind 预测结果的形态
type ResultKind string

const (
	ResultDistribution ResultKind = "distribution" // 概率分布 + argmax 标签
	ResultLabel        ResultKind = "label"        // 单个标签（取整 / 逆编码得到）
	ResultScore        ResultKind = "score"        // 回归分数
	ResultRanking      ResultKind = "ranking"      // Top-K 排名
)

// PredictionResult 是解码后的领域结果（带标签的联合体），由 Kind 决定哪些字段有效。
//
//   - distribution：Index / Label / LabelLower / Probability / Distribution
//   - label：Index（如来自固定档位表）/ Label / LabelLower / Probability（无分布时为 0）
//   - score：Score
//   - ranking：TopK（TopK[0] 即 top1）
//
// Raw 始终保留模型原始输出，Explanation 可选。
type PredictionResult struct {
	Kind         ResultKind
	Index        int
	HasIndex     bool
	Label        string
	LabelLower   string
	Probability  float64
	Score        float64
	Distribution []float64
	TopK         []Ranked
	Raw          []float64
	Explanation  *Explanation
}

// Top1 返回排名第一的条目（仅 ranking 结果）。
func (r *PredictionResult) Top1() (Ranked, bool) {
	if r == nil || len(r.TopK) == 0 {
		return Ranked{}, false
	}
	return r.TopK[0], true
}

// Ranked 是 Top-K 中的一项
type Ranked struct {
	Label      string  `json:"label"`
	Confidence float64 `json:"confidence"`
}

// Attribution 是单个特征的归因三元组
type Attribution struct {
	Feature string   `json:"feature"`
	Value   *float64 `json:"value,omitempty"`
	Impact  float64  `json:"impact"`
}

// Explanation 是可解释性后处理的结果。
// Factors 按 |impact| 降序并截断到 topK；Positive / Negative 保持 Factors 中的相对顺序。
type Explanation struct {
	Factors  []Attribution `json:"factors,omitempty"`
	Positive []Attribution `json:"top_positive_factors"`
	Negative []Attribution `json:"top_negative_factors"`
	Warning  string        `json:"warning,omitempty"`
}
