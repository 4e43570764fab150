// Package decode 把推理适配器的 RawOutput 映射为领域结果（PredictionResult）。
//
// 每种策略是一个纯函数式的解码器，同一输入总是得到同一结果：
//   - argmax：概率向量 -> 档位标签 + 概率
//   - clamp：标量 -> 四舍五入（远离零）-> 截断到 [lo, hi] -> 档位标签，概率固定为 0
//   - level：向量走 argmax，标量走 clamp（适配输出形态不固定的模型）
//   - roundtrip：标量 -> 取整 -> 标签编码器逆映射
//   - score：回归分数直通
//   - topk：置信度向量 -> 按置信度降序的前 K 个标签
package decode

import (
	"fmt"
	"math"
	"sort"
	"strings"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/feature"
)

// Policy 解码策略
type Policy string

const (
	PolicyArgmax    Policy = "argmax"
	PolicyClamp     Policy = "clamp"
	PolicyLevel     Policy = "level"
	PolicyRoundTrip Policy = "roundtrip"
	PolicyScore     Policy = "score"
	PolicyTopK      Policy = "topk"
)

// Decoder 输出解码器。k 只对 topk 生效，其余策略忽略。
type Decoder interface {
	Policy() Policy
	Decode(raw core.RawOutput, k int) (*core.PredictionResult, error)
}

// Levels 有序档位表：索引即档位编号
type Levels struct {
	Labels []string
	Lower  []string
}

// DefaultLevels 默认四档：Low / Medium / High / Critical
var DefaultLevels = NewLevels([]string{"Low", "Medium", "High", "Critical"})

// NewLevels 由标签构造档位表，小写形式自动生成
func NewLevels(labels []string) Levels {
	lower := make([]string, len(labels))
	for i, l := range labels {
		lower[i] = strings.ToLower(l)
	}
	return Levels{Labels: labels, Lower: lower}
}

// Len 档位数
func (l Levels) Len() int { return len(l.Labels) }

func (l Levels) fill(r *core.PredictionResult, idx int) error {
	if idx < 0 || idx >= len(l.Labels) {
		return core.NewInferenceError("level index %d out of range [0, %d)", idx, len(l.Labels))
	}
	r.Index = idx
	r.HasIndex = true
	r.Label = l.Labels[idx]
	r.LabelLower = l.Lower[idx]
	return nil
}

// roundHalfAway 四舍五入，.5 远离零（math.Round 即此语义）
func roundHalfAway(x float64) int {
	return int(math.Round(x))
}

func requireScalar(p Policy, raw core.RawOutput) error {
	if raw.Kind != core.RawScalar {
		return core.NewInferenceError("%s decoder expects a scalar output, got shape %s", p, raw.Shape())
	}
	if math.IsNaN(raw.Scalar) || math.IsInf(raw.Scalar, 0) {
		return core.NewInferenceError("%s decoder got a non-finite output", p)
	}
	return nil
}

func requireVector(p Policy, raw core.RawOutput) error {
	if raw.Kind != core.RawVector {
		return core.NewInferenceError("%s decoder expects a vector output, got shape %s", p, raw.Shape())
	}
	if len(raw.Vector) == 0 {
		return core.NewInferenceError("unexpected model output shape: (0,)")
	}
	for i, v := range raw.Vector {
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return core.NewInferenceError("%s decoder got a non-finite output at index %d", p, i)
		}
	}
	return nil
}

// Argmax 取最大概率的档位，并列时取最小索引
type Argmax struct {
	Levels Levels
}

func (d *Argmax) Policy() Policy { return PolicyArgmax }

func (d *Argmax) Decode(raw core.RawOutput, _ int) (*core.PredictionResult, error) {
	if err := requireVector(PolicyArgmax, raw); err != nil {
		return nil, err
	}
	if len(raw.Vector) != d.Levels.Len() {
		return nil, core.NewInferenceError("unexpected model output shape: %s want (%d,)", raw.Shape(), d.Levels.Len())
	}
	best := 0
	for i, v := range raw.Vector {
		if v > raw.Vector[best] {
			best = i
		}
	}
	dist := append([]float64(nil), raw.Vector...)
	r := &core.PredictionResult{
		Kind:         core.ResultDistribution,
		Probability:  raw.Vector[best],
		Distribution: dist,
		Raw:          dist,
	}
	if err := d.Levels.fill(r, best); err != nil {
		return nil, err
	}
	return r, nil
}

// Clamp 标量取整后截断到 [Lo, Hi]，概率报告为 0
type Clamp struct {
	Levels Levels
	Lo, Hi int
}

func (d *Clamp) Policy() Policy { return PolicyClamp }

func (d *Clamp) Decode(raw core.RawOutput, _ int) (*core.PredictionResult, error) {
	if err := requireScalar(PolicyClamp, raw); err != nil {
		return nil, err
	}
	// 先在浮点域截断，超出 int 范围的输出不会溢出回绕
	idx := int(math.Max(float64(d.Lo), math.Min(float64(d.Hi), math.Round(raw.Scalar))))
	r := &core.PredictionResult{
		Kind:        core.ResultLabel,
		Probability: 0,
		Raw:         []float64{raw.Scalar},
	}
	if err := d.Levels.fill(r, idx); err != nil {
		return nil, err
	}
	return r, nil
}

// Level 按输出形态分派：向量 -> Argmax，标量 -> Clamp
type Level struct {
	Argmax Argmax
	Clamp  Clamp
}

func (d *Level) Policy() Policy { return PolicyLevel }

func (d *Level) Decode(raw core.RawOutput, k int) (*core.PredictionResult, error) {
	if raw.Kind == core.RawVector {
		return d.Argmax.Decode(raw, k)
	}
	return d.Clamp.Decode(raw, k)
}

// RoundTrip 标量取整后经标签编码器逆映射
type RoundTrip struct {
	Encoder *feature.LabelEncoder
}

func (d *RoundTrip) Policy() Policy { return PolicyRoundTrip }

func (d *RoundTrip) Decode(raw core.RawOutput, _ int) (*core.PredictionResult, error) {
	if err := requireScalar(PolicyRoundTrip, raw); err != nil {
		return nil, err
	}
	code := roundHalfAway(raw.Scalar)
	label, err := d.Encoder.Inverse(code)
	if err != nil {
		return nil, core.NewInferenceError("model output %v does not map to a known label: %v", raw.Scalar, err)
	}
	return &core.PredictionResult{
		Kind:       core.ResultLabel,
		Index:      code,
		HasIndex:   true,
		Label:      label,
		LabelLower: strings.ToLower(label),
		Raw:        []float64{raw.Scalar},
	}, nil
}

// Score 回归分数直通
type Score struct{}

func (d *Score) Policy() Policy { return PolicyScore }

func (d *Score) Decode(raw core.RawOutput, _ int) (*core.PredictionResult, error) {
	if err := requireScalar(PolicyScore, raw); err != nil {
		return nil, err
	}
	return &core.PredictionResult{
		Kind:  core.ResultScore,
		Score: raw.Scalar,
		Raw:   []float64{raw.Scalar},
	}, nil
}

// TopK 置信度排名。Scale 为置信度放大倍数（100 表示百分比）。
type TopK struct {
	Labels   []string
	Scale    float64
	DefaultK int
}

func (d *TopK) Policy() Policy { return PolicyTopK }

func (d *TopK) Decode(raw core.RawOutput, k int) (*core.PredictionResult, error) {
	if err := requireVector(PolicyTopK, raw); err != nil {
		return nil, err
	}
	n := len(raw.Vector)
	if n != len(d.Labels) {
		return nil, core.NewInferenceError("unexpected model output shape: %s want (%d,)", raw.Shape(), len(d.Labels))
	}
	if k <= 0 {
		k = d.DefaultK
	}
	k = max(1, min(k, n))

	order := make([]int, n)
	for i := range order {
		order[i] = i
	}
	sort.SliceStable(order, func(a, b int) bool {
		return raw.Vector[order[a]] > raw.Vector[order[b]]
	})

	top := make([]core.Ranked, k)
	for i := 0; i < k; i++ {
		idx := order[i]
		top[i] = core.Ranked{Label: d.Labels[idx], Confidence: raw.Vector[idx] * d.Scale}
	}
	return &core.PredictionResult{
		Kind:     core.ResultRanking,
		Index:    order[0],
		HasIndex: true,
		Label:    top[0].Label,
		TopK:     top,
		Raw:      append([]float64(nil), raw.Vector...),
	}, nil
}

// Options 构造解码器的参数（来自用例配置）
type Options struct {
	Levels   []string
	Lo, Hi   *int
	Encoder  *feature.LabelEncoder
	Labels   []string
	Scale    float64
	DefaultK int
}

// New 按策略构造解码器，参数不满足策略要求时返回错误
func New(policy Policy, opts Options) (Decoder, error) {
	levels := DefaultLevels
	if len(opts.Levels) > 0 {
		levels = NewLevels(opts.Levels)
	}
	clamp := func() (Clamp, error) {
		lo, hi := 0, levels.Len()-1
		if opts.Lo != nil {
			lo = *opts.Lo
		}
		if opts.Hi != nil {
			hi = *opts.Hi
		}
		if lo > hi || lo < 0 || hi >= levels.Len() {
			return Clamp{}, fmt.Errorf("clamp range [%d, %d] does not fit %d levels", lo, hi, levels.Len())
		}
		return Clamp{Levels: levels, Lo: lo, Hi: hi}, nil
	}

	switch policy {
	case PolicyArgmax:
		return &Argmax{Levels: levels}, nil
	case PolicyClamp:
		c, err := clamp()
		if err != nil {
			return nil, err
		}
		return &c, nil
	case PolicyLevel:
		c, err := clamp()
		if err != nil {
			return nil, err
		}
		return &Level{Argmax: Argmax{Levels: levels}, Clamp: c}, nil
	case PolicyRoundTrip:
		if opts.Encoder == nil {
			return nil, fmt.Errorf("roundtrip decoder requires a label encoder")
		}
		return &RoundTrip{Encoder: opts.Encoder}, nil
	case PolicyScore:
		return &Score{}, nil
	case PolicyTopK:
		if len(opts.Labels) == 0 {
			return nil, fmt.Errorf("topk decoder requires labels")
		}
		scale := opts.Scale
		if scale == 0 {
			scale = 100
		}
		k := opts.DefaultK
		if k <= 0 {
			k = 3
		}
		return &TopK{Labels: opts.Labels, Scale: scale, DefaultK: k}, nil
	default:
		return nil, fmt.Errorf("unknown decode policy %q", policy)
	}
}

var (
	_ Decoder = (*Argmax)(nil)
	_ Decoder = (*Clamp)(nil)
	_ Decoder = (*Level)(nil)
	_ Decoder = (*RoundTrip)(nil)
	_ Decoder = (*Score)(nil)
	_ Decoder = (*TopK)(nil)
)
