package feature

import (
	"fmt"
	"strings"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/pkg/conv"
)

// FallbackFunc 在类别值未命中编码表、回退到默认类别时被调用（只用于日志/指标，不影响结果）
type FallbackFunc func(column, value, fallback string)

// AssembleOption 组装选项
type AssembleOption func(*assembleOptions)

type assembleOptions struct {
	onFallback FallbackFunc
}

// WithFallbackHook 设置编码回退回调
func WithFallbackHook(fn FallbackFunc) AssembleOption {
	return func(o *assembleOptions) {
		o.onFallback = fn
	}
}

// isAbsent nil 与缺失等价
func isAbsent(record core.InputRecord, name string) bool {
	v, ok := record[name]
	return !ok || v == nil
}

// Missing 返回记录中缺失的全部必填列（按 schema 顺序），不会只报第一个。
func Missing(schema *Schema, record core.InputRecord) []string {
	var missing []string
	for _, c := range schema.Columns {
		if c.Required() && isAbsent(record, c.Name) {
			missing = append(missing, c.Name)
		}
	}
	return missing
}

// resolve 返回列的有效原始值：缺失或 nil 时使用默认值；
// 带默认值的类别列遇到空字符串同样使用默认值。
func resolve(c Column, record core.InputRecord) (any, bool) {
	if isAbsent(record, c.Name) {
		return c.Default, c.Default != nil
	}
	v := record[c.Name]
	if c.Type == Categorical && c.Default != nil {
		if s, ok := v.(string); ok && strings.TrimSpace(s) == "" {
			return c.Default, true
		}
	}
	return v, true
}

// Assemble 把松散类型的输入记录转换为按 schema 顺序排列的特征向量。
//
//   - 类别列：原始值去空白、小写后编码；未见过的类别静默回退（不是错误）
//   - 数值列：数字、数字字符串、bool 直接转换
//   - 布尔列：映射为 0.0/1.0
//
// 缺少必填列或值类型无法转换时返回 SCHEMA_ERROR。纯函数：相同输入得到相同向量，长度恒为 |schema|。
func Assemble(schema *Schema, registry *Registry, record core.InputRecord, opts ...AssembleOption) (core.FeatureVector, error) {
	var o assembleOptions
	for _, opt := range opts {
		opt(&o)
	}

	if missing := Missing(schema, record); len(missing) > 0 {
		return nil, core.NewSchemaError(missing, schema.Len(), len(record))
	}

	vector := make(core.FeatureVector, schema.Len())
	var violations []string
	for i, c := range schema.Columns {
		raw, _ := resolve(c, record)
		switch c.Type {
		case Categorical:
			enc, ok := registry.Get(c.Encoder)
			if !ok {
				return nil, core.NewDomainError(core.ModuleFeature, core.ErrorCodeInternalError,
					fmt.Sprintf("encoder %q for column %q is not loaded", c.Encoder, c.Name))
			}
			s, ok := conv.ToString(raw)
			if !ok {
				violations = append(violations, fmt.Sprintf("%s: expected a string, got %T", c.Name, raw))
				continue
			}
			normalized := strings.ToLower(strings.TrimSpace(s))
			code, fellBack := enc.Encode(normalized)
			if fellBack && o.onFallback != nil {
				o.onFallback(c.Name, normalized, enc.FallbackClass())
			}
			vector[i] = float64(code)
		case Boolean:
			b, ok := conv.ToBool(raw)
			if !ok {
				violations = append(violations, fmt.Sprintf("%s: expected a boolean, got %v", c.Name, raw))
				continue
			}
			if b {
				vector[i] = 1
			}
		default:
			f, ok := conv.ParseFloat64(raw)
			if !ok {
				violations = append(violations, fmt.Sprintf("%s: expected a number, got %v", c.Name, raw))
				continue
			}
			vector[i] = f
		}
	}
	if len(violations) > 0 {
		return nil, newViolationError(violations)
	}
	return vector, nil
}

// CheckRules 执行各列的 CEL 校验规则，返回所有未通过的列（不短路）。
// 缺失且无默认值的列跳过（由 Missing 负责报告）。
func CheckRules(schema *Schema, record core.InputRecord) error {
	var violations []string
	for _, c := range schema.Columns {
		if c.Rule == nil {
			continue
		}
		raw, ok := resolve(c, record)
		if !ok {
			continue
		}
		var value float64
		switch c.Type {
		case Boolean:
			if b, ok := conv.ToBool(raw); ok && b {
				value = 1
			}
		case Numeric:
			value, _ = conv.ParseFloat64(raw)
		}
		passed, err := c.Rule.Evaluate(value, raw, record)
		if err != nil {
			violations = append(violations, fmt.Sprintf("%s: %v", c.Name, err))
			continue
		}
		if !passed {
			violations = append(violations, fmt.Sprintf("%s: violates rule %q", c.Name, c.Rule.Expr))
		}
	}
	if len(violations) > 0 {
		return newViolationError(violations)
	}
	return nil
}

func newViolationError(violations []string) *core.DomainError {
	err := core.NewDomainError(core.ModuleFeature, core.ErrorCodeSchema,
		"invalid feature values: "+strings.Join(violations, "; "))
	err.Violations = violations
	return err
}
