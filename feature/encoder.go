package feature

import (
	"fmt"
	"sort"
	"strings"

	"github.com/rushteam/inferkit/pkg/conv"
)

// LabelEncoder Label 编码（标签编码），类别 <-> 整数码。
//
// 由外部训练时拟合的已知类别构造，加载后只读，可被并发请求共享。
// 未见过的类别不报错，而是确定性地回退到 fallback 类别（默认：第一个已知类别）。
type LabelEncoder struct {
	classes  []string       // 按编码升序排列
	codes    map[string]int // 精确匹配
	folded   map[string]int // 去空白 + 小写后的匹配
	byCode   map[int]string
	fallback int
}

// NewLabelEncoder 由有序类别列表创建编码器，编码即下标。
// fallback 为空时使用第一个类别。
func NewLabelEncoder(classes []string, fallback string) (*LabelEncoder, error) {
	mapping := make(map[string]int, len(classes))
	for i, c := range classes {
		if _, dup := mapping[c]; dup {
			return nil, fmt.Errorf("duplicate class %q", c)
		}
		mapping[c] = i
	}
	return NewLabelEncoderFromMapping(mapping, fallback)
}

// NewLabelEncoderFromMapping 由 类别 -> 编码 的映射创建编码器（如 MOOD_MAP）。
// 编码不要求连续；fallback 为空时使用编码最小的类别。
func NewLabelEncoderFromMapping(mapping map[string]int, fallback string) (*LabelEncoder, error) {
	if len(mapping) == 0 {
		return nil, fmt.Errorf("encoder has no classes")
	}
	e := &LabelEncoder{
		codes:  make(map[string]int, len(mapping)),
		folded: make(map[string]int, len(mapping)),
		byCode: make(map[int]string, len(mapping)),
	}
	for class, code := range mapping {
		if prev, dup := e.byCode[code]; dup {
			return nil, fmt.Errorf("classes %q and %q share code %d", prev, class, code)
		}
		e.codes[class] = code
		e.byCode[code] = class
	}
	e.classes = make([]string, 0, len(mapping))
	for class := range mapping {
		e.classes = append(e.classes, class)
	}
	sort.Slice(e.classes, func(i, j int) bool { return mapping[e.classes[i]] < mapping[e.classes[j]] })

	// 折叠匹配只收录无歧义的类别，按编码顺序先到先得
	for _, class := range e.classes {
		key := normalize(class)
		if _, exists := e.folded[key]; !exists {
			e.folded[key] = mapping[class]
		}
	}

	e.fallback = mapping[e.classes[0]]
	if fallback != "" {
		code, ok := e.lookup(fallback)
		if !ok {
			return nil, fmt.Errorf("fallback class %q is not a known class", fallback)
		}
		e.fallback = code
	}
	return e, nil
}

func normalize(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

func (e *LabelEncoder) lookup(value string) (int, bool) {
	if code, ok := e.codes[value]; ok {
		return code, true
	}
	code, ok := e.folded[normalize(value)]
	return code, ok
}

// Encode 编码单个类别值。
// 先精确匹配，再做去空白 + 小写匹配；都未命中时返回 fallback 编码且 fellBack 为 true。
func (e *LabelEncoder) Encode(value string) (code int, fellBack bool) {
	if code, ok := e.lookup(value); ok {
		return code, false
	}
	return e.fallback, true
}

// Inverse 把编码还原为训练时的类别字符串
func (e *LabelEncoder) Inverse(code int) (string, error) {
	class, ok := e.byCode[code]
	if !ok {
		return "", fmt.Errorf("code %d is not a known class (known: %d classes)", code, len(e.classes))
	}
	return class, nil
}

// Classes 返回按编码升序排列的类别
func (e *LabelEncoder) Classes() []string {
	out := make([]string, len(e.classes))
	copy(out, e.classes)
	return out
}

// FallbackClass 返回回退类别
func (e *LabelEncoder) FallbackClass() string {
	return e.byCode[e.fallback]
}

// Len 返回类别数
func (e *LabelEncoder) Len() int { return len(e.classes) }

// ParseEncoder 解析单个编码器定义（来自制品 JSON 或用例 YAML）：
//
//	["low", "medium", "hard"]
//	{"classes": ["low", "medium", "hard"], "fallback": "medium"}
//	{"mapping": {"happy": 0, "calm": 1}, "fallback": "neutral"}
func ParseEncoder(raw any) (*LabelEncoder, error) {
	switch v := raw.(type) {
	case []any, []string:
		classes := conv.SliceAnyToString(v)
		if len(classes) != sliceLen(v) {
			return nil, fmt.Errorf("classes must be strings or numbers")
		}
		return NewLabelEncoder(classes, "")
	case map[string]any:
		fallback, _ := v["fallback"].(string)
		if classes, ok := v["classes"]; ok {
			list := conv.SliceAnyToString(classes)
			if list == nil || len(list) != sliceLen(classes) {
				return nil, fmt.Errorf("classes must be a list of strings")
			}
			return NewLabelEncoder(list, fallback)
		}
		if m, ok := v["mapping"].(map[string]any); ok {
			mapping := make(map[string]int, len(m))
			for class, code := range m {
				c, ok := conv.ToInt(code)
				if !ok {
					return nil, fmt.Errorf("code for class %q is not a number: %T", class, code)
				}
				mapping[class] = c
			}
			return NewLabelEncoderFromMapping(mapping, fallback)
		}
		return nil, fmt.Errorf("encoder object needs a classes or mapping key")
	default:
		return nil, fmt.Errorf("unsupported encoder definition %T", raw)
	}
}

// IsEncoderDefinition 判断 raw 是单个编码器定义，还是 名称 -> 定义 的集合
func IsEncoderDefinition(raw any) bool {
	switch v := raw.(type) {
	case []any, []string:
		return true
	case map[string]any:
		_, hasClasses := v["classes"]
		_, hasMapping := v["mapping"]
		return hasClasses || hasMapping
	}
	return false
}

func sliceLen(v any) int {
	switch s := v.(type) {
	case []any:
		return len(s)
	case []string:
		return len(s)
	}
	return -1
}
