package feature

import (
	"fmt"
	"strings"

	"github.com/rushteam/inferkit/pkg/dsl"
)

// ColumnType 列的语义类型
type ColumnType string

const (
	Numeric     ColumnType = "numeric"     // 直接转为 float
	Categorical ColumnType = "categorical" // 去空白 + 小写后经 LabelEncoder 编码
	Boolean     ColumnType = "boolean"     // true/false -> 1.0/0.0
)

// ColumnConfig 列定义（用例 YAML 中的 schema 段）
//
//	schema:
//	  - {name: mood, type: categorical, encoder: mood, default: neutral}
//	  - {name: screen_time_minutes, type: numeric, rule: "value >= 0"}
type ColumnConfig struct {
	Name    string     `yaml:"name" json:"name"`
	Type    ColumnType `yaml:"type" json:"type"`
	Encoder string     `yaml:"encoder" json:"encoder"`
	Default any        `yaml:"default" json:"default"`
	Rule    string     `yaml:"rule" json:"rule"`
}

// Column 是 Schema 中的一列
type Column struct {
	Name    string
	Type    ColumnType
	Encoder string // 类别列使用的编码器名，默认与列名相同
	Default any    // 非 nil 表示该列可选
	Rule    *dsl.Rule
}

// Required 该列是否必填（没有默认值即必填）
func (c Column) Required() bool { return c.Default == nil }

// Schema 有序的特征列定义。
//
// 列顺序必须与外部制品训练时的顺序完全一致；重排会静默地破坏预测结果，
// 管道无法校验这一点，只能校验列是否存在。加载后只读。
type Schema struct {
	Columns []Column
	index   map[string]int
}

// NewSchema 由列定义构造 Schema，校验列名唯一、类型合法、规则可编译。
func NewSchema(configs []ColumnConfig) (*Schema, error) {
	if len(configs) == 0 {
		return nil, fmt.Errorf("schema has no columns")
	}
	s := &Schema{
		Columns: make([]Column, 0, len(configs)),
		index:   make(map[string]int, len(configs)),
	}
	for _, cfg := range configs {
		name := strings.TrimSpace(cfg.Name)
		if name == "" {
			return nil, fmt.Errorf("column name is required")
		}
		if _, dup := s.index[name]; dup {
			return nil, fmt.Errorf("duplicate column %q", name)
		}
		col := Column{Name: name, Type: cfg.Type, Default: cfg.Default}
		switch cfg.Type {
		case Numeric, Boolean:
		case "":
			col.Type = Numeric
		case Categorical:
			col.Encoder = cfg.Encoder
			if col.Encoder == "" {
				col.Encoder = name
			}
		default:
			return nil, fmt.Errorf("column %q: unknown type %q", name, cfg.Type)
		}
		if cfg.Rule != "" {
			rule, err := dsl.Compile(cfg.Rule)
			if err != nil {
				return nil, fmt.Errorf("column %q rule: %w", name, err)
			}
			col.Rule = rule
		}
		s.index[name] = len(s.Columns)
		s.Columns = append(s.Columns, col)
	}
	return s, nil
}

// Len 返回列数
func (s *Schema) Len() int { return len(s.Columns) }

// Names 按顺序返回列名
func (s *Schema) Names() []string {
	names := make([]string, len(s.Columns))
	for i, c := range s.Columns {
		names[i] = c.Name
	}
	return names
}

// Index 返回列的位置
func (s *Schema) Index(name string) (int, bool) {
	i, ok := s.index[name]
	return i, ok
}

// RequiredCount 返回必填列数
func (s *Schema) RequiredCount() int {
	n := 0
	for _, c := range s.Columns {
		if c.Required() {
			n++
		}
	}
	return n
}

// PinOrder 按制品中的 feature_cols 重排列顺序。
// 两边的列集合必须完全一致，否则返回错误（调用方应视为制品加载失败）。
func (s *Schema) PinOrder(featureCols []string) error {
	if len(featureCols) != len(s.Columns) {
		return fmt.Errorf("artifact declares %d feature columns, schema has %d", len(featureCols), len(s.Columns))
	}
	ordered := make([]Column, 0, len(featureCols))
	index := make(map[string]int, len(featureCols))
	var unknown []string
	for _, name := range featureCols {
		i, ok := s.index[name]
		if !ok {
			unknown = append(unknown, name)
			continue
		}
		index[name] = len(ordered)
		ordered = append(ordered, s.Columns[i])
	}
	if len(unknown) > 0 {
		return fmt.Errorf("artifact feature columns not declared in schema: %s", strings.Join(unknown, ", "))
	}
	s.Columns = ordered
	s.index = index
	return nil
}

// Bind 检查所有类别列的编码器都已注册
func (s *Schema) Bind(registry *Registry) error {
	var missing []string
	for _, c := range s.Columns {
		if c.Type != Categorical {
			continue
		}
		if _, ok := registry.Get(c.Encoder); !ok {
			missing = append(missing, fmt.Sprintf("%s (encoder %q)", c.Name, c.Encoder))
		}
	}
	if len(missing) > 0 {
		return fmt.Errorf("categorical columns without encoder: %s", strings.Join(missing, ", "))
	}
	return nil
}
