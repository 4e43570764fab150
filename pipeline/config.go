package pipeline

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"gopkg.in/yaml.v3"

	"github.com/rushteam/inferkit/feature"
)

// InputKind 用例的输入形态
type InputKind string

const (
	InputTabular InputKind = "tabular" // JSON 记录
	InputImage   InputKind = "image"   // multipart 图片上传
)

// Envelope 表格请求体的包装方式
type Envelope string

const (
	EnvelopeNone     Envelope = "none"     // 请求体即记录本身
	EnvelopeFeatures Envelope = "features" // {"features": {...}, "top_k": 10}
)

// Config 是服务的用例配置（支持 YAML/JSON），字符串中的 ${VAR} 在解析前展开。
type Config struct {
	UseCases []UseCaseConfig `yaml:"use_cases" json:"use_cases"`
}

// UseCaseConfig 是单个用例的配置：制品、输入 schema 与节点链。
type UseCaseConfig struct {
	Name     string    `yaml:"name" json:"name"`
	Route    string    `yaml:"route" json:"route"`
	Input    InputKind `yaml:"input" json:"input"`
	Envelope Envelope  `yaml:"envelope" json:"envelope"`

	// TopK 请求未指定时的默认 K（图片 top-k / 归因条数）
	TopK int `yaml:"top_k" json:"top_k"`

	Artifacts ArtifactsConfig `yaml:"artifacts" json:"artifacts"`

	// Encoders 内联编码器定义：名称 -> 定义（列表 / {classes} / {mapping}）
	Encoders map[string]any `yaml:"encoders" json:"encoders"`

	Schema []feature.ColumnConfig `yaml:"schema" json:"schema"`

	Nodes []NodeConfig `yaml:"nodes" json:"nodes"`
}

// ArtifactsConfig 用例制品路径（相对于制品根）
type ArtifactsConfig struct {
	// Meta meta.json：feature_cols 固定列顺序
	Meta string `yaml:"meta" json:"meta"`

	// Scaler z-score 参数
	Scaler string `yaml:"scaler" json:"scaler"`

	// Encoders 编码器制品文件
	Encoders []EncoderFile `yaml:"encoders" json:"encoders"`

	// Labels 图片分类的标签文件
	Labels string `yaml:"labels" json:"labels"`

	// LabelFormat 标签文件格式（可选，为空时按优先级自动识别）
	LabelFormat string `yaml:"label_format" json:"label_format"`
}

// EncoderFile 编码器制品：Name 非空时文件内容是单个编码器，否则是 名称 -> 定义 的分组
type EncoderFile struct {
	Path string `yaml:"path" json:"path"`
	Name string `yaml:"name" json:"name"`
}

// Paths 返回用例引用的全部制品路径
func (a ArtifactsConfig) Paths() []string {
	var paths []string
	for _, p := range []string{a.Meta, a.Scaler} {
		if p != "" {
			paths = append(paths, p)
		}
	}
	for _, e := range a.Encoders {
		paths = append(paths, e.Path)
	}
	if a.Labels != "" {
		paths = append(paths, a.Labels)
	}
	return paths
}

// NodeConfig 是单个 Node 的配置。
type NodeConfig struct {
	Type   string                 `yaml:"type" json:"type"`     // validate / assemble / infer.tree_ensemble / decode.argmax 等
	Config map[string]interface{} `yaml:"config" json:"config"` // Node 特定配置
}

// Validate 校验用例配置的结构完整性（节点类型是否注册由 config 包负责）。
func (c *Config) Validate() error {
	if len(c.UseCases) == 0 {
		return fmt.Errorf("no use cases configured")
	}
	names := make(map[string]bool, len(c.UseCases))
	routes := make(map[string]string, len(c.UseCases))
	for i := range c.UseCases {
		uc := &c.UseCases[i]
		if uc.Name == "" {
			return fmt.Errorf("use case #%d: name is required", i)
		}
		if names[uc.Name] {
			return fmt.Errorf("duplicate use case name %q", uc.Name)
		}
		names[uc.Name] = true

		if uc.Route == "" || !strings.HasPrefix(uc.Route, "/") {
			return fmt.Errorf("use case %q: route must start with /", uc.Name)
		}
		if prev, dup := routes[uc.Route]; dup {
			return fmt.Errorf("use cases %q and %q share route %s", prev, uc.Name, uc.Route)
		}
		routes[uc.Route] = uc.Name

		if uc.Input == "" {
			uc.Input = InputTabular
		}
		if uc.Envelope == "" {
			uc.Envelope = EnvelopeNone
		}
		switch uc.Input {
		case InputTabular:
			if len(uc.Schema) == 0 {
				return fmt.Errorf("use case %q: tabular input requires a schema", uc.Name)
			}
		case InputImage:
			if uc.Artifacts.Labels == "" {
				return fmt.Errorf("use case %q: image input requires a labels artifact", uc.Name)
			}
		default:
			return fmt.Errorf("use case %q: unknown input kind %q", uc.Name, uc.Input)
		}
		if uc.Envelope != EnvelopeNone && uc.Envelope != EnvelopeFeatures {
			return fmt.Errorf("use case %q: unknown envelope %q", uc.Name, uc.Envelope)
		}
		if uc.TopK < 0 {
			return fmt.Errorf("use case %q: top_k must be >= 0", uc.Name)
		}
		if len(uc.Nodes) == 0 {
			return fmt.Errorf("use case %q: no nodes configured", uc.Name)
		}
	}
	return nil
}

// LoadFromYAML 从 YAML 文件加载用例配置。
func LoadFromYAML(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}
	return ParseYAML(data)
}

// ParseYAML 解析 YAML 配置，${VAR} 先按环境变量展开。
func ParseYAML(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse yaml: %w", err)
	}
	return &cfg, nil
}

// LoadFromJSON 从 JSON 文件加载用例配置。
func LoadFromJSON(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read file: %w", err)
	}

	var cfg Config
	if err := json.Unmarshal([]byte(os.ExpandEnv(string(data))), &cfg); err != nil {
		return nil, fmt.Errorf("parse json: %w", err)
	}
	return &cfg, nil
}

// Load 按扩展名选择 YAML / JSON 解析。
func Load(path string) (*Config, error) {
	if strings.EqualFold(filepath.Ext(path), ".json") {
		return LoadFromJSON(path)
	}
	return LoadFromYAML(path)
}

// BuildPipeline 根据节点配置构建 Pipeline（需要 NodeFactory 注册 Node 构建器）。
// 注意：factory 应该在独立的 config 包中，避免循环依赖。
func BuildPipeline(nodes []NodeConfig, factory *NodeFactory, env *BuildEnv) (*Pipeline, error) {
	built := make([]Node, 0, len(nodes))
	for _, nc := range nodes {
		node, err := factory.Build(nc.Type, nc.Config, env)
		if err != nil {
			// 已构建的节点可能持有连接
			_ = (&Pipeline{Nodes: built}).Close(context.Background())
			return nil, fmt.Errorf("build node %s: %w", nc.Type, err)
		}
		built = append(built, node)
	}
	return &Pipeline{Nodes: built}, nil
}

// NodeBuilder 根据节点配置与用例构建环境构建 Node。
type NodeBuilder func(cfg map[string]interface{}, env *BuildEnv) (Node, error)

// NodeFactory 用于根据配置构建 Node 实例。
type NodeFactory struct {
	builders map[string]NodeBuilder
}

func NewNodeFactory() *NodeFactory {
	return &NodeFactory{
		builders: make(map[string]NodeBuilder),
	}
}

// Register 注册 Node 构建器。
func (f *NodeFactory) Register(nodeType string, builder NodeBuilder) {
	f.builders[nodeType] = builder
}

// Build 根据类型和配置构建 Node。
func (f *NodeFactory) Build(nodeType string, config map[string]interface{}, env *BuildEnv) (Node, error) {
	builder, ok := f.builders[nodeType]
	if !ok {
		return nil, fmt.Errorf("unknown node type: %s", nodeType)
	}
	if config == nil {
		config = map[string]interface{}{}
	}
	return builder(config, env)
}
