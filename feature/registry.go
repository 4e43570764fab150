package feature

import (
	"context"
	"encoding/json"
	"fmt"
	"sort"

	"github.com/rushteam/inferkit/artifact"
	"github.com/rushteam/inferkit/core"
)

// Registry 编码器注册表：名称 -> LabelEncoder。
// 启动时一次性加载，之后只读，无需加锁。
type Registry struct {
	encoders map[string]*LabelEncoder
}

// NewRegistry 创建空的注册表
func NewRegistry() *Registry {
	return &Registry{encoders: make(map[string]*LabelEncoder)}
}

// Register 注册编码器，重名返回错误
func (r *Registry) Register(name string, enc *LabelEncoder) error {
	if _, exists := r.encoders[name]; exists {
		return fmt.Errorf("encoder %q already registered", name)
	}
	r.encoders[name] = enc
	return nil
}

// Get 按名称获取编码器
func (r *Registry) Get(name string) (*LabelEncoder, bool) {
	if r == nil {
		return nil, false
	}
	enc, ok := r.encoders[name]
	return enc, ok
}

// Names 返回已注册的编码器名称（排序后）
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.encoders))
	for n := range r.encoders {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Len 返回编码器数量
func (r *Registry) Len() int { return len(r.encoders) }

// LoadEncoders 从制品加载编码器。
//
// 文件内容为单个编码器定义时注册为 name；
// 为 {"gender": [...], "mood_label": {...}} 形式的集合时按键名逐个注册（name 被忽略）。
func (r *Registry) LoadEncoders(ctx context.Context, s artifact.Store, path, name string) error {
	var raw any
	if err := artifact.ReadJSON(ctx, s, path, &raw); err != nil {
		return err
	}
	if IsEncoderDefinition(raw) {
		if name == "" {
			return core.NewArtifactLoadError(s.Describe(path), fmt.Errorf("a single encoder needs a name"))
		}
		return r.add(s.Describe(path), name, raw)
	}
	group, ok := raw.(map[string]any)
	if !ok || len(group) == 0 {
		return core.NewArtifactLoadError(s.Describe(path), fmt.Errorf("unsupported encoder file"))
	}
	names := make([]string, 0, len(group))
	for n := range group {
		names = append(names, n)
	}
	sort.Strings(names)
	for _, n := range names {
		if err := r.add(s.Describe(path), n, group[n]); err != nil {
			return err
		}
	}
	return nil
}

// RegisterInline 注册用例配置中内联定义的编码器
func (r *Registry) RegisterInline(name string, def any) error {
	return r.add("inline:"+name, name, normalizeYAML(def))
}

func (r *Registry) add(source, name string, def any) error {
	enc, err := ParseEncoder(def)
	if err != nil {
		return core.NewArtifactLoadError(source, fmt.Errorf("encoder %q: %w", name, err))
	}
	if err := r.Register(name, enc); err != nil {
		return core.NewArtifactLoadError(source, err)
	}
	return nil
}

// normalizeYAML 把 YAML 解析出的值转为与 encoding/json 一致的形态（map[string]any / []any / float64）。
func normalizeYAML(v any) any {
	data, err := json.Marshal(v)
	if err != nil {
		return v
	}
	var out any
	if err := json.Unmarshal(data, &out); err != nil {
		return v
	}
	return out
}
