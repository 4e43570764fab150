package builders

import (
	"context"
	"fmt"
	"strings"

	"go.uber.org/zap"
	"gopkg.in/yaml.v3"

	"github.com/rushteam/inferkit/config"
	"github.com/rushteam/inferkit/decode"
	"github.com/rushteam/inferkit/explain"
	"github.com/rushteam/inferkit/imageprep"
	"github.com/rushteam/inferkit/infer"
	"github.com/rushteam/inferkit/pipeline"
	"github.com/rushteam/inferkit/pkg/conv"
	"github.com/rushteam/inferkit/service"
	"github.com/rushteam/inferkit/stage"
)

func init() {
	config.Register("enrich.feast", BuildEnrichFeastNode)
	config.Register("validate", BuildValidateNode)
	config.Register("assemble", BuildAssembleNode)
	config.Register("preprocess.image", BuildPreprocessImageNode)
	config.Register("infer.tree_ensemble", inferBuilder(infer.TreeEnsemble))
	config.Register("infer.dense_network", inferBuilder(infer.DenseNetwork))
	config.Register("infer.quantized_interpreter", inferBuilder(infer.QuantizedInterpreter))
	for _, p := range []decode.Policy{
		decode.PolicyArgmax,
		decode.PolicyClamp,
		decode.PolicyLevel,
		decode.PolicyRoundTrip,
		decode.PolicyScore,
		decode.PolicyTopK,
	} {
		config.Register("decode."+string(p), decodeBuilder(p))
	}
	config.Register("explain", BuildExplainNode)
}

// decodeSection 把节点配置中的子段（如 service）解码为结构体，沿用结构体上的 yaml 标签
func decodeSection(cfg map[string]interface{}, key string, out interface{}) error {
	section, ok := cfg[key].(map[string]interface{})
	if !ok {
		return fmt.Errorf("%s not found or invalid", key)
	}
	data, err := yaml.Marshal(section)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}
	if err := yaml.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode %s: %w", key, err)
	}
	return nil
}

func requireSchema(env *pipeline.BuildEnv, nodeType string) error {
	if env == nil || env.Schema == nil {
		return fmt.Errorf("%s requires a tabular schema", nodeType)
	}
	return nil
}

func BuildEnrichFeastNode(cfg map[string]interface{}, env *pipeline.BuildEnv) (pipeline.Node, error) {
	if env == nil || env.Feast == nil {
		return nil, fmt.Errorf("enrich.feast requires a feature store client (set INFERKIT_FEAST_HOST)")
	}
	entityKey := conv.ConfigGet(cfg, "entity_key", "")
	if entityKey == "" {
		return nil, fmt.Errorf("entity_key not found")
	}
	rawFeatures, ok := cfg["features"].(map[string]interface{})
	if !ok || len(rawFeatures) == 0 {
		return nil, fmt.Errorf("features not found or invalid")
	}
	features := make(map[string]string, len(rawFeatures))
	for field, ref := range rawFeatures {
		s, ok := ref.(string)
		if !ok || !strings.Contains(s, ":") {
			return nil, fmt.Errorf("feature %q: reference must look like view:feature", field)
		}
		features[field] = s
	}
	return &stage.EnrichFeastNode{
		Client:    env.Feast,
		EntityKey: entityKey,
		Features:  features,
		Project:   conv.ConfigGet(cfg, "project", ""),
		Logger:    env.Log().Named("enrich"),
	}, nil
}

func BuildValidateNode(cfg map[string]interface{}, env *pipeline.BuildEnv) (pipeline.Node, error) {
	if err := requireSchema(env, "validate"); err != nil {
		return nil, err
	}
	return &stage.ValidateNode{Schema: env.Schema}, nil
}

func BuildAssembleNode(cfg map[string]interface{}, env *pipeline.BuildEnv) (pipeline.Node, error) {
	if err := requireSchema(env, "assemble"); err != nil {
		return nil, err
	}
	node := &stage.AssembleNode{
		Schema:     env.Schema,
		Encoders:   env.Encoders,
		Logger:     env.Log().Named("assemble"),
		OnFallback: env.OnEncoderFallback,
	}
	if conv.ConfigGet(cfg, "scale", true) {
		node.Scaler = env.Scaler
	}
	return node, nil
}

func BuildPreprocessImageNode(cfg map[string]interface{}, env *pipeline.BuildEnv) (pipeline.Node, error) {
	width := conv.ConfigGetInt64(cfg, "width", imageprep.DefaultWidth)
	height := conv.ConfigGetInt64(cfg, "height", imageprep.DefaultHeight)
	if width <= 0 || height <= 0 {
		return nil, fmt.Errorf("invalid image size %dx%d", width, height)
	}
	return &stage.PreprocessImageNode{Prep: imageprep.New(int(width), int(height))}, nil
}

func inferBuilder(kind infer.Kind) config.NodeBuilder {
	return func(cfg map[string]interface{}, env *pipeline.BuildEnv) (pipeline.Node, error) {
		return BuildInferNode(kind, cfg, env)
	}
}

// BuildInferNode 由 service 段创建模型服务客户端，按需包一层预测缓存，再包装为推理适配器。
func BuildInferNode(kind infer.Kind, cfg map[string]interface{}, env *pipeline.BuildEnv) (pipeline.Node, error) {
	var svcCfg service.ServiceConfig
	if err := decodeSection(cfg, "service", &svcCfg); err != nil {
		return nil, err
	}
	svc, err := service.NewMLService(&svcCfg)
	if err != nil {
		return nil, err
	}

	arity := int(conv.ConfigGetInt64(cfg, "arity", 0))
	if kind == infer.QuantizedInterpreter && arity == 0 && env != nil {
		arity = len(env.Labels)
	}

	if env != nil && env.Cache != nil && conv.ConfigGet(cfg, "cache", true) {
		namespace := env.UseCase + "/" + svcCfg.ModelName + "/" + svcCfg.ModelVersion
		svc = service.NewCachedService(svc, env.Cache, namespace, env.CacheTTL, env.OnCacheResult)
		env.Log().Debug("prediction cache enabled",
			zap.String("usecase", env.UseCase),
			zap.String("backend", env.Cache.Name()),
		)
	}

	adapter, err := infer.New(kind, svc, infer.WithArity(arity), infer.WithModelName(svcCfg.ModelName))
	if err != nil {
		_ = svc.Close(context.Background())
		return nil, err
	}
	return &stage.InferNode{Adapter: adapter}, nil
}

func decodeBuilder(policy decode.Policy) config.NodeBuilder {
	return func(cfg map[string]interface{}, env *pipeline.BuildEnv) (pipeline.Node, error) {
		return BuildDecodeNode(policy, cfg, env)
	}
}

// BuildDecodeNode 按策略构建解码节点；keys 段覆盖默认的响应字段名（空字符串表示不输出）。
func BuildDecodeNode(policy decode.Policy, cfg map[string]interface{}, env *pipeline.BuildEnv) (pipeline.Node, error) {
	opts := decode.Options{
		Levels: conv.ConfigGetStrings(cfg, "levels"),
		Scale:  conv.ConfigGetFloat64(cfg, "scale", 0),
	}
	if _, ok := cfg["lo"]; ok {
		lo := int(conv.ConfigGetInt64(cfg, "lo", 0))
		opts.Lo = &lo
	}
	if _, ok := cfg["hi"]; ok {
		hi := int(conv.ConfigGetInt64(cfg, "hi", 0))
		opts.Hi = &hi
	}
	if name := conv.ConfigGet(cfg, "encoder", ""); name != "" {
		if env == nil || env.Encoders == nil {
			return nil, fmt.Errorf("encoder %q: no encoders loaded", name)
		}
		enc, ok := env.Encoders.Get(name)
		if !ok {
			return nil, fmt.Errorf("encoder %q is not loaded", name)
		}
		opts.Encoder = enc
	}
	if env != nil {
		opts.Labels = env.Labels
		opts.DefaultK = env.DefaultTopK
	}

	dec, err := decode.New(policy, opts)
	if err != nil {
		return nil, err
	}

	keys := decode.DefaultKeys(policy)
	if raw, ok := cfg["keys"].(map[string]interface{}); ok {
		overrides := make(map[string]string, len(raw))
		for k, v := range raw {
			if v == nil {
				overrides[k] = ""
				continue
			}
			s, ok := conv.ToString(v)
			if !ok {
				return nil, fmt.Errorf("response key %q must be a string", k)
			}
			overrides[k] = s
		}
		if keys, err = keys.Override(overrides); err != nil {
			return nil, err
		}
	}
	return &stage.DecodeNode{Decoder: dec, Keys: keys}, nil
}

func BuildExplainNode(cfg map[string]interface{}, env *pipeline.BuildEnv) (pipeline.Node, error) {
	if err := requireSchema(env, "explain"); err != nil {
		return nil, err
	}
	var svcCfg service.ServiceConfig
	if err := decodeSection(cfg, "service", &svcCfg); err != nil {
		return nil, err
	}
	explainer, err := service.NewExplainer(&svcCfg)
	if err != nil {
		return nil, err
	}
	topK := int(conv.ConfigGetInt64(cfg, "top_k", int64(env.DefaultTopK)))
	if topK <= 0 {
		topK = explain.DefaultTopK
	}
	return &stage.ExplainNode{
		Explainer:    explainer,
		Schema:       env.Schema,
		FeatureNames: conv.ConfigGetStrings(cfg, "feature_names"),
		ModelName:    svcCfg.ModelName,
		TopK:         topK,
		Logger:       env.Log().Named("explain"),
		OnDegraded:   env.OnExplainDegraded,
	}, nil
}
