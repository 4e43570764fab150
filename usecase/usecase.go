// Package usecase 把一份用例配置实例化为可服务的推理管道。
//
// 进程启动时每个用例加载一次全部制品（元数据、标准化参数、编码器、标签），
// 任一制品缺失或格式错误都返回 ARTIFACT_LOAD_ERROR，进程拒绝启动。
// 加载完成后用例只读，被所有请求并发共享。
package usecase

import (
	"context"
	"fmt"
	"sort"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"github.com/rushteam/inferkit/artifact"
	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/feast"
	"github.com/rushteam/inferkit/feature"
	"github.com/rushteam/inferkit/label"
	"github.com/rushteam/inferkit/pipeline"
)

// Meta 模型元数据（meta.json）
type Meta struct {
	FeatureCols  []string `json:"feature_cols"`
	CatCols      []string `json:"cat_cols"`
	Target       string   `json:"target"`
	ModelVersion string   `json:"model_version"`
}

// StageObserver 接收每个节点的执行耗时与错误（用于指标）
type StageObserver func(useCase string, node pipeline.Node, elapsed time.Duration, err error)

// Deps 用例加载依赖，由进程统一创建并在用例间共享
type Deps struct {
	Artifacts artifact.Store
	Factory   *pipeline.NodeFactory

	// Cache 预测缓存（可选）
	Cache    core.Store
	CacheTTL int

	// Feast 在线特征存储（可选）
	Feast feast.Client

	Logger   *zap.Logger
	Hooks    pipeline.Hooks
	Observer StageObserver
}

// Renderer 把领域结果渲染为响应体（由解码节点实现）
type Renderer interface {
	Render(result *core.PredictionResult) map[string]any
}

// UseCase 已加载的用例
type UseCase struct {
	Name        string
	Route       string
	Input       pipeline.InputKind
	Envelope    pipeline.Envelope
	DefaultTopK int

	Pipeline *pipeline.Pipeline

	renderer      Renderer
	meta          *Meta
	schema        *feature.Schema
	labels        []string
	artifactPaths []string
	logger        *zap.Logger
}

// loaded 并发加载得到的制品
type loaded struct {
	meta     *Meta
	scaler   feature.Scaler
	encoders *feature.Registry
	labels   []string
}

func loadArtifacts(ctx context.Context, cfg *pipeline.UseCaseConfig, store artifact.Store) (*loaded, error) {
	out := &loaded{encoders: feature.NewRegistry()}
	a := cfg.Artifacts

	g, gctx := errgroup.WithContext(ctx)
	if a.Meta != "" {
		g.Go(func() error {
			var meta Meta
			if err := artifact.ReadValidatedJSON(gctx, store, a.Meta, artifact.SchemaMeta, &meta); err != nil {
				return err
			}
			out.meta = &meta
			return nil
		})
	}
	if a.Scaler != "" {
		g.Go(func() error {
			scaler, err := feature.LoadScaler(gctx, store, a.Scaler)
			if err != nil {
				return err
			}
			out.scaler = scaler
			return nil
		})
	}
	if len(a.Encoders) > 0 {
		// Registry 不是并发安全的，编码器文件在同一个 goroutine 中顺序加载
		g.Go(func() error {
			for _, f := range a.Encoders {
				if err := out.encoders.LoadEncoders(gctx, store, f.Path, f.Name); err != nil {
					return err
				}
			}
			return nil
		})
	}
	if a.Labels != "" {
		g.Go(func() error {
			data, err := artifact.ReadBytes(gctx, store, a.Labels)
			if err != nil {
				return err
			}
			var labels []string
			if a.LabelFormat != "" {
				labels, err = label.ParseFormat(data, label.Format(a.LabelFormat))
			} else {
				labels, _, err = label.Parse(data)
			}
			if err != nil {
				return core.NewArtifactLoadError(store.Describe(a.Labels), err)
			}
			out.labels = labels
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return out, nil
}

func buildError(name string, err error) error {
	if core.IsArtifactLoadError(err) {
		return err
	}
	return core.WrapDomainError(core.ModulePipeline, core.ErrorCodeArtifactLoad,
		fmt.Sprintf("use case %q: failed to build", name), err)
}

// Load 加载单个用例：并发读取制品、固定列顺序、绑定编码器、构建节点链。
func Load(ctx context.Context, cfg pipeline.UseCaseConfig, deps Deps) (*UseCase, error) {
	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}
	logger = logger.With(zap.String("usecase", cfg.Name))

	arts, err := loadArtifacts(ctx, &cfg, deps.Artifacts)
	if err != nil {
		return nil, err
	}

	inline := make([]string, 0, len(cfg.Encoders))
	for name := range cfg.Encoders {
		inline = append(inline, name)
	}
	sort.Strings(inline)
	for _, name := range inline {
		if err := arts.encoders.RegisterInline(name, cfg.Encoders[name]); err != nil {
			return nil, err
		}
	}

	var schema *feature.Schema
	if cfg.Input == pipeline.InputTabular || len(cfg.Schema) > 0 {
		if schema, err = feature.NewSchema(cfg.Schema); err != nil {
			return nil, buildError(cfg.Name, err)
		}
		if arts.meta != nil {
			if err := schema.PinOrder(arts.meta.FeatureCols); err != nil {
				return nil, core.NewArtifactLoadError(deps.Artifacts.Describe(cfg.Artifacts.Meta), err)
			}
		}
		if err := schema.Bind(arts.encoders); err != nil {
			return nil, buildError(cfg.Name, err)
		}
	}

	env := &pipeline.BuildEnv{
		UseCase:     cfg.Name,
		Schema:      schema,
		Encoders:    arts.encoders,
		Scaler:      arts.scaler,
		Labels:      arts.labels,
		DefaultTopK: cfg.TopK,
		Artifacts:   deps.Artifacts,
		Cache:       deps.Cache,
		CacheTTL:    deps.CacheTTL,
		Feast:       deps.Feast,
		Logger:      logger,
		Hooks:       deps.Hooks,
	}
	p, err := pipeline.BuildPipeline(cfg.Nodes, deps.Factory, env)
	if err != nil {
		return nil, buildError(cfg.Name, err)
	}

	var renderer Renderer
	for _, node := range p.Nodes {
		if r, ok := node.(Renderer); ok && node.Kind() == pipeline.KindDecode {
			renderer = r
		}
	}
	if renderer == nil {
		_ = p.Close(ctx)
		return nil, buildError(cfg.Name, fmt.Errorf("pipeline has no decode node"))
	}
	if deps.Observer != nil {
		name := cfg.Name
		p.Observer = func(node pipeline.Node, elapsed time.Duration, err error) {
			deps.Observer(name, node, elapsed, err)
		}
	}

	paths := cfg.Artifacts.Paths()
	described := make([]string, len(paths))
	for i, path := range paths {
		described[i] = deps.Artifacts.Describe(path)
	}

	uc := &UseCase{
		Name:          cfg.Name,
		Route:         cfg.Route,
		Input:         cfg.Input,
		Envelope:      cfg.Envelope,
		DefaultTopK:   cfg.TopK,
		Pipeline:      p,
		renderer:      renderer,
		meta:          arts.meta,
		schema:        schema,
		labels:        arts.labels,
		artifactPaths: described,
		logger:        logger,
	}
	logger.Info("use case loaded",
		zap.String("route", cfg.Route),
		zap.Int("nodes", len(p.Nodes)),
		zap.Strings("artifacts", described),
	)
	return uc, nil
}

// Predict 执行管道并渲染响应体。
func (uc *UseCase) Predict(ctx context.Context, pctx *core.PredictContext) (map[string]any, error) {
	pctx.UseCase = uc.Name
	if err := uc.Pipeline.Run(ctx, pctx); err != nil {
		return nil, err
	}
	if pctx.Result == nil {
		return nil, core.NewDomainError(core.ModulePipeline, core.ErrorCodeInternalError, "pipeline produced no result")
	}
	return uc.renderer.Render(pctx.Result), nil
}

// Schema 返回输入 schema（图片用例为 nil）
func (uc *UseCase) Schema() *feature.Schema { return uc.schema }

// Labels 返回分类标签（表格用例为 nil）
func (uc *UseCase) Labels() []string { return uc.labels }

// Health 用例健康信息，不触发推理
type Health struct {
	Status           string   `json:"status"`
	ModelLoaded      bool     `json:"model_loaded"`
	ArtifactPaths    []string `json:"artifact_paths"`
	ModelVersion     string   `json:"model_version,omitempty"`
	FeatureColsCount *int     `json:"feature_cols_count,omitempty"`
	LabelsCount      *int     `json:"labels_count,omitempty"`
}

// Health 返回用例健康信息（只读取已加载的状态）
func (uc *UseCase) Health() Health {
	h := Health{
		Status:        "ok",
		ModelLoaded:   true,
		ArtifactPaths: uc.artifactPaths,
	}
	if h.ArtifactPaths == nil {
		h.ArtifactPaths = []string{}
	}
	if uc.meta != nil {
		h.ModelVersion = uc.meta.ModelVersion
	}
	if uc.schema != nil {
		n := uc.schema.Len()
		h.FeatureColsCount = &n
	}
	if uc.labels != nil {
		n := len(uc.labels)
		h.LabelsCount = &n
	}
	return h
}

// Ready 检查外部后端是否可用（不触发推理）
func (uc *UseCase) Ready(ctx context.Context) error {
	return uc.Pipeline.Health(ctx)
}

// Close 关闭外部后端连接
func (uc *UseCase) Close(ctx context.Context) error {
	return uc.Pipeline.Close(ctx)
}
