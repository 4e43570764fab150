package stage

import (
	"context"
	"sort"

	"go.uber.org/zap"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/feast"
	"github.com/rushteam/inferkit/pipeline"
)

// EnrichFeastNode 从 Feast 在线特征存储补齐请求中缺失的字段。
//
// 只在记录带有实体键时生效，且只填充缺失（或为 null）的字段，调用方显式传入的值优先。
// 特征存储返回中没有的字段保持缺失，交给后续 validate 节点报告。
// Client 由进程持有并在多个用例间共享，节点不负责关闭。
type EnrichFeastNode struct {
	Client feast.Client

	// EntityKey 记录中的实体键字段（同时作为 Feast 实体名）
	EntityKey string

	// Features 记录字段 -> Feast 特征引用（"feature_view:feature"）
	Features map[string]string

	Project string
	Logger  *zap.Logger
}

func (n *EnrichFeastNode) Name() string        { return "enrich.feast" }
func (n *EnrichFeastNode) Kind() pipeline.Kind { return pipeline.KindEnrich }

func (n *EnrichFeastNode) Process(ctx context.Context, pctx *core.PredictContext) error {
	entity, ok := pctx.Record[n.EntityKey]
	if !ok || entity == nil {
		return nil
	}

	var fields []string
	for field := range n.Features {
		if v, present := pctx.Record[field]; !present || v == nil {
			fields = append(fields, field)
		}
	}
	if len(fields) == 0 {
		return nil
	}
	sort.Strings(fields)

	refs := make([]string, len(fields))
	for i, field := range fields {
		refs[i] = n.Features[field]
	}
	resp, err := n.Client.GetOnlineFeatures(ctx, &feast.GetOnlineFeaturesRequest{
		Features:   refs,
		EntityRows: []map[string]interface{}{{n.EntityKey: entity}},
		Project:    n.Project,
	})
	if err != nil {
		return core.WrapDomainError(core.ModuleFeature, core.ErrorCodeUnavailable, "feature store lookup failed", err)
	}
	if len(resp.FeatureVectors) == 0 {
		return nil
	}

	values := resp.FeatureVectors[0].Values
	filled := 0
	for i, field := range fields {
		if v, ok := values[refs[i]]; ok {
			pctx.Record[field] = v
			filled++
		}
	}
	if n.Logger != nil {
		n.Logger.Debug("record enriched from feature store",
			zap.String("request_id", pctx.RequestID),
			zap.Int("requested", len(fields)),
			zap.Int("filled", filled),
		)
	}
	return nil
}

var _ pipeline.Node = (*EnrichFeastNode)(nil)
