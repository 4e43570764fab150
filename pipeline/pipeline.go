package pipeline

import (
	"context"
	"time"

	"github.com/rushteam/inferkit/core"
)

// Observer 在每个节点执行后被调用，用于打点 / 日志
type Observer func(node Node, elapsed time.Duration, err error)

// Pipeline 把一次预测拆成可组合的 Node 链：
//
//	[enrich] -> validate -> assemble | preprocess -> infer -> decode -> [explain]
//
// 单次执行、不重试；任一节点失败立即短路返回该错误。
type Pipeline struct {
	Nodes    []Node
	Observer Observer
}

func (p *Pipeline) Run(ctx context.Context, pctx *core.PredictContext) error {
	for _, node := range p.Nodes {
		if err := ctx.Err(); err != nil {
			return err
		}
		start := time.Now()
		err := node.Process(ctx, pctx)
		if p.Observer != nil {
			p.Observer(node, time.Since(start), err)
		}
		if err != nil {
			return err
		}
	}
	return nil
}

// Has 是否包含指定类型的节点
func (p *Pipeline) Has(kind Kind) bool {
	for _, node := range p.Nodes {
		if node.Kind() == kind {
			return true
		}
	}
	return false
}

// Health 检查所有依赖外部后端的节点
func (p *Pipeline) Health(ctx context.Context) error {
	for _, node := range p.Nodes {
		if hc, ok := node.(HealthChecker); ok {
			if err := hc.Health(ctx); err != nil {
				return err
			}
		}
	}
	return nil
}

// Close 关闭所有持有外部连接的节点，返回第一个错误
func (p *Pipeline) Close(ctx context.Context) error {
	var first error
	for _, node := range p.Nodes {
		if c, ok := node.(Closer); ok {
			if err := c.Close(ctx); err != nil && first == nil {
				first = err
			}
		}
	}
	return first
}
