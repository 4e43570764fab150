package inferkit_test

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/inferkit"
	"github.com/rushteam/inferkit/core"
)

// constNode 自定义节点：直接写入固定分数
type constNode struct{ score float64 }

func (n *constNode) Name() string        { return "const" }
func (n *constNode) Kind() inferkit.Kind { return inferkit.KindDecode }
func (n *constNode) Process(ctx context.Context, pctx *inferkit.PredictContext) error {
	pctx.Result = &inferkit.PredictionResult{Kind: core.ResultScore, Score: n.score}
	return nil
}

func TestFacade_CustomNode(t *testing.T) {
	p := &inferkit.Pipeline{Nodes: []inferkit.Node{&constNode{score: 0.5}}}
	pctx := core.NewPredictContext("demo", nil)
	require.NoError(t, p.Run(context.Background(), pctx))
	assert.Equal(t, 0.5, pctx.Result.Score)
	assert.True(t, p.Has(inferkit.KindDecode))
	assert.False(t, p.Has(inferkit.KindExplain))
}
