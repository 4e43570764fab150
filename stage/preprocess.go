package stage

import (
	"context"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/imageprep"
	"github.com/rushteam/inferkit/pipeline"
)

// PreprocessImageNode 把上传的图片字节转换为模型输入张量
type PreprocessImageNode struct {
	Prep *imageprep.Preprocessor
}

func (n *PreprocessImageNode) Name() string        { return "preprocess.image" }
func (n *PreprocessImageNode) Kind() pipeline.Kind { return pipeline.KindPreprocess }

func (n *PreprocessImageNode) Process(ctx context.Context, pctx *core.PredictContext) error {
	tensor, err := n.Prep.Tensor(pctx.Image)
	if err != nil {
		return err
	}
	pctx.Tensor = tensor
	return nil
}

var _ pipeline.Node = (*PreprocessImageNode)(nil)
