package stage

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"

	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/decode"
	"github.com/rushteam/inferkit/explain"
	"github.com/rushteam/inferkit/feast"
	"github.com/rushteam/inferkit/feature"
	"github.com/rushteam/inferkit/imageprep"
	"github.com/rushteam/inferkit/infer"
	"github.com/rushteam/inferkit/pipeline"
)

type fakeModel struct {
	outputs [][]float64
	err     error
	impacts []float64
	names   []string
	calls   int
	closed  bool
	last    *core.MLPredictRequest
}

func (m *fakeModel) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	m.calls++
	m.last = req
	if m.err != nil {
		return nil, m.err
	}
	return core.NewMLPredictResponse(m.outputs, ""), nil
}

func (m *fakeModel) Explain(ctx context.Context, req *core.ExplainRequest) (*core.ExplainResponse, error) {
	if m.err != nil {
		return nil, m.err
	}
	return &core.ExplainResponse{Impacts: m.impacts, FeatureNames: m.names}, nil
}

func (m *fakeModel) Health(ctx context.Context) error { return m.err }
func (m *fakeModel) Close(ctx context.Context) error  { m.closed = true; return nil }

type fakeFeast struct {
	values map[string]interface{}
	err    error
	last   *feast.GetOnlineFeaturesRequest
}

func (f *fakeFeast) GetOnlineFeatures(ctx context.Context, req *feast.GetOnlineFeaturesRequest) (*feast.GetOnlineFeaturesResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return &feast.GetOnlineFeaturesResponse{FeatureVectors: []feast.FeatureVector{{Values: f.values}}}, nil
}

func (f *fakeFeast) Close() error { return nil }

func routine(t *testing.T) (*feature.Schema, *feature.Registry) {
	t.Helper()
	schema, err := feature.NewSchema([]feature.ColumnConfig{
		{Name: "avg_completion_rate", Type: feature.Numeric, Rule: "value >= 0.0 && value <= 1.0"},
		{Name: "avg_skepped_steps", Type: feature.Numeric},
		{Name: "avg_duration_minutes", Type: feature.Numeric},
		{Name: "runs_count", Type: feature.Numeric},
		{Name: "completion_rate_trend", Type: feature.Numeric},
		{Name: "current_difficulty_level", Type: feature.Categorical, Encoder: "difficulty"},
	})
	require.NoError(t, err)
	reg := feature.NewRegistry()
	require.NoError(t, reg.RegisterInline("difficulty", []any{"easy", "medium", "hard"}))
	require.NoError(t, reg.RegisterInline("next_level", []any{"easy", "medium", "hard"}))
	require.NoError(t, schema.Bind(reg))
	return schema, reg
}

func routineRecord() core.InputRecord {
	return core.InputRecord{
		"avg_completion_rate":      0.8,
		"avg_skepped_steps":        1.0,
		"avg_duration_minutes":     12.0,
		"runs_count":               5,
		"completion_rate_trend":    0.1,
		"current_difficulty_level": "medium",
	}
}

func TestRoutinePipeline_EndToEnd(t *testing.T) {
	schema, reg := routine(t)
	model := &fakeModel{outputs: [][]float64{{2.0}}}
	adapter, err := infer.New(infer.TreeEnsemble, model)
	require.NoError(t, err)
	enc, _ := reg.Get("next_level")
	dec, err := decode.New(decode.PolicyRoundTrip, decode.Options{Encoder: enc})
	require.NoError(t, err)
	decodeNode := &DecodeNode{Decoder: dec, Keys: decode.DefaultKeys(decode.PolicyRoundTrip)}

	p := &pipeline.Pipeline{Nodes: []pipeline.Node{
		&ValidateNode{Schema: schema},
		&AssembleNode{Schema: schema, Encoders: reg, Logger: zap.NewNop()},
		&InferNode{Adapter: adapter},
		decodeNode,
	}}
	pctx := core.NewPredictContext("routine_difficulty", routineRecord())
	require.NoError(t, p.Run(context.Background(), pctx))

	assert.Equal(t, [][]float64{{0.8, 1.0, 12.0, 5, 0.1, 1.0}}, model.last.Instances)
	assert.Equal(t, "hard", pctx.Result.Label)
	assert.Equal(t, map[string]any{"next_difficulty_level": "hard"}, decodeNode.Render(pctx.Result))
	assert.Equal(t, "infer.tree_ensemble", p.Nodes[2].Name())
	assert.Equal(t, "decode.roundtrip", decodeNode.Name())
}

func TestValidateNode_ReportsAllMissing(t *testing.T) {
	schema, _ := routine(t)
	rec := routineRecord()
	delete(rec, "runs_count")
	rec["avg_duration_minutes"] = nil

	err := (&ValidateNode{Schema: schema}).Process(context.Background(), core.NewPredictContext("uc", rec))
	require.Error(t, err)
	de := core.GetDomainError(err)
	require.NotNil(t, de)
	assert.Equal(t, core.ErrorCodeSchema, de.Code)
	assert.Equal(t, "columns are missing", de.Message)
	assert.ElementsMatch(t, []string{"runs_count", "avg_duration_minutes"}, de.Missing)
	assert.Equal(t, 6, de.ExpectedCount)
	assert.Equal(t, 5, de.ReceivedCount)
}

func TestValidateNode_Rules(t *testing.T) {
	schema, _ := routine(t)
	rec := routineRecord()
	rec["avg_completion_rate"] = 1.7
	err := (&ValidateNode{Schema: schema}).Process(context.Background(), core.NewPredictContext("uc", rec))
	require.Error(t, err)
	assert.True(t, core.IsSchemaError(err))
	violations := core.GetDomainError(err).Violations
	require.Len(t, violations, 1)
	assert.Contains(t, violations[0], "avg_completion_rate")
}

func TestAssembleNode_FallbackHookAndScaler(t *testing.T) {
	schema, reg := routine(t)
	var fallbacks []string
	node := &AssembleNode{
		Schema:     schema,
		Encoders:   reg,
		Scaler:     feature.Scaler{"runs_count": {Mean: 3, Std: 2}},
		OnFallback: func(column string) { fallbacks = append(fallbacks, column) },
	}
	rec := routineRecord()
	rec["current_difficulty_level"] = "legendary"
	pctx := core.NewPredictContext("uc", rec)
	require.NoError(t, node.Process(context.Background(), pctx))

	assert.Equal(t, []string{"current_difficulty_level"}, fallbacks)
	assert.Equal(t, 0.0, pctx.Vector[5])
	assert.Equal(t, 1.0, pctx.Vector[3])
}

func TestStressPipeline_LevelDecode(t *testing.T) {
	tests := []struct {
		name      string
		outputs   [][]float64
		arity     int
		wantLevel string
		wantProb  float64
	}{
		{name: "probabilities", outputs: [][]float64{{0.1, 0.2, 0.6, 0.1}}, arity: 4, wantLevel: "High", wantProb: 0.6},
		{name: "regressor head", outputs: [][]float64{{4.7}}, arity: 1, wantLevel: "Critical", wantProb: 0},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			adapter, err := infer.New(infer.DenseNetwork, &fakeModel{outputs: tt.outputs}, infer.WithArity(tt.arity))
			require.NoError(t, err)
			dec, err := decode.New(decode.PolicyLevel, decode.Options{})
			require.NoError(t, err)

			pctx := core.NewPredictContext("parental_stress", nil)
			pctx.Vector = core.FeatureVector{1, 2, 3}
			p := &pipeline.Pipeline{Nodes: []pipeline.Node{&InferNode{Adapter: adapter}, &DecodeNode{Decoder: dec}}}
			require.NoError(t, p.Run(context.Background(), pctx))
			assert.Equal(t, tt.wantLevel, pctx.Result.Label)
			assert.Equal(t, tt.wantProb, pctx.Result.Probability)
		})
	}
}

func TestInferNode_RequiresInput(t *testing.T) {
	adapter, err := infer.New(infer.TreeEnsemble, &fakeModel{})
	require.NoError(t, err)
	err = (&InferNode{Adapter: adapter}).Process(context.Background(), core.NewPredictContext("uc", nil))
	assert.Equal(t, core.ErrorCodeInternalError, core.ErrorKind(err))

	model := &fakeModel{outputs: [][]float64{{1, 2}}}
	adapter, err = infer.New(infer.TreeEnsemble, model)
	require.NoError(t, err)
	pctx := core.NewPredictContext("uc", nil)
	pctx.Vector = core.FeatureVector{1}
	err = (&InferNode{Adapter: adapter}).Process(context.Background(), pctx)
	assert.True(t, core.IsInferenceError(err))

	node := &InferNode{Adapter: adapter}
	require.NoError(t, node.Close(context.Background()))
	assert.True(t, model.closed)
}

func TestDrawingPipeline_TopK(t *testing.T) {
	labels := []string{"apple", "bag", "cat"}
	model := &fakeModel{outputs: [][]float64{{0.2, 0.7, 0.1}}}
	adapter, err := infer.New(infer.QuantizedInterpreter, model, infer.WithArity(len(labels)))
	require.NoError(t, err)
	dec, err := decode.New(decode.PolicyTopK, decode.Options{Labels: labels})
	require.NoError(t, err)

	img := image.NewRGBA(image.Rect(0, 0, 32, 32))
	for i := range img.Pix {
		img.Pix[i] = 200
	}
	img.Set(0, 0, color.Black)
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))

	pctx := core.NewPredictContext("drawing", nil)
	pctx.Image = buf.Bytes()
	pctx.TopK = 2
	p := &pipeline.Pipeline{Nodes: []pipeline.Node{
		&PreprocessImageNode{Prep: imageprep.New(224, 224)},
		&InferNode{Adapter: adapter},
		&DecodeNode{Decoder: dec},
	}}
	require.NoError(t, p.Run(context.Background(), pctx))

	require.NotNil(t, model.last.Tensor)
	assert.Equal(t, []int{1, 224, 224, 3}, model.last.Tensor.Shape)
	require.Len(t, pctx.Result.TopK, 2)
	top1, _ := pctx.Result.Top1()
	assert.Equal(t, pctx.Result.TopK[0], top1)
	assert.Equal(t, "bag", top1.Label)
	assert.InDelta(t, 70.0, top1.Confidence, 1e-9)
}

func TestPreprocessImageNode_BadUpload(t *testing.T) {
	pctx := core.NewPredictContext("drawing", nil)
	pctx.Image = []byte("nope")
	err := (&PreprocessImageNode{Prep: imageprep.New(0, 0)}).Process(context.Background(), pctx)
	assert.True(t, core.IsInvalidInput(err))
}

func TestExplainNode(t *testing.T) {
	schema, _ := routine(t)
	base := func() *core.PredictContext {
		pctx := core.NewPredictContext("cognitive_progress", nil)
		pctx.Vector = core.FeatureVector{0.8, 1, 12, 5, 0.1, 1}
		pctx.Result = &core.PredictionResult{Kind: core.ResultScore, Score: 3}
		return pctx
	}

	t.Run("schema names with values", func(t *testing.T) {
		degraded := 0
		node := &ExplainNode{
			Explainer:  &fakeModel{impacts: []float64{0.5, -0.1, 0, 0.2, -0.9, 0}},
			Schema:     schema,
			TopK:       3,
			OnDegraded: func() { degraded++ },
		}
		pctx := base()
		require.NoError(t, node.Process(context.Background(), pctx))
		exp := pctx.Result.Explanation
		require.NotNil(t, exp)
		require.Len(t, exp.Factors, 3)
		assert.Equal(t, "completion_rate_trend", exp.Factors[0].Feature)
		require.NotNil(t, exp.Factors[0].Value)
		assert.Equal(t, 0.1, *exp.Factors[0].Value)
		assert.Len(t, exp.Positive, 2)
		assert.Len(t, exp.Negative, 1)
		assert.Equal(t, 0, degraded)
	})

	t.Run("request top_k wins", func(t *testing.T) {
		node := &ExplainNode{Explainer: &fakeModel{impacts: []float64{1, 2, 3, 4, 5, 6}}, Schema: schema, TopK: 3}
		pctx := base()
		pctx.TopK = 1
		require.NoError(t, node.Process(context.Background(), pctx))
		assert.Len(t, pctx.Result.Explanation.Factors, 1)
	})

	t.Run("server names without values", func(t *testing.T) {
		node := &ExplainNode{
			Explainer: &fakeModel{impacts: []float64{0.3, -0.2}, names: []string{"num__age", "cat__mood_sad"}},
			Schema:    schema,
		}
		pctx := base()
		require.NoError(t, node.Process(context.Background(), pctx))
		exp := pctx.Result.Explanation
		assert.Equal(t, "num__age", exp.Positive[0].Feature)
		assert.Nil(t, exp.Positive[0].Value)
	})

	t.Run("length mismatch degrades", func(t *testing.T) {
		degraded := 0
		node := &ExplainNode{
			Explainer:    &fakeModel{impacts: []float64{0.1, 0.2, 0.3, 0.4}},
			FeatureNames: []string{"a", "b", "c"},
			OnDegraded:   func() { degraded++ },
			Logger:       zap.NewNop(),
		}
		pctx := base()
		require.NoError(t, node.Process(context.Background(), pctx))
		assert.Equal(t, explain.MismatchWarning, pctx.Result.Explanation.Warning)
		assert.Empty(t, pctx.Result.Explanation.Positive)
		assert.Equal(t, 1, degraded)
		assert.Equal(t, 3.0, pctx.Result.Score)
	})

	t.Run("backend failure fails the request", func(t *testing.T) {
		node := &ExplainNode{Explainer: &fakeModel{err: errors.New("connection reset")}, Schema: schema}
		err := node.Process(context.Background(), base())
		require.Error(t, err)
		assert.Equal(t, 500, core.HTTPStatus(err))
	})
}

func TestEnrichFeastNode(t *testing.T) {
	client := &fakeFeast{values: map[string]interface{}{
		"routine_stats:avg_completion_rate": 0.8,
		"routine_stats:runs_count":          5.0,
	}}
	node := &EnrichFeastNode{
		Client:    client,
		EntityKey: "child_id",
		Features: map[string]string{
			"avg_completion_rate": "routine_stats:avg_completion_rate",
			"runs_count":          "routine_stats:runs_count",
			"avg_skepped_steps":   "routine_stats:avg_skepped_steps",
		},
		Project: "routine",
	}

	rec := core.InputRecord{"child_id": "c-1", "runs_count": 9}
	pctx := core.NewPredictContext("routine_difficulty", rec)
	require.NoError(t, node.Process(context.Background(), pctx))

	assert.Equal(t, 0.8, pctx.Record["avg_completion_rate"])
	assert.Equal(t, 9, pctx.Record["runs_count"])
	assert.NotContains(t, pctx.Record, "avg_skepped_steps")
	assert.Equal(t, []string{"routine_stats:avg_completion_rate", "routine_stats:avg_skepped_steps"}, client.last.Features)
	assert.Equal(t, []map[string]interface{}{{"child_id": "c-1"}}, client.last.EntityRows)

	client.last = nil
	require.NoError(t, node.Process(context.Background(), core.NewPredictContext("uc", core.InputRecord{"runs_count": 1})))
	assert.Nil(t, client.last)

	client.err = errors.New("deadline exceeded")
	err := node.Process(context.Background(), core.NewPredictContext("uc", core.InputRecord{"child_id": "c-2"}))
	assert.True(t, core.IsUnavailable(err))
}
