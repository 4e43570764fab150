package builders

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/inferkit/config"
	"github.com/rushteam/inferkit/core"
	"github.com/rushteam/inferkit/feature"
	"github.com/rushteam/inferkit/pipeline"
	"github.com/rushteam/inferkit/stage"
	"github.com/rushteam/inferkit/store"
)

func modelServer(t *testing.T, outputs [][]float64, calls *int) *httptest.Server {
	t.Helper()
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if calls != nil {
			*calls++
		}
		w.Header().Set("Content-Type", "application/json")
		switch r.URL.Path {
		case "/explain":
			_ = json.NewEncoder(w).Encode(map[string]any{"shap_values": []float64{0.4, -0.2}})
		default:
			_ = json.NewEncoder(w).Encode(map[string]any{"outputs": outputs})
		}
	}))
	t.Cleanup(srv.Close)
	return srv
}

func testEnv(t *testing.T) *pipeline.BuildEnv {
	t.Helper()
	schema, err := feature.NewSchema([]feature.ColumnConfig{
		{Name: "score", Type: feature.Numeric},
		{Name: "level", Type: feature.Categorical},
	})
	require.NoError(t, err)
	reg := feature.NewRegistry()
	require.NoError(t, reg.RegisterInline("level", []any{"easy", "medium", "hard"}))
	require.NoError(t, schema.Bind(reg))
	return &pipeline.BuildEnv{UseCase: "demo", Schema: schema, Encoders: reg, DefaultTopK: 3}
}

func TestRegisteredTypes(t *testing.T) {
	types := config.SupportedTypes()
	for _, want := range []string{
		"enrich.feast", "validate", "assemble", "preprocess.image",
		"infer.tree_ensemble", "infer.dense_network", "infer.quantized_interpreter",
		"decode.argmax", "decode.clamp", "decode.level", "decode.roundtrip", "decode.score", "decode.topk",
		"explain",
	} {
		assert.Contains(t, types, want)
	}

	uc := &pipeline.UseCaseConfig{Name: "x", Nodes: []pipeline.NodeConfig{{Type: "validate"}, {Type: "rank.lr"}}}
	err := config.ValidateUseCase(uc)
	assert.ErrorContains(t, err, `unsupported node type "rank.lr"`)
}

func TestBuildPipeline_FromConfig(t *testing.T) {
	calls := 0
	srv := modelServer(t, [][]float64{{2}}, &calls)
	env := testEnv(t)
	env.Cache = store.NewMemoryStore()
	t.Cleanup(func() { _ = env.Cache.Close() })
	var hits []bool
	env.Hooks.CacheResult = func(uc string, hit bool) { hits = append(hits, hit) }

	nodes := []pipeline.NodeConfig{
		{Type: "validate"},
		{Type: "assemble"},
		{Type: "infer.tree_ensemble", Config: map[string]interface{}{
			"service": map[string]interface{}{"type": "rpc", "endpoint": srv.URL + "/predict"},
		}},
		{Type: "decode.roundtrip", Config: map[string]interface{}{
			"encoder": "level",
			"keys":    map[string]interface{}{"label": "next_level"},
		}},
	}
	p, err := pipeline.BuildPipeline(nodes, config.DefaultFactory(), env)
	require.NoError(t, err)
	require.Len(t, p.Nodes, 4)

	for i := 0; i < 2; i++ {
		pctx := core.NewPredictContext("demo", core.InputRecord{"score": 1, "level": "Medium"})
		require.NoError(t, p.Run(context.Background(), pctx))
		assert.Equal(t, "hard", pctx.Result.Label)
		body := p.Nodes[3].(*stage.DecodeNode).Render(pctx.Result)
		assert.Equal(t, map[string]any{"next_level": "hard"}, body)
	}
	assert.Equal(t, 1, calls)
	assert.Equal(t, []bool{false, true}, hits)
	require.NoError(t, p.Close(context.Background()))
}

func TestBuildDecodeNode(t *testing.T) {
	env := testEnv(t)
	tests := []struct {
		name    string
		nodeTyp string
		cfg     map[string]interface{}
		labels  []string
		wantErr string
	}{
		{name: "level defaults", nodeTyp: "decode.level"},
		{name: "clamp range", nodeTyp: "decode.clamp", cfg: map[string]interface{}{"lo": 0, "hi": 2}},
		{name: "clamp out of range", nodeTyp: "decode.clamp", cfg: map[string]interface{}{"hi": 9}, wantErr: "clamp range"},
		{name: "custom levels", nodeTyp: "decode.argmax", cfg: map[string]interface{}{"levels": []interface{}{"no", "yes"}}},
		{name: "unknown encoder", nodeTyp: "decode.roundtrip", cfg: map[string]interface{}{"encoder": "nope"}, wantErr: "not loaded"},
		{name: "roundtrip needs encoder", nodeTyp: "decode.roundtrip", wantErr: "label encoder"},
		{name: "topk needs labels", nodeTyp: "decode.topk", wantErr: "labels"},
		{name: "topk with labels", nodeTyp: "decode.topk", labels: []string{"a", "b"}},
		{name: "bad key", nodeTyp: "decode.score", cfg: map[string]interface{}{"keys": map[string]interface{}{"nope": "x"}}, wantErr: "unknown response key"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			e := *env
			e.Labels = tt.labels
			_, err := config.DefaultFactory().Build(tt.nodeTyp, tt.cfg, &e)
			if tt.wantErr != "" {
				assert.ErrorContains(t, err, tt.wantErr)
				return
			}
			assert.NoError(t, err)
		})
	}
}

func TestBuildInferNode_Errors(t *testing.T) {
	env := testEnv(t)
	f := config.DefaultFactory()

	_, err := f.Build("infer.dense_network", nil, env)
	assert.ErrorContains(t, err, "service not found")

	_, err = f.Build("infer.dense_network", map[string]interface{}{
		"service": map[string]interface{}{"type": "kserve", "endpoint": "localhost:8080"},
	}, env)
	assert.ErrorContains(t, err, "http(s)")

	env.Labels = []string{"a", "b", "c"}
	node, err := f.Build("infer.quantized_interpreter", map[string]interface{}{
		"service": map[string]interface{}{"type": "kserve", "endpoint": "http://localhost:8080", "model_name": "drawing", "protocol": "v2"},
	}, env)
	require.NoError(t, err)
	assert.Equal(t, 3, node.(*stage.InferNode).Adapter.Arity())
}

func TestBuildExplainNode(t *testing.T) {
	srv := modelServer(t, nil, nil)
	env := testEnv(t)
	node, err := config.DefaultFactory().Build("explain", map[string]interface{}{
		"service": map[string]interface{}{
			"type":             "rpc",
			"endpoint":         srv.URL + "/predict",
			"explain_endpoint": srv.URL + "/explain",
		},
	}, env)
	require.NoError(t, err)
	assert.Equal(t, 3, node.(*stage.ExplainNode).TopK)

	pctx := core.NewPredictContext("demo", nil)
	pctx.Vector = core.FeatureVector{1, 2}
	pctx.Result = &core.PredictionResult{Kind: core.ResultScore}
	require.NoError(t, node.Process(context.Background(), pctx))
	assert.Equal(t, "score", pctx.Result.Explanation.Positive[0].Feature)
	assert.Equal(t, "level", pctx.Result.Explanation.Negative[0].Feature)

	_, err = config.DefaultFactory().Build("explain", map[string]interface{}{
		"service": map[string]interface{}{"type": "rpc", "endpoint": srv.URL},
	}, env)
	assert.ErrorContains(t, err, "does not support explanations")
}

func TestBuildEnrichFeastNode_RequiresClient(t *testing.T) {
	_, err := config.DefaultFactory().Build("enrich.feast", map[string]interface{}{"entity_key": "child_id"}, testEnv(t))
	assert.ErrorContains(t, err, "feature store client")
}

func TestBuildValidateNode_RequiresSchema(t *testing.T) {
	_, err := config.DefaultFactory().Build("validate", nil, &pipeline.BuildEnv{})
	assert.ErrorContains(t, err, "schema")

	node, err := config.DefaultFactory().Build("preprocess.image", map[string]interface{}{"width": 64, "height": 64}, nil)
	require.NoError(t, err)
	assert.Equal(t, 64, node.(*stage.PreprocessImageNode).Prep.Width)
}
