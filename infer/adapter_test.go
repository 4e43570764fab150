package infer

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/rushteam/inferkit/core"
)

type fakeService struct {
	outputs [][]float64
	err     error
	last    *core.MLPredictRequest
}

func (f *fakeService) Predict(ctx context.Context, req *core.MLPredictRequest) (*core.MLPredictResponse, error) {
	f.last = req
	if f.err != nil {
		return nil, f.err
	}
	return core.NewMLPredictResponse(f.outputs, ""), nil
}

func (f *fakeService) Health(ctx context.Context) error { return nil }
func (f *fakeService) Close(ctx context.Context) error  { return nil }

func TestAdapter_TreeEnsemble(t *testing.T) {
	svc := &fakeService{outputs: [][]float64{{2}}}
	a, err := New(TreeEnsemble, svc, WithModelName("routine"))
	require.NoError(t, err)

	out, err := a.Infer(context.Background(), core.FeatureVector{0.8, 1, 12, 5, 0.1, 1})
	require.NoError(t, err)
	assert.Equal(t, core.ScalarOutput(2), out)
	assert.Equal(t, [][]float64{{0.8, 1, 12, 5, 0.1, 1}}, svc.last.Instances)
	assert.Equal(t, "routine", svc.last.ModelName)

	svc.outputs = [][]float64{{0.2, 0.8}}
	_, err = a.Infer(context.Background(), core.FeatureVector{1})
	require.Error(t, err)
	assert.True(t, core.IsInferenceError(err))
	assert.Contains(t, err.Error(), "(2,) want (1,)")
}

func TestAdapter_DenseNetworkArity(t *testing.T) {
	tests := []struct {
		name    string
		arity   int
		outputs [][]float64
		want    core.RawOutput
		errText string
	}{
		{name: "four-way", arity: 4, outputs: [][]float64{{0.1, 0.2, 0.6, 0.1}}, want: core.VectorOutput([]float64{0.1, 0.2, 0.6, 0.1})},
		{name: "arity mismatch", arity: 4, outputs: [][]float64{{0.5, 0.5, 0}}, errText: "(3,) want (4,)"},
		{name: "regressor head", arity: 1, outputs: [][]float64{{4.7}}, want: core.ScalarOutput(4.7)},
		{name: "unchecked width", arity: 0, outputs: [][]float64{{1, 2}}, want: core.VectorOutput([]float64{1, 2})},
		{name: "empty output", arity: 4, outputs: nil, errText: "no output"},
		{name: "empty row", arity: 4, outputs: [][]float64{{}}, errText: "(0,)"},
		{name: "batch mismatch", arity: 2, outputs: [][]float64{{1, 2}, {3, 4}}, errText: "batch size"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			a, err := New(DenseNetwork, &fakeService{outputs: tt.outputs}, WithArity(tt.arity))
			require.NoError(t, err)
			out, err := a.Infer(context.Background(), core.FeatureVector{1, 2, 3})
			if tt.errText != "" {
				require.Error(t, err)
				assert.True(t, core.IsInferenceError(err))
				assert.Contains(t, err.Error(), tt.errText)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.want, out)
		})
	}
}

func TestAdapter_QuantizedInterpreter(t *testing.T) {
	svc := &fakeService{outputs: [][]float64{{0.1, 0.7, 0.2}}}
	a, err := New(QuantizedInterpreter, svc, WithArity(3))
	require.NoError(t, err)

	tensor := &core.Tensor{Shape: []int{1, 2, 2, 3}, Data: make([]float32, 12)}
	out, err := a.InferTensor(context.Background(), tensor)
	require.NoError(t, err)
	assert.Equal(t, core.RawVector, out.Kind)
	assert.Same(t, tensor, svc.last.Tensor)

	_, err = a.Infer(context.Background(), core.FeatureVector{1})
	assert.Error(t, err)

	tree, err := New(TreeEnsemble, svc)
	require.NoError(t, err)
	_, err = tree.InferTensor(context.Background(), tensor)
	assert.Error(t, err)
}

func TestAdapter_ServiceErrors(t *testing.T) {
	unavailable := core.NewDomainError(core.ModuleService, core.ErrorCodeUnavailable, "down")
	a, err := New(TreeEnsemble, &fakeService{err: unavailable})
	require.NoError(t, err)
	_, err = a.Infer(context.Background(), core.FeatureVector{1})
	assert.True(t, core.IsUnavailable(err))

	a, err = New(TreeEnsemble, &fakeService{err: errors.New("parse failure")})
	require.NoError(t, err)
	_, err = a.Infer(context.Background(), core.FeatureVector{1})
	assert.True(t, core.IsInferenceError(err))
}

func TestNew_Validation(t *testing.T) {
	_, err := New("svm", &fakeService{})
	assert.Error(t, err)
	_, err = New(TreeEnsemble, nil)
	assert.Error(t, err)
	_, err = New(DenseNetwork, &fakeService{}, WithArity(-1))
	assert.Error(t, err)

	k, err := ParseKind("dense_network")
	require.NoError(t, err)
	assert.Equal(t, DenseNetwork, k)
}
