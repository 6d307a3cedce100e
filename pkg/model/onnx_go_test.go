package model

import (
	"context"
	"os"
	"path/filepath"
	"testing"

	"github.com/advancedclimatesystems/gonnx/onnx"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"google.golang.org/protobuf/proto"
)

const (
	graphSize    = 4
	graphClasses = 6
)

func floatValueInfo(name string, dims ...int64) *onnx.ValueInfoProto {
	shape := &onnx.TensorShapeProto{}
	for _, d := range dims {
		shape.Dim = append(shape.Dim, &onnx.TensorShapeProto_Dimension{
			Value: &onnx.TensorShapeProto_Dimension_DimValue{DimValue: d},
		})
	}
	return &onnx.ValueInfoProto{
		Name: name,
		Type: &onnx.TypeProto{
			Value: &onnx.TypeProto_TensorType{
				TensorType: &onnx.TypeProto_Tensor{
					ElemType: int32(onnx.TensorProto_FLOAT),
					Shape:    shape,
				},
			},
		},
	}
}

// classifierGraph is Flatten -> MatMul -> Softmax over a [1, 4, 4, 3] image.
// The weights send every pixel to the last class, so brighter images score
// higher on it.
func classifierGraph(weightsAsInput bool, output string) *onnx.ModelProto {
	features := int64(graphSize * graphSize * 3)
	weights := make([]float32, features*graphClasses)
	for i := int64(0); i < features; i++ {
		weights[i*graphClasses+graphClasses-1] = 1
	}

	graph := &onnx.GraphProto{
		Name: "defects",
		Node: []*onnx.NodeProto{
			{Name: "flatten", OpType: "Flatten", Input: []string{"image"}, Output: []string{"flat"}},
			{Name: "dense", OpType: "MatMul", Input: []string{"flat", "W"}, Output: []string{"logits"}},
			{Name: "softmax", OpType: "Softmax", Input: []string{"logits"}, Output: []string{"probs"}},
		},
		Initializer: []*onnx.TensorProto{{
			Name:      "W",
			Dims:      []int64{features, graphClasses},
			DataType:  int32(onnx.TensorProto_FLOAT),
			FloatData: weights,
		}},
		Input:  []*onnx.ValueInfoProto{floatValueInfo("image", 1, graphSize, graphSize, 3)},
		Output: []*onnx.ValueInfoProto{floatValueInfo(output, 1, graphClasses)},
	}
	if weightsAsInput {
		graph.Input = append(graph.Input, floatValueInfo("W", features, graphClasses))
	}

	return &onnx.ModelProto{
		IrVersion:   7,
		OpsetImport: []*onnx.OperatorSetIdProto{{Version: 13}},
		Graph:       graph,
	}
}

func writeModel(t *testing.T, mp *onnx.ModelProto) string {
	t.Helper()
	raw, err := proto.Marshal(mp)
	require.NoError(t, err)
	path := filepath.Join(t.TempDir(), "model.onnx")
	require.NoError(t, os.WriteFile(path, raw, 0o600))
	return path
}

func uniformTensor(v float32) Tensor {
	data := make([]float32, graphSize*graphSize*3)
	for i := range data {
		data[i] = v
	}
	return Tensor{Shape: []int64{1, graphSize, graphSize, 3}, Data: data}
}

func TestGoScorerRunsGraph(t *testing.T) {
	for _, weightsAsInput := range []bool{false, true} {
		name := "weights as initializer"
		if weightsAsInput {
			name = "weights also listed as input"
		}
		t.Run(name, func(t *testing.T) {
			scorer, err := NewScorer(ScorerConfig{Backend: BackendGo, ModelPath: writeModel(t, classifierGraph(weightsAsInput, "probs"))})
			require.NoError(t, err)
			defer scorer.Close()

			assert.Equal(t, []int64{1, graphSize, graphSize, 3}, scorer.InputShape())
			assert.Equal(t, graphClasses, scorer.OutputWidth())
			assert.Len(t, scorer.Digest(), 64)

			modelCtx, err := NewContext(scorer, LabelsFromNames(DefaultLabels), graphSize)
			require.NoError(t, err)

			result, err := modelCtx.Predict(context.Background(), uniformTensor(0.1))
			require.NoError(t, err)
			assert.Equal(t, "Scratches", result.Defect)
			require.Len(t, result.AllPredictions, graphClasses)

			var sum float32
			for _, ls := range result.AllPredictions {
				sum += ls.Score
			}
			assert.InDelta(t, 1.0, sum, 1e-5)
			// e^4.8 / (e^4.8 + 5)
			assert.InDelta(t, 0.9605, result.AllPredictions[0].Score, 1e-3)

			// the other classes share logit 0 and keep label order
			assert.Equal(t, "Crazing", result.AllPredictions[1].Label)
		})
	}
}

func TestGoScorerDigestFollowsWeights(t *testing.T) {
	a, err := NewScorer(ScorerConfig{ModelPath: writeModel(t, classifierGraph(false, "probs"))})
	require.NoError(t, err)
	b, err := NewScorer(ScorerConfig{ModelPath: writeModel(t, classifierGraph(false, "probs"))})
	require.NoError(t, err)
	assert.Equal(t, a.Digest(), b.Digest())

	changed := classifierGraph(false, "probs")
	changed.Graph.Initializer[0].FloatData[0] = 2
	c, err := NewScorer(ScorerConfig{ModelPath: writeModel(t, changed)})
	require.NoError(t, err)
	assert.NotEqual(t, a.Digest(), c.Digest())
}

func TestGoScorerMissingOutput(t *testing.T) {
	scorer, err := NewScorer(ScorerConfig{ModelPath: writeModel(t, classifierGraph(false, "scores"))})
	require.NoError(t, err)

	_, err = scorer.Score(context.Background(), uniformTensor(0.5))
	assert.Error(t, err)
}

func TestGoScorerRejectsTwoFeeds(t *testing.T) {
	mp := classifierGraph(false, "probs")
	mp.Graph.Input = append(mp.Graph.Input, floatValueInfo("mask", 1, graphSize))

	_, err := NewScorer(ScorerConfig{ModelPath: writeModel(t, mp)})
	assert.Error(t, err)
}

func TestGoScorerCancelledContext(t *testing.T) {
	scorer, err := NewScorer(ScorerConfig{ModelPath: writeModel(t, classifierGraph(false, "probs"))})
	require.NoError(t, err)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	_, err = scorer.Score(ctx, uniformTensor(0.5))
	assert.ErrorIs(t, err, context.Canceled)
}
