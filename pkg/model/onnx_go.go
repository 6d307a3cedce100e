package model

import (
	"context"
	"errors"
	"fmt"
	"os"
	"sync"

	"github.com/advancedclimatesystems/gonnx"
	"gorgonia.org/tensor"
)

// goScorer runs the network with the pure Go ONNX interpreter. Every run
// allocates all intermediate tensors, so runs are serialised to bound memory.
type goScorer struct {
	mu          sync.Mutex
	model       *gonnx.Model
	digest      string
	inputName   string
	outputName  string
	inputShape  []int64
	outputWidth int
}

func newGoScorer(modelPath string) (Scorer, error) {
	onnxBytes, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", modelPath, err)
	}

	m, err := gonnx.NewModelFromBytes(onnxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to parse model %s: %w", modelPath, err)
	}

	inputNames := feedInputs(m)
	outputNames := m.OutputNames()
	if len(inputNames) != 1 || len(outputNames) != 1 {
		return nil, fmt.Errorf("expected a single input and output, model has %d inputs and %d outputs", len(inputNames), len(outputNames))
	}

	s := &goScorer{
		model:       m,
		digest:      digestBytes(onnxBytes),
		inputName:   inputNames[0],
		outputName:  outputNames[0],
		outputWidth: -1,
	}

	for _, d := range m.InputShapes()[s.inputName] {
		s.inputShape = append(s.inputShape, staticDim(d.Size))
	}

	outShape := m.OutputShapes()[s.outputName]
	if len(outShape) > 0 {
		s.outputWidth = int(staticDim(outShape[len(outShape)-1].Size))
	}

	return s, nil
}

func (s *goScorer) Score(ctx context.Context, input Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	shape := make([]int, len(input.Shape))
	for i, d := range input.Shape {
		shape[i] = int(d)
	}

	inputs := map[string]tensor.Tensor{
		s.inputName: tensor.New(
			tensor.Of(tensor.Float32),
			tensor.WithShape(shape...),
			tensor.WithBacking(input.Data),
		),
	}

	s.mu.Lock()
	outputs, err := s.model.Run(inputs)
	s.mu.Unlock()
	if err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}

	out, ok := outputs[s.outputName]
	if !ok || out == nil {
		return nil, fmt.Errorf("model produced no %q output", s.outputName)
	}
	scores, ok := out.Data().([]float32)
	if !ok {
		return nil, errors.New("model output is not float32")
	}

	result := make([]float32, len(scores))
	copy(result, scores)
	return result, nil
}

func (s *goScorer) InputShape() []int64 {
	return append([]int64(nil), s.inputShape...)
}

func (s *goScorer) OutputWidth() int {
	return s.outputWidth
}

func (s *goScorer) Digest() string {
	return s.digest
}

func (s *goScorer) Backend() string {
	return BackendGo
}

func (s *goScorer) Close() error {
	return nil
}

// feedInputs drops graph inputs that are initializers. Older exporters list
// weights as inputs too; the interpreter supplies those itself.
func feedInputs(m *gonnx.Model) []string {
	params := make(map[string]struct{})
	for _, name := range m.ParamNames() {
		params[name] = struct{}{}
	}

	var names []string
	for _, name := range m.InputNames() {
		if _, ok := params[name]; !ok {
			names = append(names, name)
		}
	}
	return names
}
