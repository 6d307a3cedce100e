//go:build ORT

package model

import (
	"context"
	"errors"
	"fmt"
	"os"

	ort "github.com/yalue/onnxruntime_go"
)

// ortScorer uses a dynamic session: tensors are created per call, so
// concurrent Score calls do not share buffers.
type ortScorer struct {
	session     *ort.DynamicAdvancedSession
	digest      string
	inputShape  []int64
	outputWidth int
}

func newORTScorer(modelPath, sharedLibraryPath string) (Scorer, error) {
	onnxBytes, err := os.ReadFile(modelPath)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", modelPath, err)
	}

	if sharedLibraryPath != "" {
		ort.SetSharedLibraryPath(sharedLibraryPath)
	}
	if !ort.IsInitialized() {
		if err := ort.InitializeEnvironment(); err != nil {
			return nil, fmt.Errorf("failed to initialize ONNX environment: %w", err)
		}
	}

	inputs, outputs, err := ort.GetInputOutputInfoWithONNXData(onnxBytes)
	if err != nil {
		return nil, fmt.Errorf("failed to read model %s: %w", modelPath, err)
	}
	if len(inputs) != 1 || len(outputs) != 1 {
		return nil, fmt.Errorf("expected a single input and output, model has %d inputs and %d outputs", len(inputs), len(outputs))
	}

	session, err := ort.NewDynamicAdvancedSessionWithONNXData(onnxBytes,
		[]string{inputs[0].Name}, []string{outputs[0].Name}, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create ONNX session: %w", err)
	}

	s := &ortScorer{session: session, digest: digestBytes(onnxBytes), outputWidth: -1}
	for _, d := range inputs[0].Dimensions {
		s.inputShape = append(s.inputShape, staticDim(d))
	}
	if dims := outputs[0].Dimensions; len(dims) > 0 {
		s.outputWidth = int(staticDim(dims[len(dims)-1]))
	}
	return s, nil
}

func (s *ortScorer) Score(ctx context.Context, input Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	inputTensor, err := ort.NewTensor(ort.NewShape(input.Shape...), input.Data)
	if err != nil {
		return nil, fmt.Errorf("failed to create input tensor: %w", err)
	}
	defer inputTensor.Destroy()

	outputs := []ort.Value{nil}
	if err := s.session.Run([]ort.Value{inputTensor}, outputs); err != nil {
		return nil, fmt.Errorf("inference failed: %w", err)
	}
	defer outputs[0].Destroy()

	out, ok := outputs[0].(*ort.Tensor[float32])
	if !ok {
		return nil, errors.New("model output is not float32")
	}

	result := make([]float32, len(out.GetData()))
	copy(result, out.GetData())
	return result, nil
}

func (s *ortScorer) InputShape() []int64 {
	return append([]int64(nil), s.inputShape...)
}

func (s *ortScorer) OutputWidth() int {
	return s.outputWidth
}

func (s *ortScorer) Digest() string {
	return s.digest
}

func (s *ortScorer) Backend() string {
	return BackendORT
}

func (s *ortScorer) Close() error {
	if s.session != nil {
		if err := s.session.Destroy(); err != nil {
			return err
		}
	}
	return ort.DestroyEnvironment()
}
