// Package modeltest provides a scripted Scorer for tests that need a model
// context without an ONNX file.
package modeltest

import (
	"context"
	"fmt"
	"sync"

	"DefectVision/pkg/model"
)

type Scorer struct {
	Scores []float32
	// Shape is reported as the input shape; nil means fully dynamic.
	Shape []int64
	// Width overrides the reported output width. Zero means len(Scores).
	Width int
	// ID is reported as the digest. Empty means one derived from Scores.
	ID  string
	Err error

	mu     sync.Mutex
	calls  int
	inputs []model.Tensor
}

func (s *Scorer) Score(ctx context.Context, input model.Tensor) ([]float32, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	s.calls++
	s.inputs = append(s.inputs, input)
	s.mu.Unlock()

	if s.Err != nil {
		return nil, s.Err
	}
	return append([]float32(nil), s.Scores...), nil
}

func (s *Scorer) InputShape() []int64 {
	return s.Shape
}

func (s *Scorer) OutputWidth() int {
	if s.Width != 0 {
		return s.Width
	}
	return len(s.Scores)
}

func (s *Scorer) Digest() string {
	if s.ID != "" {
		return s.ID
	}
	return fmt.Sprintf("stub:%v", s.Scores)
}

func (s *Scorer) Backend() string {
	return "stub"
}

func (s *Scorer) Close() error {
	return nil
}

func (s *Scorer) Calls() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.calls
}

func (s *Scorer) Inputs() []model.Tensor {
	s.mu.Lock()
	defer s.mu.Unlock()
	return append([]model.Tensor(nil), s.inputs...)
}

// NewContext wraps a Scorer returning scores in a context over the default
// labels at 224x224.
func NewContext(scores ...float32) (*model.Context, *Scorer, error) {
	scorer := &Scorer{Scores: scores}
	modelCtx, err := model.NewContext(scorer, model.LabelsFromNames(model.DefaultLabels), 224)
	if err != nil {
		return nil, nil, err
	}
	return modelCtx, scorer, nil
}
