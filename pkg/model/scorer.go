package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
)

const (
	BackendGo  = "go"
	BackendORT = "ort"
)

// Tensor is a dense float32 array in row-major order.
type Tensor struct {
	Shape []int64
	Data  []float32
}

func (t Tensor) Size() int64 {
	if len(t.Shape) == 0 {
		return 0
	}
	n := int64(1)
	for _, d := range t.Shape {
		n *= d
	}
	return n
}

// Scorer is the trained network seen as an opaque function from one batched
// image tensor to a vector of per-class scores.
type Scorer interface {
	Score(ctx context.Context, input Tensor) ([]float32, error)
	// InputShape reports the declared input dimensions; -1 marks a dynamic axis.
	InputShape() []int64
	// OutputWidth is the number of classes, or -1 when the model leaves it dynamic.
	OutputWidth() int
	// Digest identifies the loaded weights; two scorers with equal digests
	// produce equal scores.
	Digest() string
	Backend() string
	Close() error
}

type ScorerConfig struct {
	Backend           string
	ModelPath         string
	SharedLibraryPath string
}

func NewScorer(cfg ScorerConfig) (Scorer, error) {
	switch cfg.Backend {
	case "", BackendGo:
		return newGoScorer(cfg.ModelPath)
	case BackendORT:
		return newORTScorer(cfg.ModelPath, cfg.SharedLibraryPath)
	default:
		return nil, fmt.Errorf("unknown model backend %q", cfg.Backend)
	}
}

func staticDim(d int64) int64 {
	if d <= 0 {
		return -1
	}
	return d
}

func digestBytes(data []byte) string {
	sum := sha256.Sum256(data)
	return hex.EncodeToString(sum[:])
}
