package model

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	"DefectVision/internal/entity"
)

var ErrLabelMismatch = errors.New("label count does not match model output")

// Context bundles the loaded scorer with its label list. It is built once at
// startup and never mutated, so a single value is shared by every request.
type Context struct {
	scorer    Scorer
	labels    []Label
	imageSize int
	id        string
}

func NewContext(scorer Scorer, labels []Label, imageSize int) (*Context, error) {
	if scorer == nil {
		return nil, errors.New("scorer is required")
	}
	if len(labels) == 0 {
		return nil, errors.New("at least one label is required")
	}
	if imageSize <= 0 {
		return nil, fmt.Errorf("invalid image size %d", imageSize)
	}

	if width := scorer.OutputWidth(); width > 0 && width != len(labels) {
		return nil, fmt.Errorf("%w: model outputs %d scores for %d labels", ErrLabelMismatch, width, len(labels))
	}

	// NHWC with a batch axis; only spatial axes that are declared are checked.
	if shape := scorer.InputShape(); len(shape) == 4 {
		for _, d := range shape[1:3] {
			if d > 0 && d != int64(imageSize) {
				return nil, fmt.Errorf("model expects %dx%d input, configured image size is %d", shape[1], shape[2], imageSize)
			}
		}
		if c := shape[3]; c > 0 && c != 3 {
			return nil, fmt.Errorf("model expects %d channels in the last axis, images provide 3", c)
		}
	}

	return &Context{
		scorer:    scorer,
		labels:    append([]Label(nil), labels...),
		imageSize: imageSize,
		id:        contextID(scorer.Digest(), labels, imageSize),
	}, nil
}

// contextID changes whenever the weights, the label list or the input
// resolution change, so anything keyed by it never outlives a redeploy.
func contextID(digest string, labels []Label, imageSize int) string {
	h := sha256.New()
	fmt.Fprintf(h, "%s\n%d\n", digest, imageSize)
	for _, l := range labels {
		fmt.Fprintf(h, "%d=%s\n", l.Index, l.Name)
	}
	return hex.EncodeToString(h.Sum(nil))[:16]
}

func (c *Context) ID() string {
	return c.id
}

func (c *Context) Labels() []Label {
	return append([]Label(nil), c.labels...)
}

func (c *Context) ImageSize() int {
	return c.imageSize
}

func (c *Context) Backend() string {
	return c.scorer.Backend()
}

func (c *Context) Close() error {
	return c.scorer.Close()
}

func (c *Context) Predict(ctx context.Context, input Tensor) (*entity.PredictionResult, error) {
	if want := int64(c.imageSize) * int64(c.imageSize) * 3; input.Size() != want || int64(len(input.Data)) != want {
		return nil, fmt.Errorf("input tensor has %d values, expected %d", len(input.Data), want)
	}

	scores, err := c.scorer.Score(ctx, input)
	if err != nil {
		return nil, err
	}

	return Rank(c.labels, scores)
}

// Rank turns a score vector into a result. Scores are taken as already
// normalised; ties keep label order so the head of the ranking is always the
// first maximum.
func Rank(labels []Label, scores []float32) (*entity.PredictionResult, error) {
	if len(scores) != len(labels) {
		return nil, fmt.Errorf("%w: got %d scores for %d labels", ErrLabelMismatch, len(scores), len(labels))
	}

	ranking := make(entity.Ranking, len(labels))
	for i, l := range labels {
		ranking[i] = entity.LabelScore{Label: l.Name, Score: scores[i]}
	}
	sort.SliceStable(ranking, func(i, j int) bool {
		return ranking[i].Score > ranking[j].Score
	})

	top := ranking[0]
	return &entity.PredictionResult{
		Defect:         top.Label,
		Confidence:     FormatConfidence(top.Score),
		AllPredictions: ranking,
	}, nil
}

func FormatConfidence(score float32) string {
	return fmt.Sprintf("%.2f%%", float64(score)*100)
}
