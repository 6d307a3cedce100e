package entity

import (
	"bytes"
	"fmt"
	"math"
	"strconv"

	jsoniter "github.com/json-iterator/go"
)

type LabelScore struct {
	Label string  `json:"label"`
	Score float32 `json:"score"`
}

// Ranking is a label -> score mapping kept in descending score order. It
// encodes as a JSON object whose keys appear in that order.
type Ranking []LabelScore

func (r Ranking) MarshalJSON() ([]byte, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, ls := range r {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := jsoniter.Marshal(ls.Label)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		if f := float64(ls.Score); math.IsNaN(f) || math.IsInf(f, 0) {
			return nil, fmt.Errorf("score for %q is not a finite number", ls.Label)
		}
		buf.WriteString(strconv.FormatFloat(float64(ls.Score), 'g', -1, 32))
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}

func (r Ranking) Top() (LabelScore, bool) {
	if len(r) == 0 {
		return LabelScore{}, false
	}
	return r[0], true
}

type PredictionResult struct {
	Defect         string  `json:"defect"`
	Confidence     string  `json:"confidence"`
	AllPredictions Ranking `json:"all_predictions"`
}
