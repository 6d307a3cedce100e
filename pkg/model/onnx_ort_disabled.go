//go:build !ORT

package model

import "errors"

func newORTScorer(string, string) (Scorer, error) {
	return nil, errors.New("onnxruntime backend is not compiled in, build with -tags ORT")
}
