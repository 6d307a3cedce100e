package main

import (
	"context"
	"fmt"
	"io"
	"os"

	"DefectVision/pkg/imageutil"
	"DefectVision/pkg/model"

	jsoniter "github.com/json-iterator/go"
	"github.com/urfave/cli/v2"
)

var (
	modelPath         string
	labelsPath        string
	backend           string
	sharedLibraryPath string
	imageSize         int
)

type fileResult struct {
	File  string      `json:"file"`
	Error string      `json:"error,omitempty"`
	Data  interface{} `json:"result,omitempty"`
}

func main() {
	app := &cli.App{
		Name:      "classify",
		Usage:     "Classify surface defect images with a local model",
		ArgsUsage: "IMAGE [IMAGE...]",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:        "model",
				Usage:       "Path to the .onnx model",
				Aliases:     []string{"m"},
				Value:       "defect_model_best.onnx",
				EnvVars:     []string{"MODEL_PATH"},
				Destination: &modelPath,
			},
			&cli.StringFlag{
				Name:        "labels",
				Usage:       "Path to the class index JSON; built-in labels are used when missing",
				Aliases:     []string{"l"},
				Value:       "class_indices.json",
				EnvVars:     []string{"CLASS_INDICES_PATH"},
				Destination: &labelsPath,
			},
			&cli.StringFlag{
				Name:        "backend",
				Usage:       "Scoring backend: go or ort",
				Aliases:     []string{"b"},
				Value:       model.BackendGo,
				EnvVars:     []string{"MODEL_BACKEND"},
				Destination: &backend,
			},
			&cli.StringFlag{
				Name:        "onnxruntimeSharedLibrary",
				Usage:       "Path to onnxruntime.so (ort backend only)",
				Aliases:     []string{"s"},
				EnvVars:     []string{"ONNXRUNTIME_SHARED_LIBRARY"},
				Destination: &sharedLibraryPath,
			},
			&cli.IntFlag{
				Name:        "size",
				Usage:       "Square input resolution of the model",
				Value:       224,
				EnvVars:     []string{"MODEL_IMAGE_SIZE"},
				Destination: &imageSize,
			},
		},
		Action: run,
	}

	if err := app.Run(os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func run(c *cli.Context) error {
	if c.NArg() == 0 {
		return cli.Exit("at least one image is required", 2)
	}

	labels, _, err := model.LoadLabels(labelsPath)
	if err != nil {
		return err
	}

	scorer, err := model.NewScorer(model.ScorerConfig{
		Backend:           backend,
		ModelPath:         modelPath,
		SharedLibraryPath: sharedLibraryPath,
	})
	if err != nil {
		return err
	}

	modelCtx, err := model.NewContext(scorer, labels, imageSize)
	if err != nil {
		scorer.Close()
		return err
	}
	defer modelCtx.Close()

	return classifyFiles(c.Context, modelCtx, c.Args().Slice(), c.App.Writer)
}

// classifyFiles writes one JSON line per file. A file that fails does not stop
// the others.
func classifyFiles(ctx context.Context, modelCtx *model.Context, files []string, w io.Writer) error {
	encoder := jsoniter.NewEncoder(w)
	failed := 0

	for _, file := range files {
		res := fileResult{File: file}

		prediction, err := classifyFile(ctx, modelCtx, file)
		if err != nil {
			res.Error = err.Error()
			failed++
		} else {
			res.Data = prediction
		}

		if err := encoder.Encode(res); err != nil {
			return err
		}
	}

	if failed > 0 {
		return cli.Exit(fmt.Sprintf("%d of %d images failed", failed, len(files)), 1)
	}
	return nil
}

func classifyFile(ctx context.Context, modelCtx *model.Context, file string) (interface{}, error) {
	data, err := os.ReadFile(file)
	if err != nil {
		return nil, err
	}

	tensor, _, err := imageutil.Preprocess(data, modelCtx.ImageSize())
	if err != nil {
		return nil, err
	}

	return modelCtx.Predict(ctx, tensor)
}
