package inferenceService

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"io"
	"strings"
	"sync"
	"testing"
	"time"

	"DefectVision/internal/api/inference"
	"DefectVision/internal/entity"
	"DefectVision/pkg/model"
	"DefectVision/pkg/model/modeltest"
	"DefectVision/pkg/redis"
	"DefectVision/pkg/utils"

	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memoryCache struct {
	mu      sync.Mutex
	entries map[string]*entity.PredictionResult
	gets    int
	err     error
}

func newMemoryCache() *memoryCache {
	return &memoryCache{entries: make(map[string]*entity.PredictionResult)}
}

func (m *memoryCache) GetPrediction(_ context.Context, fingerprint string) (*entity.PredictionResult, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.gets++
	if m.err != nil {
		return nil, m.err
	}
	result, ok := m.entries[fingerprint]
	if !ok {
		return nil, redis.ErrCacheMiss
	}
	return result, nil
}

func (m *memoryCache) SetPrediction(_ context.Context, fingerprint string, result *entity.PredictionResult, _ time.Duration) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.err != nil {
		return m.err
	}
	m.entries[fingerprint] = result
	return nil
}

type archivedUpload struct {
	key         string
	contentType string
	size        int
}

type memoryArchive struct {
	mu      sync.Mutex
	uploads []archivedUpload
}

func (m *memoryArchive) UploadImage(_ context.Context, key string, contentType string, data []byte) (string, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.uploads = append(m.uploads, archivedUpload{key: key, contentType: contentType, size: len(data)})
	return "memory://" + key, nil
}

func (m *memoryArchive) Uploads() []archivedUpload {
	m.mu.Lock()
	defer m.mu.Unlock()
	return append([]archivedUpload(nil), m.uploads...)
}

func quietLogger() *logrus.Logger {
	logger := logrus.New()
	logger.SetOutput(io.Discard)
	return logger
}

func pngBytes(t *testing.T) []byte {
	t.Helper()
	img := image.NewNRGBA(image.Rect(0, 0, 16, 16))
	for i := range img.Pix {
		img.Pix[i] = 0x80
	}
	img.Set(3, 3, color.NRGBA{R: 255, A: 255})

	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func newTestService(t *testing.T, opts ...Option) (IInferenceService, *modeltest.Scorer) {
	t.Helper()
	modelCtx, scorer, err := modeltest.NewContext(0.1, 0.7, 0.05, 0.05, 0.05, 0.05)
	require.NoError(t, err)
	return NewInferenceService(quietLogger(), modelCtx, utils.New(1<<20), opts...), scorer
}

func TestPredict(t *testing.T) {
	svc, scorer := newTestService(t)

	result, err := svc.Predict(context.Background(), inference.Upload{Filename: "a.png", Data: pngBytes(t)})
	require.NoError(t, err)

	assert.Equal(t, "Inclusion", result.Defect)
	assert.Equal(t, "70.00%", result.Confidence)
	require.Len(t, scorer.Inputs(), 1)
	assert.Equal(t, []int64{1, 224, 224, 3}, scorer.Inputs()[0].Shape)
}

func TestPredictRejectsBadUploads(t *testing.T) {
	svc, scorer := newTestService(t)

	tests := []struct {
		name string
		data []byte
		want error
	}{
		{"empty", nil, inference.ErrEmptyImage},
		{"garbage", []byte("not an image at all"), inference.ErrUndecodableImage},
		{"truncated png", pngBytes(t)[:20], inference.ErrUndecodableImage},
		{"too large", bytes.Repeat([]byte{0xff}, (1<<20)+1), inference.ErrImageTooLarge},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := svc.Predict(context.Background(), inference.Upload{Data: tt.data})
			assert.ErrorIs(t, err, tt.want)
		})
	}
	assert.Zero(t, scorer.Calls())
}

func TestPredictScorerFailure(t *testing.T) {
	scorer := &modeltest.Scorer{Scores: make([]float32, 6), Err: errors.New("session closed")}
	modelCtx, err := model.NewContext(scorer, model.LabelsFromNames(model.DefaultLabels), 224)
	require.NoError(t, err)
	svc := NewInferenceService(quietLogger(), modelCtx, utils.New(0))

	_, err = svc.Predict(context.Background(), inference.Upload{Data: pngBytes(t)})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "session closed")
}

func TestPredictCancelledContext(t *testing.T) {
	svc, scorer := newTestService(t)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := svc.Predict(ctx, inference.Upload{Data: pngBytes(t)})
	assert.ErrorIs(t, err, context.Canceled)
	assert.Zero(t, scorer.Calls())
}

func TestPredictUsesCache(t *testing.T) {
	cache := newMemoryCache()
	svc, scorer := newTestService(t, WithCache(cache, time.Minute))
	data := pngBytes(t)

	first, err := svc.Predict(context.Background(), inference.Upload{Data: data})
	require.NoError(t, err)
	second, err := svc.Predict(context.Background(), inference.Upload{Data: data})
	require.NoError(t, err)

	assert.Equal(t, first, second)
	assert.Equal(t, 1, scorer.Calls())
	assert.Equal(t, 2, cache.gets)
}

func (m *memoryCache) rewriteAll(result *entity.PredictionResult) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for key := range m.entries {
		m.entries[key] = result
	}
}

func TestPredictIgnoresStaleCacheEntry(t *testing.T) {
	tests := []struct {
		name  string
		entry *entity.PredictionResult
	}{
		{
			name: "different label count",
			entry: &entity.PredictionResult{
				Defect:         "Old",
				Confidence:     "100.00%",
				AllPredictions: entity.Ranking{{Label: "Old", Score: 1}},
			},
		},
		{
			name: "same count different names",
			entry: &entity.PredictionResult{
				Defect:     "Rust",
				Confidence: "50.00%",
				AllPredictions: entity.Ranking{
					{Label: "Rust", Score: 0.5}, {Label: "Crazing", Score: 0.1}, {Label: "Patches", Score: 0.1},
					{Label: "Pitted", Score: 0.1}, {Label: "Rolled", Score: 0.1}, {Label: "Scratches", Score: 0.1},
				},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cache := newMemoryCache()
			svc, scorer := newTestService(t, WithCache(cache, time.Minute))
			data := pngBytes(t)

			_, err := svc.Predict(context.Background(), inference.Upload{Data: data})
			require.NoError(t, err)
			cache.rewriteAll(tt.entry)

			result, err := svc.Predict(context.Background(), inference.Upload{Data: data})
			require.NoError(t, err)
			assert.Equal(t, "Inclusion", result.Defect)
			assert.Equal(t, 2, scorer.Calls())
		})
	}
}

func TestPredictCacheDoesNotOutliveModel(t *testing.T) {
	cache := newMemoryCache()
	labels := model.LabelsFromNames(model.DefaultLabels)
	data := pngBytes(t)

	oldCtx, _, err := modeltest.NewContext(0.1, 0.7, 0.05, 0.05, 0.05, 0.05)
	require.NoError(t, err)
	oldSvc := NewInferenceService(quietLogger(), oldCtx, utils.New(0), WithCache(cache, time.Hour))
	_, err = oldSvc.Predict(context.Background(), inference.Upload{Data: data})
	require.NoError(t, err)

	newScorer := &modeltest.Scorer{Scores: []float32{0.9, 0.02, 0.02, 0.02, 0.02, 0.02}, ID: "retrained"}
	newCtx, err := model.NewContext(newScorer, labels, 224)
	require.NoError(t, err)
	newSvc := NewInferenceService(quietLogger(), newCtx, utils.New(0), WithCache(cache, time.Hour))

	result, err := newSvc.Predict(context.Background(), inference.Upload{Data: data})
	require.NoError(t, err)
	assert.Equal(t, "Crazing", result.Defect)
	assert.Equal(t, "90.00%", result.Confidence)
	assert.Equal(t, 1, newScorer.Calls())
	assert.Len(t, cache.entries, 2)
}

func TestPredictSurvivesCacheOutage(t *testing.T) {
	cache := newMemoryCache()
	cache.err = errors.New("connection refused")
	svc, scorer := newTestService(t, WithCache(cache, time.Minute))

	result, err := svc.Predict(context.Background(), inference.Upload{Data: pngBytes(t)})
	require.NoError(t, err)
	assert.Equal(t, "Inclusion", result.Defect)
	assert.Equal(t, 1, scorer.Calls())
}

func TestPredictArchivesUpload(t *testing.T) {
	archive := &memoryArchive{}
	svc, _ := newTestService(t, WithArchive(archive))
	data := pngBytes(t)

	_, err := svc.Predict(context.Background(), inference.Upload{Data: data})
	require.NoError(t, err)

	assert.Eventually(t, func() bool {
		return len(archive.Uploads()) == 1
	}, 2*time.Second, 10*time.Millisecond)

	upload := archive.Uploads()[0]
	assert.True(t, strings.HasPrefix(upload.key, "Inclusion/"))
	assert.True(t, strings.HasSuffix(upload.key, ".png"))
	assert.Equal(t, "image/png", upload.contentType)
	assert.Equal(t, len(data), upload.size)
}

func TestHealth(t *testing.T) {
	svc, _ := newTestService(t)

	health := svc.Health()
	assert.Equal(t, "healthy", health.Status)
	assert.Equal(t, "stub", health.Backend)
	assert.Equal(t, model.DefaultLabels, health.Labels)
}

func TestExtensionFor(t *testing.T) {
	assert.Equal(t, "jpg", extensionFor("jpeg"))
	assert.Equal(t, "tif", extensionFor("tiff"))
	assert.Equal(t, "webp", extensionFor("webp"))
	assert.Equal(t, "bin", extensionFor(""))
}
