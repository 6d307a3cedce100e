package inferenceService

import (
	"DefectVision/internal/api/inference"
	"DefectVision/internal/entity"
	contextPkg "DefectVision/pkg/context"
	"DefectVision/pkg/imageutil"
	"DefectVision/pkg/log"
	"DefectVision/pkg/model"
	"DefectVision/pkg/redis"
	"DefectVision/pkg/utils"
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
)

const archiveTimeout = 30 * time.Second

func (s *inferenceService) Predict(ctx context.Context, upload inference.Upload) (*entity.PredictionResult, error) {
	if err := s.utils.ValidateImageBytes(upload.Data); err != nil {
		switch {
		case errors.Is(err, utils.ErrFileTooLarge):
			return nil, inference.ErrImageTooLarge
		default:
			return nil, inference.ErrEmptyImage
		}
	}

	cacheKey := s.model.ID() + ":" + s.utils.Fingerprint(upload.Data)
	if cached := s.cachedPrediction(ctx, cacheKey); cached != nil {
		return cached, nil
	}

	tensor, format, err := imageutil.Preprocess(upload.Data, s.model.ImageSize())
	if err != nil {
		s.entry(ctx).WithField("filename", upload.Filename).Debugf("decode failed: %v", err)
		return nil, inference.ErrUndecodableImage
	}

	if err := ctx.Err(); err != nil {
		return nil, err
	}

	result, err := s.model.Predict(ctx, tensor)
	if err != nil {
		return nil, fmt.Errorf("predict: %w", err)
	}

	if s.cache != nil {
		if err := s.cache.SetPrediction(ctx, cacheKey, result, s.cacheTTL); err != nil {
			s.entry(ctx).Warnf("failed to cache prediction: %v", err)
		}
	}

	if s.archive != nil {
		go s.archiveUpload(s.entry(ctx).Data, upload.Data, format, result.Defect)
	}

	return result, nil
}

func (s *inferenceService) cachedPrediction(ctx context.Context, key string) *entity.PredictionResult {
	if s.cache == nil {
		return nil
	}

	result, err := s.cache.GetPrediction(ctx, key)
	if err != nil {
		if !errors.Is(err, redis.ErrCacheMiss) {
			s.entry(ctx).Warnf("prediction cache unavailable: %v", err)
		}
		return nil
	}
	if !coversLabels(result, s.model.Labels()) {
		s.entry(ctx).Warnf("ignoring cached prediction %s with a different label set", key)
		return nil
	}
	return result
}

// coversLabels reports whether result ranks exactly the given labels.
func coversLabels(result *entity.PredictionResult, labels []model.Label) bool {
	if len(result.AllPredictions) != len(labels) {
		return false
	}

	want := make(map[string]struct{}, len(labels))
	for _, l := range labels {
		want[l.Name] = struct{}{}
	}
	for _, ls := range result.AllPredictions {
		if _, ok := want[ls.Label]; !ok {
			return false
		}
		delete(want, ls.Label)
	}
	return result.Defect == result.AllPredictions[0].Label
}

func (s *inferenceService) archiveUpload(fields log.Fields, data []byte, format, defect string) {
	ctx, cancel := context.WithTimeout(context.Background(), archiveTimeout)
	defer cancel()

	id, err := s.utils.NewULIDFromTimestamp(time.Now())
	if err != nil {
		s.log.WithFields(fields).Errorf("failed to generate archive key: %v", err)
		return
	}

	key := fmt.Sprintf("%s/%s.%s", defect, id, extensionFor(format))
	location, err := s.archive.UploadImage(ctx, key, "image/"+format, data)
	if err != nil {
		s.log.WithFields(fields).Errorf("failed to archive upload: %v", err)
		return
	}

	s.log.WithFields(fields).WithField("location", location).Debug("upload archived")
}

func (s *inferenceService) Health() inference.HealthResponse {
	return inference.HealthResponse{
		Status:  "healthy",
		Backend: s.model.Backend(),
		Labels:  model.LabelNames(s.model.Labels()),
	}
}

func extensionFor(format string) string {
	switch format {
	case "jpeg":
		return "jpg"
	case "tiff":
		return "tif"
	case "":
		return "bin"
	default:
		return format
	}
}

func (s *inferenceService) entry(ctx context.Context) *logrus.Entry {
	return s.log.WithField(log.RequestIDKey, contextPkg.GetRequestID(ctx))
}
