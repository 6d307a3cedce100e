package inferenceService

import (
	"DefectVision/internal/api/inference"
	"DefectVision/internal/entity"
	"DefectVision/pkg/model"
	"DefectVision/pkg/redis"
	"DefectVision/pkg/s3"
	"DefectVision/pkg/utils"
	"context"
	"time"

	"github.com/sirupsen/logrus"
)

type IInferenceService interface {
	Predict(ctx context.Context, upload inference.Upload) (*entity.PredictionResult, error)
	Health() inference.HealthResponse
}

type inferenceService struct {
	log      *logrus.Logger
	model    *model.Context
	utils    utils.IUtils
	cache    redis.IRedis
	archive  s3.ItfS3
	cacheTTL time.Duration
}

type Option func(*inferenceService)

// WithCache enables the prediction cache. A nil cache is ignored.
func WithCache(cache redis.IRedis, ttl time.Duration) Option {
	return func(s *inferenceService) {
		s.cache = cache
		s.cacheTTL = ttl
	}
}

// WithArchive stores every classified upload. A nil archive is ignored.
func WithArchive(archive s3.ItfS3) Option {
	return func(s *inferenceService) {
		s.archive = archive
	}
}

func NewInferenceService(
	log *logrus.Logger,
	modelCtx *model.Context,
	utils utils.IUtils,
	opts ...Option,
) IInferenceService {
	s := &inferenceService{
		log:      log,
		model:    modelCtx,
		utils:    utils,
		cacheTTL: time.Hour,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}
