package config

import (
	inferenceHandler "DefectVision/internal/api/inference/handler"
	inferenceService "DefectVision/internal/api/inference/service"
	staticHandler "DefectVision/internal/api/static/handler"
	"DefectVision/internal/middleware"
	"DefectVision/pkg/model"
	"DefectVision/pkg/redis"
	"DefectVision/pkg/s3"
	"DefectVision/pkg/utils"
	"context"
	"fmt"

	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/sirupsen/logrus"
	"golang.org/x/time/rate"
)

type ServerOption func(*Server) error

type Server struct {
	engine      *fiber.App
	log         *logrus.Logger
	middleware  middleware.Middleware
	validator   *validator.Validate
	config      ServingConfig
	utils       utils.IUtils
	modelCtx    *model.Context
	redisServer redis.IRedis
	s3Client    s3.ItfS3
	handlers    []handler
}

type handler interface {
	Start(srv fiber.Router)
}

func NewServer(options ...ServerOption) (*Server, error) {
	server := &Server{}

	for _, option := range options {
		if err := option(server); err != nil {
			return nil, fmt.Errorf("failed to apply option: %w", err)
		}
	}

	if server.engine == nil {
		return nil, fmt.Errorf("fiber app is required")
	}
	if server.log == nil {
		return nil, fmt.Errorf("logger is required")
	}
	if server.modelCtx == nil {
		return nil, fmt.Errorf("model context is required")
	}
	if server.validator != nil {
		if err := server.validator.Struct(server.config); err != nil {
			return nil, fmt.Errorf("invalid configuration: %w", err)
		}
	}
	if server.middleware == nil {
		server.middleware = middleware.New(server.log)
	}
	if server.utils == nil {
		server.utils = utils.New(server.config.MaxUploadBytes)
	}

	return server, nil
}

func WithFiber(fiberApp *fiber.App) ServerOption {
	return func(s *Server) error {
		s.engine = fiberApp
		return nil
	}
}

func WithLogger(logger *logrus.Logger) ServerOption {
	return func(s *Server) error {
		s.log = logger
		return nil
	}
}

func WithValidator(validator *validator.Validate) ServerOption {
	return func(s *Server) error {
		s.validator = validator
		return nil
	}
}

func WithServingConfig(cfg ServingConfig) ServerOption {
	return func(s *Server) error {
		s.config = cfg
		return nil
	}
}

// WithModelContext installs an already loaded context. Tests use it to inject
// a stub scorer.
func WithModelContext(modelCtx *model.Context) ServerOption {
	return func(s *Server) error {
		s.modelCtx = modelCtx
		return nil
	}
}

// WithModel loads labels and the scorer described by the serving config. Any
// failure here is fatal for the process.
func WithModel() ServerOption {
	return func(s *Server) error {
		labels, fromFile, err := model.LoadLabels(s.config.ClassIndicesPath)
		if err != nil {
			return err
		}
		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"labels":    model.LabelNames(labels),
				"from_file": fromFile,
			}).Info("Class labels loaded")
		}

		scorer, err := model.NewScorer(model.ScorerConfig{
			Backend:           s.config.ModelBackend,
			ModelPath:         s.config.ModelPath,
			SharedLibraryPath: s.config.SharedLibraryPath,
		})
		if err != nil {
			return fmt.Errorf("failed to load model: %w", err)
		}

		modelCtx, err := model.NewContext(scorer, labels, s.config.ImageSize)
		if err != nil {
			scorer.Close()
			return fmt.Errorf("model does not match labels: %w", err)
		}

		if s.log != nil {
			s.log.WithFields(logrus.Fields{
				"path":    s.config.ModelPath,
				"backend": modelCtx.Backend(),
			}).Info("Model loaded successfully")
		}
		s.modelCtx = modelCtx
		return nil
	}
}

func WithMiddleware() ServerOption {
	return func(s *Server) error {
		if s.log == nil {
			return fmt.Errorf("logger must be initialized before middleware")
		}
		var opts []middleware.Option
		if s.config.RateLimit > 0 && s.config.RateBurst > 0 {
			opts = append(opts, middleware.WithRateLimit(rate.Limit(s.config.RateLimit), s.config.RateBurst))
		}
		s.middleware = middleware.New(s.log, opts...)
		return nil
	}
}

func WithRedisServer(redisServer redis.IRedis) ServerOption {
	return func(s *Server) error {
		s.redisServer = redisServer
		return nil
	}
}

func WithS3Client() ServerOption {
	return func(s *Server) error {
		client, err := s3.New()
		if err != nil {
			if s.log != nil {
				s.log.Errorf("Failed to initialize S3 client: %v", err)
			}
			return fmt.Errorf("failed to create S3 client: %w", err)
		}
		s.s3Client = client
		return nil
	}
}

func WithUtils() ServerOption {
	return func(s *Server) error {
		s.utils = utils.New(s.config.MaxUploadBytes)
		return nil
	}
}

func (s *Server) RegisterHandler() {
	var opts []inferenceService.Option
	if s.redisServer != nil {
		opts = append(opts, inferenceService.WithCache(s.redisServer, s.config.CacheTTL))
	}
	if s.s3Client != nil {
		opts = append(opts, inferenceService.WithArchive(s.s3Client))
	}

	// Inference
	inferenceServices := inferenceService.NewInferenceService(s.log, s.modelCtx, s.utils, opts...)
	inferenceHandlers := inferenceHandler.New(s.log, s.middleware, inferenceServices, s.utils, s.config.InferenceTimeout)

	// Front end, registered last for its catch-all route
	staticHandlers := staticHandler.New(s.log, s.middleware, s.config.StaticRoot)

	s.engine.Use(s.middleware.NewRequestIDMiddleware())
	s.engine.Use(s.middleware.NewLoggingMiddleware)

	s.handlers = append(s.handlers, inferenceHandlers, staticHandlers)
	for _, h := range s.handlers {
		h.Start(s.engine)
	}
}

func (s *Server) App() *fiber.App {
	return s.engine
}

func (s *Server) Run() error {
	return s.engine.Listen(s.config.Address())
}

func (s *Server) Shutdown(ctx context.Context) error {
	err := s.engine.ShutdownWithContext(ctx)
	if closeErr := s.modelCtx.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}
