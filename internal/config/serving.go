package config

import (
	"DefectVision/pkg/model"
	"fmt"
	"os"
	"strconv"
	"time"

	"github.com/go-playground/validator/v10"
)

// ServingConfig is everything the process reads from the environment at
// startup.
type ServingConfig struct {
	Host              string        `validate:"required"`
	Port              int           `validate:"min=1,max=65535"`
	ModelPath         string        `validate:"required"`
	ModelBackend      string        `validate:"oneof=go ort"`
	SharedLibraryPath string        `validate:"required_if=ModelBackend ort"`
	ImageSize         int           `validate:"min=1,max=4096"`
	ClassIndicesPath  string
	StaticRoot        string        `validate:"required"`
	MaxUploadBytes    int64         `validate:"min=1"`
	InferenceTimeout  time.Duration `validate:"min=0"`
	CacheTTL          time.Duration `validate:"min=0"`
	RateLimit         float64       `validate:"gt=0"`
	RateBurst         int           `validate:"min=1"`
}

func NewValidator() *validator.Validate {
	return validator.New()
}

// LoadServingConfig applies defaults for unset variables and validates the
// result. Malformed values are reported rather than silently defaulted.
func LoadServingConfig(v *validator.Validate) (ServingConfig, error) {
	cfg := ServingConfig{
		Host:              envString("APP_HOST", "127.0.0.1"),
		ModelPath:         envString("MODEL_PATH", "defect_model_best.onnx"),
		ModelBackend:      envString("MODEL_BACKEND", model.BackendGo),
		SharedLibraryPath: os.Getenv("ONNXRUNTIME_SHARED_LIBRARY"),
		ClassIndicesPath:  envString("CLASS_INDICES_PATH", "class_indices.json"),
		StaticRoot:        envString("STATIC_ROOT", "./web"),
	}

	var err error
	if cfg.Port, err = envInt("APP_PORT", 5000); err != nil {
		return cfg, err
	}
	if cfg.ImageSize, err = envInt("MODEL_IMAGE_SIZE", 224); err != nil {
		return cfg, err
	}
	if cfg.RateBurst, err = envInt("RATE_LIMIT_BURST", 20); err != nil {
		return cfg, err
	}
	maxUpload, err := envInt("MAX_UPLOAD_BYTES", 10<<20)
	if err != nil {
		return cfg, err
	}
	cfg.MaxUploadBytes = int64(maxUpload)
	if cfg.InferenceTimeout, err = envDuration("INFERENCE_TIMEOUT", 30*time.Second); err != nil {
		return cfg, err
	}
	if cfg.CacheTTL, err = envDuration("PREDICTION_CACHE_TTL", time.Hour); err != nil {
		return cfg, err
	}
	if cfg.RateLimit, err = envFloat("RATE_LIMIT_PER_SECOND", 10); err != nil {
		return cfg, err
	}

	if err := v.Struct(cfg); err != nil {
		return cfg, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}

func (c ServingConfig) Address() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

func envString(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envInt(key string, fallback int) (int, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envFloat(key string, fallback float64) (float64, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := strconv.ParseFloat(raw, 64)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}

func envDuration(key string, fallback time.Duration) (time.Duration, error) {
	raw := os.Getenv(key)
	if raw == "" {
		return fallback, nil
	}
	v, err := time.ParseDuration(raw)
	if err != nil {
		return 0, fmt.Errorf("%s: %w", key, err)
	}
	return v, nil
}
