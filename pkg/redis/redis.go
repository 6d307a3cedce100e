package redis

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"time"

	"DefectVision/internal/entity"
	jsoniter "github.com/json-iterator/go"
	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

const keyPrefix = "prediction:"

var ErrCacheMiss = errors.New("prediction not cached")

// IRedis caches finished predictions. Keys are built by the caller from the
// model identity and the image fingerprint, so a hit is interchangeable with a
// fresh run of the same model.
type IRedis interface {
	GetPrediction(ctx context.Context, key string) (*entity.PredictionResult, error)
	SetPrediction(ctx context.Context, key string, result *entity.PredictionResult, expiration time.Duration) error
}

type cachedPrediction struct {
	Defect      string              `json:"defect"`
	Confidence  string              `json:"confidence"`
	Predictions []entity.LabelScore `json:"predictions"`
}

type redisClient struct {
	client redis.UniversalClient
	log    *logrus.Logger
}

// New returns nil when REDIS_ADDRESS is unset; the cache is optional.
func New(log *logrus.Logger) IRedis {
	redisAddr := os.Getenv("REDIS_ADDRESS")
	if redisAddr == "" {
		return nil
	}
	db, _ := strconv.Atoi(os.Getenv("REDIS_DB"))

	log.Info(fmt.Sprintf("Connecting to Redis at %s...", redisAddr))

	client := redis.NewClient(&redis.Options{
		Addr:     redisAddr,
		Password: os.Getenv("REDIS_PASSWORD"),
		DB:       db,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if _, err := client.Ping(ctx).Result(); err != nil {
		log.Error(fmt.Sprintf("Failed to connect to Redis: %v", err))
	} else {
		log.Info("Successfully connected to Redis")
	}

	return NewWithClient(client, log)
}

func NewWithClient(client redis.UniversalClient, log *logrus.Logger) IRedis {
	return &redisClient{client: client, log: log}
}

func (r *redisClient) GetPrediction(ctx context.Context, key string) (*entity.PredictionResult, error) {
	val, err := r.client.Get(ctx, keyPrefix+key).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrCacheMiss
	} else if err != nil {
		r.log.Error(fmt.Sprintf("Error getting prediction for key %s: %v", key, err))
		return nil, err
	}

	var cached cachedPrediction
	if err := jsoniter.Unmarshal(val, &cached); err != nil {
		return nil, fmt.Errorf("corrupt cache entry %s: %w", key, err)
	}

	return &entity.PredictionResult{
		Defect:         cached.Defect,
		Confidence:     cached.Confidence,
		AllPredictions: cached.Predictions,
	}, nil
}

func (r *redisClient) SetPrediction(ctx context.Context, key string, result *entity.PredictionResult, expiration time.Duration) error {
	payload, err := jsoniter.Marshal(cachedPrediction{
		Defect:      result.Defect,
		Confidence:  result.Confidence,
		Predictions: result.AllPredictions,
	})
	if err != nil {
		return err
	}

	if err := r.client.Set(ctx, keyPrefix+key, payload, expiration).Err(); err != nil {
		r.log.Error(fmt.Sprintf("Error setting prediction for key %s: %v", key, err))
		return err
	}
	r.log.Debug(fmt.Sprintf("Cached prediction for key %s", key))
	return nil
}
