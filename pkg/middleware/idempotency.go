package middleware

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/redis/go-redis/v9"

	"github.com/scriptify-cm/event-qr-platform/pkg/response"
)

const (
	// IdempotencyKeyHeader is the header name for idempotency key
	IdempotencyKeyHeader = "X-Idempotency-Key"
	// ContextKeyIdempotencyKey is the context key for idempotency key
	ContextKeyIdempotencyKey = "idempotency_key"
	// DefaultIdempotencyTTL covers gate retries across a whole event day
	DefaultIdempotencyTTL = 24 * time.Hour
	// IdempotencyKeyPrefix is the Redis key prefix for records
	IdempotencyKeyPrefix = "idempotency:"
)

// IdempotencyStatus represents the status of an idempotency record
type IdempotencyStatus string

const (
	StatusProcessing IdempotencyStatus = "processing"
	StatusCompleted  IdempotencyStatus = "completed"
)

// IdempotencyRecord stores the state of an idempotent request
type IdempotencyRecord struct {
	Key          string            `json:"key"`
	Status       IdempotencyStatus `json:"status"`
	RequestHash  string            `json:"request_hash"`
	ResponseCode int               `json:"response_code"`
	ResponseBody string            `json:"response_body"`
	CreatedAt    time.Time         `json:"created_at"`
	CompletedAt  *time.Time        `json:"completed_at,omitempty"`
}

// RedisClient interface for Redis operations
type RedisClient interface {
	Get(ctx context.Context, key string) *redis.StringCmd
	Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd
	SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd
	Del(ctx context.Context, keys ...string) *redis.IntCmd
}

// IdempotencyConfig holds configuration for idempotency middleware
type IdempotencyConfig struct {
	Redis RedisClient
	// TTL for completed records
	TTL time.Duration
	// ProcessingTTL bounds how long an in-flight record blocks retries
	ProcessingTTL time.Duration
	// RequireKey rejects write requests without a key; otherwise they pass through
	RequireKey      bool
	RequiredMethods []string
}

// DefaultIdempotencyConfig returns default configuration
func DefaultIdempotencyConfig(rc RedisClient) *IdempotencyConfig {
	return &IdempotencyConfig{
		Redis:           rc,
		TTL:             DefaultIdempotencyTTL,
		ProcessingTTL:   30 * time.Second,
		RequiredMethods: []string{http.MethodPost, http.MethodPut, http.MethodPatch, http.MethodDelete},
	}
}

// IdempotencyMiddleware replays the first response for a repeated X-Idempotency-Key.
// Redis failures fail open.
func IdempotencyMiddleware(config *IdempotencyConfig) gin.HandlerFunc {
	if config.ProcessingTTL == 0 {
		config.ProcessingTTL = 30 * time.Second
	}
	if config.TTL == 0 {
		config.TTL = DefaultIdempotencyTTL
	}

	return func(c *gin.Context) {
		if !isMethodRequired(c.Request.Method, config.RequiredMethods) {
			c.Next()
			return
		}

		idempotencyKey := strings.TrimSpace(c.GetHeader(IdempotencyKeyHeader))
		if idempotencyKey == "" {
			if config.RequireKey {
				c.AbortWithStatusJSON(http.StatusBadRequest, response.Fail("MISSING_IDEMPOTENCY_KEY", "X-Idempotency-Key header is required"))
				return
			}
			c.Next()
			return
		}

		c.Set(ContextKeyIdempotencyKey, idempotencyKey)

		var bodyBytes []byte
		if c.Request.Body != nil {
			bodyBytes, _ = io.ReadAll(c.Request.Body)
			c.Request.Body = io.NopCloser(bytes.NewBuffer(bodyBytes))
		}

		requestHash := generateRequestHash(c, bodyBytes)
		redisKey := IdempotencyKeyPrefix + idempotencyKey
		ctx := c.Request.Context()

		existing, err := getIdempotencyRecord(ctx, config.Redis, redisKey)
		if err != nil && !errors.Is(err, redis.Nil) {
			c.Next()
			return
		}

		if existing != nil {
			replayOrReject(c, existing, requestHash)
			return
		}

		record := &IdempotencyRecord{
			Key:         idempotencyKey,
			Status:      StatusProcessing,
			RequestHash: requestHash,
			CreatedAt:   time.Now(),
		}

		if !trySetIdempotencyRecord(ctx, config.Redis, redisKey, record, config.ProcessingTTL) {
			// another request won the SETNX
			if existing, _ = getIdempotencyRecord(ctx, config.Redis, redisKey); existing != nil {
				replayOrReject(c, existing, requestHash)
				return
			}
		}

		rw := &idempotencyResponseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
			status:         http.StatusOK,
		}
		c.Writer = rw

		c.Next()

		// server errors and timeouts stay retryable
		if rw.status >= 500 {
			_ = config.Redis.Del(context.WithoutCancel(ctx), redisKey).Err()
			return
		}

		now := time.Now()
		record.Status = StatusCompleted
		record.ResponseCode = rw.status
		record.ResponseBody = rw.body.String()
		record.CompletedAt = &now

		_ = saveIdempotencyRecord(context.WithoutCancel(ctx), config.Redis, redisKey, record, config.TTL)
	}
}

func replayOrReject(c *gin.Context, rec *IdempotencyRecord, requestHash string) {
	if rec.RequestHash != requestHash {
		c.AbortWithStatusJSON(http.StatusUnprocessableEntity, response.Fail("IDEMPOTENCY_KEY_REUSED", "Idempotency key already used with different request"))
		return
	}
	if rec.Status == StatusProcessing {
		c.AbortWithStatusJSON(http.StatusConflict, response.Fail("REQUEST_IN_PROGRESS", "A request with this idempotency key is already being processed"))
		return
	}
	c.Header("X-Idempotent-Replay", "true")
	c.Data(rec.ResponseCode, "application/json; charset=utf-8", []byte(rec.ResponseBody))
	c.Abort()
}

// idempotencyResponseWriter captures response for caching
type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body   *bytes.Buffer
	status int
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

func (w *idempotencyResponseWriter) WriteHeader(code int) {
	w.status = code
	w.ResponseWriter.WriteHeader(code)
}

func isMethodRequired(method string, requiredMethods []string) bool {
	for _, m := range requiredMethods {
		if method == m {
			return true
		}
	}
	return false
}

func generateRequestHash(c *gin.Context, body []byte) string {
	h := sha256.New()
	h.Write([]byte(c.Request.Method))
	h.Write([]byte(c.Request.URL.Path))
	if op, ok := GetOperator(c); ok {
		h.Write([]byte(op.ID))
	}
	h.Write(body)
	return hex.EncodeToString(h.Sum(nil))
}

func getIdempotencyRecord(ctx context.Context, rc RedisClient, key string) (*IdempotencyRecord, error) {
	result, err := rc.Get(ctx, key).Result()
	if err != nil {
		return nil, err
	}

	var record IdempotencyRecord
	if err := json.Unmarshal([]byte(result), &record); err != nil {
		return nil, err
	}

	return &record, nil
}

func trySetIdempotencyRecord(ctx context.Context, rc RedisClient, key string, record *IdempotencyRecord, ttl time.Duration) bool {
	data, err := json.Marshal(record)
	if err != nil {
		return false
	}

	ok, err := rc.SetNX(ctx, key, string(data), ttl).Result()
	if err != nil {
		return false
	}
	return ok
}

func saveIdempotencyRecord(ctx context.Context, rc RedisClient, key string, record *IdempotencyRecord, ttl time.Duration) error {
	data, err := json.Marshal(record)
	if err != nil {
		return err
	}
	return rc.Set(ctx, key, string(data), ttl).Err()
}
