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
	"time"

	"github.com/gin-gonic/gin"
	goredis "github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	// IdempotencyKeyHeader is the header for idempotency key.
	IdempotencyKeyHeader = "Idempotency-Key"
	// IdempotencyReplayHeader marks a replayed response.
	IdempotencyReplayHeader = "Idempotent-Replayed"
	// defaultIdempotencyTTL is the default TTL for idempotency keys.
	defaultIdempotencyTTL = 24 * time.Hour
)

// IdempotencyConfig holds idempotency middleware configuration.
type IdempotencyConfig struct {
	// TTL is the time to live for idempotency keys.
	TTL time.Duration
	// KeyPrefix namespaces the Redis keys.
	KeyPrefix string
	// LockTTL bounds how long an in-flight request holds its key.
	LockTTL time.Duration
	Logger  *zap.Logger
}

// DefaultIdempotencyConfig returns the default idempotency configuration.
func DefaultIdempotencyConfig() IdempotencyConfig {
	return IdempotencyConfig{
		TTL:       defaultIdempotencyTTL,
		KeyPrefix: "idempotency:",
		LockTTL:   30 * time.Second,
	}
}

// idempotencyResponse stores the cached response.
type idempotencyResponse struct {
	StatusCode  int               `json:"status_code"`
	Headers     map[string]string `json:"headers"`
	Body        []byte            `json:"body"`
	Fingerprint string            `json:"fingerprint"`
}

// idempotencyResponseWriter wraps gin.ResponseWriter to capture the response.
type idempotencyResponseWriter struct {
	gin.ResponseWriter
	body *bytes.Buffer
}

func (w *idempotencyResponseWriter) Write(b []byte) (int, error) {
	w.body.Write(b)
	return w.ResponseWriter.Write(b)
}

// Idempotency returns a middleware that replays the stored response of a request
// repeated with the same Idempotency-Key. Requests without the header pass through.
// A nil client disables the check.
func Idempotency(redis goredis.UniversalClient, cfg IdempotencyConfig) gin.HandlerFunc {
	def := DefaultIdempotencyConfig()
	if cfg.TTL == 0 {
		cfg.TTL = def.TTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = def.KeyPrefix
	}
	if cfg.LockTTL == 0 {
		cfg.LockTTL = def.LockTTL
	}
	if cfg.Logger == nil {
		cfg.Logger = zap.NewNop()
	}

	return func(c *gin.Context) {
		if redis == nil {
			c.Next()
			return
		}

		idempotencyKey := c.GetHeader(IdempotencyKeyHeader)
		if idempotencyKey == "" {
			c.Next()
			return
		}

		ctx := c.Request.Context()
		cacheKey := generateIdempotencyKey(c, cfg.KeyPrefix, idempotencyKey)
		fingerprint := bodyHashKey(c)

		cachedResp, err := getCachedResponse(ctx, redis, cacheKey)
		if err != nil && !errors.Is(err, goredis.Nil) {
			cfg.Logger.Warn("idempotency lookup failed", zap.Error(err))
			c.Next()
			return
		}
		if cachedResp != nil {
			if cachedResp.Fingerprint != fingerprint {
				c.AbortWithStatusJSON(http.StatusUnprocessableEntity, gin.H{
					"error": gin.H{
						"code":    "IDEMPOTENCY_KEY_REUSED",
						"message": "Idempotency-Key was already used with a different request body",
					},
				})
				return
			}
			for k, v := range cachedResp.Headers {
				c.Header(k, v)
			}
			c.Header(IdempotencyReplayHeader, "true")
			c.Data(cachedResp.StatusCode, cachedResp.Headers["Content-Type"], cachedResp.Body)
			c.Abort()
			return
		}

		lockKey := cacheKey + ":lock"
		locked, err := redis.SetNX(ctx, lockKey, "1", cfg.LockTTL).Result()
		if err != nil {
			cfg.Logger.Warn("idempotency lock failed", zap.Error(err))
			c.Next()
			return
		}
		if !locked {
			c.AbortWithStatusJSON(http.StatusConflict, gin.H{
				"error": gin.H{
					"code":    "REQUEST_IN_PROGRESS",
					"message": "A request with this idempotency key is already being processed",
				},
			})
			return
		}
		defer redis.Del(context.WithoutCancel(ctx), lockKey)

		respWriter := &idempotencyResponseWriter{
			ResponseWriter: c.Writer,
			body:           bytes.NewBuffer(nil),
		}
		c.Writer = respWriter

		c.Next()

		// Server errors are not stored so the client can retry.
		if status := c.Writer.Status(); status < 500 {
			headers := make(map[string]string)
			for k := range c.Writer.Header() {
				headers[k] = c.Writer.Header().Get(k)
			}
			resp := &idempotencyResponse{
				StatusCode:  status,
				Headers:     headers,
				Body:        respWriter.body.Bytes(),
				Fingerprint: fingerprint,
			}
			if err := cacheResponse(context.WithoutCancel(ctx), redis, cacheKey, resp, cfg.TTL); err != nil {
				cfg.Logger.Warn("idempotency store failed", zap.Error(err))
			}
		}
	}
}

// generateIdempotencyKey scopes the client key by method, route and actor.
func generateIdempotencyKey(c *gin.Context, prefix, idempotencyKey string) string {
	actor := ""
	if a, ok := GetActor(c); ok {
		actor = a.UserID.String()
	}
	hash := sha256.Sum256([]byte(c.Request.Method + ":" + c.FullPath() + ":" + actor + ":" + idempotencyKey))
	return prefix + hex.EncodeToString(hash[:])
}

// getCachedResponse retrieves a cached response from Redis.
func getCachedResponse(ctx context.Context, redis goredis.UniversalClient, key string) (*idempotencyResponse, error) {
	data, err := redis.Get(ctx, key).Bytes()
	if err != nil {
		return nil, err
	}

	var resp idempotencyResponse
	if err := json.Unmarshal(data, &resp); err != nil {
		return nil, err
	}

	return &resp, nil
}

// cacheResponse stores a response in Redis.
func cacheResponse(ctx context.Context, redis goredis.UniversalClient, key string, resp *idempotencyResponse, ttl time.Duration) error {
	data, err := json.Marshal(resp)
	if err != nil {
		return err
	}

	return redis.Set(ctx, key, data, ttl).Err()
}

// bodyHashKey hashes the request body and restores it for the handler.
func bodyHashKey(c *gin.Context) string {
	if c.Request.Body == nil {
		return ""
	}
	body, err := io.ReadAll(c.Request.Body)
	if err != nil {
		return ""
	}
	c.Request.Body = io.NopCloser(bytes.NewBuffer(body))

	hash := sha256.Sum256(body)
	return hex.EncodeToString(hash[:])
}
