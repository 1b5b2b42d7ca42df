package redis

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/scriptify-cm/event-qr-platform/pkg/config"
)

// Config holds Redis connection configuration
type Config struct {
	Host         string
	Port         int
	Password     string
	DB           int
	PoolSize     int
	MinIdleConns int
	DialTimeout  time.Duration
	ReadTimeout  time.Duration
	WriteTimeout time.Duration

	MaxRetries    int
	RetryInterval time.Duration
}

// DefaultConfig returns default Redis configuration
func DefaultConfig() *Config {
	return &Config{
		Host:          "localhost",
		Port:          6379,
		PoolSize:      50,
		MinIdleConns:  5,
		DialTimeout:   5 * time.Second,
		ReadTimeout:   3 * time.Second,
		WriteTimeout:  3 * time.Second,
		MaxRetries:    3,
		RetryInterval: time.Second,
	}
}

// FromAppConfig maps the application redis settings onto a Config
func FromAppConfig(rc config.RedisConfig) *Config {
	cfg := DefaultConfig()
	cfg.Host = rc.Host
	cfg.Port = rc.Port
	cfg.Password = rc.Password
	cfg.DB = rc.DB
	if rc.PoolSize > 0 {
		cfg.PoolSize = rc.PoolSize
	}
	if rc.MinIdleConns > 0 {
		cfg.MinIdleConns = rc.MinIdleConns
	}
	if rc.DialTimeout > 0 {
		cfg.DialTimeout = rc.DialTimeout
	}
	if rc.ReadTimeout > 0 {
		cfg.ReadTimeout = rc.ReadTimeout
	}
	if rc.WriteTimeout > 0 {
		cfg.WriteTimeout = rc.WriteTimeout
	}
	return cfg
}

// Addr returns the Redis address
func (c *Config) Addr() string {
	return fmt.Sprintf("%s:%d", c.Host, c.Port)
}

// Client wraps redis.Client with cached Lua script support
type Client struct {
	client  *redis.Client
	scripts sync.Map // name -> *ScriptInfo
}

// NewClient creates a new Redis client, pinging until it answers or retries run out
func NewClient(ctx context.Context, cfg *Config) (*Client, error) {
	if cfg == nil {
		cfg = DefaultConfig()
	}

	client := redis.NewClient(&redis.Options{
		Addr:         cfg.Addr(),
		Password:     cfg.Password,
		DB:           cfg.DB,
		PoolSize:     cfg.PoolSize,
		MinIdleConns: cfg.MinIdleConns,
		DialTimeout:  cfg.DialTimeout,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	})

	var lastErr error
	for attempt := 0; attempt <= cfg.MaxRetries; attempt++ {
		if attempt > 0 {
			time.Sleep(cfg.RetryInterval)
		}

		if lastErr = client.Ping(ctx).Err(); lastErr == nil {
			return &Client{client: client}, nil
		}
	}

	client.Close()
	return nil, fmt.Errorf("failed to connect to redis after %d attempts: %w", cfg.MaxRetries+1, lastErr)
}

// Wrap builds a Client around an existing connection (redismock in tests)
func Wrap(rc *redis.Client) *Client {
	return &Client{client: rc}
}

// Client returns the underlying redis.Client
func (c *Client) Client() *redis.Client {
	return c.client
}

// Ping checks if Redis connection is alive
func (c *Client) Ping(ctx context.Context) error {
	return c.client.Ping(ctx).Err()
}

// Close closes the Redis connection
func (c *Client) Close() error {
	return c.client.Close()
}

// HealthCheck performs a health check on Redis
func (c *Client) HealthCheck(ctx context.Context) error {
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	result, err := c.client.Ping(ctx).Result()
	if err != nil {
		return fmt.Errorf("redis health check failed: %w", err)
	}

	if result != "PONG" {
		return fmt.Errorf("redis health check unexpected response: %s", result)
	}

	return nil
}

// --- Lua Script Support ---

// ScriptInfo holds information about a loaded script
type ScriptInfo struct {
	Name   string
	SHA    string
	Script string
}

// computeSHA1 computes the SHA1 of a script the way Redis does
func computeSHA1(script string) string {
	h := sha1.New()
	h.Write([]byte(script))
	return hex.EncodeToString(h.Sum(nil))
}

// LoadScript loads a Lua script into Redis and caches its SHA
func (c *Client) LoadScript(ctx context.Context, name, script string) (*ScriptInfo, error) {
	sha, err := c.client.ScriptLoad(ctx, script).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load script %s: %w", name, err)
	}

	info := &ScriptInfo{
		Name:   name,
		SHA:    sha,
		Script: script,
	}

	c.scripts.Store(name, info)
	return info, nil
}

// GetScriptSHA returns the cached SHA for a script name
func (c *Client) GetScriptSHA(name string) (string, bool) {
	if info, ok := c.scripts.Load(name); ok {
		return info.(*ScriptInfo).SHA, true
	}
	return "", false
}

// EvalWithFallback runs a cached script by SHA, loading it first when unknown
// and reloading once if the server lost it.
func (c *Client) EvalWithFallback(ctx context.Context, name, script string, keys []string, args ...interface{}) *redis.Cmd {
	sha, ok := c.GetScriptSHA(name)
	if ok {
		result := c.client.EvalSha(ctx, sha, keys, args...)
		if isNoScriptError(result.Err()) {
			if _, err := c.LoadScript(ctx, name, script); err == nil {
				sha, _ = c.GetScriptSHA(name)
				return c.client.EvalSha(ctx, sha, keys, args...)
			}
		}
		return result
	}

	if _, err := c.LoadScript(ctx, name, script); err != nil {
		cmd := redis.NewCmd(ctx)
		cmd.SetErr(err)
		return cmd
	}

	sha, _ = c.GetScriptSHA(name)
	return c.client.EvalSha(ctx, sha, keys, args...)
}

func isNoScriptError(err error) bool {
	return err != nil && strings.HasPrefix(err.Error(), "NOSCRIPT")
}

// --- Basic Redis Operations ---

// Get gets a value by key
func (c *Client) Get(ctx context.Context, key string) *redis.StringCmd {
	return c.client.Get(ctx, key)
}

// Set sets a value with optional expiration
func (c *Client) Set(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.StatusCmd {
	return c.client.Set(ctx, key, value, expiration)
}

// SetNX sets a value only if key doesn't exist
func (c *Client) SetNX(ctx context.Context, key string, value interface{}, expiration time.Duration) *redis.BoolCmd {
	return c.client.SetNX(ctx, key, value, expiration)
}

// Del deletes keys
func (c *Client) Del(ctx context.Context, keys ...string) *redis.IntCmd {
	return c.client.Del(ctx, keys...)
}
