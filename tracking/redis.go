package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
)

// RedisConfig Redis 追踪存储配置
type RedisConfig struct {
	// Redis 地址
	Addr string `yaml:"addr" json:"addr"`

	// 密码
	Password string `yaml:"password" json:"password"`

	// 数据库编号
	DB int `yaml:"db" json:"db"`

	// 连接池大小
	PoolSize int `yaml:"pool_size" json:"pool_size"`

	// 键前缀
	KeyPrefix string `yaml:"key_prefix" json:"key_prefix"`

	// 会话过期时间，0 表示永不过期
	SessionTTL time.Duration `yaml:"session_ttl" json:"session_ttl"`
}

// RedisTracker is a Redis-based implementation of Tracker.
// Sessions are stored as JSON strings, step records as JSON lists, both
// under a configurable key prefix.
type RedisTracker struct {
	client    *redis.Client
	keyPrefix string
	ttl       time.Duration
}

// NewRedisTracker creates a new Redis-based tracker
func NewRedisTracker(config RedisConfig) (*RedisTracker, error) {
	client := redis.NewClient(&redis.Options{
		Addr:     config.Addr,
		Password: config.Password,
		DB:       config.DB,
		PoolSize: config.PoolSize,
	})

	// Test connection
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	if err := client.Ping(ctx).Err(); err != nil {
		return nil, fmt.Errorf("failed to connect to Redis: %w", err)
	}

	keyPrefix := config.KeyPrefix
	if keyPrefix == "" {
		keyPrefix = "flowcore:"
	}

	return &RedisTracker{
		client:    client,
		keyPrefix: keyPrefix,
		ttl:       config.SessionTTL,
	}, nil
}

// NewRedisTrackerWithClient wraps an existing client. Used by tests.
func NewRedisTrackerWithClient(client *redis.Client, keyPrefix string) *RedisTracker {
	if keyPrefix == "" {
		keyPrefix = "flowcore:"
	}
	return &RedisTracker{client: client, keyPrefix: keyPrefix}
}

// Close closes the tracker
func (t *RedisTracker) Close() error {
	return t.client.Close()
}

// Ping checks if the tracker is healthy
func (t *RedisTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx).Err()
}

func (t *RedisTracker) sessionKey(sessionID string) string {
	return t.keyPrefix + "session:" + sessionID
}

func (t *RedisTracker) stepsKey(sessionID string) string {
	return t.keyPrefix + "steps:" + sessionID
}

// StartSession creates a new session
func (t *RedisTracker) StartSession(ctx context.Context, params SessionParams) (*Session, error) {
	sess := &Session{
		ID:              uuid.New().String(),
		InitialPrompt:   params.InitialPrompt,
		AgentID:         params.AgentID,
		TemplateID:      params.TemplateID,
		AgentVersion:    params.AgentVersion,
		ParentSessionID: params.ParentSessionID,
		StartedAt:       time.Now(),
	}
	if err := t.saveSession(ctx, sess); err != nil {
		return nil, err
	}
	return sess, nil
}

// TrackWorkflowStart attaches the workflow name to a session
func (t *RedisTracker) TrackWorkflowStart(ctx context.Context, sessionID, workflowName string) error {
	sess, err := t.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	sess.WorkflowName = workflowName
	return t.saveSession(ctx, sess)
}

// RecordWorkflowStep persists one step attempt
func (t *RedisTracker) RecordWorkflowStep(ctx context.Context, record StepRecord) error {
	if record.SessionID == "" || record.StepIndex < 1 {
		return ErrInvalidInput
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}

	exists, err := t.client.Exists(ctx, t.sessionKey(record.SessionID)).Result()
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if exists == 0 {
		return ErrNotFound
	}

	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("failed to marshal step record: %w", err)
	}

	pipe := t.client.Pipeline()
	pipe.RPush(ctx, t.stepsKey(record.SessionID), data)
	if t.ttl > 0 {
		pipe.Expire(ctx, t.stepsKey(record.SessionID), t.ttl)
	}
	if _, err := pipe.Exec(ctx); err != nil {
		return fmt.Errorf("failed to store step record: %w", err)
	}
	return nil
}

// RecordWorkflowCompletion finalizes a session with a terminal outcome
func (t *RedisTracker) RecordWorkflowCompletion(ctx context.Context, sessionID string, outcome Outcome, metrics map[string]any) error {
	sess, err := t.GetSession(ctx, sessionID)
	if err != nil {
		return err
	}
	now := time.Now()
	sess.Outcome = outcome
	sess.Metrics = metrics
	sess.CompletedAt = &now
	return t.saveSession(ctx, sess)
}

// GetSession returns a session by id
func (t *RedisTracker) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	data, err := t.client.Get(ctx, t.sessionKey(sessionID)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}

	var sess Session
	if err := json.Unmarshal(data, &sess); err != nil {
		return nil, fmt.Errorf("failed to unmarshal session: %w", err)
	}
	return &sess, nil
}

// ListSteps returns the step records of a session ordered by step index
func (t *RedisTracker) ListSteps(ctx context.Context, sessionID string) ([]StepRecord, error) {
	if _, err := t.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	items, err := t.client.LRange(ctx, t.stepsKey(sessionID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list step records: %w", err)
	}

	out := make([]StepRecord, 0, len(items))
	for _, item := range items {
		var rec StepRecord
		if err := json.Unmarshal([]byte(item), &rec); err != nil {
			return nil, fmt.Errorf("failed to unmarshal step record: %w", err)
		}
		out = append(out, rec)
	}
	return out, nil
}

func (t *RedisTracker) saveSession(ctx context.Context, sess *Session) error {
	data, err := json.Marshal(sess)
	if err != nil {
		return fmt.Errorf("failed to marshal session: %w", err)
	}
	if err := t.client.Set(ctx, t.sessionKey(sess.ID), data, t.ttl).Err(); err != nil {
		return fmt.Errorf("failed to store session: %w", err)
	}
	return nil
}
