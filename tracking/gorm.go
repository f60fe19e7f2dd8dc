package tracking

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/glebarez/sqlite"
	"github.com/google/uuid"
	"gorm.io/driver/mysql"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// DatabaseConfig SQL 追踪存储配置
type DatabaseConfig struct {
	// 数据库驱动: sqlite, mysql, postgres
	Driver string `yaml:"driver" json:"driver"`

	// 连接字符串
	DSN string `yaml:"dsn" json:"dsn"`

	// 启动时自动建表
	AutoMigrate bool `yaml:"auto_migrate" json:"auto_migrate"`

	// 最大打开连接数
	MaxOpenConns int `yaml:"max_open_conns" json:"max_open_conns"`

	// 最大空闲连接数
	MaxIdleConns int `yaml:"max_idle_conns" json:"max_idle_conns"`

	// 连接最大生命周期
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime" json:"conn_max_lifetime"`
}

// sessionModel is the sessions table.
type sessionModel struct {
	ID              string `gorm:"primaryKey;size:36"`
	InitialPrompt   string
	AgentID         string `gorm:"index;size:128"`
	TemplateID      string `gorm:"size:128"`
	AgentVersion    string `gorm:"size:64"`
	ParentSessionID string `gorm:"size:36"`
	WorkflowName    string `gorm:"size:128"`
	Outcome         string `gorm:"size:32"`
	Metrics         string `gorm:"type:text"`
	StartedAt       time.Time
	CompletedAt     *time.Time
}

func (sessionModel) TableName() string { return "sessions" }

// stepModel is the session_steps table. One row per step attempt.
type stepModel struct {
	ID          uint   `gorm:"primaryKey;autoIncrement"`
	SessionID   string `gorm:"index;size:36"`
	StepIndex   int
	StepName    string `gorm:"size:128"`
	Description string
	TokensUsed  int
	Metrics     string `gorm:"type:text"`
	Outcome     string `gorm:"size:16"`
	DurationMS  int64
	RecordedAt  time.Time
}

func (stepModel) TableName() string { return "session_steps" }

// GormTracker is a SQL implementation of Tracker backed by gorm.
// Suitable for single-node and small-cluster production deployments.
type GormTracker struct {
	db *gorm.DB
}

// NewGormTracker opens a database connection per the configured driver and
// optionally migrates the schema.
func NewGormTracker(config DatabaseConfig) (*GormTracker, error) {
	var dialector gorm.Dialector
	switch config.Driver {
	case "sqlite", "":
		dialector = sqlite.Open(config.DSN)
	case "mysql":
		dialector = mysql.Open(config.DSN)
	case "postgres":
		dialector = postgres.Open(config.DSN)
	default:
		return nil, fmt.Errorf("unsupported database driver: %s", config.Driver)
	}

	db, err := gorm.Open(dialector, &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql.DB: %w", err)
	}
	if config.MaxOpenConns > 0 {
		sqlDB.SetMaxOpenConns(config.MaxOpenConns)
	}
	if config.MaxIdleConns > 0 {
		sqlDB.SetMaxIdleConns(config.MaxIdleConns)
	}
	if config.ConnMaxLifetime > 0 {
		sqlDB.SetConnMaxLifetime(config.ConnMaxLifetime)
	}

	t := &GormTracker{db: db}
	if config.AutoMigrate {
		if err := db.AutoMigrate(&sessionModel{}, &stepModel{}); err != nil {
			return nil, fmt.Errorf("failed to migrate tracking schema: %w", err)
		}
	}
	return t, nil
}

// NewGormTrackerWithDB wraps an existing gorm handle. Used by tests.
func NewGormTrackerWithDB(db *gorm.DB) *GormTracker {
	return &GormTracker{db: db}
}

// Close closes the tracker
func (t *GormTracker) Close() error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

// Ping checks if the tracker is healthy
func (t *GormTracker) Ping(ctx context.Context) error {
	sqlDB, err := t.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.PingContext(ctx)
}

// StartSession creates a new session
func (t *GormTracker) StartSession(ctx context.Context, params SessionParams) (*Session, error) {
	model := sessionModel{
		ID:              uuid.New().String(),
		InitialPrompt:   params.InitialPrompt,
		AgentID:         params.AgentID,
		TemplateID:      params.TemplateID,
		AgentVersion:    params.AgentVersion,
		ParentSessionID: params.ParentSessionID,
		StartedAt:       time.Now(),
	}
	if err := t.db.WithContext(ctx).Create(&model).Error; err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sessionFromModel(&model), nil
}

// TrackWorkflowStart attaches the workflow name to a session
func (t *GormTracker) TrackWorkflowStart(ctx context.Context, sessionID, workflowName string) error {
	res := t.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("id = ?", sessionID).
		Update("workflow_name", workflowName)
	if res.Error != nil {
		return fmt.Errorf("failed to update session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordWorkflowStep persists one step attempt
func (t *GormTracker) RecordWorkflowStep(ctx context.Context, record StepRecord) error {
	if record.SessionID == "" || record.StepIndex < 1 {
		return ErrInvalidInput
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}
	model := stepModel{
		SessionID:   record.SessionID,
		StepIndex:   record.StepIndex,
		StepName:    record.StepName,
		Description: record.Description,
		TokensUsed:  record.TokensUsed,
		Metrics:     encodeMetrics(record.Metrics),
		Outcome:     string(record.Outcome),
		DurationMS:  record.DurationMS,
		RecordedAt:  record.RecordedAt,
	}
	if err := t.db.WithContext(ctx).Create(&model).Error; err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// RecordWorkflowCompletion finalizes a session with a terminal outcome
func (t *GormTracker) RecordWorkflowCompletion(ctx context.Context, sessionID string, outcome Outcome, metrics map[string]any) error {
	now := time.Now()
	res := t.db.WithContext(ctx).
		Model(&sessionModel{}).
		Where("id = ?", sessionID).
		Updates(map[string]any{
			"outcome":      string(outcome),
			"metrics":      encodeMetrics(metrics),
			"completed_at": &now,
		})
	if res.Error != nil {
		return fmt.Errorf("failed to finalize session: %w", res.Error)
	}
	if res.RowsAffected == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession returns a session by id
func (t *GormTracker) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var model sessionModel
	err := t.db.WithContext(ctx).First(&model, "id = ?", sessionID).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return sessionFromModel(&model), nil
}

// ListSteps returns the step records of a session ordered by step index
func (t *GormTracker) ListSteps(ctx context.Context, sessionID string) ([]StepRecord, error) {
	if _, err := t.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	var models []stepModel
	err := t.db.WithContext(ctx).
		Where("session_id = ?", sessionID).
		Order("step_index asc").
		Find(&models).Error
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}

	out := make([]StepRecord, 0, len(models))
	for _, m := range models {
		out = append(out, StepRecord{
			SessionID:   m.SessionID,
			StepIndex:   m.StepIndex,
			StepName:    m.StepName,
			Description: m.Description,
			TokensUsed:  m.TokensUsed,
			Metrics:     decodeMetrics(m.Metrics),
			Outcome:     StepOutcome(m.Outcome),
			DurationMS:  m.DurationMS,
			RecordedAt:  m.RecordedAt,
		})
	}
	return out, nil
}

func sessionFromModel(m *sessionModel) *Session {
	return &Session{
		ID:              m.ID,
		InitialPrompt:   m.InitialPrompt,
		AgentID:         m.AgentID,
		TemplateID:      m.TemplateID,
		AgentVersion:    m.AgentVersion,
		ParentSessionID: m.ParentSessionID,
		WorkflowName:    m.WorkflowName,
		Outcome:         Outcome(m.Outcome),
		Metrics:         decodeMetrics(m.Metrics),
		StartedAt:       m.StartedAt,
		CompletedAt:     m.CompletedAt,
	}
}

// encodeMetrics serializes a metrics map to a JSON text column. An empty map
// is stored as the empty string.
func encodeMetrics(m map[string]any) string {
	if len(m) == 0 {
		return ""
	}
	data, err := json.Marshal(m)
	if err != nil {
		return ""
	}
	return string(data)
}

func decodeMetrics(s string) map[string]any {
	if s == "" {
		return nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(s), &m); err != nil {
		return nil
	}
	return m
}
