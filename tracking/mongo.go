package tracking

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.mongodb.org/mongo-driver/v2/bson"
	"go.mongodb.org/mongo-driver/v2/mongo"
	"go.mongodb.org/mongo-driver/v2/mongo/options"
)

// MongoConfig MongoDB 追踪存储配置
type MongoConfig struct {
	// 连接 URI
	URI string `yaml:"uri" json:"uri"`

	// 数据库名称
	Database string `yaml:"database" json:"database"`

	// 连接超时
	ConnectTimeout time.Duration `yaml:"connect_timeout" json:"connect_timeout"`
}

// MongoTracker is a document-store implementation of Tracker.
// Sessions live in the "sessions" collection, step records in
// "session_steps", keyed by session id.
type MongoTracker struct {
	client   *mongo.Client
	sessions *mongo.Collection
	steps    *mongo.Collection
}

// NewMongoTracker connects to MongoDB and prepares the collections.
func NewMongoTracker(config MongoConfig) (*MongoTracker, error) {
	client, err := mongo.Connect(options.Client().ApplyURI(config.URI))
	if err != nil {
		return nil, fmt.Errorf("failed to connect to MongoDB: %w", err)
	}

	timeout := config.ConnectTimeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	ctx, cancel := context.WithTimeout(context.Background(), timeout)
	defer cancel()

	if err := client.Ping(ctx, nil); err != nil {
		return nil, fmt.Errorf("failed to ping MongoDB: %w", err)
	}

	dbName := config.Database
	if dbName == "" {
		dbName = "flowcore"
	}
	db := client.Database(dbName)

	return &MongoTracker{
		client:   client,
		sessions: db.Collection("sessions"),
		steps:    db.Collection("session_steps"),
	}, nil
}

// Close closes the tracker
func (t *MongoTracker) Close() error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	return t.client.Disconnect(ctx)
}

// Ping checks if the tracker is healthy
func (t *MongoTracker) Ping(ctx context.Context) error {
	return t.client.Ping(ctx, nil)
}

// StartSession creates a new session
func (t *MongoTracker) StartSession(ctx context.Context, params SessionParams) (*Session, error) {
	sess := &Session{
		ID:              uuid.New().String(),
		InitialPrompt:   params.InitialPrompt,
		AgentID:         params.AgentID,
		TemplateID:      params.TemplateID,
		AgentVersion:    params.AgentVersion,
		ParentSessionID: params.ParentSessionID,
		StartedAt:       time.Now(),
	}
	if _, err := t.sessions.InsertOne(ctx, sessionDoc(sess)); err != nil {
		return nil, fmt.Errorf("failed to create session: %w", err)
	}
	return sess, nil
}

// TrackWorkflowStart attaches the workflow name to a session
func (t *MongoTracker) TrackWorkflowStart(ctx context.Context, sessionID, workflowName string) error {
	res, err := t.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{"workflow_name": workflowName}},
	)
	if err != nil {
		return fmt.Errorf("failed to update session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// RecordWorkflowStep persists one step attempt
func (t *MongoTracker) RecordWorkflowStep(ctx context.Context, record StepRecord) error {
	if record.SessionID == "" || record.StepIndex < 1 {
		return ErrInvalidInput
	}
	if record.RecordedAt.IsZero() {
		record.RecordedAt = time.Now()
	}

	count, err := t.sessions.CountDocuments(ctx, bson.M{"_id": record.SessionID})
	if err != nil {
		return fmt.Errorf("failed to check session: %w", err)
	}
	if count == 0 {
		return ErrNotFound
	}

	doc := bson.M{
		"session_id":  record.SessionID,
		"step_index":  record.StepIndex,
		"step_name":   record.StepName,
		"description": record.Description,
		"tokens_used": record.TokensUsed,
		"metrics":     record.Metrics,
		"outcome":     string(record.Outcome),
		"duration_ms": record.DurationMS,
		"recorded_at": record.RecordedAt,
	}
	if _, err := t.steps.InsertOne(ctx, doc); err != nil {
		return fmt.Errorf("failed to record step: %w", err)
	}
	return nil
}

// RecordWorkflowCompletion finalizes a session with a terminal outcome
func (t *MongoTracker) RecordWorkflowCompletion(ctx context.Context, sessionID string, outcome Outcome, metrics map[string]any) error {
	now := time.Now()
	res, err := t.sessions.UpdateOne(ctx,
		bson.M{"_id": sessionID},
		bson.M{"$set": bson.M{
			"outcome":      string(outcome),
			"metrics":      metrics,
			"completed_at": now,
		}},
	)
	if err != nil {
		return fmt.Errorf("failed to finalize session: %w", err)
	}
	if res.MatchedCount == 0 {
		return ErrNotFound
	}
	return nil
}

// GetSession returns a session by id
func (t *MongoTracker) GetSession(ctx context.Context, sessionID string) (*Session, error) {
	var doc sessionDocument
	err := t.sessions.FindOne(ctx, bson.M{"_id": sessionID}).Decode(&doc)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to get session: %w", err)
	}
	return doc.toSession(), nil
}

// ListSteps returns the step records of a session ordered by step index
func (t *MongoTracker) ListSteps(ctx context.Context, sessionID string) ([]StepRecord, error) {
	if _, err := t.GetSession(ctx, sessionID); err != nil {
		return nil, err
	}

	cursor, err := t.steps.Find(ctx,
		bson.M{"session_id": sessionID},
		options.Find().SetSort(bson.D{{Key: "step_index", Value: 1}}),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to list steps: %w", err)
	}
	defer cursor.Close(ctx)

	var docs []stepDocument
	if err := cursor.All(ctx, &docs); err != nil {
		return nil, fmt.Errorf("failed to decode steps: %w", err)
	}

	out := make([]StepRecord, 0, len(docs))
	for _, d := range docs {
		out = append(out, d.toRecord())
	}
	return out, nil
}

type sessionDocument struct {
	ID              string         `bson:"_id"`
	InitialPrompt   string         `bson:"initial_prompt"`
	AgentID         string         `bson:"agent_id"`
	TemplateID      string         `bson:"template_id,omitempty"`
	AgentVersion    string         `bson:"agent_version,omitempty"`
	ParentSessionID string         `bson:"parent_session_id,omitempty"`
	WorkflowName    string         `bson:"workflow_name,omitempty"`
	Outcome         string         `bson:"outcome,omitempty"`
	Metrics         map[string]any `bson:"metrics,omitempty"`
	StartedAt       time.Time      `bson:"started_at"`
	CompletedAt     *time.Time     `bson:"completed_at,omitempty"`
}

func (d *sessionDocument) toSession() *Session {
	return &Session{
		ID:              d.ID,
		InitialPrompt:   d.InitialPrompt,
		AgentID:         d.AgentID,
		TemplateID:      d.TemplateID,
		AgentVersion:    d.AgentVersion,
		ParentSessionID: d.ParentSessionID,
		WorkflowName:    d.WorkflowName,
		Outcome:         Outcome(d.Outcome),
		Metrics:         d.Metrics,
		StartedAt:       d.StartedAt,
		CompletedAt:     d.CompletedAt,
	}
}

func sessionDoc(s *Session) *sessionDocument {
	return &sessionDocument{
		ID:              s.ID,
		InitialPrompt:   s.InitialPrompt,
		AgentID:         s.AgentID,
		TemplateID:      s.TemplateID,
		AgentVersion:    s.AgentVersion,
		ParentSessionID: s.ParentSessionID,
		WorkflowName:    s.WorkflowName,
		Outcome:         string(s.Outcome),
		Metrics:         s.Metrics,
		StartedAt:       s.StartedAt,
		CompletedAt:     s.CompletedAt,
	}
}

type stepDocument struct {
	SessionID   string         `bson:"session_id"`
	StepIndex   int            `bson:"step_index"`
	StepName    string         `bson:"step_name"`
	Description string         `bson:"description"`
	TokensUsed  int            `bson:"tokens_used"`
	Metrics     map[string]any `bson:"metrics,omitempty"`
	Outcome     string         `bson:"outcome"`
	DurationMS  int64          `bson:"duration_ms"`
	RecordedAt  time.Time      `bson:"recorded_at"`
}

func (d *stepDocument) toRecord() StepRecord {
	return StepRecord{
		SessionID:   d.SessionID,
		StepIndex:   d.StepIndex,
		StepName:    d.StepName,
		Description: d.Description,
		TokensUsed:  d.TokensUsed,
		Metrics:     d.Metrics,
		Outcome:     StepOutcome(d.Outcome),
		DurationMS:  d.DurationMS,
		RecordedAt:  d.RecordedAt,
	}
}
