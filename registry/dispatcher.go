package registry

import (
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/workflow"
)

// ProvenPattern is a previously recorded, confidence-ranked workflow
// configuration. GenesisID correlates the pattern across workflow instances;
// (WorkflowType, GenesisID) is the upsert key.
type ProvenPattern struct {
	WorkflowType string         `json:"workflow_type"`
	GenesisID    string         `json:"genesis_id"`
	Config       map[string]any `json:"config,omitempty"`
	SuccessRate  float64        `json:"success_rate"`
	Confidence   float64        `json:"confidence"`
	RecordedAt   time.Time      `json:"recorded_at"`
}

// Dispatcher 工作流调度器
// Dispatcher resolves workflow types through the Registry, merges runtime
// configuration into static definitions, and stores proven configuration
// patterns for adaptive reuse.
type Dispatcher struct {
	registry *Registry
	mu       sync.RWMutex
	patterns map[string]map[string]ProvenPattern // workflow type -> genesis id -> pattern
	logger   *zap.Logger
}

// NewDispatcher 创建工作流调度器
func NewDispatcher(reg *Registry, logger *zap.Logger) *Dispatcher {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Dispatcher{
		registry: reg,
		patterns: make(map[string]map[string]ProvenPattern),
		logger:   logger.With(zap.String("component", "workflow_dispatcher")),
	}
}

// Registry returns the backing registry.
func (d *Dispatcher) Registry() *Registry {
	return d.registry
}

// CreateWorkflow resolves a type and returns its static definition with the
// caller's configuration shallow-merged in. overrides must be nil,
// a map[string]any or a workflow.Context; anything else is rejected with
// ErrInvalidConfig.
func (d *Dispatcher) CreateWorkflow(workflowType string, overrides any) (*workflow.Definition, error) {
	wf, err := d.registry.Get(workflowType)
	if err != nil {
		return nil, err
	}

	def, err := safeDefinition(wf)
	if err != nil {
		return nil, err
	}

	merged, err := asConfigMap(overrides)
	if err != nil {
		return nil, err
	}

	for k, v := range merged {
		def.Config[k] = v
	}
	def.Type = workflowType
	if def.Name == "" {
		def.Name = strings.ReplaceAll(workflowType, "_", " ")
	}
	return def, nil
}

// RecordPattern upserts a proven pattern under (workflowType, GenesisID).
// Called by external learning collaborators after isolated experiment runs.
func (d *Dispatcher) RecordPattern(workflowType string, pattern ProvenPattern) {
	d.mu.Lock()
	defer d.mu.Unlock()

	pattern.WorkflowType = workflowType
	if pattern.RecordedAt.IsZero() {
		pattern.RecordedAt = time.Now()
	}

	byGenesis, ok := d.patterns[workflowType]
	if !ok {
		byGenesis = make(map[string]ProvenPattern)
		d.patterns[workflowType] = byGenesis
	}
	if _, exists := byGenesis[pattern.GenesisID]; exists {
		d.logger.Debug("proven pattern replaced",
			zap.String("type", workflowType),
			zap.String("genesis_id", pattern.GenesisID),
		)
	}
	byGenesis[pattern.GenesisID] = pattern
}

// ProvenPatterns returns all patterns recorded for a type, best first
// (sorted by confidence descending). Callers use these to prefer empirically
// validated configurations over static defaults.
func (d *Dispatcher) ProvenPatterns(workflowType string) []ProvenPattern {
	d.mu.RLock()
	defer d.mu.RUnlock()

	byGenesis := d.patterns[workflowType]
	out := make([]ProvenPattern, 0, len(byGenesis))
	for _, p := range byGenesis {
		out = append(out, p)
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].Confidence > out[j].Confidence
	})
	return out
}

// safeDefinition fetches a module's static definition behind a panic guard.
// A module without a definition accessor, a nil definition, or a panicking
// accessor all collapse to ErrDefinitionFailed.
func safeDefinition(wf workflow.Workflow) (def *workflow.Definition, err error) {
	defer func() {
		if r := recover(); r != nil {
			def = nil
			err = fmt.Errorf("%w: %v", ErrDefinitionFailed, r)
		}
	}()

	definable, ok := wf.(workflow.Definable)
	if !ok {
		return nil, ErrDefinitionFailed
	}
	static := definable.Definition()
	if static == nil {
		return nil, ErrDefinitionFailed
	}
	return static.Clone(), nil
}

// asConfigMap normalizes the caller's overrides. nil means no overrides.
func asConfigMap(overrides any) (map[string]any, error) {
	switch v := overrides.(type) {
	case nil:
		return nil, nil
	case map[string]any:
		return v, nil
	case workflow.Context:
		return v, nil
	default:
		return nil, fmt.Errorf("%w: got %T", ErrInvalidConfig, overrides)
	}
}
