package registry

import (
	"errors"
	"sort"
	"sync"

	"go.uber.org/zap"

	"github.com/BaSui01/flowcore/workflow"
)

// Common errors
var (
	// ErrNotFound 请求的工作流类型未注册
	ErrNotFound = errors.New("workflow type not found")
	// ErrDefinitionFailed 模块缺少或无法提供静态定义
	ErrDefinitionFailed = errors.New("workflow definition failed")
	// ErrInvalidConfig 配置覆盖不是键值映射
	ErrInvalidConfig = errors.New("invalid config overrides")
)

// Entry is one registered (type, module) pair.
type Entry struct {
	Type     string
	Workflow workflow.Workflow
}

// Registry 工作流注册表
// Registry is a concurrency-safe table from workflow type to implementation
// module, with one-level aliasing. All mutation is single-key upserts; no
// cross-key consistency is guaranteed or required.
type Registry struct {
	mu          sync.RWMutex
	workflows   map[string]workflow.Workflow
	aliases     map[string]string
	initialized bool
	logger      *zap.Logger
}

// New 创建工作流注册表
func New(logger *zap.Logger) *Registry {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Registry{
		workflows: make(map[string]workflow.Workflow),
		aliases:   make(map[string]string),
		logger:    logger.With(zap.String("component", "workflow_registry")),
	}
}

// Init loads the statically configured aliases. Idempotent: only the first
// call applies; repeated calls are safe no-ops so defensive double
// initialization at startup cannot clobber later registrations.
func (r *Registry) Init(aliases map[string]string) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if r.initialized {
		r.logger.Debug("registry already initialized, skipping")
		return
	}
	for alias, target := range aliases {
		r.aliases[alias] = target
	}
	r.initialized = true
	r.logger.Info("registry initialized", zap.Int("aliases", len(aliases)))
}

// Register upserts a workflow module under a type. Last write wins;
// overwriting an existing registration is not an error.
func (r *Registry) Register(workflowType string, wf workflow.Workflow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if _, exists := r.workflows[workflowType]; exists {
		r.logger.Info("workflow re-registered", zap.String("type", workflowType))
	}
	r.workflows[workflowType] = wf
}

// CreateAlias upserts a one-level alias for a workflow type.
func (r *Registry) CreateAlias(alias, targetType string) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[alias] = targetType
}

// ResolveAlias returns the target type for an alias, or the input unchanged
// when no alias is registered. Resolution never chases a second alias.
func (r *Registry) ResolveAlias(workflowType string) string {
	r.mu.RLock()
	defer r.mu.RUnlock()

	if target, ok := r.aliases[workflowType]; ok {
		return target
	}
	return workflowType
}

// Get resolves aliases and returns the registered module, or ErrNotFound.
func (r *Registry) Get(workflowType string) (workflow.Workflow, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	resolved := workflowType
	if target, ok := r.aliases[workflowType]; ok {
		resolved = target
	}
	wf, ok := r.workflows[resolved]
	if !ok {
		return nil, ErrNotFound
	}
	return wf, nil
}

// Exists reports whether a type (after alias resolution) is registered.
func (r *Registry) Exists(workflowType string) bool {
	_, err := r.Get(workflowType)
	return err == nil
}

// List returns all registered (type, module) pairs sorted by type.
func (r *Registry) List() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()

	out := make([]Entry, 0, len(r.workflows))
	for t, wf := range r.workflows {
		out = append(out, Entry{Type: t, Workflow: wf})
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Type < out[j].Type })
	return out
}
