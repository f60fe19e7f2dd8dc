package workflow

// StepMetadata describes one step of a workflow definition. DependsOn, Next,
// TimeoutMS, Concurrency and Resources are declarative hints consumed by the
// external durable DAG engine; the in-process executors ignore them and run
// the step list strictly in declaration order.
type StepMetadata struct {
	Name        string         `json:"name" yaml:"name"`
	Description string         `json:"description,omitempty" yaml:"description"`
	DependsOn   []string       `json:"depends_on,omitempty" yaml:"depends_on"`
	Next        string         `json:"next,omitempty" yaml:"next"`
	TimeoutMS   int64          `json:"timeout_ms,omitempty" yaml:"timeout_ms"`
	Concurrency int            `json:"concurrency,omitempty" yaml:"concurrency"`
	Resources   map[string]any `json:"resource_requirements,omitempty" yaml:"resource_requirements"`
}

// Definition is the static description of a workflow type: display name,
// version, default configuration and step metadata. The dispatcher merges
// caller overrides into a copy of Config; definitions themselves stay
// immutable after module load.
type Definition struct {
	Type    string         `json:"type" yaml:"type"`
	Name    string         `json:"name" yaml:"name"`
	Version string         `json:"version,omitempty" yaml:"version"`
	Config  map[string]any `json:"config,omitempty" yaml:"config"`
	Steps   []StepMetadata `json:"steps,omitempty" yaml:"steps"`
}

// Clone returns a copy of the definition with its own Config map and Steps
// slice, so merging never mutates the module's static definition.
func (d *Definition) Clone() *Definition {
	if d == nil {
		return nil
	}
	out := *d
	out.Config = make(map[string]any, len(d.Config))
	for k, v := range d.Config {
		out.Config[k] = v
	}
	out.Steps = append([]StepMetadata(nil), d.Steps...)
	return &out
}

// Definable is implemented by workflow modules that publish a static
// definition for the dispatcher. Modules without one can still be registered
// and executed; only Dispatcher.CreateWorkflow requires it.
type Definable interface {
	Definition() *Definition
}
