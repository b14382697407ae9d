package jobserver

import (
	"context"
	"fmt"
	"sort"

	"github.com/spf13/cast"
)

// Param describes one named, required input a registered process accepts.
// Optional parameters are not supported: spec.md §4.8 requires the
// submitted key set to match the operation's parameter set exactly.
type Param struct {
	Name string
}

// Run is the function a registered process executes once its parameters
// have been validated.
type Run func(ctx context.Context, params map[string]interface{}) (interface{}, error)

// Process is one entry in the job server's process table, per spec.md
// §4.8: "registered process names map 1:1 to §4.1-§4.7 operations".
type Process struct {
	Name   string
	Params []Param
	Run    Run
}

// ValidationError reports the unexpected/missing parameter-name lists
// spec.md §4.8 requires in a 400 response.
type ValidationError struct {
	Unexpected []string
	Missing    []string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("jobserver: invalid parameters: unexpected=%v missing=%v", e.Unexpected, e.Missing)
}

// Registry holds the process table the job server dispatches against.
type Registry struct {
	procs map[string]Process
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{procs: make(map[string]Process)}
}

// Register adds p to the table, replacing any existing process with the
// same name.
func (r *Registry) Register(p Process) {
	r.procs[p.Name] = p
}

// Get returns the named process.
func (r *Registry) Get(name string) (Process, bool) {
	p, ok := r.procs[name]
	return p, ok
}

// Names returns every registered process name, sorted.
func (r *Registry) Names() []string {
	names := make([]string, 0, len(r.procs))
	for n := range r.procs {
		names = append(names, n)
	}
	sort.Strings(names)
	return names
}

// Validate checks body's key set against the named process's parameter
// set, per spec.md §4.8: keys must match exactly, otherwise a
// *ValidationError listing the unexpected and missing keys is returned.
func (r *Registry) Validate(name string, body map[string]interface{}) (*ValidationError, bool) {
	p, ok := r.procs[name]
	if !ok {
		return nil, false
	}
	want := make(map[string]bool, len(p.Params))
	for _, param := range p.Params {
		want[param.Name] = true
	}
	var unexpected, missing []string
	for k := range body {
		if !want[k] {
			unexpected = append(unexpected, k)
		}
	}
	for k := range want {
		if _, present := body[k]; !present {
			missing = append(missing, k)
		}
	}
	sort.Strings(unexpected)
	sort.Strings(missing)
	if len(unexpected) == 0 && len(missing) == 0 {
		return nil, true
	}
	return &ValidationError{Unexpected: unexpected, Missing: missing}, true
}

// noop is the self-check process spec.md §4.8 registers at
// /processes/test/execution.
func noop(ctx context.Context, params map[string]interface{}) (interface{}, error) {
	return map[string]interface{}{"ok": true}, nil
}

// paramString/paramFloat/paramInt coerce a required job parameter via
// spf13/cast, the same permissive-coercion library viper itself uses to
// read configuration values.
func paramString(params map[string]interface{}, name string) (string, error) {
	v, ok := params[name]
	if !ok {
		return "", fmt.Errorf("jobserver: missing parameter %q", name)
	}
	return cast.ToStringE(v)
}

func paramFloat(params map[string]interface{}, name string) (float64, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("jobserver: missing parameter %q", name)
	}
	return cast.ToFloat64E(v)
}

func paramInt(params map[string]interface{}, name string) (int, error) {
	v, ok := params[name]
	if !ok {
		return 0, fmt.Errorf("jobserver: missing parameter %q", name)
	}
	return cast.ToIntE(v)
}
