package pipeline

import (
	"fmt"
	"sort"
)

// Provider is a pipeline data source: an enumerable, ordered stream of
// examples, each containing at minimum an image tensor plus monotonically
// non-decreasing (video_ind, frame_ind). Ground-truth label readers and
// live video readers both satisfy this contract.
type Provider interface {
	// Len returns the number of examples the provider will produce.
	Len() int
	// Keys returns the keys present on every produced example.
	Keys() []string
	// Sequence returns a fresh single-pass sequence over the data.
	Sequence() Sequence
}

// Stage is one unit transform over a lazy sequence of examples. A stage
// declares the keys it requires on input and the keys it adds on output so
// that composition can be checked before any data is pulled.
type Stage interface {
	// Name identifies the stage in composition errors and logs.
	Name() string
	// InputKeys are required on every upstream record.
	InputKeys() []string
	// OutputKeys are added to (or guaranteed on) every downstream record.
	OutputKeys() []string
	// Transform wraps the upstream sequence. Implementations pull from
	// seq on demand; they must not materialise the whole dataset unless
	// their contract says so.
	Transform(seq Sequence) Sequence
}

// KeyMutator is implemented by stages that remove or rename keys (filters,
// renamers). MutateKeys edits the build-time set of available keys so that
// validation tracks drops as well as additions.
type KeyMutator interface {
	MutateKeys(available map[string]bool)
}

// MissingKeyError is the composition error raised at build time when a
// stage requires a key that no earlier stage or the provider produces.
type MissingKeyError struct {
	Stage string
	Key   string
}

func (e *MissingKeyError) Error() string {
	return fmt.Sprintf("pipeline composition: stage %q requires key %q which is not produced upstream", e.Stage, e.Key)
}

// Pipeline is an ordered chain of stages plus a data provider. Stages hold
// no provider state, so the same chain can be rebound to a new provider.
type Pipeline struct {
	Provider Provider
	stages   []Stage
}

// New returns an empty pipeline bound to an optional provider.
func New(provider Provider) *Pipeline {
	return &Pipeline{Provider: provider}
}

// Append adds stages to the end of the chain.
func (p *Pipeline) Append(stages ...Stage) *Pipeline {
	p.stages = append(p.stages, stages...)
	return p
}

// Stages returns the stage chain in order.
func (p *Pipeline) Stages() []Stage { return p.stages }

// Validate checks that each stage's required input keys are available after
// all prior stages (including provider-declared keys). Fails fast with a
// MissingKeyError naming the unmet key rather than deferring to a runtime
// key error deep in execution.
func (p *Pipeline) Validate(provider Provider) error {
	if provider == nil {
		provider = p.Provider
	}
	if provider == nil {
		return fmt.Errorf("pipeline: no provider bound")
	}
	available := make(map[string]bool)
	for _, k := range provider.Keys() {
		available[k] = true
	}
	for _, st := range p.stages {
		missing := ""
		for _, k := range st.InputKeys() {
			if !available[k] {
				missing = k
				break
			}
		}
		if missing != "" {
			return &MissingKeyError{Stage: st.Name(), Key: missing}
		}
		for _, k := range st.OutputKeys() {
			available[k] = true
		}
		if km, ok := st.(KeyMutator); ok {
			km.MutateKeys(available)
		}
	}
	return nil
}

// Build validates the chain against the provider and returns the composed
// lazy sequence. Passing a non-nil provider rebinds the pipeline.
func (p *Pipeline) Build(provider Provider) (Sequence, error) {
	if provider != nil {
		p.Provider = provider
	}
	if err := p.Validate(nil); err != nil {
		return nil, err
	}
	seq := p.Provider.Sequence()
	for _, st := range p.stages {
		seq = st.Transform(seq)
	}
	return seq, nil
}

// Run builds the pipeline and drains it through a fault-isolating
// SafeSequence, reporting progress via the optional callback. Returns the
// collected examples and the number of records skipped due to errors.
func (p *Pipeline) Run(provider Provider, progress func(i int)) ([]Example, int, error) {
	seq, err := p.Build(provider)
	if err != nil {
		return nil, 0, err
	}
	safe := NewSafeSequence(seq)
	safe.Progress = progress
	out, err := Collect(safe)
	return out, safe.ErrorCount, err
}

// Describe returns a human-readable summary of the stage chain for
// diagnostics.
func (p *Pipeline) Describe() string {
	out := ""
	for i, st := range p.stages {
		if i > 0 {
			out += " -> "
		}
		out += st.Name()
	}
	return out
}

// sortedKeys returns map keys in deterministic order; used by stages that
// log or replicate key sets.
func sortedKeys(m map[string]bool) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}
