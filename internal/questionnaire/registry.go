// Package questionnaire keeps an explicit registry of questionnaire scoring
// functions keyed by questionnaire name. Only generic aggregate scorers are
// built in; instrument-specific scoring is registered by the caller.
package questionnaire

import (
	"errors"
	"fmt"
	"math"
	"slices"
	"sort"
	"strings"
	"sync"

	"gonum.org/v1/gonum/floats"
)

// ErrUnknownQuestionnaire is returned by Lookup and Score for names that are
// not registered.
var ErrUnknownQuestionnaire = errors.New("unknown questionnaire")

// ErrInvalidResponses is returned by scorers for unusable item responses.
var ErrInvalidResponses = errors.New("invalid responses")

// Responses maps item identifiers to numeric answers.
type Responses map[string]float64

// Scores maps subscale names to scores.
type Scores map[string]float64

// ScoreFunc scores one subject's responses.
type ScoreFunc func(Responses) (Scores, error)

// Registry maps normalised questionnaire names to scorers.
type Registry struct {
	mu      sync.RWMutex
	scorers map[string]ScoreFunc
}

// NewRegistry returns an empty registry.
func NewRegistry() *Registry {
	return &Registry{scorers: make(map[string]ScoreFunc)}
}

// NewDefaultRegistry returns a registry holding the generic "sum" and "mean"
// scorers.
func NewDefaultRegistry() *Registry {
	r := NewRegistry()
	r.MustRegister("sum", Sum)
	r.MustRegister("mean", Mean)
	return r
}

func normalize(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// Register adds a scorer. Names are case-insensitive and must be unique.
func (r *Registry) Register(name string, fn ScoreFunc) error {
	key := normalize(name)
	if key == "" || fn == nil {
		return fmt.Errorf("questionnaire name and scorer are required")
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.scorers[key]; ok {
		return fmt.Errorf("questionnaire %q already registered", key)
	}
	r.scorers[key] = fn
	return nil
}

// MustRegister is Register for use during startup wiring.
func (r *Registry) MustRegister(name string, fn ScoreFunc) {
	if err := r.Register(name, fn); err != nil {
		panic(err)
	}
}

// Lookup returns the scorer for name.
func (r *Registry) Lookup(name string) (ScoreFunc, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	fn, ok := r.scorers[normalize(name)]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownQuestionnaire, name)
	}
	return fn, nil
}

// Names returns the registered names in sorted order.
func (r *Registry) Names() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	names := make([]string, 0, len(r.scorers))
	for name := range r.scorers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Score looks up name and scores responses with it.
func (r *Registry) Score(name string, responses Responses) (Scores, error) {
	fn, err := r.Lookup(name)
	if err != nil {
		return nil, err
	}
	return fn(responses)
}

func values(responses Responses) ([]float64, error) {
	if len(responses) == 0 {
		return nil, fmt.Errorf("%w: no items", ErrInvalidResponses)
	}
	items := make([]string, 0, len(responses))
	for item := range responses {
		items = append(items, item)
	}
	slices.Sort(items)
	out := make([]float64, 0, len(items))
	for _, item := range items {
		v := responses[item]
		if math.IsNaN(v) || math.IsInf(v, 0) {
			return nil, fmt.Errorf("%w: item %q is not a finite number", ErrInvalidResponses, item)
		}
		out = append(out, v)
	}
	return out, nil
}

// Sum scores the total of all items.
func Sum(responses Responses) (Scores, error) {
	v, err := values(responses)
	if err != nil {
		return nil, err
	}
	return Scores{"total": floats.Sum(v)}, nil
}

// Mean scores the average of all items.
func Mean(responses Responses) (Scores, error) {
	v, err := values(responses)
	if err != nil {
		return nil, err
	}
	return Scores{"mean": floats.Sum(v) / float64(len(v))}, nil
}
