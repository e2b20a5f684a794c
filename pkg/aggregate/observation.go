// Package aggregate merges page captures into identity-keyed observations.
package aggregate

import (
	"github.com/Sriram-PR/cookie-scanner/pkg/models"
)

// Observation is everything known about one identity across a scan. Data is
// the first-seen payload and is never overwritten.
type Observation[T any] struct {
	Key   string
	Data  T
	pages []string
	seen  map[string]bool
	phase map[models.ConsentPhase]bool
}

func newObservation[T any](key string, data T) *Observation[T] {
	return &Observation[T]{Key: key, Data: data, seen: map[string]bool{}, phase: map[models.ConsentPhase]bool{}}
}

func (o *Observation[T]) add(phase models.ConsentPhase, pageURL string) {
	o.phase[phase] = true
	if !o.seen[pageURL] {
		o.seen[pageURL] = true
		o.pages = append(o.pages, pageURL)
	}
}

// HasPhase reports whether the identity was seen in phase.
func (o *Observation[T]) HasPhase(phase models.ConsentPhase) bool { return o.phase[phase] }

// States returns the phases the identity was seen in, in protocol order.
func (o *Observation[T]) States() []models.ConsentPhase {
	out := make([]models.ConsentPhase, 0, len(o.phase))
	for _, p := range models.AllPhases {
		if o.phase[p] {
			out = append(out, p)
		}
	}
	return out
}

// Pages returns the pages the identity was seen on, in first-seen order.
func (o *Observation[T]) Pages() []string {
	return append([]string(nil), o.pages...)
}

// ObservationMap is an insertion-ordered map of observations.
type ObservationMap[T any] struct {
	byKey map[string]*Observation[T]
	order []string
}

// NewObservationMap creates an empty map.
func NewObservationMap[T any]() *ObservationMap[T] {
	return &ObservationMap[T]{byKey: make(map[string]*Observation[T])}
}

// Add records data under key for a phase and page. Repeating an Add is a no-op.
func (m *ObservationMap[T]) Add(key string, data T, phase models.ConsentPhase, pageURL string) {
	obs, ok := m.byKey[key]
	if !ok {
		obs = newObservation(key, data)
		m.byKey[key] = obs
		m.order = append(m.order, key)
	}
	obs.add(phase, pageURL)
}

// Get returns the observation for key.
func (m *ObservationMap[T]) Get(key string) (*Observation[T], bool) {
	obs, ok := m.byKey[key]
	return obs, ok
}

// Len returns the number of identities.
func (m *ObservationMap[T]) Len() int { return len(m.order) }

// All returns the observations in first-seen order.
func (m *ObservationMap[T]) All() []*Observation[T] {
	out := make([]*Observation[T], 0, len(m.order))
	for _, k := range m.order {
		out = append(out, m.byKey[k])
	}
	return out
}
