// Package legs loads strategy leg definitions from parameter files and
// exposes them, hop budgets included, through a read-only registry.
package legs

import (
	"sort"
	"strings"
	"sync"

	"options-backtester/internal/errors"
	"options-backtester/internal/models"
)

// HopKind names a budgeted leg transition.
type HopKind string

const (
	HopOnSL      HopKind = "sl"
	HopOnTarget  HopKind = "tgt"
	HopOnNextLeg HopKind = "next"
)

// Registry holds every leg of a strategy in a single map keyed by unique
// leg ID. Lazy legs carry IsLazy and only trade when hopped to. The
// registry is never mutated after loading, so reruns over the same legs
// see identical configuration. Reads are safe for concurrent use.
type Registry struct {
	mu   sync.RWMutex
	legs map[string]*models.LegConfig
}

// NewRegistry builds a registry from parsed legs.
func NewRegistry(legs []*models.LegConfig) *Registry {
	m := make(map[string]*models.LegConfig, len(legs))
	for _, l := range legs {
		m[l.UniqueID] = l
	}
	return &Registry{legs: m}
}

// Get returns the leg with the given unique ID.
func (r *Registry) Get(uniqueID string) (*models.LegConfig, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.legs[uniqueID]
	if !ok {
		return nil, errors.ErrLegNotFound
	}
	return l, nil
}

// Main returns the non-lazy legs sorted by leg ID. These are the legs
// the driver enters at the configured entry time.
func (r *Registry) Main() []*models.LegConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	var out []*models.LegConfig
	for _, l := range r.legs {
		if !l.IsLazy {
			out = append(out, l)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].LegID < out[j].LegID })
	return out
}

// All returns every leg, main and lazy.
func (r *Registry) All() []*models.LegConfig {
	r.mu.RLock()
	defer r.mu.RUnlock()
	out := make([]*models.LegConfig, 0, len(r.legs))
	for _, l := range r.legs {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].UniqueID < out[j].UniqueID })
	return out
}

// NextOrder resolves a hop target by unique ID and returns a copy bound
// to the slot of the leg it replaces. Hop IDs written as "2.1" address
// the lazy leg file "2_1".
func (r *Registry) NextOrder(nextID, slotLegID string) (*models.LegConfig, error) {
	key := strings.ReplaceAll(strings.TrimSpace(nextID), ".", "_")
	r.mu.RLock()
	src, ok := r.legs[key]
	r.mu.RUnlock()
	if !ok {
		return nil, errors.NewLegError(key, "", errors.ErrLegNotFound)
	}
	next := *src
	next.LegID = slotLegID
	return &next, nil
}

// HopBudget returns the configured hop budget of the given kind. The
// scheduler tracks consumption per day on its own side.
func (r *Registry) HopBudget(uniqueID string, kind HopKind) int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	l, ok := r.legs[uniqueID]
	if !ok {
		return 0
	}
	switch kind {
	case HopOnSL:
		return l.HopBudgetSL
	case HopOnTarget:
		return l.HopBudgetTgt
	default:
		return l.HopBudgetLzy
	}
}

// ExpiryClasses returns the distinct expiry classes used by any leg.
// The data layer preloads one partition per class.
func (r *Registry) ExpiryClasses() []models.ExpiryClass {
	r.mu.RLock()
	defer r.mu.RUnlock()
	seen := make(map[models.ExpiryClass]bool)
	var out []models.ExpiryClass
	for _, l := range r.legs {
		if !seen[l.Expiry] {
			seen[l.Expiry] = true
			out = append(out, l.Expiry)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i] < out[j] })
	return out
}
