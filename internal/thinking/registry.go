package thinking

import (
	"fmt"
	"sort"
)

// Registry is the per-session assumption ledger. Ids keep the order in which
// they were first recorded.
type Registry struct {
	byID  map[string]*Assumption
	order []string
}

// NewRegistry returns an empty ledger.
func NewRegistry() *Registry {
	return &Registry{byID: make(map[string]*Assumption)}
}

// Upsert records a new assumption, or updates the mutable fields of a known
// one after checking that its text and critical flag are unchanged.
func (r *Registry) Upsert(a Assumption) error {
	existing, ok := r.byID[a.ID]
	if !ok {
		c := a.clone()
		r.byID[a.ID] = &c
		r.order = append(r.order, a.ID)
		return nil
	}
	if err := checkImmutable(existing, &a); err != nil {
		return err
	}
	c := a.clone()
	existing.Confidence = c.Confidence
	existing.Verifiable = c.Verifiable
	existing.Evidence = c.Evidence
	existing.VerificationStatus = c.VerificationStatus
	return nil
}

func checkImmutable(existing, next *Assumption) error {
	if existing.Text != next.Text {
		return fmt.Errorf("%w: cannot update assumption %s: text mismatch. Existing: %q, New: %q. Core assumption fields (text, critical) are immutable",
			ErrImmutableField, next.ID, existing.Text, next.Text)
	}
	if existing.Critical != next.Critical {
		return fmt.Errorf("%w: cannot update assumption %s: critical flag mismatch. Existing: %t, New: %t. Core assumption fields (text, critical) are immutable",
			ErrImmutableField, next.ID, existing.Critical, next.Critical)
	}
	return nil
}

// Invalidate marks a known assumption as verified false, whatever its
// current status.
func (r *Registry) Invalidate(id string) error {
	a, ok := r.byID[id]
	if !ok {
		return r.unknown("invalidate", id)
	}
	s := StatusVerifiedFalse
	a.VerificationStatus = &s
	return nil
}

func (r *Registry) unknown(op, id string) error {
	avail := "none"
	if ids := r.SortedIDs(); len(ids) > 0 {
		avail = fmt.Sprint(ids)
	}
	return fmt.Errorf("%w: cannot %s assumption %s: assumption not found. Available: %s", ErrUnknownAssumption, op, id, avail)
}

// Has reports whether id is recorded.
func (r *Registry) Has(id string) bool {
	_, ok := r.byID[id]
	return ok
}

// Get returns a copy of the assumption recorded under id.
func (r *Registry) Get(id string) (Assumption, bool) {
	a, ok := r.byID[id]
	if !ok {
		return Assumption{}, false
	}
	return a.clone(), true
}

// All returns copies of every assumption in recording order.
func (r *Registry) All() []Assumption {
	out := make([]Assumption, 0, len(r.order))
	for _, id := range r.order {
		out = append(out, r.byID[id].clone())
	}
	return out
}

// Map returns copies of every assumption keyed by id.
func (r *Registry) Map() map[string]Assumption {
	out := make(map[string]Assumption, len(r.byID))
	for id, a := range r.byID {
		out[id] = a.clone()
	}
	return out
}

// Len returns the number of recorded assumptions.
func (r *Registry) Len() int { return len(r.order) }

// SortedIDs returns every recorded id in lexical order.
func (r *Registry) SortedIDs() []string {
	ids := append([]string(nil), r.order...)
	sort.Strings(ids)
	return ids
}

// RiskyIDs returns the ids of risky assumptions in recording order.
func (r *Registry) RiskyIDs() []string {
	return r.filter((*Assumption).IsRisky)
}

// FalsifiedIDs returns the ids of falsified assumptions in recording order.
func (r *Registry) FalsifiedIDs() []string {
	return r.filter((*Assumption).IsFalsified)
}

func (r *Registry) filter(keep func(*Assumption) bool) []string {
	ids := []string{}
	for _, id := range r.order {
		if keep(r.byID[id]) {
			ids = append(ids, id)
		}
	}
	return ids
}
