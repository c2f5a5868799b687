package thinking

import (
	"fmt"
	"slices"
)

// Session is the unit of persistence: a thought log, its assumption ledger,
// the scoped references that could not be resolved and the warnings raised
// by cross-session operations.
type Session struct {
	Log         *ThoughtLog
	Assumptions *Registry

	unresolved []string
	warnings   []string
}

// NewSession returns an empty session.
func NewSession() *Session {
	return &Session{
		Log:         NewThoughtLog(),
		Assumptions: NewRegistry(),
	}
}

// UnresolvedRefs returns the scoped assumption references that failed to
// resolve, each listed once.
func (s *Session) UnresolvedRefs() []string {
	return append([]string{}, s.unresolved...)
}

// Warnings returns the cross-session warnings in the order they were raised.
func (s *Session) Warnings() []string {
	return append([]string{}, s.warnings...)
}

// AddThought validates t against the session and appends it. resolved holds
// the scoped ids in t.DependsOnAssumptions that the caller already resolved
// in their own sessions.
//
// Every reference is checked before anything is mutated: when AddThought
// returns an error the session is exactly as it was. On success the stored
// copy of t is returned, with TotalThoughts raised to at least its own
// number and the previous thought's total, so the estimate never shrinks.
func (s *Session) AddThought(t Thought, resolved map[string]bool) (Thought, error) {
	t = cloneThought(t)
	floor := 0
	if last, ok := s.Log.Last(); ok {
		floor = last.TotalThoughts
	}
	t.adjustTotal(floor)

	if err := t.checkReferences(s.Log.ThoughtNumbers()); err != nil {
		return Thought{}, err
	}

	var unresolved []string
	for _, id := range t.DependsOnAssumptions {
		if _, _, scoped := ParseScopedID(id); !scoped {
			if !s.Assumptions.Has(id) {
				return Thought{}, s.Assumptions.unknown("depend on", id)
			}
			continue
		}
		if resolved[id] || slices.Contains(s.unresolved, id) || slices.Contains(unresolved, id) {
			continue
		}
		unresolved = append(unresolved, id)
	}

	staged := make(map[string]*Assumption, len(t.Assumptions))
	for i := range t.Assumptions {
		a := &t.Assumptions[i]
		prev, ok := staged[a.ID]
		if !ok {
			if known, found := s.Assumptions.Get(a.ID); found {
				prev, ok = &known, true
			}
		}
		if ok {
			if err := checkImmutable(prev, a); err != nil {
				return Thought{}, err
			}
		}
		staged[a.ID] = a
	}

	var warnings []string
	for _, id := range t.InvalidatesAssumptions {
		if _, _, scoped := ParseScopedID(id); scoped {
			warnings = append(warnings, fmt.Sprintf("Cannot invalidate cross-session assumption %s: cross-session invalidation not supported", id))
			continue
		}
		if _, ok := staged[id]; !ok && !s.Assumptions.Has(id) {
			return Thought{}, s.Assumptions.unknown("invalidate", id)
		}
	}

	// Nothing below can fail: every upsert and invalidation was checked above.
	for _, a := range t.Assumptions {
		_ = s.Assumptions.Upsert(a)
	}
	for _, id := range t.InvalidatesAssumptions {
		if _, _, scoped := ParseScopedID(id); !scoped {
			_ = s.Assumptions.Invalidate(id)
		}
	}
	s.unresolved = append(s.unresolved, unresolved...)
	s.warnings = append(s.warnings, warnings...)
	s.Log.append(t)
	return cloneThought(t), nil
}

func cloneThought(t Thought) Thought {
	if t.Assumptions != nil {
		as := make([]Assumption, len(t.Assumptions))
		for i, a := range t.Assumptions {
			as[i] = a.clone()
		}
		t.Assumptions = as
	}
	if t.DependsOnAssumptions != nil {
		t.DependsOnAssumptions = append([]string{}, t.DependsOnAssumptions...)
	}
	if t.InvalidatesAssumptions != nil {
		t.InvalidatesAssumptions = append([]string{}, t.InvalidatesAssumptions...)
	}
	return t
}
