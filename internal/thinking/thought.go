package thinking

import (
	"fmt"
	"sort"
)

// Thought is one recorded reasoning step. Once appended to a session it is
// never changed.
type Thought struct {
	Thought                string       `json:"thought" yaml:"thought" validate:"required,notblank"`
	ThoughtNumber          int          `json:"thought_number" yaml:"thought_number" validate:"gte=1"`
	TotalThoughts          int          `json:"total_thoughts" yaml:"total_thoughts" validate:"gte=1"`
	NextThoughtNeeded      bool         `json:"next_thought_needed" yaml:"next_thought_needed"`
	IsRevision             *bool        `json:"is_revision" yaml:"is_revision,omitempty"`
	RevisesThought         *int         `json:"revises_thought" yaml:"revises_thought,omitempty" validate:"omitempty,gte=1"`
	BranchFromThought      *int         `json:"branch_from_thought" yaml:"branch_from_thought,omitempty" validate:"omitempty,gte=1"`
	BranchID               *string      `json:"branch_id" yaml:"branch_id,omitempty"`
	NeedsMoreThoughts      *bool        `json:"needs_more_thoughts" yaml:"needs_more_thoughts,omitempty"`
	Confidence             *float64     `json:"confidence" yaml:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	UncertaintyNotes       *string      `json:"uncertainty_notes" yaml:"uncertainty_notes,omitempty"`
	Outcome                *string      `json:"outcome" yaml:"outcome,omitempty"`
	Assumptions            []Assumption `json:"assumptions" yaml:"assumptions,omitempty" validate:"dive"`
	DependsOnAssumptions   []string     `json:"depends_on_assumptions" yaml:"depends_on_assumptions,omitempty" validate:"dive,required"`
	InvalidatesAssumptions []string     `json:"invalidates_assumptions" yaml:"invalidates_assumptions,omitempty" validate:"dive,required"`
}

// IsBranch reports whether both branch fields are set.
func (t *Thought) IsBranch() bool {
	return t.BranchFromThought != nil && t.BranchID != nil && *t.BranchID != ""
}

// IsFinal reports whether no further thought is expected.
func (t *Thought) IsFinal() bool {
	return !t.NextThoughtNeeded
}

// adjustTotal raises TotalThoughts to at least ThoughtNumber and floor.
func (t *Thought) adjustTotal(floor int) {
	t.TotalThoughts = max(t.TotalThoughts, t.ThoughtNumber, floor)
}

// checkReferences verifies that revision and branch targets are among the
// thought numbers already logged.
func (t *Thought) checkReferences(existing map[int]struct{}) error {
	if t.RevisesThought != nil {
		if err := missingThought("revise", *t.RevisesThought, existing); err != nil {
			return err
		}
	}
	if t.BranchFromThought != nil {
		if err := missingThought("branch from", *t.BranchFromThought, existing); err != nil {
			return err
		}
	}
	return nil
}

func missingThought(op string, n int, existing map[int]struct{}) error {
	if _, ok := existing[n]; ok {
		return nil
	}
	if len(existing) == 0 {
		return fmt.Errorf("%w: cannot %s thought %d: no thoughts exist in this session yet. To continue an existing session, pass the session_id parameter",
			ErrDanglingReference, op, n)
	}
	available := make([]int, 0, len(existing))
	for num := range existing {
		available = append(available, num)
	}
	sort.Ints(available)
	return fmt.Errorf("%w: cannot %s thought %d: thought not found in this session. Available thoughts: %v",
		ErrDanglingReference, op, n, available)
}
