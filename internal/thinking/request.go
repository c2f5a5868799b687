package thinking

import "fmt"

// Request is one already-normalized thinking step as handed over by a
// front-end. Optional fields are nil when the caller did not set them.
type Request struct {
	Thought                string       `json:"thought" validate:"required,notblank"`
	TotalThoughts          int          `json:"total_thoughts" validate:"gte=1"`
	NextThoughtNeeded      *bool        `json:"next_thought_needed,omitempty"`
	ThoughtNumber          *int         `json:"thought_number,omitempty" validate:"omitempty,gte=1"`
	SessionID              string       `json:"session_id,omitempty"`
	IsRevision             *bool        `json:"is_revision,omitempty"`
	RevisesThought         *int         `json:"revises_thought,omitempty" validate:"omitempty,gte=1"`
	BranchFromThought      *int         `json:"branch_from_thought,omitempty" validate:"omitempty,gte=1"`
	BranchID               *string      `json:"branch_id,omitempty"`
	NeedsMoreThoughts      *bool        `json:"needs_more_thoughts,omitempty"`
	Confidence             *float64     `json:"confidence,omitempty" validate:"omitempty,gte=0,lte=1"`
	UncertaintyNotes       *string      `json:"uncertainty_notes,omitempty"`
	Outcome                *string      `json:"outcome,omitempty"`
	Assumptions            []Assumption `json:"assumptions,omitempty" validate:"dive"`
	DependsOnAssumptions   []string     `json:"depends_on_assumptions,omitempty" validate:"dive,required"`
	InvalidatesAssumptions []string     `json:"invalidates_assumptions,omitempty" validate:"dive,required"`
}

// Validate checks field-level rules. Relational rules (does a thought or
// assumption exist) are enforced when the thought is added to its session.
func (r *Request) Validate() error {
	if err := validate.Struct(r); err != nil {
		return fmt.Errorf("%w: %w", ErrInvalidRequest, err)
	}
	return nil
}

// Response is the snapshot returned after a thought is processed.
type Response struct {
	SessionID            string                `json:"session_id"`
	ThoughtNumber        int                   `json:"thought_number"`
	TotalThoughts        int                   `json:"total_thoughts"`
	NextThoughtNeeded    bool                  `json:"next_thought_needed"`
	Branches             []string              `json:"branches"`
	ThoughtHistoryLength int                   `json:"thought_history_length"`
	Confidence           *float64              `json:"confidence"`
	UncertaintyNotes     *string               `json:"uncertainty_notes"`
	Outcome              *string               `json:"outcome"`
	AllAssumptions       map[string]Assumption `json:"all_assumptions"`
	RiskyAssumptions     []string              `json:"risky_assumptions"`
	FalsifiedAssumptions []string              `json:"falsified_assumptions"`
	UnresolvedReferences []string              `json:"unresolved_references"`
	CrossSessionWarnings []string              `json:"cross_session_warnings"`
}

// NewResponse builds the snapshot of s after t was recorded.
func NewResponse(id string, s *Session, t Thought) *Response {
	return &Response{
		SessionID:            id,
		ThoughtNumber:        t.ThoughtNumber,
		TotalThoughts:        t.TotalThoughts,
		NextThoughtNeeded:    t.NextThoughtNeeded,
		Branches:             s.Log.BranchIDs(),
		ThoughtHistoryLength: s.Log.Count(),
		Confidence:           t.Confidence,
		UncertaintyNotes:     t.UncertaintyNotes,
		Outcome:              t.Outcome,
		AllAssumptions:       s.Assumptions.Map(),
		RiskyAssumptions:     s.Assumptions.RiskyIDs(),
		FalsifiedAssumptions: s.Assumptions.FalsifiedIDs(),
		UnresolvedReferences: s.UnresolvedRefs(),
		CrossSessionWarnings: s.Warnings(),
	}
}
