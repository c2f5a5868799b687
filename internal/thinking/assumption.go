package thinking

import (
	"bytes"
	"encoding/json"
	"strings"
)

// VerificationStatus records whether an assumption has been checked.
type VerificationStatus string

const (
	StatusUnverified    VerificationStatus = "unverified"
	StatusVerifiedTrue  VerificationStatus = "verified_true"
	StatusVerifiedFalse VerificationStatus = "verified_false"
)

// RiskyConfidence is the confidence below which a critical, not yet
// confirmed assumption counts as risky.
const RiskyConfidence = 0.7

// Assumption is a claim the reasoning relies on. Text and Critical are fixed
// the first time an id is recorded; the remaining fields may change on later
// mentions.
type Assumption struct {
	ID                 string              `json:"id" yaml:"id" validate:"required,assumption_id"`
	Text               string              `json:"text" yaml:"text" validate:"required,notblank"`
	Confidence         float64             `json:"confidence" yaml:"confidence" validate:"gte=0,lte=1"`
	Critical           bool                `json:"critical" yaml:"critical"`
	Verifiable         bool                `json:"verifiable" yaml:"verifiable"`
	Evidence           *string             `json:"evidence" yaml:"evidence,omitempty"`
	VerificationStatus *VerificationStatus `json:"verification_status" yaml:"verification_status,omitempty" validate:"omitempty,oneof=unverified verified_true verified_false"`
}

// UnmarshalJSON applies the defaults for omitted fields (confidence 1.0,
// critical true) and rejects unknown keys.
func (a *Assumption) UnmarshalJSON(data []byte) error {
	type plain Assumption
	p := plain{Confidence: 1.0, Critical: true}
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	if err := dec.Decode(&p); err != nil {
		return err
	}
	*a = Assumption(p)
	return nil
}

func (a *Assumption) status() VerificationStatus {
	if a.VerificationStatus == nil {
		return ""
	}
	return *a.VerificationStatus
}

// IsVerified reports whether the assumption was checked, either way.
func (a *Assumption) IsVerified() bool {
	s := a.status()
	return s == StatusVerifiedTrue || s == StatusVerifiedFalse
}

// IsFalsified reports whether the assumption was proven false.
func (a *Assumption) IsFalsified() bool {
	return a.status() == StatusVerifiedFalse
}

// IsRisky reports a critical assumption held with low confidence that has
// not been confirmed.
func (a *Assumption) IsRisky() bool {
	return a.Critical && a.Confidence < RiskyConfidence && a.status() != StatusVerifiedTrue
}

func (a Assumption) clone() Assumption {
	c := a
	if a.Evidence != nil {
		e := *a.Evidence
		c.Evidence = &e
	}
	if a.VerificationStatus != nil {
		s := *a.VerificationStatus
		c.VerificationStatus = &s
	}
	return c
}

// ParseScopedID splits an assumption reference on its first colon. A scoped
// reference "other-session:A3" yields ("other-session", "A3", true); a local
// id yields ("", id, false).
func ParseScopedID(id string) (sessionID, localID string, scoped bool) {
	before, after, found := strings.Cut(id, ":")
	if !found {
		return "", id, false
	}
	return before, after, true
}
