package thinking

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"sort"

	"github.com/charmbracelet/log"

	"github.com/kokistudios/ultrathink/internal/sessionid"
)

// Storage reads and writes the durable record of one named session. Ids are
// validated before they reach it.
type Storage interface {
	Read(ctx context.Context, id string) ([]byte, error)
	Write(ctx context.Context, id string, data []byte) error
}

// Record is the durable shape of a session.
type Record struct {
	Thoughts             []Thought             `json:"thoughts" yaml:"thoughts"`
	Assumptions          map[string]Assumption `json:"assumptions" yaml:"assumptions"`
	Branches             map[string][]int      `json:"branches" yaml:"branches"`
	UnresolvedRefs       []string              `json:"unresolved_refs" yaml:"unresolved_refs"`
	CrossSessionWarnings []string              `json:"cross_session_warnings" yaml:"cross_session_warnings"`
}

// NewRecord captures the full state of s.
func NewRecord(s *Session) Record {
	thoughts := s.Log.Thoughts()
	if thoughts == nil {
		thoughts = []Thought{}
	}
	return Record{
		Thoughts:             thoughts,
		Assumptions:          s.Assumptions.Map(),
		Branches:             s.Log.BranchNumbers(),
		UnresolvedRefs:       s.UnresolvedRefs(),
		CrossSessionWarnings: s.Warnings(),
	}
}

// Encode serializes s as indented JSON.
func Encode(s *Session) ([]byte, error) {
	return json.MarshalIndent(NewRecord(s), "", "  ")
}

// Decode rebuilds a session from an encoded record. Unknown fields, wrong
// shapes, null sections and values that fail validation are all errors.
// The branch index is rebuilt from the thoughts; the "branches" section is
// only shape-checked.
func Decode(data []byte) (*Session, error) {
	var sections map[string]json.RawMessage
	if err := json.Unmarshal(data, &sections); err != nil {
		return nil, err
	}
	if sections == nil {
		return nil, fmt.Errorf("record is null")
	}

	var rec Record
	fields := []struct {
		key string
		dst any
	}{
		{"thoughts", &rec.Thoughts},
		{"assumptions", &rec.Assumptions},
		{"branches", &rec.Branches},
		{"unresolved_refs", &rec.UnresolvedRefs},
		{"cross_session_warnings", &rec.CrossSessionWarnings},
	}
	for _, f := range fields {
		raw, ok := sections[f.key]
		if !ok {
			continue
		}
		if string(bytes.TrimSpace(raw)) == "null" {
			return nil, fmt.Errorf("%s: null section", f.key)
		}
		if err := strictUnmarshal(raw, f.dst); err != nil {
			return nil, fmt.Errorf("%s: %w", f.key, err)
		}
	}
	return rec.session()
}

func strictUnmarshal(data []byte, dst any) error {
	dec := json.NewDecoder(bytes.NewReader(data))
	dec.DisallowUnknownFields()
	return dec.Decode(dst)
}

func (rec Record) session() (*Session, error) {
	s := NewSession()

	order := make([]string, 0, len(rec.Assumptions))
	seen := make(map[string]bool, len(rec.Assumptions))
	for i := range rec.Thoughts {
		t := &rec.Thoughts[i]
		if err := validateRecord.Struct(t); err != nil {
			return nil, fmt.Errorf("thought %d: %w", i, err)
		}
		for _, a := range t.Assumptions {
			if _, ok := rec.Assumptions[a.ID]; ok && !seen[a.ID] {
				seen[a.ID] = true
				order = append(order, a.ID)
			}
		}
	}
	var rest []string
	for id := range rec.Assumptions {
		if !seen[id] {
			rest = append(rest, id)
		}
	}
	sort.Strings(rest)
	order = append(order, rest...)

	for _, id := range order {
		a := rec.Assumptions[id]
		if a.ID != id {
			return nil, fmt.Errorf("assumption %q stored under key %q", a.ID, id)
		}
		if err := validateRecord.Struct(&a); err != nil {
			return nil, fmt.Errorf("assumption %s: %w", id, err)
		}
		c := a.clone()
		s.Assumptions.byID[id] = &c
		s.Assumptions.order = append(s.Assumptions.order, id)
	}

	for _, t := range rec.Thoughts {
		s.Log.append(t)
	}
	s.unresolved = append(s.unresolved, rec.UnresolvedRefs...)
	s.warnings = append(s.warnings, rec.CrossSessionWarnings...)
	return s, nil
}

// Codec persists sessions through a Storage. Loading never fails on a bad
// record: it reports the session as absent so a caller starts afresh.
type Codec struct {
	storage Storage
	logger  *log.Logger
}

// NewCodec returns a Codec over st. A nil logger discards output.
func NewCodec(st Storage, logger *log.Logger) *Codec {
	if logger == nil {
		logger = discardLogger()
	}
	return &Codec{storage: st, logger: logger}
}

// Save writes the full state of s under id, replacing any earlier record.
func (c *Codec) Save(ctx context.Context, id string, s *Session) error {
	if err := sessionid.Validate(id); err != nil {
		return err
	}
	data, err := Encode(s)
	if err != nil {
		return fmt.Errorf("failed to encode session %s: %w", id, err)
	}
	if err := c.storage.Write(ctx, id, data); err != nil {
		return fmt.Errorf("failed to save session %s: %w", id, err)
	}
	return nil
}

// Load reads the session stored under id. found is false when the record is
// missing, unreadable or corrupt; err is only returned for an invalid id.
func (c *Codec) Load(ctx context.Context, id string) (s *Session, found bool, err error) {
	if err := sessionid.Validate(id); err != nil {
		return nil, false, err
	}
	data, err := c.storage.Read(ctx, id)
	if err != nil {
		c.logger.Debug("Session not loaded", "id", id, "err", err)
		return nil, false, nil
	}
	s, err = Decode(data)
	if err != nil {
		c.logger.Debug("Session record unreadable, treating as absent", "id", id, "err", err)
		return nil, false, nil
	}
	return s, true, nil
}

func discardLogger() *log.Logger {
	return log.New(io.Discard)
}
