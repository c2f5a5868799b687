package thinking

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// memStorage is an in-memory Storage for tests.
type memStorage struct {
	records map[string][]byte
	writes  int
}

var errMissing = errors.New("missing")

func newMemStorage() *memStorage {
	return &memStorage{records: make(map[string][]byte)}
}

func (m *memStorage) Read(_ context.Context, id string) ([]byte, error) {
	data, ok := m.records[id]
	if !ok {
		return nil, errMissing
	}
	return data, nil
}

func (m *memStorage) Write(_ context.Context, id string, data []byte) error {
	m.records[id] = append([]byte(nil), data...)
	m.writes++
	return nil
}

func sampleSession(t *testing.T) *Session {
	t.Helper()
	s := NewSession()
	first := step(1, 4)
	first.Confidence = ptr(0.6)
	first.Assumptions = []Assumption{
		{ID: "A2", Text: "cache is warm", Confidence: 0.4, Critical: true},
		{ID: "A1", Text: "inputs are sorted", Confidence: 0.9, Critical: false, Evidence: ptr("spec says so")},
	}
	mustAdd(t, s, first)

	second := step(2, 4)
	second.DependsOnAssumptions = []string{"A1", "gone:A1"}
	second.InvalidatesAssumptions = []string{"A1", "other:A4"}
	mustAdd(t, s, second)

	third := step(3, 4)
	third.BranchFromThought = ptr(1)
	third.BranchID = ptr("alt")
	third.UncertaintyNotes = ptr("not sure")
	mustAdd(t, s, third)
	return s
}

func TestCodec_RoundTrip(t *testing.T) {
	ctx := context.Background()
	st := newMemStorage()
	c := NewCodec(st, nil)
	orig := sampleSession(t)

	require.NoError(t, c.Save(ctx, "sess-1", orig))
	loaded, found, err := c.Load(ctx, "sess-1")
	require.NoError(t, err)
	require.True(t, found)

	assert.Equal(t, orig.Log.Count(), loaded.Log.Count())
	assert.Equal(t, orig.Log.Thoughts(), loaded.Log.Thoughts())
	assert.Equal(t, orig.Assumptions.Map(), loaded.Assumptions.Map())
	assert.Equal(t, orig.Assumptions.All(), loaded.Assumptions.All(), "recording order follows first appearance in thoughts")
	assert.Equal(t, orig.Log.BranchIDs(), loaded.Log.BranchIDs())
	assert.Equal(t, orig.Log.BranchNumbers(), loaded.Log.BranchNumbers())
	assert.Equal(t, orig.UnresolvedRefs(), loaded.UnresolvedRefs())
	assert.Equal(t, orig.Warnings(), loaded.Warnings())
	assert.Equal(t, orig.Assumptions.RiskyIDs(), loaded.Assumptions.RiskyIDs())
	assert.Equal(t, orig.Assumptions.FalsifiedIDs(), loaded.Assumptions.FalsifiedIDs())
}

func TestEncode_RecordShape(t *testing.T) {
	data, err := Encode(sampleSession(t))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	assert.ElementsMatch(t, []string{"thoughts", "assumptions", "branches", "unresolved_refs", "cross_session_warnings"}, keys(doc))
	assert.Equal(t, map[string]any{"alt": []any{float64(3)}}, doc["branches"])
	assert.Equal(t, []any{"gone:A1"}, doc["unresolved_refs"])

	thought := doc["thoughts"].([]any)[0].(map[string]any)
	assert.Contains(t, thought, "is_revision")
	assert.Nil(t, thought["is_revision"])
	assert.Equal(t, 0.6, thought["confidence"])
}

func TestEncode_EmptySessionUsesEmptyLists(t *testing.T) {
	data, err := Encode(NewSession())
	require.NoError(t, err)
	assert.JSONEq(t, `{"thoughts":[],"assumptions":{},"branches":{},"unresolved_refs":[],"cross_session_warnings":[]}`, string(data))
}

func keys(m map[string]any) []string {
	out := make([]string, 0, len(m))
	for k := range m {
		out = append(out, k)
	}
	return out
}

func TestDecode_BranchIndexRebuiltFromThoughts(t *testing.T) {
	data, err := Encode(sampleSession(t))
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	doc["branches"] = map[string]any{"phantom": []any{1, 2}}
	tampered, err := json.Marshal(doc)
	require.NoError(t, err)

	s, err := Decode(tampered)
	require.NoError(t, err)
	assert.Equal(t, []string{"alt"}, s.Log.BranchIDs())
}

func TestDecode_MissingSectionsAreEmpty(t *testing.T) {
	s, err := Decode([]byte(`{"thoughts":[{"thought":"t","thought_number":1,"total_thoughts":1,"next_thought_needed":false}],"extra":true}`))
	require.NoError(t, err)
	assert.Equal(t, 1, s.Log.Count())
	assert.Equal(t, 0, s.Assumptions.Len())
	assert.Empty(t, s.UnresolvedRefs())
}

func TestCodec_LoadCorruptionIsAbsence(t *testing.T) {
	cases := map[string]string{
		"not json":             `{"thoughts": [`,
		"garbage":              "\x00\x01binary",
		"top-level list":       `[]`,
		"null":                 `null`,
		"thoughts not a list":  `{"thoughts": {"a": 1}}`,
		"thoughts as string":   `{"thoughts": "oops"}`,
		"unknown thought key":  `{"thoughts":[{"thought":"t","thought_number":1,"total_thoughts":1,"next_thought_needed":true,"mood":"ok"}]}`,
		"bad thought number":   `{"thoughts":[{"thought":"t","thought_number":0,"total_thoughts":1,"next_thought_needed":true}]}`,
		"wrong thought type":   `{"thoughts":[{"thought":"t","thought_number":"one","total_thoughts":1,"next_thought_needed":true}]}`,
		"blank thought":        `{"thoughts":[{"thought":"  ","thought_number":1,"total_thoughts":1,"next_thought_needed":true}]}`,
		"assumptions a list":   `{"assumptions": []}`,
		"unknown assumption":   `{"assumptions":{"A1":{"id":"A1","text":"x","colour":"red"}}}`,
		"bad status":           `{"assumptions":{"A1":{"id":"A1","text":"x","verification_status":"maybe"}}}`,
		"confidence too high":  `{"assumptions":{"A1":{"id":"A1","text":"x","confidence":1.5}}}`,
		"key mismatch":         `{"assumptions":{"A1":{"id":"A2","text":"x"}}}`,
		"branches wrong shape": `{"branches": ["alt"]}`,
		"refs not strings":     `{"unresolved_refs": [1, 2]}`,
		"warnings an object":   `{"cross_session_warnings": {}}`,
		"thoughts null":        `{"thoughts": null}`,
		"assumptions null":     `{"assumptions": null, "thoughts": []}`,
		"branches null":        `{"thoughts": [], "branches": null}`,
		"refs null":            `{"thoughts": [], "unresolved_refs": null}`,
		"malformed scoped id":  `{"assumptions":{"a b:A1":{"id":"a b:A1","text":"x"}}}`,
	}
	ctx := context.Background()
	for name, raw := range cases {
		t.Run(name, func(t *testing.T) {
			st := newMemStorage()
			st.records["broken"] = []byte(raw)
			s, found, err := NewCodec(st, nil).Load(ctx, "broken")
			require.NoError(t, err)
			assert.False(t, found)
			assert.Nil(t, s)
		})
	}
}

func TestDecode_ScopedDeclarationsInStoredRecords(t *testing.T) {
	raw := `{
		"thoughts": [{"thought": "t", "thought_number": 1, "total_thoughts": 1, "next_thought_needed": false,
			"assumptions": [{"id": "prior-run:A2", "text": "carried over", "confidence": 0.4}]}],
		"assumptions": {"prior-run:A2": {"id": "prior-run:A2", "text": "carried over", "confidence": 0.4,
			"critical": true, "verifiable": false, "evidence": null, "verification_status": null}}
	}`
	s, err := Decode([]byte(raw))
	require.NoError(t, err)
	assert.True(t, s.Assumptions.Has("prior-run:A2"))
	assert.Equal(t, []string{"prior-run:A2"}, s.Assumptions.RiskyIDs())

	req := Request{Thought: "t", TotalThoughts: 1, Assumptions: []Assumption{{ID: "prior-run:A2", Text: "x", Confidence: 1, Critical: true}}}
	require.ErrorIs(t, req.Validate(), ErrInvalidRequest, "new thoughts still declare local ids only")
}

func TestCodec_LoadMissing(t *testing.T) {
	s, found, err := NewCodec(newMemStorage(), nil).Load(context.Background(), "nope")
	require.NoError(t, err)
	assert.False(t, found)
	assert.Nil(t, s)
}

func TestCodec_InvalidIdentifierOnBothPaths(t *testing.T) {
	ctx := context.Background()
	st := newMemStorage()
	c := NewCodec(st, nil)

	for _, id := range []string{"", "../escape", "a/b", "with space"} {
		err := c.Save(ctx, id, NewSession())
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "save %q", id)

		_, found, err := c.Load(ctx, id)
		assert.ErrorIs(t, err, ErrInvalidIdentifier, "load %q", id)
		assert.False(t, found)
	}
	assert.Zero(t, st.writes, "storage must never see an invalid id")
}
