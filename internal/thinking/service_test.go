package thinking

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/kokistudios/ultrathink/internal/sessionid"
	"github.com/kokistudios/ultrathink/internal/storage"
)

func TestService_NewSession(t *testing.T) {
	st := newMemStorage()
	svc := NewService(st)

	resp, err := svc.ProcessThought(context.Background(), Request{Thought: "T1", TotalThoughts: 3, NextThoughtNeeded: ptr(true)})
	require.NoError(t, err)

	assert.Len(t, resp.SessionID, 36)
	require.NoError(t, sessionid.Validate(resp.SessionID))
	assert.Equal(t, 1, resp.ThoughtNumber)
	assert.Equal(t, 3, resp.TotalThoughts)
	assert.True(t, resp.NextThoughtNeeded)
	assert.Equal(t, []string{}, resp.Branches)
	assert.Equal(t, 1, resp.ThoughtHistoryLength)
	assert.Contains(t, st.records, resp.SessionID)
}

func TestService_AutoNumberingAndNextFlag(t *testing.T) {
	ctx := context.Background()
	svc := NewService(newMemStorage())

	r1, err := svc.ProcessThought(ctx, Request{Thought: "a", TotalThoughts: 2})
	require.NoError(t, err)
	assert.Equal(t, 1, r1.ThoughtNumber)
	assert.True(t, r1.NextThoughtNeeded)

	r2, err := svc.ProcessThought(ctx, Request{Thought: "b", TotalThoughts: 2, SessionID: r1.SessionID})
	require.NoError(t, err)
	assert.Equal(t, 2, r2.ThoughtNumber)
	assert.False(t, r2.NextThoughtNeeded)

	r3, err := svc.ProcessThought(ctx, Request{Thought: "c", TotalThoughts: 2, SessionID: r1.SessionID, NextThoughtNeeded: ptr(true)})
	require.NoError(t, err)
	assert.Equal(t, 3, r3.ThoughtNumber)
	assert.Equal(t, 3, r3.TotalThoughts)
	assert.True(t, r3.NextThoughtNeeded)
}

func TestService_ResumesAcrossInstances(t *testing.T) {
	ctx := context.Background()
	st := newMemStorage()

	first, err := NewService(st).ProcessThought(ctx, Request{
		Thought: "declare", TotalThoughts: 3, SessionID: "resume-me",
		Assumptions: []Assumption{{ID: "A1", Text: "x", Confidence: 0.5, Critical: true}},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"A1"}, first.RiskyAssumptions)

	// A new process: fresh service, same storage.
	second, err := NewService(st).ProcessThought(ctx, Request{
		Thought: "depend", TotalThoughts: 3, SessionID: "resume-me",
		DependsOnAssumptions: []string{"A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, 2, second.ThoughtNumber)
	assert.Equal(t, 2, second.ThoughtHistoryLength)
	assert.Empty(t, second.UnresolvedReferences)
}

func TestService_CrossSessionResolution(t *testing.T) {
	ctx := context.Background()
	st := newMemStorage()
	svc := NewService(st)

	_, err := svc.ProcessThought(ctx, Request{
		Thought: "source", TotalThoughts: 1, SessionID: "source",
		Assumptions: []Assumption{{ID: "A1", Text: "shared", Confidence: 0.9, Critical: true}},
	})
	require.NoError(t, err)

	resp, err := NewService(st).ProcessThought(ctx, Request{
		Thought: "consumer", TotalThoughts: 2, SessionID: "consumer",
		DependsOnAssumptions: []string{"source:A1", "source:A9", "other:A1", "bad id!:A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"source:A9", "other:A1", "bad id!:A1"}, resp.UnresolvedReferences)

	src, found, err := NewCodec(st, nil).Load(ctx, "source")
	require.NoError(t, err)
	require.True(t, found)
	assert.Equal(t, 1, src.Log.Count(), "resolution never writes the target session")
}

func TestService_UnresolvedReferenceNoError(t *testing.T) {
	resp, err := NewService(newMemStorage()).ProcessThought(context.Background(), Request{
		Thought: "T1", TotalThoughts: 1, DependsOnAssumptions: []string{"other:A1"},
	})
	require.NoError(t, err)
	assert.Equal(t, []string{"other:A1"}, resp.UnresolvedReferences)
}

func TestService_FailureSavesNothing(t *testing.T) {
	ctx := context.Background()
	st := newMemStorage()
	svc := NewService(st)

	_, err := svc.ProcessThought(ctx, Request{Thought: "T1", TotalThoughts: 3, SessionID: "s1", BranchFromThought: ptr(1), BranchID: ptr("alt")})
	require.ErrorIs(t, err, ErrDanglingReference)
	assert.Zero(t, st.writes)
	_, err = svc.Snapshot(ctx, "s1")
	require.EqualError(t, err, "session not found: s1")

	_, err = svc.ProcessThought(ctx, Request{Thought: "T1", TotalThoughts: 3, SessionID: "s1"})
	require.NoError(t, err)
	require.Equal(t, 1, st.writes)
	before := string(st.records["s1"])

	_, err = svc.ProcessThought(ctx, Request{Thought: "T2", TotalThoughts: 3, SessionID: "s1", InvalidatesAssumptions: []string{"A1"}})
	require.ErrorIs(t, err, ErrUnknownAssumption)
	assert.Equal(t, 1, st.writes)
	assert.Equal(t, before, string(st.records["s1"]))
}

func TestService_InvalidIdentifier(t *testing.T) {
	st := newMemStorage()
	_, err := NewService(st).ProcessThought(context.Background(), Request{Thought: "T1", TotalThoughts: 1, SessionID: "../../etc"})
	require.ErrorIs(t, err, ErrInvalidIdentifier)
	assert.Equal(t, "invalid_identifier", ErrorCode(err))
	assert.Zero(t, st.writes)
}

func TestService_ValidationErrors(t *testing.T) {
	svc := NewService(newMemStorage())
	cases := map[string]Request{
		"blank thought":     {Thought: "   ", TotalThoughts: 1},
		"zero total":        {Thought: "t", TotalThoughts: 0},
		"zero number":       {Thought: "t", TotalThoughts: 1, ThoughtNumber: ptr(0)},
		"confidence range":  {Thought: "t", TotalThoughts: 1, Confidence: ptr(1.2)},
		"scoped declared":   {Thought: "t", TotalThoughts: 1, Assumptions: []Assumption{{ID: "s:A1", Text: "x", Confidence: 1}}},
		"assumption text":   {Thought: "t", TotalThoughts: 1, Assumptions: []Assumption{{ID: "A1", Confidence: 1}}},
		"empty depends ref": {Thought: "t", TotalThoughts: 1, DependsOnAssumptions: []string{""}},
	}
	for name, req := range cases {
		t.Run(name, func(t *testing.T) {
			_, err := svc.ProcessThought(context.Background(), req)
			require.ErrorIs(t, err, ErrInvalidRequest)
			assert.Equal(t, "validation_error", ErrorCode(err))
			assert.NotEmpty(t, ValidationDetails(err))
		})
	}
}

func TestService_CorruptRecordStartsFresh(t *testing.T) {
	st := newMemStorage()
	st.records["broken"] = []byte("{not json")

	resp, err := NewService(st).ProcessThought(context.Background(), Request{Thought: "again", TotalThoughts: 2, SessionID: "broken"})
	require.NoError(t, err)
	assert.Equal(t, 1, resp.ThoughtNumber)
	assert.Equal(t, 1, resp.ThoughtHistoryLength)
}

func TestService_Snapshot(t *testing.T) {
	ctx := context.Background()
	st := newMemStorage()
	_, err := NewService(st).ProcessThought(ctx, Request{Thought: "t", TotalThoughts: 2, SessionID: "snap", Outcome: ptr("done")})
	require.NoError(t, err)

	resp, err := NewService(st).Snapshot(ctx, "snap")
	require.NoError(t, err)
	assert.Equal(t, "snap", resp.SessionID)
	assert.Equal(t, "done", *resp.Outcome)

	_, err = NewService(st).Snapshot(ctx, "missing")
	assert.Error(t, err)
}

func TestResponse_JSONListsNeverNull(t *testing.T) {
	resp, err := NewService(newMemStorage()).ProcessThought(context.Background(), Request{Thought: "t", TotalThoughts: 1})
	require.NoError(t, err)
	data, err := json.Marshal(resp)
	require.NoError(t, err)

	var doc map[string]any
	require.NoError(t, json.Unmarshal(data, &doc))
	for _, k := range []string{"branches", "risky_assumptions", "falsified_assumptions", "unresolved_references", "cross_session_warnings"} {
		assert.Equal(t, []any{}, doc[k], k)
	}
	assert.Equal(t, map[string]any{}, doc["all_assumptions"])
	assert.Contains(t, doc, "confidence")
	assert.Nil(t, doc["confidence"])
}

func TestErrorCode(t *testing.T) {
	assert.Equal(t, "dangling_reference", ErrorCode(ErrDanglingReference))
	assert.Equal(t, "unknown_assumption", ErrorCode(ErrUnknownAssumption))
	assert.Equal(t, "immutable_field", ErrorCode(ErrImmutableField))
	assert.Equal(t, "unexpected_error", ErrorCode(errMissing))
	assert.Equal(t, "storage_locked", ErrorCode(fmt.Errorf("failed to save session s1: %w", storage.ErrLocked)))
}

// busyStorage refuses every write as if another process held the backend.
type busyStorage struct {
	*memStorage
}

func (b busyStorage) Write(_ context.Context, id string, _ []byte) error {
	return fmt.Errorf("storage: write %s: %w", id, storage.ErrLocked)
}

func TestService_LockedStorageFailsWithoutCaching(t *testing.T) {
	ctx := context.Background()
	mem := newMemStorage()
	svc := NewService(busyStorage{mem})

	_, err := svc.ProcessThought(ctx, Request{Thought: "T1", TotalThoughts: 2, SessionID: "held"})
	require.ErrorIs(t, err, ErrStorageLocked)
	assert.Equal(t, "storage_locked", NewErrorPayload(err).Error)

	_, err = svc.Snapshot(ctx, "held")
	require.EqualError(t, err, "session not found: held", "unsaved state is not served from the cache")
}

func TestNewErrorPayload(t *testing.T) {
	_, err := NewService(newMemStorage()).ProcessThought(context.Background(), Request{Thought: "t", TotalThoughts: 0})
	require.Error(t, err)

	p := NewErrorPayload(err)
	assert.Equal(t, "validation_error", p.Error)
	assert.Equal(t, []FieldIssue{{Field: "total_thoughts", Msg: "must be greater than or equal to 1"}}, p.Details)

	p = NewErrorPayload(ErrDanglingReference)
	assert.Equal(t, "dangling_reference", p.Error)
	assert.Nil(t, p.Details)
}

func TestService_Inspect(t *testing.T) {
	ctx := context.Background()
	st := newMemStorage()
	_, err := NewService(st).ProcessThought(ctx, Request{Thought: "t", TotalThoughts: 2, SessionID: "seen"})
	require.NoError(t, err)

	svc := NewService(st)
	var count int
	found, err := svc.Inspect(ctx, "seen", func(s *Session) { count = s.Log.Count() })
	require.NoError(t, err)
	assert.True(t, found)
	assert.Equal(t, 1, count)

	found, err = svc.Inspect(ctx, "unseen", func(*Session) { t.Fatal("called for a missing session") })
	require.NoError(t, err)
	assert.False(t, found)

	_, err = svc.Inspect(ctx, "no/slash", func(*Session) {})
	require.ErrorIs(t, err, ErrInvalidIdentifier)
}
