package mcp

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/kokistudios/ultrathink/internal/report"
	"github.com/kokistudios/ultrathink/internal/storage"
	"github.com/kokistudios/ultrathink/internal/thinking"
)

// Server wraps the MCP server around one long-lived thinking service, so
// sessions stay cached for the lifetime of the process.
type Server struct {
	svc     *thinking.Service
	backend storage.Backend
	server  *mcp.Server
}

// NewServer creates a new ultrathink MCP server.
func NewServer(svc *thinking.Service, backend storage.Backend, name, version string) *Server {
	s := &Server{svc: svc, backend: backend}

	impl := &mcp.Implementation{
		Name:    name,
		Version: version,
	}

	s.server = mcp.NewServer(impl, nil)
	s.registerTools()

	return s
}

// Run starts the MCP server on stdio.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &mcp.StdioTransport{})
}

func (s *Server) registerTools() {
	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ultrathink",
		Description: "Record one step of sequential thinking. Omit session_id to start a new session and pass the returned " +
			"session_id on every later call. Thoughts may revise earlier ones (revises_thought) or fork a branch " +
			"(branch_from_thought + branch_id). Declare assumptions with ids A1, A2, ...; reference them later via " +
			"depends_on_assumptions or invalidates_assumptions. Another session's assumption is referenced as " +
			"<session_id>:A<n>. The result lists risky (critical, confidence < 0.7, unverified) and falsified assumptions.",
	}, s.handleThought)

	mcp.AddTool(s.server, &mcp.Tool{
		Name: "ultrathink_session",
		Description: "Show a stored thinking session. format=snapshot (default) returns the same shape as the ultrathink " +
			"tool for the latest thought, format=record returns the full stored record, format=markdown returns a readable report.",
	}, s.handleSession)

	mcp.AddTool(s.server, &mcp.Tool{
		Name:        "ultrathink_sessions",
		Description: "List stored thinking sessions with their thought and assumption counts.",
	}, s.handleSessions)
}

// AssumptionArgs is one declared assumption. Omitted confidence means 1.0,
// omitted critical means true.
type AssumptionArgs struct {
	ID                 string   `json:"id" jsonschema:"Local assumption id, e.g. A1"`
	Text               string   `json:"text" jsonschema:"The assumption itself. Cannot change once declared."`
	Confidence         *float64 `json:"confidence,omitempty" jsonschema:"Confidence in the assumption, 0.0 to 1.0 (default 1.0)"`
	Critical           *bool    `json:"critical,omitempty" jsonschema:"Whether the reasoning fails if this is false (default true). Cannot change once declared."`
	Verifiable         *bool    `json:"verifiable,omitempty" jsonschema:"Whether the assumption can be checked"`
	Evidence           *string  `json:"evidence,omitempty" jsonschema:"Supporting evidence"`
	VerificationStatus *string  `json:"verification_status,omitempty" jsonschema:"One of unverified, verified_true, verified_false"`
}

func (a AssumptionArgs) assumption() thinking.Assumption {
	out := thinking.Assumption{
		ID:         a.ID,
		Text:       a.Text,
		Confidence: 1.0,
		Critical:   true,
		Evidence:   a.Evidence,
	}
	if a.Confidence != nil {
		out.Confidence = *a.Confidence
	}
	if a.Critical != nil {
		out.Critical = *a.Critical
	}
	if a.Verifiable != nil {
		out.Verifiable = *a.Verifiable
	}
	if a.VerificationStatus != nil {
		status := thinking.VerificationStatus(*a.VerificationStatus)
		out.VerificationStatus = &status
	}
	return out
}

// ThoughtArgs defines the input for ultrathink.
type ThoughtArgs struct {
	Thought                string           `json:"thought" jsonschema:"The current thinking step"`
	TotalThoughts          int              `json:"total_thoughts" jsonschema:"Estimated number of thoughts needed (at least 1)"`
	SessionID              string           `json:"session_id,omitempty" jsonschema:"Session to continue; omit to start a new one"`
	ThoughtNumber          *int             `json:"thought_number,omitempty" jsonschema:"Number of this thought (default: thought count + 1)"`
	NextThoughtNeeded      *bool            `json:"next_thought_needed,omitempty" jsonschema:"Whether another thought follows (default: thought_number < total_thoughts)"`
	IsRevision             *bool            `json:"is_revision,omitempty" jsonschema:"Whether this thought revises an earlier one"`
	RevisesThought         *int             `json:"revises_thought,omitempty" jsonschema:"Number of the thought being revised"`
	BranchFromThought      *int             `json:"branch_from_thought,omitempty" jsonschema:"Number of the thought this branch forks from"`
	BranchID               *string          `json:"branch_id,omitempty" jsonschema:"Name of the branch"`
	NeedsMoreThoughts      *bool            `json:"needs_more_thoughts,omitempty" jsonschema:"Set when the estimate turned out too low"`
	Confidence             *float64         `json:"confidence,omitempty" jsonschema:"Confidence in this thought, 0.0 to 1.0"`
	UncertaintyNotes       *string          `json:"uncertainty_notes,omitempty" jsonschema:"What remains uncertain"`
	Outcome                *string          `json:"outcome,omitempty" jsonschema:"What this thought concluded"`
	Assumptions            []AssumptionArgs `json:"assumptions,omitempty" jsonschema:"Assumptions declared or updated by this thought"`
	DependsOnAssumptions   []string         `json:"depends_on_assumptions,omitempty" jsonschema:"Assumption ids this thought relies on; <session_id>:A<n> for another session"`
	InvalidatesAssumptions []string         `json:"invalidates_assumptions,omitempty" jsonschema:"Local assumption ids this thought proves false"`
}

func (a ThoughtArgs) request() thinking.Request {
	req := thinking.Request{
		Thought:                a.Thought,
		TotalThoughts:          a.TotalThoughts,
		NextThoughtNeeded:      a.NextThoughtNeeded,
		ThoughtNumber:          a.ThoughtNumber,
		SessionID:              a.SessionID,
		IsRevision:             a.IsRevision,
		RevisesThought:         a.RevisesThought,
		BranchFromThought:      a.BranchFromThought,
		BranchID:               a.BranchID,
		NeedsMoreThoughts:      a.NeedsMoreThoughts,
		Confidence:             a.Confidence,
		UncertaintyNotes:       a.UncertaintyNotes,
		Outcome:                a.Outcome,
		DependsOnAssumptions:   a.DependsOnAssumptions,
		InvalidatesAssumptions: a.InvalidatesAssumptions,
	}
	for _, as := range a.Assumptions {
		req.Assumptions = append(req.Assumptions, as.assumption())
	}
	return req
}

func (s *Server) handleThought(ctx context.Context, req *mcp.CallToolRequest, args ThoughtArgs) (*mcp.CallToolResult, any, error) {
	resp, err := s.svc.ProcessThought(ctx, args.request())
	if err != nil {
		return nil, nil, toolError(err)
	}
	return nil, resp, nil
}

// SessionArgs defines input for ultrathink_session.
type SessionArgs struct {
	SessionID string `json:"session_id" jsonschema:"The session to show"`
	Format    string `json:"format,omitempty" jsonschema:"snapshot (default), record or markdown"`
}

// MarkdownResult carries a rendered report.
type MarkdownResult struct {
	SessionID string `json:"session_id"`
	Markdown  string `json:"markdown"`
}

func (s *Server) handleSession(ctx context.Context, req *mcp.CallToolRequest, args SessionArgs) (*mcp.CallToolResult, any, error) {
	switch args.Format {
	case "", "snapshot":
		resp, err := s.svc.Snapshot(ctx, args.SessionID)
		if err != nil {
			return nil, nil, toolError(err)
		}
		return nil, resp, nil
	case "record", "markdown":
	default:
		return nil, nil, fmt.Errorf("unknown format %q (want snapshot, record or markdown)", args.Format)
	}

	var out any
	found, err := s.svc.Inspect(ctx, args.SessionID, func(sess *thinking.Session) {
		if args.Format == "record" {
			out = thinking.NewRecord(sess)
			return
		}
		out = MarkdownResult{SessionID: args.SessionID, Markdown: report.Markdown(args.SessionID, sess)}
	})
	if err != nil {
		return nil, nil, toolError(err)
	}
	if !found {
		return nil, nil, fmt.Errorf("session not found: %s", args.SessionID)
	}
	return nil, out, nil
}

// SessionsArgs defines input for ultrathink_sessions.
type SessionsArgs struct {
	Limit int `json:"limit,omitempty" jsonschema:"Maximum number of sessions to return (default: all)"`
}

// SessionsResult is the output of ultrathink_sessions.
type SessionsResult struct {
	Sessions []SessionSummary `json:"sessions"`
	Message  string           `json:"message,omitempty"`
}

// SessionSummary is a lightweight view of a stored session.
type SessionSummary struct {
	ID          string `json:"id"`
	Thoughts    int    `json:"thoughts"`
	Assumptions int    `json:"assumptions"`
	Branches    int    `json:"branches"`
}

func (s *Server) handleSessions(ctx context.Context, req *mcp.CallToolRequest, args SessionsArgs) (*mcp.CallToolResult, any, error) {
	ids, err := s.backend.List(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("list sessions: %w", err)
	}
	if args.Limit > 0 && len(ids) > args.Limit {
		ids = ids[:args.Limit]
	}

	out := SessionsResult{Sessions: []SessionSummary{}}
	for _, id := range ids {
		// Unreadable records are skipped.
		s.svc.Inspect(ctx, id, func(sess *thinking.Session) {
			out.Sessions = append(out.Sessions, SessionSummary{
				ID:          id,
				Thoughts:    sess.Log.Count(),
				Assumptions: sess.Assumptions.Len(),
				Branches:    len(sess.Log.BranchIDs()),
			})
		})
	}
	if len(out.Sessions) == 0 {
		out.Message = "No stored sessions. Call the ultrathink tool to start one."
	}
	return nil, out, nil
}

// toolError turns err into a tool failure whose text is the JSON error
// payload the CLI prints.
func toolError(err error) error {
	data, merr := json.Marshal(thinking.NewErrorPayload(err))
	if merr != nil {
		return err
	}
	return errors.New(string(data))
}
