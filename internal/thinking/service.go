package thinking

import (
	"context"
	"fmt"
	"sync"

	"github.com/charmbracelet/log"

	"github.com/kokistudios/ultrathink/internal/sessionid"
)

// Option configures a Service.
type Option func(*options)

type options struct {
	logger *log.Logger
}

// WithLogger sets the logger used by the service and its collaborators.
func WithLogger(l *log.Logger) Option {
	return func(o *options) {
		o.logger = l
	}
}

// Service processes thinking steps: it finds or creates the session,
// resolves cross-session references, appends the thought and saves the
// session. Calls are serialized.
type Service struct {
	mu       sync.Mutex
	cache    *Cache
	codec    *Codec
	resolver *Resolver
	logger   *log.Logger
}

// NewService returns a Service persisting through st.
func NewService(st Storage, opts ...Option) *Service {
	var o options
	for _, opt := range opts {
		opt(&o)
	}
	if o.logger == nil {
		o.logger = discardLogger()
	}
	cache := NewCache()
	codec := NewCodec(st, o.logger)
	return &Service{
		cache:    cache,
		codec:    codec,
		resolver: NewResolver(cache, codec, o.logger),
		logger:   o.logger,
	}
}

// ProcessThought records one thought and returns the resulting snapshot.
// Nothing is saved when any check fails.
func (s *Service) ProcessThought(ctx context.Context, req Request) (*Response, error) {
	if err := req.Validate(); err != nil {
		return nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	id, sess, err := s.getOrCreate(ctx, req.SessionID)
	if err != nil {
		return nil, err
	}

	number := sess.Log.Count() + 1
	if req.ThoughtNumber != nil {
		number = *req.ThoughtNumber
	}
	next := number < req.TotalThoughts
	if req.NextThoughtNeeded != nil {
		next = *req.NextThoughtNeeded
	}

	resolved := make(map[string]bool)
	for _, ref := range req.DependsOnAssumptions {
		if _, _, scoped := ParseScopedID(ref); scoped && s.resolver.Resolve(ctx, ref) {
			resolved[ref] = true
		}
	}

	t := Thought{
		Thought:                req.Thought,
		ThoughtNumber:          number,
		TotalThoughts:          req.TotalThoughts,
		NextThoughtNeeded:      next,
		IsRevision:             req.IsRevision,
		RevisesThought:         req.RevisesThought,
		BranchFromThought:      req.BranchFromThought,
		BranchID:               req.BranchID,
		NeedsMoreThoughts:      req.NeedsMoreThoughts,
		Confidence:             req.Confidence,
		UncertaintyNotes:       req.UncertaintyNotes,
		Outcome:                req.Outcome,
		Assumptions:            req.Assumptions,
		DependsOnAssumptions:   req.DependsOnAssumptions,
		InvalidatesAssumptions: req.InvalidatesAssumptions,
	}
	added, err := sess.AddThought(t, resolved)
	if err != nil {
		if sess.Log.Count() == 0 {
			s.cache.Delete(id)
		}
		return nil, err
	}
	if err := s.codec.Save(ctx, id, sess); err != nil {
		// Drop the unsaved state; the next call reloads the stored record.
		s.cache.Delete(id)
		return nil, err
	}
	s.logger.Debug("Thought recorded", "session", id, "thought", added.ThoughtNumber, "history", sess.Log.Count(), "cached", s.cache.Len())
	return NewResponse(id, sess, added), nil
}

func (s *Service) getOrCreate(ctx context.Context, id string) (string, *Session, error) {
	if id == "" {
		id = sessionid.New()
		sess := NewSession()
		s.cache.Put(id, sess)
		s.logger.Debug("Session created", "session", id)
		return id, sess, nil
	}
	sess, found, err := s.lookup(ctx, id)
	if err != nil {
		return "", nil, err
	}
	if !found {
		sess = NewSession()
		s.cache.Put(id, sess)
		s.logger.Debug("Session created", "session", id)
	}
	return id, sess, nil
}

func (s *Service) lookup(ctx context.Context, id string) (*Session, bool, error) {
	if err := sessionid.Validate(id); err != nil {
		return nil, false, err
	}
	if sess, ok := s.cache.Get(id); ok {
		return sess, true, nil
	}
	sess, found, err := s.codec.Load(ctx, id)
	if err != nil || !found {
		return nil, false, err
	}
	s.cache.Put(id, sess)
	return sess, true, nil
}

// Inspect calls fn with the stored session id, from the cache when present.
// fn runs while other calls are held off and must not retain the session.
func (s *Service) Inspect(ctx context.Context, id string, fn func(*Session)) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	sess, found, err := s.lookup(ctx, id)
	if err != nil || !found {
		return false, err
	}
	fn(sess)
	return true, nil
}

// Snapshot returns the response shape for the latest thought of session id.
func (s *Service) Snapshot(ctx context.Context, id string) (*Response, error) {
	var resp *Response
	found, err := s.Inspect(ctx, id, func(sess *Session) {
		last, _ := sess.Log.Last()
		resp = NewResponse(id, sess, last)
	})
	if err != nil {
		return nil, err
	}
	if !found {
		return nil, fmt.Errorf("session not found: %s", id)
	}
	return resp, nil
}
