package thinking

import (
	"context"

	"github.com/charmbracelet/log"
)

// Resolver checks scoped assumption references ("<session>:<id>") against
// the sessions they name. It never modifies the target session.
type Resolver struct {
	cache  *Cache
	codec  *Codec
	logger *log.Logger
}

// NewResolver returns a Resolver that consults cache first and loads missing
// sessions through codec, keeping them in cache for later lookups.
func NewResolver(cache *Cache, codec *Codec, logger *log.Logger) *Resolver {
	if logger == nil {
		logger = discardLogger()
	}
	return &Resolver{cache: cache, codec: codec, logger: logger}
}

// Resolve reports whether the assumption named by scopedID exists in its
// session. An unscoped id resolves trivially. A target session that is
// missing, unreadable or badly named resolves to false.
func (r *Resolver) Resolve(ctx context.Context, scopedID string) bool {
	target, local, scoped := ParseScopedID(scopedID)
	if !scoped {
		return true
	}
	sess, ok := r.cache.Get(target)
	if !ok {
		loaded, found, err := r.codec.Load(ctx, target)
		if err != nil || !found {
			r.logger.Debug("Cross-session reference unresolved", "ref", scopedID, "reason", "session not found", "err", err)
			return false
		}
		r.cache.Put(target, loaded)
		sess = loaded
	}
	if !sess.Assumptions.Has(local) {
		r.logger.Debug("Cross-session reference unresolved", "ref", scopedID, "reason", "assumption not found")
		return false
	}
	return true
}
