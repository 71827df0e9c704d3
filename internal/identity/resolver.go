// Package identity turns chat user ids into human names: a memoizing
// resolver for the extraction pipeline, and the id-to-name mapping file
// used to relabel historical exports.
package identity

import (
	"context"
	"sync"

	"go.uber.org/zap"
)

// Lookup fetches a user's display name.
type Lookup interface {
	DisplayName(ctx context.Context, userID string) (string, bool)
}

// Resolver resolves ids through a Lookup, substituting the id itself when
// the lookup fails. Results, including failures, are cached for the life
// of the Resolver so each id is looked up at most once per run.
type Resolver struct {
	lookup Lookup
	logger *zap.Logger

	mu    sync.Mutex
	cache map[string]string
}

// NewResolver creates a resolver.
func NewResolver(lookup Lookup, logger *zap.Logger) *Resolver {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Resolver{
		lookup: lookup,
		logger: logger,
		cache:  make(map[string]string),
	}
}

// Resolve returns the display name of userID, or userID when none is known.
func (r *Resolver) Resolve(ctx context.Context, userID string) string {
	if userID == "" {
		return ""
	}
	r.mu.Lock()
	if name, ok := r.cache[userID]; ok {
		r.mu.Unlock()
		return name
	}
	r.mu.Unlock()

	name, ok := r.lookup.DisplayName(ctx, userID)
	if !ok {
		r.logger.Debug("no display name, using id", zap.String("user_id", userID))
		name = userID
	}

	r.mu.Lock()
	r.cache[userID] = name
	r.mu.Unlock()
	return name
}

// Len returns the number of cached ids.
func (r *Resolver) Len() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.cache)
}
