package events

import (
	"context"
	"sync"
)

// Purger is the external cache client's Purge method, kept as a small
// interface so the invalidator doesn't need to import the cache package
// directly.
type Purger interface {
	Purge(ctx context.Context, tags []string) error
}

// Invalidator coalesces cache-invalidation tags raised during a processor
// tick into a single purge call flushed once per scheduler turn, instead of
// firing one purge per completed chapter.
type Invalidator struct {
	mu     sync.Mutex
	tags   map[string]struct{}
	purger Purger
}

func NewInvalidator(purger Purger) *Invalidator {
	return &Invalidator{tags: make(map[string]struct{}), purger: purger}
}

func (i *Invalidator) Add(tag string) {
	i.mu.Lock()
	defer i.mu.Unlock()
	i.tags[tag] = struct{}{}
}

// Flush purges every tag queued since the last flush. Failures are logged
// by the caller if desired but never propagated as a tick failure.
func (i *Invalidator) Flush(ctx context.Context) error {
	i.mu.Lock()
	tags := make([]string, 0, len(i.tags))
	for t := range i.tags {
		tags = append(tags, t)
	}
	i.tags = make(map[string]struct{})
	i.mu.Unlock()

	if len(tags) == 0 || i.purger == nil {
		return nil
	}
	return i.purger.Purge(ctx, tags)
}
