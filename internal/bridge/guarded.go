package bridge

import (
	"context"
	"sync"
)

// Guarded serialises access to a Bridge so it can be shared by goroutines.
// The lock is held for the whole call including consumption of the output,
// so results are returned as copies.
type Guarded struct {
	mu sync.Mutex
	b  *Bridge
}

// NewGuarded wraps b.
func NewGuarded(b *Bridge) *Guarded {
	return &Guarded{b: b}
}

// Do runs fn with exclusive use of the bridge. Views obtained inside fn must
// not escape it.
func (g *Guarded) Do(fn func(b *Bridge) error) error {
	g.mu.Lock()
	defer g.mu.Unlock()
	return fn(g.b)
}

// Parse parses source and returns a copy of the output.
func (g *Guarded) Parse(ctx context.Context, source []byte, opts Options) ([]byte, error) {
	var out []byte
	err := g.Do(func(b *Bridge) error {
		view, err := b.Parse(ctx, source, opts)
		if err != nil {
			return err
		}
		out = view.Copy()
		return nil
	})
	return out, err
}

// ParseString parses source and returns the decoded output.
func (g *Guarded) ParseString(ctx context.Context, source string, opts Options) (string, error) {
	var out string
	err := g.Do(func(b *Bridge) error {
		s, err := b.ParseString(ctx, source, opts)
		out = s
		return err
	})
	return out, err
}

// Close closes the underlying bridge.
func (g *Guarded) Close(ctx context.Context) error {
	return g.Do(func(b *Bridge) error {
		return b.Close(ctx)
	})
}
