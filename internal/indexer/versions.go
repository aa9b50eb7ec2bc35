package indexer

import (
	"context"
	"sync"
	"time"
)

// Token identifies one indexing request for a path
type Token struct {
	Path    string
	Version uint64
}

// Versions hands out monotonically increasing version tokens per file path
// and serializes writes for a path. Acquiring a new token cancels the
// context of the request holding the previous one.
type Versions struct {
	mu    sync.Mutex
	next  uint64
	paths map[string]*pathEntry
}

type pathEntry struct {
	version uint64
	cancel  context.CancelFunc
	sem     chan struct{}
	refs    int
}

// NewVersions creates a version registry. Versions are seeded from the
// clock so they keep increasing across restarts.
func NewVersions() *Versions {
	return &Versions{
		next:  uint64(time.Now().UnixNano()),
		paths: make(map[string]*pathEntry),
	}
}

func (v *Versions) ref(path string) *pathEntry {
	e, ok := v.paths[path]
	if !ok {
		e = &pathEntry{sem: make(chan struct{}, 1)}
		v.paths[path] = e
	}
	e.refs++
	return e
}

func (v *Versions) unref(path string, e *pathEntry) {
	e.refs--
	if e.refs == 0 && v.paths[path] == e {
		delete(v.paths, path)
	}
}

// Acquire takes a new version for path. The returned context is cancelled
// when a newer request for the same path arrives or when the token is
// released. Every Acquire must be paired with Release.
func (v *Versions) Acquire(ctx context.Context, path string) (context.Context, Token) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e := v.ref(path)
	if e.cancel != nil {
		e.cancel()
	}
	v.next++
	e.version = v.next

	ctx, cancel := context.WithCancel(ctx)
	e.cancel = cancel
	return ctx, Token{Path: path, Version: e.version}
}

// Release ends the request holding tok
func (v *Versions) Release(tok Token) {
	v.mu.Lock()
	defer v.mu.Unlock()

	e, ok := v.paths[tok.Path]
	if !ok {
		return
	}
	if e.version == tok.Version && e.cancel != nil {
		e.cancel()
		e.cancel = nil
	}
	v.unref(tok.Path, e)
}

// IsCurrent reports whether tok is still the newest request for its path
func (v *Versions) IsCurrent(tok Token) bool {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.paths[tok.Path]
	return ok && e.version == tok.Version
}

// Current returns the newest in-flight version for path
func (v *Versions) Current(path string) (uint64, bool) {
	v.mu.Lock()
	defer v.mu.Unlock()
	e, ok := v.paths[path]
	if !ok || e.version == 0 {
		return 0, false
	}
	return e.version, true
}

// Lock serializes writers of path. It blocks until the lock is free or ctx
// ends, and returns the unlock function.
func (v *Versions) Lock(ctx context.Context, path string) (func(), error) {
	v.mu.Lock()
	e := v.ref(path)
	v.mu.Unlock()

	select {
	case e.sem <- struct{}{}:
		return func() {
			<-e.sem
			v.mu.Lock()
			v.unref(path, e)
			v.mu.Unlock()
		}, nil
	case <-ctx.Done():
		v.mu.Lock()
		v.unref(path, e)
		v.mu.Unlock()
		return nil, ctx.Err()
	}
}
