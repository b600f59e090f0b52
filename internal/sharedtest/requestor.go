package sharedtest

import (
	"context"
	"sync"

	"github.com/launchdarkly/go-client-sdk/internal/flagstore"

	"github.com/launchdarkly/go-sdk-common/v3/ldcontext"
	"github.com/launchdarkly/go-sdk-common/v3/ldvalue"
)

// FakeRequestor is a datasource.Requestor that returns configurable flags for each context key.
type FakeRequestor struct {
	// Requests receives the context of every Fetch call. If nobody reads it, extra values are dropped.
	Requests chan ldcontext.Context

	lock     sync.Mutex
	flags    map[string][]flagstore.FlagRecord
	fallback []flagstore.FlagRecord
	err      error
	block    chan struct{}
}

// NewFakeRequestor creates a FakeRequestor that returns the given flags for every context.
func NewFakeRequestor(flags ...flagstore.FlagRecord) *FakeRequestor {
	return &FakeRequestor{
		Requests: make(chan ldcontext.Context, 100),
		flags:    make(map[string][]flagstore.FlagRecord),
		fallback: flags,
	}
}

// SetFlagsForContext makes Fetch return these flags for contexts with the given key.
func (r *FakeRequestor) SetFlagsForContext(key string, flags ...flagstore.FlagRecord) {
	r.lock.Lock()
	r.flags[key] = flags
	r.lock.Unlock()
}

// SetError makes every Fetch fail with err, or succeed again if err is nil.
func (r *FakeRequestor) SetError(err error) {
	r.lock.Lock()
	r.err = err
	r.lock.Unlock()
}

// Block makes every Fetch wait until the returned function is called or the request is canceled.
func (r *FakeRequestor) Block() (release func()) {
	ch := make(chan struct{})
	r.lock.Lock()
	r.block = ch
	r.lock.Unlock()
	var once sync.Once
	return func() { once.Do(func() { close(ch) }) }
}

// Fetch implements datasource.Requestor.
func (r *FakeRequestor) Fetch(ctx context.Context, c ldcontext.Context) ([]flagstore.FlagRecord, error) {
	select {
	case r.Requests <- c:
	default:
	}
	r.lock.Lock()
	block := r.block
	r.lock.Unlock()
	if block != nil {
		select {
		case <-block:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	r.lock.Lock()
	defer r.lock.Unlock()
	if r.err != nil {
		return nil, r.err
	}
	if flags, ok := r.flags[c.Key()]; ok {
		return flags, nil
	}
	return r.fallback, nil
}

// Flag is a shortcut for creating a FlagRecord.
func Flag(key string, value ldvalue.Value, version int) flagstore.FlagRecord {
	return flagstore.FlagRecord{Key: key, Flag: flagstore.FlagValue{Value: value, Version: version}}
}
