package service

import (
	"context"
	"encoding/json"
	"errors"
	"strconv"
	"sync"
	"time"

	"birthdaysite/internal/content/repository"
)

var errOffline = errors.New("network unreachable")

// fakeRemote is an in-memory repository.Store with switchable failures.
type fakeRemote struct {
	mu       sync.Mutex
	nodes    map[string]json.RawMessage
	versions map[string]int
	pushed   map[string][]json.RawMessage
	gets     int
	sets     int

	offline bool
	// hang makes Get block until its context is done.
	hang bool
}

func newFakeRemote() *fakeRemote {
	return &fakeRemote{
		nodes:    map[string]json.RawMessage{},
		versions: map[string]int{},
		pushed:   map[string][]json.RawMessage{},
	}
}

func (f *fakeRemote) setOffline(v bool) {
	f.mu.Lock()
	f.offline = v
	f.mu.Unlock()
}

func (f *fakeRemote) Get(ctx context.Context, path string) (json.RawMessage, string, error) {
	f.mu.Lock()
	f.gets++
	hang, offline := f.hang, f.offline
	f.mu.Unlock()

	if hang {
		<-ctx.Done()
		return nil, "", ctx.Err()
	}
	if offline {
		return nil, "", errOffline
	}

	f.mu.Lock()
	defer f.mu.Unlock()
	raw, ok := f.nodes[path]
	if !ok {
		return nil, "", repository.ErrNotFound
	}
	return raw, strconv.Itoa(f.versions[path]), nil
}

func (f *fakeRemote) Set(_ context.Context, path string, value any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return "", errOffline
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	f.sets++
	f.nodes[path] = raw
	f.versions[path]++
	return strconv.Itoa(f.versions[path]), nil
}

func (f *fakeRemote) Push(_ context.Context, path string, value any) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return "", errOffline
	}
	raw, err := json.Marshal(value)
	if err != nil {
		return "", err
	}
	f.pushed[path] = append(f.pushed[path], raw)
	return strconv.Itoa(len(f.pushed[path])), nil
}

func (f *fakeRemote) Transaction(_ context.Context, path string, update repository.UpdateFunc) (json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, errOffline
	}
	next, err := update(f.nodes[path])
	if err != nil {
		return nil, err
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return nil, err
	}
	f.nodes[path] = raw
	return raw, nil
}

func (f *fakeRemote) Children(_ context.Context, path string) (map[string]json.RawMessage, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.offline {
		return nil, errOffline
	}
	children := map[string]json.RawMessage{}
	for i, raw := range f.pushed[path] {
		children[strconv.Itoa(i+1)] = raw
	}
	return children, nil
}

func (f *fakeRemote) getCount() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.gets
}

// fakeClock is a settable clock.
type fakeClock struct {
	mu sync.Mutex
	t  time.Time
}

func newFakeClock() *fakeClock {
	return &fakeClock{t: time.Date(2024, 8, 15, 9, 0, 0, 0, time.UTC)}
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.t
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	c.t = c.t.Add(d)
	c.mu.Unlock()
}

// failingStorage rejects every write like a full browser storage.
type failingStorage struct{}

var errQuota = errors.New("quota exceeded")

func (failingStorage) Get(context.Context, string) (string, bool, error) { return "", false, nil }
func (failingStorage) Set(context.Context, string, string) error        { return errQuota }
func (failingStorage) Remove(context.Context, string) error             { return nil }

type recordingSyncer struct {
	mu    sync.Mutex
	calls int
}

func (r *recordingSyncer) SyncOfflineActions(context.Context) error {
	r.mu.Lock()
	r.calls++
	r.mu.Unlock()
	return nil
}

func (r *recordingSyncer) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.calls
}
