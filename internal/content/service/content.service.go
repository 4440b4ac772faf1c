package service

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"strings"
	"sync"
	"time"

	"birthdaysite/internal/content/localstore"
	"birthdaysite/internal/content/model"
	"birthdaysite/internal/content/repository"
	"birthdaysite/internal/offline"
	"birthdaysite/pkg/logger"
)

const (
	DefaultCacheMaxAge     = 5 * time.Minute
	DefaultRemoteTimeout   = 5000 * time.Millisecond
	DefaultRefreshInterval = 5 * time.Minute
)

// Source tells where the working copy last came from.
type Source string

const (
	SourceCache   Source = "cache"
	SourceRemote  Source = "remote"
	SourceDefault Source = "default"
	SourceEdit    Source = "edit"
	SourceImport  Source = "import"
	SourceRefresh Source = "refresh"
)

// ErrNoRemote is returned by operations that need the remote store when none
// is configured.
var ErrNoRemote = errors.New("remote store not configured")

// Listener is notified with a private copy of the new working copy.
type Listener func(doc *model.ContentDocument, source Source)

// OfflineSyncer replays actions recorded while the remote store was down.
type OfflineSyncer interface {
	SyncOfflineActions(ctx context.Context) error
}

type Options struct {
	CacheMaxAge     time.Duration
	RemoteTimeout   time.Duration
	RefreshInterval time.Duration
	Now             func() time.Time
}

func (o *Options) withDefaults() {
	if o.CacheMaxAge <= 0 {
		o.CacheMaxAge = DefaultCacheMaxAge
	}
	if o.RemoteTimeout <= 0 {
		o.RemoteTimeout = DefaultRemoteTimeout
	}
	if o.RefreshInterval <= 0 {
		o.RefreshInterval = DefaultRefreshInterval
	}
	if o.Now == nil {
		o.Now = time.Now
	}
}

// CommitError reports which persistence tiers failed during a commit. The
// working copy is already updated when it is returned.
type CommitError struct {
	CacheErr  error
	RemoteErr error
}

func (e *CommitError) Error() string {
	var parts []string
	if e.CacheErr != nil {
		parts = append(parts, "local cache: "+e.CacheErr.Error())
	}
	if e.RemoteErr != nil {
		parts = append(parts, "remote store: "+e.RemoteErr.Error())
	}
	return "changes kept in memory but not fully saved (" + strings.Join(parts, "; ") + ")"
}

func (e *CommitError) Unwrap() []error {
	var errs []error
	for _, err := range []error{e.CacheErr, e.RemoteErr} {
		if err != nil {
			errs = append(errs, err)
		}
	}
	return errs
}

// ImportError wraps a rejected import. The working copy is untouched.
type ImportError struct {
	Err error
}

func (e *ImportError) Error() string { return "import rejected: " + e.Err.Error() }
func (e *ImportError) Unwrap() error { return e.Err }

// Session owns the working copy of the content document and keeps it in sync
// with the local cache and the remote store.
type Session struct {
	cache  localstore.Storage
	remote repository.Store // nil when no remote store is configured
	queue  *offline.Queue
	syncer OfflineSyncer
	opts   Options
	now    func() time.Time

	// writeMu serializes the write protocol and refreshes.
	writeMu sync.Mutex

	mu         sync.RWMutex
	doc        *model.ContentDocument
	source     Source
	version    string
	syncedAt   time.Time
	remoteDown bool
	// pending is set while the working copy holds an edit the remote store
	// has not taken.
	pending bool

	listenersMu sync.Mutex
	listeners   map[int]Listener
	nextID      int

	visibleMu sync.Mutex
	visible   bool
	missed    bool
	resumed   chan struct{}
}

// NewSession builds a session. remote may be nil; queue may be nil, in which
// case writes that fail to reach the remote store are dropped.
func NewSession(cache localstore.Storage, remote repository.Store, queue *offline.Queue, opts Options) *Session {
	opts.withDefaults()
	return &Session{
		cache:     cache,
		remote:    remote,
		queue:     queue,
		opts:      opts,
		now:       opts.Now,
		doc:       model.Default(),
		source:    SourceDefault,
		listeners: make(map[int]Listener),
		resumed:   make(chan struct{}, 1),
	}
}

// SetOfflineSyncer registers the component that drains the offline queue
// when the remote store becomes reachable again.
func (s *Session) SetOfflineSyncer(syncer OfflineSyncer) {
	s.syncer = syncer
}

func (s *Session) HasRemote() bool { return s.remote != nil }

// Document returns a copy of the working copy and its source.
func (s *Session) Document() (*model.ContentDocument, Source) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.doc.Clone(), s.source
}

// Load resolves the initial document: a fresh cache entry, then the remote
// store, then the compiled-in default (which is also seeded to the remote
// store). A cached edit the remote store never took is used at any age. It
// never fails; each tier's error is logged and the next tried.
func (s *Session) Load(ctx context.Context) (*model.ContentDocument, Source) {
	return s.load(ctx, true)
}

// Peek resolves the document the same way as Load but never seeds the
// remote store with the default.
func (s *Session) Peek(ctx context.Context) (*model.ContentDocument, Source) {
	return s.load(ctx, false)
}

func (s *Session) load(ctx context.Context, seed bool) (*model.ContentDocument, Source) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	entry, err := s.readCache(ctx)
	switch {
	case err != nil:
		logger.Sugar.Warnf("Error reading cache: %v", err)
	case entry != nil && (entry.Pending || entry.Fresh(s.now(), s.opts.CacheMaxAge)):
		logger.Sugar.Info("Using cached data")
		s.replace(entry.Document, entry.Version, SourceCache, time.UnixMilli(entry.Timestamp))
		s.mu.Lock()
		s.pending = entry.Pending
		s.mu.Unlock()
		return entry.Document.Clone(), SourceCache
	}

	doc, version, err := s.fetchRemote(ctx)
	if err == nil {
		if err := s.writeCache(ctx, doc, version, false); err != nil {
			logger.Sugar.Errorf("Error updating cache: %v", err)
		}
		logger.Sugar.Info("Loaded data from remote store")
		s.replace(doc, version, SourceRemote, s.now())
		return doc.Clone(), SourceRemote
	}
	if !errors.Is(err, ErrNoRemote) {
		logger.Sugar.Warnf("Remote load failed: %v", err)
	}

	logger.Sugar.Info("Using local fallback data")
	def := model.Default()
	s.replace(def, "", SourceDefault, s.now())
	if seed {
		s.seed(ctx, def)
	}
	return def.Clone(), SourceDefault
}

// seed writes the default document to the remote store so later sessions
// find real data there.
func (s *Session) seed(ctx context.Context, def *model.ContentDocument) {
	if s.remote == nil {
		return
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
	defer cancel()

	version, err := s.remote.Set(ctx, repository.PathWebsiteData, def)
	if err != nil {
		logger.Sugar.Warnf("Seeding remote store with default data failed: %v", err)
		s.markRemote(ctx, err)
		return
	}
	s.mu.Lock()
	s.version = version
	s.mu.Unlock()
	logger.Sugar.Info("Seeded remote store with default data")
}

// fetchRemote reads the document bounded by the remote timeout. The request
// is cancelled when the timeout wins, so a late answer never lands.
func (s *Session) fetchRemote(ctx context.Context) (*model.ContentDocument, string, error) {
	if s.remote == nil {
		return nil, "", ErrNoRemote
	}
	ctx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
	defer cancel()

	raw, version, err := s.remote.Get(ctx, repository.PathWebsiteData)
	s.markRemote(ctx, err)
	if err != nil {
		return nil, "", err
	}
	doc, err := model.Parse(raw)
	if err != nil {
		return nil, "", fmt.Errorf("remote document: %w", err)
	}
	return doc, version, nil
}

// Commit replaces the working copy with doc, then writes it to the local
// cache and the remote store. The working copy is updated even when a tier
// fails; the failure comes back as a *CommitError.
func (s *Session) Commit(ctx context.Context, doc *model.ContentDocument) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.commit(ctx, doc, SourceEdit)
}

// Edit applies fn to a copy of the working copy and commits the result. An
// error from fn leaves everything untouched.
func (s *Session) Edit(ctx context.Context, fn func(doc *model.ContentDocument) error) error {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	s.mu.RLock()
	doc := s.doc.Clone()
	s.mu.RUnlock()

	if err := fn(doc); err != nil {
		return err
	}
	return s.commit(ctx, doc, SourceEdit)
}

func (s *Session) commit(ctx context.Context, doc *model.ContentDocument, source Source) error {
	if err := doc.Validate(); err != nil {
		return err
	}
	working := doc.Clone()
	s.replace(working, "", source, s.now())

	var cerr CommitError
	if err := s.writeCache(ctx, working, "", false); err != nil {
		logger.Sugar.Errorf("Error saving to local cache: %v", err)
		cerr.CacheErr = err
	}

	if s.remote != nil {
		if err := s.pushWorking(ctx, working); err != nil {
			logger.Sugar.Errorf("Error saving to remote store: %v", err)
			cerr.RemoteErr = err
			s.markPending(ctx, working, cerr.CacheErr == nil)
		}
	}

	if cerr.CacheErr != nil || cerr.RemoteErr != nil {
		return &cerr
	}
	logger.Sugar.Infof("Content saved (%s)", source)
	return nil
}

// pushWorking writes doc to the remote store. On success the working copy is
// no longer pending and any queued write of the document is dropped before
// a reconnect can replay it over doc.
func (s *Session) pushWorking(ctx context.Context, doc *model.ContentDocument) error {
	rctx, cancel := context.WithTimeout(ctx, s.opts.RemoteTimeout)
	defer cancel()

	version, err := s.remote.Set(rctx, repository.PathWebsiteData, doc)
	if err == nil {
		s.mu.Lock()
		s.version = version
		s.pending = false
		s.mu.Unlock()
		if s.queue != nil {
			if err := s.queue.Discard(ctx, offline.KindSet, repository.PathWebsiteData); err != nil {
				logger.Sugar.Warnf("Failed to drop queued document write: %v", err)
			}
		}
	}
	s.markRemote(rctx, err)
	return err
}

// markPending records that doc only exists locally: the cache entry is
// flagged so a restart keeps it, and the write is queued for the next sync.
func (s *Session) markPending(ctx context.Context, doc *model.ContentDocument, cached bool) {
	s.mu.Lock()
	s.pending = true
	s.mu.Unlock()

	if cached {
		if err := s.writeCache(ctx, doc, "", true); err != nil {
			logger.Sugar.Errorf("Error flagging cached document as pending: %v", err)
		}
	}
	s.queueAction(ctx, offline.KindSet, repository.PathWebsiteData, doc)
}

// Import replaces the working copy with a serialized document and commits
// it. A document that does not parse is rejected with an *ImportError.
func (s *Session) Import(ctx context.Context, data []byte) error {
	doc, err := model.Parse(data)
	if err != nil {
		return &ImportError{Err: err}
	}
	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return s.commit(ctx, doc, SourceImport)
}

// Export serializes the working copy.
func (s *Session) Export() ([]byte, error) {
	doc, _ := s.Document()
	return doc.Export()
}

// Refresh re-reads the remote document and adopts it when it changed. It
// reports whether the working copy was replaced. A pending local edit wins
// over the remote document and is pushed instead.
func (s *Session) Refresh(ctx context.Context) (bool, error) {
	s.writeMu.Lock()
	defer s.writeMu.Unlock()

	doc, version, err := s.fetchRemote(ctx)
	if err != nil {
		return false, err
	}

	s.mu.RLock()
	working, pending := s.doc, s.pending
	same := reflect.DeepEqual(doc, working)
	unchanged := same || (!pending && version != "" && version == s.version)
	s.mu.RUnlock()

	if pending && !same {
		if err := s.pushWorking(ctx, working); err != nil {
			return false, err
		}
		s.mu.RLock()
		version = s.version
		s.mu.RUnlock()
		if err := s.writeCache(ctx, working, version, false); err != nil {
			logger.Sugar.Errorf("Error updating cache: %v", err)
		}
		s.mu.Lock()
		s.syncedAt = s.now()
		s.mu.Unlock()
		logger.Sugar.Info("Pushed pending local edit to remote store")
		return false, nil
	}

	if unchanged {
		s.mu.Lock()
		s.version = version
		s.pending = false
		s.syncedAt = s.now()
		s.mu.Unlock()
		if pending && s.queue != nil {
			if err := s.queue.Discard(ctx, offline.KindSet, repository.PathWebsiteData); err != nil {
				logger.Sugar.Warnf("Failed to drop queued document write: %v", err)
			}
		}
		if err := s.writeCache(ctx, working, version, false); err != nil {
			logger.Sugar.Errorf("Error updating cache: %v", err)
		}
		return false, nil
	}

	if err := s.writeCache(ctx, doc, version, false); err != nil {
		logger.Sugar.Errorf("Error updating cache: %v", err)
	}
	s.replace(doc, version, SourceRefresh, s.now())
	logger.Sugar.Info("Content refreshed from remote store")
	return true, nil
}

// Current returns the working copy, refreshing it first when the last sync
// is older than the cache max age.
func (s *Session) Current(ctx context.Context) *model.ContentDocument {
	s.mu.RLock()
	stale := s.now().Sub(s.syncedAt) >= s.opts.CacheMaxAge
	s.mu.RUnlock()

	if stale && s.remote != nil {
		if _, err := s.Refresh(ctx); err != nil {
			logger.Sugar.Warnf("Read-through refresh failed: %v", err)
			s.mu.Lock()
			s.syncedAt = s.now()
			s.mu.Unlock()
		}
	}
	doc, _ := s.Document()
	return doc
}

// replace installs doc as the working copy and notifies listeners.
func (s *Session) replace(doc *model.ContentDocument, version string, source Source, syncedAt time.Time) {
	s.mu.Lock()
	s.doc = doc
	s.source = source
	if version != "" {
		s.version = version
	}
	s.syncedAt = syncedAt
	s.mu.Unlock()
	s.notify(doc, source)
}

// markRemote tracks remote reachability and drains the offline queue when a
// call succeeds after a failure.
func (s *Session) markRemote(ctx context.Context, err error) {
	down := err != nil && !errors.Is(err, repository.ErrNotFound)

	s.mu.Lock()
	reconnected := s.remoteDown && !down
	s.remoteDown = down
	s.mu.Unlock()

	if reconnected && s.syncer != nil {
		logger.Sugar.Info("Remote store reachable again, syncing offline actions")
		if err := s.syncer.SyncOfflineActions(context.WithoutCancel(ctx)); err != nil {
			logger.Sugar.Warnf("Offline sync failed: %v", err)
		}
	}
}

// Subscribe registers fn for working-copy changes and returns a function
// that removes it.
func (s *Session) Subscribe(fn Listener) func() {
	s.listenersMu.Lock()
	defer s.listenersMu.Unlock()
	id := s.nextID
	s.nextID++
	s.listeners[id] = fn
	return func() {
		s.listenersMu.Lock()
		defer s.listenersMu.Unlock()
		delete(s.listeners, id)
	}
}

func (s *Session) notify(doc *model.ContentDocument, source Source) {
	s.listenersMu.Lock()
	fns := make([]Listener, 0, len(s.listeners))
	for _, fn := range s.listeners {
		fns = append(fns, fn)
	}
	s.listenersMu.Unlock()

	for _, fn := range fns {
		fn(doc.Clone(), source)
	}
}
