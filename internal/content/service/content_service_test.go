package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"birthdaysite/internal/content/localstore"
	"birthdaysite/internal/content/model"
	"birthdaysite/internal/content/repository"
	"birthdaysite/internal/offline"

	"github.com/google/go-cmp/cmp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func remoteDoc(title string) *model.ContentDocument {
	doc := model.Default()
	doc.Personal.WebsiteTitle = title
	return doc
}

func newTestSession(cache localstore.Storage, remote repository.Store, clock *fakeClock) *Session {
	return NewSession(cache, remote, offline.NewQueue(localstore.NewMemory()), Options{
		Now:           clock.Now,
		RemoteTimeout: 50 * time.Millisecond,
	})
}

func TestLoadFromRemoteWritesThroughCache(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	cache := localstore.NewMemory()
	remote := newFakeRemote()
	d := remoteDoc("From remote")
	_, err := remote.Set(ctx, repository.PathWebsiteData, d)
	require.NoError(t, err)

	s := newTestSession(cache, remote, clock)
	got, source := s.Load(ctx)
	assert.Equal(t, SourceRemote, source)
	assert.Empty(t, cmp.Diff(d, got))

	// A new session reads the same document from the cache without the network.
	remote.setOffline(true)
	gets := remote.getCount()
	again, source := newTestSession(cache, remote, clock).Load(ctx)
	assert.Equal(t, SourceCache, source)
	assert.Empty(t, cmp.Diff(d, again))
	assert.Equal(t, gets, remote.getCount())
}

func TestFreshnessBoundary(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	cache := localstore.NewMemory()
	remote := newFakeRemote()
	_, err := remote.Set(ctx, repository.PathWebsiteData, remoteDoc("v1"))
	require.NoError(t, err)

	newTestSession(cache, remote, clock).Load(ctx)
	require.Equal(t, 1, remote.getCount())

	clock.Advance(4*time.Minute + 59*time.Second)
	_, source := newTestSession(cache, remote, clock).Load(ctx)
	assert.Equal(t, SourceCache, source)
	assert.Equal(t, 1, remote.getCount())

	clock.Advance(2 * time.Second)
	_, source = newTestSession(cache, remote, clock).Load(ctx)
	assert.Equal(t, SourceRemote, source)
	assert.Equal(t, 2, remote.getCount())
}

func TestLoadFallsBackToDefaultAndSeeds(t *testing.T) {
	clock := newFakeClock()
	remote := newFakeRemote()
	remote.hang = true

	s := newTestSession(localstore.NewMemory(), remote, clock)
	start := time.Now()
	got, source := s.Load(context.Background())
	assert.Less(t, time.Since(start), 2*time.Second)

	assert.Equal(t, SourceDefault, source)
	assert.Empty(t, cmp.Diff(model.Default(), got))

	seeded, err := model.Parse(remote.nodes[repository.PathWebsiteData])
	require.NoError(t, err)
	assert.Empty(t, cmp.Diff(model.Default(), seeded))
}

func TestLoadWithoutRemoteUsesDefault(t *testing.T) {
	s := NewSession(localstore.NewMemory(), nil, nil, Options{})
	got, source := s.Load(context.Background())
	assert.Equal(t, SourceDefault, source)
	assert.Equal(t, model.Default().Personal, got.Personal)
	assert.False(t, s.HasRemote())
}

func TestCorruptedCacheIsDiscarded(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	cache := localstore.NewMemory()
	require.NoError(t, cache.Set(ctx, CacheKey, `{"document":{"personal":{}},"timestamp":`+
		fmt.Sprint(clock.Now().UnixMilli())+`}`))

	remote := newFakeRemote()
	_, err := remote.Set(ctx, repository.PathWebsiteData, remoteDoc("remote"))
	require.NoError(t, err)

	got, source := newTestSession(cache, remote, clock).Load(ctx)
	assert.Equal(t, SourceRemote, source)
	assert.Equal(t, "remote", got.Personal.WebsiteTitle)

	raw, ok, _ := cache.Get(ctx, CacheKey)
	require.True(t, ok)
	assert.Contains(t, raw, `"websiteTitle":"remote"`)
}

func TestInvalidRemoteDocumentFallsBack(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	remote.nodes[repository.PathWebsiteData] = json.RawMessage(`{"personal":{}}`)

	_, source := newTestSession(localstore.NewMemory(), remote, newFakeClock()).Load(ctx)
	assert.Equal(t, SourceDefault, source)
}

func TestCommitVisibleStateNeverLags(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	remote := newFakeRemote()
	s := newTestSession(localstore.NewMemory(), remote, clock)
	s.Load(ctx)

	for i := 0; i < 6; i++ {
		remote.setOffline(i%2 == 1)

		doc, _ := s.Document()
		doc.Timeline = append(doc.Timeline, model.TimelineEntry{Title: fmt.Sprint("edit ", i)})
		err := s.Commit(ctx, doc)
		if i%2 == 1 {
			var cerr *CommitError
			require.ErrorAs(t, err, &cerr)
			assert.ErrorIs(t, err, errOffline)
			assert.Nil(t, cerr.CacheErr)
		} else {
			require.NoError(t, err)
		}

		current, source := s.Document()
		assert.Equal(t, SourceEdit, source)
		require.Len(t, current.Timeline, 5+i+1)
		for j := 0; j <= i; j++ {
			assert.Equal(t, fmt.Sprint("edit ", j), current.Timeline[5+j].Title)
		}
	}
}

func TestCommitCacheFailureStillPushesRemote(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := newTestSession(failingStorage{}, remote, newFakeClock())

	doc := remoteDoc("quota")
	err := s.Commit(ctx, doc)
	var cerr *CommitError
	require.ErrorAs(t, err, &cerr)
	assert.ErrorIs(t, cerr.CacheErr, errQuota)
	assert.NoError(t, cerr.RemoteErr)
	assert.Contains(t, err.Error(), "local cache")

	stored, err := model.Parse(remote.nodes[repository.PathWebsiteData])
	require.NoError(t, err)
	assert.Equal(t, "quota", stored.Personal.WebsiteTitle)
}

func TestCommitRejectsInvalidDocument(t *testing.T) {
	s := newTestSession(localstore.NewMemory(), newFakeRemote(), newFakeClock())
	doc := model.Default()
	doc.Quiz.Questions[0].Correct = 9

	err := s.Commit(context.Background(), doc)
	assert.ErrorIs(t, err, model.ErrInvalidDocument)
	current, _ := s.Document()
	assert.Equal(t, 2, current.Quiz.Questions[0].Correct)
}

func TestCommitDoesNotAliasCaller(t *testing.T) {
	s := newTestSession(localstore.NewMemory(), newFakeRemote(), newFakeClock())
	doc := remoteDoc("mine")
	require.NoError(t, s.Commit(context.Background(), doc))

	doc.Personal.WebsiteTitle = "mutated later"
	current, _ := s.Document()
	assert.Equal(t, "mine", current.Personal.WebsiteTitle)
}

func TestEdit(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(localstore.NewMemory(), newFakeRemote(), newFakeClock())

	err := s.Edit(ctx, func(doc *model.ContentDocument) error {
		return doc.ApplyItemEdit(model.ItemEditRequest{Section: model.SectionGallery, Action: model.ActionRemove, Index: 0})
	})
	require.NoError(t, err)
	current, _ := s.Document()
	assert.Len(t, current.Gallery, 5)

	boom := errors.New("boom")
	err = s.Edit(ctx, func(doc *model.ContentDocument) error {
		doc.Gallery = nil
		return boom
	})
	assert.ErrorIs(t, err, boom)
	current, _ = s.Document()
	assert.Len(t, current.Gallery, 5)
}

func TestImportExportRoundTrip(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	s := newTestSession(localstore.NewMemory(), remote, newFakeClock())
	s.Load(ctx)

	src := remoteDoc("imported")
	data, err := src.Export()
	require.NoError(t, err)
	require.NoError(t, s.Import(ctx, data))

	current, source := s.Document()
	assert.Equal(t, SourceImport, source)
	assert.Empty(t, cmp.Diff(src, current))

	exported, err := s.Export()
	require.NoError(t, err)
	assert.Equal(t, string(data), string(exported))

	stored, err := model.Parse(remote.nodes[repository.PathWebsiteData])
	require.NoError(t, err)
	assert.Equal(t, "imported", stored.Personal.WebsiteTitle)
}

func TestImportRejectsMalformed(t *testing.T) {
	ctx := context.Background()
	s := newTestSession(localstore.NewMemory(), newFakeRemote(), newFakeClock())
	require.NoError(t, s.Commit(ctx, remoteDoc("before")))
	before, _ := s.Document()

	var doc map[string]any
	data, _ := remoteDoc("after").Export()
	require.NoError(t, json.Unmarshal(data, &doc))
	delete(doc, "quiz")
	noQuiz, _ := json.Marshal(doc)

	err := s.Import(ctx, noQuiz)
	var ierr *ImportError
	require.ErrorAs(t, err, &ierr)
	assert.ErrorIs(t, err, model.ErrInvalidDocument)

	after, _ := s.Document()
	assert.Empty(t, cmp.Diff(before, after))
}

func TestRefresh(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	remote := newFakeRemote()
	_, err := remote.Set(ctx, repository.PathWebsiteData, remoteDoc("v1"))
	require.NoError(t, err)

	s := newTestSession(localstore.NewMemory(), remote, clock)
	s.Load(ctx)

	var seen []Source
	unsubscribe := s.Subscribe(func(doc *model.ContentDocument, source Source) {
		seen = append(seen, source)
	})

	changed, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	_, err = remote.Set(ctx, repository.PathWebsiteData, remoteDoc("v2"))
	require.NoError(t, err)
	changed, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.True(t, changed)

	current, source := s.Document()
	assert.Equal(t, SourceRefresh, source)
	assert.Equal(t, "v2", current.Personal.WebsiteTitle)
	assert.Equal(t, []Source{SourceRefresh}, seen)

	unsubscribe()
	_, err = remote.Set(ctx, repository.PathWebsiteData, remoteDoc("v3"))
	require.NoError(t, err)
	_, err = s.Refresh(ctx)
	require.NoError(t, err)
	assert.Len(t, seen, 1)

	remote.setOffline(true)
	_, err = s.Refresh(ctx)
	assert.ErrorIs(t, err, errOffline)
	current, _ = s.Document()
	assert.Equal(t, "v3", current.Personal.WebsiteTitle)
}

func TestCurrentReadsThroughWhenStale(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	remote := newFakeRemote()
	_, err := remote.Set(ctx, repository.PathWebsiteData, remoteDoc("v1"))
	require.NoError(t, err)

	s := newTestSession(localstore.NewMemory(), remote, clock)
	s.Load(ctx)
	_, err = remote.Set(ctx, repository.PathWebsiteData, remoteDoc("v2"))
	require.NoError(t, err)

	assert.Equal(t, "v1", s.Current(ctx).Personal.WebsiteTitle)
	clock.Advance(5 * time.Minute)
	assert.Equal(t, "v2", s.Current(ctx).Personal.WebsiteTitle)
}

func TestListenersGetCopies(t *testing.T) {
	s := newTestSession(localstore.NewMemory(), newFakeRemote(), newFakeClock())
	s.Subscribe(func(doc *model.ContentDocument, _ Source) {
		doc.Personal.WebsiteTitle = "listener scribble"
	})
	require.NoError(t, s.Commit(context.Background(), remoteDoc("clean")))

	current, _ := s.Document()
	assert.Equal(t, "clean", current.Personal.WebsiteTitle)
}

func TestReconnectTriggersOfflineSync(t *testing.T) {
	ctx := context.Background()
	remote := newFakeRemote()
	syncer := &recordingSyncer{}
	s := newTestSession(localstore.NewMemory(), remote, newFakeClock())
	s.SetOfflineSyncer(syncer)

	remote.setOffline(true)
	s.Load(ctx)
	assert.Zero(t, syncer.count())

	remote.setOffline(false)
	_, _ = s.Refresh(ctx)
	assert.Equal(t, 1, syncer.count())

	_, _ = s.Refresh(ctx)
	assert.Equal(t, 1, syncer.count())
}

func TestLocalEditSurvivesRemoteOutage(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	cache := localstore.NewMemory()
	remote := newFakeRemote()
	_, err := remote.Set(ctx, repository.PathWebsiteData, remoteDoc("remote v1"))
	require.NoError(t, err)

	queue := offline.NewQueue(localstore.NewMemory())
	s := NewSession(cache, remote, queue, Options{Now: clock.Now, RemoteTimeout: 50 * time.Millisecond})
	s.Load(ctx)

	remote.setOffline(true)
	var cerr *CommitError
	require.ErrorAs(t, s.Commit(ctx, remoteDoc("local edit")), &cerr)
	assert.ErrorIs(t, cerr.RemoteErr, errOffline)

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	require.Len(t, pending, 1)
	assert.Equal(t, offline.KindSet, pending[0].Kind)
	assert.Equal(t, repository.PathWebsiteData, pending[0].Path)

	// The remote store comes back still holding the old document.
	remote.setOffline(false)
	changed, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed)

	current, _ := s.Document()
	assert.Equal(t, "local edit", current.Personal.WebsiteTitle)
	stored, err := model.Parse(remote.nodes[repository.PathWebsiteData])
	require.NoError(t, err)
	assert.Equal(t, "local edit", stored.Personal.WebsiteTitle)

	pending, err = queue.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)

	next, source := newTestSession(cache, remote, clock).Load(ctx)
	assert.Equal(t, SourceCache, source)
	assert.Equal(t, "local edit", next.Personal.WebsiteTitle)
}

func TestPendingEditSurvivesRestart(t *testing.T) {
	ctx := context.Background()
	clock := newFakeClock()
	cache := localstore.NewMemory()
	queue := offline.NewQueue(localstore.NewMemory())
	remote := newFakeRemote()
	_, err := remote.Set(ctx, repository.PathWebsiteData, remoteDoc("remote v1"))
	require.NoError(t, err)

	opts := Options{Now: clock.Now, RemoteTimeout: 50 * time.Millisecond}
	NewSession(cache, remote, queue, opts).Load(ctx)
	remote.setOffline(true)
	require.Error(t, NewSession(cache, remote, queue, opts).Commit(ctx, remoteDoc("offline edit")))

	// Long past the freshness window the unsynced edit still beats the remote copy.
	clock.Advance(time.Hour)
	remote.setOffline(false)
	s := NewSession(cache, remote, queue, opts)
	doc, source := s.Load(ctx)
	assert.Equal(t, SourceCache, source)
	assert.Equal(t, "offline edit", doc.Personal.WebsiteTitle)

	done, remaining, err := queue.Drain(ctx, offline.StoreReplayer(remote))
	require.NoError(t, err)
	assert.Equal(t, 1, done)
	assert.Zero(t, remaining)
	stored, err := model.Parse(remote.nodes[repository.PathWebsiteData])
	require.NoError(t, err)
	assert.Equal(t, "offline edit", stored.Personal.WebsiteTitle)

	sets := remote.sets
	changed, err := s.Refresh(ctx)
	require.NoError(t, err)
	assert.False(t, changed)
	assert.Equal(t, sets, remote.sets, "remote already matches, nothing to push")

	raw, ok, err := cache.Get(ctx, CacheKey)
	require.NoError(t, err)
	require.True(t, ok)
	assert.NotContains(t, raw, `"pending":true`)
}

func TestSuccessfulCommitDropsQueuedWrite(t *testing.T) {
	ctx := context.Background()
	queue := offline.NewQueue(localstore.NewMemory())
	remote := newFakeRemote()
	s := NewSession(localstore.NewMemory(), remote, queue, Options{Now: newFakeClock().Now, RemoteTimeout: 50 * time.Millisecond})
	s.Load(ctx)

	remote.setOffline(true)
	require.Error(t, s.Commit(ctx, remoteDoc("stale")))
	remote.setOffline(false)
	require.NoError(t, s.Commit(ctx, remoteDoc("newest")))

	pending, err := queue.Pending(ctx)
	require.NoError(t, err)
	assert.Empty(t, pending)
	stored, err := model.Parse(remote.nodes[repository.PathWebsiteData])
	require.NoError(t, err)
	assert.Equal(t, "newest", stored.Personal.WebsiteTitle)
}
