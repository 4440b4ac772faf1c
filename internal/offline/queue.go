package offline

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"birthdaysite/internal/content/localstore"
	"birthdaysite/internal/content/repository"
	"birthdaysite/pkg/logger"
)

// StorageKey is the local-storage key holding the queue.
const StorageKey = "offlineActions"

// Action kinds.
const (
	KindPush = "push"
	KindSet  = "set"
)

// Action is a remote write recorded while the remote store was unreachable.
type Action struct {
	Kind       string          `json:"kind"`
	Path       string          `json:"path"`
	Payload    json.RawMessage `json:"payload"`
	RecordedAt int64           `json:"recordedAt"`
}

// ReplayFunc performs one recorded action against the remote store.
type ReplayFunc func(ctx context.Context, action Action) error

// StoreReplayer replays push and set actions against a remote store.
func StoreReplayer(store repository.Store) ReplayFunc {
	return func(ctx context.Context, action Action) error {
		switch action.Kind {
		case KindPush:
			_, err := store.Push(ctx, action.Path, action.Payload)
			return err
		case KindSet:
			_, err := store.Set(ctx, action.Path, action.Payload)
			return err
		default:
			return fmt.Errorf("unknown offline action kind %q", action.Kind)
		}
	}
}

// Queue is an append-only list of offline actions persisted in local storage.
type Queue struct {
	mu      sync.Mutex
	storage localstore.Storage
	now     func() time.Time
}

func NewQueue(storage localstore.Storage) *Queue {
	return &Queue{storage: storage, now: time.Now}
}

// Record appends an action. A set replaces any set already queued for the
// same path, since only the last one matters on replay.
func (q *Queue) Record(ctx context.Context, kind, path string, payload any) error {
	raw, err := json.Marshal(payload)
	if err != nil {
		return fmt.Errorf("encode offline action: %w", err)
	}

	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.load(ctx)
	if err != nil {
		return err
	}
	if kind == KindSet {
		actions = without(actions, kind, path)
	}
	actions = append(actions, Action{Kind: kind, Path: path, Payload: raw, RecordedAt: q.now().UnixMilli()})
	return q.save(ctx, actions)
}

// Discard drops the queued actions of kind on path. It is used when a newer
// write already reached the remote store.
func (q *Queue) Discard(ctx context.Context, kind, path string) error {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.load(ctx)
	if err != nil || len(actions) == 0 {
		return err
	}
	kept := without(actions, kind, path)
	if len(kept) == len(actions) {
		return nil
	}
	if len(kept) == 0 {
		return q.storage.Remove(ctx, StorageKey)
	}
	return q.save(ctx, kept)
}

func without(actions []Action, kind, path string) []Action {
	kept := actions[:0:0]
	for _, a := range actions {
		if a.Kind != kind || a.Path != path {
			kept = append(kept, a)
		}
	}
	return kept
}

// Pending returns the queued actions in recording order.
func (q *Queue) Pending(ctx context.Context) ([]Action, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	return q.load(ctx)
}

// Drain replays every queued action in order. Succeeded actions are dropped;
// failed ones stay queued for the next sync. It returns how many actions were
// replayed and how many remain.
func (q *Queue) Drain(ctx context.Context, replay ReplayFunc) (done, remaining int, err error) {
	q.mu.Lock()
	defer q.mu.Unlock()

	actions, err := q.load(ctx)
	if err != nil || len(actions) == 0 {
		return 0, 0, err
	}
	logger.Sugar.Infof("Syncing %d offline actions", len(actions))

	var failed []Action
	for i, action := range actions {
		if ctx.Err() != nil {
			failed = append(failed, actions[i:]...)
			break
		}
		if err := replay(ctx, action); err != nil {
			logger.Sugar.Warnf("Offline action %s on %s failed, keeping it: %v", action.Kind, action.Path, err)
			failed = append(failed, action)
			continue
		}
		done++
	}

	if len(failed) == 0 {
		return done, 0, q.storage.Remove(ctx, StorageKey)
	}
	return done, len(failed), q.save(ctx, failed)
}

// load treats an unreadable queue as empty, dropping the corrupted value.
func (q *Queue) load(ctx context.Context) ([]Action, error) {
	raw, ok, err := q.storage.Get(ctx, StorageKey)
	if err != nil || !ok {
		return nil, err
	}
	var actions []Action
	if err := json.Unmarshal([]byte(raw), &actions); err != nil {
		logger.Sugar.Errorf("Discarding corrupted offline queue: %v", err)
		return nil, q.storage.Remove(ctx, StorageKey)
	}
	return actions, nil
}

func (q *Queue) save(ctx context.Context, actions []Action) error {
	raw, err := json.Marshal(actions)
	if err != nil {
		return err
	}
	return q.storage.Set(ctx, StorageKey, string(raw))
}
