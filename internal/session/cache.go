package session

import (
	"sync"

	"go.uber.org/zap"

	"github.com/NickPeut/BasePlanFactor/internal/store"
)

// Cache keeps one in-memory transcript mirror per scope and writes every
// mutation through to the key-value store. The persistence layer has no
// append primitive, so each append rewrites the whole transcript.
type Cache struct {
	mu          sync.Mutex
	kv          store.KV
	log         *zap.Logger
	transcripts map[string][]Message
}

// NewCache creates a session cache over kv. A nil logger defaults to a nop.
func NewCache(kv store.KV, log *zap.Logger) *Cache {
	if log == nil {
		log = zap.NewNop()
	}
	return &Cache{
		kv:          kv,
		log:         log,
		transcripts: make(map[string][]Message),
	}
}

// Transcript returns the cached transcript for scope. ok is false when
// nothing is persisted, which means the dialog must start fresh.
func (c *Cache) Transcript(scope Scope) ([]Message, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, ok := c.load(scope)
	if !ok {
		return nil, false
	}
	out := make([]Message, len(msgs))
	copy(out, msgs)
	return out, true
}

// Append adds one entry to the scope's transcript and persists the result.
func (c *Cache) Append(scope Scope, m Message) {
	c.mu.Lock()
	defer c.mu.Unlock()

	msgs, _ := c.load(scope)
	msgs = append(msgs, m)
	c.transcripts[scope.Token()] = msgs

	if err := store.SetJSON(c.kv, store.TranscriptKey(scope.Token()), msgs); err != nil {
		c.log.Warn("failed to persist transcript",
			zap.String("scope", scope.Token()), zap.Error(err))
	}
}

// Clear removes the transcript, the derived snapshot and the active marker
// for scope. Used on explicit reset and on scheme deletion.
func (c *Cache) Clear(scope Scope) {
	c.mu.Lock()
	defer c.mu.Unlock()

	token := scope.Token()
	delete(c.transcripts, token)
	for _, key := range []string{
		store.TranscriptKey(token),
		store.SnapshotKey(token),
		store.ActiveFlagKey(token),
	} {
		if err := c.kv.Remove(key); err != nil {
			c.log.Warn("failed to clear session key", zap.String("key", key), zap.Error(err))
		}
	}
}

// ApplyPatch merges one server response onto the persisted snapshot and
// returns the merged result. Fields the response did not carry are
// inherited, never nulled.
func (c *Cache) ApplyPatch(scope Scope, patch Patch) Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap := Snapshot{}
	if prev, ok := store.GetJSON[Snapshot](c.kv, store.SnapshotKey(scope.Token())); ok {
		snap = *prev
	}

	if patch.Tree != nil {
		snap.Tree = patch.Tree
	}
	if patch.Scores != nil {
		snap.Scores = patch.Scores
	}

	if err := store.SetJSON(c.kv, store.SnapshotKey(scope.Token()), snap); err != nil {
		c.log.Warn("failed to persist snapshot",
			zap.String("scope", scope.Token()), zap.Error(err))
	}
	return snap
}

// Snapshot returns the persisted derived view-state for scope.
func (c *Cache) Snapshot(scope Scope) (Snapshot, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	snap, ok := store.GetJSON[Snapshot](c.kv, store.SnapshotKey(scope.Token()))
	if !ok {
		return Snapshot{}, false
	}
	return *snap, true
}

// MarkActive records whether scope has a live session.
func (c *Cache) MarkActive(scope Scope, active bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	key := store.ActiveFlagKey(scope.Token())
	var err error
	if active {
		err = c.kv.Set(key, "1")
	} else {
		err = c.kv.Remove(key)
	}
	if err != nil {
		c.log.Warn("failed to update active flag", zap.String("key", key), zap.Error(err))
	}
}

// IsActive reports whether scope has a live session marker.
func (c *Cache) IsActive(scope Scope) bool {
	c.mu.Lock()
	defer c.mu.Unlock()

	v, ok := c.kv.Get(store.ActiveFlagKey(scope.Token()))
	return ok && v == "1"
}

// load returns the in-memory transcript for scope, reading it through from
// storage on first access. Callers must hold c.mu.
func (c *Cache) load(scope Scope) ([]Message, bool) {
	token := scope.Token()
	if msgs, ok := c.transcripts[token]; ok {
		return msgs, true
	}
	msgs, ok := store.GetJSON[[]Message](c.kv, store.TranscriptKey(token))
	if !ok {
		return nil, false
	}
	c.transcripts[token] = *msgs
	return *msgs, true
}
