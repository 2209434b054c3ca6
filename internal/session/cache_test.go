package session

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickPeut/BasePlanFactor/internal/api"
	"github.com/NickPeut/BasePlanFactor/internal/store"
)

func f64(v float64) *float64 { return &v }

func i64(v int64) *int64 { return &v }

func TestTranscriptRoundTrip(t *testing.T) {
	kv := store.NewMemKV()
	scope := ScopeFor(3)

	c := NewCache(kv, nil)
	_, ok := c.Transcript(scope)
	assert.False(t, ok, "fresh scope must read as no cached session")

	c.Append(scope, Message{Text: "Введите главную цель:", Sender: SenderBot})
	c.Append(scope, Message{Text: "Повысить качество", Sender: SenderUser})
	c.Append(scope, Message{Text: "Добавить подцель? (да/нет)", Sender: SenderBot})

	// A second cache over the same storage must reproduce the exact order.
	c2 := NewCache(kv, nil)
	msgs, ok := c2.Transcript(scope)
	require.True(t, ok)
	require.Len(t, msgs, 3)
	assert.Equal(t, SenderBot, msgs[0].Sender)
	assert.Equal(t, "Повысить качество", msgs[1].Text)
	assert.Equal(t, "Добавить подцель? (да/нет)", msgs[2].Text)
}

func TestTranscriptsAreScopedIndependently(t *testing.T) {
	kv := store.NewMemKV()
	c := NewCache(kv, nil)

	c.Append(ScopeFor(1), Message{Text: "a", Sender: SenderUser})
	c.Append(ScopeFor(2), Message{Text: "b", Sender: SenderUser})
	c.Append(Unscoped, Message{Text: "c", Sender: SenderUser})

	one, ok := c.Transcript(ScopeFor(1))
	require.True(t, ok)
	require.Len(t, one, 1)
	assert.Equal(t, "a", one[0].Text)

	free, ok := c.Transcript(Unscoped)
	require.True(t, ok)
	assert.Equal(t, "c", free[0].Text)
}

func TestApplyPatchMergeByPresence(t *testing.T) {
	kv := store.NewMemKV()
	c := NewCache(kv, nil)
	scope := ScopeFor(5)

	tree := []api.TreeNode{
		{ID: 1, Name: "Главная цель"},
		{ID: 2, Name: "Подцель", Parent: i64(1)},
	}
	scores := []api.ScoreRow{
		{Factor: "бюджет", Goal: "Главная цель", H: f64(0.4), P: f64(0.3), Q: f64(0.9)},
	}

	snap := c.ApplyPatch(scope, Patch{Tree: tree, Scores: scores})
	require.Len(t, snap.Tree, 2)
	require.Len(t, snap.Scores, 1)

	// A response carrying only a question must not erase either field.
	snap = c.ApplyPatch(scope, Patch{})
	assert.Len(t, snap.Tree, 2, "missing tree is inherited")
	assert.Len(t, snap.Scores, 1, "missing scores are inherited")

	// A present-but-empty field replaces.
	snap = c.ApplyPatch(scope, Patch{Tree: []api.TreeNode{}})
	assert.Empty(t, snap.Tree)
	assert.Len(t, snap.Scores, 1)

	// The merge result is what a reload sees.
	c2 := NewCache(kv, nil)
	persisted, ok := c2.Snapshot(scope)
	require.True(t, ok)
	assert.Empty(t, persisted.Tree)
	require.Len(t, persisted.Scores, 1)
	assert.Equal(t, "бюджет", persisted.Scores[0].Factor)
}

func TestClearRemovesEverything(t *testing.T) {
	kv := store.NewMemKV()
	c := NewCache(kv, nil)
	scope := ScopeFor(8)

	c.Append(scope, Message{Text: "x", Sender: SenderUser})
	c.ApplyPatch(scope, Patch{Tree: []api.TreeNode{{ID: 1, Name: "цель"}}})
	c.MarkActive(scope, true)

	c.Clear(scope)

	_, ok := c.Transcript(scope)
	assert.False(t, ok)
	_, ok = c.Snapshot(scope)
	assert.False(t, ok)
	assert.False(t, c.IsActive(scope))

	// Other scopes are untouched by a clear.
	other := ScopeFor(9)
	c.Append(other, Message{Text: "y", Sender: SenderUser})
	c.Clear(scope)
	msgs, ok := c.Transcript(other)
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestCorruptTranscriptReadsAsMiss(t *testing.T) {
	kv := store.NewMemKV()
	require.NoError(t, kv.Set(store.TranscriptKey("4"), "{{{"))

	c := NewCache(kv, nil)
	_, ok := c.Transcript(ScopeFor(4))
	assert.False(t, ok, "corrupt persisted transcript must be treated as absent")

	// And the scope stays usable afterwards.
	c.Append(ScopeFor(4), Message{Text: "ok", Sender: SenderUser})
	msgs, ok := c.Transcript(ScopeFor(4))
	require.True(t, ok)
	assert.Len(t, msgs, 1)
}

func TestMarkActiveFlag(t *testing.T) {
	kv := store.NewMemKV()
	c := NewCache(kv, nil)

	assert.False(t, c.IsActive(ScopeFor(2)))
	c.MarkActive(ScopeFor(2), true)
	assert.True(t, c.IsActive(ScopeFor(2)))
	c.MarkActive(ScopeFor(2), false)
	assert.False(t, c.IsActive(ScopeFor(2)))
}
