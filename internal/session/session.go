// Package session is the per-scheme durable record of a dialog: the chat
// transcript plus the last tree/score snapshot derived from it. The dialog
// controller is the only writer; renderers only ever read.
package session

import (
	"strconv"

	"github.com/NickPeut/BasePlanFactor/internal/api"
	"github.com/NickPeut/BasePlanFactor/internal/store"
)

// Sender values for transcript entries. "bot" is what the web UI always
// called the system side.
const (
	SenderUser = "user"
	SenderBot  = "bot"
)

// Message is one transcript entry.
type Message struct {
	Text   string `json:"text"`
	Sender string `json:"sender"`
}

// Scope identifies whose session a persisted entry belongs to: a concrete
// scheme, or the unscoped dialog. The zero Scope is unscoped.
type Scope struct {
	id int64
	ok bool
}

// Unscoped is the scope of a dialog started without a scheme.
var Unscoped = Scope{}

// ScopeFor returns the scope of one scheme.
func ScopeFor(schemeID int64) Scope {
	return Scope{id: schemeID, ok: true}
}

// SchemeID reports the scheme this scope belongs to, if any.
func (s Scope) SchemeID() (int64, bool) {
	return s.id, s.ok
}

// Token is the storage-key token for this scope.
func (s Scope) Token() string {
	if !s.ok {
		return store.NullToken
	}
	return strconv.FormatInt(s.id, 10)
}

// Snapshot is the last known derived view-state for a scope, persisted so a
// reload lands exactly where the dialog left off.
type Snapshot struct {
	Tree   []api.TreeNode `json:"tree,omitempty"`
	Scores []api.ScoreRow `json:"ose_results,omitempty"`
}

// Patch is the tree/score portion of one server response. A nil field means
// the response did not carry it and the persisted value is inherited; a
// non-nil (even empty) field replaces it.
type Patch struct {
	Tree   []api.TreeNode
	Scores []api.ScoreRow
}
