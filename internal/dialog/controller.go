package dialog

import (
	"context"
	"strings"
	"sync"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/NickPeut/BasePlanFactor/internal/api"
	"github.com/NickPeut/BasePlanFactor/internal/session"
	"github.com/NickPeut/BasePlanFactor/pkg/projection"
)

// Controller orchestrates start/answer round-trips, applies responses to the
// session cache and projects the result for the renderer.
//
// Every round-trip is tagged; a response may only be applied while its tag is
// still the controller's current one. Selecting another scheme or submitting
// a newer answer replaces the tag, so a late response from a superseded
// round-trip is discarded instead of corrupting the visible state.
type Controller struct {
	mu       sync.Mutex
	svc      api.Service
	sessions *session.Cache
	renderer Renderer
	log      *zap.Logger

	state    State
	scope    session.Scope
	inflight string

	// Latest applied snapshot plus the factor display toggles.
	tree   []api.TreeNode
	scores []api.ScoreRow
	active map[string]bool
}

// NewController creates a controller. A nil logger defaults to a nop.
func NewController(svc api.Service, sessions *session.Cache, renderer Renderer, log *zap.Logger) *Controller {
	if log == nil {
		log = zap.NewNop()
	}
	return &Controller{
		svc:      svc,
		sessions: sessions,
		renderer: renderer,
		log:      log,
		state:    StateNoScheme,
		active:   make(map[string]bool),
	}
}

// State returns the current machine state.
func (c *Controller) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}

// Scope returns the scope currently in focus.
func (c *Controller) Scope() session.Scope {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.scope
}

// SelectScheme focuses a scheme: a cached session is replayed without any
// network call, otherwise a remote dialog is started for it.
func (c *Controller) SelectScheme(ctx context.Context, schemeID int64) error {
	return c.selectScope(ctx, session.ScopeFor(schemeID))
}

// StartUnscoped starts a dialog that is not bound to a scheme.
func (c *Controller) StartUnscoped(ctx context.Context) error {
	return c.selectScope(ctx, session.Unscoped)
}

func (c *Controller) selectScope(ctx context.Context, scope session.Scope) error {
	tag := uuid.NewString()

	c.mu.Lock()
	c.scope = scope
	c.state = StateLoading
	c.inflight = tag
	c.active = make(map[string]bool)

	msgs, ok := c.sessions.Transcript(scope)
	if ok && len(msgs) > 0 {
		defer c.mu.Unlock()
		c.resumeLocked(scope, msgs)
		return nil
	}

	c.renderer.ResetTranscript(nil)
	c.renderer.RenderGraph(nil, nil)
	c.renderer.SetInputMode(InputDisabled)
	c.mu.Unlock()

	var schemeID *int64
	if id, hasScheme := scope.SchemeID(); hasScheme {
		schemeID = &id
	}
	resp, err := c.svc.StartDialog(ctx, schemeID)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != tag {
		c.log.Debug("discarding stale start response", zap.String("scope", scope.Token()))
		return nil
	}
	if err != nil {
		c.renderer.AppendMessage(session.Message{Text: err.Error(), Sender: session.SenderBot})
		c.state = StateNoScheme
		c.renderer.SetInputMode(InputDisabled)
		return err
	}

	c.applyLocked(scope, resp)
	return nil
}

// resumeLocked replays a cached session: every transcript entry in order,
// then the last persisted tree/score snapshot, then the gating state implied
// by the last question. No network involved.
func (c *Controller) resumeLocked(scope session.Scope, msgs []session.Message) {
	c.renderer.ResetTranscript(msgs)

	snap, _ := c.sessions.Snapshot(scope)
	c.tree = snap.Tree
	c.scores = snap.Scores
	c.projectLocked()

	lastQuestion := ""
	for i := len(msgs) - 1; i >= 0; i-- {
		if msgs[i].Sender == session.SenderBot {
			lastQuestion = msgs[i].Text
			break
		}
	}
	c.gateLocked(lastQuestion)

	c.log.Debug("session resumed from cache",
		zap.String("scope", scope.Token()), zap.Int("messages", len(msgs)))
}

// SubmitAnswer sends the user's text. From a yes/no question only the two
// fixed answers are accepted.
func (c *Controller) SubmitAnswer(ctx context.Context, text string) error {
	text = strings.TrimSpace(text)

	c.mu.Lock()
	switch c.state {
	case StateAwaitingAnswer:
	case StateAwaitingYesNo:
		if text != AnswerYes && text != AnswerNo {
			c.mu.Unlock()
			return ErrYesNoOnly
		}
	default:
		c.mu.Unlock()
		return ErrNotAwaitingAnswer
	}
	c.mu.Unlock()

	if text == "" {
		return ErrEmptyInput
	}
	return c.submit(ctx, text, text)
}

// Yes submits the fixed positive answer to a yes/no question.
func (c *Controller) Yes(ctx context.Context) error {
	return c.submitFixed(ctx, AnswerYesDisplay, AnswerYes)
}

// No submits the fixed negative answer to a yes/no question.
func (c *Controller) No(ctx context.Context) error {
	return c.submitFixed(ctx, AnswerNoDisplay, AnswerNo)
}

func (c *Controller) submitFixed(ctx context.Context, display, wire string) error {
	c.mu.Lock()
	if c.state != StateAwaitingYesNo {
		c.mu.Unlock()
		return ErrNotAwaitingAnswer
	}
	c.mu.Unlock()
	return c.submit(ctx, display, wire)
}

// submit appends the user's entry, performs the answer round-trip and
// applies the response unless it has gone stale.
func (c *Controller) submit(ctx context.Context, display, wire string) error {
	tag := uuid.NewString()

	c.mu.Lock()
	prev := c.state
	scope := c.scope
	c.state = StateLoading
	c.inflight = tag

	userMsg := session.Message{Text: display, Sender: session.SenderUser}
	c.sessions.Append(scope, userMsg)
	c.renderer.AppendMessage(userMsg)
	c.renderer.SetInputMode(InputDisabled)
	c.mu.Unlock()

	resp, err := c.svc.SubmitAnswer(ctx, wire)

	c.mu.Lock()
	defer c.mu.Unlock()
	if c.inflight != tag {
		c.log.Debug("discarding stale answer response", zap.String("scope", scope.Token()))
		return nil
	}
	if err != nil {
		// One visible chat message; the operation is otherwise abandoned and
		// the previous gating state comes back.
		c.renderer.AppendMessage(session.Message{Text: err.Error(), Sender: session.SenderBot})
		c.state = prev
		c.renderer.SetInputMode(modeFor(prev))
		return err
	}

	c.applyLocked(scope, resp)
	return nil
}

// Reset clears the focused scope's session and starts it over remotely.
func (c *Controller) Reset(ctx context.Context) error {
	c.mu.Lock()
	scope := c.scope
	c.mu.Unlock()

	c.sessions.Clear(scope)
	return c.selectScope(ctx, scope)
}

// ToggleFactor switches one factor's display toggle and re-renders the
// projected views. Pure UI selection state; not persisted.
func (c *Controller) ToggleFactor(name string, on bool) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if on {
		c.active[name] = true
	} else {
		delete(c.active, name)
	}
	c.projectLocked()
}

// applyLocked folds one successful response into the session cache, then
// re-projects and re-gates. Cache writes happen before any rendering so a
// reload right after an answer never loses the latest view.
func (c *Controller) applyLocked(scope session.Scope, resp *api.DialogResponse) {
	if resp.Message != "" {
		m := session.Message{Text: resp.Message, Sender: session.SenderBot}
		c.sessions.Append(scope, m)
		c.renderer.AppendMessage(m)
	}

	q := session.Message{Text: resp.Question, Sender: session.SenderBot}
	c.sessions.Append(scope, q)
	c.sessions.MarkActive(scope, true)
	snap := c.sessions.ApplyPatch(scope, session.Patch{
		Tree:   resp.Tree,
		Scores: resp.OSEResults,
	})

	c.tree = snap.Tree
	c.scores = snap.Scores

	c.renderer.AppendMessage(q)
	c.projectLocked()
	c.gateLocked(resp.Question)
}

// projectLocked renders the graph and score views from the current snapshot.
func (c *Controller) projectLocked() {
	nodes, edges := projection.ToGraphElements(c.tree)
	idx := projection.BuildIndex(c.scores, c.active)
	for i := range nodes {
		nodes[i].Label = projection.LabelFor(nodes[i].Label, idx)
	}
	c.renderer.RenderGraph(nodes, edges)
	c.renderer.RenderScores(projection.Legend(idx), projection.ToScoreTable(c.scores))
}

// gateLocked derives the next input state from a question's text.
func (c *Controller) gateLocked(question string) {
	if IsYesNo(question) {
		c.state = StateAwaitingYesNo
	} else {
		c.state = StateAwaitingAnswer
	}
	c.renderer.SetInputMode(modeFor(c.state))
}

func modeFor(s State) InputMode {
	switch s {
	case StateAwaitingAnswer:
		return InputFree
	case StateAwaitingYesNo:
		return InputYesNo
	default:
		return InputDisabled
	}
}
