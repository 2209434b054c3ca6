package dialog

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/NickPeut/BasePlanFactor/internal/api"
	"github.com/NickPeut/BasePlanFactor/internal/session"
	"github.com/NickPeut/BasePlanFactor/internal/store"
	"github.com/NickPeut/BasePlanFactor/pkg/projection"
)

func f64(v float64) *float64 { return &v }

func i64(v int64) *int64 { return &v }

// scriptedService scripts the remote operations per test.
type scriptedService struct {
	startFn  func(ctx context.Context, schemeID *int64) (*api.DialogResponse, error)
	answerFn func(ctx context.Context, text string) (*api.DialogResponse, error)

	mu          sync.Mutex
	startCalls  int
	answerCalls int
	answers     []string
}

func (s *scriptedService) ListSchemes(ctx context.Context) ([]api.Scheme, error) {
	return nil, nil
}

func (s *scriptedService) CreateScheme(ctx context.Context, name string) (*api.Scheme, error) {
	return nil, errors.New("not scripted")
}

func (s *scriptedService) DeleteScheme(ctx context.Context, id int64) error {
	return errors.New("not scripted")
}

func (s *scriptedService) StartDialog(ctx context.Context, schemeID *int64) (*api.DialogResponse, error) {
	s.mu.Lock()
	s.startCalls++
	s.mu.Unlock()
	return s.startFn(ctx, schemeID)
}

func (s *scriptedService) SubmitAnswer(ctx context.Context, text string) (*api.DialogResponse, error) {
	s.mu.Lock()
	s.answerCalls++
	s.answers = append(s.answers, text)
	s.mu.Unlock()
	return s.answerFn(ctx, text)
}

var _ api.Service = (*scriptedService)(nil)

// recordingRenderer captures everything the controller pushes at the UI.
type recordingRenderer struct {
	mu         sync.Mutex
	transcript []session.Message
	nodes      []projection.GraphNode
	edges      []projection.GraphEdge
	legend     []projection.LegendEntry
	table      []projection.TableRow
	mode       InputMode
}

func (r *recordingRenderer) AppendMessage(m session.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript = append(r.transcript, m)
}

func (r *recordingRenderer) ResetTranscript(msgs []session.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.transcript = append([]session.Message(nil), msgs...)
}

func (r *recordingRenderer) RenderGraph(nodes []projection.GraphNode, edges []projection.GraphEdge) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.nodes, r.edges = nodes, edges
}

func (r *recordingRenderer) RenderScores(legend []projection.LegendEntry, rows []projection.TableRow) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.legend, r.table = legend, rows
}

func (r *recordingRenderer) SetInputMode(mode InputMode) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.mode = mode
}

func (r *recordingRenderer) snapshot() recordingRenderer {
	r.mu.Lock()
	defer r.mu.Unlock()
	return recordingRenderer{
		transcript: append([]session.Message(nil), r.transcript...),
		nodes:      r.nodes,
		edges:      r.edges,
		legend:     r.legend,
		table:      r.table,
		mode:       r.mode,
	}
}

func startResponse(question string) func(context.Context, *int64) (*api.DialogResponse, error) {
	return func(context.Context, *int64) (*api.DialogResponse, error) {
		return &api.DialogResponse{
			Phase:      "adpacf",
			State:      "ask_root",
			Question:   question,
			Tree:       []api.TreeNode{},
			OSEResults: []api.ScoreRow{},
		}, nil
	}
}

func newTestController(svc api.Service) (*Controller, *session.Cache, *recordingRenderer) {
	sessions := session.NewCache(store.NewMemKV(), nil)
	renderer := &recordingRenderer{}
	return NewController(svc, sessions, renderer, nil), sessions, renderer
}

func TestIsYesNo(t *testing.T) {
	assert.True(t, IsYesNo("Продолжить? (да/нет)"))
	assert.False(t, IsYesNo("Введите значение"))
	assert.False(t, IsYesNo(""))
}

func TestSelectSchemeStartsFreshDialog(t *testing.T) {
	svc := &scriptedService{startFn: startResponse("Введите главную цель:")}
	c, sessions, renderer := newTestController(svc)

	require.NoError(t, c.SelectScheme(context.Background(), 4))

	assert.Equal(t, 1, svc.startCalls)
	assert.Equal(t, StateAwaitingAnswer, c.State())

	got := renderer.snapshot()
	require.Len(t, got.transcript, 1)
	assert.Equal(t, "Введите главную цель:", got.transcript[0].Text)
	assert.Equal(t, session.SenderBot, got.transcript[0].Sender)
	assert.Equal(t, InputFree, got.mode)

	// The question is durable before anything renders.
	msgs, ok := sessions.Transcript(session.ScopeFor(4))
	require.True(t, ok)
	require.Len(t, msgs, 1)
	assert.True(t, sessions.IsActive(session.ScopeFor(4)))
}

func TestSelectSchemeResumesWithoutNetwork(t *testing.T) {
	svc := &scriptedService{startFn: startResponse("unused")}
	c, sessions, renderer := newTestController(svc)

	scope := session.ScopeFor(7)
	sessions.Append(scope, session.Message{Text: "Введите главную цель:", Sender: session.SenderBot})
	sessions.Append(scope, session.Message{Text: "Рост продаж", Sender: session.SenderUser})
	sessions.Append(scope, session.Message{Text: "Добавить подцель? (да/нет)", Sender: session.SenderBot})
	sessions.ApplyPatch(scope, session.Patch{
		Tree: []api.TreeNode{{ID: 1, Name: "Рост продаж"}},
	})

	require.NoError(t, c.SelectScheme(context.Background(), 7))

	assert.Zero(t, svc.startCalls, "resume must not touch the network")
	assert.Equal(t, StateAwaitingYesNo, c.State())

	got := renderer.snapshot()
	require.Len(t, got.transcript, 3)
	assert.Equal(t, "Рост продаж", got.transcript[1].Text)
	assert.Equal(t, InputYesNo, got.mode)
	require.Len(t, got.nodes, 1)
	assert.Equal(t, "Рост продаж", got.nodes[0].Label)
}

func TestSubmitAnswerRoundTrip(t *testing.T) {
	svc := &scriptedService{
		startFn: startResponse("Введите главную цель:"),
		answerFn: func(ctx context.Context, text string) (*api.DialogResponse, error) {
			return &api.DialogResponse{
				Question: "Добавить подцель для 'Рост продаж'? (да/нет)",
				Tree:     []api.TreeNode{{ID: 1, Name: "Рост продаж"}},
			}, nil
		},
	}
	c, sessions, renderer := newTestController(svc)
	ctx := context.Background()

	require.NoError(t, c.SelectScheme(ctx, 2))
	require.NoError(t, c.SubmitAnswer(ctx, "Рост продаж"))

	assert.Equal(t, []string{"Рост продаж"}, svc.answers)
	assert.Equal(t, StateAwaitingYesNo, c.State())

	got := renderer.snapshot()
	require.Len(t, got.transcript, 3)
	assert.Equal(t, session.SenderUser, got.transcript[1].Sender)
	require.Len(t, got.nodes, 1)

	// Transcript and snapshot both persisted for a later reload.
	msgs, ok := sessions.Transcript(session.ScopeFor(2))
	require.True(t, ok)
	assert.Len(t, msgs, 3)
	snap, ok := sessions.Snapshot(session.ScopeFor(2))
	require.True(t, ok)
	assert.Len(t, snap.Tree, 1)
}

func TestSubmitAnswerEmptyIsLocalReject(t *testing.T) {
	svc := &scriptedService{startFn: startResponse("Введите главную цель:")}
	c, _, _ := newTestController(svc)
	ctx := context.Background()

	require.NoError(t, c.SelectScheme(ctx, 1))
	err := c.SubmitAnswer(ctx, "   ")
	require.ErrorIs(t, err, ErrEmptyInput)
	assert.Zero(t, svc.answerCalls, "blank answers never reach the network")
	assert.Equal(t, StateAwaitingAnswer, c.State())
}

func TestSubmitAnswerInvalidState(t *testing.T) {
	svc := &scriptedService{}
	c, _, _ := newTestController(svc)

	err := c.SubmitAnswer(context.Background(), "привет")
	require.ErrorIs(t, err, ErrNotAwaitingAnswer)
}

func TestYesNoGatingRestrictsInput(t *testing.T) {
	svc := &scriptedService{
		startFn: startResponse("Добавить подцель? (да/нет)"),
		answerFn: func(ctx context.Context, text string) (*api.DialogResponse, error) {
			return &api.DialogResponse{Question: "Введите название подцели:"}, nil
		},
	}
	c, sessions, _ := newTestController(svc)
	ctx := context.Background()

	require.NoError(t, c.SelectScheme(ctx, 3))
	require.Equal(t, StateAwaitingYesNo, c.State())

	err := c.SubmitAnswer(ctx, "может быть")
	require.ErrorIs(t, err, ErrYesNoOnly)
	assert.Zero(t, svc.answerCalls)

	// The fixed action sends the wire form but records the display form.
	require.NoError(t, c.Yes(ctx))
	assert.Equal(t, []string{"да"}, svc.answers)

	msgs, ok := sessions.Transcript(session.ScopeFor(3))
	require.True(t, ok)
	assert.Equal(t, "Да", msgs[1].Text)
	assert.Equal(t, StateAwaitingAnswer, c.State())
}

func TestStaleStartResponseIsDiscarded(t *testing.T) {
	started := make(chan struct{})
	release := make(chan struct{})

	svc := &scriptedService{
		startFn: func(ctx context.Context, schemeID *int64) (*api.DialogResponse, error) {
			if schemeID != nil && *schemeID == 1 {
				close(started)
				<-release
				return &api.DialogResponse{
					Question: "вопрос схемы А",
					Tree:     []api.TreeNode{{ID: 10, Name: "дерево А"}},
				}, nil
			}
			return &api.DialogResponse{
				Question: "вопрос схемы Б",
				Tree:     []api.TreeNode{{ID: 20, Name: "дерево Б"}},
			}, nil
		},
	}
	c, sessions, renderer := newTestController(svc)
	ctx := context.Background()

	done := make(chan struct{})
	go func() {
		defer close(done)
		c.SelectScheme(ctx, 1)
	}()
	<-started

	// Switch before A's start resolves.
	require.NoError(t, c.SelectScheme(ctx, 2))
	close(release)
	<-done

	got := renderer.snapshot()
	require.Len(t, got.transcript, 1)
	assert.Equal(t, "вопрос схемы Б", got.transcript[0].Text, "late response must not win")
	require.Len(t, got.nodes, 1)
	assert.Equal(t, "дерево Б", got.nodes[0].Label)

	// Scheme A never got a session written.
	_, ok := sessions.Transcript(session.ScopeFor(1))
	assert.False(t, ok)
}

func TestNetworkFailureDegradesToChatMessage(t *testing.T) {
	svc := &scriptedService{
		startFn: startResponse("Введите главную цель:"),
		answerFn: func(ctx context.Context, text string) (*api.DialogResponse, error) {
			return nil, &api.StatusError{Code: 500, Status: "Internal Server Error", Message: "boom"}
		},
	}
	c, _, renderer := newTestController(svc)
	ctx := context.Background()

	require.NoError(t, c.SelectScheme(ctx, 5))
	err := c.SubmitAnswer(ctx, "ответ")
	require.Error(t, err)

	got := renderer.snapshot()
	last := got.transcript[len(got.transcript)-1]
	assert.Equal(t, session.SenderBot, last.Sender)
	assert.Equal(t, "500 Internal Server Error: boom", last.Text)

	// Operation abandoned; the previous gating state is back.
	assert.Equal(t, StateAwaitingAnswer, c.State())
	assert.Equal(t, InputFree, got.mode)
}

func TestAnswerWithoutTreeInheritsRenderedTree(t *testing.T) {
	responses := []*api.DialogResponse{
		{
			Question: "Добавить подцель? (да/нет)",
			Tree:     []api.TreeNode{{ID: 1, Name: "цель"}, {ID: 2, Name: "подцель", Parent: i64(1)}},
			OSEResults: []api.ScoreRow{
				{Factor: "бюджет", Goal: "цель", H: f64(0.4)},
			},
		},
		{Question: "Введите название фактора:"},
	}
	svc := &scriptedService{
		startFn: startResponse("Введите главную цель:"),
		answerFn: func(ctx context.Context, text string) (*api.DialogResponse, error) {
			resp := responses[0]
			responses = responses[1:]
			return resp, nil
		},
	}
	c, _, renderer := newTestController(svc)
	ctx := context.Background()

	require.NoError(t, c.SelectScheme(ctx, 6))
	require.NoError(t, c.SubmitAnswer(ctx, "цель"))
	require.NoError(t, c.Yes(ctx))

	got := renderer.snapshot()
	assert.Len(t, got.nodes, 2, "tree survives a response that lacks one")
	assert.Len(t, got.edges, 1)
	assert.Len(t, got.table, 1, "scores survive too")
}

func TestToggleFactorOverlaysLabels(t *testing.T) {
	svc := &scriptedService{
		startFn: func(ctx context.Context, schemeID *int64) (*api.DialogResponse, error) {
			return &api.DialogResponse{
				Question: "Введите значение",
				Tree:     []api.TreeNode{{ID: 1, Name: "цель"}},
				OSEResults: []api.ScoreRow{
					{Factor: "бюджет", Goal: "цель", H: f64(0.25)},
				},
			}, nil
		},
	}
	c, _, renderer := newTestController(svc)

	require.NoError(t, c.SelectScheme(context.Background(), 8))
	assert.Equal(t, "цель", renderer.snapshot().nodes[0].Label)

	c.ToggleFactor("бюджет", true)
	assert.Equal(t, "цель\nбюджет: 0.25", renderer.snapshot().nodes[0].Label)

	c.ToggleFactor("бюджет", false)
	assert.Equal(t, "цель", renderer.snapshot().nodes[0].Label)
}

func TestResetClearsAndRestarts(t *testing.T) {
	svc := &scriptedService{startFn: startResponse("Введите главную цель:")}
	c, sessions, _ := newTestController(svc)
	ctx := context.Background()

	require.NoError(t, c.SelectScheme(ctx, 9))
	sessionsBefore, _ := sessions.Transcript(session.ScopeFor(9))
	require.Len(t, sessionsBefore, 1)

	require.NoError(t, c.Reset(ctx))

	assert.Equal(t, 2, svc.startCalls, "reset starts over remotely")
	msgs, ok := sessions.Transcript(session.ScopeFor(9))
	require.True(t, ok)
	assert.Len(t, msgs, 1, "old transcript is gone, fresh question persisted")
}
