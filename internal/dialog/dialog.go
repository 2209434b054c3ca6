// Package dialog drives the question/answer session against the remote
// service and keeps the session cache and the rendered views consistent
// with one state snapshot.
package dialog

import (
	"errors"
	"strings"

	"github.com/NickPeut/BasePlanFactor/internal/session"
	"github.com/NickPeut/BasePlanFactor/pkg/projection"
)

// State of the controller's session machine.
type State int

const (
	StateNoScheme State = iota
	StateLoading
	StateAwaitingAnswer
	StateAwaitingYesNo
)

func (s State) String() string {
	switch s {
	case StateNoScheme:
		return "no_scheme"
	case StateLoading:
		return "loading"
	case StateAwaitingAnswer:
		return "awaiting_answer"
	case StateAwaitingYesNo:
		return "awaiting_yes_no"
	default:
		return "unknown"
	}
}

// InputMode tells the UI-binding layer which controls to enable.
type InputMode int

const (
	InputDisabled InputMode = iota
	InputFree
	InputYesNo
)

// YesNoMarker is the literal substring that classifies a question as a
// yes/no prompt. This exact substring test is the whole classifier.
const YesNoMarker = "(да/нет)"

// Wire and display forms of the two fixed yes/no actions.
const (
	AnswerYes        = "да"
	AnswerNo         = "нет"
	AnswerYesDisplay = "Да"
	AnswerNoDisplay  = "Нет"
)

// IsYesNo reports whether a question restricts input to the two fixed
// yes/no actions.
func IsYesNo(text string) bool {
	return strings.Contains(text, YesNoMarker)
}

// ErrEmptyInput rejects a blank answer locally; nothing is sent and nothing
// changes.
var ErrEmptyInput = errors.New("answer is empty")

// ErrNotAwaitingAnswer means no question is currently open for input.
var ErrNotAwaitingAnswer = errors.New("no question awaiting an answer")

// ErrYesNoOnly means the open question accepts only the fixed yes/no
// answers.
var ErrYesNoOnly = errors.New("question accepts only yes or no")

// Renderer receives view updates from the controller. Implementations bind
// to a concrete UI: the wasm layer forwards to the page, the CLI prints.
// Renderer methods must not call back into the controller.
type Renderer interface {
	AppendMessage(m session.Message)
	ResetTranscript(msgs []session.Message)
	RenderGraph(nodes []projection.GraphNode, edges []projection.GraphEdge)
	RenderScores(legend []projection.LegendEntry, rows []projection.TableRow)
	SetInputMode(mode InputMode)
}
