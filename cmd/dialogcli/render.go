package main

import (
	"fmt"
	"io"
	"sort"
	"strings"
	"sync"
	"text/tabwriter"

	"github.com/NickPeut/BasePlanFactor/internal/dialog"
	"github.com/NickPeut/BasePlanFactor/internal/session"
	"github.com/NickPeut/BasePlanFactor/pkg/projection"
)

// consoleRenderer prints controller output to the terminal. The graph view
// becomes an indented outline, the score view a tab-aligned table.
type consoleRenderer struct {
	mu     sync.Mutex
	w      io.Writer
	prompt string
}

func newConsoleRenderer(w io.Writer) *consoleRenderer {
	return &consoleRenderer{w: w, prompt: "… "}
}

// Prompt returns the input prompt matching the current gating state. Read by
// the input loop, never by the controller.
func (r *consoleRenderer) Prompt() string {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.prompt
}

func (r *consoleRenderer) AppendMessage(m session.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.printMessage(m)
}

func (r *consoleRenderer) ResetTranscript(msgs []session.Message) {
	r.mu.Lock()
	defer r.mu.Unlock()

	fmt.Fprintln(r.w, strings.Repeat("-", 40))
	for _, m := range msgs {
		r.printMessage(m)
	}
}

func (r *consoleRenderer) printMessage(m session.Message) {
	label := "bot"
	if m.Sender == session.SenderUser {
		label = "you"
	}
	fmt.Fprintf(r.w, "%s> %s\n", label, m.Text)
}

// RenderGraph prints the tree as an indented outline. Multi-line node labels
// carry factor overlays; the extra lines are folded into brackets.
func (r *consoleRenderer) RenderGraph(nodes []projection.GraphNode, edges []projection.GraphEdge) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(nodes) == 0 {
		return
	}

	children := make(map[string][]string, len(edges))
	hasParent := make(map[string]bool, len(edges))
	for _, e := range edges {
		children[e.Source] = append(children[e.Source], e.Target)
		hasParent[e.Target] = true
	}
	labels := make(map[string]string, len(nodes))
	for _, n := range nodes {
		labels[n.ID] = n.Label
	}

	fmt.Fprintln(r.w)
	fmt.Fprintln(r.w, "Tree:")
	for _, n := range nodes {
		if !hasParent[n.ID] {
			r.printNode(n.ID, 1, labels, children)
		}
	}
}

func (r *consoleRenderer) printNode(id string, depth int, labels map[string]string, children map[string][]string) {
	lines := strings.Split(labels[id], "\n")
	entry := lines[0]
	if len(lines) > 1 {
		entry += " [" + strings.Join(lines[1:], "; ") + "]"
	}
	fmt.Fprintf(r.w, "%s%s\n", strings.Repeat("  ", depth), entry)

	for _, child := range children[id] {
		r.printNode(child, depth+1, labels, children)
	}
}

// RenderScores prints the legend of toggled factors and the score table.
func (r *consoleRenderer) RenderScores(legend []projection.LegendEntry, rows []projection.TableRow) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(rows) == 0 {
		return
	}

	active := make([]string, 0, len(legend))
	for _, entry := range legend {
		if entry.Active {
			active = append(active, entry.Factor)
		}
	}
	if len(active) > 0 {
		sort.Strings(active)
		fmt.Fprintln(r.w, "Shown on tree:", strings.Join(active, ", "))
	}

	tw := tabwriter.NewWriter(r.w, 2, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "GOAL\tFACTOR\tQ\tP\tH")
	for _, row := range rows {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\t%s\n", row.Goal, row.Factor, row.Q, row.P, row.H)
	}
	tw.Flush()
}

func (r *consoleRenderer) SetInputMode(mode dialog.InputMode) {
	r.mu.Lock()
	defer r.mu.Unlock()

	switch mode {
	case dialog.InputFree:
		r.prompt = "> "
	case dialog.InputYesNo:
		r.prompt = "(да/нет)> "
	default:
		r.prompt = "… "
	}
}

// Compile-time interface check
var _ dialog.Renderer = (*consoleRenderer)(nil)
