// Package projection turns a session snapshot into the shapes the three
// views render: graph node/edge lists, node label overlays and the factor
// score table. Pure functions only; nothing here mutates state.
package projection

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/NickPeut/BasePlanFactor/internal/api"
)

// GraphNode is one renderable graph node.
type GraphNode struct {
	ID    string `json:"id"`
	Label string `json:"label"`
}

// GraphEdge is one renderable parent→child edge.
type GraphEdge struct {
	ID     string `json:"id"`
	Source string `json:"source"`
	Target string `json:"target"`
}

// ToGraphElements maps a tree snapshot to one node per entry and one edge per
// entry whose parent is present in the same snapshot. An unknown parent id
// drops the edge, never the node, and is never an error.
func ToGraphElements(tree []api.TreeNode) ([]GraphNode, []GraphEdge) {
	nodes := make([]GraphNode, 0, len(tree))
	present := make(map[int64]bool, len(tree))
	for _, n := range tree {
		present[n.ID] = true
		nodes = append(nodes, GraphNode{
			ID:    strconv.FormatInt(n.ID, 10),
			Label: n.Name,
		})
	}

	var edges []GraphEdge
	for _, n := range tree {
		if n.Parent == nil || !present[*n.Parent] {
			continue
		}
		edges = append(edges, GraphEdge{
			ID:     fmt.Sprintf("e%d-%d", *n.Parent, n.ID),
			Source: strconv.FormatInt(*n.Parent, 10),
			Target: strconv.FormatInt(n.ID, 10),
		})
	}
	return nodes, edges
}

// palette is the fixed legend color cycle of the web UI.
var palette = []string{
	"#f94144", "#f3722c", "#f8961e", "#f9c74f",
	"#90be6d", "#43aa8b", "#577590", "#b5179e",
}

// Index is the derived view of a score-row collection: per-goal H values,
// the factor list in first-appearance order, display toggles and legend
// colors. Within one snapshot a duplicated (goal, factor) pair resolves to
// the latest H (last write wins).
type Index struct {
	FactorsByGoal map[string]map[string]float64
	Factors       []string
	Active        map[string]bool
	Colors        map[string]string
}

// BuildIndex derives an Index from rows, carrying over the caller's factor
// display toggles.
func BuildIndex(rows []api.ScoreRow, active map[string]bool) Index {
	idx := Index{
		FactorsByGoal: make(map[string]map[string]float64),
		Active:        make(map[string]bool),
		Colors:        make(map[string]string),
	}

	seen := make(map[string]bool)
	for _, r := range rows {
		if !seen[r.Factor] {
			seen[r.Factor] = true
			idx.Factors = append(idx.Factors, r.Factor)
		}
		if r.H == nil {
			continue
		}
		if idx.FactorsByGoal[r.Goal] == nil {
			idx.FactorsByGoal[r.Goal] = make(map[string]float64)
		}
		idx.FactorsByGoal[r.Goal][r.Factor] = *r.H
	}

	for i, f := range idx.Factors {
		idx.Colors[f] = palette[i%len(palette)]
	}
	for f, on := range active {
		if on {
			idx.Active[f] = true
		}
	}
	return idx
}

// LabelFor builds the multi-line node label overlay: the bare node name
// first, then one "factor: H" line per toggled-on factor that has a value
// recorded for this goal. Factors without a value are silently omitted.
func LabelFor(name string, idx Index) string {
	lines := []string{name}
	vals := idx.FactorsByGoal[name]
	for _, f := range idx.Factors {
		if !idx.Active[f] {
			continue
		}
		if v, ok := vals[f]; ok {
			lines = append(lines, f+": "+formatNumber(v))
		}
	}
	return strings.Join(lines, "\n")
}

// TableRow is one display row of the score table. Values are pre-formatted;
// a missing numeric renders empty rather than as zero.
type TableRow struct {
	Goal   string `json:"goal"`
	Factor string `json:"factor"`
	Q      string `json:"q"`
	P      string `json:"p"`
	H      string `json:"H"`
}

// ToScoreTable maps score rows to display rows in source order.
func ToScoreTable(rows []api.ScoreRow) []TableRow {
	out := make([]TableRow, 0, len(rows))
	for _, r := range rows {
		out = append(out, TableRow{
			Goal:   r.Goal,
			Factor: r.Factor,
			Q:      formatOptional(r.Q),
			P:      formatOptional(r.P),
			H:      formatOptional(r.H),
		})
	}
	return out
}

// LegendEntry is one factor checkbox of the legend.
type LegendEntry struct {
	Factor string `json:"factor"`
	Color  string `json:"color"`
	Active bool   `json:"active"`
}

// Legend lists the index's factors with their colors and toggle state.
func Legend(idx Index) []LegendEntry {
	out := make([]LegendEntry, 0, len(idx.Factors))
	for _, f := range idx.Factors {
		out = append(out, LegendEntry{
			Factor: f,
			Color:  idx.Colors[f],
			Active: idx.Active[f],
		})
	}
	return out
}

func formatNumber(v float64) string {
	return strconv.FormatFloat(v, 'g', -1, 64)
}

func formatOptional(v *float64) string {
	if v == nil {
		return ""
	}
	return formatNumber(*v)
}
