// Package api is the HTTP client for the remote dialog/scoring service.
// Only the operations and response fields the client actually consumes are
// modeled here; everything else the service returns is opaque.
package api

// Scheme is one questionnaire instance the user can select, create or delete.
type Scheme struct {
	ID   int64  `json:"id"`
	Name string `json:"name"`
}

// TreeNode is one entry of the goal tree returned by the service.
// Parent is nil for root nodes.
type TreeNode struct {
	ID     int64  `json:"id"`
	Name   string `json:"name"`
	Parent *int64 `json:"parent"`
	Level  int    `json:"level,omitempty"`
}

// ScoreRow is one (factor, goal) scoring record. The numeric fields are
// pointers: the service may omit any of them and the client renders blanks
// instead of zeroes.
type ScoreRow struct {
	Factor string   `json:"factor"`
	Goal   string   `json:"goal"`
	H      *float64 `json:"H,omitempty"`
	P      *float64 `json:"p,omitempty"`
	Q      *float64 `json:"q,omitempty"`
}

// DialogResponse is the payload of both the start and answer operations.
// Tree and OSEResults stay nil when the response does not carry them, which
// lets the session cache inherit the previously known values.
type DialogResponse struct {
	Phase    string `json:"phase"`
	State    string `json:"state"`
	Question string `json:"question"`
	Message  string `json:"message,omitempty"`

	Tree       []TreeNode `json:"tree"`
	OSEResults []ScoreRow `json:"ose_results"`
}
