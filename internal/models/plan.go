package models

import "encoding/json"

// Step action tags recognized by the execution engine. Unknown tags are
// ignored at execution time so plans can carry forward-compatible actions.
const (
	ActionOpen   = "open"
	ActionClick  = "click"
	ActionType   = "type"
	ActionWait   = "wait"
	ActionScroll = "scroll"
)

// Step is one atomic browser action inside a plan. Which fields are
// meaningful depends on Action; the engine validates only the tag.
type Step struct {
	Action    string `json:"action"`
	URL       string `json:"url,omitempty"`
	Selector  string `json:"selector,omitempty"`
	Text      string `json:"text,omitempty"`
	TimeoutMs int    `json:"timeout_ms,omitempty"`
	WaitMs    int    `json:"wait_ms,omitempty"`
}

// ParsePlan decodes a plan JSON column into its ordered step list. Empty or
// malformed plans decode to an empty list; an empty plan is a valid no-op run.
func ParsePlan(raw string) []Step {
	if raw == "" {
		return nil
	}
	var steps []Step
	if err := json.Unmarshal([]byte(raw), &steps); err != nil {
		return nil
	}
	return steps
}
