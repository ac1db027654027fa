package planner

import (
	"context"
	"testing"

	"github.com/zulandar/stagehand/internal/models"
)

func TestHeuristic_Plan(t *testing.T) {
	steps, err := Heuristic{}.Plan(context.Background(), "https://example.com", nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(steps) == 0 {
		t.Fatal("expected a non-empty plan")
	}
	if steps[0].Action != models.ActionOpen || steps[0].URL != "https://example.com" {
		t.Errorf("first step = %+v, want open of target", steps[0])
	}
}

func TestHeuristic_EmptyTarget(t *testing.T) {
	steps, err := Heuristic{}.Plan(context.Background(), "", nil)
	if err != nil {
		t.Fatalf("Plan: %v", err)
	}
	if len(steps) != 0 {
		t.Errorf("expected empty plan, got %+v", steps)
	}
}

func TestParseSteps(t *testing.T) {
	tests := []struct {
		name    string
		content string
		want    int
	}{
		{
			name:    "bare array",
			content: `[{"action":"open","url":"https://a.example"},{"action":"scroll"}]`,
			want:    2,
		},
		{
			name:    "fenced with prose",
			content: "Here is the plan:\n```json\n[{\"action\":\"open\",\"url\":\"https://a.example\"}]\n```\nDone.",
			want:    1,
		},
		{
			name:    "no array",
			content: "I cannot produce a plan.",
			want:    0,
		},
		{
			name:    "malformed json",
			content: `[{"action":}]`,
			want:    0,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			steps := parseSteps(tt.content)
			if len(steps) != tt.want {
				t.Errorf("parseSteps returned %d steps, want %d", len(steps), tt.want)
			}
		})
	}
}

func TestNewOpenAI_RequiresKey(t *testing.T) {
	t.Setenv("OPENAI_API_KEY", "")
	if _, err := NewOpenAI(""); err == nil {
		t.Error("expected error without an API key")
	}
}
