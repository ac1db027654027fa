package planner

import (
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/openai/openai-go"
	"github.com/openai/openai-go/option"
	"github.com/zulandar/stagehand/internal/models"
)

const planSystemPrompt = `You plan browser automation sessions. Given a target URL and
optional campaign metadata, respond with ONLY a JSON array of steps. Each step is an
object with an "action" field of "open", "click", "type", "wait" or "scroll", plus
"url", "selector", "text", "timeout_ms" or "wait_ms" as appropriate. The first step
must open the target URL. Keep plans under 12 steps.`

// OpenAI is a Planner that delegates step generation to a chat model.
type OpenAI struct {
	client openai.Client
	model  string
}

// OpenAIOption configures an OpenAI planner.
type OpenAIOption func(*openAIConfig)

type openAIConfig struct {
	apiKey  string
	baseURL string
	model   string
}

// WithModel sets the chat model used for planning.
func WithModel(model string) OpenAIOption {
	return func(c *openAIConfig) {
		c.model = model
	}
}

// WithBaseURL points the planner at an OpenAI-compatible API.
func WithBaseURL(baseURL string) OpenAIOption {
	return func(c *openAIConfig) {
		c.baseURL = baseURL
	}
}

// NewOpenAI creates an OpenAI-backed planner. An empty apiKey falls back to
// the OPENAI_API_KEY environment variable.
func NewOpenAI(apiKey string, opts ...OpenAIOption) (*OpenAI, error) {
	cfg := openAIConfig{apiKey: apiKey, model: "gpt-4o-mini"}
	for _, opt := range opts {
		opt(&cfg)
	}
	if cfg.apiKey == "" {
		cfg.apiKey = os.Getenv("OPENAI_API_KEY")
	}
	if cfg.apiKey == "" {
		return nil, fmt.Errorf("planner: OpenAI API key is required")
	}

	clientOpts := []option.RequestOption{option.WithAPIKey(cfg.apiKey)}
	if cfg.baseURL != "" {
		clientOpts = append(clientOpts, option.WithBaseURL(cfg.baseURL))
	}
	return &OpenAI{client: openai.NewClient(clientOpts...), model: cfg.model}, nil
}

// Plan implements Planner. Model errors and unparseable completions yield
// an empty plan rather than an error; a planner failure must never block a
// dispatch.
func (p *OpenAI) Plan(ctx context.Context, target string, meta map[string]string) ([]models.Step, error) {
	if target == "" {
		return nil, nil
	}

	var sb strings.Builder
	fmt.Fprintf(&sb, "Target: %s\n", target)
	for k, v := range meta {
		fmt.Fprintf(&sb, "%s: %s\n", k, v)
	}

	resp, err := p.client.Chat.Completions.New(ctx, openai.ChatCompletionNewParams{
		Model: openai.ChatModel(p.model),
		Messages: []openai.ChatCompletionMessageParamUnion{
			openai.SystemMessage(planSystemPrompt),
			openai.UserMessage(sb.String()),
		},
	})
	if err != nil {
		return nil, nil
	}
	if len(resp.Choices) == 0 {
		return nil, nil
	}
	return parseSteps(resp.Choices[0].Message.Content), nil
}

// parseSteps extracts a step array from model output, tolerating code
// fences and surrounding prose. Steps with unrecognized action tags are
// kept; the engine ignores them at execution time.
func parseSteps(content string) []models.Step {
	start := strings.Index(content, "[")
	end := strings.LastIndex(content, "]")
	if start < 0 || end <= start {
		return nil
	}
	var steps []models.Step
	if err := json.Unmarshal([]byte(content[start:end+1]), &steps); err != nil {
		return nil
	}
	return steps
}
