// Package claude implements the triage.Provider interface on the Anthropic
// Messages API.
package claude

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/linnemanlabs/sift/internal/triage"
)

const responseTokens = 1024

const systemPrompt = `You are a support triage assistant for a SaaS product.
You respond with a single JSON object and nothing else: no prose, no markdown fences.`

// Client calls Claude to produce triage verdicts.
type Client struct {
	client anthropic.Client
	model  string
}

// New creates a Claude-backed provider with the given API key and model.
func New(apiKey, model string) *Client {
	return &Client{
		client: anthropic.NewClient(option.WithAPIKey(apiKey)),
		model:  model,
	}
}

// Analyze sends the ticket to Claude and parses the structured verdict.
// A response that fails JSON parsing or schema validation is returned as
// an error so the engine's retry policy treats it as a call failure.
func (c *Client) Analyze(ctx context.Context, req *triage.AnalyzeRequest) (*triage.Verdict, error) {
	msg, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     anthropic.Model(c.model),
		MaxTokens: responseTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(triage.BuildPrompt(req))),
		},
	})
	if err != nil {
		return nil, fmt.Errorf("claude: send message: %w", err)
	}

	text := textContent(msg)
	if text == "" {
		return nil, fmt.Errorf("claude: no text content in response (stop_reason %q)", msg.StopReason)
	}

	verdict, err := parseVerdict(text)
	if err != nil {
		return nil, err
	}

	verdict.TokenUsage = fmt.Sprintf("%d tokens", msg.Usage.InputTokens+msg.Usage.OutputTokens)
	return verdict, nil
}

// textContent concatenates the text blocks of a response.
func textContent(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return b.String()
}

// parseVerdict decodes the model output, tolerating the markdown code
// fences some models wrap JSON in despite instructions.
func parseVerdict(text string) (*triage.Verdict, error) {
	text = strings.TrimSpace(text)
	text = strings.TrimPrefix(text, "```json")
	text = strings.TrimPrefix(text, "```")
	text = strings.TrimSuffix(text, "```")
	text = strings.TrimSpace(text)

	var v triage.Verdict
	if err := json.Unmarshal([]byte(text), &v); err != nil {
		return nil, fmt.Errorf("claude: unmarshal verdict: %w", err)
	}
	if err := v.Validate(); err != nil {
		return nil, fmt.Errorf("claude: invalid verdict: %w", err)
	}
	return &v, nil
}
