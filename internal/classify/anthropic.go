// Package classify produces structured classifications for fetched content
// using the Anthropic Messages API.
package classify

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	"github.com/anthropics/anthropic-sdk-go"
	"github.com/anthropics/anthropic-sdk-go/option"

	"github.com/mkarpis/linkmind/internal/ingest"
)

const (
	defaultModel     = anthropic.ModelClaudeSonnet4_20250514
	defaultMaxTokens = 1024
	// maxContentBytes bounds how much of the page body goes into the prompt.
	maxContentBytes = 24 * 1024
)

const systemPrompt = `You classify saved web links. Respond with a single JSON object and nothing else:
{"category": "<one short category>", "tags": ["<tag>", ...], "summary": "<2-3 sentence summary>", "confidence": <0.0-1.0>, "quality_score": <1-10 integer>}`

// Config controls the classifier client.
type Config struct {
	APIKey    string        `mapstructure:"api_key" yaml:"api_key"`
	Model     string        `mapstructure:"model" yaml:"model"`
	MaxTokens int64         `mapstructure:"max_tokens" yaml:"max_tokens"`
	Timeout   time.Duration `mapstructure:"timeout" yaml:"timeout"`
}

// Classifier implements ingest.Classifier against the Messages API.
type Classifier struct {
	client    anthropic.Client
	model     anthropic.Model
	maxTokens int64
	timeout   time.Duration
}

// New builds a Classifier. The API key is required.
func New(cfg Config) (*Classifier, error) {
	if strings.TrimSpace(cfg.APIKey) == "" {
		return nil, fmt.Errorf("api key is required")
	}
	model := anthropic.Model(cfg.Model)
	if cfg.Model == "" {
		model = defaultModel
	}
	maxTokens := cfg.MaxTokens
	if maxTokens <= 0 {
		maxTokens = defaultMaxTokens
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 60 * time.Second
	}
	return &Classifier{
		client:    anthropic.NewClient(option.WithAPIKey(cfg.APIKey)),
		model:     model,
		maxTokens: maxTokens,
		timeout:   timeout,
	}, nil
}

// Classify sends the page to the model and parses the structured response.
// Malformed or out-of-range model output is a ClassifyError, handled by the
// same retry policy as transport failures.
func (c *Classifier) Classify(ctx context.Context, url, title string, content []byte) (ingest.ClassificationResult, error) {
	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	resp, err := c.client.Messages.New(ctx, anthropic.MessageNewParams{
		Model:     c.model,
		MaxTokens: c.maxTokens,
		System: []anthropic.TextBlockParam{
			{Text: systemPrompt},
		},
		Messages: []anthropic.MessageParam{
			anthropic.NewUserMessage(anthropic.NewTextBlock(buildPrompt(url, title, content))),
		},
	})
	if err != nil {
		return ingest.ClassificationResult{}, &ingest.ClassifyError{Err: fmt.Errorf("messages request: %w", err)}
	}

	text := collectText(resp)
	if text == "" {
		return ingest.ClassificationResult{}, &ingest.ClassifyError{Err: fmt.Errorf("empty model response")}
	}

	result, err := ParseResult(text)
	if err != nil {
		return ingest.ClassificationResult{}, &ingest.ClassifyError{Err: err}
	}
	return result, nil
}

func buildPrompt(url, title string, content []byte) string {
	body := content
	if len(body) > maxContentBytes {
		body = body[:maxContentBytes]
	}
	var b strings.Builder
	fmt.Fprintf(&b, "URL: %s\n", url)
	if title != "" {
		fmt.Fprintf(&b, "Title: %s\n", title)
	}
	b.WriteString("Content:\n")
	b.Write(body)
	return b.String()
}

func collectText(msg *anthropic.Message) string {
	var b strings.Builder
	for _, block := range msg.Content {
		if block.Type == "text" {
			b.WriteString(block.Text)
		}
	}
	return strings.TrimSpace(b.String())
}

// ParseResult extracts and validates the JSON classification from raw model
// text, tolerating markdown code fences and surrounding prose.
func ParseResult(text string) (ingest.ClassificationResult, error) {
	payload := extractJSON(text)
	if payload == "" {
		return ingest.ClassificationResult{}, fmt.Errorf("no JSON object in model response")
	}
	var result ingest.ClassificationResult
	if err := json.Unmarshal([]byte(payload), &result); err != nil {
		return ingest.ClassificationResult{}, fmt.Errorf("decode classification: %w", err)
	}
	if err := result.Validate(); err != nil {
		return ingest.ClassificationResult{}, fmt.Errorf("invalid classification: %w", err)
	}
	return result, nil
}

// extractJSON returns the first balanced top-level JSON object in the text.
func extractJSON(text string) string {
	start := strings.IndexByte(text, '{')
	if start < 0 {
		return ""
	}
	depth := 0
	inString := false
	escaped := false
	for i := start; i < len(text); i++ {
		ch := text[i]
		if inString {
			switch {
			case escaped:
				escaped = false
			case ch == '\\':
				escaped = true
			case ch == '"':
				inString = false
			}
			continue
		}
		switch ch {
		case '"':
			inString = true
		case '{':
			depth++
		case '}':
			depth--
			if depth == 0 {
				return text[start : i+1]
			}
		}
	}
	return ""
}
