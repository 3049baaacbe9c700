package exchange

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/sashabaranov/go-openai"
)

// extractionSystemPrompt instructs the model to emit only the candidate rate
// rows. Results are candidates, not truth: the operator reviews every row
// before anything is persisted.
const extractionSystemPrompt = `You extract wage classification tables from enterprise agreement documents.
Return ONLY a JSON array. Each element must have these keys:
  "classification"  - the classification or level name, verbatim from the document
  "rate"            - the hourly rate as a decimal string without a currency symbol
  "effective_date"  - the date the rate takes effect, formatted YYYY-MM-DD, or "" if not stated
  "notes"           - any qualifier attached to the rate, or "" if none
Do not invent rows. If the document contains no rate table, return [].`

// ExtractionConfig holds configuration for the rate extraction client.
type ExtractionConfig struct {
	Endpoint string // Base URL of an OpenAI-compatible endpoint
	Model    string // Model name
	APIKey   string // Optional for local endpoints
}

// ExtractionClient extracts candidate pay rates from agreement documents via
// an OpenAI-compatible endpoint. Best-effort and fallible; callers treat
// every failure as recoverable.
type ExtractionClient struct {
	client *openai.Client
	model  string
}

// NewExtractionClient creates a rate extraction client.
func NewExtractionClient(cfg ExtractionConfig) (*ExtractionClient, error) {
	if cfg.Endpoint == "" {
		return nil, fmt.Errorf("extraction endpoint is required")
	}
	if cfg.Model == "" {
		return nil, fmt.Errorf("extraction model is required")
	}

	clientConfig := openai.DefaultConfig(cfg.APIKey)
	clientConfig.BaseURL = strings.TrimSuffix(cfg.Endpoint, "/")

	return &ExtractionClient{
		client: openai.NewClientWithConfig(clientConfig),
		model:  cfg.Model,
	}, nil
}

// ExtractRates sends the document to the extraction endpoint and decodes the
// candidate rows from its response.
func (c *ExtractionClient) ExtractRates(ctx context.Context, fileName string, document []byte) ([]ExtractedPayRate, error) {
	start := time.Now()

	resp, err := c.client.CreateChatCompletion(ctx, openai.ChatCompletionRequest{
		Model:       c.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: extractionSystemPrompt},
			{Role: openai.ChatMessageRoleUser, Content: fmt.Sprintf("Document %q:\n\n%s", fileName, document)},
		},
	})
	if err != nil {
		return nil, fmt.Errorf("extraction request: %w", err)
	}
	if len(resp.Choices) == 0 {
		return nil, fmt.Errorf("extraction returned no choices")
	}

	content := resp.Choices[0].Message.Content
	jsonStr, err := extractJSON(content)
	if err != nil {
		return nil, fmt.Errorf("extraction response: %w", err)
	}

	var rates []ExtractedPayRate
	if err := json.Unmarshal([]byte(jsonStr), &rates); err != nil {
		return nil, fmt.Errorf("decode extraction response: %w", err)
	}

	slog.Debug("extraction call completed",
		"file", fileName,
		"rates", len(rates),
		"prompt_tokens", resp.Usage.PromptTokens,
		"completion_tokens", resp.Usage.CompletionTokens,
		"duration_ms", time.Since(start).Milliseconds(),
	)

	return rates, nil
}

// extractJSON pulls the first balanced JSON array or object out of a model
// response that may be wrapped in prose or markdown code fences.
func extractJSON(response string) (string, error) {
	cleaned := strings.TrimSpace(response)

	objStart := strings.IndexByte(cleaned, '{')
	arrStart := strings.IndexByte(cleaned, '[')

	if arrStart >= 0 && (objStart < 0 || arrStart < objStart) {
		if jsonStr, ok := extractBalancedJSON(cleaned, '[', ']'); ok && json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
	}
	if objStart >= 0 {
		if jsonStr, ok := extractBalancedJSON(cleaned, '{', '}'); ok && json.Valid([]byte(jsonStr)) {
			return jsonStr, nil
		}
	}
	if json.Valid([]byte(cleaned)) {
		return cleaned, nil
	}

	return "", fmt.Errorf("no valid JSON found in response")
}

// extractBalancedJSON finds the first balanced JSON structure starting with
// openChar, counting bracket depth and honoring string escapes.
func extractBalancedJSON(s string, openChar, closeChar byte) (string, bool) {
	start := strings.IndexByte(s, openChar)
	if start == -1 {
		return "", false
	}

	depth := 0
	inString := false
	escaped := false

	for i := start; i < len(s); i++ {
		c := s[i]

		if escaped {
			escaped = false
			continue
		}
		switch {
		case c == '\\' && inString:
			escaped = true
		case c == '"':
			inString = !inString
		case inString:
		case c == openChar:
			depth++
		case c == closeChar:
			depth--
			if depth == 0 {
				return s[start : i+1], true
			}
		}
	}

	return "", false
}
