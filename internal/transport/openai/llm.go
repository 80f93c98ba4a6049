package openai

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"time"

	openai "github.com/sashabaranov/go-openai"
	"go.uber.org/zap"

	"github.com/finsight-ai/finsight/internal/domain"
	"github.com/finsight-ai/finsight/internal/metrics"
)

// maxDocumentChars bounds how much filing text is sent per extraction call.
const maxDocumentChars = 48000

const extractionSystemPrompt = `You are a financial analyst extracting structured data from a regulatory filing.
Respond with a single JSON object and nothing else, using exactly this schema:
{
  "key_metrics": [{"name": string, "value": string, "unit": string}],
  "narrative_summary": [{"name": string, "sentences": [string]}],
  "forward_guidance": [{"metric": string, "statement": string}]
}
Report metric values exactly as stated in the filing, including magnitude words or suffixes.
key_metrics must contain at least one numeric metric. Do not invent values.`

const generationSystemPrompt = `You answer questions about company filings using ONLY the supplied context.
Each context block is labeled with a citation identifier in square brackets.
Cite the identifiers inline for every claim, e.g. [ACME:0001-24-000001#ab12].
If the context does not support an answer, say so plainly. Never use outside knowledge.`

// LLM is the chat-completion client behind extraction and synthesis.
type LLM struct {
	client  *openai.Client
	model   string
	timeout time.Duration
	logger  *zap.Logger
}

// LLMConfig holds the chat-completion settings.
type LLMConfig struct {
	APIKey  string
	BaseURL string
	Model   string
	Timeout time.Duration
	Logger  *zap.Logger
}

// NewLLM creates an OpenAI-compatible chat-completion client.
func NewLLM(cfg *LLMConfig) *LLM {
	clientCfg := openai.DefaultConfig(cfg.APIKey)
	if cfg.BaseURL != "" {
		clientCfg.BaseURL = cfg.BaseURL
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 90 * time.Second
	}
	return &LLM{
		client:  openai.NewClientWithConfig(clientCfg),
		model:   cfg.Model,
		timeout: timeout,
		logger:  cfg.Logger,
	}
}

// Extract runs one structured-extraction call. critique, when non-empty, is
// appended as feedback on a rejected previous attempt (the reflection retry).
func (l *LLM) Extract(ctx context.Context, doc *domain.RawDocument, critique string) (domain.ExtractionDraft, error) {
	text := doc.FullText
	if len(text) > maxDocumentChars {
		text = text[:maxDocumentChars]
	}

	user := fmt.Sprintf("Ticker: %s\nFiling: %s\n\n%s", doc.Ticker, doc.SourceKey, text)
	if critique != "" {
		user += "\n\n" + critique + " Produce a corrected JSON object."
	}

	raw, err := l.complete(ctx, "extraction", extractionSystemPrompt, user, true)
	if err != nil {
		metrics.ExtractionCallsTotal.WithLabelValues(l.model, "error").Inc()
		return domain.ExtractionDraft{}, err
	}

	var draft domain.ExtractionDraft
	if err := json.Unmarshal([]byte(extractJSON(raw)), &draft); err != nil {
		metrics.ExtractionCallsTotal.WithLabelValues(l.model, "malformed").Inc()
		l.logger.Warn("extraction output is not valid JSON",
			zap.String("source_key", doc.SourceKey),
			zap.Error(err),
		)
		// Malformed output is a validation failure, not a transport failure:
		// the stage's reflection retry is the right response.
		return domain.ExtractionDraft{}, nil
	}
	metrics.ExtractionCallsTotal.WithLabelValues(l.model, "success").Inc()
	return draft, nil
}

// Generate produces a grounded answer from the assembled context block.
func (l *LLM) Generate(ctx context.Context, question, contextBlock string) (string, error) {
	user := "Context:\n" + contextBlock + "\n\nQuestion: " + question
	return l.complete(ctx, "generation", generationSystemPrompt, user, false)
}

func (l *LLM) complete(ctx context.Context, purpose, system, user string, jsonMode bool) (string, error) {
	req := openai.ChatCompletionRequest{
		Model:       l.model,
		Temperature: 0,
		Messages: []openai.ChatCompletionMessage{
			{Role: openai.ChatMessageRoleSystem, Content: system},
			{Role: openai.ChatMessageRoleUser, Content: user},
		},
	}
	if jsonMode {
		req.ResponseFormat = &openai.ChatCompletionResponseFormat{
			Type: openai.ChatCompletionResponseFormatTypeJSONObject,
		}
	}

	ctx, cancel := context.WithTimeout(ctx, l.timeout)
	defer cancel()

	start := time.Now()
	resp, err := l.client.CreateChatCompletion(ctx, req)
	metrics.CompletionRequestDuration.WithLabelValues(l.model, purpose).Observe(time.Since(start).Seconds())

	if err != nil {
		return "", parseAPIError(purpose, err)
	}
	if len(resp.Choices) == 0 {
		return "", fmt.Errorf("empty %s response: %w", purpose, domain.ErrModelError)
	}
	return resp.Choices[0].Message.Content, nil
}

// extractJSON tolerates models that wrap the object in code fences or prose:
// it returns the substring from the first '{' to the last '}'.
func extractJSON(s string) string {
	start := strings.Index(s, "{")
	end := strings.LastIndex(s, "}")
	if start < 0 || end <= start {
		return s
	}
	return s[start : end+1]
}
