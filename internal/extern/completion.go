// Package extern holds the opaque external collaborators the core talks to:
// an AI completion service and a document text-extraction service. The only
// contract is bounded-time call, text in, text or typed error out.
package extern

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"
)

// ErrUnavailable wraps every failure mode of an external service: transport
// errors, timeouts, non-2xx replies, unusable bodies. Callers substitute a
// degraded response instead of surfacing it raw.
var ErrUnavailable = errors.New("external service unavailable")

// PromptMessage is one turn of a chat-completion prompt.
type PromptMessage struct {
	Role    string `json:"role"`
	Content string `json:"content"`
}

type CompleteOptions struct {
	MaxTokens   int
	Temperature float64
}

// Completer answers a prompt. Implementations must honor ctx cancellation.
type Completer interface {
	Complete(ctx context.Context, msgs []PromptMessage, opts CompleteOptions) (string, error)
}

// OpenAICompleter calls an OpenAI-style chat-completions endpoint.
type OpenAICompleter struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
}

func NewOpenAICompleter(baseURL, apiKey, model string, timeout time.Duration) *OpenAICompleter {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &OpenAICompleter{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
	}
}

type chatRequest struct {
	Model       string          `json:"model"`
	Messages    []PromptMessage `json:"messages"`
	MaxTokens   int             `json:"max_tokens,omitempty"`
	Temperature float64         `json:"temperature,omitempty"`
}

type chatResponse struct {
	Choices []struct {
		Message struct {
			Content string `json:"content"`
		} `json:"message"`
	} `json:"choices"`
}

func (o *OpenAICompleter) Complete(ctx context.Context, msgs []PromptMessage, opts CompleteOptions) (string, error) {
	body, err := json.Marshal(chatRequest{
		Model:       o.model,
		Messages:    msgs,
		MaxTokens:   opts.MaxTokens,
		Temperature: opts.Temperature,
	})
	if err != nil {
		return "", fmt.Errorf("%w: encode request: %s", ErrUnavailable, err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, o.baseURL+"/chat/completions", bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	req.Header.Set("Content-Type", "application/json")
	if o.apiKey != "" {
		req.Header.Set("Authorization", "Bearer "+o.apiKey)
	}

	resp, err := o.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("%w: %s", ErrUnavailable, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		log.Warn().Str("module", "extern").Int("status", resp.StatusCode).Msg("completion request rejected")
		return "", fmt.Errorf("%w: status %d", ErrUnavailable, resp.StatusCode)
	}

	var parsed chatResponse
	if err := json.NewDecoder(io.LimitReader(resp.Body, 1<<20)).Decode(&parsed); err != nil {
		return "", fmt.Errorf("%w: decode response: %s", ErrUnavailable, err)
	}
	if len(parsed.Choices) == 0 {
		return "", fmt.Errorf("%w: empty completion", ErrUnavailable)
	}
	return parsed.Choices[0].Message.Content, nil
}

// FallbackCompleter tries the primary and, on failure, answers with a
// clearly-labeled degraded reply so the room never sees a raw error.
type FallbackCompleter struct {
	Primary Completer
}

const degradedReply = "[AI assistant unavailable] The assistant could not be reached. Please try again later."

func (f *FallbackCompleter) Complete(ctx context.Context, msgs []PromptMessage, opts CompleteOptions) (string, error) {
	text, err := f.Primary.Complete(ctx, msgs, opts)
	if err != nil {
		log.Warn().Err(err).Str("module", "extern").Msg("completion degraded to fallback reply")
		return degradedReply, nil
	}
	return text, nil
}
