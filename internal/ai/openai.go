package ai

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"golang.org/x/time/rate"
)

// OpenAIProvider talks to any OpenAI-compatible chat-completions endpoint.
// A single instance is shared process-wide; the limiter bounds the global
// request rate regardless of how many conversations are active.
type OpenAIProvider struct {
	baseURL string
	apiKey  string
	model   string
	client  *http.Client
	limiter *rate.Limiter
}

// NewOpenAIProvider creates a provider for baseURL (the full chat-completions
// endpoint, e.g. "https://text.pollinations.ai/openai"). apiKey may be empty
// for keyless endpoints.
func NewOpenAIProvider(baseURL, apiKey, model string, timeout time.Duration) *OpenAIProvider {
	if timeout <= 0 {
		timeout = 25 * time.Second
	}
	return &OpenAIProvider{
		baseURL: baseURL,
		apiKey:  apiKey,
		model:   model,
		client:  &http.Client{Timeout: timeout},
		limiter: rate.NewLimiter(rate.Every(5*time.Second), 3),
	}
}

type wireToolFunction struct {
	Name        string          `json:"name"`
	Description string          `json:"description,omitempty"`
	Parameters  json.RawMessage `json:"parameters,omitempty"`
}

type wireTool struct {
	Type     string           `json:"type"`
	Function wireToolFunction `json:"function"`
}

type wireRequest struct {
	Model       string     `json:"model"`
	Messages    []Message  `json:"messages"`
	MaxTokens   int        `json:"max_tokens,omitempty"`
	Temperature float64    `json:"temperature"`
	Tools       []wireTool `json:"tools,omitempty"`
	Private     bool       `json:"private"`
}

type wireResponse struct {
	Choices []struct {
		Message struct {
			Content   string `json:"content"`
			ToolCalls []struct {
				Function struct {
					Name      string `json:"name"`
					Arguments string `json:"arguments"`
				} `json:"function"`
			} `json:"tool_calls"`
		} `json:"message"`
	} `json:"choices"`
	Usage struct {
		TotalTokens int `json:"total_tokens"`
	} `json:"usage"`
}

// emptyParams is the schema for tools that take no arguments.
var emptyParams = json.RawMessage(`{"type":"object","properties":{}}`)

// Generate performs one completion call.
func (p *OpenAIProvider) Generate(ctx context.Context, req Request) (*Result, error) {
	if err := p.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("rate limiter: %w", err)
	}

	wr := wireRequest{
		Model:       p.model,
		Messages:    req.Messages,
		MaxTokens:   req.MaxTokens,
		Temperature: req.Temperature,
		Private:     true,
	}
	for _, t := range req.Tools {
		wr.Tools = append(wr.Tools, wireTool{
			Type: "function",
			Function: wireToolFunction{
				Name:        t.Name,
				Description: t.Description,
				Parameters:  emptyParams,
			},
		})
	}

	body, err := json.Marshal(wr)
	if err != nil {
		return nil, err
	}

	httpReq, err := http.NewRequestWithContext(ctx, http.MethodPost, p.baseURL, bytes.NewReader(body))
	if err != nil {
		return nil, err
	}
	httpReq.Header.Set("Content-Type", "application/json")
	if p.apiKey != "" {
		httpReq.Header.Set("Authorization", "Bearer "+p.apiKey)
	}

	resp, err := p.client.Do(httpReq)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(io.LimitReader(resp.Body, 256*1024))
	if err != nil {
		return nil, err
	}

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, &StatusError{Code: resp.StatusCode, Body: truncate(respBody)}
	}

	var parsed wireResponse
	if err := json.Unmarshal(respBody, &parsed); err != nil {
		return nil, fmt.Errorf("unmarshal response: %w body=%s", err, truncate(respBody))
	}
	if len(parsed.Choices) == 0 {
		return nil, fmt.Errorf("empty choices")
	}

	choice := parsed.Choices[0]
	res := &Result{UsedTokens: parsed.Usage.TotalTokens}

	if len(choice.Message.ToolCalls) > 0 {
		tc := choice.Message.ToolCalls[0]
		res.ToolCall = &ToolCall{Name: tc.Function.Name, Arguments: tc.Function.Arguments}
		return res, nil
	}

	reply := cleanReply(choice.Message.Content)
	if isGarbageResponse(reply) {
		return nil, fmt.Errorf("garbage response: %s", truncate([]byte(reply)))
	}
	res.Text = reply
	return res, nil
}
