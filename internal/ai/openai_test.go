package ai

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newTestProvider(t *testing.T, handler http.HandlerFunc) *OpenAIProvider {
	t.Helper()
	srv := httptest.NewServer(handler)
	t.Cleanup(srv.Close)
	return NewOpenAIProvider(srv.URL, "test-key", "test-model", 5*time.Second)
}

func completionJSON(content string) string {
	return `{"choices":[{"message":{"content":` + mustJSON(content) + `}}],"usage":{"total_tokens":42}}`
}

func mustJSON(s string) string {
	b, _ := json.Marshal(s)
	return string(b)
}

func TestGenerateSuccess(t *testing.T) {
	var captured wireRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		assert.Equal(t, "Bearer test-key", r.Header.Get("Authorization"))
		assert.Equal(t, "application/json", r.Header.Get("Content-Type"))
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(completionJSON("hello there")))
	})

	res, err := p.Generate(context.Background(), Request{
		Messages:    []Message{{Role: "system", Content: "be brief"}, {Role: "user", Content: "hi"}},
		MaxTokens:   100,
		Temperature: 0.5,
	})
	require.NoError(t, err)
	assert.Equal(t, "hello there", res.Text)
	assert.Equal(t, 42, res.UsedTokens)
	assert.Nil(t, res.ToolCall)

	assert.Equal(t, "test-model", captured.Model)
	assert.Equal(t, 100, captured.MaxTokens)
	assert.True(t, captured.Private)
	assert.Empty(t, captured.Tools)
}

func TestGenerateAdvertisesTools(t *testing.T) {
	var captured wireRequest
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		require.NoError(t, json.NewDecoder(r.Body).Decode(&captured))
		w.Write([]byte(`{"choices":[{"message":{"tool_calls":[{"function":{"name":"service_start","arguments":"{}"}}]}}]}`))
	})

	res, err := p.Generate(context.Background(), Request{
		Messages: []Message{{Role: "user", Content: "start it"}},
		Tools:    []ToolSpec{{Name: "service_start", Description: "Start the service."}},
	})
	require.NoError(t, err)
	require.NotNil(t, res.ToolCall)
	assert.Equal(t, "service_start", res.ToolCall.Name)
	assert.Empty(t, res.Text)

	require.Len(t, captured.Tools, 1)
	assert.Equal(t, "function", captured.Tools[0].Type)
	assert.Equal(t, "service_start", captured.Tools[0].Function.Name)
}

func TestGenerateEmptyChoices(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"choices":[]}`))
	})

	_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "empty choices")
}

func TestGenerateStatusError(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusTooManyRequests)
		w.Write([]byte(`slow down`))
	})

	_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)

	var statusErr *StatusError
	require.ErrorAs(t, err, &statusErr)
	assert.Equal(t, 429, statusErr.Code)
	assert.Equal(t, CategoryRateLimited, statusErr.Category())
	assert.Contains(t, statusErr.Error(), "rate limited")
}

func TestGenerateRejectsGarbage(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionJSON("<html><body>gateway error</body></html>")))
	})

	_, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "garbage response")
}

func TestGenerateStripsThinkBlocksAndQuotes(t *testing.T) {
	p := newTestProvider(t, func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(completionJSON("<think>they want a greeting</think>\n\"well hello\"")))
	})

	res, err := p.Generate(context.Background(), Request{Messages: []Message{{Role: "user", Content: "hi"}}})
	require.NoError(t, err)
	assert.Equal(t, "well hello", res.Text)
}
