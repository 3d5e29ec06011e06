package mind

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/velvet/internal/ai"
	"github.com/keshon/velvet/internal/audit"
)

// SummaryPrompt instructs the model to compress a conversation window into a
// narrative summary. No persona — just summarization.
const SummaryPrompt = `You are a summarizer. Condense the following conversation into a short narrative summary. Keep who said what: always attribute statements and events to the named speakers. Output ONLY the summary text, no preamble. Maximum 2 short paragraphs.`

// FactsPrompt asks for salient facts as plain newline-delimited items.
const FactsPrompt = `You are an archivist. From the following conversation, extract the salient facts worth remembering long-term (names, preferences, events, decisions). Output one fact per line, plain text, no numbering, no bullets, no preamble. Output nothing else.`

// Condenser compacts the oldest short-term turns into summaries and facts.
type Condenser struct {
	store    *Store
	provider ai.Provider
	auditLog *audit.Log
	interval int
}

// NewCondenser returns a condenser that fires once a scope holds at least
// interval turns.
func NewCondenser(store *Store, provider ai.Provider, auditLog *audit.Log, interval int) *Condenser {
	return &Condenser{
		store:    store,
		provider: provider,
		auditLog: auditLog,
		interval: interval,
	}
}

// Due reports whether a scope with turnCount recorded turns needs
// condensation. The check runs against the pre-push count: the inbound turn
// that triggered the handler is not yet in the log.
func (c *Condenser) Due(turnCount int) bool {
	return turnCount >= c.interval
}

// Condense compacts scopeID: one completion call for an updated summary, one
// for new facts, then the short-term log is cut down to the condensation
// window. The summarized turns stay verbatim for one more cycle, bounding
// what a single pass can lose. If either call fails, nothing is modified.
func (c *Condenser) Condense(ctx context.Context, scopeID string) error {
	turns := c.store.Turns(scopeID)
	if len(turns) < c.interval {
		return nil
	}
	window := turns[len(turns)-c.interval:]
	transcript := RenderTranscript(window)

	summary, err := c.requestSummary(ctx, transcript)
	if err != nil {
		return fmt.Errorf("summary call: %w", err)
	}
	facts, err := c.requestFacts(ctx, transcript)
	if err != nil {
		return fmt.Errorf("facts call: %w", err)
	}

	// Both calls succeeded; only now touch state.
	mem := c.store.Memory(scopeID)
	mem.Summaries = append(mem.Summaries, summary)
	if len(mem.Summaries) > MaxSummaries {
		mem.Summaries = mem.Summaries[len(mem.Summaries)-MaxSummaries:]
	}
	mem.Facts = mergeFacts(mem.Facts, facts, MaxFacts)
	c.store.SetMemory(scopeID, mem)
	c.store.SetTurns(scopeID, window)

	log.Info().Str("scope", scopeID).Int("window", len(window)).Int("facts", len(facts)).Msg("condensed")
	c.auditLog.Record(audit.TypeCondense, map[string]any{
		"scope":     scopeID,
		"window":    len(window),
		"summaries": len(mem.Summaries),
		"facts":     len(mem.Facts),
	})
	return nil
}

func (c *Condenser) requestSummary(ctx context.Context, transcript string) (string, error) {
	res, err := c.provider.Generate(ctx, ai.Request{
		Messages: []ai.Message{
			{Role: "system", Content: SummaryPrompt},
			{Role: "user", Content: transcript},
		},
		MaxTokens:   300,
		Temperature: 0.2,
	})
	if err != nil {
		return "", err
	}
	summary := strings.TrimSpace(res.Text)
	if summary == "" {
		return "", fmt.Errorf("summarizer returned empty")
	}
	return summary, nil
}

func (c *Condenser) requestFacts(ctx context.Context, transcript string) ([]string, error) {
	res, err := c.provider.Generate(ctx, ai.Request{
		Messages: []ai.Message{
			{Role: "system", Content: FactsPrompt},
			{Role: "user", Content: transcript},
		},
		MaxTokens:   200,
		Temperature: 0.2,
	})
	if err != nil {
		return nil, err
	}
	var facts []string
	for _, line := range strings.Split(res.Text, "\n") {
		line = strings.TrimSpace(line)
		if line == "" {
			continue
		}
		facts = append(facts, line)
	}
	return facts, nil
}

// mergeFacts appends incoming facts to existing ones, skipping exact
// duplicates, and keeps the last limit items by merge order.
func mergeFacts(existing, incoming []string, limit int) []string {
	merged := make([]string, len(existing))
	copy(merged, existing)
	known := make(map[string]bool, len(existing))
	for _, f := range existing {
		known[f] = true
	}
	for _, f := range incoming {
		if known[f] {
			continue
		}
		known[f] = true
		merged = append(merged, f)
	}
	if len(merged) > limit {
		merged = merged[len(merged)-limit:]
	}
	return merged
}

// RenderTranscript formats turns for model input, user turns prefixed with
// their speaker label.
func RenderTranscript(turns []Turn) string {
	var b strings.Builder
	for _, t := range turns {
		if t.Role == RoleAssistant {
			b.WriteString("Assistant: ")
		} else {
			b.WriteString(t.Speaker)
			b.WriteString(": ")
		}
		b.WriteString(t.Text)
		b.WriteString("\n")
	}
	return b.String()
}

// RecentTranscript renders only the turns newer than cutoff.
func RecentTranscript(turns []Turn, cutoff time.Time) string {
	start := len(turns)
	for i := len(turns) - 1; i >= 0; i-- {
		if turns[i].At.Before(cutoff) {
			break
		}
		start = i
	}
	return RenderTranscript(turns[start:])
}
