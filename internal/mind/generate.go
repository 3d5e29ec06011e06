package mind

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/velvet/internal/ai"
	"github.com/keshon/velvet/internal/audit"
)

// Fallback is spoken when generation fails. Callers never see an error.
const Fallback = "Ugh. My train of thought just derailed — give me a moment and ask again."

// GeneratorConfig tunes prompt assembly and the completion call.
type GeneratorConfig struct {
	PersonaPath    string
	TokenBudget    int // ceiling for the budgeted message list
	MaxReplyTokens int
	Temperature    float64
}

// Generator assembles context, calls the completion API and records both
// sides of the exchange in the short-term log.
type Generator struct {
	store     *Store
	provider  ai.Provider
	condenser *Condenser
	auditLog  *audit.Log
	tools     *ServiceManager // nil disables tool dispatch
	cfg       GeneratorConfig
	now       func() time.Time
}

// NewGenerator builds a generator. tools may be nil.
func NewGenerator(store *Store, provider ai.Provider, condenser *Condenser, auditLog *audit.Log, tools *ServiceManager, cfg GeneratorConfig) *Generator {
	if cfg.TokenBudget <= 0 {
		cfg.TokenBudget = 3000
	}
	return &Generator{
		store:     store,
		provider:  provider,
		condenser: condenser,
		auditLog:  auditLog,
		tools:     tools,
		cfg:       cfg,
		now:       time.Now,
	}
}

// Generate produces the reply for one admitted message. It always returns
// something sendable; failures come back as the fixed fallback line.
func (g *Generator) Generate(ctx context.Context, identityID, label, text string) string {
	scopeID := g.store.ScopeID(identityID)
	now := g.now()

	g.store.RegisterIdentity(scopeID, identityID, label)

	// Condense before pushing: the trigger point is the pre-push count.
	if g.condenser.Due(len(g.store.Turns(scopeID))) {
		if err := g.condenser.Condense(ctx, scopeID); err != nil {
			log.Warn().Err(err).Str("scope", scopeID).Msg("condensation failed, carrying on with full log")
			g.auditLog.Record(audit.TypeError, map[string]any{"scope": scopeID, "op": "condense", "err": err.Error()})
		}
	}

	g.store.AppendTurn(scopeID, Turn{Role: RoleUser, Speaker: label, Text: text, At: now})
	turns := g.store.Turns(scopeID)

	mem := g.store.Memory(scopeID)
	messages := []ai.Message{{Role: "system", Content: BuildPersona(g.personaText(), mem, now)}}
	for _, t := range turns {
		if t.Role == RoleAssistant {
			messages = append(messages, ai.Message{Role: RoleAssistant, Content: t.Text})
		} else {
			messages = append(messages, ai.Message{Role: RoleUser, Content: t.Speaker + ": " + t.Text})
		}
	}
	messages = FitMessages(messages, g.cfg.TokenBudget)

	req := ai.Request{
		Messages:    messages,
		MaxTokens:   g.cfg.MaxReplyTokens,
		Temperature: g.cfg.Temperature,
	}
	if g.tools != nil {
		req.Tools = g.tools.Specs()
	}

	res, err := g.provider.Generate(ctx, req)
	if err != nil {
		g.logFailure(scopeID, identityID, err)
		return Fallback
	}

	reply := res.Text
	if res.ToolCall != nil {
		// A tool call with dispatch disabled is a provider fault, not a
		// reason to crash the exchange.
		if g.tools == nil {
			g.logFailure(scopeID, identityID, fmt.Errorf("tool call %q with tool dispatch disabled", res.ToolCall.Name))
			return Fallback
		}
		reply = g.tools.Dispatch(ctx, res.ToolCall)
		g.auditLog.Record(audit.TypeTool, map[string]any{
			"scope":    scopeID,
			"identity": identityID,
			"tool":     res.ToolCall.Name,
			"result":   reply,
		})
	}

	g.store.AppendTurn(scopeID, Turn{Role: RoleAssistant, Text: reply, At: g.now()})
	g.auditLog.Record(audit.TypeReply, map[string]any{
		"scope":    scopeID,
		"identity": identityID,
		"tokens":   res.UsedTokens,
		"len":      len(reply),
	})
	return reply
}

// logFailure records a generation failure with the provider status category
// when one is available.
func (g *Generator) logFailure(scopeID, identityID string, err error) {
	details := map[string]any{"scope": scopeID, "identity": identityID, "op": "generate", "err": err.Error()}
	var statusErr *ai.StatusError
	if errors.As(err, &statusErr) {
		details["status"] = statusErr.Code
		details["category"] = string(statusErr.Category())
		log.Error().Err(err).Int("status", statusErr.Code).Str("category", string(statusErr.Category())).Msg("generation failed")
	} else {
		log.Error().Err(err).Msg("generation failed")
	}
	g.auditLog.Record(audit.TypeError, details)
}

// personaText reads the persona file on every call so edits apply live.
// A missing file falls back to the built-in persona.
func (g *Generator) personaText() string {
	if g.cfg.PersonaPath == "" {
		return DefaultPersona
	}
	b, err := os.ReadFile(g.cfg.PersonaPath)
	if err != nil || len(b) == 0 {
		return DefaultPersona
	}
	return string(b)
}
