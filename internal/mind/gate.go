package mind

import (
	"context"
	"strings"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/keshon/velvet/internal/ai"
	"github.com/keshon/velvet/internal/audit"
)

// Verdict is the outcome of the per-message response gate.
type Verdict int

const (
	// VerdictAdmit lets the message through to generation.
	VerdictAdmit Verdict = iota
	// VerdictCooldown suppresses unconditionally: the identity replied too
	// recently. Checked before any trigger.
	VerdictCooldown
	// VerdictSilent suppresses because nothing warranted a reply.
	VerdictSilent
)

// Decision carries the verdict plus the data logged for auditing.
type Decision struct {
	Verdict       Verdict
	Reason        string
	ClassifierRaw string // raw classifier output when one was consulted
}

// GateConfig tunes the admit/suppress policy.
type GateConfig struct {
	BotName          string        // name substring trigger, matched lowercased
	Keywords         []string      // optional topic keywords; empty disables
	ContinuityWindow time.Duration // recency window for the continuity trigger
	UseClassifier    bool          // decide continuity with a model call
}

// ClassifierPrompt forces a one-word answer so the reply parses trivially.
const ClassifierPrompt = `You observe a group chat in which an assistant participates. Given the recent conversation and one new message, answer whether the new message continues a conversation the assistant is part of and expects the assistant to respond. Answer with exactly one word: YES or NO. No punctuation, nothing else.`

// classifierContextWindow bounds how much history the classifier sees, and
// doubles as the staleness cutoff: with no turn this recent there is nothing
// to continue and no call is made.
const classifierContextWindow = 5 * time.Minute

// Gate decides, per inbound message, whether a reply is warranted.
type Gate struct {
	store     *Store
	provider  ai.Provider
	auditLog  *audit.Log
	cooldowns *CooldownTable
	cfg       GateConfig
}

// NewGate builds a gate. provider is only consulted in classifier mode.
func NewGate(store *Store, provider ai.Provider, auditLog *audit.Log, cooldowns *CooldownTable, cfg GateConfig) *Gate {
	if cfg.ContinuityWindow <= 0 {
		cfg.ContinuityWindow = 30 * time.Second
	}
	return &Gate{
		store:     store,
		provider:  provider,
		auditLog:  auditLog,
		cooldowns: cooldowns,
		cfg:       cfg,
	}
}

// Decide runs the gate for one inbound message. The scope is derived from
// the sender through the store's mapping. mentioned is the platform-level
// mention flag. The cooldown check precedes all triggers. Every decision is
// written to the audit log.
func (g *Gate) Decide(ctx context.Context, identityID, text string, mentioned bool, now time.Time) Decision {
	scopeID := g.store.ScopeID(identityID)
	d := g.decide(ctx, scopeID, identityID, text, mentioned, now)
	g.auditLog.Record(audit.TypeGate, map[string]any{
		"scope":      scopeID,
		"identity":   identityID,
		"verdict":    verdictLabel(d.Verdict),
		"reason":     d.Reason,
		"classifier": d.ClassifierRaw,
	})
	return d
}

func (g *Gate) decide(ctx context.Context, scopeID, identityID, text string, mentioned bool, now time.Time) Decision {
	if remaining, active := g.cooldowns.Active(identityID, now); active {
		return Decision{Verdict: VerdictCooldown, Reason: "cooldown " + remaining.Round(time.Second).String() + " remaining"}
	}

	lower := strings.ToLower(text)

	if mentioned {
		return Decision{Verdict: VerdictAdmit, Reason: "direct mention"}
	}
	if g.cfg.BotName != "" && strings.Contains(lower, strings.ToLower(g.cfg.BotName)) {
		return Decision{Verdict: VerdictAdmit, Reason: "name in text"}
	}

	for _, kw := range g.cfg.Keywords {
		kw = strings.ToLower(strings.TrimSpace(kw))
		if kw != "" && strings.Contains(lower, kw) {
			return Decision{Verdict: VerdictAdmit, Reason: "keyword: " + kw}
		}
	}

	return g.continuity(ctx, scopeID, text, now)
}

// continuity admits when the conversation is still warm: the scope's last
// turn landed inside the recency window. In classifier mode the model makes
// that call instead, fed the last few minutes of conversation.
func (g *Gate) continuity(ctx context.Context, scopeID, text string, now time.Time) Decision {
	turns := g.store.Turns(scopeID)
	if len(turns) == 0 {
		return Decision{Verdict: VerdictSilent, Reason: "no trigger, empty scope"}
	}
	last := turns[len(turns)-1].At

	if !g.cfg.UseClassifier {
		if now.Sub(last) <= g.cfg.ContinuityWindow {
			return Decision{Verdict: VerdictAdmit, Reason: "continuity"}
		}
		return Decision{Verdict: VerdictSilent, Reason: "no trigger"}
	}

	// Nothing recent enough to continue — skip the call entirely.
	if now.Sub(last) > classifierContextWindow {
		return Decision{Verdict: VerdictSilent, Reason: "no trigger, conversation stale"}
	}

	transcript := RecentTranscript(turns, now.Add(-classifierContextWindow))
	res, err := g.provider.Generate(ctx, ai.Request{
		Messages: []ai.Message{
			{Role: "system", Content: ClassifierPrompt},
			{Role: "user", Content: "Recent conversation:\n" + transcript + "\nNew message:\n" + text},
		},
		MaxTokens:   4,
		Temperature: 0,
	})
	if err != nil {
		// Fail closed: a broken classifier must not make the bot chatty.
		log.Warn().Err(err).Str("scope", scopeID).Msg("continuity classifier failed")
		return Decision{Verdict: VerdictSilent, Reason: "classifier error"}
	}

	raw := strings.TrimSpace(res.Text)
	if strings.EqualFold(strings.TrimRight(raw, ".!"), "YES") {
		return Decision{Verdict: VerdictAdmit, Reason: "classifier", ClassifierRaw: raw}
	}
	return Decision{Verdict: VerdictSilent, Reason: "classifier", ClassifierRaw: raw}
}

func verdictLabel(v Verdict) string {
	switch v {
	case VerdictAdmit:
		return "admit"
	case VerdictCooldown:
		return "cooldown"
	default:
		return "silent"
	}
}
