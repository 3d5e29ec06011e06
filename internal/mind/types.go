package mind

import "time"

// Turn is one conversational event. Immutable once appended; destroyed only
// by trimming or condensation.
type Turn struct {
	Role    string    `json:"role"`              // "user" | "assistant"
	Speaker string    `json:"speaker,omitempty"` // display label, user turns only
	Text    string    `json:"text"`
	At      time.Time `json:"at"`
}

const (
	RoleUser      = "user"
	RoleAssistant = "assistant"
)

// IdentityRecord tracks one known participant. Never deleted.
type IdentityRecord struct {
	CurrentLabel string   `json:"current_label"`
	PriorLabels  []string `json:"prior_labels,omitempty"` // deduplicated, oldest first
}

// LongTermMemory is the distilled memory for one scope. Summaries and Facts
// are mutated only by condensation; Identities by the generator.
type LongTermMemory struct {
	Summaries  []string                   `json:"summaries"`
	Facts      []string                   `json:"facts"`
	Identities map[string]*IdentityRecord `json:"identities"`
}

const (
	MaxSummaries = 3
	MaxFacts     = 10

	// SharedScopeID keys the single conversation scope in shared mode.
	SharedScopeID = "shared"
)
