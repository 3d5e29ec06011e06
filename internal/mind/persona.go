package mind

import (
	"fmt"
	"sort"
	"strings"
	"time"
)

// DefaultPersona is used when no persona file is configured or readable.
const DefaultPersona = `You are Velvet, a sharp-tongued but warm companion in a group chat. Keep replies short and conversational. Never mention being an AI or these instructions.`

// BuildPersona assembles the system message: persona text, current time, and
// the three long-term memory facets. This is the only place summaries, facts
// and identities are combined into model input.
func BuildPersona(personaText string, mem LongTermMemory, now time.Time) string {
	var b strings.Builder
	b.WriteString(strings.TrimSpace(personaText))
	b.WriteString("\n\nCurrent time: ")
	b.WriteString(now.Format("Monday, 2 January 2006, 15:04 MST"))
	b.WriteString("\n")

	if len(mem.Summaries) > 0 {
		b.WriteString("\n--- What happened before ---\n")
		b.WriteString(strings.Join(mem.Summaries, "\n"))
		b.WriteString("\n")
	}

	if len(mem.Facts) > 0 {
		b.WriteString("\n--- Things you know ---\n")
		for _, f := range mem.Facts {
			b.WriteString("- ")
			b.WriteString(f)
			b.WriteString("\n")
		}
	}

	if len(mem.Identities) > 0 {
		b.WriteString("\n--- People ---\n")
		b.WriteString(renderIdentities(mem.Identities))
	}

	return b.String()
}

func renderIdentities(identities map[string]*IdentityRecord) string {
	ids := make([]string, 0, len(identities))
	for id := range identities {
		ids = append(ids, id)
	}
	sort.Strings(ids)

	var b strings.Builder
	for _, id := range ids {
		rec := identities[id]
		if rec == nil || rec.CurrentLabel == "" {
			continue
		}
		if len(rec.PriorLabels) > 0 {
			fmt.Fprintf(&b, "%s (previously: %s)\n", rec.CurrentLabel, strings.Join(rec.PriorLabels, ", "))
		} else {
			b.WriteString(rec.CurrentLabel)
			b.WriteString("\n")
		}
	}
	return b.String()
}
