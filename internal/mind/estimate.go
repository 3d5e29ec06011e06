package mind

import (
	"unicode/utf8"

	"github.com/keshon/velvet/internal/ai"
)

// CharsPerToken is the rough chars-per-token ratio for chat text. Good enough
// for budget trimming, not for billing.
const CharsPerToken = 4

// EstimateTokens approximates the model-token cost of s from its rune count.
// Zero for empty text, monotonically non-decreasing in length.
func EstimateTokens(s string) int {
	return utf8.RuneCountInString(s) / CharsPerToken
}

// messageCost is the estimated cost of one message including role overhead.
func messageCost(m ai.Message) int {
	return EstimateTokens(m.Content) + 4
}

// FitMessages returns the largest contiguous suffix of msgs whose total
// estimated cost stays within ceiling. The scan runs newest to oldest and
// stops at the first message that would overflow; earlier messages are never
// admitted past that point. The system preamble is an ordinary element and
// can itself be dropped.
func FitMessages(msgs []ai.Message, ceiling int) []ai.Message {
	if ceiling <= 0 {
		return nil
	}
	total := 0
	start := len(msgs)
	for i := len(msgs) - 1; i >= 0; i-- {
		cost := messageCost(msgs[i])
		if total+cost > ceiling {
			break
		}
		total += cost
		start = i
	}
	return msgs[start:]
}
