package discord

import (
	"context"
	"strings"
	"sync/atomic"
	"time"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/keshon/velvet/internal/audit"
	"github.com/keshon/velvet/internal/mind"
)

// slowReplyThreshold arms the watchdog that marks a message as slow. The
// underlying request is never cancelled; it settles on its own.
const slowReplyThreshold = 15 * time.Second

func (b *Bot) onMessageCreate(s *discordgo.Session, m *discordgo.MessageCreate) {
	if m.Author == nil || m.Author.ID == s.State.User.ID || m.Author.Bot {
		return
	}

	defer func() {
		// One broken conversation must not take the handler down.
		if r := recover(); r != nil {
			log.Error().Any("panic", r).Str("message", m.ID).Msg("message handler fault")
			b.auditLog.Record(audit.TypeError, map[string]any{"op": "handler", "panic": true})
			b.react(m, emojiFault)
		}
	}()

	text := strings.TrimSpace(m.Content)
	if text == "" {
		return
	}

	display := m.Author.Username
	if m.Member != nil && m.Member.Nick != "" {
		display = m.Member.Nick
	}

	// No DMs: the agent lives in server channels.
	if m.GuildID == "" {
		b.send(m, display+", I don't chat in DMs. Talk to me on a server channel.")
		return
	}

	mentioned := false
	for _, u := range m.Mentions {
		if u.ID == s.State.User.ID {
			mentioned = true
			break
		}
	}

	b.mu.Lock()
	defer b.mu.Unlock()

	b.handleChat(s, m, display, text, mentioned)
}

func (b *Bot) handleChat(s *discordgo.Session, m *discordgo.MessageCreate, display, text string, mentioned bool) {
	ctx := context.Background()
	now := time.Now()
	userID := m.Author.ID

	decision := b.gate.Decide(ctx, userID, text, mentioned, now)
	switch decision.Verdict {
	case mind.VerdictCooldown:
		log.Debug().Str("user", userID).Str("reason", decision.Reason).Msg("suppressed by cooldown")
		b.react(m, emojiCooldown)
		return
	case mind.VerdictSilent:
		log.Debug().Str("user", userID).Str("reason", decision.Reason).Msg("no reply warranted")
		return
	}

	b.react(m, emojiAck)
	_ = s.ChannelTyping(m.ChannelID)

	var slowMarked atomic.Bool
	watchdog := time.AfterFunc(slowReplyThreshold, func() {
		slowMarked.Store(true)
		b.react(m, emojiSlow)
	})

	reply := b.generator.Generate(ctx, userID, display, text)

	watchdog.Stop()
	if slowMarked.Load() {
		b.unreact(m, emojiSlow)
	}

	b.send(m, reply)
	b.cooldowns.Mark(userID, time.Now())
}

// send replies to the originating message without pinging its author,
// splitting at the platform message limit.
func (b *Bot) send(m *discordgo.MessageCreate, text string) {
	for _, chunk := range splitMessage(text, 2000) {
		_, err := b.dg.ChannelMessageSendComplex(m.ChannelID, &discordgo.MessageSend{
			Content:         chunk,
			Reference:       m.Reference(),
			AllowedMentions: &discordgo.MessageAllowedMentions{},
		})
		if err != nil {
			log.Error().Err(err).Str("channel", m.ChannelID).Msg("send failed")
			return
		}
		time.Sleep(200 * time.Millisecond)
	}
}

func (b *Bot) react(m *discordgo.MessageCreate, emoji string) {
	if err := b.dg.MessageReactionAdd(m.ChannelID, m.ID, emoji); err != nil {
		log.Debug().Err(err).Msg("reaction failed")
	}
}

func (b *Bot) unreact(m *discordgo.MessageCreate, emoji string) {
	if err := b.dg.MessageReactionRemove(m.ChannelID, m.ID, emoji, "@me"); err != nil {
		log.Debug().Err(err).Msg("reaction removal failed")
	}
}

// splitMessage cuts long replies at newlines under the given limit.
func splitMessage(msg string, limit int) []string {
	var result []string
	for len(msg) > limit {
		cut := strings.LastIndex(msg[:limit], "\n")
		if cut == -1 {
			cut = limit
		}
		result = append(result, strings.TrimSpace(msg[:cut]))
		msg = strings.TrimSpace(msg[cut:])
	}
	if msg != "" {
		result = append(result, msg)
	}
	return result
}
