// Package discord wires the mind to the Discord gateway: one persistent
// session, one message handler, reaction glyphs for the user-visible
// decision outcomes.
package discord

import (
	"context"
	"fmt"
	"sync"

	"github.com/bwmarrin/discordgo"
	"github.com/rs/zerolog/log"

	"github.com/keshon/velvet/internal/audit"
	"github.com/keshon/velvet/internal/config"
	"github.com/keshon/velvet/internal/mind"
)

// Reaction glyphs attached to inbound messages.
const (
	emojiAck      = "👀" // message admitted, reply under way
	emojiCooldown = "🧊" // suppressed: identity is cooling down
	emojiSlow     = "⏳" // generation is taking long
	emojiFault    = "⚠️" // handler-level fault
)

// Bot is the Discord-facing half of the agent.
type Bot struct {
	dg        *discordgo.Session
	cfg       *config.Config
	gate      *mind.Gate
	generator *mind.Generator
	cooldowns *mind.CooldownTable
	auditLog  *audit.Log

	// mu serializes the gate-generate-reply sequence: one inbound message is
	// fully processed before the next mutates shared state.
	mu sync.Mutex
}

// NewBot wires the components together.
func NewBot(cfg *config.Config, gate *mind.Gate, generator *mind.Generator, cooldowns *mind.CooldownTable, auditLog *audit.Log) *Bot {
	return &Bot{
		cfg:       cfg,
		gate:      gate,
		generator: generator,
		cooldowns: cooldowns,
		auditLog:  auditLog,
	}
}

// Run opens the gateway connection and blocks until ctx is cancelled.
func (b *Bot) Run(ctx context.Context) error {
	dg, err := discordgo.New("Bot " + b.cfg.DiscordToken)
	if err != nil {
		return fmt.Errorf("create session: %w", err)
	}
	b.dg = dg

	dg.Identify.Intents = discordgo.IntentsGuildMessages |
		discordgo.IntentsDirectMessages |
		discordgo.IntentMessageContent

	dg.AddHandler(b.onReady)
	dg.AddHandler(b.onMessageCreate)

	if err := dg.Open(); err != nil {
		return fmt.Errorf("open gateway: %w", err)
	}
	defer dg.Close()

	b.auditLog.Record(audit.TypeLifecycle, map[string]any{"event": "gateway_open"})

	<-ctx.Done()
	log.Info().Msg("shutdown signal received, closing gateway")
	b.auditLog.Record(audit.TypeLifecycle, map[string]any{"event": "gateway_close"})
	return nil
}

func (b *Bot) onReady(s *discordgo.Session, r *discordgo.Ready) {
	log.Info().Str("user", r.User.Username).Int("guilds", len(r.Guilds)).Msg("gateway ready")
}
