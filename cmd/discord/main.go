package main

import (
	"context"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/rs/zerolog/log"

	"github.com/keshon/velvet/datastore"
	"github.com/keshon/velvet/internal/ai"
	"github.com/keshon/velvet/internal/audit"
	"github.com/keshon/velvet/internal/config"
	"github.com/keshon/velvet/internal/discord"
	"github.com/keshon/velvet/internal/logging"
	"github.com/keshon/velvet/internal/mind"
	v "github.com/keshon/velvet/internal/version"
)

func main() {
	os.Exit(run())
}

func run() int {
	cfg, err := config.New()
	if err != nil {
		logging.Setup("info")
		log.Error().Err(err).Msg("configuration error")
		return 1
	}
	logging.Setup(cfg.LogLevel)
	log.Info().Str("version", v.AppVersion).Msgf("starting %s", v.AppName)

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	auditLog := audit.New(filepath.Join(cfg.DataDir, "events.log"))

	historyCfg := datastore.DefaultConfig(filepath.Join(cfg.DataDir, "history.json"))
	historyCfg.AutoSaveInterval = cfg.HistoryFlushInterval
	historyCfg.OnSave = func() {
		auditLog.Record(audit.TypePersist, map[string]any{"document": "history"})
	}
	historyDS, err := datastore.NewWithConfig(historyCfg)
	if err != nil {
		log.Error().Err(err).Msg("open history store")
		return 1
	}

	memoryCfg := datastore.DefaultConfig(filepath.Join(cfg.DataDir, "memory.json"))
	memoryCfg.AutoSaveInterval = cfg.MemoryFlushInterval
	memoryCfg.OnSave = func() {
		auditLog.Record(audit.TypePersist, map[string]any{"document": "memory"})
	}
	memoryDS, err := datastore.NewWithConfig(memoryCfg)
	if err != nil {
		log.Error().Err(err).Msg("open memory store")
		return 1
	}

	// Shutdown flushes both documents, closes the audit sink and reports
	// failure through the exit code. Runs exactly once, whatever the trigger.
	shutdown := func() int {
		cancel()
		code := 0
		if err := historyDS.Close(); err != nil {
			log.Error().Err(err).Msg("history flush failed")
			code = 1
		}
		if err := memoryDS.Close(); err != nil {
			log.Error().Err(err).Msg("memory flush failed")
			code = 1
		}
		auditLog.Record(audit.TypeLifecycle, map[string]any{"event": "shutdown", "clean": code == 0})
		auditLog.Close()
		return code
	}

	store := mind.NewStore(historyDS, memoryDS, cfg.ScopeMode == "peruser", cfg.MaxTurns)
	provider := ai.NewOpenAIProvider(cfg.AIBaseURL, cfg.AIAPIKey, cfg.AIModel, cfg.AITimeout)
	condenser := mind.NewCondenser(store, provider, auditLog, cfg.CondenseInterval)

	cooldowns := mind.NewCooldownTable(cfg.ReplyCooldown)
	go cooldowns.RunSweeper(ctx)

	gate := mind.NewGate(store, provider, auditLog, cooldowns, mind.GateConfig{
		BotName:          cfg.BotName,
		Keywords:         cfg.Keywords,
		ContinuityWindow: cfg.ContinuityWindow,
		UseClassifier:    cfg.GateMode == "classifier",
	})

	var tools *mind.ServiceManager
	if cfg.ManagedService != "" && cfg.ManagedServiceCmd != "" {
		tools = mind.NewServiceManager(cfg.ManagedService, cfg.ManagedServiceCmd)
		log.Info().Str("service", cfg.ManagedService).Msg("tool dispatch enabled")
	}

	generator := mind.NewGenerator(store, provider, condenser, auditLog, tools, mind.GeneratorConfig{
		PersonaPath:    cfg.PersonaPath,
		TokenBudget:    cfg.ContextTokenBudget,
		MaxReplyTokens: cfg.MaxReplyTokens,
		Temperature:    cfg.Temperature,
	})

	bot := discord.NewBot(cfg, gate, generator, cooldowns, auditLog)
	auditLog.Record(audit.TypeLifecycle, map[string]any{"event": "startup", "scope_mode": cfg.ScopeMode, "gate_mode": cfg.GateMode})

	errCh := make(chan error, 1)
	go func() {
		defer func() {
			// An unhandled fault is a shutdown trigger, not a crash: state
			// still gets flushed below.
			if r := recover(); r != nil {
				log.Error().Any("panic", r).Msg("unhandled fault")
				errCh <- nil
			}
		}()
		errCh <- bot.Run(ctx)
	}()

	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	select {
	case s := <-sig:
		log.Info().Str("signal", s.String()).Msg("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error().Err(err).Msg("gateway error")
		}
	}

	code := shutdown()
	log.Info().Int("code", code).Msg("exited")
	return code
}
