package main

import (
	"context"
	"errors"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"

	"github.com/skirmish/server/internal/auth"
	"github.com/skirmish/server/internal/config"
	"github.com/skirmish/server/internal/data"
	"github.com/skirmish/server/internal/game"
	"github.com/skirmish/server/internal/persist"
	"github.com/skirmish/server/internal/session"
	"github.com/skirmish/server/internal/ws"
)

func main() {
	if err := run(); err != nil {
		fmt.Fprintf(os.Stderr, "fatal: %v\n", err)
		os.Exit(1)
	}
}

// ── Startup display helpers ────────────────────────────────────────

func printBanner(serverName string, serverID int) {
	fmt.Println()
	fmt.Println("\033[36;1m  ┌───────────────────────────────────────────┐\033[0m")
	fmt.Println("\033[36;1m  │\033[0m            skirmishd  v0.1.0              \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  │\033[0m     turn-based tactical combat server     \033[36;1m│\033[0m")
	fmt.Println("\033[36;1m  └───────────────────────────────────────────┘\033[0m")
	fmt.Println()
	fmt.Printf("  \033[1mserver:\033[0m %s \033[90m(id: %d)\033[0m\n\n", serverName, serverID)
}

func printSection(title string) {
	lineLen := 46 - len(title) - 1
	if lineLen < 3 {
		lineLen = 3
	}
	fmt.Printf("  \033[33m── %s %s\033[0m\n", title, strings.Repeat("─", lineLen))
}

func printStat(label string, count int) {
	numStr := fmt.Sprintf("%d", count)
	dotsLen := 42 - len(label) - len(numStr)
	if dotsLen < 3 {
		dotsLen = 3
	}
	fmt.Printf("  %s \033[90m%s\033[0m \033[32m%s\033[0m\n", label, strings.Repeat("·", dotsLen), numStr)
}

func printOK(msg string) {
	fmt.Printf("  \033[32m✓\033[0m %s\n", msg)
}

func printReady(msg string) {
	fmt.Printf("  \033[32m▶\033[0m %s\n", msg)
}

// ── Main server logic ─────────────────────────────────────────────

func run() error {
	// 1. Load config
	cfgPath := "config/server.toml"
	if p := os.Getenv("SKIRMISH_CONFIG"); p != "" {
		cfgPath = p
	}
	cfg, err := config.Load(cfgPath)
	if err != nil {
		if !errors.Is(err, os.ErrNotExist) {
			return fmt.Errorf("load config: %w", err)
		}
		cfg = config.Defaults()
		cfg.Server.StartTime = time.Now().Unix()
	}

	// 2. Init logger
	log, err := newLogger(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer log.Sync()

	printBanner(cfg.Server.Name, cfg.Server.ID)

	// 3. Load static catalogs
	printSection("catalogs")

	weapons, err := data.DefaultWeaponTable()
	if err != nil {
		return fmt.Errorf("weapon table: %w", err)
	}
	printStat("weapon templates", weapons.Count())

	monsters, err := data.DefaultMonsterTable()
	if err != nil {
		return fmt.Errorf("monster table: %w", err)
	}
	printStat("monster templates", monsters.Count())

	loot, err := data.DefaultLootTable()
	if err != nil {
		return fmt.Errorf("loot table: %w", err)
	}
	printStat("loot entries", loot.Count())
	fmt.Println()

	// 4. Save store: file-backed when a path is configured, else Postgres
	printSection("persistence")

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	var store persist.SaveStore
	var db *persist.DB
	switch {
	case cfg.Save.StorePath != "":
		fs, err := persist.NewFileStore(cfg.Save.StorePath)
		if err != nil {
			return fmt.Errorf("file store: %w", err)
		}
		store = fs
		printOK("file store at " + cfg.Save.StorePath)
	case cfg.Database.DSN != "":
		db, err = persist.NewDB(ctx, cfg.Database, log)
		if err != nil {
			return fmt.Errorf("database: %w", err)
		}
		defer db.Close()
		printOK("PostgreSQL connected")

		if err := db.Migrate(ctx); err != nil {
			return fmt.Errorf("migrations: %w", err)
		}
		printOK("migrations applied")
		store = persist.NewPGStore(db)
	default:
		printOK("save store disabled")
	}
	fmt.Println()

	// 5. Token verifier
	printSection("auth")

	var verifier auth.Verifier
	if cfg.Auth.VerifierEndpoint != "" {
		verifier = auth.NewHTTPVerifier(cfg.Auth.VerifierEndpoint, cfg.Auth.VerifyTimeout)
		printOK("token verifier: " + cfg.Auth.VerifierEndpoint)
	} else {
		sv, err := auth.LoadStaticVerifier(cfg.Auth.StaticTokenFile)
		if err != nil {
			return fmt.Errorf("static token file: %w", err)
		}
		verifier = sv
		printOK("static token file: " + cfg.Auth.StaticTokenFile)
	}
	fmt.Println()

	// 6. Wire the engine, session registry, and transport
	engine := game.NewEngine(weapons, loot)

	gameCfg := game.DefaultSessionConfig()
	gameCfg.WallDensity = cfg.Game.WallDensity
	gameCfg.ShopOffset.X = cfg.Game.ShopOffsetX
	gameCfg.ShopOffset.Y = cfg.Game.ShopOffsetY
	gameCfg.SleepHeal = cfg.Game.SleepHeal
	gameCfg.NpcTurnMode = cfg.Game.NpcTurnMode
	gameCfg.GameSpeed = cfg.Game.GameSpeed

	opts := session.DefaultOptions()
	opts.TurnDeadline = cfg.Game.TurnDeadline
	opts.GracePeriod = cfg.Network.GracePeriod

	wsCfg := ws.DefaultConfig()
	wsCfg.AuthDeadline = cfg.Network.AuthDeadline
	wsCfg.GracePeriod = cfg.Network.GracePeriod
	wsCfg.WriteTimeout = cfg.Network.WriteTimeout
	wsCfg.PongTimeout = cfg.Network.PongTimeout
	wsCfg.SendQueueSize = cfg.Network.SendQueueSize
	wsCfg.MaxMessageLen = cfg.Network.MaxMessageLen
	if cfg.RateLimit.Enabled {
		wsCfg.RateWindow = cfg.RateLimit.Window
		wsCfg.ActionLimit = cfg.RateLimit.ActionsPerWindow
		wsCfg.ChatLimit = cfg.RateLimit.ChatPerWindow
	} else {
		wsCfg.ActionLimit = 0
		wsCfg.ChatLimit = 0
	}

	// The registry needs a broadcaster and the manager needs the registry;
	// the closure reads mgr at call time, after both exist.
	var mgr *ws.Manager
	reg := session.NewRegistry(engine, monsters, cfg.Game.MonsterCount, gameCfg, opts,
		session.BroadcastFunc(func(sessionID string, events []game.Event) {
			mgr.BroadcastEvents(sessionID, events)
		}), log)
	mgr = ws.NewManager(wsCfg, reg, verifier, store, log)
	go mgr.Run()

	server := ws.NewServer(cfg.Network.ListenAddress, mgr, log)
	serverErr := make(chan error, 1)
	go func() {
		serverErr <- server.ListenAndServe()
	}()

	printReady("listening on ws://" + cfg.Network.ListenAddress + "/ws")
	fmt.Println()
	log.Info("server started",
		zap.String("name", cfg.Server.Name),
		zap.String("listen", cfg.Network.ListenAddress))

	// 7. Autosave and shutdown loop
	sig := make(chan os.Signal, 1)
	signal.Notify(sig, syscall.SIGINT, syscall.SIGTERM)

	autosaveEvery := cfg.Save.AutosaveInterval
	if autosaveEvery <= 0 {
		autosaveEvery = 5 * time.Minute
	}
	autosave := time.NewTicker(autosaveEvery)
	defer autosave.Stop()

	for {
		select {
		case <-autosave.C:
			if store != nil {
				autosaveSessions(reg, store, log)
			}
		case s := <-sig:
			log.Info("shutdown signal received", zap.String("signal", s.String()))
			if store != nil {
				autosaveSessions(reg, store, log)
			}
			shutCtx, shutCancel := context.WithTimeout(context.Background(), 5*time.Second)
			err := server.Shutdown(shutCtx)
			shutCancel()
			mgr.Stop()
			reg.Shutdown()
			log.Info("server stopped")
			return err
		case err := <-serverErr:
			mgr.Stop()
			reg.Shutdown()
			return fmt.Errorf("listen: %w", err)
		}
	}
}

// autosaveSessions snapshots every live session into an auto slot. Store
// I/O runs off the worker goroutine; the snapshot reply only hands the
// bytes over.
func autosaveSessions(reg *session.Registry, store persist.SaveStore, log *zap.Logger) {
	count := 0
	reg.Each(func(w *session.Worker) {
		count++
		sessionID := w.ID()
		w.Snapshot(func(snap []byte, err error) {
			if err != nil {
				log.Error("autosave snapshot failed",
					zap.String("session", sessionID), zap.Error(err))
				return
			}
			go func() {
				ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
				defer cancel()
				slot := "auto:" + sessionID
				if err := store.Save(ctx, slot, "autosave", "session "+sessionID, snap); err != nil {
					log.Error("autosave write failed",
						zap.String("session", sessionID), zap.Error(err))
				}
			}()
		})
	})
	if count > 0 {
		log.Info("autosave complete", zap.Int("sessions", count))
	}
}

func newLogger(cfg config.LoggingConfig) (*zap.Logger, error) {
	var level zapcore.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = zapcore.InfoLevel
	}

	var zapCfg zap.Config
	if cfg.Format == "json" {
		zapCfg = zap.NewProductionConfig()
	} else {
		zapCfg = zap.NewDevelopmentConfig()
		zapCfg.EncoderConfig.EncodeLevel = zapcore.CapitalColorLevelEncoder
		zapCfg.EncoderConfig.EncodeTime = zapcore.TimeEncoderOfLayout("15:04:05")
		zapCfg.EncoderConfig.ConsoleSeparator = "  "
		zapCfg.DisableCaller = true
		zapCfg.DisableStacktrace = true
	}
	zapCfg.Level = zap.NewAtomicLevelAt(level)

	return zapCfg.Build()
}
