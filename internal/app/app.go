package app

import (
	"context"
	"log"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/vtourlabs/cadenza-voice/internal/eventlog"
	"github.com/vtourlabs/cadenza-voice/internal/httpapi"
	"github.com/vtourlabs/cadenza-voice/internal/speech"
	"github.com/vtourlabs/cadenza-voice/internal/store"
)

type App struct {
	cfg      Config
	logger   *log.Logger
	db       *pgxpool.Pool
	store    *store.Store
	eventLog *eventlog.Logger
	speech   *speech.GeminiClient
}

func New(cfg Config, logger *log.Logger) (*App, error) {
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	// Session persistence is optional; the relay runs fine without a
	// database, it just keeps no transcripts.
	var db *pgxpool.Pool
	if cfg.DatabaseURL != "" {
		var err error
		db, err = pgxpool.New(ctx, cfg.DatabaseURL)
		if err != nil {
			return nil, err
		}
		if err := db.Ping(ctx); err != nil {
			db.Close()
			return nil, err
		}
	} else {
		logger.Printf("DATABASE_URL not set, running without session persistence")
	}

	// Migrations are applied externally by the CI deploy job (docker exec psql).
	// No automatic migration runner at startup.

	sc, err := speech.NewGeminiClient(ctx, cfg.GeminiAPIKey)
	if err != nil {
		if db != nil {
			db.Close()
		}
		return nil, err
	}

	a := &App{
		cfg:    cfg,
		logger: logger,
		db:     db,
		speech: sc,
	}
	if db != nil {
		a.store = store.New(db)
		a.eventLog = eventlog.New(db)
	}
	return a, nil
}

func (a *App) Router() http.Handler {
	routerCfg := httpapi.RouterConfig{
		PublicBaseURL:      a.cfg.PublicBaseURL,
		LiveKitAPIKey:      a.cfg.LiveKitAPIKey,
		LiveKitAPISecret:   a.cfg.LiveKitAPISecret,
		LiveKitURL:         a.cfg.LiveKitURL,
		TokenTTL:           a.cfg.TokenTTL,
		GeminiModel:        a.cfg.GeminiModel,
		GeminiVoice:        a.cfg.GeminiVoice,
		SystemInstruction:  a.cfg.SystemInstruction,
		GreetingText:       a.cfg.GreetingText,
		DisableGreeting:    a.cfg.DisableGreeting,
		TurnCompleteStatus: a.cfg.TurnCompleteStatus,
		SampleRate:         a.cfg.SampleRate,
		VoiceThreshold:     a.cfg.VoiceThreshold,
		SilenceFrames:      a.cfg.SilenceFrames,
		TeardownGrace:      a.cfg.TeardownGrace,
		AssetsDir:          a.cfg.AssetsDir,
	}
	return httpapi.NewRouter(routerCfg, a.logger, a.store, a.eventLog, a.speech)
}

func (a *App) Close() error {
	if a.db != nil {
		a.db.Close()
	}
	return nil
}
