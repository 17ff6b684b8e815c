package app

import (
	"fmt"
	"os"

	"gorm.io/gorm"

	"github.com/yungbote/curricula-backend/internal/data/db"
	"github.com/yungbote/curricula-backend/internal/data/state"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
)

type App struct {
	Log      *logger.Logger
	DB       *gorm.DB
	Cfg      Config
	State    state.Store
	Repos    Repos
	Services Services
}

func New() (*App, error) {
	logMode := os.Getenv("LOG_MODE")
	if logMode == "" {
		logMode = "development"
	}
	log, err := logger.New(logMode)
	if err != nil {
		return nil, fmt.Errorf("init logger: %w", err)
	}

	log.Info("Loading environment variables...")
	cfg := LoadConfig(log)

	pg, err := db.NewPostgresService(log)
	if err != nil {
		log.Sync()
		return nil, fmt.Errorf("init postgres: %w", err)
	}
	if err := pg.AutoMigrateAll(); err != nil {
		log.Sync()
		return nil, fmt.Errorf("postgres automigrate: %w", err)
	}
	theDB := pg.DB()

	var stateStore state.Store
	if os.Getenv("REDIS_ADDR") != "" {
		stateStore, err = state.NewRedisStore(log, cfg.DiagnosticFlowTTL)
		if err != nil {
			log.Sync()
			return nil, fmt.Errorf("init redis state store: %w", err)
		}
	} else {
		log.Warn("REDIS_ADDR not set, diagnostic sessions held in process memory")
		stateStore = state.NewMemoryStore(cfg.DiagnosticFlowTTL)
	}

	reposet := wireRepos(theDB, log)
	serviceset := wireServices(theDB, log, stateStore, reposet)

	return &App{
		Log:      log,
		DB:       theDB,
		Cfg:      cfg,
		State:    stateStore,
		Repos:    reposet,
		Services: serviceset,
	}, nil
}

func (a *App) Close() {
	if a == nil {
		return
	}
	if a.State != nil {
		if err := a.State.Close(); err != nil && a.Log != nil {
			a.Log.Error("closing state store", "error", err)
		}
	}
	if a.Log != nil {
		a.Log.Sync()
	}
}
