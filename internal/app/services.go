package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/curricula-backend/internal/data/state"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
	"github.com/yungbote/curricula-backend/internal/services"
)

type Services struct {
	Graph      services.GraphService
	Curriculum services.CurriculumService
	Mastery    services.MasteryService
	Diagnostic services.DiagnosticService
	Analytics  services.AnalyticsService
}

func wireServices(db *gorm.DB, log *logger.Logger, store state.Store, repos Repos) Services {
	log.Info("Wiring services...")
	return Services{
		Graph:      services.NewGraphService(db, log, repos.Graphs, repos.Nodes, repos.Edges, repos.Responses, repos.Snapshots),
		Curriculum: services.NewCurriculumService(db, log, repos.Graphs, repos.Nodes, repos.Edges),
		Mastery:    services.NewMasteryService(db, log, repos.Graphs, repos.Nodes, repos.Responses),
		Diagnostic: services.NewDiagnosticService(db, log, store, repos.Graphs, repos.Nodes),
		Analytics:  services.NewAnalyticsService(db, log, repos.Graphs, repos.Nodes, repos.Edges, repos.Responses, repos.Snapshots),
	}
}
