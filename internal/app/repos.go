package app

import (
	"gorm.io/gorm"

	"github.com/yungbote/curricula-backend/internal/data/repos/curriculum"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
)

type Repos struct {
	Graphs    curriculum.GraphRepo
	Nodes     curriculum.NodeRepo
	Edges     curriculum.EdgeRepo
	Responses curriculum.ResponseRepo
	Snapshots curriculum.SnapshotRepo
}

func wireRepos(db *gorm.DB, log *logger.Logger) Repos {
	log.Info("Wiring repos...")
	return Repos{
		Graphs:    curriculum.NewGraphRepo(db, log),
		Nodes:     curriculum.NewNodeRepo(db, log),
		Edges:     curriculum.NewEdgeRepo(db, log),
		Responses: curriculum.NewResponseRepo(db, log),
		Snapshots: curriculum.NewSnapshotRepo(db, log),
	}
}
