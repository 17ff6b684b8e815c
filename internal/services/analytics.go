package services

import (
	"context"
	"encoding/json"
	"math"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/yungbote/curricula-backend/internal/data/repos/curriculum"
	types "github.com/yungbote/curricula-backend/internal/domain"
	apperrors "github.com/yungbote/curricula-backend/internal/pkg/errors"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
)

type TopicHighlight struct {
	GraphID uuid.UUID `json:"graph_id"`
	Title   string    `json:"title"`
	Value   float64   `json:"value"`
}

type CrossTopicResult struct {
	StrongestTopic   *TopicHighlight `json:"strongest_topic,omitempty"`
	WeakestTopic     *TopicHighlight `json:"weakest_topic,omitempty"`
	PortfolioMastery float64         `json:"portfolio_mastery"`
	GraphCount       int             `json:"graph_count"`
}

type AnalyticsService interface {
	ComputeSnapshot(ctx context.Context, graphID uuid.UUID, date time.Time) (*types.AnalyticsSnapshot, error)
	ComputeAll(ctx context.Context, date time.Time, replan ReplanFunc) (int, error)
	CrossTopic(ctx context.Context) (*CrossTopicResult, error)
}

type analyticsService struct {
	db        *gorm.DB
	log       *logger.Logger
	graphs    curriculum.GraphRepo
	nodes     curriculum.NodeRepo
	edges     curriculum.EdgeRepo
	responses curriculum.ResponseRepo
	snapshots curriculum.SnapshotRepo
}

func NewAnalyticsService(
	db *gorm.DB,
	baseLog *logger.Logger,
	graphs curriculum.GraphRepo,
	nodes curriculum.NodeRepo,
	edges curriculum.EdgeRepo,
	responses curriculum.ResponseRepo,
	snapshots curriculum.SnapshotRepo,
) AnalyticsService {
	return &analyticsService{
		db:        db,
		log:       baseLog.With("service", "AnalyticsService"),
		graphs:    graphs,
		nodes:     nodes,
		edges:     edges,
		responses: responses,
		snapshots: snapshots,
	}
}

// ComputeSnapshot recomputes one graph's metrics for the given date and
// upserts the row keyed (graph, date). Re-running a date overwrites it.
func (s *analyticsService) ComputeSnapshot(ctx context.Context, graphID uuid.UUID, date time.Time) (*types.AnalyticsSnapshot, error) {
	graph, err := s.graphs.GetByID(ctx, nil, graphID)
	if err != nil {
		return nil, err
	}
	if graph == nil {
		return nil, apperrors.NotFoundf("graph %s", graphID)
	}

	var snap *types.AnalyticsSnapshot
	err = runInTx(ctx, s.db, func(tx *gorm.DB) error {
		var err error
		snap, _, err = s.computeSnapshot(ctx, tx, graph, date)
		return err
	})
	if err != nil {
		return nil, err
	}
	return snap, nil
}

// ComputeAll sweeps every active graph. A graph that fails to compute is
// logged and skipped so it cannot starve the rest; the replan callback fires
// on the struggle/retention triggers and its errors are logged, not
// propagated. Returns the number of graphs whose snapshot landed.
func (s *analyticsService) ComputeAll(ctx context.Context, date time.Time, replan ReplanFunc) (int, error) {
	active := types.GraphStatusActive
	graphs, err := s.graphs.List(ctx, nil, &active)
	if err != nil {
		return 0, err
	}

	processed := 0
	for _, graph := range graphs {
		var (
			snap       *types.AnalyticsSnapshot
			struggling []uuid.UUID
		)
		err := runInTx(ctx, s.db, func(tx *gorm.DB) error {
			var err error
			snap, struggling, err = s.computeSnapshot(ctx, tx, graph, date)
			return err
		})
		if err != nil {
			s.log.Error("snapshot computation failed", "graph_id", graph.ID, "error", err)
			continue
		}
		processed++

		if replan == nil {
			continue
		}
		trigger := len(struggling) >= types.ReplanStruggleCount ||
			(snap.RetentionRate7d != nil && *snap.RetentionRate7d < types.ReplanRetentionFloor)
		if !trigger {
			continue
		}
		if err := replan(ctx, graph.ID, snap); err != nil {
			s.log.Error("replan callback failed", "graph_id", graph.ID, "error", err)
			continue
		}
		s.log.Info("replan triggered", "graph_id", graph.ID, "struggling", len(struggling))
	}
	return processed, nil
}

// CrossTopic aggregates the latest snapshot of every active graph into the
// portfolio view.
func (s *analyticsService) CrossTopic(ctx context.Context) (*CrossTopicResult, error) {
	active := types.GraphStatusActive
	graphs, err := s.graphs.List(ctx, nil, &active)
	if err != nil {
		return nil, err
	}
	out := &CrossTopicResult{GraphCount: len(graphs)}
	if len(graphs) == 0 {
		return out, nil
	}

	ids := make([]uuid.UUID, 0, len(graphs))
	titleByID := make(map[uuid.UUID]string, len(graphs))
	for _, g := range graphs {
		ids = append(ids, g.ID)
		titleByID[g.ID] = g.Title
	}
	snaps, err := s.snapshots.LatestPerGraph(ctx, nil, ids)
	if err != nil {
		return nil, err
	}

	var totalNodes, masteredNodes int
	for _, snap := range snaps {
		totalNodes += snap.TotalNodes
		masteredNodes += snap.MasteredNodes
		if out.StrongestTopic == nil || snap.MasteryPct > out.StrongestTopic.Value {
			out.StrongestTopic = &TopicHighlight{GraphID: snap.GraphID, Title: titleByID[snap.GraphID], Value: snap.MasteryPct}
		}
		if snap.RetentionRate7d == nil {
			continue
		}
		if out.WeakestTopic == nil || *snap.RetentionRate7d < out.WeakestTopic.Value {
			out.WeakestTopic = &TopicHighlight{GraphID: snap.GraphID, Title: titleByID[snap.GraphID], Value: *snap.RetentionRate7d}
		}
	}
	if totalNodes > 0 {
		out.PortfolioMastery = round2(float64(masteredNodes) / float64(totalNodes))
	}
	return out, nil
}

// computeSnapshot assembles and upserts the snapshot row. All trailing
// windows end at the start of the day after date, so responses recorded on
// the snapshot date itself count. Returns the struggling node ids alongside
// so the sweep can evaluate its trigger without reparsing the row.
func (s *analyticsService) computeSnapshot(ctx context.Context, tx *gorm.DB, graph *types.CurriculumGraph, date time.Time) (*types.AnalyticsSnapshot, []uuid.UUID, error) {
	day := time.Date(date.Year(), date.Month(), date.Day(), 0, 0, 0, 0, time.UTC)
	windowEnd := day.Add(24 * time.Hour)
	week := 7 * 24 * time.Hour

	nodes, err := s.nodes.ListByGraph(ctx, tx, graph.ID, nil)
	if err != nil {
		return nil, nil, err
	}
	edges, err := s.edges.ListByGraph(ctx, tx, graph.ID, nil)
	if err != nil {
		return nil, nil, err
	}

	total := len(nodes)
	mastered := 0
	var easeSum float64
	for _, n := range nodes {
		easeSum += n.EaseFactor
		if n.MasteryStatus == types.MasteryMastered {
			mastered++
		}
	}

	snap := &types.AnalyticsSnapshot{
		GraphID:       graph.ID,
		SnapshotDate:  day,
		TotalNodes:    total,
		MasteredNodes: mastered,
	}
	if total > 0 {
		snap.MasteryPct = round2(float64(mastered) / float64(total))
		snap.AvgEaseFactor = easeSum / float64(total)
	}

	if passes, reviews, err := s.responses.RetentionCounts(ctx, tx, graph.ID, windowEnd.Add(-week), windowEnd); err != nil {
		return nil, nil, err
	} else if reviews > 0 {
		v := round2(float64(passes) / float64(reviews))
		snap.RetentionRate7d = &v
	}
	if passes, reviews, err := s.responses.RetentionCounts(ctx, tx, graph.ID, windowEnd.Add(-30*24*time.Hour), windowEnd); err != nil {
		return nil, nil, err
	} else if reviews > 0 {
		v := round2(float64(passes) / float64(reviews))
		snap.RetentionRate30d = &v
	}

	// Velocity: mastered-at stamps grouped into 4 trailing 7-day buckets,
	// averaged.
	var bucketCounts [4]int
	for _, n := range nodes {
		if n.MasteredAt == nil {
			continue
		}
		for b := 0; b < 4; b++ {
			hi := windowEnd.Add(-time.Duration(b) * week)
			lo := hi.Add(-week)
			if !n.MasteredAt.Before(lo) && n.MasteredAt.Before(hi) {
				bucketCounts[b]++
				break
			}
		}
	}
	velocity := float64(bucketCounts[0]+bucketCounts[1]+bucketCounts[2]+bucketCounts[3]) / 4.0
	snap.VelocityNodesPerWeek = velocity

	if unmastered := total - mastered; velocity > 0 && unmastered > 0 {
		days := int(math.Ceil(float64(unmastered) / velocity * 7.0))
		snap.EstimatedCompletionDays = &days
	}

	strugglingIDs, err := s.responses.StrugglingNodeIDs(ctx, tx, graph.ID, types.SnapshotStruggleMinReviews, types.SnapshotStruggleMeanQuality)
	if err != nil {
		return nil, nil, err
	}
	strugglingJSON, err := json.Marshal(idsAsStrings(strugglingIDs))
	if err != nil {
		return nil, nil, err
	}
	snap.StrugglingNodes = datatypes.JSON(strugglingJSON)

	if strongest := strongestSubtree(nodes, edges); strongest != nil {
		raw, err := json.Marshal(strongest)
		if err != nil {
			return nil, nil, err
		}
		snap.StrongestSubtree = datatypes.JSON(raw)
	}

	responseCount, err := s.responses.CountByGraph(ctx, tx, graph.ID)
	if err != nil {
		return nil, nil, err
	}
	snap.TotalQuizResponses = int(responseCount)

	if avg, err := s.responses.AvgQuality(ctx, tx, graph.ID); err != nil {
		return nil, nil, err
	} else if avg != nil {
		v := round1(*avg)
		snap.AvgQualityScore = &v
	}

	sessions, err := s.responses.DistinctSessions(ctx, tx, graph.ID, windowEnd.Add(-week), windowEnd)
	if err != nil {
		return nil, nil, err
	}
	snap.SessionsThisPeriod = int(sessions)

	stamps, err := s.responses.CreatedAtsByGraph(ctx, tx, graph.ID)
	if err != nil {
		return nil, nil, err
	}
	buckets := types.TimeOfDayBuckets{}
	for _, ts := range stamps {
		switch h := ts.Local().Hour(); {
		case h >= 6 && h < 12:
			buckets.Morning++
		case h >= 12 && h < 18:
			buckets.Afternoon++
		default:
			buckets.Evening++
		}
	}
	rawBuckets, err := json.Marshal(buckets)
	if err != nil {
		return nil, nil, err
	}
	snap.TimeOfDayDistribution = datatypes.JSON(rawBuckets)

	saved, err := s.snapshots.Upsert(ctx, tx, snap)
	if err != nil {
		return nil, nil, err
	}
	return saved, strugglingIDs, nil
}

// strongestSubtree scores every internal node's subtree (the node plus all
// descendants over any edge type, deduplicated) by mean mastery score. Ties
// go to the smaller label. A graph with no usable edges has no subtree.
func strongestSubtree(nodes []*types.ConceptNode, edges []*types.ConceptEdge) *types.SubtreeStrength {
	if len(edges) == 0 {
		return nil
	}
	scoreByID := make(map[uuid.UUID]float64, len(nodes))
	for _, n := range nodes {
		scoreByID[n.ID] = n.MasteryScore
	}
	children := make(map[uuid.UUID][]uuid.UUID, len(edges))
	for _, e := range edges {
		children[e.ParentNodeID] = append(children[e.ParentNodeID], e.ChildNodeID)
	}

	var best *types.SubtreeStrength
	var bestAvg float64
	for _, n := range nodes {
		if len(children[n.ID]) == 0 {
			continue
		}
		visited := map[uuid.UUID]bool{n.ID: true}
		queue := []uuid.UUID{n.ID}
		var sum float64
		size := 0
		for len(queue) > 0 {
			id := queue[0]
			queue = queue[1:]
			sum += scoreByID[id]
			size++
			for _, child := range children[id] {
				if visited[child] {
					continue
				}
				if _, ok := scoreByID[child]; !ok {
					continue
				}
				visited[child] = true
				queue = append(queue, child)
			}
		}
		avg := sum / float64(size)
		if best == nil || avg > bestAvg || (avg == bestAvg && n.Label < best.Label) {
			best = &types.SubtreeStrength{NodeID: n.ID, Label: n.Label, AvgScore: avg, Size: size}
			bestAvg = avg
		}
	}
	if best != nil {
		best.AvgScore = round2(best.AvgScore)
	}
	return best
}

func idsAsStrings(ids []uuid.UUID) []string {
	out := make([]string, len(ids))
	for i, id := range ids {
		out[i] = id.String()
	}
	return out
}

func round1(v float64) float64 { return math.Round(v*10) / 10 }

func round2(v float64) float64 { return math.Round(v*100) / 100 }
