package services

import (
	"context"
	"sort"
	"testing"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	types "github.com/yungbote/curricula-backend/internal/domain"
	"github.com/yungbote/curricula-backend/internal/pkg/logger"
)

func testLogger(t *testing.T) *logger.Logger {
	t.Helper()
	log, err := logger.New("test")
	if err != nil {
		t.Fatalf("logger.New: %v", err)
	}
	return log
}

func nodeByLabel(t *testing.T, nodes *fakeNodeRepo, label string) *types.ConceptNode {
	t.Helper()
	for _, n := range nodes.rows {
		if n.Label == label {
			return n
		}
	}
	t.Fatalf("node %q not found", label)
	return nil
}

// In-memory repo fakes. The services under test are constructed with a nil
// DB handle, so runInTx hands the closures a nil tx and the fakes ignore it.

type fakeGraphRepo struct {
	rows        map[uuid.UUID]*types.CurriculumGraph
	lockCalls   int
	updateCalls int
	deleteCalls int
}

func newFakeGraphRepo() *fakeGraphRepo {
	return &fakeGraphRepo{rows: map[uuid.UUID]*types.CurriculumGraph{}}
}

func (f *fakeGraphRepo) add(title string, status types.GraphStatus) *types.CurriculumGraph {
	g := &types.CurriculumGraph{
		ID:        uuid.New(),
		Title:     title,
		Status:    status,
		Metadata:  datatypes.JSON([]byte(`{}`)),
		CreatedAt: time.Now().UTC(),
	}
	f.rows[g.ID] = g
	return g
}

func (f *fakeGraphRepo) Create(_ context.Context, _ *gorm.DB, graph *types.CurriculumGraph) (*types.CurriculumGraph, error) {
	if graph.ID == uuid.Nil {
		graph.ID = uuid.New()
	}
	if graph.CreatedAt.IsZero() {
		graph.CreatedAt = time.Now().UTC()
	}
	f.rows[graph.ID] = graph
	return graph, nil
}

func (f *fakeGraphRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.CurriculumGraph, error) {
	return f.rows[id], nil
}

func (f *fakeGraphRepo) GetByIDForUpdate(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.CurriculumGraph, error) {
	f.lockCalls++
	return f.rows[id], nil
}

func (f *fakeGraphRepo) List(_ context.Context, _ *gorm.DB, status *types.GraphStatus) ([]*types.CurriculumGraph, error) {
	out := []*types.CurriculumGraph{}
	for _, g := range f.rows {
		if status == nil || g.Status == *status {
			out = append(out, g)
		}
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.Before(out[j].CreatedAt)
		}
		return out[i].ID.String() < out[j].ID.String()
	})
	return out, nil
}

func (f *fakeGraphRepo) Update(_ context.Context, _ *gorm.DB, row *types.CurriculumGraph) error {
	f.rows[row.ID] = row
	return nil
}

func (f *fakeGraphRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.updateCalls++
	g := f.rows[id]
	if g == nil {
		return nil
	}
	if v, ok := updates["status"]; ok {
		g.Status = v.(types.GraphStatus)
	}
	if v, ok := updates["root_node_id"]; ok {
		if v == nil {
			g.RootNodeID = nil
		} else {
			root := v.(uuid.UUID)
			g.RootNodeID = &root
		}
	}
	return nil
}

func (f *fakeGraphRepo) FullDelete(_ context.Context, _ *gorm.DB, id uuid.UUID) error {
	f.deleteCalls++
	delete(f.rows, id)
	return nil
}

type fakeNodeRepo struct {
	rows        map[uuid.UUID]*types.ConceptNode
	getCalls    int
	updateCalls int
	deleteCalls int

	frontierRows []*types.ConceptNode
	subtreeRows  []*types.ConceptNode

	// ListByGraph fails for this graph; the sweep skip test uses it.
	failListFor uuid.UUID
	listErr     error
}

func newFakeNodeRepo() *fakeNodeRepo {
	return &fakeNodeRepo{rows: map[uuid.UUID]*types.ConceptNode{}}
}

func (f *fakeNodeRepo) add(graphID uuid.UUID, label string, depth int, status types.MasteryStatus) *types.ConceptNode {
	n := &types.ConceptNode{
		ID:            uuid.New(),
		GraphID:       graphID,
		Label:         label,
		Depth:         depth,
		MasteryStatus: status,
		EaseFactor:    types.DefaultEaseFactor,
		Metadata:      datatypes.JSON([]byte(`{}`)),
		CreatedAt:     time.Now().UTC(),
	}
	f.rows[n.ID] = n
	return n
}

func (f *fakeNodeRepo) Create(_ context.Context, _ *gorm.DB, nodes []*types.ConceptNode) ([]*types.ConceptNode, error) {
	for _, n := range nodes {
		if n.ID == uuid.Nil {
			n.ID = uuid.New()
		}
		if n.CreatedAt.IsZero() {
			n.CreatedAt = time.Now().UTC()
		}
		f.rows[n.ID] = n
	}
	return nodes, nil
}

func (f *fakeNodeRepo) GetByID(_ context.Context, _ *gorm.DB, id uuid.UUID) (*types.ConceptNode, error) {
	f.getCalls++
	return f.rows[id], nil
}

func (f *fakeNodeRepo) GetByIDs(_ context.Context, _ *gorm.DB, ids []uuid.UUID) ([]*types.ConceptNode, error) {
	out := []*types.ConceptNode{}
	for _, id := range ids {
		if n, ok := f.rows[id]; ok {
			out = append(out, n)
		}
	}
	return out, nil
}

func (f *fakeNodeRepo) GetByGraphAndLabel(_ context.Context, _ *gorm.DB, graphID uuid.UUID, label string) (*types.ConceptNode, error) {
	for _, n := range f.rows {
		if n.GraphID == graphID && n.Label == label {
			return n, nil
		}
	}
	return nil, nil
}

func (f *fakeNodeRepo) ListByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID, status *types.MasteryStatus) ([]*types.ConceptNode, error) {
	if f.listErr != nil && graphID == f.failListFor {
		return nil, f.listErr
	}
	out := []*types.ConceptNode{}
	for _, n := range f.rows {
		if n.GraphID != graphID {
			continue
		}
		if status != nil && n.MasteryStatus != *status {
			continue
		}
		out = append(out, n)
	}
	sort.Slice(out, func(i, j int) bool {
		si, sj := out[i].Sequence, out[j].Sequence
		switch {
		case si != nil && sj != nil && *si != *sj:
			return *si < *sj
		case si == nil && sj != nil:
			return false
		case si != nil && sj == nil:
			return true
		}
		return out[i].Label < out[j].Label
	})
	return out, nil
}

func (f *fakeNodeRepo) CountByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID) (int64, error) {
	var count int64
	for _, n := range f.rows {
		if n.GraphID == graphID {
			count++
		}
	}
	return count, nil
}

func (f *fakeNodeRepo) CountUnmastered(_ context.Context, _ *gorm.DB, graphID uuid.UUID) (int64, error) {
	var count int64
	for _, n := range f.rows {
		if n.GraphID == graphID && n.MasteryStatus != types.MasteryMastered {
			count++
		}
	}
	return count, nil
}

func (f *fakeNodeRepo) Update(_ context.Context, _ *gorm.DB, row *types.ConceptNode) error {
	f.rows[row.ID] = row
	return nil
}

func (f *fakeNodeRepo) UpdateFields(_ context.Context, _ *gorm.DB, id uuid.UUID, updates map[string]interface{}) error {
	f.updateCalls++
	n := f.rows[id]
	if n == nil {
		return nil
	}
	if v, ok := updates["mastery_score"]; ok {
		n.MasteryScore = v.(float64)
	}
	if v, ok := updates["mastery_status"]; ok {
		n.MasteryStatus = v.(types.MasteryStatus)
	}
	if v, ok := updates["ease_factor"]; ok {
		n.EaseFactor = v.(float64)
	}
	if v, ok := updates["repetitions"]; ok {
		n.Repetitions = v.(int)
	}
	if v, ok := updates["depth"]; ok {
		n.Depth = v.(int)
	}
	if v, ok := updates["mastered_at"]; ok {
		at := v.(time.Time)
		n.MasteredAt = &at
	}
	if v, ok := updates["sequence"]; ok {
		if v == nil {
			n.Sequence = nil
		} else {
			seq := v.(int)
			n.Sequence = &seq
		}
	}
	if v, ok := updates["metadata"]; ok {
		if v == nil {
			n.Metadata = nil
		} else {
			n.Metadata = v.(datatypes.JSON)
		}
	}
	return nil
}

func (f *fakeNodeRepo) SetSequences(_ context.Context, _ *gorm.DB, _ uuid.UUID, orderedIDs []uuid.UUID) error {
	for i, id := range orderedIDs {
		if n, ok := f.rows[id]; ok {
			seq := i + 1
			n.Sequence = &seq
		}
	}
	return nil
}

func (f *fakeNodeRepo) Frontier(_ context.Context, _ *gorm.DB, _ uuid.UUID) ([]*types.ConceptNode, error) {
	return f.frontierRows, nil
}

func (f *fakeNodeRepo) Subtree(_ context.Context, _ *gorm.DB, _ uuid.UUID) ([]*types.ConceptNode, error) {
	return f.subtreeRows, nil
}

func (f *fakeNodeRepo) FullDeleteByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID) error {
	f.deleteCalls++
	for id, n := range f.rows {
		if n.GraphID == graphID {
			delete(f.rows, id)
		}
	}
	return nil
}

type fakeEdgeRepo struct {
	rows        []*types.ConceptEdge
	deleteCalls int
}

func newFakeEdgeRepo() *fakeEdgeRepo {
	return &fakeEdgeRepo{}
}

func (f *fakeEdgeRepo) add(graphID, parentID, childID uuid.UUID, edgeType types.EdgeType) *types.ConceptEdge {
	e := &types.ConceptEdge{
		ID:           uuid.New(),
		GraphID:      graphID,
		ParentNodeID: parentID,
		ChildNodeID:  childID,
		EdgeType:     edgeType,
		CreatedAt:    time.Now().UTC(),
	}
	f.rows = append(f.rows, e)
	return e
}

func (f *fakeEdgeRepo) Create(_ context.Context, _ *gorm.DB, edge *types.ConceptEdge) (*types.ConceptEdge, error) {
	if edge.ID == uuid.Nil {
		edge.ID = uuid.New()
	}
	if edge.CreatedAt.IsZero() {
		edge.CreatedAt = time.Now().UTC()
	}
	f.rows = append(f.rows, edge)
	return edge, nil
}

func (f *fakeEdgeRepo) Exists(_ context.Context, _ *gorm.DB, parentID, childID uuid.UUID, edgeType types.EdgeType) (bool, error) {
	for _, e := range f.rows {
		if e.ParentNodeID == parentID && e.ChildNodeID == childID && e.EdgeType == edgeType {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEdgeRepo) ListByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID, edgeType *types.EdgeType) ([]*types.ConceptEdge, error) {
	out := []*types.ConceptEdge{}
	for _, e := range f.rows {
		if e.GraphID != graphID {
			continue
		}
		if edgeType != nil && e.EdgeType != *edgeType {
			continue
		}
		out = append(out, e)
	}
	return out, nil
}

func (f *fakeEdgeRepo) Delete(_ context.Context, _ *gorm.DB, parentID, childID uuid.UUID, edgeType types.EdgeType) (bool, error) {
	for i, e := range f.rows {
		if e.ParentNodeID == parentID && e.ChildNodeID == childID && e.EdgeType == edgeType {
			f.rows = append(f.rows[:i], f.rows[i+1:]...)
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeEdgeRepo) Reachable(_ context.Context, _ *gorm.DB, graphID, fromNodeID, toNodeID uuid.UUID) (bool, error) {
	children := map[uuid.UUID][]uuid.UUID{}
	for _, e := range f.rows {
		if e.GraphID == graphID && e.EdgeType == types.EdgePrerequisite {
			children[e.ParentNodeID] = append(children[e.ParentNodeID], e.ChildNodeID)
		}
	}
	seen := map[uuid.UUID]bool{}
	queue := append([]uuid.UUID{}, children[fromNodeID]...)
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		if seen[id] {
			continue
		}
		seen[id] = true
		queue = append(queue, children[id]...)
	}
	return seen[toNodeID], nil
}

func (f *fakeEdgeRepo) FullDeleteByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID) error {
	f.deleteCalls++
	kept := f.rows[:0]
	for _, e := range f.rows {
		if e.GraphID != graphID {
			kept = append(kept, e)
		}
	}
	f.rows = kept
	return nil
}

type fakeResponseRepo struct {
	rows        []*types.QuizResponse
	lastCreated time.Time
	deleteCalls int
}

func newFakeResponseRepo() *fakeResponseRepo {
	return &fakeResponseRepo{}
}

func (f *fakeResponseRepo) add(graphID, nodeID uuid.UUID, quality int, respType types.ResponseType, sessionID *uuid.UUID, createdAt time.Time) *types.QuizResponse {
	r := &types.QuizResponse{
		ID:           uuid.New(),
		NodeID:       nodeID,
		GraphID:      graphID,
		Question:     "q",
		Quality:      quality,
		ResponseType: respType,
		SessionID:    sessionID,
		CreatedAt:    createdAt,
	}
	f.rows = append(f.rows, r)
	return r
}

func (f *fakeResponseRepo) Create(_ context.Context, _ *gorm.DB, row *types.QuizResponse) (*types.QuizResponse, error) {
	if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	if row.CreatedAt.IsZero() {
		// Strictly increasing stamps keep newest-first ordering unambiguous.
		now := time.Now().UTC()
		if !now.After(f.lastCreated) {
			now = f.lastCreated.Add(time.Nanosecond)
		}
		row.CreatedAt = now
		f.lastCreated = now
	}
	f.rows = append(f.rows, row)
	return row, nil
}

func (f *fakeResponseRepo) byNode(nodeID uuid.UUID, respType *types.ResponseType) []*types.QuizResponse {
	out := []*types.QuizResponse{}
	for _, r := range f.rows {
		if r.NodeID != nodeID {
			continue
		}
		if respType != nil && r.ResponseType != *respType {
			continue
		}
		out = append(out, r)
	}
	return out
}

func sortNewestFirst(rows []*types.QuizResponse) {
	sort.Slice(rows, func(i, j int) bool {
		if !rows[i].CreatedAt.Equal(rows[j].CreatedAt) {
			return rows[i].CreatedAt.After(rows[j].CreatedAt)
		}
		return rows[i].ID.String() > rows[j].ID.String()
	})
}

func (f *fakeResponseRepo) RecentByNode(_ context.Context, _ *gorm.DB, nodeID uuid.UUID, limit int) ([]*types.QuizResponse, error) {
	out := f.byNode(nodeID, nil)
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeResponseRepo) RecentByNodeAndType(_ context.Context, _ *gorm.DB, nodeID uuid.UUID, respType types.ResponseType, limit int) ([]*types.QuizResponse, error) {
	out := f.byNode(nodeID, &respType)
	sortNewestFirst(out)
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeResponseRepo) ListByNode(_ context.Context, _ *gorm.DB, nodeID uuid.UUID) ([]*types.QuizResponse, error) {
	out := f.byNode(nodeID, nil)
	sort.Slice(out, func(i, j int) bool { return out[i].CreatedAt.Before(out[j].CreatedAt) })
	return out, nil
}

func (f *fakeResponseRepo) CountByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID) (int64, error) {
	var count int64
	for _, r := range f.rows {
		if r.GraphID == graphID {
			count++
		}
	}
	return count, nil
}

func (f *fakeResponseRepo) RetentionCounts(_ context.Context, _ *gorm.DB, graphID uuid.UUID, since, until time.Time) (int64, int64, error) {
	var passes, total int64
	for _, r := range f.rows {
		if r.GraphID != graphID || r.ResponseType != types.ResponseReview {
			continue
		}
		if r.CreatedAt.Before(since) || !r.CreatedAt.Before(until) {
			continue
		}
		total++
		if r.Quality >= types.PassingQuality {
			passes++
		}
	}
	return passes, total, nil
}

func (f *fakeResponseRepo) AvgQuality(_ context.Context, _ *gorm.DB, graphID uuid.UUID) (*float64, error) {
	var sum, count float64
	for _, r := range f.rows {
		if r.GraphID == graphID {
			sum += float64(r.Quality)
			count++
		}
	}
	if count == 0 {
		return nil, nil
	}
	avg := sum / count
	return &avg, nil
}

func (f *fakeResponseRepo) DistinctSessions(_ context.Context, _ *gorm.DB, graphID uuid.UUID, since, until time.Time) (int64, error) {
	seen := map[uuid.UUID]bool{}
	for _, r := range f.rows {
		if r.GraphID != graphID || r.SessionID == nil {
			continue
		}
		if r.CreatedAt.Before(since) || !r.CreatedAt.Before(until) {
			continue
		}
		seen[*r.SessionID] = true
	}
	return int64(len(seen)), nil
}

func (f *fakeResponseRepo) CreatedAtsByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID) ([]time.Time, error) {
	out := []time.Time{}
	for _, r := range f.rows {
		if r.GraphID == graphID {
			out = append(out, r.CreatedAt)
		}
	}
	return out, nil
}

func (f *fakeResponseRepo) StrugglingNodeIDs(_ context.Context, _ *gorm.DB, graphID uuid.UUID, minResponses int, maxMeanQuality float64) ([]uuid.UUID, error) {
	counts := map[uuid.UUID]int{}
	sums := map[uuid.UUID]int{}
	for _, r := range f.rows {
		if r.GraphID != graphID || r.ResponseType != types.ResponseReview {
			continue
		}
		counts[r.NodeID]++
		sums[r.NodeID] += r.Quality
	}
	out := []uuid.UUID{}
	for id, count := range counts {
		if count >= minResponses && float64(sums[id])/float64(count) < maxMeanQuality {
			out = append(out, id)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].String() < out[j].String() })
	return out, nil
}

func (f *fakeResponseRepo) FullDeleteByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID) error {
	f.deleteCalls++
	kept := f.rows[:0]
	for _, r := range f.rows {
		if r.GraphID != graphID {
			kept = append(kept, r)
		}
	}
	f.rows = kept
	return nil
}

type fakeSnapshotRepo struct {
	rows        map[string]*types.AnalyticsSnapshot
	upsertCalls int
	deleteCalls int
}

func newFakeSnapshotRepo() *fakeSnapshotRepo {
	return &fakeSnapshotRepo{rows: map[string]*types.AnalyticsSnapshot{}}
}

func snapshotKey(graphID uuid.UUID, date time.Time) string {
	return graphID.String() + "|" + date.Format("2006-01-02")
}

func (f *fakeSnapshotRepo) add(graphID uuid.UUID, date time.Time, mutate func(*types.AnalyticsSnapshot)) *types.AnalyticsSnapshot {
	snap := &types.AnalyticsSnapshot{
		ID:           uuid.New(),
		GraphID:      graphID,
		SnapshotDate: date,
	}
	if mutate != nil {
		mutate(snap)
	}
	f.rows[snapshotKey(graphID, date)] = snap
	return snap
}

func (f *fakeSnapshotRepo) Upsert(_ context.Context, _ *gorm.DB, row *types.AnalyticsSnapshot) (*types.AnalyticsSnapshot, error) {
	f.upsertCalls++
	key := snapshotKey(row.GraphID, row.SnapshotDate)
	if existing, ok := f.rows[key]; ok {
		row.ID = existing.ID
	} else if row.ID == uuid.Nil {
		row.ID = uuid.New()
	}
	f.rows[key] = row
	return row, nil
}

func (f *fakeSnapshotRepo) GetByGraphAndDate(_ context.Context, _ *gorm.DB, graphID uuid.UUID, date time.Time) (*types.AnalyticsSnapshot, error) {
	return f.rows[snapshotKey(graphID, date)], nil
}

func (f *fakeSnapshotRepo) LatestByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID) (*types.AnalyticsSnapshot, error) {
	var latest *types.AnalyticsSnapshot
	for _, snap := range f.rows {
		if snap.GraphID != graphID {
			continue
		}
		if latest == nil || snap.SnapshotDate.After(latest.SnapshotDate) {
			latest = snap
		}
	}
	return latest, nil
}

func (f *fakeSnapshotRepo) LatestPerGraph(_ context.Context, _ *gorm.DB, graphIDs []uuid.UUID) ([]*types.AnalyticsSnapshot, error) {
	out := []*types.AnalyticsSnapshot{}
	for _, id := range graphIDs {
		latest, _ := f.LatestByGraph(nil, nil, id)
		if latest != nil {
			out = append(out, latest)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].GraphID.String() < out[j].GraphID.String() })
	return out, nil
}

func (f *fakeSnapshotRepo) ListByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID, limit int) ([]*types.AnalyticsSnapshot, error) {
	out := []*types.AnalyticsSnapshot{}
	for _, snap := range f.rows {
		if snap.GraphID == graphID {
			out = append(out, snap)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].SnapshotDate.After(out[j].SnapshotDate) })
	if limit > 0 && len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (f *fakeSnapshotRepo) FullDeleteByGraph(_ context.Context, _ *gorm.DB, graphID uuid.UUID) error {
	f.deleteCalls++
	for key, snap := range f.rows {
		if snap.GraphID == graphID {
			delete(f.rows, key)
		}
	}
	return nil
}
