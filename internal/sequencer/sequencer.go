// Package sequencer produces the deterministic study order for a curriculum
// graph. It is pure: callers load the node and edge sets, the sequencer
// returns an ordering or an error, and nothing here touches storage.
package sequencer

import (
	"math"
	"sort"
	"strings"

	"github.com/google/uuid"

	types "github.com/yungbote/curricula-backend/internal/domain"
	apperrors "github.com/yungbote/curricula-backend/internal/pkg/errors"
)

// Order returns a total order over the node ids that is a valid topological
// order of the prerequisite sub-graph. Related edges are ignored. Among the
// currently available nodes (all prerequisites placed) the next pick is the
// minimum under the composite key: depth ascending, effort ascending with
// missing effort last, mastery priority (diagnosed/learning, then unseen,
// then everything else), label ascending. Identical input always yields
// identical output.
//
// A cycle in the prerequisite edges fails with a structural error. Edge
// creation screens for cycles too; this is the independent second check.
func Order(nodes []*types.ConceptNode, edges []*types.ConceptEdge) ([]uuid.UUID, error) {
	if len(nodes) == 0 {
		return []uuid.UUID{}, nil
	}

	byID := make(map[uuid.UUID]*types.ConceptNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	children, indegree, err := prereqAdjacency(byID, edges)
	if err != nil {
		return nil, err
	}

	ordered := make([]uuid.UUID, 0, len(nodes))
	placed := make(map[uuid.UUID]bool, len(nodes))

	for len(ordered) < len(nodes) {
		var next *types.ConceptNode
		for _, n := range nodes {
			if placed[n.ID] || indegree[n.ID] > 0 {
				continue
			}
			if next == nil || less(n, next) {
				next = n
			}
		}
		if next == nil {
			return nil, apperrors.Structuralf("cycle detected in prerequisite graph (unplaced: %s)", unplacedLabels(nodes, placed))
		}
		ordered = append(ordered, next.ID)
		placed[next.ID] = true
		for _, child := range children[next.ID] {
			indegree[child]--
		}
	}
	return ordered, nil
}

// Depths computes each node's depth as the longest prerequisite chain from
// any root (a node with no prerequisite parents is depth 0). It shares the
// cycle and dangling-edge checks with Order.
func Depths(nodes []*types.ConceptNode, edges []*types.ConceptEdge) (map[uuid.UUID]int, error) {
	byID := make(map[uuid.UUID]*types.ConceptNode, len(nodes))
	for _, n := range nodes {
		byID[n.ID] = n
	}

	children, indegree, err := prereqAdjacency(byID, edges)
	if err != nil {
		return nil, err
	}

	depths := make(map[uuid.UUID]int, len(nodes))
	queue := make([]uuid.UUID, 0, len(nodes))
	for _, n := range nodes {
		depths[n.ID] = 0
		if indegree[n.ID] == 0 {
			queue = append(queue, n.ID)
		}
	}

	processed := 0
	for len(queue) > 0 {
		id := queue[0]
		queue = queue[1:]
		processed++
		for _, child := range children[id] {
			if d := depths[id] + 1; d > depths[child] {
				depths[child] = d
			}
			indegree[child]--
			if indegree[child] == 0 {
				queue = append(queue, child)
			}
		}
	}
	if processed < len(nodes) {
		return nil, apperrors.Structuralf("cycle detected in prerequisite graph (unplaced: %s)", unreachedLabels(nodes, indegree))
	}
	return depths, nil
}

func prereqAdjacency(byID map[uuid.UUID]*types.ConceptNode, edges []*types.ConceptEdge) (map[uuid.UUID][]uuid.UUID, map[uuid.UUID]int, error) {
	children := make(map[uuid.UUID][]uuid.UUID)
	indegree := make(map[uuid.UUID]int, len(byID))
	for _, e := range edges {
		if e.EdgeType != types.EdgePrerequisite {
			continue
		}
		if _, ok := byID[e.ParentNodeID]; !ok {
			return nil, nil, apperrors.Structuralf("prerequisite edge %s -> %s references unknown parent", e.ParentNodeID, e.ChildNodeID)
		}
		if _, ok := byID[e.ChildNodeID]; !ok {
			return nil, nil, apperrors.Structuralf("prerequisite edge %s -> %s references unknown child", e.ParentNodeID, e.ChildNodeID)
		}
		children[e.ParentNodeID] = append(children[e.ParentNodeID], e.ChildNodeID)
		indegree[e.ChildNodeID]++
	}
	return children, indegree, nil
}

func less(a, b *types.ConceptNode) bool {
	if a.Depth != b.Depth {
		return a.Depth < b.Depth
	}
	if ea, eb := effortRank(a), effortRank(b); ea != eb {
		return ea < eb
	}
	if ra, rb := masteryRank(a.MasteryStatus), masteryRank(b.MasteryStatus); ra != rb {
		return ra < rb
	}
	return a.Label < b.Label
}

func effortRank(n *types.ConceptNode) int {
	if n.EffortMinutes == nil {
		return math.MaxInt
	}
	return *n.EffortMinutes
}

// masteryRank orders partially-known nodes ahead of untouched ones: a learner
// resumes material the diagnostic already surfaced before starting cold.
func masteryRank(s types.MasteryStatus) int {
	switch s {
	case types.MasteryDiagnosed, types.MasteryLearning:
		return 0
	case types.MasteryUnseen:
		return 1
	}
	return 2
}

func unplacedLabels(nodes []*types.ConceptNode, placed map[uuid.UUID]bool) string {
	var labels []string
	for _, n := range nodes {
		if !placed[n.ID] {
			labels = append(labels, n.Label)
		}
	}
	sort.Strings(labels)
	return strings.Join(labels, ", ")
}

func unreachedLabels(nodes []*types.ConceptNode, indegree map[uuid.UUID]int) string {
	var labels []string
	for _, n := range nodes {
		if indegree[n.ID] > 0 {
			labels = append(labels, n.Label)
		}
	}
	sort.Strings(labels)
	return strings.Join(labels, ", ")
}
