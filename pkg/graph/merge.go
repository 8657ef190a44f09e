package graph

import "github.com/OFFIS-RIT/lineage/pkg/common"

// builder accumulates nodes and edges for a single synthesis, dropping
// repeated nodes by ID and repeated edges by (source, target). The first
// occurrence of a node keeps its attributes.
type builder struct {
	graph *common.FamilyGraph
	nodes map[string]struct{}
	edges map[string]struct{}
}

func newBuilder(focalID string) *builder {
	return &builder{
		graph: &common.FamilyGraph{
			FocalID: focalID,
			Nodes:   make([]common.Node, 0, 16),
			Edges:   make([]common.Edge, 0, 16),
		},
		nodes: make(map[string]struct{}),
		edges: make(map[string]struct{}),
	}
}

func (b *builder) addNode(node common.Node) bool {
	if _, ok := b.nodes[node.ID]; ok {
		return false
	}
	b.nodes[node.ID] = struct{}{}
	b.graph.Nodes = append(b.graph.Nodes, node)
	return true
}

func (b *builder) addEdge(source, target string, dir common.Direction) bool {
	if source == target {
		return false
	}
	id := EdgeID(source, target)
	if _, ok := b.edges[id]; ok {
		return false
	}
	b.edges[id] = struct{}{}
	b.graph.Edges = append(b.graph.Edges, common.Edge{
		ID:        id,
		Source:    source,
		Target:    target,
		Direction: dir,
	})
	return true
}
