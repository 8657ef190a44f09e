// Package graph turns the lineage paths returned by the resolver into a
// deduplicated, levelled family graph ready to be laid out.
package graph

import (
	"errors"
	"strings"

	"github.com/OFFIS-RIT/lineage/pkg/common"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
)

var (
	// ErrNoPaths is returned when neither ancestor nor descendant paths
	// were supplied. Callers report "no data" instead of rendering.
	ErrNoPaths = errors.New("no lineage paths to synthesize")
	// ErrNoFocal is returned when the focal person has no name.
	ErrNoFocal = errors.New("focal person has no name")
)

// Synthesize builds the family graph around focal from its ancestor and
// descendant paths.
//
// The focal node is always added first at level 0. Along an ancestor path
// the element at index i sits at level -(i+1) and each edge points from
// that element to the previous one of the walk; descendant paths mirror
// this with level +(i+1) and edges from the previous element to the
// current one. Entries without a name are skipped without shifting the
// levels of later entries. Nothing is cached between calls.
func Synthesize(focal string, ancestors, descendants []common.PersonPath) (*common.FamilyGraph, error) {
	focal = strings.TrimSpace(focal)
	if focal == "" {
		return nil, ErrNoFocal
	}
	if len(ancestors) == 0 && len(descendants) == 0 {
		return nil, ErrNoPaths
	}

	focalID := NodeID(focal)
	b := newBuilder(focalID)
	b.addNode(common.Node{
		ID:         focalID,
		Name:       focal,
		Sex:        common.SexUnknown,
		Role:       common.RoleCurrent,
		Generation: common.RoleCurrent,
		Level:      0,
	})

	skipped := 0
	for pi, path := range ancestors {
		skipped += walk(b, pi, path, common.RoleAncestor)
	}
	for pi, path := range descendants {
		skipped += walk(b, pi, path, common.RoleDescendant)
	}

	logger.Debug("Synthesized family graph",
		"focal", focal,
		"nodes", len(b.graph.Nodes),
		"edges", len(b.graph.Edges),
		"skipped", skipped,
	)

	return b.graph, nil
}

// walk adds one path to the builder and returns the number of skipped
// entries.
func walk(b *builder, pathIndex int, path common.PersonPath, role common.Role) int {
	sign, dir := -1, common.DirectionAncestor
	if role == common.RoleDescendant {
		sign, dir = 1, common.DirectionDescendant
	}

	skipped := 0
	prev := b.graph.FocalID
	for i, person := range path {
		if !person.Valid() {
			skipped++
			continue
		}

		name := strings.TrimSpace(person.Name)
		id := NodeID(name)
		idx := pathIndex
		b.addNode(common.Node{
			ID:         id,
			Name:       name,
			Sex:        common.ParseSex(string(person.Sex)),
			Role:       role,
			Generation: role,
			Level:      sign * (i + 1),
			PathIndex:  &idx,
		})

		// Edges always run from the elder to the younger person.
		if role == common.RoleAncestor {
			b.addEdge(id, prev, dir)
		} else {
			b.addEdge(prev, id, dir)
		}
		prev = id
	}
	return skipped
}
