package common

import "strings"

// Sex is the biological sex recorded for a person in the knowledge base.
// Values the resolver does not know about collapse to SexUnknown.
type Sex string

const (
	SexMale    Sex = "male"
	SexFemale  Sex = "female"
	SexUnknown Sex = "unknown"
)

// ParseSex normalizes a free-form sex value. Matching is case-insensitive
// and anything other than male or female yields SexUnknown.
func ParseSex(value string) Sex {
	switch strings.ToLower(strings.TrimSpace(value)) {
	case string(SexMale):
		return SexMale
	case string(SexFemale):
		return SexFemale
	default:
		return SexUnknown
	}
}

// Person is a single member of a lineage as returned by the resolver.
// Persons are identified by name. A zero Person marks an entry that could
// not be decoded; it keeps its position in the path but is never drawn.
type Person struct {
	Name string `json:"name"`
	Sex  Sex    `json:"sex"`
}

// Valid reports whether the person carries a usable name.
func (p Person) Valid() bool {
	return strings.TrimSpace(p.Name) != ""
}

// PersonPath is an ordered lineage starting next to the focal person and
// moving outward. Element i is i+1 generations away from the focal person.
type PersonPath []Person

// Role describes how a node relates to the focal person of a graph.
type Role string

const (
	RoleCurrent    Role = "current"
	RoleAncestor   Role = "ancestor"
	RoleDescendant Role = "descendant"
)

// Direction tells which side of the focal person an edge was built from.
type Direction string

const (
	DirectionAncestor   Direction = "ancestor"
	DirectionDescendant Direction = "descendant"
)

// Node is a person placed in a family graph.
//
// Level is the signed generational distance from the focal person:
// negative for ancestors, positive for descendants and zero for the focal
// person itself. PathIndex is the index of the path that introduced the
// node and is nil for the focal node.
type Node struct {
	ID         string `json:"id"`
	Name       string `json:"name"`
	Sex        Sex    `json:"sex"`
	Role       Role   `json:"type"`
	Generation Role   `json:"generation"`
	Level      int    `json:"level"`
	PathIndex  *int   `json:"pathIndex,omitempty"`
}

// Edge is a directed relation from the elder to the younger person.
type Edge struct {
	ID        string    `json:"id"`
	Source    string    `json:"source"`
	Target    string    `json:"target"`
	Direction Direction `json:"direction"`
}

// FamilyGraph is the renderable element set built around one focal person.
// Nodes and Edges keep insertion order, so the same input always yields the
// same graph element for element.
type FamilyGraph struct {
	FocalID string `json:"focal_id"`
	Nodes   []Node `json:"nodes"`
	Edges   []Edge `json:"edges"`
}

// Empty reports whether there is nothing to render.
func (g *FamilyGraph) Empty() bool {
	return g == nil || len(g.Nodes) == 0
}

// Node returns the node with the given ID.
func (g *FamilyGraph) Node(id string) (Node, bool) {
	if g == nil {
		return Node{}, false
	}
	for _, n := range g.Nodes {
		if n.ID == id {
			return n, true
		}
	}
	return Node{}, false
}

// TreeData holds the lineage paths received for the focal person.
type TreeData struct {
	Ancestors   []PersonPath `json:"ancestors"`
	Descendants []PersonPath `json:"descendants"`
}

// Empty reports whether neither side carries a path.
func (t TreeData) Empty() bool {
	return len(t.Ancestors) == 0 && len(t.Descendants) == 0
}

// Clone returns a deep copy, so callers can hand out tree data without
// sharing the backing arrays.
func (t TreeData) Clone() TreeData {
	return TreeData{
		Ancestors:   clonePaths(t.Ancestors),
		Descendants: clonePaths(t.Descendants),
	}
}

func clonePaths(paths []PersonPath) []PersonPath {
	if paths == nil {
		return nil
	}
	out := make([]PersonPath, len(paths))
	for i, p := range paths {
		if p == nil {
			continue
		}
		out[i] = append(PersonPath(nil), p...)
	}
	return out
}
