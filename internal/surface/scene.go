// Package surface provides the rendering surfaces a session draws on: a
// headless scene kept on the server and a websocket bridge to a browser.
package surface

import (
	"context"
	"slices"
	"sync"

	"github.com/OFFIS-RIT/lineage/pkg/common"
	"github.com/OFFIS-RIT/lineage/pkg/layout"
)

// DefaultEngines are the layout engines a headless scene accepts.
var DefaultEngines = []string{"dagre", "breadthfirst", "grid"}

// Point is a viewport offset in rendered pixels.
type Point struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
}

// SceneSnapshot is a copy of what a scene currently shows.
type SceneSnapshot struct {
	Revision   uint64         `json:"revision"`
	Nodes      []common.Node  `json:"nodes"`
	Edges      []common.Edge  `json:"edges"`
	Layout     string         `json:"layout,omitempty"`
	Options    layout.Options `json:"options"`
	Zoom       float64        `json:"zoom"`
	Pan        Point          `json:"pan"`
	Selected   string         `json:"selected,omitempty"`
	FitPadding int            `json:"fit_padding"`
}

// Scene is a headless surface. It keeps the element set, the last layout
// and the viewport so the server can answer graph requests without a
// browser attached.
type Scene struct {
	mu      sync.RWMutex
	engines map[string]bool
	state   SceneSnapshot
}

// NewScene returns a scene accepting the given layout engines, or
// DefaultEngines when none are given.
func NewScene(engines ...string) *Scene {
	if len(engines) == 0 {
		engines = DefaultEngines
	}
	s := &Scene{
		engines: make(map[string]bool, len(engines)),
		state:   SceneSnapshot{Zoom: 1},
	}
	for _, e := range engines {
		s.engines[e] = true
	}
	return s
}

func (s *Scene) Available(engine string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.engines[engine]
}

func (s *Scene) Replace(ctx context.Context, nodes []common.Node, edges []common.Edge) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Nodes = slices.Clone(nodes)
	s.state.Edges = slices.Clone(edges)
	s.state.Layout = ""
	s.state.Options = layout.Options{}
	s.state.Selected = ""
	s.state.Revision++
	return nil
}

func (s *Scene) ApplyLayout(ctx context.Context, engine string, opts layout.Options) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.engines[engine] {
		return layout.ErrStrategyUnavailable
	}
	s.state.Layout = engine
	s.state.Options = opts
	if opts.Fit {
		s.state.FitPadding = opts.Padding
	}
	return nil
}

func (s *Scene) Fit(_ context.Context, padding int) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.FitPadding = padding
	s.state.Pan = Point{}
	return nil
}

func (s *Scene) Center(context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Pan = Point{}
	return nil
}

func (s *Scene) Select(_ context.Context, nodeID string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, n := range s.state.Nodes {
		if n.ID == nodeID {
			s.state.Selected = nodeID
			return nil
		}
	}
	return nil
}

func (s *Scene) Zoom() float64 {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.state.Zoom
}

func (s *Scene) SetZoom(_ context.Context, level float64) error {
	if level <= 0 {
		return nil
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Zoom = level
	return nil
}

func (s *Scene) PanBy(_ context.Context, dx, dy float64) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.state.Pan.X += dx
	s.state.Pan.Y += dy
	return nil
}

// Snapshot returns a copy of the current scene.
func (s *Scene) Snapshot() SceneSnapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	snap := s.state
	snap.Nodes = slices.Clone(s.state.Nodes)
	snap.Edges = slices.Clone(s.state.Edges)
	return snap
}
