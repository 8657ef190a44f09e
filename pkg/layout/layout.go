// Package layout places a family graph on a rendering surface, falling back
// through progressively simpler layout strategies until one succeeds.
package layout

import (
	"context"
	"errors"

	"github.com/OFFIS-RIT/lineage/pkg/common"
)

var (
	// ErrNoData is returned when there is nothing to render.
	ErrNoData = errors.New("no family tree data available")
	// ErrStrategyUnavailable means the surface has no engine for a strategy.
	ErrStrategyUnavailable = errors.New("layout engine unavailable")
	// ErrSurfaceClosed is returned by surfaces that were torn down.
	ErrSurfaceClosed = errors.New("rendering surface closed")
	// ErrAllStrategiesFailed is wrapped by the result of an emergency render.
	ErrAllStrategiesFailed = errors.New("all layout strategies failed")
)

// Surface is the rendering capability the orchestrator drives. It is
// implemented by the headless scene and by the websocket bridge to a
// browser running cytoscape.
//
// All element changes go through Replace, which clears the surface and adds
// the given elements as one step.
type Surface interface {
	// Available reports whether the named layout engine can be used.
	Available(engine string) bool
	Replace(ctx context.Context, nodes []common.Node, edges []common.Edge) error
	// ApplyLayout runs a layout and returns once it has stopped.
	ApplyLayout(ctx context.Context, engine string, opts Options) error
	Fit(ctx context.Context, padding int) error
	Center(ctx context.Context) error
	Select(ctx context.Context, nodeID string) error
	Zoom() float64
	SetZoom(ctx context.Context, level float64) error
	PanBy(ctx context.Context, dx, dy float64) error
}

// Options mirrors the cytoscape layout options used by the strategies.
// Zero values are omitted so each engine only sees what it understands.
type Options struct {
	Name                        string  `json:"name"`
	RankDir                     string  `json:"rankDir,omitempty"`
	SpacingFactor               float64 `json:"spacingFactor,omitempty"`
	NodeDimensionsIncludeLabels bool    `json:"nodeDimensionsIncludeLabels,omitempty"`
	Animate                     bool    `json:"animate,omitempty"`
	AnimationDuration           int     `json:"animationDuration,omitempty"`
	Fit                         bool    `json:"fit,omitempty"`
	Padding                     int     `json:"padding,omitempty"`
	RankSep                     int     `json:"rankSep,omitempty"`
	NodeSep                     int     `json:"nodeSep,omitempty"`
	EdgeSep                     int     `json:"edgeSep,omitempty"`
	Directed                    bool    `json:"directed,omitempty"`
	Roots                       string  `json:"roots,omitempty"`
	AvoidOverlap                bool    `json:"avoidOverlap,omitempty"`
}
