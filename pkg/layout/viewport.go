package layout

import (
	"context"
	"math"
)

// ZoomIn scales the current zoom level by ZoomInFactor.
func (o *Orchestrator) ZoomIn(ctx context.Context) error {
	return o.scaleZoom(ctx, ZoomInFactor)
}

// ZoomOut scales the current zoom level by ZoomOutFactor.
func (o *Orchestrator) ZoomOut(ctx context.Context) error {
	return o.scaleZoom(ctx, ZoomOutFactor)
}

func (o *Orchestrator) scaleZoom(ctx context.Context, factor float64) error {
	s := o.Surface()
	if s == nil {
		return ErrSurfaceClosed
	}
	return s.SetZoom(ctx, s.Zoom()*factor)
}

// Fit fits the whole graph into the viewport.
func (o *Orchestrator) Fit(ctx context.Context) error {
	s := o.Surface()
	if s == nil {
		return ErrSurfaceClosed
	}
	return s.Fit(ctx, viewportPadding)
}

// Center centers the graph in the viewport.
func (o *Orchestrator) Center(ctx context.Context) error {
	s := o.Surface()
	if s == nil {
		return ErrSurfaceClosed
	}
	return s.Center(ctx)
}

// Pan moves the viewport by the given offset in rendered pixels.
func (o *Orchestrator) Pan(ctx context.Context, dx, dy float64) error {
	s := o.Surface()
	if s == nil {
		return ErrSurfaceClosed
	}
	return s.PanBy(ctx, dx, dy)
}

// ZoomLevel returns the current zoom as a rounded percentage.
func (o *Orchestrator) ZoomLevel() int {
	s := o.Surface()
	if s == nil {
		return 100
	}
	return int(math.Round(s.Zoom() * 100))
}
