package surface

import (
	"context"

	"github.com/OFFIS-RIT/lineage/pkg/common"
	"github.com/OFFIS-RIT/lineage/pkg/layout"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
)

// Tee renders to a primary surface and mirrors every change into a shadow
// scene. The primary decides availability, zoom and errors; the shadow only
// follows what the primary accepted.
type Tee struct {
	primary layout.Surface
	shadow  *Scene
}

func NewTee(primary layout.Surface, shadow *Scene) *Tee {
	return &Tee{primary: primary, shadow: shadow}
}

func (t *Tee) mirror(op string, fn func() error) {
	if err := fn(); err != nil {
		logger.Debug("Shadow scene rejected change", "op", op, "err", err)
	}
}

func (t *Tee) Available(engine string) bool {
	return t.primary.Available(engine)
}

func (t *Tee) Replace(ctx context.Context, nodes []common.Node, edges []common.Edge) error {
	if err := t.primary.Replace(ctx, nodes, edges); err != nil {
		return err
	}
	t.mirror("replace", func() error { return t.shadow.Replace(context.WithoutCancel(ctx), nodes, edges) })
	return nil
}

func (t *Tee) ApplyLayout(ctx context.Context, engine string, opts layout.Options) error {
	if err := t.primary.ApplyLayout(ctx, engine, opts); err != nil {
		return err
	}
	t.mirror("layout", func() error {
		s := t.shadow
		s.mu.Lock()
		defer s.mu.Unlock()
		s.state.Layout = engine
		s.state.Options = opts
		return nil
	})
	return nil
}

func (t *Tee) Fit(ctx context.Context, padding int) error {
	if err := t.primary.Fit(ctx, padding); err != nil {
		return err
	}
	t.mirror("fit", func() error { return t.shadow.Fit(ctx, padding) })
	return nil
}

func (t *Tee) Center(ctx context.Context) error {
	if err := t.primary.Center(ctx); err != nil {
		return err
	}
	t.mirror("center", func() error { return t.shadow.Center(ctx) })
	return nil
}

func (t *Tee) Select(ctx context.Context, nodeID string) error {
	if err := t.primary.Select(ctx, nodeID); err != nil {
		return err
	}
	t.mirror("select", func() error { return t.shadow.Select(ctx, nodeID) })
	return nil
}

func (t *Tee) Zoom() float64 {
	return t.primary.Zoom()
}

func (t *Tee) SetZoom(ctx context.Context, level float64) error {
	if err := t.primary.SetZoom(ctx, level); err != nil {
		return err
	}
	t.mirror("zoom", func() error { return t.shadow.SetZoom(ctx, t.primary.Zoom()) })
	return nil
}

func (t *Tee) PanBy(ctx context.Context, dx, dy float64) error {
	if err := t.primary.PanBy(ctx, dx, dy); err != nil {
		return err
	}
	t.mirror("pan", func() error { return t.shadow.PanBy(ctx, dx, dy) })
	return nil
}
