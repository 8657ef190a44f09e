package layout

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/OFFIS-RIT/lineage/pkg/common"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
)

var tracer = otel.Tracer("github.com/OFFIS-RIT/lineage/pkg/layout")

// Outcome classifies a render.
type Outcome string

const (
	// OutcomeSuccess means the primary strategy laid the graph out.
	OutcomeSuccess Outcome = "success"
	// OutcomeDegraded means a fallback strategy laid the graph out.
	OutcomeDegraded Outcome = "degraded"
	// OutcomeFailure means no strategy succeeded. Result.Emergency tells
	// whether the bare nodes could still be shown.
	OutcomeFailure Outcome = "failure"
)

const (
	postLayoutPadding = 60
	emergencyPadding  = 100
	viewportPadding   = 50

	ZoomInFactor  = 1.2
	ZoomOutFactor = 0.8
)

// StrategyFailure records why one step of the cascade did not succeed.
type StrategyFailure struct {
	Strategy string
	Err      error
}

// Result describes what a render ended up showing.
type Result struct {
	Outcome   Outcome
	Strategy  string
	Failures  []StrategyFailure
	Emergency bool
	Err       error
}

// Observer is notified about every strategy attempt and every finished
// render.
type Observer interface {
	ObserveAttempt(strategy string, elapsed time.Duration, err error)
	ObserveRender(res Result)
}

// Scheduler runs fn once delay has passed.
type Scheduler func(delay time.Duration, fn func())

// Orchestrator renders family graphs onto a surface through a fallback
// cascade of layout strategies.
type Orchestrator struct {
	mu         sync.Mutex
	surface    Surface
	generation uint64

	strategies []Strategy
	timeout    time.Duration
	schedule   Scheduler
	observer   Observer
}

// NewOrchestratorParams configures an Orchestrator.
//
// Strategies defaults to DefaultCascade, Timeout (applied to every single
// surface call) to five seconds and Scheduler to time.AfterFunc.
type NewOrchestratorParams struct {
	Surface    Surface
	Strategies []Strategy
	Timeout    time.Duration
	Scheduler  Scheduler
	Observer   Observer
}

// NewOrchestrator creates an Orchestrator bound to the given surface.
//
// Example:
//
//	orch := layout.NewOrchestrator(layout.NewOrchestratorParams{
//		Surface: surface.NewScene(),
//		Timeout: 5 * time.Second,
//	})
//	res := orch.Render(ctx, g)
func NewOrchestrator(params NewOrchestratorParams) *Orchestrator {
	strategies := params.Strategies
	if len(strategies) == 0 {
		strategies = DefaultCascade()
	}
	timeout := params.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	schedule := params.Scheduler
	if schedule == nil {
		schedule = func(delay time.Duration, fn func()) { time.AfterFunc(delay, fn) }
	}
	observer := params.Observer
	if observer == nil {
		observer = nopObserver{}
	}

	return &Orchestrator{
		surface:    params.Surface,
		strategies: strategies,
		timeout:    timeout,
		schedule:   schedule,
		observer:   observer,
	}
}

// Surface returns the surface currently rendered to.
func (o *Orchestrator) Surface() Surface {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.surface
}

// SetSurface switches rendering to another surface. Post-layout actions
// still pending for the previous surface are dropped.
func (o *Orchestrator) SetSurface(s Surface) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.surface = s
	o.generation++
}

func (o *Orchestrator) begin() (Surface, uint64) {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.generation++
	return o.surface, o.generation
}

func (o *Orchestrator) current(gen uint64) (Surface, bool) {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.surface, o.generation == gen
}

// Render replaces the surface content with g and lays it out.
//
// Strategies are tried in order; the first that succeeds wins and the
// post-layout actions (fit, center, select the focal node) are scheduled
// after its settle delay. When every strategy fails the surface falls back
// to emergency mode and shows the nodes without edges. An empty graph is
// rejected with ErrNoData and leaves the surface untouched.
func (o *Orchestrator) Render(ctx context.Context, g *common.FamilyGraph) Result {
	ctx, span := tracer.Start(ctx, "layout.Render")
	defer span.End()

	if g.Empty() {
		res := Result{Outcome: OutcomeFailure, Err: ErrNoData}
		return o.finish(span, res)
	}
	span.SetAttributes(
		attribute.String("layout.focal", g.FocalID),
		attribute.Int("layout.nodes", len(g.Nodes)),
		attribute.Int("layout.edges", len(g.Edges)),
	)

	surface, gen := o.begin()
	if surface == nil {
		return o.finish(span, Result{Outcome: OutcomeFailure, Err: ErrSurfaceClosed})
	}

	var res Result
	if err := o.replace(ctx, surface, g.Nodes, g.Edges); err != nil {
		logger.Warn("Failed to replace graph elements", "err", err)
		res.Failures = append(res.Failures, StrategyFailure{Strategy: "replace", Err: err})
		return o.finish(span, o.emergency(ctx, surface, g, res))
	}

	for i, s := range o.strategies {
		start := time.Now()
		actx, cancel := context.WithTimeout(ctx, o.timeout)
		err := s.Attempt(actx, surface, g.FocalID)
		cancel()
		o.observer.ObserveAttempt(s.Name, time.Since(start), err)

		if err != nil {
			logger.Warn("Layout strategy failed", "strategy", s.Name, "err", err)
			res.Failures = append(res.Failures, StrategyFailure{Strategy: s.Name, Err: err})
			continue
		}

		res.Strategy = s.Name
		res.Outcome = OutcomeSuccess
		if i > 0 {
			res.Outcome = OutcomeDegraded
			logger.Info("Fell back to layout strategy", "strategy", s.Name, "failures", len(res.Failures))
		}
		focal := g.FocalID
		o.schedule(s.Settle, func() { o.postLayout(gen, focal) })
		return o.finish(span, res)
	}

	return o.finish(span, o.emergency(ctx, surface, g, res))
}

func (o *Orchestrator) emergency(ctx context.Context, surface Surface, g *common.FamilyGraph, res Result) Result {
	causes := make([]error, 0, len(res.Failures))
	for _, f := range res.Failures {
		causes = append(causes, f.Err)
	}
	res.Outcome = OutcomeFailure
	res.Strategy = ""
	res.Err = fmt.Errorf("%w: %w", ErrAllStrategiesFailed, errors.Join(causes...))

	logger.Error("All layout strategies failed, showing nodes only", "nodes", len(g.Nodes), "err", res.Err)

	if err := o.replace(ctx, surface, g.Nodes, nil); err != nil {
		logger.Error("Emergency render failed", "err", err)
		res.Err = errors.Join(res.Err, fmt.Errorf("emergency render: %w", err))
		return res
	}
	res.Emergency = true

	fctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	if err := surface.Fit(fctx, emergencyPadding); err != nil {
		logger.Debug("Emergency fit failed", "err", err)
	}
	return res
}

func (o *Orchestrator) replace(ctx context.Context, surface Surface, nodes []common.Node, edges []common.Edge) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("replace panicked: %v", r)
		}
	}()

	rctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	return surface.Replace(rctx, nodes, edges)
}

// postLayout runs the best-effort actions once the layout has settled. It
// does nothing if another render or a surface swap happened in between.
func (o *Orchestrator) postLayout(gen uint64, focalID string) {
	surface, ok := o.current(gen)
	if !ok || surface == nil {
		return
	}

	ctx, cancel := context.WithTimeout(context.Background(), o.timeout)
	defer cancel()

	actions := []struct {
		name string
		fn   func() error
	}{
		{"fit", func() error { return surface.Fit(ctx, postLayoutPadding) }},
		{"center", func() error { return surface.Center(ctx) }},
		{"select", func() error { return surface.Select(ctx, focalID) }},
	}
	for _, a := range actions {
		if err := a.fn(); err != nil {
			logger.Debug("Post-layout action failed", "action", a.name, "err", err)
		}
	}
}

func (o *Orchestrator) finish(span trace.Span, res Result) Result {
	span.SetAttributes(
		attribute.String("layout.outcome", string(res.Outcome)),
		attribute.String("layout.strategy", res.Strategy),
		attribute.Bool("layout.emergency", res.Emergency),
	)
	if res.Err != nil {
		span.RecordError(res.Err)
		span.SetStatus(codes.Error, res.Err.Error())
	}
	o.observer.ObserveRender(res)
	return res
}

type nopObserver struct{}

func (nopObserver) ObserveAttempt(string, time.Duration, error) {}
func (nopObserver) ObserveRender(Result)                        {}
