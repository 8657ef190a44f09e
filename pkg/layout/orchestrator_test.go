package layout

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/lineage/pkg/common"
)

// fakeSurface records every call and fails on demand.
type fakeSurface struct {
	mu        sync.Mutex
	engines   map[string]bool
	layoutErr map[string]error
	panicOn   string
	// panicCheck makes Available panic for that engine.
	panicCheck string
	replaceFn  func(edges []common.Edge) error
	postErr    error

	calls    []string
	nodes    []common.Node
	edges    []common.Edge
	layout   string
	opts     Options
	zoom     float64
	selected string
	padding  []int
}

func newFakeSurface(engines ...string) *fakeSurface {
	f := &fakeSurface{engines: map[string]bool{}, layoutErr: map[string]error{}, zoom: 1}
	for _, e := range engines {
		f.engines[e] = true
	}
	return f
}

func (f *fakeSurface) record(call string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, call)
}

func (f *fakeSurface) Available(engine string) bool {
	if engine == f.panicCheck {
		panic("capability check exploded")
	}
	return f.engines[engine]
}

func (f *fakeSurface) Replace(_ context.Context, nodes []common.Node, edges []common.Edge) error {
	f.record("replace")
	if f.replaceFn != nil {
		if err := f.replaceFn(edges); err != nil {
			return err
		}
	}
	f.nodes, f.edges = nodes, edges
	return nil
}

func (f *fakeSurface) ApplyLayout(_ context.Context, engine string, opts Options) error {
	f.record("layout:" + engine)
	if engine == f.panicOn {
		panic("engine exploded")
	}
	if err := f.layoutErr[engine]; err != nil {
		return err
	}
	f.layout, f.opts = engine, opts
	return nil
}

func (f *fakeSurface) Fit(_ context.Context, padding int) error {
	f.record("fit")
	f.padding = append(f.padding, padding)
	return f.postErr
}

func (f *fakeSurface) Center(context.Context) error {
	f.record("center")
	return f.postErr
}

func (f *fakeSurface) Select(_ context.Context, id string) error {
	f.record("select")
	if f.postErr != nil {
		return f.postErr
	}
	f.selected = id
	return nil
}

func (f *fakeSurface) Zoom() float64 { return f.zoom }

func (f *fakeSurface) SetZoom(_ context.Context, level float64) error {
	f.zoom = level
	return nil
}

func (f *fakeSurface) PanBy(context.Context, float64, float64) error {
	f.record("pan")
	return nil
}

// manualScheduler collects post-layout actions so tests decide when they run.
type manualScheduler struct {
	delays []time.Duration
	fns    []func()
}

func (m *manualScheduler) schedule(d time.Duration, fn func()) {
	m.delays = append(m.delays, d)
	m.fns = append(m.fns, fn)
}

func (m *manualScheduler) runAll() {
	for _, fn := range m.fns {
		fn()
	}
	m.fns = nil
}

type recordingObserver struct {
	attempts []string
	renders  []Result
}

func (r *recordingObserver) ObserveAttempt(strategy string, _ time.Duration, err error) {
	status := "ok"
	if err != nil {
		status = "err"
	}
	r.attempts = append(r.attempts, strategy+":"+status)
}

func (r *recordingObserver) ObserveRender(res Result) { r.renders = append(r.renders, res) }

func sampleGraph() *common.FamilyGraph {
	return &common.FamilyGraph{
		FocalID: "C",
		Nodes: []common.Node{
			{ID: "C", Name: "C", Role: common.RoleCurrent},
			{ID: "A", Name: "A", Role: common.RoleAncestor, Level: -1},
			{ID: "B", Name: "B", Role: common.RoleDescendant, Level: 1},
		},
		Edges: []common.Edge{
			{ID: "A->C", Source: "A", Target: "C"},
			{ID: "C->B", Source: "C", Target: "B"},
		},
	}
}

func newTestOrchestrator(s Surface) (*Orchestrator, *manualScheduler, *recordingObserver) {
	sched := &manualScheduler{}
	obs := &recordingObserver{}
	o := NewOrchestrator(NewOrchestratorParams{
		Surface:   s,
		Timeout:   time.Second,
		Scheduler: sched.schedule,
		Observer:  obs,
	})
	return o, sched, obs
}

func TestRenderPrimaryStrategy(t *testing.T) {
	s := newFakeSurface("dagre", "breadthfirst", "grid")
	o, sched, obs := newTestOrchestrator(s)

	res := o.Render(context.Background(), sampleGraph())

	assert.Equal(t, OutcomeSuccess, res.Outcome)
	assert.Equal(t, "hierarchical", res.Strategy)
	assert.Empty(t, res.Failures)
	assert.NoError(t, res.Err)
	assert.Equal(t, "dagre", s.layout)
	assert.Equal(t, "TB", s.opts.RankDir)
	assert.Len(t, s.nodes, 3)
	assert.Len(t, s.edges, 2)
	assert.Equal(t, []string{"hierarchical:ok"}, obs.attempts)
	require.Len(t, obs.renders, 1)

	require.Equal(t, []time.Duration{900 * time.Millisecond}, sched.delays)
	assert.Empty(t, s.selected, "post-layout actions wait for the settle delay")
	sched.runAll()
	assert.Equal(t, "C", s.selected)
	assert.Equal(t, []int{60}, s.padding)
	assert.Equal(t, []string{"replace", "layout:dagre", "fit", "center", "select"}, s.calls)
}

func TestRenderFallsBackWhenEngineMissing(t *testing.T) {
	s := newFakeSurface("breadthfirst", "grid")
	o, sched, _ := newTestOrchestrator(s)

	res := o.Render(context.Background(), sampleGraph())

	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.Equal(t, "breadthFirst", res.Strategy)
	require.Len(t, res.Failures, 1)
	assert.Equal(t, "hierarchical", res.Failures[0].Strategy)
	assert.ErrorIs(t, res.Failures[0].Err, ErrStrategyUnavailable)
	assert.Equal(t, "#C", s.opts.Roots)
	assert.True(t, s.opts.Directed)

	sched.runAll()
	assert.Equal(t, "C", s.selected)
}

func TestRenderFallsBackToGrid(t *testing.T) {
	s := newFakeSurface("dagre", "breadthfirst", "grid")
	s.layoutErr["dagre"] = errors.New("dagre: cycle detected")
	s.panicOn = "breadthfirst"
	o, sched, obs := newTestOrchestrator(s)

	res := o.Render(context.Background(), sampleGraph())

	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.Equal(t, "grid", res.Strategy)
	assert.Len(t, res.Failures, 2)
	assert.Contains(t, res.Failures[1].Err.Error(), "panicked")
	assert.Equal(t, []string{"hierarchical:err", "breadthFirst:err", "grid:ok"}, obs.attempts)
	assert.Equal(t, []time.Duration{600 * time.Millisecond}, sched.delays)
}

func TestRenderEmergencyMode(t *testing.T) {
	s := newFakeSurface()
	o, sched, _ := newTestOrchestrator(s)

	res := o.Render(context.Background(), sampleGraph())

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.True(t, res.Emergency)
	assert.ErrorIs(t, res.Err, ErrAllStrategiesFailed)
	assert.ErrorIs(t, res.Err, ErrStrategyUnavailable)
	assert.Len(t, res.Failures, 3)
	assert.Len(t, s.nodes, 3, "nodes are still shown")
	assert.Empty(t, s.edges)
	assert.Equal(t, []int{100}, s.padding)
	assert.Empty(t, sched.fns)
}

func TestRenderSurvivesPanickingCapabilityCheck(t *testing.T) {
	s := newFakeSurface("dagre", "breadthfirst", "grid")
	s.panicCheck = "dagre"
	o, sched, _ := newTestOrchestrator(s)

	res := o.Render(context.Background(), sampleGraph())

	assert.Equal(t, OutcomeDegraded, res.Outcome)
	assert.Equal(t, "breadthFirst", res.Strategy)
	require.Len(t, res.Failures, 1)
	assert.Contains(t, res.Failures[0].Err.Error(), "panicked")
	assert.Equal(t, "breadthfirst", s.layout)
	assert.Len(t, sched.fns, 1)
}

func TestRenderCriticalWhenEmergencyFails(t *testing.T) {
	s := newFakeSurface("dagre", "breadthfirst", "grid")
	s.replaceFn = func([]common.Edge) error { return errors.New("surface detached") }
	o, _, _ := newTestOrchestrator(s)

	res := o.Render(context.Background(), sampleGraph())

	assert.Equal(t, OutcomeFailure, res.Outcome)
	assert.False(t, res.Emergency)
	assert.ErrorIs(t, res.Err, ErrAllStrategiesFailed)
	assert.Contains(t, res.Err.Error(), "emergency render")
	assert.Equal(t, []string{"replace", "replace"}, s.calls)
}

func TestRenderEmptyGraphLeavesSurfaceUntouched(t *testing.T) {
	tests := []struct {
		name  string
		graph *common.FamilyGraph
	}{
		{name: "nil graph", graph: nil},
		{name: "no nodes", graph: &common.FamilyGraph{FocalID: "C"}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s := newFakeSurface("dagre", "breadthfirst", "grid")
			o, _, obs := newTestOrchestrator(s)

			res := o.Render(context.Background(), tt.graph)

			assert.Equal(t, OutcomeFailure, res.Outcome)
			assert.ErrorIs(t, res.Err, ErrNoData)
			assert.Empty(t, s.calls)
			assert.Len(t, obs.renders, 1)
		})
	}
}

func TestPostLayoutErrorsAreSwallowed(t *testing.T) {
	s := newFakeSurface("grid")
	s.postErr = ErrSurfaceClosed
	o, sched, _ := newTestOrchestrator(s)

	res := o.Render(context.Background(), sampleGraph())
	require.Equal(t, OutcomeDegraded, res.Outcome)

	assert.NotPanics(t, sched.runAll)
	assert.Equal(t, []string{"replace", "layout:grid", "fit", "center", "select"}, s.calls)
}

func TestStalePostLayoutActionsAreDropped(t *testing.T) {
	s := newFakeSurface("dagre")
	o, sched, _ := newTestOrchestrator(s)

	o.Render(context.Background(), sampleGraph())
	second := sampleGraph()
	second.FocalID = "A"
	o.Render(context.Background(), second)

	sched.runAll()
	assert.Equal(t, "A", s.selected)
	assert.Equal(t, []int{60}, s.padding, "only the latest render runs its actions")
}

func TestSetSurfaceDropsPendingActions(t *testing.T) {
	first := newFakeSurface("dagre")
	o, sched, _ := newTestOrchestrator(first)

	o.Render(context.Background(), sampleGraph())
	second := newFakeSurface("dagre")
	o.SetSurface(second)
	sched.runAll()

	assert.Empty(t, first.selected)
	assert.Empty(t, second.calls)
}

func TestViewportPassThrough(t *testing.T) {
	s := newFakeSurface("grid")
	o, _, _ := newTestOrchestrator(s)
	ctx := context.Background()

	require.NoError(t, o.ZoomIn(ctx))
	assert.Equal(t, 120, o.ZoomLevel())
	require.NoError(t, o.ZoomOut(ctx))
	assert.Equal(t, 96, o.ZoomLevel())

	require.NoError(t, o.Fit(ctx))
	require.NoError(t, o.Center(ctx))
	require.NoError(t, o.Pan(ctx, 10, -5))
	assert.Equal(t, []int{50}, s.padding)
	assert.Equal(t, []string{"fit", "center", "pan"}, s.calls)
}

func TestViewportWithoutSurface(t *testing.T) {
	o := NewOrchestrator(NewOrchestratorParams{})
	assert.ErrorIs(t, o.ZoomIn(context.Background()), ErrSurfaceClosed)
	assert.Equal(t, 100, o.ZoomLevel())

	res := o.Render(context.Background(), sampleGraph())
	assert.ErrorIs(t, res.Err, ErrSurfaceClosed)
}

func TestStrategyAttemptFillsEngineName(t *testing.T) {
	s := newFakeSurface("cose")
	st := Strategy{Name: "force", Engine: "cose"}

	require.NoError(t, st.Attempt(context.Background(), s, "C"))
	assert.Equal(t, "cose", s.opts.Name)
}
