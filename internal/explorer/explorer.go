// Package explorer runs one family-tree exploration session as a serialized
// event loop: state changes and renders happen on a single goroutine while
// resolver round trips run beside it.
package explorer

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/OFFIS-RIT/lineage/internal/surface"
	"github.com/OFFIS-RIT/lineage/internal/util"
	"github.com/OFFIS-RIT/lineage/pkg/kb"
	"github.com/OFFIS-RIT/lineage/pkg/layout"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
	"github.com/OFFIS-RIT/lineage/pkg/query"
	"github.com/OFFIS-RIT/lineage/pkg/session"
)

var (
	// ErrBusy is returned while a submitted query is still in flight.
	ErrBusy = errors.New("a query is already in progress")
	// ErrClosed is returned once the session was closed.
	ErrClosed = errors.New("session closed")
	// ErrEmptyQuery is returned for blank queries.
	ErrEmptyQuery = errors.New("query is empty")
	// ErrUnknownViewportOp is returned for unsupported viewport operations.
	ErrUnknownViewportOp = errors.New("unknown viewport operation")
)

const welcomeMessage = "Hi! I'm your family tree assistant. You can ask me things like:\n\n" +
	"• \"Visualize Kevin's family tree\" (creates complete tree)\n" +
	"• \"Show me Laura's ancestors\" (shows ancestor tree)\n" +
	"• \"Who are Charles's children?\"\n" +
	"• \"What is Diana's gender?\"\n\n" +
	"What would you like to know?"

// Deps are the collaborators shared by all sessions.
type Deps struct {
	Service       kb.Service
	Observer      layout.Observer
	Tracer        query.Tracer
	LayoutTimeout time.Duration
	// Engines are the layout engines of the headless scene; empty means
	// surface.DefaultEngines.
	Engines []string
}

// Status is a point-in-time view of a session.
type Status struct {
	ID             string           `json:"id"`
	Owner          string           `json:"owner,omitempty"`
	CurrentPerson  string           `json:"current_person"`
	Tree           session.Snapshot `json:"state"`
	Busy           bool             `json:"busy"`
	Zoom           int              `json:"zoom"`
	RemoteAttached bool             `json:"remote_attached"`
	LastReport     *query.Report    `json:"last_report,omitempty"`
	CreatedAt      time.Time        `json:"created_at"`
}

// Explorer is one session. All exported methods are safe for concurrent
// use; they hand their work to the event loop.
type Explorer struct {
	id        string
	owner     string
	createdAt time.Time

	ctx    context.Context
	cancel context.CancelFunc
	events chan func()
	done   chan struct{}
	once   sync.Once

	state      *session.State
	transcript *session.Transcript
	scene      *surface.Scene
	orch       *layout.Orchestrator
	dispatcher *query.Dispatcher
	mutator    *kb.Mutator

	busy       atomic.Bool
	lastActive atomic.Int64

	remoteMu    sync.Mutex
	remote      *surface.Remote
	unsubscribe func()

	// Owned by the event loop.
	inflight   int
	lastReport *query.Report
}

// New creates a session and starts its event loop.
func New(id, owner string, deps Deps) *Explorer {
	ctx, cancel := context.WithCancel(context.Background())
	x := &Explorer{
		id:         id,
		owner:      owner,
		createdAt:  time.Now(),
		ctx:        ctx,
		cancel:     cancel,
		events:     make(chan func(), 64),
		done:       make(chan struct{}),
		state:      session.NewState(),
		transcript: session.NewTranscript(session.DefaultTranscriptSize),
		scene:      surface.NewScene(deps.Engines...),
	}
	x.orch = layout.NewOrchestrator(layout.NewOrchestratorParams{
		Surface:  x.scene,
		Timeout:  deps.LayoutTimeout,
		Observer: deps.Observer,
		Scheduler: func(delay time.Duration, fn func()) {
			time.AfterFunc(delay, func() { x.post(fn) })
		},
	})
	x.dispatcher = query.NewDispatcher(query.NewDispatcherParams{
		Resolver:   deps.Service,
		Renderer:   x.orch,
		State:      x.state,
		Transcript: x.transcript,
		Tracer:     deps.Tracer,
	})
	x.mutator = kb.NewMutator(deps.Service, x.transcript)
	x.touch()

	x.transcript.Bot(welcomeMessage)
	go x.run()
	return x
}

func (x *Explorer) ID() string    { return x.id }
func (x *Explorer) Owner() string { return x.owner }

// Transcript returns the conversation of the session.
func (x *Explorer) Transcript() *session.Transcript { return x.transcript }

// Scene returns the headless copy of what the session shows.
func (x *Explorer) Scene() *surface.Scene { return x.scene }

// Busy reports whether a submitted query is in flight.
func (x *Explorer) Busy() bool { return x.busy.Load() }

// IdleSince returns the time of the last interaction.
func (x *Explorer) IdleSince() time.Time { return time.Unix(0, x.lastActive.Load()) }

// Done is closed when the session is closed.
func (x *Explorer) Done() <-chan struct{} { return x.done }

func (x *Explorer) touch() { x.lastActive.Store(time.Now().UnixNano()) }

func (x *Explorer) run() {
	for {
		select {
		case fn := <-x.events:
			x.safely(fn)
		case <-x.done:
			return
		}
	}
}

func (x *Explorer) safely(fn func()) {
	defer func() {
		if r := recover(); r != nil {
			logger.Error("Session event panicked", "session", x.id, "panic", fmt.Sprint(r))
		}
	}()
	fn()
}

// post queues fn on the event loop. It reports false once the session is
// closed.
func (x *Explorer) post(fn func()) bool {
	select {
	case <-x.done:
		return false
	default:
	}
	select {
	case x.events <- fn:
		return true
	case <-x.done:
		return false
	}
}

// call runs fn on the event loop and waits for it.
func (x *Explorer) call(ctx context.Context, fn func()) error {
	finished := make(chan struct{})
	if !x.post(func() {
		defer close(finished)
		fn()
	}) {
		return ErrClosed
	}
	select {
	case <-finished:
		return nil
	case <-x.done:
		return ErrClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Submit dispatches a chat query. It fails with ErrBusy while an earlier
// submission is in flight. The returned channel yields the report once the
// response was applied.
func (x *Explorer) Submit(ctx context.Context, text string) (<-chan query.Report, error) {
	x.touch()
	text = util.SanitizeText(text)
	if text == "" {
		return nil, ErrEmptyQuery
	}

	var (
		out <-chan query.Report
		err error
	)
	if callErr := x.call(ctx, func() {
		if x.inflight > 0 {
			err = ErrBusy
			return
		}
		x.transcript.User(text)
		out = x.start(query.Request{Text: text})
	}); callErr != nil {
		return nil, callErr
	}
	return out, err
}

// Tap handles a tap (or double tap) on the node of the named person. It
// reports false when the tap does not lead to a query, which is the case
// for the focal person. Taps do not wait for earlier queries; the last
// response to arrive wins.
func (x *Explorer) Tap(ctx context.Context, name string, double bool) (<-chan query.Report, bool, error) {
	x.touch()
	name = util.SanitizeText(name)

	var out <-chan query.Report
	err := x.call(ctx, func() {
		if double {
			q, ok := x.dispatcher.DoubleTapQuery(name)
			if !ok {
				return
			}
			x.transcript.User(q)
			out = x.start(query.Request{Text: q})
			return
		}

		q, ok := x.dispatcher.TapQuery(name)
		if !ok {
			return
		}
		x.transcript.User(fmt.Sprintf("Exploring %s's complete family tree...", name))
		out = x.start(query.Request{Text: q, Subject: name})
	})
	if err != nil {
		return nil, false, err
	}
	return out, out != nil, nil
}

// start runs on the loop. The resolver is asked on its own goroutine and
// the response is applied back on the loop.
func (x *Explorer) start(req query.Request) <-chan query.Report {
	x.inflight++
	x.busy.Store(true)

	out := make(chan query.Report, 1)
	go func() {
		resp, err := x.dispatcher.Fetch(x.ctx, req)
		posted := x.post(func() {
			defer x.finish()
			report := x.dispatcher.Apply(x.ctx, req, resp, err)
			x.lastReport = &report
			out <- report
		})
		if !posted {
			out <- query.Report{Query: req.Text, Err: ErrClosed, Error: ErrClosed.Error()}
		}
	}()
	return out
}

func (x *Explorer) finish() {
	x.inflight--
	if x.inflight <= 0 {
		x.inflight = 0
		x.busy.Store(false)
	}
}

// Relayout redraws the current tree from the session state.
func (x *Explorer) Relayout(ctx context.Context) (query.Report, error) {
	x.touch()
	var report query.Report
	err := x.call(ctx, func() {
		report = x.dispatcher.Relayout(x.ctx)
	})
	return report, err
}

// Viewport applies a viewport operation and returns the resulting zoom in
// percent. Supported operations are zoom_in, zoom_out, fit, center and pan.
func (x *Explorer) Viewport(ctx context.Context, op string, dx, dy float64) (int, error) {
	x.touch()
	var (
		zoom int
		err  error
	)
	callErr := x.call(ctx, func() {
		switch op {
		case "zoom_in":
			err = x.orch.ZoomIn(ctx)
		case "zoom_out":
			err = x.orch.ZoomOut(ctx)
		case "fit":
			err = x.orch.Fit(ctx)
		case "center":
			err = x.orch.Center(ctx)
		case "pan":
			err = x.orch.Pan(ctx, dx, dy)
		default:
			err = fmt.Errorf("%w: %s", ErrUnknownViewportOp, op)
		}
		zoom = x.orch.ZoomLevel()
	})
	if callErr != nil {
		return 0, callErr
	}
	return zoom, err
}

// AddRelationship runs the knowledge-base add flow. It does not touch the
// displayed tree and therefore does not go through the event loop.
func (x *Explorer) AddRelationship(ctx context.Context, rel kb.Relationship) (kb.Outcome, error) {
	x.touch()
	return x.mutator.AddRelationship(ctx, rel)
}

// RemoveRelationship runs the knowledge-base remove flow.
func (x *Explorer) RemoveRelationship(ctx context.Context, rel kb.Relationship) (kb.Outcome, error) {
	x.touch()
	return x.mutator.RemoveRelationship(ctx, rel)
}

// Status returns the current session status.
func (x *Explorer) Status(ctx context.Context) (Status, error) {
	var st Status
	err := x.call(ctx, func() {
		snap := x.state.Get()
		st = Status{
			ID:            x.id,
			Owner:         x.owner,
			CurrentPerson: snap.CurrentPerson,
			Tree:          snap,
			Busy:          x.inflight > 0,
			Zoom:          x.orch.ZoomLevel(),
			LastReport:    x.lastReport,
			CreatedAt:     x.createdAt,
		}
	})
	x.remoteMu.Lock()
	st.RemoteAttached = x.remote != nil
	x.remoteMu.Unlock()
	return st, err
}

// Attach makes a browser the rendering surface of the session. A previously
// attached browser is disconnected. The current tree is redrawn on the new
// surface and new transcript entries are pushed to it as message events.
// The session falls back to the headless scene once the browser goes away.
func (x *Explorer) Attach(ctx context.Context, remote *surface.Remote) error {
	x.touch()
	err := x.call(ctx, func() {
		unsubscribe := x.transcript.Subscribe(func(e session.Entry) {
			if err := remote.Push("message", e); err != nil && !errors.Is(err, layout.ErrSurfaceClosed) {
				logger.Warn("Failed to push transcript entry", "session", x.id, "err", err)
			}
		})

		x.remoteMu.Lock()
		prev, prevUnsubscribe := x.remote, x.unsubscribe
		x.remote, x.unsubscribe = remote, unsubscribe
		x.remoteMu.Unlock()
		if prevUnsubscribe != nil {
			prevUnsubscribe()
		}
		if prev != nil {
			_ = prev.Close()
		}

		x.orch.SetSurface(surface.NewTee(remote, x.scene))
		if x.state.Get().HasFocus() {
			x.dispatcher.Relayout(x.ctx)
		}
		logger.Info("Rendering surface attached", "session", x.id)
	})

	go func() {
		select {
		case <-remote.Done():
			if err := x.Detach(context.Background(), remote); err != nil && !errors.Is(err, ErrClosed) {
				logger.Warn("Failed to detach rendering surface", "session", x.id, "err", err)
			}
		case <-x.done:
		}
	}()
	return err
}

// Detach falls back to the headless scene if remote is still attached.
// Detaching twice is a no-op.
func (x *Explorer) Detach(ctx context.Context, remote *surface.Remote) error {
	return x.call(ctx, func() {
		x.remoteMu.Lock()
		if x.remote != remote {
			x.remoteMu.Unlock()
			return
		}
		unsubscribe := x.unsubscribe
		x.remote, x.unsubscribe = nil, nil
		x.remoteMu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}

		x.orch.SetSurface(x.scene)
		logger.Info("Rendering surface detached", "session", x.id)
	})
}

// HandleSurfaceEvent reacts to events reported by an attached browser. It
// never blocks the caller.
func (x *Explorer) HandleSurfaceEvent(ev surface.Event) {
	switch ev.Event {
	case "tap", "dbltap":
		go func() {
			if _, _, err := x.Tap(x.ctx, ev.Name, ev.Event == "dbltap"); err != nil && !errors.Is(err, ErrClosed) {
				logger.Warn("Failed to handle node tap", "session", x.id, "err", err)
			}
		}()
	case "zoom":
		x.touch()
	}
}

// Close stops the event loop and disconnects an attached browser.
func (x *Explorer) Close() {
	x.once.Do(func() {
		x.cancel()
		close(x.done)

		x.remoteMu.Lock()
		remote, unsubscribe := x.remote, x.unsubscribe
		x.remote, x.unsubscribe = nil, nil
		x.remoteMu.Unlock()
		if unsubscribe != nil {
			unsubscribe()
		}
		if remote != nil {
			_ = remote.Close()
		}
	})
}
