package surface

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"github.com/gorilla/websocket"

	"github.com/OFFIS-RIT/lineage/pkg/common"
	"github.com/OFFIS-RIT/lineage/pkg/layout"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
)

const (
	writeWait  = 10 * time.Second
	outboxSize = 64
)

// ErrOutboxFull is returned by Push when the browser does not keep up.
var ErrOutboxFull = errors.New("surface outbox full")

// Command is sent to the browser. Every command is answered by an Ack with
// the same ID; layout commands are acknowledged once the layout stopped.
type Command struct {
	ID      uint64          `json:"id"`
	Op      string          `json:"op"`
	Nodes   []common.Node   `json:"nodes,omitempty"`
	Edges   []common.Edge   `json:"edges,omitempty"`
	Layout  string          `json:"layout,omitempty"`
	Options *layout.Options `json:"options,omitempty"`
	Padding int             `json:"padding,omitempty"`
	NodeID  string          `json:"node,omitempty"`
	Zoom    float64         `json:"zoom,omitempty"`
	DX      float64         `json:"dx,omitempty"`
	DY      float64         `json:"dy,omitempty"`
}

// Event is something the browser reports on its own.
//
//	{"event":"hello","layouts":["dagre","breadthfirst","grid"],"zoom":1}
//	{"event":"tap","name":"Alice"}
//	{"event":"dbltap","name":"Alice"}
//	{"event":"zoom","zoom":1.44}
type Event struct {
	Event   string   `json:"event"`
	Layouts []string `json:"layouts,omitempty"`
	Name    string   `json:"name,omitempty"`
	Zoom    float64  `json:"zoom,omitempty"`
}

// Push frames are sent without an ID and are never acknowledged.
//
//	{"event":"message","data":{"seq":4,"role":"bot","text":"...","at":"..."}}
type pushFrame struct {
	Event string `json:"event"`
	Data  any    `json:"data,omitempty"`
}

type inbound struct {
	Event
	Ack   *uint64 `json:"ack,omitempty"`
	OK    bool    `json:"ok"`
	Error string  `json:"error,omitempty"`
}

type ack struct {
	ok   bool
	err  string
	zoom float64
}

// Remote drives a cytoscape instance in a browser over a websocket.
//
// Serve must run for commands to be acknowledged. The engines the browser
// managed to load are announced in its hello event; Ready is closed once it
// arrived.
type Remote struct {
	conn    *websocket.Conn
	onEvent func(Event)

	writeMu sync.Mutex

	mu      sync.Mutex
	nextID  uint64
	pending map[uint64]chan ack
	engines map[string]bool
	zoom    float64

	outbox chan []byte

	ready     chan struct{}
	readyOnce sync.Once
	closed    chan struct{}
	closeOnce sync.Once
}

// NewRemoteParams configures a Remote. OnEvent receives tap, dbltap and
// zoom events and is called from the Serve goroutine.
type NewRemoteParams struct {
	Conn    *websocket.Conn
	OnEvent func(Event)
}

func NewRemote(params NewRemoteParams) *Remote {
	onEvent := params.OnEvent
	if onEvent == nil {
		onEvent = func(Event) {}
	}
	return &Remote{
		conn:    params.Conn,
		onEvent: onEvent,
		pending: make(map[uint64]chan ack),
		engines: make(map[string]bool),
		zoom:    1,
		outbox:  make(chan []byte, outboxSize),
		ready:   make(chan struct{}),
		closed:  make(chan struct{}),
	}
}

// Ready is closed once the browser said hello.
func (r *Remote) Ready() <-chan struct{} { return r.ready }

// Done is closed once the connection is gone.
func (r *Remote) Done() <-chan struct{} { return r.closed }

// Serve reads from the connection until it fails or ctx is done.
func (r *Remote) Serve(ctx context.Context) error {
	defer r.Close()

	go func() {
		select {
		case <-ctx.Done():
			r.Close()
		case <-r.closed:
		}
	}()
	go r.drain()

	for {
		var msg inbound
		if err := r.conn.ReadJSON(&msg); err != nil {
			if websocket.IsCloseError(err, websocket.CloseNormalClosure, websocket.CloseGoingAway) {
				return nil
			}
			select {
			case <-r.closed:
				return nil
			default:
			}
			return fmt.Errorf("read surface message: %w", err)
		}

		if msg.Ack != nil {
			r.resolve(*msg.Ack, ack{ok: msg.OK, err: msg.Error, zoom: msg.Zoom})
			continue
		}
		r.handleEvent(msg.Event)
	}
}

func (r *Remote) handleEvent(ev Event) {
	switch ev.Event {
	case "hello":
		r.mu.Lock()
		r.engines = make(map[string]bool, len(ev.Layouts))
		for _, l := range ev.Layouts {
			r.engines[l] = true
		}
		if ev.Zoom > 0 {
			r.zoom = ev.Zoom
		}
		r.mu.Unlock()
		r.readyOnce.Do(func() { close(r.ready) })
		logger.Debug("Rendering surface connected", "layouts", ev.Layouts)
	case "zoom":
		if ev.Zoom > 0 {
			r.mu.Lock()
			r.zoom = ev.Zoom
			r.mu.Unlock()
		}
		r.onEvent(ev)
	case "tap", "dbltap":
		r.onEvent(ev)
	default:
		logger.Debug("Ignoring unknown surface event", "event", ev.Event)
	}
}

func (r *Remote) resolve(id uint64, a ack) {
	r.mu.Lock()
	ch, ok := r.pending[id]
	delete(r.pending, id)
	if ok && a.ok && a.zoom > 0 {
		r.zoom = a.zoom
	}
	r.mu.Unlock()
	if ok {
		ch <- a
	}
}

// Close tears the connection down. Pending commands fail with
// layout.ErrSurfaceClosed.
func (r *Remote) Close() error {
	var err error
	r.closeOnce.Do(func() {
		close(r.closed)
		r.writeMu.Lock()
		_ = r.conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		r.writeMu.Unlock()
		err = r.conn.Close()
	})
	return err
}

func (r *Remote) call(ctx context.Context, cmd Command) (ack, error) {
	select {
	case <-r.closed:
		return ack{}, layout.ErrSurfaceClosed
	default:
	}

	ch := make(chan ack, 1)
	r.mu.Lock()
	r.nextID++
	cmd.ID = r.nextID
	r.pending[cmd.ID] = ch
	r.mu.Unlock()

	defer func() {
		r.mu.Lock()
		delete(r.pending, cmd.ID)
		r.mu.Unlock()
	}()

	if err := r.write(cmd); err != nil {
		return ack{}, err
	}

	select {
	case a := <-ch:
		if !a.ok {
			msg := a.err
			if msg == "" {
				msg = "rejected"
			}
			return a, fmt.Errorf("%s: %s", cmd.Op, msg)
		}
		return a, nil
	case <-r.closed:
		return ack{}, layout.ErrSurfaceClosed
	case <-ctx.Done():
		return ack{}, fmt.Errorf("%s: %w", cmd.Op, ctx.Err())
	}
}

func (r *Remote) write(cmd Command) error {
	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("encode %s command: %w", cmd.Op, err)
	}
	return r.writeFrame(cmd.Op, payload)
}

func (r *Remote) writeFrame(label string, payload []byte) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	_ = r.conn.SetWriteDeadline(time.Now().Add(writeWait))
	if err := r.conn.WriteMessage(websocket.TextMessage, payload); err != nil {
		if errors.Is(err, websocket.ErrCloseSent) {
			return layout.ErrSurfaceClosed
		}
		return fmt.Errorf("write %s: %w", label, err)
	}
	return nil
}

// Push queues an unacknowledged event frame for the browser. It never
// blocks; frames are written in order by the Serve goroutine's writer.
func (r *Remote) Push(event string, data any) error {
	select {
	case <-r.closed:
		return layout.ErrSurfaceClosed
	default:
	}

	payload, err := json.Marshal(pushFrame{Event: event, Data: data})
	if err != nil {
		return fmt.Errorf("encode %s event: %w", event, err)
	}
	select {
	case r.outbox <- payload:
		return nil
	default:
		return ErrOutboxFull
	}
}

func (r *Remote) drain() {
	for {
		select {
		case payload := <-r.outbox:
			if err := r.writeFrame("push", payload); err != nil {
				logger.Debug("Failed to push surface event", "err", err)
			}
		case <-r.closed:
			return
		}
	}
}

func (r *Remote) Available(engine string) bool {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.engines[engine]
}

func (r *Remote) Replace(ctx context.Context, nodes []common.Node, edges []common.Edge) error {
	_, err := r.call(ctx, Command{Op: "replace", Nodes: nodes, Edges: edges})
	return err
}

func (r *Remote) ApplyLayout(ctx context.Context, engine string, opts layout.Options) error {
	_, err := r.call(ctx, Command{Op: "layout", Layout: engine, Options: &opts})
	return err
}

func (r *Remote) Fit(ctx context.Context, padding int) error {
	_, err := r.call(ctx, Command{Op: "fit", Padding: padding})
	return err
}

func (r *Remote) Center(ctx context.Context) error {
	_, err := r.call(ctx, Command{Op: "center"})
	return err
}

func (r *Remote) Select(ctx context.Context, nodeID string) error {
	_, err := r.call(ctx, Command{Op: "select", NodeID: nodeID})
	return err
}

func (r *Remote) Zoom() float64 {
	r.mu.Lock()
	defer r.mu.Unlock()
	return r.zoom
}

func (r *Remote) SetZoom(ctx context.Context, level float64) error {
	a, err := r.call(ctx, Command{Op: "zoom", Zoom: level})
	if err == nil && a.zoom <= 0 {
		r.mu.Lock()
		r.zoom = level
		r.mu.Unlock()
	}
	return err
}

func (r *Remote) PanBy(ctx context.Context, dx, dy float64) error {
	_, err := r.call(ctx, Command{Op: "pan", DX: dx, DY: dy})
	return err
}
