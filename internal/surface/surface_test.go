package surface

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/OFFIS-RIT/lineage/pkg/common"
	"github.com/OFFIS-RIT/lineage/pkg/layout"
)

var testNodes = []common.Node{
	{ID: "C", Name: "C", Role: common.RoleCurrent},
	{ID: "A", Name: "A", Role: common.RoleAncestor, Level: -1},
}

var testEdges = []common.Edge{{ID: "A->C", Source: "A", Target: "C"}}

func TestSceneRecordsRender(t *testing.T) {
	s := NewScene()
	ctx := context.Background()

	require.NoError(t, s.Replace(ctx, testNodes, testEdges))
	require.NoError(t, s.ApplyLayout(ctx, "dagre", layout.Options{Name: "dagre", Fit: true, Padding: 50}))
	require.NoError(t, s.Select(ctx, "C"))
	require.NoError(t, s.SetZoom(ctx, 1.5))
	require.NoError(t, s.PanBy(ctx, 10, 20))

	snap := s.Snapshot()
	assert.Equal(t, uint64(1), snap.Revision)
	assert.Equal(t, "dagre", snap.Layout)
	assert.Equal(t, "C", snap.Selected)
	assert.Equal(t, 1.5, snap.Zoom)
	assert.Equal(t, Point{X: 10, Y: 20}, snap.Pan)
	assert.Equal(t, 50, snap.FitPadding)
	assert.Len(t, snap.Nodes, 2)

	require.NoError(t, s.Center(ctx))
	assert.Equal(t, Point{}, s.Snapshot().Pan)
}

func TestSceneReplaceClearsLayoutAndSelection(t *testing.T) {
	s := NewScene()
	ctx := context.Background()
	require.NoError(t, s.Replace(ctx, testNodes, testEdges))
	require.NoError(t, s.ApplyLayout(ctx, "grid", layout.Options{Name: "grid"}))
	require.NoError(t, s.Select(ctx, "A"))

	require.NoError(t, s.Replace(ctx, testNodes[:1], nil))

	snap := s.Snapshot()
	assert.Equal(t, uint64(2), snap.Revision)
	assert.Empty(t, snap.Layout)
	assert.Empty(t, snap.Selected)
	assert.Empty(t, snap.Edges)
}

func TestSceneEngines(t *testing.T) {
	s := NewScene("grid")
	assert.True(t, s.Available("grid"))
	assert.False(t, s.Available("dagre"))
	assert.ErrorIs(t, s.ApplyLayout(context.Background(), "dagre", layout.Options{}), layout.ErrStrategyUnavailable)
}

func TestSceneSnapshotIsACopy(t *testing.T) {
	s := NewScene()
	require.NoError(t, s.Replace(context.Background(), testNodes, testEdges))

	snap := s.Snapshot()
	snap.Nodes[0].Name = "changed"

	assert.Equal(t, "C", s.Snapshot().Nodes[0].Name)
}

func TestTeeMirrorsIntoShadow(t *testing.T) {
	primary := NewScene("breadthfirst", "grid")
	shadow := NewScene("grid")
	tee := NewTee(primary, shadow)
	ctx := context.Background()

	assert.True(t, tee.Available("breadthfirst"))
	require.NoError(t, tee.Replace(ctx, testNodes, testEdges))
	require.NoError(t, tee.ApplyLayout(ctx, "breadthfirst", layout.Options{Name: "breadthfirst"}))
	require.NoError(t, tee.SetZoom(ctx, 2))

	snap := shadow.Snapshot()
	assert.Len(t, snap.Nodes, 2)
	assert.Equal(t, "breadthfirst", snap.Layout, "shadow follows the primary even without the engine")
	assert.Equal(t, 2.0, snap.Zoom)
}

// browser is a scripted cytoscape stand-in on the client end of the socket.
type browser struct {
	t       *testing.T
	conn    *websocket.Conn
	mu      sync.Mutex
	ops     []Command
	pushes  []string
	failOps map[string]string
}

func (b *browser) run() {
	for {
		var frame struct {
			Command
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := b.conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Event != "" {
			b.mu.Lock()
			b.pushes = append(b.pushes, frame.Event+" "+string(frame.Data))
			b.mu.Unlock()
			continue
		}
		cmd := frame.Command
		b.mu.Lock()
		b.ops = append(b.ops, cmd)
		reason, fail := b.failOps[cmd.Op]
		b.mu.Unlock()

		reply := map[string]any{"ack": cmd.ID, "ok": !fail}
		if fail {
			reply["error"] = reason
		}
		if cmd.Op == "zoom" {
			reply["zoom"] = cmd.Zoom
		}
		if err := b.conn.WriteJSON(reply); err != nil {
			return
		}
	}
}

func (b *browser) pushed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.pushes...)
}

func (b *browser) commands() []Command {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]Command(nil), b.ops...)
}

func connect(t *testing.T, failOps map[string]string, onEvent func(Event)) (*Remote, *browser) {
	t.Helper()

	remoteCh := make(chan *Remote, 1)
	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		remote := NewRemote(NewRemoteParams{Conn: conn, OnEvent: onEvent})
		remoteCh <- remote
		_ = remote.Serve(context.Background())
	}))
	t.Cleanup(srv.Close)

	url := "ws" + strings.TrimPrefix(srv.URL, "http")
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	require.NoError(t, conn.WriteJSON(Event{Event: "hello", Layouts: []string{"breadthfirst", "grid"}, Zoom: 1}))

	remote := <-remoteCh
	select {
	case <-remote.Ready():
	case <-time.After(2 * time.Second):
		t.Fatal("remote never became ready")
	}

	b := &browser{t: t, conn: conn, failOps: failOps}
	go b.run()
	return remote, b
}

func TestRemoteRoundTrip(t *testing.T) {
	remote, b := connect(t, nil, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	assert.False(t, remote.Available("dagre"))
	assert.True(t, remote.Available("grid"))

	require.NoError(t, remote.Replace(ctx, testNodes, testEdges))
	require.NoError(t, remote.ApplyLayout(ctx, "grid", layout.Options{Name: "grid", Padding: 50}))
	require.NoError(t, remote.Select(ctx, "C"))
	require.NoError(t, remote.SetZoom(ctx, 1.2))
	assert.Equal(t, 1.2, remote.Zoom())

	cmds := b.commands()
	require.Len(t, cmds, 4)
	assert.Equal(t, "replace", cmds[0].Op)
	assert.Len(t, cmds[0].Nodes, 2)
	assert.Equal(t, "layout", cmds[1].Op)
	require.NotNil(t, cmds[1].Options)
	assert.Equal(t, 50, cmds[1].Options.Padding)
	assert.Equal(t, "C", cmds[2].NodeID)

	ids := map[uint64]bool{}
	for _, c := range cmds {
		assert.False(t, ids[c.ID], "command ids are unique")
		ids[c.ID] = true
	}
}

func TestRemoteRejectedCommand(t *testing.T) {
	remote, _ := connect(t, map[string]string{"layout": "dagre is not registered"}, nil)
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
	defer cancel()

	err := remote.ApplyLayout(ctx, "grid", layout.Options{})
	require.Error(t, err)
	assert.Contains(t, err.Error(), "dagre is not registered")
}

func TestRemoteForwardsEvents(t *testing.T) {
	events := make(chan Event, 4)
	remote, b := connect(t, nil, func(ev Event) { events <- ev })

	require.NoError(t, b.conn.WriteJSON(Event{Event: "tap", Name: "Alice"}))
	require.NoError(t, b.conn.WriteJSON(Event{Event: "zoom", Zoom: 0.5}))

	for _, want := range []string{"tap", "zoom"} {
		select {
		case ev := <-events:
			assert.Equal(t, want, ev.Event)
		case <-time.After(2 * time.Second):
			t.Fatalf("no %s event", want)
		}
	}
	assert.Equal(t, 0.5, remote.Zoom())
}

func TestRemoteClosedFailsPendingCommands(t *testing.T) {
	remote, _ := connect(t, nil, nil)
	require.NoError(t, remote.Close())

	select {
	case <-remote.Done():
	case <-time.After(time.Second):
		t.Fatal("remote not closed")
	}

	err := remote.Fit(context.Background(), 50)
	assert.ErrorIs(t, err, layout.ErrSurfaceClosed)
}

func TestRemotePushIsNotAcknowledged(t *testing.T) {
	remote, b := connect(t, nil, nil)

	require.NoError(t, remote.Push("message", map[string]string{"text": "hi"}))
	require.NoError(t, remote.Push("message", map[string]string{"text": "there"}))

	assert.Eventually(t, func() bool { return len(b.pushed()) == 2 }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{`message {"text":"hi"}`, `message {"text":"there"}`}, b.pushed())
	assert.Empty(t, b.commands())

	require.NoError(t, remote.Close())
	assert.ErrorIs(t, remote.Push("message", nil), layout.ErrSurfaceClosed)
}

func TestCommandEncoding(t *testing.T) {
	payload, err := json.Marshal(Command{ID: 3, Op: "fit", Padding: 60})
	require.NoError(t, err)
	assert.JSONEq(t, `{"id":3,"op":"fit","padding":60}`, string(payload))
}
