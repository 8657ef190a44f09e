package explorer

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

	"github.com/OFFIS-RIT/lineage/internal/surface"
	"github.com/OFFIS-RIT/lineage/pkg/session"
)

// wsBrowser acknowledges every command and records pushed messages.
type wsBrowser struct {
	conn    *websocket.Conn
	writeMu sync.Mutex

	mu       sync.Mutex
	ops      []string
	messages []session.Entry
}

func (b *wsBrowser) send(v any) error {
	b.writeMu.Lock()
	defer b.writeMu.Unlock()
	return b.conn.WriteJSON(v)
}

func (b *wsBrowser) run() {
	for {
		var frame struct {
			surface.Command
			Event string          `json:"event"`
			Data  json.RawMessage `json:"data"`
		}
		if err := b.conn.ReadJSON(&frame); err != nil {
			return
		}
		if frame.Event == "message" {
			var e session.Entry
			if json.Unmarshal(frame.Data, &e) == nil {
				b.mu.Lock()
				b.messages = append(b.messages, e)
				b.mu.Unlock()
			}
			continue
		}

		b.mu.Lock()
		b.ops = append(b.ops, frame.Op)
		b.mu.Unlock()
		reply := map[string]any{"ack": frame.ID, "ok": true}
		if frame.Op == "zoom" {
			reply["zoom"] = frame.Zoom
		}
		if err := b.send(reply); err != nil {
			return
		}
	}
}

func (b *wsBrowser) commands() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append([]string(nil), b.ops...)
}

func (b *wsBrowser) pushed() []string {
	b.mu.Lock()
	defer b.mu.Unlock()
	out := make([]string, 0, len(b.messages))
	for _, e := range b.messages {
		out = append(out, e.Text)
	}
	return out
}

// attachBrowser serves x's surface socket the way the HTTP route does and
// connects a scripted browser to it.
func attachBrowser(t *testing.T, x *Explorer) *wsBrowser {
	t.Helper()

	upgrader := websocket.Upgrader{}
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		conn, err := upgrader.Upgrade(w, r, nil)
		if err != nil {
			t.Errorf("upgrade: %v", err)
			return
		}
		remote := surface.NewRemote(surface.NewRemoteParams{Conn: conn, OnEvent: x.HandleSurfaceEvent})
		served := make(chan error, 1)
		go func() { served <- remote.Serve(context.Background()) }()

		select {
		case <-remote.Ready():
		case <-served:
			return
		}
		if err := x.Attach(context.Background(), remote); err != nil {
			t.Errorf("attach: %v", err)
		}
		<-served
	}))
	t.Cleanup(srv.Close)

	conn, _, err := websocket.DefaultDialer.Dial("ws"+strings.TrimPrefix(srv.URL, "http"), nil)
	require.NoError(t, err)
	t.Cleanup(func() { conn.Close() })

	b := &wsBrowser{conn: conn}
	require.NoError(t, b.send(surface.Event{Event: "hello", Layouts: []string{"dagre", "breadthfirst", "grid"}, Zoom: 1}))
	go b.run()
	return b
}

func remoteAttached(x *Explorer) bool {
	st, err := x.Status(context.Background())
	return err == nil && st.RemoteAttached
}

func TestBrowserAttachTapDetach(t *testing.T) {
	svc := &fakeService{}
	x := newExplorer(t, svc)

	ch, err := x.Submit(context.Background(), "Visualize Kevin's family tree")
	require.NoError(t, err)
	await(t, ch)
	revision := x.Scene().Snapshot().Revision

	b := attachBrowser(t, x)

	require.Eventually(t, func() bool { return remoteAttached(x) }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool {
		ops := b.commands()
		return len(ops) >= 2 && ops[0] == "replace" && ops[1] == "layout"
	}, 2*time.Second, 10*time.Millisecond)
	assert.Greater(t, x.Scene().Snapshot().Revision, revision, "the scene mirrors the browser")

	require.NoError(t, b.send(surface.Event{Event: "tap", Name: "Charles"}))

	require.Eventually(t, func() bool { return len(svc.seen()) == 2 }, 2*time.Second, 10*time.Millisecond)
	require.Eventually(t, func() bool { return !x.Busy() }, 2*time.Second, 10*time.Millisecond)
	assert.Equal(t, []string{"Visualize Kevin's family tree", "Visualize Charles's family tree"}, svc.seen())
	assert.Eventually(t, func() bool {
		for _, text := range b.pushed() {
			if text == "Exploring Charles's complete family tree..." {
				return true
			}
		}
		return false
	}, 2*time.Second, 10*time.Millisecond)

	require.NoError(t, b.conn.Close())
	require.Eventually(t, func() bool { return !remoteAttached(x) }, 2*time.Second, 10*time.Millisecond)

	sent := len(b.commands())
	revision = x.Scene().Snapshot().Revision
	report, err := x.Relayout(context.Background())
	require.NoError(t, err)
	assert.True(t, report.Rendered)
	assert.Greater(t, x.Scene().Snapshot().Revision, revision)
	assert.Len(t, b.commands(), sent, "nothing reaches the closed browser")
	assert.Len(t, svc.seen(), 2)
}
