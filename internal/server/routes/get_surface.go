package routes

import (
	"context"
	"net/http"
	"time"

	"github.com/gorilla/websocket"
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lineage/internal/server/middleware"
	"github.com/OFFIS-RIT/lineage/internal/surface"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
)

// helloTimeout is how long a browser has to announce its layout engines.
const helloTimeout = 10 * time.Second

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin:     func(r *http.Request) bool { return true },
}

// SurfaceHandler upgrades to a websocket and makes the browser on the other
// end the rendering surface of the session until it disconnects.
func SurfaceHandler(c echo.Context) error {
	x := c.(*middleware.AppContext).Session

	conn, err := upgrader.Upgrade(c.Response(), c.Request(), nil)
	if err != nil {
		logger.Warn("Failed to upgrade surface connection", "session", x.ID(), "err", err)
		return nil
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	go func() {
		select {
		case <-x.Done():
			cancel()
		case <-ctx.Done():
		}
	}()

	remote := surface.NewRemote(surface.NewRemoteParams{
		Conn:    conn,
		OnEvent: x.HandleSurfaceEvent,
	})
	served := make(chan error, 1)
	go func() { served <- remote.Serve(ctx) }()

	select {
	case <-remote.Ready():
	case err := <-served:
		logger.Debug("Surface disconnected before hello", "session", x.ID(), "err", err)
		return nil
	case <-time.After(helloTimeout):
		logger.Warn("Surface did not say hello", "session", x.ID())
		_ = remote.Close()
		<-served
		return nil
	}

	if err := x.Attach(ctx, remote); err != nil {
		_ = remote.Close()
		<-served
		return nil
	}

	// The session detaches the remote on its own once the connection ends.
	if err := <-served; err != nil {
		logger.Debug("Surface connection ended", "session", x.ID(), "err", err)
	}
	return nil
}
