package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lineage/internal/explorer"
	"github.com/OFFIS-RIT/lineage/internal/server/middleware"
	"github.com/OFFIS-RIT/lineage/pkg/logger"
	"github.com/OFFIS-RIT/lineage/pkg/query"
)

// CreateSessionHandler starts a new exploration session for the user
func CreateSessionHandler(c echo.Context) error {
	type createSessionResponse struct {
		ID      string `json:"id"`
		Message string `json:"message"`
	}

	ac := c.(*middleware.AppContext)
	x, err := ac.App.Registry.Create(ac.User.UserID)
	if err != nil {
		logger.Error("Failed to create session", "err", err)
		return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
	}

	msg := ""
	if last, ok := x.Transcript().Last(); ok {
		msg = last.Text
	}
	return c.JSON(http.StatusCreated, createSessionResponse{ID: x.ID(), Message: msg})
}

// QuerySessionHandler dispatches a chat query and waits for its report
func QuerySessionHandler(c echo.Context) error {
	type querySessionBody struct {
		Query string `json:"query" validate:"required,max=1000"`
	}

	data := new(querySessionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	x := c.(*middleware.AppContext).Session
	ctx := c.Request().Context()

	ch, err := x.Submit(ctx, data.Query)
	switch {
	case errors.Is(err, explorer.ErrBusy):
		return c.JSON(http.StatusConflict, map[string]string{"error": "A query is already in progress"})
	case errors.Is(err, explorer.ErrEmptyQuery):
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Query must not be empty"})
	case err != nil:
		return sessionError(c, err)
	}

	return awaitReport(c, ch)
}

// TapSessionHandler handles a tap or double tap on a node
func TapSessionHandler(c echo.Context) error {
	type tapSessionBody struct {
		Name   string `json:"name" validate:"required,max=100"`
		Double bool   `json:"double"`
	}

	data := new(tapSessionBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	x := c.(*middleware.AppContext).Session
	ch, ok, err := x.Tap(c.Request().Context(), data.Name, data.Double)
	if err != nil {
		return sessionError(c, err)
	}
	if !ok {
		return c.JSON(http.StatusOK, map[string]string{"message": "Already showing " + data.Name})
	}

	return awaitReport(c, ch)
}

// RelayoutSessionHandler redraws the current tree
func RelayoutSessionHandler(c echo.Context) error {
	x := c.(*middleware.AppContext).Session
	report, err := x.Relayout(c.Request().Context())
	if err != nil {
		return sessionError(c, err)
	}
	return c.JSON(http.StatusOK, report)
}

// ViewportSessionHandler zooms, fits, centers or pans the view
func ViewportSessionHandler(c echo.Context) error {
	type viewportBody struct {
		Op string  `json:"op" validate:"required,oneof=zoom_in zoom_out fit center pan"`
		DX float64 `json:"dx"`
		DY float64 `json:"dy"`
	}

	type viewportResponse struct {
		Zoom int `json:"zoom"`
	}

	data := new(viewportBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}
	if err := c.Validate(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	x := c.(*middleware.AppContext).Session
	zoom, err := x.Viewport(c.Request().Context(), data.Op, data.DX, data.DY)
	if err != nil {
		return sessionError(c, err)
	}
	return c.JSON(http.StatusOK, viewportResponse{Zoom: zoom})
}

func awaitReport(c echo.Context, ch <-chan query.Report) error {
	select {
	case report := <-ch:
		return c.JSON(http.StatusOK, report)
	case <-c.Request().Context().Done():
		return c.JSON(http.StatusRequestTimeout, map[string]string{"error": "Request cancelled"})
	}
}

func sessionError(c echo.Context, err error) error {
	if errors.Is(err, explorer.ErrClosed) {
		return c.JSON(http.StatusGone, map[string]string{"error": "Session closed"})
	}
	logger.Error("Session request failed", "err", err)
	return c.JSON(http.StatusInternalServerError, map[string]string{"error": "Internal server error"})
}
