package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lineage/internal/server/middleware"
	"github.com/OFFIS-RIT/lineage/internal/surface"
	"github.com/OFFIS-RIT/lineage/pkg/session"
)

func GetSessionHandler(c echo.Context) error {
	x := c.(*middleware.AppContext).Session
	status, err := x.Status(c.Request().Context())
	if err != nil {
		return sessionError(c, err)
	}
	return c.JSON(http.StatusOK, status)
}

// GetSessionGraphHandler returns the elements, layout and viewport the
// session currently shows
func GetSessionGraphHandler(c echo.Context) error {
	type getGraphResponse struct {
		Graph surface.SceneSnapshot `json:"graph"`
	}

	x := c.(*middleware.AppContext).Session
	return c.JSON(http.StatusOK, getGraphResponse{Graph: x.Scene().Snapshot()})
}

// GetSessionMessagesHandler returns the transcript entries after since
func GetSessionMessagesHandler(c echo.Context) error {
	type getMessagesParams struct {
		Since uint64 `query:"since"`
	}

	type getMessagesResponse struct {
		Messages []session.Entry `json:"messages"`
	}

	params := new(getMessagesParams)
	if err := c.Bind(params); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request params"})
	}

	x := c.(*middleware.AppContext).Session
	return c.JSON(http.StatusOK, getMessagesResponse{Messages: x.Transcript().Since(params.Since)})
}
