package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lineage/internal/server/middleware"
)

func DeleteSessionHandler(c echo.Context) error {
	ac := c.(*middleware.AppContext)
	if err := ac.App.Registry.Close(ac.Session.ID()); err != nil {
		return c.JSON(http.StatusNotFound, map[string]string{"error": "Session not found"})
	}
	return c.JSON(http.StatusOK, map[string]string{"message": "Session closed"})
}
