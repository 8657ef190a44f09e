package routes

import (
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lineage/internal/server/middleware"
	"github.com/OFFIS-RIT/lineage/pkg/kb"
)

// RemoveRelationshipHandler retracts a parent relationship
func RemoveRelationshipHandler(c echo.Context) error {
	type removeRelationshipBody struct {
		Parent string `json:"parent" query:"parent"`
		Child  string `json:"child" query:"child"`
	}

	data := new(removeRelationshipBody)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	x := c.(*middleware.AppContext).Session
	out, err := x.RemoveRelationship(c.Request().Context(), kb.Relationship{
		Parent: data.Parent,
		Child:  data.Child,
	})
	if err != nil {
		return relationshipError(c, err)
	}
	return c.JSON(http.StatusOK, out)
}
