package routes

import (
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lineage/internal/server/middleware"
	"github.com/OFFIS-RIT/lineage/pkg/kb"
	"github.com/OFFIS-RIT/lineage/pkg/resolver"
)

// AddRelationshipHandler asserts a parent relationship in the knowledge base
func AddRelationshipHandler(c echo.Context) error {
	data := new(kb.Relationship)
	if err := c.Bind(data); err != nil {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": "Invalid request body"})
	}

	x := c.(*middleware.AppContext).Session
	out, err := x.AddRelationship(c.Request().Context(), *data)
	if err != nil {
		return relationshipError(c, err)
	}

	status := http.StatusCreated
	if out.Skipped {
		status = http.StatusOK
	}
	return c.JSON(status, out)
}

func relationshipError(c echo.Context, err error) error {
	if errors.Is(err, kb.ErrInvalidInput) {
		return c.JSON(http.StatusBadRequest, map[string]string{"error": err.Error()})
	}
	var apiErr *resolver.APIError
	if errors.As(err, &apiErr) {
		return c.JSON(http.StatusBadGateway, map[string]string{"error": apiErr.Message})
	}
	return c.JSON(http.StatusBadGateway, map[string]string{"error": err.Error()})
}
