package middleware

import (
	"github.com/MicahParks/keyfunc/v3"
	"github.com/labstack/echo/v4"

	"github.com/OFFIS-RIT/lineage/internal/explorer"
)

type AppUser struct {
	UserID      string
	Role        string
	Permissions []string
}

// App holds what every request handler needs. Key is nil when tokens are
// not verified against a JWKS endpoint.
type App struct {
	Registry *explorer.Registry
	Key      *keyfunc.Keyfunc
	APIKey   string
}

type AppContext struct {
	echo.Context
	App     *App
	User    *AppUser
	Session *explorer.Explorer
}

func AppContextMiddleware(app *App) echo.MiddlewareFunc {
	return func(next echo.HandlerFunc) echo.HandlerFunc {
		return func(c echo.Context) error {
			cc := &AppContext{c, app, nil, nil}
			return next(cc)
		}
	}
}
