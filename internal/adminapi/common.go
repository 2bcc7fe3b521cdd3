// Package adminapi contains the dashboard REST handlers.
package adminapi

import (
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/spf13/cast"
	"gorm.io/gorm"

	"github.com/coolnoor19/wadesk/internal/app"
	"github.com/coolnoor19/wadesk/internal/engine"
	"github.com/coolnoor19/wadesk/internal/session"
)

// HistoryFetcher pulls the session-level history used by the chat list.
type HistoryFetcher = engine.HistoryFetcher

var (
	appCtx  app.AppContext
	machine *session.Machine
	recon   *engine.Engine
	fetcher HistoryFetcher
)

// Setup binds the handlers to their collaborators and registers all routes.
func Setup(a app.AppContext, m *session.Machine, e *engine.Engine, f HistoryFetcher) {
	appCtx = a
	machine = m
	recon = e
	fetcher = f

	registerSessionRoutes()
	registerChatRoutes()
	registerDeviceRoutes()
}

// GetDB returns the shared gorm handle.
func GetDB(c echo.Context) *gorm.DB {
	return appCtx.DB()
}

func ok(c echo.Context, data interface{}) error {
	return c.JSON(http.StatusOK, map[string]interface{}{
		"code": "OK",
		"data": data,
	})
}

func fail(c echo.Context, status int, code, msg string, detail interface{}) error {
	return c.JSON(status, map[string]interface{}{
		"code":   code,
		"msg":    msg,
		"detail": detail,
	})
}

func paged(c echo.Context, items interface{}, total int64, page, pageSize int) error {
	return ok(c, map[string]interface{}{
		"items":     items,
		"total":     total,
		"page":      page,
		"page_size": pageSize,
	})
}

func parsePagination(c echo.Context) (page, pageSize int) {
	page = cast.ToInt(c.QueryParam("page"))
	if page <= 0 {
		page = 1
	}
	pageSize = cast.ToInt(c.QueryParam("page_size"))
	if pageSize <= 0 || pageSize > 500 {
		pageSize = int(appCtx.GetSettingsInt64Value("chat", "PageSize"))
		if pageSize <= 0 {
			pageSize = 50
		}
	}
	return page, pageSize
}

func parseIDParam(c echo.Context, name string) (int64, error) {
	return cast.ToInt64E(c.Param(name))
}
