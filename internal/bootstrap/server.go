package bootstrap

import (
	"fmt"
	"net/http"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	app "github.com/mohammadpnp/archive-migration/internal/application/migration"
	httpecho "github.com/mohammadpnp/archive-migration/internal/interfaces/http/echo"
)

func NewHTTPServer(a *App, recovery *app.RecoveryService) *echo.Echo {
	server := echo.New()
	server.HideBanner = true
	server.HidePort = true

	server.Use(middleware.Recover())
	server.Use(middleware.RequestID())
	server.Use(middleware.BodyLimit(fmt.Sprintf("%dM", a.Config.UploadMaxBytes/(1024*1024))))
	server.Use(httpecho.RequestLogger(a.Log))

	startMigration := app.NewStartMigration(a.Files, a.Parser, a.Jobs, a.Log, app.StartMigrationConfig{})
	getJob := app.NewGetJob(a.Jobs)
	cancelJob := app.NewCancelJob(a.Jobs, a.Sheets, a.Log)
	migrations := httpecho.NewMigrationHandler(startMigration, getJob, cancelJob, a.Config.UploadTimeout)

	progress := app.NewProgressService(a.Jobs, a.Sheets, app.ProgressConfig{StaleThreshold: a.Config.StaleThreshold})
	errors := app.NewErrorService(a.Jobs, a.Sheets, a.Errors)
	queries := httpecho.NewQueryHandler(progress, errors, a.Config.StreamInterval)

	httpecho.RegisterRoutes(server, migrations, queries, httpecho.NewRecoveryHandler(recovery))

	server.GET("/healthz", func(c echo.Context) error {
		return c.JSON(http.StatusOK, map[string]string{"status": "ok"})
	})

	return server
}
