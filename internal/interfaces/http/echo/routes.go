package echo

import e "github.com/labstack/echo/v4"

func RegisterRoutes(server *e.Echo, migrations *MigrationHandler, queries *QueryHandler, recovery *RecoveryHandler) {
	if server.Validator == nil {
		server.Validator = NewValidator()
	}

	api := server.Group("/api/v1/migration")

	api.POST("/upload", migrations.Upload)
	api.GET("/jobs/:jobId", migrations.GetJob)
	api.POST("/jobs/:jobId/cancel", migrations.CancelJob)

	api.GET("/jobs/:jobId/progress", queries.JobProgress)
	api.GET("/jobs/:jobId/progress/stream", queries.StreamProgress)
	api.GET("/jobs/:jobId/errors", queries.JobErrors)
	api.GET("/sheets/:sheetId/progress", queries.SheetProgress)
	api.GET("/sheets/:sheetId/errors", queries.SheetErrors)

	api.GET("/sheets/stuck", recovery.ListStuck)
	api.POST("/sheets/:sheetId/recover", recovery.RecoverSheet)
	api.POST("/jobs/:jobId/recover", recovery.RecoverJob)
}
