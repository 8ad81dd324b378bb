package main

import (
	"github.com/gin-gonic/gin"

	"incident-platform/internal/broadcast"
	"incident-platform/internal/oplog"
	"incident-platform/internal/publicapi"
	"incident-platform/internal/records"
	"incident-platform/internal/wizard"
)

// registerRoutes wires HTTP routes to handlers.
// Keep this file free of business logic. Handlers should delegate to internal modules.
func registerRoutes(r *gin.Engine, wz *wizard.Handlers, webhook *broadcast.WebhookHandler, rec *records.Store, ops *oplog.Store) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	// Reporter wizard. The first page doubles as the root.
	r.GET("/", wz.Start)
	r.GET("/Inform/Read_02_Event", wz.Start)
	r.POST("/Inform/Read_02_Event", wz.SubmitEvent)
	r.GET("/Inform/Read_03_Location", wz.ShowLocations)
	r.POST("/Inform/Read_03_Location", wz.SubmitLocation)
	r.GET("/Inform/Read_05_Room", wz.ShowRoom)
	r.POST("/Inform/Read_05_Room", wz.SubmitRoom)
	r.GET("/Inform/Read_06_Content", wz.ShowContent)
	r.POST("/Inform/Read_06_Content", wz.SubmitContent)
	r.GET("/Inform/Read_07_Check", wz.ShowCheck)
	r.POST("/Inform/Read_07_Check", wz.SubmitCheck)
	r.POST("/Inform/Read_08_Sending", wz.SubmitSend)
	r.GET("/Inform/Read_10_Sended", wz.ShowSended)

	// LINE platform callback (signature-checked inside the handler).
	r.POST("/callback", webhook.Handle)

	// Read-only public API.
	api := publicapi.NewHandlers(rec, ops)
	r.GET("/api/stats", api.GetStats)
	r.GET("/api/cases", api.ListCases)
	r.GET("/api/cases/:id", api.GetCase)
	r.GET("/api/logs", api.GetLogs)
}
