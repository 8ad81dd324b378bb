package main

import (
	"github.com/gin-gonic/gin"

	"incident-platform/internal/adminapi"
	"incident-platform/internal/rbac"
)

// registerRoutes wires the staff interface. Browsing requires any staff role;
// destructive operations and outbound sends are admin-only.
func registerRoutes(r *gin.Engine, h *adminapi.Handlers, authMW gin.HandlerFunc) {
	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(200, gin.H{"status": "ok"})
	})

	r.POST("/admin/login", h.Login)

	admin := r.Group("/admin")
	admin.Use(authMW)
	{
		view := rbac.RequireAnyRole(rbac.RoleViewer)
		mutate := rbac.RequireAnyRole(rbac.RoleAdmin)

		admin.GET("/records", view, h.ListRecords)
		admin.GET("/records/:id", view, h.GetRecord)
		admin.POST("/records/export", view, h.ExportRecords)
		admin.POST("/records/clear", mutate, h.ClearRecords)
		admin.GET("/stats", view, h.GetStats)

		admin.GET("/logs/files", view, h.ListLogFiles)
		admin.POST("/logs", view, h.FilterLogs)
		admin.POST("/logs/export", view, h.ExportLogs)
		admin.POST("/logs/clear", mutate, h.ClearLogs)

		admin.POST("/test/line", mutate, h.TestLine)
		admin.POST("/test/discord", mutate, h.TestDiscord)

		admin.POST("/announcement", mutate, h.PublishAnnouncement)

		admin.GET("/broadcast/control", view, h.GetBroadcastControl)
		admin.POST("/broadcast/control", mutate, h.SetBroadcastControl)
	}
}
