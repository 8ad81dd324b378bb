package oplog

import (
	"github.com/gin-gonic/gin"

	"incident-platform/internal/clientinfo"
)

// Middleware records every handled request in the operational log,
// independent of the wizard flow. It runs after the handler so the final
// status code is known.
func Middleware(store *Store) gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		who := clientinfo.FromRequest(c.Request)
		path := c.FullPath()
		if path == "" {
			path = c.Request.URL.Path
		}
		store.Request(c.Request.Method, path, c.Writer.Status(), who)
	}
}
