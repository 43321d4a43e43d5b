package handlers

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

// VersionInfo contains build information.
type VersionInfo struct {
	Version   string `json:"version"`
	Commit    string `json:"commit,omitempty"`
	BuildDate string `json:"build_date,omitempty"`
}

// RegisterVersionRoute serves info at GET /version.
func RegisterVersionRoute(r *gin.Engine, info VersionInfo) {
	r.GET("/version", func(c *gin.Context) {
		c.JSON(http.StatusOK, info)
	})
}
