package routes

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

// SetupPublicRoutes - служебные маршруты вне /api/v1
func SetupPublicRoutes(r *gin.Engine, db *gorm.DB) {
	r.GET("/health", func(c *gin.Context) {
		status := http.StatusOK
		dbState := "up"

		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(c.Request.Context())
		}
		if err != nil {
			status = http.StatusServiceUnavailable
			dbState = "down"
		}

		c.JSON(status, gin.H{
			"status":   http.StatusText(status),
			"database": dbState,
			"time":     time.Now().UTC(),
		})
	})
}
