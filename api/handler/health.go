package handler

import (
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/charitybot/models"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Health returns a handler for GET /api/v1/health.
//
// Status degrades when more than 80% of maxWorkers sessions are busy.
func Health(rs *Runs, d Dispatcher, maxWorkers int, startTime time.Time) gin.HandlerFunc {
	return func(c *gin.Context) {
		pool := models.WorkerPool{
			ActiveRuns:    rs.Active(),
			ActiveWorkers: d.ActiveWorkers(),
			MaxWorkers:    maxWorkers,
		}

		status := "healthy"
		if pool.MaxWorkers > 0 && pool.ActiveWorkers > int(float64(pool.MaxWorkers)*0.8) {
			status = "degraded"
		}

		c.JSON(http.StatusOK, models.HealthResponse{
			Status:     status,
			Uptime:     time.Since(startTime).Round(time.Second).String(),
			WorkerPool: pool,
			Version:    Version,
		})
	}
}
