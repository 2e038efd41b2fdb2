package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
	"github.com/use-agent/charitybot/cache"
	"github.com/use-agent/charitybot/models"
	"github.com/use-agent/charitybot/source"
)

// GetRecord returns a handler for GET /api/v1/records/:abn, answering from
// the latest completed extraction of that ABN.
func GetRecord(cc *cache.Cache) gin.HandlerFunc {
	return func(c *gin.Context) {
		abn := source.Normalize(c.Param("abn"))
		rec, storedAt, ok := cc.Get(abn)
		if !ok {
			abortError(c, http.StatusNotFound, models.ErrCodeNotFound, "no record for ABN "+abn)
			return
		}
		c.JSON(http.StatusOK, models.RecordResponse{Record: rec, CachedAt: storedAt.Unix()})
	}
}
