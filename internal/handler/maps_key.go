package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"
	"go.uber.org/zap"

	"github.com/FooledKiwi/ridemap-api/internal/service"
)

// GetMapsKey handles GET /api/v1/maps/key
//
// Query params:
//   - region (optional) string: region code selecting a per-region key
//
// Response 200:
//
//	{"key":"AIza..."}
//
// Response 500: no key configured, or storage error.
func (h *Handler) GetMapsKey(c *gin.Context) {
	key, err := h.keys.Resolve(c.Request.Context(), c.Query("region"))
	if err != nil {
		if errors.Is(err, service.ErrNoKeyConfigured) {
			c.JSON(http.StatusInternalServerError, gin.H{"error": service.ErrNoKeyConfigured.Error()})
			return
		}
		h.logger.Error("resolve maps key", zap.String("region", c.Query("region")), zap.Error(err))
		c.JSON(http.StatusInternalServerError, gin.H{"error": "failed to resolve maps key"})
		return
	}
	c.JSON(http.StatusOK, gin.H{"key": key})
}
