package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/suPer8Hu/ai-podcaster/internal/common"
)

// ListEvents returns status events after ?since= (a sequence number).
func (h *Handler) ListEvents(c *gin.Context) {
	since, err := strconv.ParseInt(c.DefaultQuery("since", "0"), 10, 64)
	if err != nil || since < 0 {
		common.Fail(c, http.StatusBadRequest, 10004, "invalid since")
		return
	}
	common.OK(c, gin.H{"events": h.Events.Since(since)})
}
