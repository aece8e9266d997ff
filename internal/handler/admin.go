package handler

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"arena/internal/auth"
	"arena/internal/engine"
)

type AdminHandler struct {
	Engine *engine.Engine
	Auth   auth.JWT
}

func (h *AdminHandler) Register(r *gin.Engine) {
	group := r.Group("/api/admin", auth.RequireAuth(h.Auth), auth.RequireAdmin())
	group.POST("/protocol-config", h.setConfig)
	group.POST("/sweep-due", h.sweepDue)
}

type protocolConfigRequest struct {
	FeeBps    int32  `json:"fee_bps"`
	Recipient string `json:"recipient"`
}

func (h *AdminHandler) setConfig(c *gin.Context) {
	var req protocolConfigRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	item, err := h.Engine.SetProtocolConfig(c.Request.Context(), req.FeeBps, strings.TrimSpace(req.Recipient))
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, item, nil)
}

// sweepDue sweeps every epoch whose claim window has closed. The cron job
// runs the same operation on a schedule; this endpoint exists for manual
// catch-up.
func (h *AdminHandler) sweepDue(c *gin.Context) {
	n, err := h.Engine.SweepDue(c.Request.Context())
	if err != nil {
		engineError(c, err)
		return
	}
	Ok(c, gin.H{"swept_epochs": n}, nil)
}
