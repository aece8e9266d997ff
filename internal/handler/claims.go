package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"

	"arena/internal/auth"
	"arena/internal/engine"
)

type ClaimHandler struct {
	Engine *engine.Engine
	Auth   auth.JWT
}

func (h *ClaimHandler) Register(r *gin.Engine) {
	group := r.Group("/api/epochs")
	group.GET("/:index/entitlement", auth.RequireAuth(h.Auth), h.entitlement)
	group.POST("/:index/claims", auth.RequireAuth(h.Auth), h.claim)
	group.POST("/:index/sweep", auth.RequireAuth(h.Auth), auth.RequireAdmin(), h.sweep)
}

func (h *ClaimHandler) entitlement(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "missing claims", nil)
		return
	}
	index, okIdx := indexParam(c)
	if !okIdx {
		return
	}
	status, err := h.Engine.EntitlementStatus(c.Request.Context(), index, claims.VoterID)
	if err != nil {
		engineError(c, err)
		return
	}
	Ok(c, status, nil)
}

func (h *ClaimHandler) claim(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "missing claims", nil)
		return
	}
	index, okIdx := indexParam(c)
	if !okIdx {
		return
	}
	receipt, err := h.Engine.Claim(c.Request.Context(), index, claims.VoterID)
	if err != nil {
		engineError(c, err)
		return
	}
	Ok(c, receipt, nil)
}

func (h *ClaimHandler) sweep(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	result, err := h.Engine.Sweep(c.Request.Context(), index)
	if err != nil {
		engineError(c, err)
		return
	}
	Ok(c, result, nil)
}
