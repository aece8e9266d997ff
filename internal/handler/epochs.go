package handler

import (
	"encoding/json"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"arena/internal/auth"
	"arena/internal/cache"
	"arena/internal/engine"
)

type EpochHandler struct {
	Engine   *engine.Engine
	Cache    *cache.RedisStore
	QuoteTTL time.Duration
	Auth     auth.JWT
}

func (h *EpochHandler) Register(r *gin.Engine) {
	group := r.Group("/api/epochs")
	group.GET("/current", h.current)
	group.GET("/:index", h.get)
	group.GET("/:index/standings", h.standings)
	group.GET("/:index/winners", h.winners)
	group.POST("/:index/finalize", auth.RequireAuth(h.Auth), auth.RequireAdmin(), h.finalize)
	group.GET("/:index/voters/me", auth.RequireAuth(h.Auth), h.voterSummary)
}

func (h *EpochHandler) current(c *gin.Context) {
	info, err := h.Engine.CurrentEpoch(c.Request.Context())
	if err != nil {
		engineError(c, err)
		return
	}
	Ok(c, info, nil)
}

func (h *EpochHandler) get(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	info, err := h.Engine.EpochInfo(c.Request.Context(), index)
	if err != nil {
		engineError(c, err)
		return
	}
	Ok(c, info, nil)
}

func (h *EpochHandler) standings(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	if h.Cache != nil {
		if b, hit, err := h.Cache.Get(c.Request.Context(), cache.StandingsKey(index)); err == nil && hit {
			var rows []engine.CandidateStanding
			if json.Unmarshal(b, &rows) == nil {
				Ok(c, rows, map[string]any{"cached": true})
				return
			}
		}
	}
	rows, err := h.Engine.Standings(c.Request.Context(), index)
	if err != nil {
		engineError(c, err)
		return
	}
	if h.Cache != nil {
		if b, err := json.Marshal(rows); err == nil {
			_ = h.Cache.Set(c.Request.Context(), cache.StandingsKey(index), b, h.QuoteTTL)
		}
	}
	Ok(c, rows, nil)
}

func (h *EpochHandler) winners(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	rows, err := h.Engine.WinnerTiers(c.Request.Context(), index)
	if err != nil {
		engineError(c, err)
		return
	}
	Ok(c, rows, nil)
}

func (h *EpochHandler) finalize(c *gin.Context) {
	index, ok := indexParam(c)
	if !ok {
		return
	}
	if err := h.Engine.Finalize(c.Request.Context(), index); err != nil {
		engineError(c, err)
		return
	}
	info, err := h.Engine.EpochInfo(c.Request.Context(), index)
	if err != nil {
		engineError(c, err)
		return
	}
	Ok(c, info, nil)
}

func (h *EpochHandler) voterSummary(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "missing claims", nil)
		return
	}
	index, okIdx := indexParam(c)
	if !okIdx {
		return
	}
	summary, err := h.Engine.VoterSummary(c.Request.Context(), index, claims.VoterID)
	if err != nil {
		engineError(c, err)
		return
	}
	Ok(c, summary, nil)
}

func indexParam(c *gin.Context) (uint64, bool) {
	raw := strings.TrimSpace(c.Param("index"))
	index, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "epoch index must be a non-negative integer", nil)
		return 0, false
	}
	return index, true
}
