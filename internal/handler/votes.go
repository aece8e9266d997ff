package handler

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/shopspring/decimal"

	"arena/internal/auth"
	"arena/internal/cache"
	"arena/internal/candidate"
	"arena/internal/engine"
)

type VoteHandler struct {
	Engine   *engine.Engine
	Cache    *cache.RedisStore
	QuoteTTL time.Duration
	Auth     auth.JWT
}

func (h *VoteHandler) Register(r *gin.Engine) {
	r.GET("/api/candidates/resolve", h.resolve)
	r.GET("/api/candidates/:id/quote", h.quote)
	r.POST("/api/votes", auth.RequireAuth(h.Auth), h.vote)
}

type voteRequest struct {
	CandidateURL string `json:"candidate_url"`
	Payment      string `json:"payment"`
}

func (h *VoteHandler) vote(c *gin.Context) {
	claims, ok := auth.ClaimsFrom(c)
	if !ok {
		Error(c, http.StatusUnauthorized, "missing claims", nil)
		return
	}
	var req voteRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	payment, err := decimal.NewFromString(strings.TrimSpace(req.Payment))
	if err != nil {
		Error(c, http.StatusBadRequest, "payment must be a decimal string", nil)
		return
	}

	receipt, err := h.Engine.Vote(c.Request.Context(), claims.VoterID, req.CandidateURL, payment)
	if err != nil {
		engineError(c, err)
		return
	}
	if h.Cache != nil {
		// The cached quote is stale the moment a vote lands.
		_ = h.Cache.Delete(c.Request.Context(), cache.QuoteKey(receipt.EpochIndex, receipt.CandidateID))
		_ = h.Cache.Delete(c.Request.Context(), cache.StandingsKey(receipt.EpochIndex))
	}
	Ok(c, receipt, nil)
}

func (h *VoteHandler) quote(c *gin.Context) {
	id := strings.TrimSpace(c.Param("id"))
	if !candidate.ValidID(id) {
		Error(c, http.StatusBadRequest, "invalid candidate id", nil)
		return
	}
	index, ok := epochParam(c, h.Engine)
	if !ok {
		return
	}

	if h.Cache != nil {
		if b, hit, err := h.Cache.Get(c.Request.Context(), cache.QuoteKey(index, id)); err == nil && hit {
			Ok(c, gin.H{"epoch_index": index, "candidate_id": id, "price": string(b)}, map[string]any{"cached": true})
			return
		}
	}

	price, err := h.Engine.Quote(c.Request.Context(), index, id)
	if err != nil {
		engineError(c, err)
		return
	}
	if h.Cache != nil {
		_ = h.Cache.Set(c.Request.Context(), cache.QuoteKey(index, id), []byte(price.String()), h.QuoteTTL)
	}
	Ok(c, gin.H{"epoch_index": index, "candidate_id": id, "price": price.String()}, nil)
}

func (h *VoteHandler) resolve(c *gin.Context) {
	raw := strings.TrimSpace(c.Query("url"))
	canonical, err := candidate.Normalize(raw)
	if err != nil {
		Error(c, http.StatusBadRequest, err.Error(), nil)
		return
	}
	Ok(c, gin.H{"canonical_url": canonical, "candidate_id": candidate.ID(canonical)}, nil)
}

// epochParam reads the optional epoch query parameter, defaulting to the
// epoch containing now.
func epochParam(c *gin.Context, e *engine.Engine) (uint64, bool) {
	raw := strings.TrimSpace(c.Query("epoch"))
	if raw == "" {
		return e.Calculator().Index(time.Now().UTC()), true
	}
	index, err := strconv.ParseUint(raw, 10, 64)
	if err != nil {
		Error(c, http.StatusBadRequest, "epoch must be a non-negative integer", nil)
		return 0, false
	}
	return index, true
}
