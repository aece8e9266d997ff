package handler

import (
	"errors"
	"net/http"

	"github.com/gin-gonic/gin"

	"arena/internal/engine"
)

type apiResponse struct {
	Code    int            `json:"code"`
	Message string         `json:"message"`
	Data    any            `json:"data,omitempty"`
	Meta    map[string]any `json:"meta,omitempty"`
}

func Ok(c *gin.Context, data any, meta map[string]any) {
	c.JSON(http.StatusOK, apiResponse{
		Code:    0,
		Message: "ok",
		Data:    data,
		Meta:    meta,
	})
}

func Error(c *gin.Context, status int, message string, meta map[string]any) {
	c.JSON(status, apiResponse{
		Code:    status,
		Message: message,
		Meta:    meta,
	})
}

// engineError maps the engine's sentinel errors onto HTTP statuses with a
// stable machine-readable reason in meta.
func engineError(c *gin.Context, err error) {
	status := http.StatusInternalServerError
	reason := "internal"
	switch {
	case errors.Is(err, engine.ErrInvalidVoter), errors.Is(err, engine.ErrInvalidCandidate):
		status, reason = http.StatusBadRequest, "invalid_input"
	case errors.Is(err, engine.ErrPriceMismatch):
		status, reason = http.StatusConflict, "price_mismatch"
	case errors.Is(err, engine.ErrEpochNotEnded):
		status, reason = http.StatusConflict, "epoch_not_ended"
	case errors.Is(err, engine.ErrAlreadyFinalized):
		status, reason = http.StatusConflict, "already_finalized"
	case errors.Is(err, engine.ErrEpochNotFinalized):
		status, reason = http.StatusConflict, "epoch_not_finalized"
	case errors.Is(err, engine.ErrNoEntitlement):
		status, reason = http.StatusNotFound, "no_entitlement"
	case errors.Is(err, engine.ErrAlreadyClaimed):
		status, reason = http.StatusConflict, "already_claimed"
	case errors.Is(err, engine.ErrClaimExpired):
		status, reason = http.StatusGone, "claim_expired"
	case errors.Is(err, engine.ErrDeadlineNotReached):
		status, reason = http.StatusConflict, "deadline_not_reached"
	}
	msg := err.Error()
	if status == http.StatusInternalServerError {
		msg = "internal error"
	}
	Error(c, status, msg, map[string]any{"reason": reason})
}
