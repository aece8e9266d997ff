package handler

import (
	"crypto/subtle"
	"net/http"
	"strings"
	"time"

	"github.com/gin-gonic/gin"

	"arena/internal/auth"
)

type AuthHandler struct {
	Auth     auth.JWT
	AdminKey string
}

func (h *AuthHandler) Register(r *gin.Engine) {
	r.POST("/api/auth/token", h.token)
}

type tokenRequest struct {
	VoterID  string `json:"voter_id"`
	Role     string `json:"role"`
	AdminKey string `json:"admin_key"`
}

// token mints a bearer token for the given voter identity. Admin tokens
// additionally require the deployment's admin key.
func (h *AuthHandler) token(c *gin.Context) {
	var req tokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		Error(c, http.StatusBadRequest, "invalid body", nil)
		return
	}
	req.VoterID = strings.TrimSpace(req.VoterID)
	if req.VoterID == "" {
		Error(c, http.StatusBadRequest, "voter_id required", nil)
		return
	}
	role := strings.TrimSpace(req.Role)
	if role == "" {
		role = auth.RoleVoter
	}
	if role != auth.RoleVoter && role != auth.RoleAdmin {
		Error(c, http.StatusBadRequest, "role must be voter or admin", nil)
		return
	}
	if role == auth.RoleAdmin {
		if h.AdminKey == "" || subtle.ConstantTimeCompare([]byte(req.AdminKey), []byte(h.AdminKey)) != 1 {
			Error(c, http.StatusForbidden, "admin key mismatch", nil)
			return
		}
	}

	token, expiresAt, err := h.Auth.Sign(auth.Claims{VoterID: req.VoterID, Role: role})
	if err != nil {
		Error(c, http.StatusInternalServerError, "token signing failed", nil)
		return
	}
	Ok(c, gin.H{
		"token":      token,
		"expires_at": expiresAt.Format(time.RFC3339),
		"voter_id":   req.VoterID,
		"role":       role,
	}, nil)
}
