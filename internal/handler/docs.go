package handler

import (
	"net/http"

	"github.com/gin-gonic/gin"
)

func RegisterDocs(r *gin.Engine) {
	r.GET("/docs", func(c *gin.Context) {
		c.Header("Content-Type", "text/markdown; charset=utf-8")
		c.String(http.StatusOK, `# Arena Settlement API

Weekly pari-mutuel voting over mini-app URLs. Vote prices escalate per
candidate within an epoch; at epoch end the pool splits 60/30/10 across
the top vote tiers and backers claim pro rata.

## Auth

POST /api/auth/token mints a Bearer token. All mutating voter routes
require it; admin routes also require the admin role. Health, quotes and
read-only epoch views are public.

## Routes

- GET  /healthz
- GET  /readyz
- POST /api/auth/token
- GET  /api/candidates/resolve?url=...
- GET  /api/candidates/:id/quote?epoch=N
- POST /api/votes
- GET  /api/epochs/current
- GET  /api/epochs/:index
- GET  /api/epochs/:index/standings
- GET  /api/epochs/:index/winners
- POST /api/epochs/:index/finalize
- GET  /api/epochs/:index/voters/me
- GET  /api/epochs/:index/entitlement
- POST /api/epochs/:index/claims
- POST /api/epochs/:index/sweep        (admin)
- POST /api/admin/protocol-config      (admin)
- POST /api/admin/sweep-due            (admin)
- GET  /api/events?after_id=&type=&epoch=&limit=
- GET  /api/events/ws

## Amounts

All amounts are integral base units encoded as decimal strings. A vote
must pay the quoted price exactly; a stale quote is rejected, never
overcharged.
`)
	})
}
