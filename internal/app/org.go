package app

import (
	"net/http"
	"strconv"

	"github.com/bizledger/bizledger/internal/platform/httpx"
	"github.com/bizledger/bizledger/internal/shared"
)

// OrgHeader names the header carrying the acting organization id. The API is
// multi-tenant per request; there is no implicit current organization.
const OrgHeader = "X-Org-ID"

// RequireOrg resolves the organization scope from the request header and
// stores it in context for the handlers below it.
func RequireOrg(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		raw := r.Header.Get(OrgHeader)
		orgID, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || orgID <= 0 {
			httpx.Problem(w, http.StatusBadRequest, "Missing Organization", "a positive X-Org-ID header is required")
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithOrg(r.Context(), orgID)))
	})
}
