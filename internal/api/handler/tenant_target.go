package handler

import (
	"net/http"

	"github.com/google/uuid"
	mw "github.com/kiranshivaraju/tenantcore/internal/api/middleware"
	"github.com/kiranshivaraju/tenantcore/internal/api/response"
)

// targetTenant picks the tenant a request acts on: the explicit id when one
// was given, otherwise the caller's own tenant. Whether the caller may act on
// that tenant is left to the service.
func targetTenant(w http.ResponseWriter, r *http.Request, explicit string) (uuid.UUID, bool) {
	if explicit != "" {
		id, err := uuid.Parse(explicit)
		if err != nil {
			response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "One or more fields are invalid",
				map[string]string{"tenant_id": "must be a valid UUID"})
			return uuid.Nil, false
		}
		return id, true
	}
	if id, ok := mw.GetTenantID(r); ok {
		return id, true
	}
	response.Error(w, http.StatusBadRequest, "VALIDATION_FAILED", "One or more fields are invalid",
		map[string]string{"tenant_id": "is required"})
	return uuid.Nil, false
}
