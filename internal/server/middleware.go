package server

import (
	"strings"

	"github.com/atriumhq/atrium/internal/tenantctx"
	"github.com/gin-gonic/gin"
)

const HeaderTenant = "X-Tenant-ID"

// TenantContext resolves the opaque tenant identifier from the
// request. Tenant resolution itself happens upstream; here the header
// is trusted as-is.
func TenantContext() gin.HandlerFunc {
	return func(c *gin.Context) {
		tenantID := strings.TrimSpace(c.GetHeader(HeaderTenant))
		if tenantID == "" {
			AbortWithError(c, newValidationError("tenant", "missing_tenant", "missing tenant id"))
			return
		}

		ctx := tenantctx.WithTenantID(c.Request.Context(), tenantID)
		c.Request = c.Request.WithContext(ctx)
		c.Next()
	}
}
