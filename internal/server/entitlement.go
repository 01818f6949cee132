package server

import (
	"net/http"
	"strconv"
	"strings"
	"time"

	entitlementdomain "github.com/atriumhq/atrium/internal/entitlement/domain"
	"github.com/gin-gonic/gin"
)

type upsertEntitlementRequest struct {
	AppID     string                 `json:"app_id"`
	Source    string                 `json:"source"`
	Tier      string                 `json:"tier"`
	ValidFrom time.Time              `json:"valid_from"`
	ValidTo   time.Time              `json:"valid_to"`
	Limits    map[string]interface{} `json:"limits"`
	Status    string                 `json:"status"`
}

type selectEntitlementRequest struct {
	AppID         string `json:"app_id"`
	EntitlementID int64  `json:"entitlement_id,string"`
}

func (s *Server) UpsertEntitlement(c *gin.Context) {
	var req upsertEntitlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.entitlementSvc.Upsert(c.Request.Context(), entitlementdomain.UpsertRequest{
		AppID:     strings.TrimSpace(req.AppID),
		Source:    entitlementdomain.Source(strings.TrimSpace(req.Source)),
		Tier:      strings.TrimSpace(req.Tier),
		ValidFrom: req.ValidFrom,
		ValidTo:   req.ValidTo,
		Limits:    req.Limits,
		Status:    strings.TrimSpace(req.Status),
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListEntitlements(c *gin.Context) {
	resp, err := s.entitlementSvc.List(c.Request.Context(), strings.TrimSpace(c.Query("app_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ResolveEntitlement(c *gin.Context) {
	appID := strings.TrimSpace(c.Query("app_id"))
	if appID == "" {
		AbortWithError(c, newValidationError("app_id", "invalid_app_id", "app_id is required"))
		return
	}

	resp, err := s.entitlementSvc.Resolve(c.Request.Context(), appID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"entitlement": resp.Entitlement,
		"soft_grace":  resp.SoftGrace,
		"selected":    resp.Selected,
	}})
}

func (s *Server) SelectEntitlement(c *gin.Context) {
	var req selectEntitlementRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if req.EntitlementID == 0 {
		if raw := strings.TrimSpace(c.Query("entitlement_id")); raw != "" {
			id, err := strconv.ParseInt(raw, 10, 64)
			if err != nil {
				AbortWithError(c, newValidationError("entitlement_id", "invalid_entitlement_id", "invalid entitlement id"))
				return
			}
			req.EntitlementID = id
		}
	}

	if err := s.entitlementSvc.Select(c.Request.Context(), strings.TrimSpace(req.AppID), req.EntitlementID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"selected": true}})
}

func (s *Server) ClearEntitlementSelection(c *gin.Context) {
	appID := strings.TrimSpace(c.Query("app_id"))
	if appID == "" {
		AbortWithError(c, newValidationError("app_id", "invalid_app_id", "app_id is required"))
		return
	}

	if err := s.entitlementSvc.ClearSelection(c.Request.Context(), appID); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"cleared": true}})
}
