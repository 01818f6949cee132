package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type ingestOfflineTokenRequest struct {
	Token string `json:"token"`
}

func (s *Server) IngestOfflineToken(c *gin.Context) {
	var req ingestOfflineTokenRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}
	if strings.TrimSpace(req.Token) == "" {
		AbortWithError(c, newValidationError("token", "invalid_token", "token is required"))
		return
	}

	resp, err := s.offlineTokenSvc.Ingest(c.Request.Context(), strings.TrimSpace(req.Token))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"entitlement":  resp.Entitlement,
		"time_warning": resp.TimeWarning,
	}})
}

func (s *Server) ListOfflineTokenRecords(c *gin.Context) {
	resp, err := s.offlineTokenSvc.ListRecords(c.Request.Context(), strings.TrimSpace(c.Query("app_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
