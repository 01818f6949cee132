package server

import (
	"net/http"
	"strings"

	oauthflowdomain "github.com/atriumhq/atrium/internal/oauthflow/domain"
	"github.com/gin-gonic/gin"
)

type startOAuthFlowRequest struct {
	IssuerURL   string `json:"issuer_url"`
	AppID       string `json:"app_id"`
	LicenseMode string `json:"license_mode"`
	AutoSelect  bool   `json:"auto_select"`
}

func (s *Server) StartOAuthFlow(c *gin.Context) {
	var req startOAuthFlowRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.oauthFlowSvc.Start(c.Request.Context(), oauthflowdomain.StartRequest{
		IssuerURL:   strings.TrimSpace(req.IssuerURL),
		AppID:       strings.TrimSpace(req.AppID),
		LicenseMode: strings.TrimSpace(req.LicenseMode),
		AutoSelect:  req.AutoSelect,
	})
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) CompleteOAuthFlow(c *gin.Context) {
	code := strings.TrimSpace(c.Query("code"))
	stateToken := strings.TrimSpace(c.Query("state"))
	if code == "" || stateToken == "" {
		AbortWithError(c, newValidationError("request", "invalid_callback", "code and state are required"))
		return
	}

	resp, err := s.oauthFlowSvc.Complete(c.Request.Context(), code, stateToken)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
