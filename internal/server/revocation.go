package server

import (
	"net/http"
	"strings"

	revocationdomain "github.com/atriumhq/atrium/internal/revocation/domain"
	"github.com/gin-gonic/gin"
)

type addRevocationRequest struct {
	Type  string `json:"type"`
	Value string `json:"value"`
}

func (s *Server) AddRevocation(c *gin.Context) {
	var req addRevocationRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	revocationType, err := revocationdomain.ParseRevocationType(strings.TrimSpace(req.Type))
	if err != nil {
		AbortWithError(c, err)
		return
	}
	value := strings.TrimSpace(req.Value)
	if value == "" {
		AbortWithError(c, newValidationError("value", "invalid_value", "value is required"))
		return
	}

	if err := s.revocationSvc.Add(c.Request.Context(), revocationType, value); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"revoked": true}})
}

func (s *Server) ListRevocations(c *gin.Context) {
	resp, err := s.revocationSvc.List(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}
