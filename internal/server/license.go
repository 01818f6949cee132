package server

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"
)

type importLicenseRequest struct {
	LicenseAssertion  string `json:"license_assertion"`
	AuthorCertificate string `json:"author_certificate"`
}

type selectLicenseRequest struct {
	AppID string `json:"app_id"`
	JTI   string `json:"jti"`
}

func (s *Server) ImportLicense(c *gin.Context) {
	var req importLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.licenseSvc.Import(c.Request.Context(),
		strings.TrimSpace(req.LicenseAssertion),
		strings.TrimSpace(req.AuthorCertificate),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ValidateLicense(c *gin.Context) {
	var req importLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	resp, err := s.licenseSvc.Validate(c.Request.Context(),
		strings.TrimSpace(req.LicenseAssertion),
		strings.TrimSpace(req.AuthorCertificate),
	)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) ListLicenses(c *gin.Context) {
	resp, err := s.licenseSvc.List(c.Request.Context(), strings.TrimSpace(c.Query("app_id")))
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) SelectLicense(c *gin.Context) {
	var req selectLicenseRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		AbortWithError(c, invalidRequestError())
		return
	}

	if err := s.licenseSvc.Select(c.Request.Context(), strings.TrimSpace(req.AppID), strings.TrimSpace(req.JTI)); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"selected": true}})
}

func (s *Server) GetSelectedLicense(c *gin.Context) {
	appID := strings.TrimSpace(c.Query("app_id"))
	if appID == "" {
		AbortWithError(c, newValidationError("app_id", "invalid_app_id", "app_id is required"))
		return
	}

	resp, err := s.licenseSvc.GetSelected(c.Request.Context(), appID)
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": resp})
}

func (s *Server) DeleteLicense(c *gin.Context) {
	jti := strings.TrimSpace(c.Param("jti"))
	if jti == "" {
		AbortWithError(c, newValidationError("jti", "invalid_jti", "jti is required"))
		return
	}

	if err := s.licenseSvc.Delete(c.Request.Context(), jti); err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{"deleted": true}})
}
