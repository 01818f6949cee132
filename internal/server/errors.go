package server

import (
	"errors"
	"net/http"

	entitlementdomain "github.com/atriumhq/atrium/internal/entitlement/domain"
	licensedomain "github.com/atriumhq/atrium/internal/license/domain"
	oauthflowdomain "github.com/atriumhq/atrium/internal/oauthflow/domain"
	offlinetokendomain "github.com/atriumhq/atrium/internal/offlinetoken/domain"
	revocationdomain "github.com/atriumhq/atrium/internal/revocation/domain"
	"github.com/atriumhq/atrium/internal/trustchain"
	"github.com/gin-gonic/gin"
	"gorm.io/gorm"
)

type ValidationError struct {
	Field   string `json:"field"`
	Code    string `json:"code"`
	Message string `json:"message"`
}

type ValidationErrors struct {
	Errors []ValidationError `json:"errors"`
}

func (v ValidationErrors) Error() string {
	return "validation error"
}

type errorPayload struct {
	Type    string            `json:"type"`
	Message string            `json:"message"`
	Errors  []ValidationError `json:"errors,omitempty"`
}

type errorResponse struct {
	Error errorPayload `json:"error"`
}

var (
	ErrNotFound       = errors.New("not_found")
	ErrInvalidRequest = errors.New("invalid_request")
)

func ErrorHandlingMiddleware() gin.HandlerFunc {
	return func(c *gin.Context) {
		c.Next()

		if c.Writer.Written() {
			return
		}

		lastErr := c.Errors.Last()
		if lastErr == nil {
			return
		}

		status, payload := mapError(lastErr.Err)
		c.Header("Content-Type", "application/json")
		c.AbortWithStatusJSON(status, errorResponse{Error: payload})
	}
}

func AbortWithError(c *gin.Context, err error) {
	if err == nil {
		return
	}
	_ = c.Error(err)
	c.Abort()
}

func invalidRequestError() error {
	return newValidationError("request", "invalid_request", "invalid request")
}

func newValidationError(field, code, message string) error {
	return &ValidationErrors{
		Errors: []ValidationError{
			{
				Field:   field,
				Code:    code,
				Message: message,
			},
		},
	}
}

func mapError(err error) (int, errorPayload) {
	if err == nil {
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}

	if vErr := asValidationErrors(err); vErr != nil {
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: "validation error",
			Errors:  vErr.Errors,
		}
	}

	if isVerificationError(err) {
		return http.StatusUnprocessableEntity, errorPayload{
			Type:    "verification_error",
			Message: err.Error(),
		}
	}

	switch {
	case isValidationError(err):
		return http.StatusBadRequest, errorPayload{
			Type:    "validation_error",
			Message: err.Error(),
		}
	case isNotFoundError(err):
		return http.StatusNotFound, errorPayload{
			Type:    "not_found",
			Message: "not found",
		}
	case errors.Is(err, licensedomain.ErrLicenseNotActive):
		return http.StatusConflict, errorPayload{
			Type:    "conflict",
			Message: err.Error(),
		}
	case errors.Is(err, oauthflowdomain.ErrFlowFailed):
		return http.StatusBadGateway, errorPayload{
			Type:    "flow_failed",
			Message: "oauth flow failed",
		}
	default:
		return http.StatusInternalServerError, errorPayload{
			Type:    "internal_error",
			Message: "internal server error",
		}
	}
}

func asValidationErrors(err error) *ValidationErrors {
	var vErr *ValidationErrors
	if errors.As(err, &vErr) && vErr != nil {
		return vErr
	}
	return nil
}

func isValidationError(err error) bool {
	switch {
	case errors.Is(err, ErrInvalidRequest),
		errors.Is(err, entitlementdomain.ErrInvalidTenant),
		errors.Is(err, entitlementdomain.ErrInvalidAppID),
		errors.Is(err, entitlementdomain.ErrInvalidSource),
		errors.Is(err, entitlementdomain.ErrInvalidWindow),
		errors.Is(err, entitlementdomain.ErrUnknownTier),
		errors.Is(err, revocationdomain.ErrInvalidRevocationType),
		errors.Is(err, oauthflowdomain.ErrAppNotAuthorScoped),
		errors.Is(err, oauthflowdomain.ErrLicenseModeInvalid):
		return true
	default:
		return false
	}
}

// Trust errors stay validation-class to callers; the full cause lands
// in logs and the offline audit trail only.
func isVerificationError(err error) bool {
	if errors.Is(err, offlinetokendomain.ErrVerificationFailed) {
		return true
	}
	_, ok := trustchain.AsVerifyError(err)
	return ok
}

func isNotFoundError(err error) bool {
	switch {
	case errors.Is(err, ErrNotFound),
		errors.Is(err, entitlementdomain.ErrNoEntitlement),
		errors.Is(err, entitlementdomain.ErrEntitlementMissing),
		errors.Is(err, licensedomain.ErrLicenseNotFound),
		errors.Is(err, licensedomain.ErrNoSelection),
		errors.Is(err, oauthflowdomain.ErrFlowStateNotFound),
		errors.Is(err, gorm.ErrRecordNotFound):
		return true
	default:
		return false
	}
}

func classifyErrorForLog(err error) (string, string) {
	_, payload := mapError(err)
	code := payload.Type
	if verr, ok := trustchain.AsVerifyError(err); ok {
		code = string(verr.Kind)
	}
	return payload.Type, code
}
