package trustchain

import (
	"github.com/golang-jwt/jwt/v5"
)

// Token type discriminators on the chain's JWTs.
const (
	TokenTypeAuthorCertificate = "author_certificate"
	TokenTypeLicense           = "license"
)

// License audience modes.
const (
	ModePortable      = "portable"
	ModeInstanceBound = "instance_bound"
)

// WildcardAudience marks a portable license usable on any instance.
const WildcardAudience = "*"

// AuthorCertificateClaims is the payload of a root-signed author
// certificate. Subject carries the author id; Keys embeds the
// author's signing key set.
type AuthorCertificateClaims struct {
	TokenType string            `json:"token_type"`
	Keys      map[string]string `json:"keys"`
	jwt.RegisteredClaims
}

// LicenseScope is the strongly-typed subject of a license assertion.
type LicenseScope struct {
	ScopeType string `json:"scope_type"`
	TenantID  string `json:"tenant_id"`
}

// LicenseClaims is the payload of an author-signed license assertion.
type LicenseClaims struct {
	TokenType   string       `json:"token_type"`
	Scope       LicenseScope `json:"scope"`
	AppID       string       `json:"app_id"`
	LicenseMode string       `json:"license_mode"`
	jwt.RegisteredClaims
}

// ValidLicenseMode reports whether mode is a known audience mode.
func ValidLicenseMode(mode string) bool {
	return mode == ModePortable || mode == ModeInstanceBound
}
