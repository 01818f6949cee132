package trustchain

import (
	"context"
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/atriumhq/atrium/internal/clock"
	platformdomain "github.com/atriumhq/atrium/internal/platformid/domain"
	revocationdomain "github.com/atriumhq/atrium/internal/revocation/domain"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
)

// Status is the derived state of a chain-verified license. A license
// that fails signature or shape checks never reaches status
// derivation.
type Status string

const (
	StatusActive  Status = "active"
	StatusExpired Status = "expired"
	StatusRevoked Status = "revoked"
)

var appSlugPattern = regexp.MustCompile(`^[a-z0-9][a-z0-9_-]*$`)

// VerifiedLicense is the outcome of a successful chain verification.
type VerifiedLicense struct {
	Claims   LicenseClaims
	AuthorID string
	KeyID    string
	Status   Status
}

// Verifier checks a license assertion against its author certificate,
// which is in turn checked against the configured root key set. It is
// read-only; persisting the result is the caller's job.
type Verifier struct {
	rootKeys    KeySet
	rootIssuer  string
	revocations revocationdomain.Service
	platform    platformdomain.Service
	clk         clock.Clock
	log         *zap.Logger
}

func NewVerifier(
	rootKeys KeySet,
	rootIssuer string,
	revocations revocationdomain.Service,
	platform platformdomain.Service,
	clk clock.Clock,
	log *zap.Logger,
) *Verifier {
	return &Verifier{
		rootKeys:    rootKeys,
		rootIssuer:  rootIssuer,
		revocations: revocations,
		platform:    platform,
		clk:         clk,
		log:         log.Named("trustchain.verifier"),
	}
}

// Verify runs the full chain: certificate against the root key set,
// assertion against the certificate's embedded keys, then claim
// shape, tenant isolation, app-id binding, audience rules, and the
// local revocation list.
func (v *Verifier) Verify(ctx context.Context, tenantID, assertion, certificate string) (*VerifiedLicense, error) {
	if strings.TrimSpace(certificate) == "" {
		return nil, newVerifyError(KindShape, "author certificate is required", nil)
	}
	if strings.TrimSpace(assertion) == "" {
		return nil, newVerifyError(KindShape, "license assertion is required", nil)
	}

	authorID, authorKeys, err := v.verifyCertificate(certificate)
	if err != nil {
		return nil, err
	}

	claims, assertionKID, err := v.verifyAssertion(assertion, authorKeys)
	if err != nil {
		return nil, err
	}

	if err := v.checkClaims(ctx, tenantID, authorID, claims); err != nil {
		return nil, err
	}

	status, err := v.deriveStatus(ctx, authorID, assertionKID, claims)
	if err != nil {
		return nil, err
	}

	return &VerifiedLicense{
		Claims:   *claims,
		AuthorID: authorID,
		KeyID:    assertionKID,
		Status:   status,
	}, nil
}

func (v *Verifier) verifyCertificate(certificate string) (string, KeySet, error) {
	var claims AuthorCertificateClaims
	_, err := jwt.ParseWithClaims(certificate, &claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}
		key, ok := v.rootKeys.Lookup(kid)
		if !ok {
			return nil, fmt.Errorf("unknown root key %q", kid)
		}
		return key, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}), jwt.WithoutClaimsValidation())
	if err != nil {
		return "", nil, classifyParseError("author certificate", err)
	}

	if claims.TokenType != TokenTypeAuthorCertificate {
		return "", nil, newVerifyError(KindShape, "certificate token_type must be author_certificate", nil)
	}
	if claims.Issuer != v.rootIssuer {
		return "", nil, newVerifyError(KindShape, fmt.Sprintf("certificate issuer must be %q", v.rootIssuer), nil)
	}
	authorID := strings.TrimSpace(claims.Subject)
	if authorID == "" {
		return "", nil, newVerifyError(KindShape, "certificate subject (author id) is required", nil)
	}
	if len(claims.Keys) == 0 {
		return "", nil, newVerifyError(KindShape, "certificate must embed at least one author key", nil)
	}

	authorKeys := make(KeySet, len(claims.Keys))
	for kid, encoded := range claims.Keys {
		key, err := decodePublicKey(encoded)
		if err != nil {
			return "", nil, newVerifyError(KindShape, "certificate embeds an invalid author key", err)
		}
		authorKeys[kid] = key
	}

	return authorID, authorKeys, nil
}

func (v *Verifier) verifyAssertion(assertion string, authorKeys KeySet) (*LicenseClaims, string, error) {
	var claims LicenseClaims
	var assertionKID string
	_, err := jwt.ParseWithClaims(assertion, &claims, func(token *jwt.Token) (interface{}, error) {
		kid, _ := token.Header["kid"].(string)
		if kid == "" {
			return nil, errors.New("missing kid header")
		}
		key, ok := authorKeys.Lookup(kid)
		if !ok {
			return nil, fmt.Errorf("unknown author key %q", kid)
		}
		assertionKID = kid
		return key, nil
	}, jwt.WithValidMethods([]string{"EdDSA"}), jwt.WithoutClaimsValidation())
	if err != nil {
		return nil, "", classifyParseError("license assertion", err)
	}

	return &claims, assertionKID, nil
}

func (v *Verifier) checkClaims(ctx context.Context, tenantID, authorID string, claims *LicenseClaims) error {
	if claims.TokenType != TokenTypeLicense {
		return newVerifyError(KindShape, "assertion token_type must be license", nil)
	}
	if claims.Issuer != authorID {
		return newVerifyError(KindShape, "assertion issuer must equal the certified author id", nil)
	}
	if claims.Scope.ScopeType != "tenant" {
		return newVerifyError(KindShape, "assertion scope_type must be tenant", nil)
	}
	if claims.Scope.TenantID != tenantID {
		return newVerifyError(KindTenantMismatch, "license is scoped to a different tenant", nil)
	}
	if strings.TrimSpace(claims.ID) == "" {
		return newVerifyError(KindShape, "assertion jti is required", nil)
	}
	if !ValidLicenseMode(claims.LicenseMode) {
		return newVerifyError(KindShape, "assertion license_mode must be portable or instance_bound", nil)
	}
	if claims.ExpiresAt == nil {
		return newVerifyError(KindShape, "assertion expiry is required", nil)
	}

	appAuthor, slug, ok := strings.Cut(claims.AppID, "/")
	if !ok || !appSlugPattern.MatchString(slug) {
		return newVerifyError(KindShape, "assertion app_id must have the form <author_id>/<slug>", nil)
	}
	if appAuthor != authorID {
		return newVerifyError(KindAppMismatch, "assertion app_id is not owned by the certified author", nil)
	}

	return v.checkAudience(ctx, claims)
}

func (v *Verifier) checkAudience(ctx context.Context, claims *LicenseClaims) error {
	switch claims.LicenseMode {
	case ModePortable:
		if !containsAudience(claims.Audience, WildcardAudience) {
			return newVerifyError(KindAudience, "portable license requires the wildcard audience", nil)
		}
	case ModeInstanceBound:
		audienceID, err := v.platform.AudienceID(ctx)
		if err != nil {
			return err
		}
		if !containsAudience(claims.Audience, audienceID) {
			return newVerifyError(KindAudience, "instance_bound license is not bound to this instance", nil)
		}
	}
	return nil
}

func (v *Verifier) deriveStatus(ctx context.Context, authorID, assertionKID string, claims *LicenseClaims) (Status, error) {
	revoked, err := v.revocations.IsRevoked(ctx, authorID, assertionKID, claims.ID)
	if err != nil {
		return "", err
	}
	if revoked {
		v.log.Warn("license rejected by local revocation list",
			zap.String("author_id", authorID),
			zap.String("jti", claims.ID),
		)
		return StatusRevoked, nil
	}

	if claims.ExpiresAt != nil && !claims.ExpiresAt.After(v.clk.Now()) {
		return StatusExpired, nil
	}
	return StatusActive, nil
}

func containsAudience(audience jwt.ClaimStrings, value string) bool {
	for _, item := range audience {
		if item == value {
			return true
		}
	}
	return false
}

func classifyParseError(what string, err error) *VerifyError {
	if errors.Is(err, jwt.ErrTokenMalformed) {
		return newVerifyError(KindShape, what+" is malformed", err)
	}
	return newVerifyError(KindSignature, what+" signature verification failed", err)
}
