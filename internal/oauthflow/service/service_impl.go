package service

import (
	"context"
	"crypto/ed25519"
	"crypto/rand"
	"crypto/sha256"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/atriumhq/atrium/internal/clock"
	"github.com/atriumhq/atrium/internal/config"
	entitlementdomain "github.com/atriumhq/atrium/internal/entitlement/domain"
	licensedomain "github.com/atriumhq/atrium/internal/license/domain"
	obsmetrics "github.com/atriumhq/atrium/internal/observability/metrics"
	obstracing "github.com/atriumhq/atrium/internal/observability/tracing"
	"github.com/atriumhq/atrium/internal/oauthflow/domain"
	"github.com/atriumhq/atrium/internal/oauthflow/state"
	platformdomain "github.com/atriumhq/atrium/internal/platformid/domain"
	"github.com/atriumhq/atrium/internal/tenantctx"
	"github.com/atriumhq/atrium/internal/trustchain"
	"github.com/bwmarrin/snowflake"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

const (
	defaultTokenSize = 32

	wellKnownPath = "/.well-known/license-issuer"
	callbackPath  = "/api/v1/oauth/callback"

	// flowScope is the fixed scope set requested from every issuer.
	flowScope = "license:issue license:read"

	statementTTL = 5 * time.Minute
)

// Issuer path defaults used when discovery metadata omits an endpoint.
const (
	defaultAuthorizePath = "/oauth/authorize"
	defaultTokenPath     = "/oauth/token"
	defaultIssuePath     = "/api/v1/licenses/issue"
	defaultRegisterPath  = "/oauth/register"
)

type Params struct {
	fx.In

	Cfg      config.Config
	Log      *zap.Logger
	GenID    *snowflake.Node
	Clock    clock.Clock
	Store    *state.Store
	Repo     domain.Repository
	Licenses licensedomain.Service
	Platform platformdomain.Service
	Metrics  *obsmetrics.Metrics `optional:"true"`
}

type Service struct {
	log        *zap.Logger
	genID      *snowflake.Node
	clk        clock.Clock
	store      *state.Store
	repo       domain.Repository
	licenses   licensedomain.Service
	platform   platformdomain.Service
	metrics    *obsmetrics.Metrics
	httpClient *http.Client

	appName     string
	callbackURL string

	signingKey   ed25519.PrivateKey
	signingKeyID string
}

func New(p Params) (domain.Service, error) {
	var signingKey ed25519.PrivateKey
	if p.Cfg.FlowSigningKey != "" {
		key, err := decodeSigningKey(p.Cfg.FlowSigningKey)
		if err != nil {
			return nil, fmt.Errorf("flow signing key: %w", err)
		}
		signingKey = key
	}

	return &Service{
		log:        p.Log.Named("oauthflow.service"),
		genID:      p.GenID,
		clk:        p.Clock,
		store:      p.Store,
		repo:       p.Repo,
		licenses:   p.Licenses,
		platform:   p.Platform,
		metrics:    p.Metrics,
		httpClient: obstracing.WrapHTTPClient(&http.Client{Timeout: 10 * time.Second}),

		appName:     p.Cfg.AppName,
		callbackURL: p.Cfg.CallbackBaseURL + callbackPath,

		signingKey:   signingKey,
		signingKeyID: p.Cfg.FlowSigningKeyID,
	}, nil
}

// Start discovers the issuer, ensures a client registration exists,
// and returns the authorization URL for the operator to visit. The
// PKCE verifier never leaves the process.
func (s *Service) Start(ctx context.Context, req domain.StartRequest) (*domain.StartResult, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, entitlementdomain.ErrInvalidTenant
	}

	issuerURL := strings.TrimRight(strings.TrimSpace(req.IssuerURL), "/")
	if issuerURL == "" {
		return nil, &domain.FlowError{Step: "discovery", Cause: errors.New("issuer url is required")}
	}
	if !authorScoped(req.AppID) {
		return nil, domain.ErrAppNotAuthorScoped
	}
	if !trustchain.ValidLicenseMode(req.LicenseMode) {
		return nil, domain.ErrLicenseModeInvalid
	}

	endpoints, err := s.discover(ctx, issuerURL)
	if err != nil {
		s.metrics.RecordOAuthFlow(ctx, "start", "error")
		return nil, err
	}

	connection, err := s.ensureConnection(ctx, tenantID, issuerURL, req.AppID, endpoints.RegisterURL)
	if err != nil {
		s.metrics.RecordOAuthFlow(ctx, "start", "error")
		return nil, err
	}

	verifier, err := randomToken(defaultTokenSize)
	if err != nil {
		return nil, err
	}
	stateToken, err := randomToken(defaultTokenSize)
	if err != nil {
		return nil, err
	}

	s.store.Put(stateToken, state.FlowState{
		TenantID:     tenantID,
		IssuerURL:    issuerURL,
		AppID:        req.AppID,
		LicenseMode:  req.LicenseMode,
		CodeVerifier: verifier,
		Endpoints:    endpoints,
		AutoSelect:   req.AutoSelect,
	})

	authURL, err := buildAuthorizationURL(endpoints.AuthorizeURL, connection.ClientID, s.callbackURL, stateToken, pkceChallenge(verifier))
	if err != nil {
		return nil, &domain.FlowError{Step: "discovery", Cause: err}
	}

	s.metrics.RecordOAuthFlow(ctx, "start", "ok")
	s.log.Info("oauth flow started",
		zap.String("tenant_id", tenantID),
		zap.String("issuer_url", issuerURL),
		zap.String("app_id", req.AppID),
	)
	return &domain.StartResult{
		AuthorizationURL: authURL,
		State:            stateToken,
	}, nil
}

// Complete consumes the single-use state, exchanges the code, calls
// the issuer's license-issue endpoint, and imports the result. An
// unknown or expired state fails before any network I/O.
func (s *Service) Complete(ctx context.Context, code, stateToken string) (*domain.CompleteResult, error) {
	tenantID, ok := tenantctx.TenantIDFromContext(ctx)
	if !ok {
		return nil, entitlementdomain.ErrInvalidTenant
	}

	flow, ok := s.store.TakeFor(stateToken, tenantID)
	if !ok {
		return nil, domain.ErrFlowStateNotFound
	}

	connection, err := s.repo.FindConnection(ctx, flow.IssuerURL, flow.AppID)
	if err != nil {
		return nil, err
	}
	if connection == nil {
		return nil, &domain.FlowError{Step: "token_exchange", Cause: errors.New("client registration missing")}
	}

	accessToken, err := s.exchangeCode(ctx, flow, connection, code)
	if err != nil {
		s.metrics.RecordOAuthFlow(ctx, "complete", "error")
		return nil, err
	}

	assertion, certificate, err := s.issueLicense(ctx, flow, accessToken)
	if err != nil {
		s.metrics.RecordOAuthFlow(ctx, "complete", "error")
		return nil, err
	}

	stored, err := s.licenses.Import(ctx, assertion, certificate)
	if err != nil {
		s.metrics.RecordOAuthFlow(ctx, "complete", "error")
		return nil, err
	}

	selected := false
	if flow.AutoSelect && stored.Status == licensedomain.StatusActive {
		if err := s.licenses.Select(ctx, stored.AppID, stored.JTI); err != nil {
			return nil, err
		}
		selected = true
	}

	s.metrics.RecordOAuthFlow(ctx, "complete", "ok")
	s.log.Info("oauth flow completed",
		zap.String("tenant_id", tenantID),
		zap.String("app_id", stored.AppID),
		zap.String("jti", stored.JTI),
		zap.Bool("selected", selected),
	)
	return &domain.CompleteResult{License: stored, Selected: selected}, nil
}

type issuerMetadata struct {
	AuthorizationEndpoint string `json:"authorization_endpoint"`
	TokenEndpoint         string `json:"token_endpoint"`
	LicenseIssueEndpoint  string `json:"license_issue_endpoint"`
	RegistrationEndpoint  string `json:"registration_endpoint"`
}

func (s *Service) discover(ctx context.Context, issuerURL string) (state.Endpoints, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, issuerURL+wellKnownPath, nil)
	if err != nil {
		return state.Endpoints{}, &domain.FlowError{Step: "discovery", Cause: err}
	}
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return state.Endpoints{}, &domain.FlowError{Step: "discovery", Cause: err}
	}
	defer resp.Body.Close()

	var metadata issuerMetadata
	if resp.StatusCode == http.StatusOK {
		body, err := io.ReadAll(resp.Body)
		if err != nil {
			return state.Endpoints{}, &domain.FlowError{Step: "discovery", Cause: err}
		}
		if err := json.Unmarshal(body, &metadata); err != nil {
			return state.Endpoints{}, &domain.FlowError{Step: "discovery", Cause: err}
		}
	} else if resp.StatusCode != http.StatusNotFound {
		return state.Endpoints{}, &domain.FlowError{Step: "discovery",
			Cause: fmt.Errorf("issuer metadata returned status %d", resp.StatusCode)}
	}

	return state.Endpoints{
		AuthorizeURL: defaultEndpoint(metadata.AuthorizationEndpoint, issuerURL, defaultAuthorizePath),
		TokenURL:     defaultEndpoint(metadata.TokenEndpoint, issuerURL, defaultTokenPath),
		IssueURL:     defaultEndpoint(metadata.LicenseIssueEndpoint, issuerURL, defaultIssuePath),
		RegisterURL:  defaultEndpoint(metadata.RegistrationEndpoint, issuerURL, defaultRegisterPath),
	}, nil
}

// ensureConnection returns the cached client registration for
// (issuer, app), registering once when none exists. Registrations are
// shared across tenants.
func (s *Service) ensureConnection(ctx context.Context, tenantID, issuerURL, appID, registerURL string) (*domain.OAuthConnection, error) {
	connection, err := s.repo.FindConnection(ctx, issuerURL, appID)
	if err != nil {
		return nil, err
	}
	if connection != nil {
		return connection, nil
	}

	clientID, clientSecret, err := s.register(ctx, tenantID, registerURL)
	if err != nil {
		return nil, err
	}

	connection = &domain.OAuthConnection{
		ID:           s.genID.Generate(),
		TenantID:     tenantID,
		IssuerURL:    issuerURL,
		AppID:        appID,
		ClientID:     clientID,
		ClientSecret: clientSecret,
	}
	if err := s.repo.SaveConnection(ctx, connection); err != nil {
		return nil, err
	}
	return connection, nil
}

func (s *Service) register(ctx context.Context, tenantID, registerURL string) (string, string, error) {
	statement, err := s.softwareStatement(tenantID)
	if err != nil {
		return "", "", &domain.FlowError{Step: "registration", Cause: err}
	}

	payload, err := json.Marshal(map[string]interface{}{
		"software_statement":         statement,
		"redirect_uris":              []string{s.callbackURL},
		"grant_types":                []string{"authorization_code"},
		"token_endpoint_auth_method": "client_secret_post",
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, registerURL, strings.NewReader(string(payload)))
	if err != nil {
		return "", "", &domain.FlowError{Step: "registration", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", &domain.FlowError{Step: "registration", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", &domain.FlowError{Step: "registration", Cause: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", "", &domain.FlowError{Step: "registration",
			Cause: fmt.Errorf("registration returned status %d", resp.StatusCode)}
	}

	var registered struct {
		ClientID     string `json:"client_id"`
		ClientSecret string `json:"client_secret"`
	}
	if err := json.Unmarshal(body, &registered); err != nil {
		return "", "", &domain.FlowError{Step: "registration", Cause: err}
	}
	if registered.ClientID == "" {
		return "", "", &domain.FlowError{Step: "registration", Cause: errors.New("registration returned no client_id")}
	}
	return registered.ClientID, registered.ClientSecret, nil
}

// softwareStatement is a short-lived EdDSA assertion of process
// identity presented during dynamic client registration.
func (s *Service) softwareStatement(tenantID string) (string, error) {
	if len(s.signingKey) == 0 {
		return "", errors.New("no flow signing key configured")
	}

	now := s.clk.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, jwt.MapClaims{
		"software_id": s.appName,
		"tenant_id":   tenantID,
		"iat":         now.Unix(),
		"exp":         now.Add(statementTTL).Unix(),
	})
	token.Header["kid"] = s.signingKeyID
	return token.SignedString(s.signingKey)
}

func (s *Service) exchangeCode(ctx context.Context, flow state.FlowState, connection *domain.OAuthConnection, code string) (string, error) {
	form := url.Values{}
	form.Set("grant_type", "authorization_code")
	form.Set("code", code)
	form.Set("redirect_uri", s.callbackURL)
	form.Set("client_id", connection.ClientID)
	if connection.ClientSecret != "" {
		form.Set("client_secret", connection.ClientSecret)
	}
	form.Set("code_verifier", flow.CodeVerifier)

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, flow.Endpoints.TokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return "", &domain.FlowError{Step: "token_exchange", Cause: err}
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	req.Header.Set("Accept", "application/json")

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", &domain.FlowError{Step: "token_exchange", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", &domain.FlowError{Step: "token_exchange", Cause: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", &domain.FlowError{Step: "token_exchange",
			Cause: fmt.Errorf("token endpoint returned status %d", resp.StatusCode)}
	}

	var token struct {
		AccessToken string `json:"access_token"`
	}
	if err := json.Unmarshal(body, &token); err != nil {
		return "", &domain.FlowError{Step: "token_exchange", Cause: err}
	}
	if token.AccessToken == "" {
		return "", &domain.FlowError{Step: "token_exchange", Cause: errors.New("token endpoint returned no access token")}
	}
	return token.AccessToken, nil
}

func (s *Service) issueLicense(ctx context.Context, flow state.FlowState, accessToken string) (string, string, error) {
	audienceID, err := s.platform.AudienceID(ctx)
	if err != nil {
		return "", "", err
	}

	payload, err := json.Marshal(map[string]string{
		"tenant_id":    flow.TenantID,
		"app_id":       flow.AppID,
		"license_mode": flow.LicenseMode,
		"audience_id":  audienceID,
	})
	if err != nil {
		return "", "", err
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, flow.Endpoints.IssueURL, strings.NewReader(string(payload)))
	if err != nil {
		return "", "", &domain.FlowError{Step: "license_issue", Cause: err}
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return "", "", &domain.FlowError{Step: "license_issue", Cause: err}
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return "", "", &domain.FlowError{Step: "license_issue", Cause: err}
	}
	if resp.StatusCode < http.StatusOK || resp.StatusCode >= http.StatusMultipleChoices {
		return "", "", &domain.FlowError{Step: "license_issue",
			Cause: fmt.Errorf("issue endpoint returned status %d", resp.StatusCode)}
	}

	var issued struct {
		License     string `json:"license"`
		Assertion   string `json:"assertion"`
		Certificate string `json:"certificate"`
		Bundle      struct {
			Certificate string `json:"certificate"`
		} `json:"bundle"`
	}
	if err := json.Unmarshal(body, &issued); err != nil {
		return "", "", &domain.FlowError{Step: "license_issue", Cause: err}
	}

	assertion := issued.License
	if assertion == "" {
		assertion = issued.Assertion
	}
	certificate := issued.Certificate
	if certificate == "" {
		certificate = issued.Bundle.Certificate
	}
	if assertion == "" || certificate == "" {
		return "", "", &domain.FlowError{Step: "license_issue",
			Cause: errors.New("issue response missing license or certificate")}
	}
	return assertion, certificate, nil
}

func authorScoped(appID string) bool {
	author, app, ok := strings.Cut(appID, "/")
	return ok && strings.TrimSpace(author) != "" && strings.TrimSpace(app) != ""
}

func defaultEndpoint(discovered, issuerURL, path string) string {
	if strings.TrimSpace(discovered) != "" {
		return discovered
	}
	return issuerURL + path
}

func buildAuthorizationURL(authorizeURL, clientID, redirectURI, stateToken, challenge string) (string, error) {
	parsed, err := url.Parse(authorizeURL)
	if err != nil {
		return "", err
	}
	query := parsed.Query()
	query.Set("response_type", "code")
	query.Set("client_id", clientID)
	query.Set("redirect_uri", redirectURI)
	query.Set("scope", flowScope)
	query.Set("state", stateToken)
	query.Set("code_challenge", challenge)
	query.Set("code_challenge_method", "S256")
	parsed.RawQuery = query.Encode()
	return parsed.String(), nil
}

func randomToken(size int) (string, error) {
	buf := make([]byte, size)
	if _, err := rand.Read(buf); err != nil {
		return "", err
	}
	return base64.RawURLEncoding.EncodeToString(buf), nil
}

func pkceChallenge(verifier string) string {
	sum := sha256.Sum256([]byte(verifier))
	return base64.RawURLEncoding.EncodeToString(sum[:])
}

func decodeSigningKey(raw string) (ed25519.PrivateKey, error) {
	decoded, err := base64.StdEncoding.DecodeString(raw)
	if err != nil {
		decoded, err = base64.RawURLEncoding.DecodeString(raw)
		if err != nil {
			return nil, fmt.Errorf("decode: %w", err)
		}
	}
	switch len(decoded) {
	case ed25519.SeedSize:
		return ed25519.NewKeyFromSeed(decoded), nil
	case ed25519.PrivateKeySize:
		return ed25519.PrivateKey(decoded), nil
	default:
		return nil, fmt.Errorf("unexpected key length %d", len(decoded))
	}
}
