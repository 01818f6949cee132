package e2e

import (
	"bytes"
	"crypto/ed25519"
	"crypto/rand"
	"encoding/base64"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/atriumhq/atrium/internal/clock"
	"github.com/atriumhq/atrium/internal/config"
	entitlementdomain "github.com/atriumhq/atrium/internal/entitlement/domain"
	entitlementrepository "github.com/atriumhq/atrium/internal/entitlement/repository"
	entitlementservice "github.com/atriumhq/atrium/internal/entitlement/service"
	licensedomain "github.com/atriumhq/atrium/internal/license/domain"
	licenserepository "github.com/atriumhq/atrium/internal/license/repository"
	licenseservice "github.com/atriumhq/atrium/internal/license/service"
	oauthflowdomain "github.com/atriumhq/atrium/internal/oauthflow/domain"
	oauthflowrepository "github.com/atriumhq/atrium/internal/oauthflow/repository"
	oauthflowservice "github.com/atriumhq/atrium/internal/oauthflow/service"
	"github.com/atriumhq/atrium/internal/oauthflow/state"
	offlinetokendomain "github.com/atriumhq/atrium/internal/offlinetoken/domain"
	offlinetokenrepository "github.com/atriumhq/atrium/internal/offlinetoken/repository"
	offlinetokenservice "github.com/atriumhq/atrium/internal/offlinetoken/service"
	platformdomain "github.com/atriumhq/atrium/internal/platformid/domain"
	platformrepository "github.com/atriumhq/atrium/internal/platformid/repository"
	platformservice "github.com/atriumhq/atrium/internal/platformid/service"
	revocationdomain "github.com/atriumhq/atrium/internal/revocation/domain"
	revocationrepository "github.com/atriumhq/atrium/internal/revocation/repository"
	revocationservice "github.com/atriumhq/atrium/internal/revocation/service"
	"github.com/atriumhq/atrium/internal/server"
	"github.com/atriumhq/atrium/internal/trustchain"
	"github.com/bwmarrin/snowflake"
	"github.com/gin-gonic/gin"
	"github.com/golang-jwt/jwt/v5"
	"go.uber.org/zap"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
)

const (
	rootIssuer = "atrium-root-registry"
	authorID   = "author-x"
	tenantID   = "tenant-a"
	appID      = "author-x/reporting"
)

// testEnv wires the full HTTP surface against an in-memory database,
// with signing keys for every trust domain the API accepts.
type testEnv struct {
	t      *testing.T
	db     *gorm.DB
	server *httptest.Server
	clk    *clock.FakeClock

	rootPriv    ed25519.PrivateKey
	authorPriv  ed25519.PrivateKey
	authorPub   ed25519.PublicKey
	offlinePriv ed25519.PrivateKey
}

func newEnv(t *testing.T) *testEnv {
	t.Helper()
	gin.SetMode(gin.TestMode)

	rootPub, rootPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate root key: %v", err)
	}
	authorPub, authorPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate author key: %v", err)
	}
	offlinePub, offlinePriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate offline key: %v", err)
	}
	_, flowPriv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		t.Fatalf("generate flow key: %v", err)
	}

	cfg := config.Config{
		AppName:          "atrium",
		RootIssuer:       rootIssuer,
		RootKeys:         keySetJSON(t, "root-1", rootPub),
		OfflineKeys:      keySetJSON(t, "offline-1", offlinePub),
		FlowSigningKey:   base64.StdEncoding.EncodeToString(flowPriv.Seed()),
		FlowSigningKeyID: "flow-1",
		CallbackBaseURL:  "http://localhost:8080",
		StrictSkew:       10 * time.Minute,
		SoftGrace:        12 * time.Hour,
	}

	dsn := fmt.Sprintf("file:%s?mode=memory&cache=shared&_loc=auto", t.Name())
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{})
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	sqlDB, err := db.DB()
	if err != nil {
		t.Fatalf("db handle: %v", err)
	}
	sqlDB.SetMaxOpenConns(1)
	sqlDB.SetMaxIdleConns(1)
	if err := db.AutoMigrate(
		&platformdomain.PlatformInstance{},
		&revocationdomain.LocalRevocation{},
		&entitlementdomain.Entitlement{},
		&entitlementdomain.EntitlementSelection{},
		&offlinetokendomain.OfflineTokenRecord{},
		&licensedomain.TenantLicense{},
		&licensedomain.LicenseSelection{},
		&oauthflowdomain.OAuthConnection{},
	); err != nil {
		t.Fatalf("migrate: %v", err)
	}

	node, err := snowflake.NewNode(1)
	if err != nil {
		t.Fatalf("new node: %v", err)
	}
	clk := clock.NewFakeClock(time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC))
	log := zap.NewNop()

	platformSvc := platformservice.New(platformservice.Params{
		Log:  log,
		Repo: platformrepository.Provide(db),
	})
	revocationSvc := revocationservice.New(revocationservice.Params{
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  revocationrepository.Provide(db),
	})

	rootKeys, err := trustchain.ParseKeySet(cfg.RootKeys)
	if err != nil {
		t.Fatalf("parse root keys: %v", err)
	}
	verifier := trustchain.NewVerifier(rootKeys, cfg.RootIssuer, revocationSvc, platformSvc, clk, log)

	entitlementSvc := entitlementservice.New(entitlementservice.Params{
		Cfg:   cfg,
		Log:   log,
		GenID: node,
		Clock: clk,
		Repo:  entitlementrepository.Provide(db),
	})
	offlineTokenSvc, err := offlinetokenservice.New(offlinetokenservice.Params{
		Cfg:          cfg,
		Log:          log,
		GenID:        node,
		Clock:        clk,
		Repo:         offlinetokenrepository.Provide(db),
		Entitlements: entitlementSvc,
		Platform:     platformSvc,
	})
	if err != nil {
		t.Fatalf("offline token service: %v", err)
	}
	licenseSvc := licenseservice.New(licenseservice.Params{
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Repo:     licenserepository.Provide(db),
		Verifier: verifier,
	})
	oauthFlowSvc, err := oauthflowservice.New(oauthflowservice.Params{
		Cfg:      cfg,
		Log:      log,
		GenID:    node,
		Clock:    clk,
		Store:    state.New(clk),
		Repo:     oauthflowrepository.Provide(db),
		Licenses: licenseSvc,
		Platform: platformSvc,
	})
	if err != nil {
		t.Fatalf("oauth flow service: %v", err)
	}

	engine := gin.New()
	engine.Use(server.ErrorHandlingMiddleware())
	server.NewServer(server.ServerParams{
		Gin:             engine,
		Cfg:             cfg,
		PlatformSvc:     platformSvc,
		RevocationSvc:   revocationSvc,
		EntitlementSvc:  entitlementSvc,
		OfflineTokenSvc: offlineTokenSvc,
		LicenseSvc:      licenseSvc,
		OAuthFlowSvc:    oauthFlowSvc,
	})

	srv := httptest.NewServer(engine)
	t.Cleanup(srv.Close)

	return &testEnv{
		t:           t,
		db:          db,
		server:      srv,
		clk:         clk,
		rootPriv:    rootPriv,
		authorPriv:  authorPriv,
		authorPub:   authorPub,
		offlinePriv: offlinePriv,
	}
}

func keySetJSON(t *testing.T, kid string, key ed25519.PublicKey) string {
	t.Helper()
	raw, err := json.Marshal(map[string]string{kid: trustchain.EncodePublicKey(key)})
	if err != nil {
		t.Fatalf("marshal key set: %v", err)
	}
	return string(raw)
}

// do issues a request as the given tenant and returns status plus the
// raw body. An empty tenant omits the header.
func (e *testEnv) do(method, path, tenant string, payload interface{}) (int, []byte) {
	e.t.Helper()

	var body io.Reader
	if payload != nil {
		raw, err := json.Marshal(payload)
		if err != nil {
			e.t.Fatalf("marshal request: %v", err)
		}
		body = bytes.NewReader(raw)
	}

	req, err := http.NewRequest(method, e.server.URL+path, body)
	if err != nil {
		e.t.Fatalf("new request: %v", err)
	}
	if payload != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	if tenant != "" {
		req.Header.Set(server.HeaderTenant, tenant)
	}

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		e.t.Fatalf("do request: %v", err)
	}
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	if err != nil {
		e.t.Fatalf("read response: %v", err)
	}
	return resp.StatusCode, raw
}

func (e *testEnv) mustDo(method, path string, payload interface{}) []byte {
	e.t.Helper()
	status, body := e.do(method, path, tenantID, payload)
	if status != http.StatusOK {
		e.t.Fatalf("%s %s returned %d: %s", method, path, status, body)
	}
	return body
}

func decodeInto(t *testing.T, raw []byte, out interface{}) {
	t.Helper()
	if err := json.Unmarshal(raw, out); err != nil {
		t.Fatalf("decode response: %v", err)
	}
}

func (e *testEnv) audienceID() string {
	e.t.Helper()
	var body struct {
		Data struct {
			AudienceID string `json:"audience_id"`
		} `json:"data"`
	}
	decodeInto(e.t, e.mustDo(http.MethodGet, "/api/v1/instance", nil), &body)
	if body.Data.AudienceID == "" {
		e.t.Fatal("instance endpoint returned no audience id")
	}
	return body.Data.AudienceID
}

func (e *testEnv) sign(priv ed25519.PrivateKey, kid string, claims jwt.Claims) string {
	e.t.Helper()
	token := jwt.NewWithClaims(jwt.SigningMethodEdDSA, claims)
	token.Header["kid"] = kid
	signed, err := token.SignedString(priv)
	if err != nil {
		e.t.Fatalf("sign: %v", err)
	}
	return signed
}

func (e *testEnv) authorCertificate() string {
	return e.sign(e.rootPriv, "root-1", trustchain.AuthorCertificateClaims{
		TokenType: trustchain.TokenTypeAuthorCertificate,
		Keys:      map[string]string{"author-key-1": trustchain.EncodePublicKey(e.authorPub)},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  rootIssuer,
			Subject: authorID,
		},
	})
}

func (e *testEnv) licenseAssertion(jti string, expiresIn time.Duration) string {
	return e.sign(e.authorPriv, "author-key-1", trustchain.LicenseClaims{
		TokenType:   trustchain.TokenTypeLicense,
		Scope:       trustchain.LicenseScope{ScopeType: "tenant", TenantID: tenantID},
		AppID:       appID,
		LicenseMode: trustchain.ModePortable,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    authorID,
			ID:        jti,
			Audience:  jwt.ClaimStrings{trustchain.WildcardAudience},
			NotBefore: jwt.NewNumericDate(e.clk.Now().Add(-time.Hour)),
			ExpiresAt: jwt.NewNumericDate(e.clk.Now().Add(expiresIn)),
		},
	})
}

func (e *testEnv) offlineGrant(jti, tier string, audience string) string {
	return e.sign(e.offlinePriv, "offline-1", jwt.MapClaims{
		"iss":        "offline-issuer",
		"jti":        jti,
		"aud":        audience,
		"tenant_id":  tenantID,
		"app_id":     appID,
		"tier":       tier,
		"valid_from": e.clk.Now().Add(-time.Hour).Unix(),
		"valid_to":   e.clk.Now().Add(24 * time.Hour).Unix(),
	})
}
