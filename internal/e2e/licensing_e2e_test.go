package e2e

import (
	"net/http"
	"testing"
	"time"

	"github.com/atriumhq/atrium/internal/trustchain"
	"github.com/golang-jwt/jwt/v5"
)

func TestE2E_TenantHeaderRequired(t *testing.T) {
	env := newEnv(t)

	status, _ := env.do(http.MethodGet, "/api/v1/entitlements", "", nil)
	if status != http.StatusBadRequest {
		t.Fatalf("expected 400 without tenant header, got %d", status)
	}
}

func TestE2E_EntitlementLifecycle(t *testing.T) {
	env := newEnv(t)

	var upserted struct {
		Data struct {
			ID   string `json:"ID"`
			Tier string `json:"Tier"`
		} `json:"data"`
	}
	decodeInto(t, env.mustDo(http.MethodPost, "/api/v1/entitlements", map[string]interface{}{
		"app_id":     appID,
		"source":     "online",
		"tier":       "standard",
		"valid_from": env.clk.Now().Add(-time.Hour).Format(time.RFC3339),
		"valid_to":   env.clk.Now().Add(24 * time.Hour).Format(time.RFC3339),
		"limits":     map[string]interface{}{"seats": 5},
	}), &upserted)
	if upserted.Data.Tier != "standard" {
		t.Fatalf("expected standard tier, got %q", upserted.Data.Tier)
	}

	var resolved struct {
		Data struct {
			Entitlement struct {
				Tier string `json:"Tier"`
			} `json:"entitlement"`
			SoftGrace bool `json:"soft_grace"`
			Selected  bool `json:"selected"`
		} `json:"data"`
	}
	decodeInto(t, env.mustDo(http.MethodGet, "/api/v1/entitlements/resolve?app_id="+appID, nil), &resolved)
	if resolved.Data.Entitlement.Tier != "standard" {
		t.Fatalf("expected standard winner, got %q", resolved.Data.Entitlement.Tier)
	}
	if resolved.Data.SoftGrace || resolved.Data.Selected {
		t.Fatalf("unexpected resolve flags: %+v", resolved.Data)
	}

	env.mustDo(http.MethodPut, "/api/v1/entitlements/selection", map[string]interface{}{
		"app_id":         appID,
		"entitlement_id": upserted.Data.ID,
	})
	decodeInto(t, env.mustDo(http.MethodGet, "/api/v1/entitlements/resolve?app_id="+appID, nil), &resolved)
	if !resolved.Data.Selected {
		t.Fatal("expected selection to decide resolution")
	}

	env.mustDo(http.MethodDelete, "/api/v1/entitlements/selection?app_id="+appID, nil)
	decodeInto(t, env.mustDo(http.MethodGet, "/api/v1/entitlements/resolve?app_id="+appID, nil), &resolved)
	if resolved.Data.Selected {
		t.Fatal("expected selection to be cleared")
	}
}

func TestE2E_LicenseImportSelectRevoke(t *testing.T) {
	env := newEnv(t)
	certificate := env.authorCertificate()
	assertion := env.licenseAssertion("lic-1", 24*time.Hour)

	var imported struct {
		Data struct {
			JTI    string `json:"JTI"`
			Status string `json:"Status"`
		} `json:"data"`
	}
	decodeInto(t, env.mustDo(http.MethodPost, "/api/v1/licenses/import", map[string]string{
		"license_assertion":  assertion,
		"author_certificate": certificate,
	}), &imported)
	if imported.Data.Status != "active" || imported.Data.JTI != "lic-1" {
		t.Fatalf("unexpected import result: %+v", imported.Data)
	}

	env.mustDo(http.MethodPut, "/api/v1/licenses/selection", map[string]string{
		"app_id": appID,
		"jti":    "lic-1",
	})

	var selected struct {
		Data struct {
			JTI string `json:"JTI"`
		} `json:"data"`
	}
	decodeInto(t, env.mustDo(http.MethodGet, "/api/v1/licenses/selection?app_id="+appID, nil), &selected)
	if selected.Data.JTI != "lic-1" {
		t.Fatalf("expected lic-1 selected, got %q", selected.Data.JTI)
	}

	env.mustDo(http.MethodPost, "/api/v1/revocations", map[string]string{
		"type":  "license_jti",
		"value": "lic-1",
	})

	var report struct {
		Data struct {
			Valid         bool   `json:"valid"`
			ChainVerified bool   `json:"chain_verified"`
			Status        string `json:"status"`
		} `json:"data"`
	}
	decodeInto(t, env.mustDo(http.MethodPost, "/api/v1/licenses/validate", map[string]string{
		"license_assertion":  assertion,
		"author_certificate": certificate,
	}), &report)
	if report.Data.Valid || !report.Data.ChainVerified || report.Data.Status != "revoked" {
		t.Fatalf("expected revoked report, got %+v", report.Data)
	}

	env.mustDo(http.MethodDelete, "/api/v1/licenses/lic-1", nil)
	status, _ := env.do(http.MethodGet, "/api/v1/licenses/selection?app_id="+appID, tenantID, nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 after delete, got %d", status)
	}
}

func TestE2E_LicenseImportRejectsForgery(t *testing.T) {
	env := newEnv(t)

	// Certificate signed by the author key instead of the root.
	forged := env.sign(env.authorPriv, "root-1", trustchain.AuthorCertificateClaims{
		TokenType: trustchain.TokenTypeAuthorCertificate,
		Keys:      map[string]string{"author-key-1": trustchain.EncodePublicKey(env.authorPub)},
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:  rootIssuer,
			Subject: authorID,
		},
	})
	status, body := env.do(http.MethodPost, "/api/v1/licenses/import", tenantID, map[string]string{
		"license_assertion":  env.licenseAssertion("lic-forged", 24*time.Hour),
		"author_certificate": forged,
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for forged chain, got %d: %s", status, body)
	}
}

func TestE2E_OfflineIngestWinsResolution(t *testing.T) {
	env := newEnv(t)
	audience := env.audienceID()

	env.mustDo(http.MethodPost, "/api/v1/entitlements", map[string]interface{}{
		"app_id":     appID,
		"source":     "online",
		"tier":       "enterprise",
		"valid_from": env.clk.Now().Add(-time.Hour).Format(time.RFC3339),
		"valid_to":   env.clk.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})

	var ingested struct {
		Data struct {
			TimeWarning bool `json:"time_warning"`
		} `json:"data"`
	}
	decodeInto(t, env.mustDo(http.MethodPost, "/api/v1/entitlements/offline", map[string]string{
		"token": env.offlineGrant("grant-1", "trial", audience),
	}), &ingested)
	if ingested.Data.TimeWarning {
		t.Fatal("unexpected time warning for a current grant")
	}

	// Offline source outranks online regardless of tier.
	var resolved struct {
		Data struct {
			Entitlement struct {
				Source string `json:"Source"`
				Tier   string `json:"Tier"`
			} `json:"entitlement"`
		} `json:"data"`
	}
	decodeInto(t, env.mustDo(http.MethodGet, "/api/v1/entitlements/resolve?app_id="+appID, nil), &resolved)
	if resolved.Data.Entitlement.Source != "offline" || resolved.Data.Entitlement.Tier != "trial" {
		t.Fatalf("expected offline trial winner, got %+v", resolved.Data.Entitlement)
	}

	var records struct {
		Data []map[string]interface{} `json:"data"`
	}
	decodeInto(t, env.mustDo(http.MethodGet, "/api/v1/entitlements/offline?app_id="+appID, nil), &records)
	if len(records.Data) != 1 {
		t.Fatalf("expected 1 audit record, got %d", len(records.Data))
	}
}

func TestE2E_OfflineIngestFailureIsAudited(t *testing.T) {
	env := newEnv(t)
	audience := env.audienceID()

	grant := env.offlineGrant("grant-1", "premium", audience)
	status, body := env.do(http.MethodPost, "/api/v1/entitlements/offline", tenantID, map[string]string{
		"token": grant,
	})
	if status != http.StatusUnprocessableEntity {
		t.Fatalf("expected 422 for unknown tier, got %d: %s", status, body)
	}

	var records struct {
		Data []map[string]interface{} `json:"data"`
	}
	decodeInto(t, env.mustDo(http.MethodGet, "/api/v1/entitlements/offline?app_id="+appID, nil), &records)
	if len(records.Data) != 1 {
		t.Fatalf("expected the failed attempt audited, got %d records", len(records.Data))
	}

	resolveStatus, _ := env.do(http.MethodGet, "/api/v1/entitlements/resolve?app_id="+appID, tenantID, nil)
	if resolveStatus != http.StatusNotFound {
		t.Fatalf("expected no entitlement after failed ingest, got %d", resolveStatus)
	}
}

func TestE2E_TenantsAreIsolated(t *testing.T) {
	env := newEnv(t)

	env.mustDo(http.MethodPost, "/api/v1/entitlements", map[string]interface{}{
		"app_id":     appID,
		"source":     "online",
		"tier":       "standard",
		"valid_from": env.clk.Now().Add(-time.Hour).Format(time.RFC3339),
		"valid_to":   env.clk.Now().Add(24 * time.Hour).Format(time.RFC3339),
	})

	status, _ := env.do(http.MethodGet, "/api/v1/entitlements/resolve?app_id="+appID, "tenant-b", nil)
	if status != http.StatusNotFound {
		t.Fatalf("expected 404 for foreign tenant, got %d", status)
	}
}
