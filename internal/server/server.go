package server

import (
	"context"
	"net/http"
	"time"

	"github.com/atriumhq/atrium/internal/clock"
	"github.com/atriumhq/atrium/internal/config"
	"github.com/atriumhq/atrium/internal/entitlement"
	entitlementdomain "github.com/atriumhq/atrium/internal/entitlement/domain"
	"github.com/atriumhq/atrium/internal/license"
	licensedomain "github.com/atriumhq/atrium/internal/license/domain"
	"github.com/atriumhq/atrium/internal/oauthflow"
	oauthflowdomain "github.com/atriumhq/atrium/internal/oauthflow/domain"
	"github.com/atriumhq/atrium/internal/observability"
	obsmiddleware "github.com/atriumhq/atrium/internal/observability/logger"
	obsmetrics "github.com/atriumhq/atrium/internal/observability/metrics"
	obstracing "github.com/atriumhq/atrium/internal/observability/tracing"
	"github.com/atriumhq/atrium/internal/offlinetoken"
	offlinetokendomain "github.com/atriumhq/atrium/internal/offlinetoken/domain"
	"github.com/atriumhq/atrium/internal/platformid"
	platformdomain "github.com/atriumhq/atrium/internal/platformid/domain"
	"github.com/atriumhq/atrium/internal/revocation"
	revocationdomain "github.com/atriumhq/atrium/internal/revocation/domain"
	"github.com/atriumhq/atrium/internal/trustchain"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
)

var Module = fx.Module("http.server",
	clock.Module,
	fx.Provide(registerGin),
	platformid.Module,
	revocation.Module,
	trustchain.Module,
	entitlement.Module,
	offlinetoken.Module,
	license.Module,
	oauthflow.Module,
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obsmiddleware.GinMiddleware(obsmiddleware.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware())
	r.Use(obsmetrics.GinMiddleware(httpMetrics))
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func registerGin(obsCfg observability.Config, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	return NewEngine(obsCfg, httpMetrics)
}

func run(lc fx.Lifecycle, r *gin.Engine) {
	srv := &http.Server{
		Addr:    ":8080",
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine          *gin.Engine
	cfg             config.Config
	platformSvc     platformdomain.Service
	revocationSvc   revocationdomain.Service
	entitlementSvc  entitlementdomain.Service
	offlineTokenSvc offlinetokendomain.Service
	licenseSvc      licensedomain.Service
	oauthFlowSvc    oauthflowdomain.Service
}

type ServerParams struct {
	fx.In

	Gin             *gin.Engine
	Cfg             config.Config
	PlatformSvc     platformdomain.Service
	RevocationSvc   revocationdomain.Service
	EntitlementSvc  entitlementdomain.Service
	OfflineTokenSvc offlinetokendomain.Service
	LicenseSvc      licensedomain.Service
	OAuthFlowSvc    oauthflowdomain.Service
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine:          p.Gin,
		cfg:             p.Cfg,
		platformSvc:     p.PlatformSvc,
		revocationSvc:   p.RevocationSvc,
		entitlementSvc:  p.EntitlementSvc,
		offlineTokenSvc: p.OfflineTokenSvc,
		licenseSvc:      p.LicenseSvc,
		oauthFlowSvc:    p.OAuthFlowSvc,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api/v1")
	api.Use(TenantContext())

	api.GET("/instance", s.GetInstance)

	// -------- Entitlements --------
	api.POST("/entitlements", s.UpsertEntitlement)
	api.GET("/entitlements", s.ListEntitlements)
	api.GET("/entitlements/resolve", s.ResolveEntitlement)
	api.PUT("/entitlements/selection", s.SelectEntitlement)
	api.DELETE("/entitlements/selection", s.ClearEntitlementSelection)

	// -------- Offline tokens --------
	api.POST("/entitlements/offline", s.IngestOfflineToken)
	api.GET("/entitlements/offline", s.ListOfflineTokenRecords)

	// -------- Licenses --------
	api.GET("/licenses", s.ListLicenses)
	api.POST("/licenses/import", s.ImportLicense)
	api.POST("/licenses/validate", s.ValidateLicense)
	api.PUT("/licenses/selection", s.SelectLicense)
	api.GET("/licenses/selection", s.GetSelectedLicense)
	api.DELETE("/licenses/:jti", s.DeleteLicense)

	// -------- OAuth acquisition --------
	api.POST("/oauth/flows", s.StartOAuthFlow)
	api.GET("/oauth/callback", s.CompleteOAuthFlow)

	// -------- Revocations --------
	api.POST("/revocations", s.AddRevocation)
	api.GET("/revocations", s.ListRevocations)
}

func (s *Server) GetInstance(c *gin.Context) {
	instanceID, err := s.platformSvc.InstanceID(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}
	audienceID, err := s.platformSvc.AudienceID(c.Request.Context())
	if err != nil {
		AbortWithError(c, err)
		return
	}

	c.JSON(http.StatusOK, gin.H{"data": gin.H{
		"instance_id": instanceID,
		"audience_id": audienceID,
	}})
}
