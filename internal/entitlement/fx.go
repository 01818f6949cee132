package entitlement

import (
	"github.com/atriumhq/atrium/internal/entitlement/repository"
	"github.com/atriumhq/atrium/internal/entitlement/service"
	"go.uber.org/fx"
)

var Module = fx.Module("entitlement.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
