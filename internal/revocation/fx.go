package revocation

import (
	"github.com/atriumhq/atrium/internal/revocation/repository"
	"github.com/atriumhq/atrium/internal/revocation/service"
	"go.uber.org/fx"
)

var Module = fx.Module("revocation.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
