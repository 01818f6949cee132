package license

import (
	"github.com/atriumhq/atrium/internal/license/repository"
	"github.com/atriumhq/atrium/internal/license/service"
	"go.uber.org/fx"
)

var Module = fx.Module("license.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
