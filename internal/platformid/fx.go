package platformid

import (
	"github.com/atriumhq/atrium/internal/platformid/repository"
	"github.com/atriumhq/atrium/internal/platformid/service"
	"go.uber.org/fx"
)

var Module = fx.Module("platformid.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
