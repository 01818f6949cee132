package offlinetoken

import (
	"github.com/atriumhq/atrium/internal/offlinetoken/repository"
	"github.com/atriumhq/atrium/internal/offlinetoken/service"
	"go.uber.org/fx"
)

var Module = fx.Module("offlinetoken.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
