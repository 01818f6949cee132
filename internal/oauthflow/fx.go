package oauthflow

import (
	"github.com/atriumhq/atrium/internal/oauthflow/repository"
	"github.com/atriumhq/atrium/internal/oauthflow/service"
	"github.com/atriumhq/atrium/internal/oauthflow/state"
	"go.uber.org/fx"
)

var Module = fx.Module("oauthflow.service",
	fx.Provide(state.New),
	fx.Provide(repository.Provide),
	fx.Provide(service.New),
)
