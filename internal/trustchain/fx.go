package trustchain

import (
	"fmt"

	"github.com/atriumhq/atrium/internal/clock"
	"github.com/atriumhq/atrium/internal/config"
	platformdomain "github.com/atriumhq/atrium/internal/platformid/domain"
	revocationdomain "github.com/atriumhq/atrium/internal/revocation/domain"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

type Params struct {
	fx.In

	Cfg         config.Config
	Log         *zap.Logger
	Revocations revocationdomain.Service
	Platform    platformdomain.Service
	Clock       clock.Clock
}

func Provide(p Params) (*Verifier, error) {
	rootKeys, err := ParseKeySet(p.Cfg.RootKeys)
	if err != nil {
		return nil, fmt.Errorf("root key set: %w", err)
	}
	return NewVerifier(rootKeys, p.Cfg.RootIssuer, p.Revocations, p.Platform, p.Clock, p.Log), nil
}

var Module = fx.Module("trustchain",
	fx.Provide(Provide),
)
