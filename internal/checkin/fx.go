package checkin

import (
	"github.com/smallbiznis/tradeboard/internal/checkin/service"
	"go.uber.org/fx"
)

var Module = fx.Module("checkin.service",
	fx.Provide(service.NewService),
)
