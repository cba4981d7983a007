package profile

import (
	"github.com/smallbiznis/tradeboard/internal/profile/repository"
	"github.com/smallbiznis/tradeboard/internal/profile/service"
	"go.uber.org/fx"
)

var Module = fx.Module("profile.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
