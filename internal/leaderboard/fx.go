package leaderboard

import (
	"github.com/smallbiznis/tradeboard/internal/leaderboard/repository"
	"github.com/smallbiznis/tradeboard/internal/leaderboard/service"
	"go.uber.org/fx"
)

var Module = fx.Module("leaderboard.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
