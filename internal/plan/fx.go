package plan

import (
	"github.com/Boateng555/smartmailbox/internal/plan/repository"
	"github.com/Boateng555/smartmailbox/internal/plan/service"
	"go.uber.org/fx"
)

var Module = fx.Module("plan.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
