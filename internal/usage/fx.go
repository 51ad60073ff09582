package usage

import (
	"github.com/Boateng555/smartmailbox/internal/usage/repository"
	"github.com/Boateng555/smartmailbox/internal/usage/service"
	"go.uber.org/fx"
)

var Module = fx.Module("usage.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
