package subscription

import (
	"github.com/Boateng555/smartmailbox/internal/subscription/repository"
	"github.com/Boateng555/smartmailbox/internal/subscription/service"
	"go.uber.org/fx"
)

var Module = fx.Module("subscription.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
