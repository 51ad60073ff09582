package billing

import (
	"go.uber.org/fx"

	"github.com/Boateng555/smartmailbox/internal/billing/provider"
	"github.com/Boateng555/smartmailbox/internal/billing/repository"
	"github.com/Boateng555/smartmailbox/internal/billing/service"
)

var Module = fx.Module("billing.service",
	fx.Provide(repository.Provide),
	fx.Provide(provider.NewStripe),
	fx.Provide(service.NewService),
)
