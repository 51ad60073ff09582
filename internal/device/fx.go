package device

import (
	"github.com/Boateng555/smartmailbox/internal/device/repository"
	"github.com/Boateng555/smartmailbox/internal/device/service"
	"go.uber.org/fx"
)

var Module = fx.Module("device.service",
	fx.Provide(repository.Provide),
	fx.Provide(service.NewService),
)
