package main

import (
	"github.com/bwmarrin/snowflake"
	"go.uber.org/fx"

	"github.com/Boateng555/smartmailbox/internal/billing"
	"github.com/Boateng555/smartmailbox/internal/clock"
	"github.com/Boateng555/smartmailbox/internal/config"
	"github.com/Boateng555/smartmailbox/internal/device"
	"github.com/Boateng555/smartmailbox/internal/logger"
	"github.com/Boateng555/smartmailbox/internal/metrics"
	"github.com/Boateng555/smartmailbox/internal/plan"
	"github.com/Boateng555/smartmailbox/internal/scheduler"
	"github.com/Boateng555/smartmailbox/internal/seed"
	"github.com/Boateng555/smartmailbox/internal/server"
	"github.com/Boateng555/smartmailbox/internal/subscription"
	"github.com/Boateng555/smartmailbox/internal/usage"
	"github.com/Boateng555/smartmailbox/pkg/db"
)

func main() {
	app := fx.New(
		// Core infrastructure
		config.Module,
		logger.Module,
		fx.Provide(RegisterSnowflake),
		db.Module,
		clock.Module,
		metrics.Module,

		// Functional domains
		plan.Module,
		subscription.Module,
		device.Module,
		usage.Module,
		billing.Module,

		seed.Module,
		scheduler.Module,
		server.Module,
	)
	app.Run()
}

func RegisterSnowflake() *snowflake.Node {
	node, err := snowflake.NewNode(1)
	if err != nil {
		panic(err)
	}
	return node
}
