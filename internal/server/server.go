// Package server exposes the HTTP API for devices, subscriptions and
// billing webhooks.
package server

import (
	"context"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/fx"
	"go.uber.org/zap"
	"gorm.io/gorm"

	billingdomain "github.com/Boateng555/smartmailbox/internal/billing/domain"
	"github.com/Boateng555/smartmailbox/internal/config"
	devicedomain "github.com/Boateng555/smartmailbox/internal/device/domain"
	"github.com/Boateng555/smartmailbox/internal/metrics"
	plandomain "github.com/Boateng555/smartmailbox/internal/plan/domain"
	"github.com/Boateng555/smartmailbox/internal/scheduler"
	subscriptiondomain "github.com/Boateng555/smartmailbox/internal/subscription/domain"
	usagedomain "github.com/Boateng555/smartmailbox/internal/usage/domain"
)

var Module = fx.Module("http.server",
	fx.Provide(NewEngine),
	fx.Invoke(NewServer),
	fx.Invoke(run),
)

func NewEngine(cfg config.Config) *gin.Engine {
	if cfg.Environment == "production" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func run(lc fx.Lifecycle, cfg config.Config, log *zap.Logger, r *gin.Engine) {
	srv := &http.Server{
		Addr:    cfg.HTTPAddr,
		Handler: r,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", cfg.HTTPAddr))
				if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
					panic(err)
				}
			}()
			return nil
		},
		OnStop: func(ctx context.Context) error {
			shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
			defer cancel()
			return srv.Shutdown(shutdownCtx)
		},
	})
}

type Server struct {
	engine *gin.Engine
	cfg    config.Config
	db     *gorm.DB
	log    *zap.Logger

	plansvc         plandomain.Service
	subscriptionSvc subscriptiondomain.Service
	devicesvc       devicedomain.Service
	usagesvc        usagedomain.Service
	billingSvc      billingdomain.Service
	metrics         *metrics.Metrics

	scheduler *scheduler.Scheduler
}

type ServerParams struct {
	fx.In

	Gin *gin.Engine
	Cfg config.Config
	DB  *gorm.DB
	Log *zap.Logger

	Plansvc         plandomain.Service
	SubscriptionSvc subscriptiondomain.Service
	Devicesvc       devicedomain.Service
	Usagesvc        usagedomain.Service
	BillingSvc      billingdomain.Service
	Metrics         *metrics.Metrics

	Scheduler *scheduler.Scheduler
}

func NewServer(p ServerParams) *Server {
	svc := &Server{
		engine: p.Gin,
		cfg:    p.Cfg,
		db:     p.DB,
		log:    p.Log.Named("http.server"),

		plansvc:         p.Plansvc,
		subscriptionSvc: p.SubscriptionSvc,
		devicesvc:       p.Devicesvc,
		usagesvc:        p.Usagesvc,
		billingSvc:      p.BillingSvc,
		metrics:         p.Metrics,

		scheduler: p.Scheduler,
	}

	svc.registerAPIRoutes()

	return svc
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerAPIRoutes() {
	api := s.engine.Group("/api")

	// -------- Plans --------
	api.GET("/plans", s.ListPlans)

	// -------- Subscriptions --------
	api.POST("/subscriptions/trial", s.StartTrial)
	api.GET("/subscriptions/:id", s.GetSubscriptionByID)
	api.POST("/subscriptions/:id/cancel", s.CancelSubscription)
	api.GET("/subscriptions/:id/payments", s.ListSubscriptionPayments)

	// -------- Devices --------
	api.POST("/devices", s.RegisterDevice)
	api.GET("/devices/:id", s.GetDeviceByID)
	api.POST("/devices/:id/claim", s.ClaimDevice)
	api.POST("/devices/:id/heartbeat", s.DeviceHeartbeat)
	api.POST("/devices/:id/capture", s.DeviceCapture)
	api.GET("/devices/:id/usage", s.GetDeviceUsage)

	// -------- Payment Webhooks --------
	api.POST("/webhooks/stripe", s.HandleStripeWebhook)

	// -------- Jobs --------
	// Manual triggers for the sweeps the scheduler runs on its interval.
	api.POST("/jobs/billing-sweep", s.TriggerBillingSweep)
	api.POST("/jobs/suspension-sweep", s.TriggerSuspensionSweep)
}
