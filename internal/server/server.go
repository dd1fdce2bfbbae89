package server

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/smallbiznis/banca/internal/cache"
	"github.com/smallbiznis/banca/internal/catalog"
	catalogdomain "github.com/smallbiznis/banca/internal/catalog/domain"
	"github.com/smallbiznis/banca/internal/config"
	"github.com/smallbiznis/banca/internal/dashboard"
	dashboarddomain "github.com/smallbiznis/banca/internal/dashboard/domain"
	"github.com/smallbiznis/banca/internal/inventory"
	"github.com/smallbiznis/banca/internal/observability"
	obslogger "github.com/smallbiznis/banca/internal/observability/logger"
	obsmetrics "github.com/smallbiznis/banca/internal/observability/metrics"
	obstracing "github.com/smallbiznis/banca/internal/observability/tracing"
	"github.com/smallbiznis/banca/internal/order"
	orderdomain "github.com/smallbiznis/banca/internal/order/domain"
	"github.com/smallbiznis/banca/internal/orderevents"
	"github.com/smallbiznis/banca/internal/payment"
	paymentdomain "github.com/smallbiznis/banca/internal/payment/domain"
	"github.com/smallbiznis/banca/internal/payment/reconcile"
	"github.com/smallbiznis/banca/internal/payment/webhook"
	"github.com/smallbiznis/banca/internal/ratelimit"
	"github.com/smallbiznis/banca/internal/receipt"
	"github.com/smallbiznis/banca/internal/salesreport"
	"github.com/smallbiznis/banca/internal/statuslog"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.uber.org/fx"
	"go.uber.org/zap"
)

var Module = fx.Module("http.server",
	cache.Module,
	ratelimit.Module,
	orderevents.Module,
	statuslog.Module,
	inventory.Module,
	catalog.Module,
	order.Module,
	payment.Module,
	dashboard.Module,
	salesreport.Module,
	receipt.Module,
	fx.Provide(NewEngine),
	fx.Provide(NewServer),
	fx.Invoke(func(*Server) {}),
	fx.Invoke(RunHTTP),
)

func NewEngine(obsCfg observability.Config, tp *sdktrace.TracerProvider, httpMetrics *obsmetrics.HTTPMetrics) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(obslogger.GinMiddleware(obslogger.MiddlewareConfig{
		Debug:           obsCfg.Debug(),
		ErrorClassifier: classifyErrorForLog,
	}))
	r.Use(obstracing.GinMiddleware(tp))
	r.Use(httpMetrics.GinMiddleware())
	r.Use(ErrorHandlingMiddleware())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"ok": true})
	})
	r.GET("/metrics", gin.WrapH(promhttp.Handler()))

	return r
}

func RunHTTP(lc fx.Lifecycle, cfg config.Config, r *gin.Engine, log *zap.Logger) {
	srv := &http.Server{
		Addr:              cfg.HTTPAddr,
		Handler:           r,
		ReadHeaderTimeout: 10 * time.Second,
	}

	lc.Append(fx.Hook{
		OnStart: func(ctx context.Context) error {
			go func() {
				log.Info("http server listening", zap.String("addr", srv.Addr))
				if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
					log.Fatal("http server failed", zap.Error(err))
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
	engine       *gin.Engine
	cfg          config.Config
	log          *zap.Logger
	catalogSvc   catalogdomain.Service
	orderSvc     orderdomain.Service
	paymentSvc   paymentdomain.Service
	reconciler   *reconcile.Engine
	webhooks     *webhook.Service
	dashboardSvc dashboarddomain.Service
	reports      *salesreport.Service
	receipts     *receipt.Renderer
	hub          *orderevents.Hub
	limiter      *ratelimit.RequestLimiter
	obsMetrics   *obsmetrics.Metrics

	heartbeat time.Duration
}

type ServerParams struct {
	fx.In

	Gin          *gin.Engine
	Cfg          config.Config
	Log          *zap.Logger
	CatalogSvc   catalogdomain.Service
	OrderSvc     orderdomain.Service
	PaymentSvc   paymentdomain.Service
	Reconciler   *reconcile.Engine
	Webhooks     *webhook.Service
	DashboardSvc dashboarddomain.Service
	Reports      *salesreport.Service
	Receipts     *receipt.Renderer
	Hub          *orderevents.Hub
	Limiter      *ratelimit.RequestLimiter `optional:"true"`
	ObsMetrics   *obsmetrics.Metrics       `optional:"true"`
}

func NewServer(p ServerParams) *Server {
	s := &Server{
		engine:       p.Gin,
		cfg:          p.Cfg,
		log:          p.Log.Named("http.server"),
		catalogSvc:   p.CatalogSvc,
		orderSvc:     p.OrderSvc,
		paymentSvc:   p.PaymentSvc,
		reconciler:   p.Reconciler,
		webhooks:     p.Webhooks,
		dashboardSvc: p.DashboardSvc,
		reports:      p.Reports,
		receipts:     p.Receipts,
		hub:          p.Hub,
		limiter:      p.Limiter,
		obsMetrics:   p.ObsMetrics,
		heartbeat:    15 * time.Second,
	}
	s.registerCatalogRoutes()
	s.registerOrderRoutes()
	s.registerPaymentRoutes()
	s.registerAdminRoutes()
	return s
}

func (s *Server) Engine() *gin.Engine {
	return s.engine
}

func (s *Server) registerCatalogRoutes() {
	api := s.engine.Group("/api")
	catalogStaff := s.RequireRoutes(dashboarddomain.RouteCatalog)

	api.GET("/items", s.ListItems)
	api.GET("/items/:id", s.GetItem)
	api.POST("/items", s.AuthRequired(), catalogStaff, s.CreateItem)
	api.PATCH("/items/:id", s.AuthRequired(), catalogStaff, s.UpdateItem)
	api.DELETE("/items/:id", s.AuthRequired(), catalogStaff, s.DeleteItem)
	api.POST("/items/toggle_active", s.AuthRequired(), catalogStaff, s.ToggleItemActive)
	api.PATCH("/items/update_item", s.AuthRequired(), catalogStaff, s.UpdateItemByBody)

	api.GET("/categories", s.ListCategories)
	api.GET("/category-order", s.ListCategoryOrders)
	api.POST("/category-order", s.AuthRequired(), catalogStaff, s.CreateCategoryOrder)
	api.PATCH("/category-order/:id", s.AuthRequired(), catalogStaff, s.UpdateCategoryOrder)
	api.DELETE("/category-order/:id", s.AuthRequired(), catalogStaff, s.DeleteCategoryOrder)
}

func (s *Server) registerOrderRoutes() {
	api := s.engine.Group("/api")
	orderStaff := s.RequireRoutes(dashboarddomain.RouteOrders, dashboarddomain.RouteKitchen)

	api.POST("/orders", s.RateLimit(ratelimit.EndpointOrderCreate), s.CreateOrder)
	api.GET("/orders/events", s.StreamOrderEvents)
	api.GET("/orders/:id", s.GetOrder)
	api.GET("/orders/:id/status", s.GetOrderStatus)

	api.GET("/orders", s.AuthRequired(), orderStaff, s.ListOrders)
	api.PATCH("/orders/:id/status", s.AuthRequired(), orderStaff, s.UpdateOrderStatus)
	api.GET("/orders/:id/history", s.AuthRequired(), orderStaff, s.GetOrderHistory)
	api.GET("/orders/:id/receipt.pdf", s.AuthRequired(), orderStaff, s.GetOrderReceipt)
}

func (s *Server) registerPaymentRoutes() {
	payments := s.engine.Group("/api/payments")
	payments.POST("/preference", s.CreatePreference)
	payments.POST("/pix", s.CreatePixCharge)
	payments.POST("/webhook", s.HandlePaymentWebhook)
	payments.POST("/sync", s.SyncPayment)
	payments.GET("/:order_id", s.AuthRequired(), s.RequireRoutes(dashboarddomain.RoutePayments), s.GetPayment)
}

func (s *Server) registerAdminRoutes() {
	admin := s.engine.Group("/api/admin")

	admin.POST("/auth/login", s.RateLimit(ratelimit.EndpointLogin), s.Login)
	admin.POST("/auth/logout", s.Logout)
	admin.GET("/auth/me", s.AuthRequired(), s.Me)
	admin.GET("/routes", s.AuthRequired(), s.ListRoutes)

	users := admin.Group("/users", s.AuthRequired(), s.RequireRoutes(dashboarddomain.RouteUsers))
	users.GET("", s.ListUsers)
	users.POST("", s.CreateUser)
	users.PATCH("/:id", s.UpdateUser)
	users.DELETE("/:id", s.DeleteUser)

	reports := admin.Group("", s.AuthRequired(), s.RequireRoutes(dashboarddomain.RouteReports))
	reports.GET("/metrics", s.GetMetrics)
	reports.GET("/metrics/history", s.GetMetricsHistory)
	reports.POST("/reset-sales", s.ResetSales)
}
