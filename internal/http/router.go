package httpapi

import (
	"strings"
	"time"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"

	"github.com/civic_complaints/backend/internal/app"
	"github.com/civic_complaints/backend/internal/http/handlers"
	"github.com/civic_complaints/backend/internal/http/middleware"

	_ "github.com/civic_complaints/backend/docs"
)

func Router(a *app.App) *gin.Engine {
	cfg := a.Config
	if cfg.Env != "dev" {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Logger(a.Logger))

	corsCfg := cors.Config{
		AllowMethods:     []string{"GET", "POST", "OPTIONS"},
		AllowHeaders:     []string{"Origin", "Content-Type", "Accept", "Authorization", middleware.AdminKeyHeader, middleware.RequestIDHeader},
		ExposeHeaders:    []string{middleware.RequestIDHeader},
		AllowCredentials: true,
		MaxAge:           12 * time.Hour,
	}
	if cfg.CORSAllowed == "*" || cfg.CORSAllowed == "" {
		corsCfg.AllowAllOrigins = true
		corsCfg.AllowCredentials = false
	} else {
		corsCfg.AllowOrigins = strings.Split(cfg.CORSAllowed, ",")
	}
	r.Use(cors.New(corsCfg))

	h := &handlers.Handler{
		Store:      a.Store,
		Automation: a.Scheduler,
		Classifier: a.Classifier,
		Scorer:     a.Scorer,
		Selector:   a.Selector,
		Executor:   a.Executor,
		Tiers:      a.Rebalancer.Tiers,
		Validator:  validator.New(),
		Logger:     a.Logger,
	}

	r.GET("/healthz", h.Healthz)
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(a.Registry, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	{
		api.GET("/complaints/:id", h.ComplaintDetails)
		api.GET("/staff", h.StaffList)
		api.GET("/scheduler/status", h.SchedulerStatus)
		api.GET("/runs/latest", h.RunsLatest)
	}

	admin := api.Group("")
	admin.Use(middleware.AdminKey(cfg.AdminKey))
	{
		admin.POST("/process", h.Process)
		admin.POST("/rebalance", h.Rebalance)
		admin.POST("/complaints/:id/assign", h.Assign)
		admin.POST("/debug/classify", h.DebugClassify)
		admin.GET("/debug/selection", h.DebugSelection)
	}

	r.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	return r
}
