package main

import (
	"github.com/gin-gonic/gin"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"go.uber.org/zap"

	"github.com/noah-isme/drivingschool-api/internal/handler"
	"github.com/noah-isme/drivingschool-api/internal/middleware"
	"github.com/noah-isme/drivingschool-api/internal/models"
	"github.com/noah-isme/drivingschool-api/pkg/config"
	"github.com/noah-isme/drivingschool-api/pkg/logger"
	corsmiddleware "github.com/noah-isme/drivingschool-api/pkg/middleware/cors"
	reqidmiddleware "github.com/noah-isme/drivingschool-api/pkg/middleware/requestid"
)

// multipartOverhead is allowed on top of the proof size for the form fields.
const multipartOverhead = 1 << 20

type routeDeps struct {
	cfg         *config.Config
	logger      *zap.Logger
	auth        middleware.TokenValidator
	metrics     middleware.RequestObserver
	enrollments *handler.EnrollmentHandler
	schedules   *handler.ScheduleHandler
	ops         *handler.MetricsHandler
}

func newRouter(d routeDeps) *gin.Engine {
	if d.cfg.Env == config.EnvProduction {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(reqidmiddleware.Middleware())
	r.Use(logger.GinMiddleware(d.logger))
	r.Use(corsmiddleware.New(d.cfg.CORS.AllowedOrigins))
	r.Use(middleware.Metrics(d.metrics))

	r.GET("/health", d.ops.Health)
	r.GET("/ready", d.ops.Ready)
	r.GET("/metrics", d.ops.Prometheus)
	if d.cfg.Env != config.EnvProduction {
		r.GET("/docs/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))
	}

	authn := middleware.JWT(d.auth)
	staff := middleware.RequireRoles(models.RoleAdmin, models.RoleStaff)

	r.POST("/enroll", middleware.BodyLimit(d.cfg.Uploads.MaxFileSizeBytes+multipartOverhead), authn, d.enrollments.Enroll)

	api := r.Group(d.cfg.APIPrefix)
	api.GET("/proofs/:token", d.enrollments.DownloadProof)

	secured := api.Group("", authn)
	secured.GET("/schedules/with-availability", d.schedules.ListWithAvailability)
	secured.POST("/vehicles/check-availability", d.schedules.CheckVehicleAvailability)
	secured.DELETE("/schedules/:id", middleware.RequireRoles(models.RoleAdmin), d.schedules.Delete)

	backOffice := secured.Group("", staff)
	backOffice.GET("/schedules/:id/roster", d.schedules.ExportRoster)
	backOffice.GET("/enrollments/:id", d.enrollments.Get)
	backOffice.PATCH("/enrollments/:id/status", d.enrollments.UpdateStatus)
	backOffice.GET("/enrollments/:id/proof-url", d.enrollments.ProofURL)

	return r
}
