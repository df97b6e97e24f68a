package http

import (
	"github.com/gin-gonic/gin"
	"go.opentelemetry.io/contrib/instrumentation/github.com/gin-gonic/gin/otelgin"

	httpH "github.com/yungbote/sciencelab-batchserver/internal/http/handlers"
	httpMW "github.com/yungbote/sciencelab-batchserver/internal/http/middleware"
	"github.com/yungbote/sciencelab-batchserver/internal/observability"
	"github.com/yungbote/sciencelab-batchserver/internal/platform/logger"
)

type RouterConfig struct {
	Log     *logger.Logger
	Metrics *observability.Metrics

	// ServiceName names the server span; empty disables otelgin.
	ServiceName      string
	MinClientVersion string
	CORSOrigins      []string

	BatchHandler  *httpH.BatchHandler
	HealthHandler *httpH.HealthHandler
}

func NewRouter(cfg RouterConfig) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	if cfg.ServiceName != "" {
		r.Use(otelgin.Middleware(cfg.ServiceName))
	}
	r.Use(httpMW.AttachTraceContext())
	r.Use(httpMW.RequestLogger(cfg.Log))
	r.Use(httpMW.Metrics(cfg.Metrics))
	r.Use(httpMW.CORS(cfg.CORSOrigins))

	// Health
	if cfg.HealthHandler != nil {
		r.GET("/healthcheck", cfg.HealthHandler.HealthCheck)
	}
	if cfg.Metrics != nil {
		r.GET("/metrics", gin.WrapH(cfg.Metrics.Handler()))
	}

	if cfg.BatchHandler != nil {
		versionGate := httpMW.RequireClientVersion(cfg.Log, cfg.MinClientVersion)

		batch := r.Group("/batch")
		{
			batch.GET("/new", versionGate, cfg.BatchHandler.NewBatch)
			batch.POST("/output", cfg.BatchHandler.UploadOutput)
			batch.POST("/cancel", cfg.BatchHandler.Cancel)
		}

		// Routes used by already-deployed lab containers.
		legacy := r.Group("/api/Batch")
		{
			legacy.GET("/GetNewBatch", versionGate, cfg.BatchHandler.NewBatch)
			legacy.POST("/UploadOutput", cfg.BatchHandler.UploadOutput)
			legacy.POST("/CancelInputs", cfg.BatchHandler.Cancel)
		}
	}

	return r
}
