// Package server maps the scale's HTTP endpoints and the
// read/write management API onto the ingestion, registry, and user
// directory services.
package server

import (
	"errors"
	"net/http"
	"time"

	"github.com/fitaria/scale-api/internal/ingestion"
	"github.com/fitaria/scale-api/internal/registry"
	"github.com/fitaria/scale-api/internal/userdirectory"
	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"gorm.io/gorm"
)

const requestIDContextKey = "scale_api_request_id"

var (
	errMissingDatabase      = errors.New("database dependency required")
	errMissingIngestion     = errors.New("ingestion service dependency required")
	errMissingRegistry      = errors.New("registry service dependency required")
	errMissingUserDirectory = errors.New("user directory service dependency required")
)

// Dependencies wires the services the HTTP surface dispatches onto.
type Dependencies struct {
	Database      *gorm.DB
	Ingestion     *ingestion.Service
	Registry      *registry.Service
	UserDirectory *userdirectory.Service
	MetricsReg    *prometheus.Registry
	Logger        *zap.Logger
}

// NewHTTPHandler builds the gin router serving both the scale wire
// protocol endpoints and the JSON management API.
func NewHTTPHandler(deps Dependencies) (http.Handler, error) {
	if deps.Database == nil {
		return nil, errMissingDatabase
	}
	if deps.Ingestion == nil {
		return nil, errMissingIngestion
	}
	if deps.Registry == nil {
		return nil, errMissingRegistry
	}
	if deps.UserDirectory == nil {
		return nil, errMissingUserDirectory
	}

	logger := deps.Logger
	if logger == nil {
		logger = zap.NewNop()
	}

	metricsRegistry := deps.MetricsReg
	if metricsRegistry == nil {
		metricsRegistry = prometheus.NewRegistry()
	}

	handler := &httpHandler{
		db:            deps.Database,
		ingestion:     deps.Ingestion,
		registry:      deps.Registry,
		userDirectory: deps.UserDirectory,
		logger:        logger,
		metrics:       newMetrics(metricsRegistry),
	}

	router := gin.New()
	router.Use(gin.Recovery())
	router.Use(assignRequestID)
	router.Use(cors.New(cors.Config{
		AllowOrigins: []string{"*"},
		AllowMethods: []string{http.MethodGet, http.MethodPost, http.MethodDelete, http.MethodOptions},
		AllowHeaders: []string{"Authorization", "Content-Type"},
		MaxAge:       12 * time.Hour,
	}))

	router.GET("/", handler.handleServiceInfo)

	router.GET("/scale/validate", handler.handleScaleValidate)
	router.GET("/scale/register", handler.handleScaleRegister)
	router.GET("/scale/setup", handler.handleScaleSetup)
	router.POST("/scale/upload", handler.handleScaleUpload)

	api := router.Group("/api")
	api.GET("/health", handler.handleHealth)
	api.GET("/scales", handler.handleListScales)
	api.GET("/measurements", handler.handleListMeasurements)
	api.GET("/measurements/latest", handler.handleLatestMeasurement)
	api.GET("/users", handler.handleListUsers)
	api.POST("/users", handler.handleCreateUser)
	api.DELETE("/users/:id", handler.handleDeleteUser)
	api.GET("/raw-uploads", handler.handleListRawUploads)

	metricsHandler := promhttp.HandlerFor(metricsRegistry, promhttp.HandlerOpts{})
	router.GET("/metrics", gin.WrapH(metricsHandler))

	router.NoRoute(handler.handleNoRoute)

	return router, nil
}

type httpHandler struct {
	db            *gorm.DB
	ingestion     *ingestion.Service
	registry      *registry.Service
	userDirectory *userdirectory.Service
	logger        *zap.Logger
	metrics       *metrics
}

func assignRequestID(c *gin.Context) {
	requestID, err := uuid.NewV7()
	if err != nil {
		c.Set(requestIDContextKey, "")
		c.Next()
		return
	}
	c.Set(requestIDContextKey, requestID.String())
	c.Header("X-Request-ID", requestID.String())
	c.Next()
}

func (h *httpHandler) requestID(c *gin.Context) string {
	return c.GetString(requestIDContextKey)
}

func (h *httpHandler) handleServiceInfo(c *gin.Context) {
	c.JSON(http.StatusOK, gin.H{
		"service": "scale-api",
		"version": "1.0.0",
		"endpoints": []string{
			"GET /scale/validate",
			"GET /scale/register",
			"GET /scale/setup",
			"POST /scale/upload",
			"GET /api/health",
			"GET /api/scales",
			"GET /api/measurements",
			"GET /api/measurements/latest",
			"GET /api/users",
			"POST /api/users",
			"DELETE /api/users/:id",
			"GET /api/raw-uploads",
			"GET /metrics",
		},
	})
}

func (h *httpHandler) handleNoRoute(c *gin.Context) {
	h.logger.Warn("unmatched route probed",
		zap.String("method", c.Request.Method),
		zap.String("path", c.Request.URL.Path),
		zap.String("request_id", h.requestID(c)))
	c.String(http.StatusOK, "OK")
}
