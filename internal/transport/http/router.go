package httptransport

import (
	"log/slog"
	"net/http"

	"github.com/gin-gonic/gin"
	sloggin "github.com/samber/slog-gin"

	"github.com/hrstream/employee-import/internal/health"
	"github.com/hrstream/employee-import/internal/transport/http/handler"
	"github.com/hrstream/employee-import/internal/transport/http/middleware"
)

func NewRouter(logger *slog.Logger, importHandler *handler.ImportHandler, checker *health.Checker) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(middleware.RequestID())
	r.Use(middleware.Security())
	r.Use(sloggin.New(logger))
	r.Use(middleware.Metrics())

	r.GET("/healthz", func(c *gin.Context) {
		c.JSON(http.StatusOK, checker.Liveness(c.Request.Context()))
	})
	r.GET("/readyz", func(c *gin.Context) {
		result := checker.Readiness(c.Request.Context())
		code := http.StatusOK
		if result.Status != "up" {
			code = http.StatusServiceUnavailable
		}
		c.JSON(code, result)
	})

	imports := r.Group("/employee-import")
	imports.POST("/upload", importHandler.Upload)
	imports.GET("/:id/progress", importHandler.Progress)
	imports.GET("/:id/errors", importHandler.Errors)
	imports.GET("/:id/summary", importHandler.Summary)

	return r
}
