package api

import (
	"time"

	"github.com/gin-gonic/gin"

	"baborette-reconciliation-service/pkg/logger"
)

// NewRouter assembles the gin engine with the reconciliation routes.
func NewRouter(h *Handler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	r := gin.New()
	r.Use(gin.Recovery())
	r.Use(requestLogger())

	r.GET("/health", h.Health)

	v1 := r.Group("/api/v1")
	{
		v1.POST("/reconciliacoes", h.CreateReconciliation)
		v1.GET("/reconciliacoes", h.ListReconciliations)
		v1.GET("/reconciliacoes/:id", h.GetReconciliation)
		v1.PUT("/reconciliacoes/:id/itens/:itemId", h.UpdateItem)
		v1.POST("/reconciliacoes/:id/revisao", h.StartReview)
		v1.PUT("/reconciliacoes/:id/notas", h.UpdateNotas)
	}

	return r
}

func requestLogger() gin.HandlerFunc {
	log := logger.GetGlobalLogger().WithComponent("http")
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		log.WithFields(logger.Fields{
			"method":   c.Request.Method,
			"path":     c.Request.URL.Path,
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		}).Info("request handled")
	}
}
