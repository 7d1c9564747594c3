// Package router wires the QA routes onto the gin engine.
package router

import (
	"github.com/gin-gonic/gin"
	"github.com/kart-io/logger"

	"github.com/courselab/course-qa/internal/qa/handler"
	"github.com/courselab/course-qa/pkg/middleware"
)

// New builds the gin engine with middleware and routes registered.
func New(qaHandler *handler.QAHandler) *gin.Engine {
	gin.SetMode(gin.ReleaseMode)

	engine := gin.New()
	engine.Use(
		middleware.RequestID(),
		middleware.Logger(),
		middleware.Recovery(),
	)

	engine.GET("/healthz", qaHandler.Healthz)

	v1 := engine.Group("/v1")
	{
		qa := v1.Group("/qa")
		{
			qa.POST("/answer", qaHandler.Answer)
			qa.POST("/index", qaHandler.Index)
			qa.GET("/stats", qaHandler.Stats)
			qa.GET("/courses", qaHandler.Courses)
		}
	}

	logger.Info("HTTP routes registered")
	return engine
}
