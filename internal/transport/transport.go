package transport

import (
	"net/http"
	"time"

	"github.com/ds124wfegd/comment-tree/internal/service"
	"github.com/ds124wfegd/comment-tree/internal/transport/middleware"

	"github.com/gin-gonic/gin"
)

// InitRoutes builds the HTTP surface of the comment tree. backend is only
// reported by the health check.
func InitRoutes(service *service.CommentService, backend string, timeout time.Duration) *gin.Engine {
	handler := NewCommentHandler(service)
	router := gin.New()

	// Middleware
	router.Use(gin.Recovery())
	router.Use(middleware.RequestID())
	router.Use(middleware.CORS())
	router.Use(middleware.Logger())
	router.Use(middleware.Timeout(timeout))

	api := router.Group("/comments")
	{
		api.POST("", handler.CreateComment)
		api.GET("", handler.GetComments)
		api.GET("/search", handler.SearchComments)
		api.GET("/stats", handler.GetStats)
		api.GET("/:id", handler.GetComment)
		api.PATCH("/:id", handler.EditComment)
		api.DELETE("/:id", handler.DeleteComment)
	}

	router.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{
			"status":  "ok",
			"service": "comment-tree",
			"storage": backend,
			"warning": service.LastWarning(),
		})
	})
	return router
}
