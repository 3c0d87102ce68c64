package transport

import (
	"errors"
	"net/http"
	"strconv"

	"github.com/ds124wfegd/comment-tree/internal/entity"
	"github.com/ds124wfegd/comment-tree/internal/service"

	"github.com/gin-gonic/gin"
)

type CommentHandler struct {
	service *service.CommentService
}

func NewCommentHandler(service *service.CommentService) *CommentHandler {
	return &CommentHandler{
		service: service,
	}
}

func parseID(c *gin.Context) (int64, bool) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= entity.RootID {
		c.JSON(http.StatusBadRequest, gin.H{"error": "invalid comment id"})
		return 0, false
	}
	return id, true
}

func errorStatus(err error) int {
	switch {
	case errors.Is(err, entity.ErrValidation):
		return http.StatusBadRequest
	case errors.Is(err, entity.ErrNotFound):
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

// warningOf turns a persistence failure into a warning message. Any other
// error is reported back as not handled.
func warningOf(err error) (string, bool) {
	if err == nil {
		return "", true
	}
	if errors.Is(err, entity.ErrPersistence) {
		return err.Error(), true
	}
	return "", false
}
