package transport

import (
	"net/http"

	"github.com/ds124wfegd/comment-tree/internal/entity"

	"github.com/gin-gonic/gin"
)

func (h *CommentHandler) CreateComment(c *gin.Context) {
	var req entity.CreateCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	// top level only for a missing or null parent_id
	parentID := entity.RootID
	if req.ParentID != nil {
		if *req.ParentID <= entity.RootID {
			c.JSON(http.StatusNotFound, gin.H{"error": "parent comment not found"})
			return
		}
		parentID = *req.ParentID
	}

	comment, err := h.service.Insert(c.Request.Context(), parentID, req.Author, req.Text)
	warning, ok := warningOf(err)
	if !ok {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusCreated, entity.CommentResponse{Comment: comment, Warning: warning})
}

func (h *CommentHandler) sortOrder(c *gin.Context) (entity.SortOrder, error) {
	if c.Query("sort") == "" {
		return h.service.DefaultSort(), nil
	}
	return entity.ParseSortOrder(c.Query("sort"))
}

func (h *CommentHandler) GetComments(c *gin.Context) {
	order, err := h.sortOrder(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	tree := h.service.SortedView(order)

	c.JSON(http.StatusOK, entity.CommentsResponse{
		Comments: tree,
		Total:    tree.Count(),
		Sort:     order,
		Warning:  h.service.LastWarning(),
	})
}

func (h *CommentHandler) GetComment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	comment, err := h.service.Get(id)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entity.CommentResponse{Comment: comment})
}

func (h *CommentHandler) EditComment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	var req entity.EditCommentRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	err := h.service.Edit(c.Request.Context(), id, req.Text)
	warning, ok := warningOf(err)
	if !ok {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	comment, err := h.service.Get(id)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entity.CommentResponse{Comment: comment, Warning: warning})
}

func (h *CommentHandler) DeleteComment(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}

	err := h.service.Delete(c.Request.Context(), id)
	warning, ok := warningOf(err)
	if !ok {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	resp := gin.H{"message": "comment deleted successfully"}
	if warning != "" {
		resp["warning"] = warning
	}
	c.JSON(http.StatusOK, resp)
}

func (h *CommentHandler) SearchComments(c *gin.Context) {
	order, err := h.sortOrder(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	results, err := h.service.Search(c.Query("q"), order)
	if err != nil {
		c.JSON(errorStatus(err), gin.H{"error": err.Error()})
		return
	}

	c.JSON(http.StatusOK, entity.CommentsResponse{
		Comments: results,
		Total:    len(results),
		Sort:     order,
	})
}

func (h *CommentHandler) GetStats(c *gin.Context) {
	c.JSON(http.StatusOK, h.service.Stats())
}
