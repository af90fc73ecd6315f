package api

import (
	"net/http"
	"strings"

	"github.com/gin-gonic/gin"

	"linkstash/internal/domain"
)

// TagRequest creates or renames a tag.
type TagRequest struct {
	Name     string `json:"name" binding:"required"`
	ColorTag string `json:"color_tag"`
}

// GroupRequest creates or changes a group.
type GroupRequest struct {
	Name     string `json:"name" binding:"required"`
	ColorTag string `json:"color_tag"`
	IconName string `json:"icon_name"`
}

func validName(name string) (string, bool) {
	name = strings.TrimSpace(name)
	return name, name != ""
}

// ListTags returns every tag ordered by name.
func (h *Handler) ListTags(c *gin.Context) {
	tags, err := h.store.Tags(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "tag")
		return
	}
	if tags == nil {
		tags = []domain.Tag{}
	}
	c.JSON(http.StatusOK, tags)
}

// CreateTag adds a tag.
func (h *Handler) CreateTag(c *gin.Context) {
	var req TagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, ok := validName(req.Name)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tag name is required"})
		return
	}

	tag := domain.NewTag(name)
	if req.ColorTag != "" {
		tag.ColorTag = req.ColorTag
	}
	if err := h.pipeline.InsertTag(c.Request.Context(), tag); err != nil {
		h.respondError(c, err, "tag")
		return
	}
	c.JSON(http.StatusCreated, tag)
}

// UpdateTag renames or recolours a tag.
func (h *Handler) UpdateTag(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req TagRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, ok := validName(req.Name)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Tag name is required"})
		return
	}

	tag, err := h.store.Tag(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "tag")
		return
	}
	tag.Name = name
	if req.ColorTag != "" {
		tag.ColorTag = req.ColorTag
	}
	if err := h.pipeline.UpdateTag(c.Request.Context(), tag); err != nil {
		h.respondError(c, err, "tag")
		return
	}
	c.JSON(http.StatusOK, tag)
}

// DeleteTag removes a tag.
func (h *Handler) DeleteTag(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	tag, err := h.store.Tag(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "tag")
		return
	}
	if err := h.pipeline.DeleteTag(c.Request.Context(), tag); err != nil {
		h.respondError(c, err, "tag")
		return
	}
	c.Status(http.StatusNoContent)
}

// ListGroups returns every group ordered by name.
func (h *Handler) ListGroups(c *gin.Context) {
	groups, err := h.store.Groups(c.Request.Context())
	if err != nil {
		h.respondError(c, err, "group")
		return
	}
	if groups == nil {
		groups = []domain.Group{}
	}
	c.JSON(http.StatusOK, groups)
}

// CreateGroup adds a group.
func (h *Handler) CreateGroup(c *gin.Context) {
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, ok := validName(req.Name)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Group name is required"})
		return
	}

	group := domain.NewGroup(name, req.IconName)
	if req.ColorTag != "" {
		group.ColorTag = req.ColorTag
	}
	if err := h.pipeline.InsertGroup(c.Request.Context(), group); err != nil {
		h.respondError(c, err, "group")
		return
	}
	c.JSON(http.StatusCreated, group)
}

// UpdateGroup changes a group's name, colour or icon.
func (h *Handler) UpdateGroup(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	var req GroupRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	name, ok := validName(req.Name)
	if !ok {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Group name is required"})
		return
	}

	group, err := h.store.Group(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "group")
		return
	}
	group.Name = name
	if req.ColorTag != "" {
		group.ColorTag = req.ColorTag
	}
	if req.IconName != "" {
		group.IconName = req.IconName
	}
	if err := h.pipeline.UpdateGroup(c.Request.Context(), group); err != nil {
		h.respondError(c, err, "group")
		return
	}
	c.JSON(http.StatusOK, group)
}

// DeleteGroup removes a group. Links keep their snapshot of it.
func (h *Handler) DeleteGroup(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	group, err := h.store.Group(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "group")
		return
	}
	if err := h.pipeline.DeleteGroup(c.Request.Context(), group); err != nil {
		h.respondError(c, err, "group")
		return
	}
	c.Status(http.StatusNoContent)
}
