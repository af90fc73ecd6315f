// Package api exposes the link store over HTTP.
package api

import (
	"context"
	"errors"
	"net/http"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkstash/internal/domain"
	"linkstash/internal/imagecache"
	"linkstash/internal/pipeline"
	"linkstash/internal/storage"
)

// Pipeline is the write side the handlers drive.
type Pipeline interface {
	EnrichAndInsert(ctx context.Context, links []domain.Link) ([]pipeline.Outcome, error)
	EnrichAndUpdate(ctx context.Context, link domain.Link) (pipeline.Outcome, error)
	InsertWithoutEnrichment(ctx context.Context, links []domain.Link) ([]pipeline.Outcome, error)
	UpdateLink(ctx context.Context, link domain.Link) error
	Delete(ctx context.Context, link domain.Link) error

	InsertTag(ctx context.Context, tag domain.Tag) error
	UpdateTag(ctx context.Context, tag domain.Tag) error
	DeleteTag(ctx context.Context, tag domain.Tag) error

	InsertGroup(ctx context.Context, group domain.Group) error
	UpdateGroup(ctx context.Context, group domain.Group) error
	DeleteGroup(ctx context.Context, group domain.Group) error
}

// Handler handles link, tag and group requests. Writes go through the
// pipeline; reads hit the store directly.
type Handler struct {
	pipeline Pipeline
	store    storage.Repository
	images   imagecache.Cache
	log      logrus.FieldLogger
}

// NewHandler creates a new API handler.
func NewHandler(p Pipeline, store storage.Repository, images imagecache.Cache, logger logrus.FieldLogger) *Handler {
	return &Handler{
		pipeline: p,
		store:    store,
		images:   images,
		log:      logger.WithField("component", "api"),
	}
}

// NewRouter builds the gin engine with logging, recovery and all routes.
func NewRouter(h *Handler) *gin.Engine {
	r := gin.New()
	r.Use(gin.Recovery(), requestLogger(h.log))

	r.GET("/health", func(c *gin.Context) {
		c.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	h.RegisterRoutes(r.Group("/api"))
	return r
}

// RegisterRoutes registers link, tag and group routes.
func (h *Handler) RegisterRoutes(rg *gin.RouterGroup) {
	rg.GET("/links", h.ListLinks)
	rg.POST("/links", h.CreateLinks)
	rg.POST("/links/import", h.ImportLinks)
	rg.GET("/links/:id", h.GetLink)
	rg.PATCH("/links/:id", h.UpdateLink)
	rg.DELETE("/links/:id", h.DeleteLink)
	rg.POST("/links/:id/reload", h.ReloadLink)
	rg.GET("/links/:id/image", h.GetImage)

	rg.GET("/tags", h.ListTags)
	rg.POST("/tags", h.CreateTag)
	rg.PUT("/tags/:id", h.UpdateTag)
	rg.DELETE("/tags/:id", h.DeleteTag)

	rg.GET("/groups", h.ListGroups)
	rg.POST("/groups", h.CreateGroup)
	rg.PUT("/groups/:id", h.UpdateGroup)
	rg.DELETE("/groups/:id", h.DeleteGroup)
}

func requestLogger(log logrus.FieldLogger) gin.HandlerFunc {
	return func(c *gin.Context) {
		start := time.Now()
		c.Next()
		entry := log.WithFields(logrus.Fields{
			"method":   c.Request.Method,
			"path":     c.FullPath(),
			"status":   c.Writer.Status(),
			"duration": time.Since(start).String(),
		})
		if c.Writer.Status() >= http.StatusInternalServerError {
			entry.Warn("Request failed")
			return
		}
		entry.Debug("Request served")
	}
}

func parseID(c *gin.Context) (uuid.UUID, bool) {
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid id"})
		return uuid.Nil, false
	}
	return id, true
}

// respondError maps store and pipeline errors to status codes.
func (h *Handler) respondError(c *gin.Context, err error, what string) {
	var aborted *pipeline.AbortedError
	switch {
	case errors.Is(err, storage.ErrNotFound):
		c.JSON(http.StatusNotFound, gin.H{"error": what + " not found"})
	case errors.Is(err, storage.ErrDuplicateName):
		c.JSON(http.StatusConflict, gin.H{"error": what + " name already taken"})
	case errors.Is(err, storage.ErrAlreadyExists):
		c.JSON(http.StatusConflict, gin.H{"error": what + " already exists"})
	case errors.Is(err, domain.ErrEmptyURL):
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
	case errors.As(err, &aborted):
		c.JSON(http.StatusServiceUnavailable, gin.H{"error": "Service is shutting down"})
	default:
		h.log.WithError(err).WithField("path", c.FullPath()).Error("Request failed")
		c.JSON(http.StatusInternalServerError, gin.H{"error": "Internal error"})
	}
}
