package api

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"strings"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"

	"linkstash/internal/domain"
	"linkstash/internal/imagecache"
	"linkstash/internal/pipeline"
	"linkstash/internal/scraper"
	"linkstash/internal/storage"
)

// LinkInput describes one link to save. Title, description and image are
// kept only when enrichment does not replace them.
type LinkInput struct {
	URL         string      `json:"url" binding:"required"`
	Title       *string     `json:"title"`
	Description *string     `json:"description"`
	ImageURL    *string     `json:"image_url"`
	Note        *string     `json:"note"`
	Starred     bool        `json:"starred"`
	Archived    bool        `json:"archived"`
	Unread      *bool       `json:"unread"`
	GroupID     *uuid.UUID  `json:"group_id"`
	TagIDs      []uuid.UUID `json:"tag_ids"`
}

// CreateLinksRequest is the body of POST /links and POST /links/import.
type CreateLinksRequest struct {
	Links []LinkInput `json:"links" binding:"required,min=1,dive"`
}

// UpdateLinkRequest is the body of PATCH /links/:id. Absent fields are left
// as they are; an empty group_id removes the group.
type UpdateLinkRequest struct {
	URL      *string      `json:"url"`
	Title    *string      `json:"title"`
	Note     *string      `json:"note"`
	Starred  *bool        `json:"starred"`
	Archived *bool        `json:"archived"`
	Unread   *bool        `json:"unread"`
	GroupID  *string      `json:"group_id"`
	TagIDs   *[]uuid.UUID `json:"tag_ids"`
}

// OutcomeResponse reports what happened to one submitted link.
type OutcomeResponse struct {
	Link          domain.Link            `json:"link"`
	Metadata      pipeline.MetadataState `json:"metadata"`
	Persist       pipeline.PersistState  `json:"persist"`
	Image         pipeline.ImageState    `json:"image,omitempty"`
	MetadataError string                 `json:"metadata_error,omitempty"`
	PersistError  string                 `json:"persist_error,omitempty"`
}

func toOutcomeResponse(o pipeline.Outcome) OutcomeResponse {
	resp := OutcomeResponse{
		Link:     o.Link,
		Metadata: o.Metadata,
		Persist:  o.Persist,
		Image:    o.Image,
	}
	if o.MetadataErr != nil {
		resp.MetadataError = o.MetadataErr.Error()
	}
	if o.PersistErr != nil {
		resp.PersistError = o.PersistErr.Error()
	}
	return resp
}

var errUnknownRef = errors.New("unknown reference")

// snapshots loads the referenced group and tags.
func (h *Handler) snapshots(ctx context.Context, groupID *uuid.UUID, tagIDs []uuid.UUID) (*domain.Group, []domain.Tag, error) {
	var group *domain.Group
	if groupID != nil {
		g, err := h.store.Group(ctx, *groupID)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: group %s", errUnknownRef, groupID)
		}
		if err != nil {
			return nil, nil, err
		}
		group = &g
	}

	var tags []domain.Tag
	for _, id := range tagIDs {
		tag, err := h.store.Tag(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			return nil, nil, fmt.Errorf("%w: tag %s", errUnknownRef, id)
		}
		if err != nil {
			return nil, nil, err
		}
		tags = append(tags, tag)
	}
	return group, tags, nil
}

func (h *Handler) buildLinks(c *gin.Context, inputs []LinkInput) ([]domain.Link, bool) {
	links := make([]domain.Link, 0, len(inputs))
	for _, in := range inputs {
		link := domain.NewLink(in.URL)
		if err := link.Validate(); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		link.Title = in.Title
		link.Description = in.Description
		link.ImageURL = in.ImageURL
		if in.Note != nil {
			link.SetNote(*in.Note)
		}
		link.Starred = in.Starred
		link.Archived = in.Archived
		if in.Unread != nil {
			link.Unread = *in.Unread
		}

		group, tags, err := h.snapshots(c.Request.Context(), in.GroupID, in.TagIDs)
		if errors.Is(err, errUnknownRef) {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return nil, false
		}
		if err != nil {
			h.respondError(c, err, "link")
			return nil, false
		}
		link.Group = group
		link.Tags = tags
		links = append(links, link)
	}
	return links, true
}

func (h *Handler) respondBatch(c *gin.Context, outcomes []pipeline.Outcome, err error) {
	if err != nil {
		h.respondError(c, err, "link")
		return
	}
	resp := make([]OutcomeResponse, len(outcomes))
	for i, o := range outcomes {
		resp[i] = toOutcomeResponse(o)
	}
	c.JSON(http.StatusCreated, resp)
}

// CreateLinks enriches and saves a batch of links.
func (h *Handler) CreateLinks(c *gin.Context) {
	var req CreateLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	links, ok := h.buildLinks(c, req.Links)
	if !ok {
		return
	}
	outcomes, err := h.pipeline.EnrichAndInsert(c.Request.Context(), links)
	h.respondBatch(c, outcomes, err)
}

// ImportLinks saves a batch of links as given, without fetching pages.
func (h *Handler) ImportLinks(c *gin.Context) {
	var req CreateLinksRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	links, ok := h.buildLinks(c, req.Links)
	if !ok {
		return
	}
	outcomes, err := h.pipeline.InsertWithoutEnrichment(c.Request.Context(), links)
	h.respondBatch(c, outcomes, err)
}

func parseBoolQuery(c *gin.Context, key string) (*bool, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	v, err := strconv.ParseBool(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return &v, nil
}

func parseUUIDQuery(c *gin.Context, key string) (*uuid.UUID, error) {
	raw, ok := c.GetQuery(key)
	if !ok || raw == "" {
		return nil, nil
	}
	id, err := uuid.Parse(raw)
	if err != nil {
		return nil, fmt.Errorf("invalid %s: %q", key, raw)
	}
	return &id, nil
}

func parseFilter(c *gin.Context) (storage.LinkFilter, error) {
	var (
		filter storage.LinkFilter
		err    error
	)
	if filter.Starred, err = parseBoolQuery(c, "starred"); err != nil {
		return filter, err
	}
	if filter.Archived, err = parseBoolQuery(c, "archived"); err != nil {
		return filter, err
	}
	if filter.Unread, err = parseBoolQuery(c, "unread"); err != nil {
		return filter, err
	}
	if filter.GroupID, err = parseUUIDQuery(c, "group_id"); err != nil {
		return filter, err
	}
	if filter.TagID, err = parseUUIDQuery(c, "tag_id"); err != nil {
		return filter, err
	}
	filter.Query = c.Query("q")
	return filter, nil
}

// ListLinks returns stored links, newest first, filtered by the query
// parameters starred, archived, unread, group_id, tag_id and q.
func (h *Handler) ListLinks(c *gin.Context) {
	filter, err := parseFilter(c)
	if err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	links, err := h.store.FindLinks(c.Request.Context(), filter)
	if err != nil {
		h.respondError(c, err, "link")
		return
	}
	if links == nil {
		links = []domain.Link{}
	}
	c.JSON(http.StatusOK, links)
}

func (h *Handler) loadLink(c *gin.Context) (domain.Link, bool) {
	id, ok := parseID(c)
	if !ok {
		return domain.Link{}, false
	}
	link, err := h.store.Link(c.Request.Context(), id)
	if err != nil {
		h.respondError(c, err, "link")
		return domain.Link{}, false
	}
	return link, true
}

// GetLink returns one link.
func (h *Handler) GetLink(c *gin.Context) {
	link, ok := h.loadLink(c)
	if !ok {
		return
	}
	c.JSON(http.StatusOK, link)
}

// UpdateLink applies a user edit without refetching the page.
func (h *Handler) UpdateLink(c *gin.Context) {
	link, ok := h.loadLink(c)
	if !ok {
		return
	}

	var req UpdateLinkRequest
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}

	if req.URL != nil {
		if _, err := scraper.ValidateURL(*req.URL); err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		link.URL = strings.TrimSpace(*req.URL)
	}
	if req.Title != nil {
		if title := strings.TrimSpace(*req.Title); title != "" {
			link.Title = &title
		} else {
			link.Title = nil
		}
	}
	if req.Note != nil {
		link.SetNote(*req.Note)
	}
	if req.Starred != nil {
		link.Starred = *req.Starred
	}
	if req.Archived != nil {
		link.Archived = *req.Archived
	}
	if req.Unread != nil {
		link.Unread = *req.Unread
	}

	var (
		groupID *uuid.UUID
		tagIDs  []uuid.UUID
	)
	if req.GroupID != nil && *req.GroupID != "" {
		id, err := uuid.Parse(*req.GroupID)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": "Invalid group_id"})
			return
		}
		groupID = &id
	}
	if req.TagIDs != nil {
		tagIDs = *req.TagIDs
	}
	group, tags, err := h.snapshots(c.Request.Context(), groupID, tagIDs)
	if errors.Is(err, errUnknownRef) {
		c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
		return
	}
	if err != nil {
		h.respondError(c, err, "link")
		return
	}
	if req.GroupID != nil {
		link.Group = group
	}
	if req.TagIDs != nil {
		link.Tags = tags
	}

	link.Touch()
	if err := h.pipeline.UpdateLink(c.Request.Context(), link); err != nil {
		h.respondError(c, err, "link")
		return
	}
	c.JSON(http.StatusOK, link.Normalized())
}

// ReloadLink refetches the page metadata and preview image.
func (h *Handler) ReloadLink(c *gin.Context) {
	link, ok := h.loadLink(c)
	if !ok {
		return
	}
	outcome, err := h.pipeline.EnrichAndUpdate(c.Request.Context(), link)
	if err != nil {
		h.respondError(c, err, "link")
		return
	}
	c.JSON(http.StatusOK, toOutcomeResponse(outcome))
}

// DeleteLink removes a link and its cached image.
func (h *Handler) DeleteLink(c *gin.Context) {
	link, ok := h.loadLink(c)
	if !ok {
		return
	}
	if err := h.pipeline.Delete(c.Request.Context(), link); err != nil {
		h.respondError(c, err, "link")
		return
	}
	c.Status(http.StatusNoContent)
}

// GetImage serves the cached preview image.
func (h *Handler) GetImage(c *gin.Context) {
	id, ok := parseID(c)
	if !ok {
		return
	}
	data, err := h.images.Get(c.Request.Context(), id)
	if errors.Is(err, imagecache.ErrNotFound) {
		c.JSON(http.StatusNotFound, gin.H{"error": "image not found"})
		return
	}
	if err != nil {
		h.respondError(c, err, "image")
		return
	}
	c.Data(http.StatusOK, http.DetectContentType(data), data)
}
