// Package pipeline enriches links with page metadata and preview images,
// persists them and announces the changes on the event bus.
package pipeline

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"

	"linkstash/internal/domain"
	"linkstash/internal/events"
	"linkstash/internal/extractor"
	"linkstash/internal/fetchpool"
	"linkstash/internal/imagecache"
	"linkstash/internal/scraper"
	"linkstash/internal/storage"
)

// Extractor turns raw page bytes into metadata, or nil when the bytes carry
// no head section.
type Extractor interface {
	Extract(raw []byte) *domain.Metadata
}

// Deps are the collaborators a Pipeline is built from.
type Deps struct {
	Store  storage.Repository
	Images imagecache.Cache
	// Pages fetches the HTML for the metadata phase.
	Pages scraper.Fetcher
	// ImagesFetcher downloads preview images. Defaults to Pages.
	ImagesFetcher scraper.Fetcher
	// Extractor defaults to extractor.HTML.
	Extractor Extractor
	Bus       events.Publisher
	// Window caps concurrent fetches. Values below 1 use fetchpool.DefaultWindow.
	Window int
	Logger logrus.FieldLogger
}

// Pipeline orchestrates enrichment batches and entity CRUD. Fetches fan
// out on a bounded pool; store writes and event publication, the
// FetchingStarted and FetchingEnded brackets included, run serially on a
// Coordinator. Bus handlers run on that goroutine and must not call back
// into the Pipeline synchronously. After Close the brackets are published
// on the caller's goroutine.
type Pipeline struct {
	store     storage.Repository
	images    imagecache.Cache
	pages     scraper.Fetcher
	imageSrc  scraper.Fetcher
	extractor Extractor
	bus       events.Publisher
	pool      *fetchpool.Pool
	coord     *Coordinator
	log       logrus.FieldLogger
}

// New validates deps and starts the pipeline's coordinator.
func New(deps Deps) (*Pipeline, error) {
	switch {
	case deps.Store == nil:
		return nil, errors.New("pipeline: store is required")
	case deps.Images == nil:
		return nil, errors.New("pipeline: image cache is required")
	case deps.Pages == nil:
		return nil, errors.New("pipeline: page fetcher is required")
	case deps.Bus == nil:
		return nil, errors.New("pipeline: event bus is required")
	}
	logger := deps.Logger
	if logger == nil {
		logger = logrus.StandardLogger()
	}
	if deps.ImagesFetcher == nil {
		deps.ImagesFetcher = deps.Pages
	}
	if deps.Extractor == nil {
		deps.Extractor = extractor.HTML{}
	}

	pool := fetchpool.New(deps.Window, logger)
	p := &Pipeline{
		store:     deps.Store,
		images:    deps.Images,
		pages:     deps.Pages,
		imageSrc:  deps.ImagesFetcher,
		extractor: deps.Extractor,
		bus:       deps.Bus,
		pool:      pool,
		coord:     NewCoordinator(logger),
		log:       logger.WithField("component", "pipeline"),
	}
	p.log.WithField("window", pool.Window()).Info("Pipeline started")
	return p, nil
}

// Close tears down the fetch pool and the coordinator. Batches still
// running fail with *AbortedError.
func (p *Pipeline) Close() {
	p.pool.Close()
	p.coord.Close()
	p.log.Info("Pipeline closed")
}

// coordinatedPublisher publishes on the coordinator so bracket events are
// serialized with entity events. Once the coordinator is gone it publishes
// directly, which keeps FetchingEnded firing for aborted batches.
type coordinatedPublisher struct {
	p *Pipeline
}

func (c coordinatedPublisher) Publish(name events.Name, payload events.Payload) {
	err := c.p.coord.Do(context.Background(), func() {
		c.p.bus.Publish(name, payload)
	})
	if err != nil {
		c.p.bus.Publish(name, payload)
	}
}

type writeMode int

const (
	insertMode writeMode = iota
	updateMode
)

// EnrichAndInsert fetches metadata for every link, inserts each one and
// publishes LinkAdded for those stored, then caches their preview images.
// Per-link failures are reported in the outcomes, which follow the order
// of links. The error is non-nil only for an *AbortedError.
func (p *Pipeline) EnrichAndInsert(ctx context.Context, links []domain.Link) ([]Outcome, error) {
	return p.run(ctx, "enrich and insert", links, true, insertMode)
}

// EnrichAndUpdate refetches metadata for an existing link, overwrites the
// stored record and publishes LinkUpdated. The cached image is replaced
// when new bytes are retrieved and removed when the link no longer has an
// image URL.
func (p *Pipeline) EnrichAndUpdate(ctx context.Context, link domain.Link) (Outcome, error) {
	outcomes, err := p.run(ctx, "enrich and update", []domain.Link{link}, true, updateMode)
	if err != nil {
		return Outcome{}, err
	}
	return outcomes[0], nil
}

// InsertWithoutEnrichment stores links verbatim, publishes LinkAdded and
// runs the image phase.
func (p *Pipeline) InsertWithoutEnrichment(ctx context.Context, links []domain.Link) ([]Outcome, error) {
	return p.run(ctx, "insert without enrichment", links, false, insertMode)
}

func (p *Pipeline) run(ctx context.Context, op string, links []domain.Link, enrich bool, mode writeMode) ([]Outcome, error) {
	log := p.log.WithFields(logrus.Fields{"op": op, "links": len(links)})
	log.Debug("Batch started")

	var outcomes []Outcome
	err := events.Scoped(coordinatedPublisher{p}, func() error {
		outcomes = make([]Outcome, len(links))
		for i, link := range links {
			outcomes[i] = Outcome{Link: link, Metadata: MetadataSkipped}
		}

		if enrich {
			if err := p.enrich(ctx, outcomes); err != nil {
				return err
			}
		}
		if err := p.persist(ctx, outcomes, links, mode); err != nil {
			return err
		}
		return p.cacheImages(ctx, outcomes, mode)
	})
	if err != nil {
		log.WithError(err).Error("Batch aborted")
		return nil, &AbortedError{Op: op, Err: err}
	}

	log.Debug("Batch finished")
	return outcomes, nil
}

// enrich runs the metadata phase. A failed fetch leaves the link untouched.
func (p *Pipeline) enrich(ctx context.Context, outcomes []Outcome) error {
	inputs := make([]domain.Link, len(outcomes))
	for i := range outcomes {
		inputs[i] = outcomes[i].Link
	}

	results, err := fetchpool.Map(ctx, p.pool, inputs, p.fetchMetadata)
	if err != nil {
		return err
	}
	for _, r := range results {
		o := &outcomes[r.Index]
		o.Link = r.Input
		if r.Value != nil {
			o.Metadata = MetadataFailed
			o.MetadataErr = r.Value
			p.log.WithError(r.Value).WithFields(logrus.Fields{
				"link_id": o.Link.ID,
				"url":     o.Link.URL,
			}).Warn("Failed to fetch metadata")
			continue
		}
		o.Metadata = MetadataFetched
	}
	return nil
}

func (p *Pipeline) fetchMetadata(ctx context.Context, link domain.Link) (domain.Link, error) {
	raw, err := p.pages.Fetch(ctx, link.URL)
	if err != nil {
		return link, err
	}
	meta := p.extractor.Extract(raw)
	if meta == nil {
		return link, ErrNoMetadata
	}
	meta.ApplyTo(&link)
	return link, nil
}

// persist writes every link on the coordinator, publishing an event per
// successful write.
func (p *Pipeline) persist(ctx context.Context, outcomes []Outcome, submitted []domain.Link, mode writeMode) error {
	for i := range outcomes {
		o := &outcomes[i]
		err := p.coord.Do(ctx, func() {
			link := o.Link.Normalized()
			err := link.Validate()
			if err == nil {
				if mode == insertMode {
					err = p.store.InsertLink(ctx, link)
				} else {
					err = p.store.UpdateLink(ctx, link)
				}
			}
			if err != nil {
				o.Persist = PersistFailed
				o.PersistErr = err
				p.log.WithError(err).WithFields(logrus.Fields{
					"link_id": link.ID,
					"url":     link.URL,
				}).Error("Failed to persist link")
				return
			}

			o.Link = link
			o.Persist = Persisted
			if mode == insertMode {
				p.bus.Publish(events.LinkAdded, events.Payload{Link: &link, OriginalURL: submitted[i].URL})
			} else {
				p.bus.Publish(events.LinkUpdated, events.Payload{Link: &link})
			}
		})
		if err != nil {
			return err
		}
	}
	return nil
}

// cacheImages runs the image phase for persisted links. An update that
// leaves a link without an image URL drops its cached image.
func (p *Pipeline) cacheImages(ctx context.Context, outcomes []Outcome, mode writeMode) error {
	var (
		candidates []domain.Link
		positions  []int
	)
	for i := range outcomes {
		o := &outcomes[i]
		if o.Persist != Persisted {
			continue
		}
		if o.Link.ImageURL == nil || *o.Link.ImageURL == "" {
			o.Image = ImageSkipped
			if mode == updateMode {
				if err := p.images.Delete(ctx, o.Link.ID); err != nil {
					p.log.WithError(err).WithField("link_id", o.Link.ID).Warn("Failed to drop stale cached image")
				}
			}
			continue
		}
		candidates = append(candidates, o.Link)
		positions = append(positions, i)
	}
	if len(candidates) == 0 {
		return nil
	}

	results, err := fetchpool.Map(ctx, p.pool, candidates, p.fetchImage)
	if err != nil {
		return err
	}
	for _, r := range results {
		o := &outcomes[positions[r.Index]]
		if r.Value != nil {
			o.Image = ImageSkipped
			o.ImageErr = r.Value
			p.log.WithError(r.Value).WithFields(logrus.Fields{
				"link_id":   o.Link.ID,
				"image_url": *o.Link.ImageURL,
			}).Debug("Skipped preview image")
			continue
		}
		o.Image = ImageFetched
	}
	return nil
}

func (p *Pipeline) fetchImage(ctx context.Context, link domain.Link) (domain.Link, error) {
	data, err := p.imageSrc.Fetch(ctx, *link.ImageURL)
	if err != nil {
		return link, err
	}
	if len(data) == 0 {
		return link, errEmptyImage
	}
	if err := p.images.Put(ctx, link.ID, data); err != nil {
		return link, fmt.Errorf("failed to cache image: %w", err)
	}
	return link, nil
}

// UpdateLink stores a user edit without refetching and publishes
// LinkUpdated. The store error is returned as is.
func (p *Pipeline) UpdateLink(ctx context.Context, link domain.Link) error {
	link = link.Normalized()
	return p.write(ctx, "update link", func() error {
		if err := link.Validate(); err != nil {
			return err
		}
		return p.store.UpdateLink(ctx, link)
	}, events.LinkUpdated, events.Payload{Link: &link})
}

// Delete removes the link and its cached image and publishes LinkDeleted.
// A failed image delete is logged and does not fail the call. When the
// store delete fails its error is returned and nothing else happens.
func (p *Pipeline) Delete(ctx context.Context, link domain.Link) error {
	return p.write(ctx, "delete link", func() error {
		if err := p.store.DeleteLink(ctx, link.ID); err != nil {
			return err
		}
		if err := p.images.Delete(ctx, link.ID); err != nil {
			p.log.WithError(err).WithField("link_id", link.ID).Warn("Failed to delete cached image")
		}
		return nil
	}, events.LinkDeleted, events.Payload{Link: &link})
}

// InsertTag stores a new tag and publishes TagAdded.
func (p *Pipeline) InsertTag(ctx context.Context, tag domain.Tag) error {
	return p.write(ctx, "insert tag", func() error {
		return p.store.InsertTag(ctx, tag)
	}, events.TagAdded, events.Payload{Tag: &tag})
}

// UpdateTag stores a changed tag and publishes TagUpdated.
func (p *Pipeline) UpdateTag(ctx context.Context, tag domain.Tag) error {
	return p.write(ctx, "update tag", func() error {
		return p.store.UpdateTag(ctx, tag)
	}, events.TagUpdated, events.Payload{Tag: &tag})
}

// DeleteTag removes a tag and publishes TagDeleted. Links keep their
// snapshot of it.
func (p *Pipeline) DeleteTag(ctx context.Context, tag domain.Tag) error {
	return p.write(ctx, "delete tag", func() error {
		return p.store.DeleteTag(ctx, tag.ID)
	}, events.TagDeleted, events.Payload{Tag: &tag})
}

// InsertGroup stores a new group and publishes GroupAdded.
func (p *Pipeline) InsertGroup(ctx context.Context, group domain.Group) error {
	return p.write(ctx, "insert group", func() error {
		return p.store.InsertGroup(ctx, group)
	}, events.GroupAdded, events.Payload{Group: &group})
}

// UpdateGroup stores a changed group and publishes GroupUpdated.
func (p *Pipeline) UpdateGroup(ctx context.Context, group domain.Group) error {
	return p.write(ctx, "update group", func() error {
		return p.store.UpdateGroup(ctx, group)
	}, events.GroupUpdated, events.Payload{Group: &group})
}

// DeleteGroup removes a group and publishes GroupDeleted.
func (p *Pipeline) DeleteGroup(ctx context.Context, group domain.Group) error {
	return p.write(ctx, "delete group", func() error {
		return p.store.DeleteGroup(ctx, group.ID)
	}, events.GroupDeleted, events.Payload{Group: &group})
}

// write persists then publishes on the coordinator. The event is
// suppressed when persist fails.
func (p *Pipeline) write(ctx context.Context, op string, persist func() error, name events.Name, payload events.Payload) error {
	var storeErr error
	err := p.coord.Do(ctx, func() {
		if storeErr = persist(); storeErr != nil {
			p.log.WithError(storeErr).WithField("op", op).Error("Failed to persist")
			return
		}
		p.bus.Publish(name, payload)
	})
	if err != nil {
		return &AbortedError{Op: op, Err: err}
	}
	return storeErr
}
