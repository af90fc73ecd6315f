package pipeline

import (
	"errors"
	"fmt"

	"linkstash/internal/domain"
)

// ErrNoMetadata is recorded when a page was fetched but carried no head
// section to extract from.
var ErrNoMetadata = errors.New("page has no extractable metadata")

var errEmptyImage = errors.New("empty image body")

// AbortedError reports a batch that could not finish because the pipeline
// was torn down or the caller's context ended. No partial results are
// returned with it; start a fresh batch on a live pipeline.
type AbortedError struct {
	Op  string
	Err error
}

func (e *AbortedError) Error() string {
	return fmt.Sprintf("%s aborted: %v", e.Op, e.Err)
}

func (e *AbortedError) Unwrap() error {
	return e.Err
}

// MetadataState is the result of the metadata phase for one link.
type MetadataState string

const (
	MetadataFetched MetadataState = "metadata_fetched"
	MetadataFailed  MetadataState = "metadata_failed"
	// MetadataSkipped marks links submitted without enrichment.
	MetadataSkipped MetadataState = "metadata_skipped"
)

// PersistState is the result of the store write for one link.
type PersistState string

const (
	Persisted     PersistState = "persisted"
	PersistFailed PersistState = "persist_failed"
)

// ImageState is the result of the image phase for one link. It stays empty
// when the link was never persisted.
type ImageState string

const (
	ImageFetched ImageState = "image_fetched"
	ImageSkipped ImageState = "image_skipped"
)

// Outcome describes what happened to one link of a batch. Link holds the
// record as it was written (or attempted).
type Outcome struct {
	Link        domain.Link
	Metadata    MetadataState
	MetadataErr error
	Persist     PersistState
	PersistErr  error
	Image       ImageState
	ImageErr    error
}

// Terminal reports whether the link reached a final state: persisted with
// the image phase resolved, or failed to persist.
func (o Outcome) Terminal() bool {
	switch o.Persist {
	case PersistFailed:
		return true
	case Persisted:
		return o.Image != ""
	}
	return false
}

// Succeeded reports whether the link was persisted.
func (o Outcome) Succeeded() bool {
	return o.Persist == Persisted
}
