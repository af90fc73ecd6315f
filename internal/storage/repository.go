package storage

import (
	"context"
	"errors"

	"github.com/google/uuid"

	"linkstash/internal/domain"
)

var (
	// ErrNotFound is returned when no entity has the requested id.
	ErrNotFound = errors.New("not found")
	// ErrAlreadyExists is returned when inserting an id that is already stored.
	ErrAlreadyExists = errors.New("already exists")
	// ErrDuplicateName is returned when a tag or group name is already taken.
	ErrDuplicateName = errors.New("name already taken")
)

// Repository defines the interface for data storage operations.
// Implementations serialize their own writes.
type Repository interface {
	// InsertLink stores a new link. It fails with ErrAlreadyExists if the id is taken.
	InsertLink(ctx context.Context, link domain.Link) error
	// UpdateLink replaces a stored link. It fails with ErrNotFound if absent.
	UpdateLink(ctx context.Context, link domain.Link) error
	// DeleteLink removes a link. It fails with ErrNotFound if absent.
	DeleteLink(ctx context.Context, id uuid.UUID) error
	Link(ctx context.Context, id uuid.UUID) (domain.Link, error)
	// Links returns every link, newest first.
	Links(ctx context.Context) ([]domain.Link, error)
	// FindLinks returns the links matching filter, newest first.
	FindLinks(ctx context.Context, filter LinkFilter) ([]domain.Link, error)

	InsertTag(ctx context.Context, tag domain.Tag) error
	UpdateTag(ctx context.Context, tag domain.Tag) error
	DeleteTag(ctx context.Context, id uuid.UUID) error
	Tag(ctx context.Context, id uuid.UUID) (domain.Tag, error)
	// Tags returns every tag ordered by name.
	Tags(ctx context.Context) ([]domain.Tag, error)

	InsertGroup(ctx context.Context, group domain.Group) error
	UpdateGroup(ctx context.Context, group domain.Group) error
	DeleteGroup(ctx context.Context, id uuid.UUID) error
	Group(ctx context.Context, id uuid.UUID) (domain.Group, error)
	// Groups returns every group ordered by name.
	Groups(ctx context.Context) ([]domain.Group, error)

	// Close gracefully shuts down the repository connection.
	Close() error
}
