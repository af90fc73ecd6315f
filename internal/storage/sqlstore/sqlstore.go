// Package sqlstore implements storage.Repository on SQLite through GORM.
package sqlstore

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gorm.io/driver/sqlite"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"linkstash/internal/domain"
	"linkstash/internal/storage"
)

// linkRecord is the table row for a link. Group and tags are by-value
// snapshots, serialized as JSON columns.
type linkRecord struct {
	ID            string        `gorm:"primarykey"`
	URL           string        `gorm:"not null"`
	Title         *string       `gorm:"column:title"`
	Description   *string       `gorm:"column:description"`
	ImageURL      *string       `gorm:"column:image_url"`
	Note          *string       `gorm:"column:note"`
	Starred       bool          `gorm:"index"`
	Archived      bool          `gorm:"index"`
	Unread        bool          `gorm:"index"`
	ColorTag      string        `gorm:"column:color_tag"`
	CreatedAt     int64         `gorm:"autoCreateTime:false;index"`
	UpdatedAt     int64         `gorm:"autoUpdateTime:false"`
	GroupID       *string       `gorm:"index"`
	GroupSnapshot *domain.Group `gorm:"column:group_json;type:text;serializer:json"`
	TagSnapshot   []domain.Tag  `gorm:"column:tags_json;type:text;serializer:json"`
}

func (linkRecord) TableName() string { return "links" }

type tagRecord struct {
	ID       string `gorm:"primarykey"`
	Name     string `gorm:"not null"`
	NameKey  string `gorm:"uniqueIndex;not null"`
	ColorTag string
}

func (tagRecord) TableName() string { return "tags" }

type groupRecord struct {
	ID       string `gorm:"primarykey"`
	Name     string `gorm:"not null"`
	NameKey  string `gorm:"uniqueIndex;not null"`
	ColorTag string
	IconName string
}

func (groupRecord) TableName() string { return "groups" }

// Store is a storage.Repository backed by SQLite.
type Store struct {
	db  *gorm.DB
	log logrus.FieldLogger
}

var _ storage.Repository = (*Store)(nil)

// Open connects to the SQLite database at dsn and migrates the schema.
// Writes go through a single connection.
func Open(dsn string, log logrus.FieldLogger) (*Store, error) {
	db, err := gorm.Open(sqlite.Open(dsn), &gorm.Config{
		TranslateError: true,
		Logger:         logger.Default.LogMode(logger.Silent),
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open sqlite db at %s: %w", dsn, err)
	}

	sqlDB, err := db.DB()
	if err != nil {
		return nil, fmt.Errorf("failed to get sql handle: %w", err)
	}
	sqlDB.SetMaxOpenConns(1)

	if err := db.AutoMigrate(&linkRecord{}, &tagRecord{}, &groupRecord{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}

	log.WithField("dsn", dsn).Info("SQLite store opened")
	return &Store{db: db, log: log.WithField("component", "sqlstore")}, nil
}

// Close closes the underlying connection.
func (s *Store) Close() error {
	sqlDB, err := s.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func nameKey(name string) string {
	return strings.ToLower(strings.TrimSpace(name))
}

// translate maps GORM errors onto the storage sentinels.
func translate(err error, duplicate error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, gorm.ErrRecordNotFound):
		return storage.ErrNotFound
	case errors.Is(err, gorm.ErrDuplicatedKey):
		return duplicate
	default:
		return err
	}
}

// --- Links ---

func toLinkRecord(l domain.Link) linkRecord {
	l = l.Normalized()
	rec := linkRecord{
		ID:            l.ID.String(),
		URL:           l.URL,
		Title:         l.Title,
		Description:   l.Description,
		ImageURL:      l.ImageURL,
		Note:          l.Note,
		Starred:       l.Starred,
		Archived:      l.Archived,
		Unread:        l.Unread,
		ColorTag:      l.ColorTag,
		CreatedAt:     l.CreatedAt,
		UpdatedAt:     l.UpdatedAt,
		GroupSnapshot: l.Group,
		TagSnapshot:   l.Tags,
	}
	if l.Group != nil {
		id := l.Group.ID.String()
		rec.GroupID = &id
	}
	return rec
}

func (r linkRecord) toDomain() (domain.Link, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return domain.Link{}, fmt.Errorf("corrupt link id %q: %w", r.ID, err)
	}
	return domain.Link{
		ID:          id,
		URL:         r.URL,
		Title:       r.Title,
		Description: r.Description,
		ImageURL:    r.ImageURL,
		Note:        r.Note,
		Starred:     r.Starred,
		Archived:    r.Archived,
		Unread:      r.Unread,
		ColorTag:    r.ColorTag,
		CreatedAt:   r.CreatedAt,
		UpdatedAt:   r.UpdatedAt,
		Group:       r.GroupSnapshot,
		Tags:        r.TagSnapshot,
	}, nil
}

// InsertLink stores a new link.
func (s *Store) InsertLink(ctx context.Context, link domain.Link) error {
	rec := toLinkRecord(link)
	if err := s.db.WithContext(ctx).Create(&rec).Error; err != nil {
		s.log.WithError(err).WithField("link_id", link.ID).Error("Failed to insert link")
		return fmt.Errorf("failed to insert link %s: %w", link.ID, translate(err, storage.ErrAlreadyExists))
	}
	return nil
}

// UpdateLink replaces a stored link.
func (s *Store) UpdateLink(ctx context.Context, link domain.Link) error {
	rec := toLinkRecord(link)
	// Select("*") writes zero values too (false, nil pointers).
	res := s.db.WithContext(ctx).Model(&linkRecord{ID: rec.ID}).Select("*").Updates(&rec)
	if res.Error != nil {
		s.log.WithError(res.Error).WithField("link_id", link.ID).Error("Failed to update link")
		return fmt.Errorf("failed to update link %s: %w", link.ID, translate(res.Error, storage.ErrAlreadyExists))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update link %s: %w", link.ID, storage.ErrNotFound)
	}
	return nil
}

// DeleteLink removes a link.
func (s *Store) DeleteLink(ctx context.Context, id uuid.UUID) error {
	res := s.db.WithContext(ctx).Delete(&linkRecord{}, "id = ?", id.String())
	if res.Error != nil {
		return fmt.Errorf("failed to delete link %s: %w", id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to delete link %s: %w", id, storage.ErrNotFound)
	}
	return nil
}

// Link returns the link with the given id.
func (s *Store) Link(ctx context.Context, id uuid.UUID) (domain.Link, error) {
	var rec linkRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error; err != nil {
		return domain.Link{}, fmt.Errorf("failed to get link %s: %w", id, translate(err, err))
	}
	return rec.toDomain()
}

// Links returns every link, newest first.
func (s *Store) Links(ctx context.Context) ([]domain.Link, error) {
	return s.FindLinks(ctx, storage.LinkFilter{})
}

// FindLinks filters the boolean and group columns in SQL and applies the
// remaining criteria to the loaded rows.
func (s *Store) FindLinks(ctx context.Context, filter storage.LinkFilter) ([]domain.Link, error) {
	q := s.db.WithContext(ctx).Model(&linkRecord{})
	if filter.Starred != nil {
		q = q.Where("starred = ?", *filter.Starred)
	}
	if filter.Archived != nil {
		q = q.Where("archived = ?", *filter.Archived)
	}
	if filter.Unread != nil {
		q = q.Where("unread = ?", *filter.Unread)
	}
	if filter.GroupID != nil {
		q = q.Where("group_id = ?", filter.GroupID.String())
	}

	var recs []linkRecord
	if err := q.Order("created_at DESC").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to get links: %w", err)
	}

	links := make([]domain.Link, 0, len(recs))
	for _, rec := range recs {
		link, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		if filter.Match(link) {
			links = append(links, link)
		}
	}
	storage.SortNewestFirst(links)
	return links, nil
}

// --- Tags ---

func toTagRecord(t domain.Tag) tagRecord {
	return tagRecord{ID: t.ID.String(), Name: t.Name, NameKey: nameKey(t.Name), ColorTag: t.ColorTag}
}

func (r tagRecord) toDomain() (domain.Tag, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return domain.Tag{}, fmt.Errorf("corrupt tag id %q: %w", r.ID, err)
	}
	return domain.Tag{ID: id, Name: r.Name, ColorTag: r.ColorTag}, nil
}

// InsertTag stores a new tag with a unique name.
func (s *Store) InsertTag(ctx context.Context, tag domain.Tag) error {
	rec := toTagRecord(tag)
	return s.insertNamed(ctx, "tag", tag.ID, &rec, &tagRecord{})
}

// UpdateTag replaces a stored tag.
func (s *Store) UpdateTag(ctx context.Context, tag domain.Tag) error {
	rec := toTagRecord(tag)
	return s.updateNamed(ctx, "tag", tag.ID, &rec)
}

// DeleteTag removes a tag. Links keep their snapshot.
func (s *Store) DeleteTag(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "tag", id, &tagRecord{})
}

// Tag returns the tag with the given id.
func (s *Store) Tag(ctx context.Context, id uuid.UUID) (domain.Tag, error) {
	var rec tagRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error; err != nil {
		return domain.Tag{}, fmt.Errorf("failed to get tag %s: %w", id, translate(err, err))
	}
	return rec.toDomain()
}

// Tags returns every tag ordered by name.
func (s *Store) Tags(ctx context.Context) ([]domain.Tag, error) {
	var recs []tagRecord
	if err := s.db.WithContext(ctx).Order("name_key").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}
	tags := make([]domain.Tag, 0, len(recs))
	for _, rec := range recs {
		tag, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		tags = append(tags, tag)
	}
	return tags, nil
}

// --- Groups ---

func toGroupRecord(g domain.Group) groupRecord {
	return groupRecord{
		ID:       g.ID.String(),
		Name:     g.Name,
		NameKey:  nameKey(g.Name),
		ColorTag: g.ColorTag,
		IconName: g.IconName,
	}
}

func (r groupRecord) toDomain() (domain.Group, error) {
	id, err := uuid.Parse(r.ID)
	if err != nil {
		return domain.Group{}, fmt.Errorf("corrupt group id %q: %w", r.ID, err)
	}
	return domain.Group{ID: id, Name: r.Name, ColorTag: r.ColorTag, IconName: r.IconName}, nil
}

// InsertGroup stores a new group with a unique name.
func (s *Store) InsertGroup(ctx context.Context, group domain.Group) error {
	rec := toGroupRecord(group)
	return s.insertNamed(ctx, "group", group.ID, &rec, &groupRecord{})
}

// UpdateGroup replaces a stored group.
func (s *Store) UpdateGroup(ctx context.Context, group domain.Group) error {
	rec := toGroupRecord(group)
	return s.updateNamed(ctx, "group", group.ID, &rec)
}

// DeleteGroup removes a group.
func (s *Store) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	return s.deleteByID(ctx, "group", id, &groupRecord{})
}

// Group returns the group with the given id.
func (s *Store) Group(ctx context.Context, id uuid.UUID) (domain.Group, error) {
	var rec groupRecord
	if err := s.db.WithContext(ctx).First(&rec, "id = ?", id.String()).Error; err != nil {
		return domain.Group{}, fmt.Errorf("failed to get group %s: %w", id, translate(err, err))
	}
	return rec.toDomain()
}

// Groups returns every group ordered by name.
func (s *Store) Groups(ctx context.Context) ([]domain.Group, error) {
	var recs []groupRecord
	if err := s.db.WithContext(ctx).Order("name_key").Find(&recs).Error; err != nil {
		return nil, fmt.Errorf("failed to get groups: %w", err)
	}
	groups := make([]domain.Group, 0, len(recs))
	for _, rec := range recs {
		group, err := rec.toDomain()
		if err != nil {
			return nil, err
		}
		groups = append(groups, group)
	}
	return groups, nil
}

// --- Shared helpers ---

// insertNamed tells an id collision (ErrAlreadyExists) apart from a name
// collision (ErrDuplicateName); both surface as the same unique violation.
func (s *Store) insertNamed(ctx context.Context, kind string, id uuid.UUID, rec, probe any) error {
	return s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var count int64
		if err := tx.Model(probe).Where("id = ?", id.String()).Count(&count).Error; err != nil {
			return fmt.Errorf("failed to insert %s %s: %w", kind, id, err)
		}
		if count > 0 {
			return fmt.Errorf("failed to insert %s %s: %w", kind, id, storage.ErrAlreadyExists)
		}
		if err := tx.Create(rec).Error; err != nil {
			s.log.WithError(err).WithField(kind+"_id", id).Error("Failed to insert " + kind)
			return fmt.Errorf("failed to insert %s %s: %w", kind, id, translate(err, storage.ErrDuplicateName))
		}
		return nil
	})
}

func (s *Store) updateNamed(ctx context.Context, kind string, id uuid.UUID, rec any) error {
	res := s.db.WithContext(ctx).Model(rec).Where("id = ?", id.String()).Select("*").Updates(rec)
	if res.Error != nil {
		s.log.WithError(res.Error).WithField(kind+"_id", id).Error("Failed to update " + kind)
		return fmt.Errorf("failed to update %s %s: %w", kind, id, translate(res.Error, storage.ErrDuplicateName))
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to update %s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}

func (s *Store) deleteByID(ctx context.Context, kind string, id uuid.UUID, model any) error {
	res := s.db.WithContext(ctx).Delete(model, "id = ?", id.String())
	if res.Error != nil {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, res.Error)
	}
	if res.RowsAffected == 0 {
		return fmt.Errorf("failed to delete %s %s: %w", kind, id, storage.ErrNotFound)
	}
	return nil
}
