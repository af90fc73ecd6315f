package storage

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"strings"
	"sync"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkstash/internal/domain"
)

// BadgerRepository implements the Repository interface using BadgerDB.
// Values are JSON-encoded entities; tag and group names have their own
// index keys to enforce uniqueness.
type BadgerRepository struct {
	db *badger.DB
	// writeMu serializes write transactions so concurrent writers never
	// surface badger.ErrConflict to callers.
	writeMu sync.Mutex
	log     logrus.FieldLogger
}

var _ Repository = (*BadgerRepository)(nil)

// NewBadgerRepository creates and initializes a new BadgerDB repository.
// It opens the database at the specified path.
func NewBadgerRepository(dbPath string, logger logrus.FieldLogger) (*BadgerRepository, error) {
	db, err := OpenBadger(dbPath, logger)
	if err != nil {
		return nil, err
	}
	return &BadgerRepository{
		db:  db,
		log: logger.WithField("component", "repository"),
	}, nil
}

// OpenBadger opens a badger database with its internal logging routed to logger.
func OpenBadger(dbPath string, logger logrus.FieldLogger) (*badger.DB, error) {
	opts := badger.DefaultOptions(dbPath)
	opts.Logger = &badgerLogger{logger.WithField("component", "badgerdb")}

	db, err := badger.Open(opts)
	if err != nil {
		logger.WithError(err).Error("Failed to open BadgerDB")
		return nil, fmt.Errorf("failed to open badger db at %s: %w", dbPath, err)
	}
	logger.Info("BadgerDB opened successfully at path: ", dbPath)
	return db, nil
}

// Close closes the BadgerDB database connection.
func (r *BadgerRepository) Close() error {
	r.log.Info("Closing BadgerDB...")
	if err := r.db.Close(); err != nil {
		r.log.WithError(err).Error("Error closing BadgerDB")
		return err
	}
	r.log.Info("BadgerDB closed.")
	return nil
}

const (
	linkPrefix      = "link:"
	tagPrefix       = "tag:"
	tagNamePrefix   = "tagname:"
	groupPrefix     = "group:"
	groupNamePrefix = "groupname:"
)

func entityKey(prefix string, id uuid.UUID) []byte {
	return []byte(prefix + id.String())
}

func nameKey(prefix, name string) []byte {
	return []byte(prefix + strings.ToLower(strings.TrimSpace(name)))
}

// --- Links ---

// InsertLink stores a new link.
func (r *BadgerRepository) InsertLink(ctx context.Context, link domain.Link) error {
	log := r.log.WithFields(logrus.Fields{"link_id": link.ID, "url": link.URL})
	key := entityKey(linkPrefix, link.ID)

	err := r.update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, key); err != nil {
			return err
		} else if exists {
			return ErrAlreadyExists
		}
		return setJSON(txn, key, link.Normalized())
	})
	if err != nil {
		log.WithError(err).Error("Failed to insert link")
		return fmt.Errorf("failed to insert link %s: %w", link.ID, err)
	}

	log.Debug("Link inserted")
	return nil
}

// UpdateLink replaces a stored link.
func (r *BadgerRepository) UpdateLink(ctx context.Context, link domain.Link) error {
	log := r.log.WithFields(logrus.Fields{"link_id": link.ID, "url": link.URL})
	key := entityKey(linkPrefix, link.ID)

	err := r.update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, key); err != nil {
			return err
		} else if !exists {
			return ErrNotFound
		}
		return setJSON(txn, key, link.Normalized())
	})
	if err != nil {
		log.WithError(err).Error("Failed to update link")
		return fmt.Errorf("failed to update link %s: %w", link.ID, err)
	}

	log.Debug("Link updated")
	return nil
}

// DeleteLink removes a link.
func (r *BadgerRepository) DeleteLink(ctx context.Context, id uuid.UUID) error {
	key := entityKey(linkPrefix, id)
	err := r.update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, key); err != nil {
			return err
		} else if !exists {
			return ErrNotFound
		}
		return txn.Delete(key)
	})
	if err != nil {
		r.log.WithError(err).WithField("link_id", id).Error("Failed to delete link")
		return fmt.Errorf("failed to delete link %s: %w", id, err)
	}
	r.log.WithField("link_id", id).Debug("Link deleted")
	return nil
}

// Link returns the link with the given id.
func (r *BadgerRepository) Link(ctx context.Context, id uuid.UUID) (domain.Link, error) {
	var link domain.Link
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, entityKey(linkPrefix, id), &link)
	})
	if err != nil {
		return domain.Link{}, fmt.Errorf("failed to get link %s: %w", id, err)
	}
	return link, nil
}

// Links returns every link, newest first.
func (r *BadgerRepository) Links(ctx context.Context) ([]domain.Link, error) {
	return r.FindLinks(ctx, LinkFilter{})
}

// FindLinks returns the links matching filter, newest first.
func (r *BadgerRepository) FindLinks(ctx context.Context, filter LinkFilter) ([]domain.Link, error) {
	links, err := scanJSON[domain.Link](r.db, linkPrefix)
	if err != nil {
		r.log.WithError(err).Error("Failed to retrieve links from BadgerDB")
		return nil, fmt.Errorf("failed to get links: %w", err)
	}

	matched := links[:0]
	for _, link := range links {
		if filter.Match(link) {
			matched = append(matched, link)
		}
	}
	SortNewestFirst(matched)
	return matched, nil
}

// --- Tags ---

// InsertTag stores a new tag with a unique name.
func (r *BadgerRepository) InsertTag(ctx context.Context, tag domain.Tag) error {
	if err := r.insertNamed(tagPrefix, tagNamePrefix, tag.ID, tag.Name, tag); err != nil {
		r.log.WithError(err).WithField("tag_id", tag.ID).Error("Failed to insert tag")
		return fmt.Errorf("failed to insert tag %q: %w", tag.Name, err)
	}
	return nil
}

// UpdateTag replaces a stored tag, moving its name index if it was renamed.
func (r *BadgerRepository) UpdateTag(ctx context.Context, tag domain.Tag) error {
	var old domain.Tag
	if err := r.updateNamed(tagPrefix, tagNamePrefix, tag.ID, tag.Name, tag, &old, func() string { return old.Name }); err != nil {
		r.log.WithError(err).WithField("tag_id", tag.ID).Error("Failed to update tag")
		return fmt.Errorf("failed to update tag %s: %w", tag.ID, err)
	}
	return nil
}

// DeleteTag removes a tag and its name index. Links keep their snapshot.
func (r *BadgerRepository) DeleteTag(ctx context.Context, id uuid.UUID) error {
	var old domain.Tag
	if err := r.deleteNamed(tagPrefix, tagNamePrefix, id, &old, func() string { return old.Name }); err != nil {
		r.log.WithError(err).WithField("tag_id", id).Error("Failed to delete tag")
		return fmt.Errorf("failed to delete tag %s: %w", id, err)
	}
	return nil
}

// Tag returns the tag with the given id.
func (r *BadgerRepository) Tag(ctx context.Context, id uuid.UUID) (domain.Tag, error) {
	var tag domain.Tag
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, entityKey(tagPrefix, id), &tag)
	})
	if err != nil {
		return domain.Tag{}, fmt.Errorf("failed to get tag %s: %w", id, err)
	}
	return tag, nil
}

// Tags returns every tag ordered by name.
func (r *BadgerRepository) Tags(ctx context.Context) ([]domain.Tag, error) {
	tags, err := scanJSON[domain.Tag](r.db, tagPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get tags: %w", err)
	}
	sort.Slice(tags, func(i, j int) bool { return strings.ToLower(tags[i].Name) < strings.ToLower(tags[j].Name) })
	return tags, nil
}

// --- Groups ---

// InsertGroup stores a new group with a unique name.
func (r *BadgerRepository) InsertGroup(ctx context.Context, group domain.Group) error {
	if err := r.insertNamed(groupPrefix, groupNamePrefix, group.ID, group.Name, group); err != nil {
		r.log.WithError(err).WithField("group_id", group.ID).Error("Failed to insert group")
		return fmt.Errorf("failed to insert group %q: %w", group.Name, err)
	}
	return nil
}

// UpdateGroup replaces a stored group, moving its name index if it was renamed.
func (r *BadgerRepository) UpdateGroup(ctx context.Context, group domain.Group) error {
	var old domain.Group
	if err := r.updateNamed(groupPrefix, groupNamePrefix, group.ID, group.Name, group, &old, func() string { return old.Name }); err != nil {
		r.log.WithError(err).WithField("group_id", group.ID).Error("Failed to update group")
		return fmt.Errorf("failed to update group %s: %w", group.ID, err)
	}
	return nil
}

// DeleteGroup removes a group and its name index.
func (r *BadgerRepository) DeleteGroup(ctx context.Context, id uuid.UUID) error {
	var old domain.Group
	if err := r.deleteNamed(groupPrefix, groupNamePrefix, id, &old, func() string { return old.Name }); err != nil {
		r.log.WithError(err).WithField("group_id", id).Error("Failed to delete group")
		return fmt.Errorf("failed to delete group %s: %w", id, err)
	}
	return nil
}

// Group returns the group with the given id.
func (r *BadgerRepository) Group(ctx context.Context, id uuid.UUID) (domain.Group, error) {
	var group domain.Group
	err := r.db.View(func(txn *badger.Txn) error {
		return getJSON(txn, entityKey(groupPrefix, id), &group)
	})
	if err != nil {
		return domain.Group{}, fmt.Errorf("failed to get group %s: %w", id, err)
	}
	return group, nil
}

// Groups returns every group ordered by name.
func (r *BadgerRepository) Groups(ctx context.Context) ([]domain.Group, error) {
	groups, err := scanJSON[domain.Group](r.db, groupPrefix)
	if err != nil {
		return nil, fmt.Errorf("failed to get groups: %w", err)
	}
	sort.Slice(groups, func(i, j int) bool { return strings.ToLower(groups[i].Name) < strings.ToLower(groups[j].Name) })
	return groups, nil
}

// --- Transaction helpers ---

func (r *BadgerRepository) update(fn func(txn *badger.Txn) error) error {
	r.writeMu.Lock()
	defer r.writeMu.Unlock()
	return r.db.Update(fn)
}

func (r *BadgerRepository) insertNamed(prefix, namePrefix string, id uuid.UUID, name string, value any) error {
	key, nk := entityKey(prefix, id), nameKey(namePrefix, name)
	return r.update(func(txn *badger.Txn) error {
		if exists, err := keyExists(txn, key); err != nil {
			return err
		} else if exists {
			return ErrAlreadyExists
		}
		if exists, err := keyExists(txn, nk); err != nil {
			return err
		} else if exists {
			return ErrDuplicateName
		}
		if err := txn.Set(nk, []byte(id.String())); err != nil {
			return err
		}
		return setJSON(txn, key, value)
	})
}

// updateNamed loads the stored value into old, then rewrites it. oldName
// reads the previous name once old has been loaded.
func (r *BadgerRepository) updateNamed(prefix, namePrefix string, id uuid.UUID, name string, value, old any, oldName func() string) error {
	key, nk := entityKey(prefix, id), nameKey(namePrefix, name)
	return r.update(func(txn *badger.Txn) error {
		if err := getJSON(txn, key, old); err != nil {
			return err
		}
		prev := nameKey(namePrefix, oldName())
		if string(prev) != string(nk) {
			if exists, err := keyExists(txn, nk); err != nil {
				return err
			} else if exists {
				return ErrDuplicateName
			}
			if err := txn.Delete(prev); err != nil {
				return err
			}
		}
		if err := txn.Set(nk, []byte(id.String())); err != nil {
			return err
		}
		return setJSON(txn, key, value)
	})
}

func (r *BadgerRepository) deleteNamed(prefix, namePrefix string, id uuid.UUID, old any, oldName func() string) error {
	key := entityKey(prefix, id)
	return r.update(func(txn *badger.Txn) error {
		if err := getJSON(txn, key, old); err != nil {
			return err
		}
		if err := txn.Delete(nameKey(namePrefix, oldName())); err != nil {
			return err
		}
		return txn.Delete(key)
	})
}

func keyExists(txn *badger.Txn, key []byte) (bool, error) {
	_, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return false, nil
	}
	if err != nil {
		return false, err
	}
	return true, nil
}

func setJSON(txn *badger.Txn, key []byte, value any) error {
	data, err := json.Marshal(value)
	if err != nil {
		return fmt.Errorf("failed to marshal value: %w", err)
	}
	return txn.SetEntry(badger.NewEntry(key, data))
}

func getJSON(txn *badger.Txn, key []byte, out any) error {
	item, err := txn.Get(key)
	if errors.Is(err, badger.ErrKeyNotFound) {
		return ErrNotFound
	}
	if err != nil {
		return err
	}
	return item.Value(func(val []byte) error {
		return json.Unmarshal(val, out)
	})
}

func scanJSON[T any](db *badger.DB, prefix string) ([]T, error) {
	var out []T
	err := db.View(func(txn *badger.Txn) error {
		it := txn.NewIterator(badger.DefaultIteratorOptions)
		defer it.Close()

		p := []byte(prefix)
		for it.Seek(p); it.ValidForPrefix(p); it.Next() {
			item := it.Item()
			var v T
			err := item.Value(func(val []byte) error {
				return json.Unmarshal(val, &v)
			})
			if err != nil {
				return fmt.Errorf("failed to unmarshal value for key %s: %w", string(item.Key()), err)
			}
			out = append(out, v)
		}
		return nil
	})
	return out, err
}

// --- BadgerDB Internal Logger ---

// badgerLogger adapts logrus.FieldLogger to Badger's logger interface.
type badgerLogger struct {
	logger logrus.FieldLogger
}

func (l *badgerLogger) Errorf(f string, v ...interface{}) {
	l.logger.Errorf(f, v...)
}
func (l *badgerLogger) Warningf(f string, v ...interface{}) {
	l.logger.Warningf(f, v...)
}
func (l *badgerLogger) Infof(f string, v ...interface{}) {
	l.logger.Infof(f, v...)
}
func (l *badgerLogger) Debugf(f string, v ...interface{}) {
	l.logger.Debugf(f, v...)
}
