package imagecache

import (
	"context"
	"errors"
	"fmt"

	"github.com/dgraph-io/badger/v4"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"linkstash/internal/storage"
)

// Badger keeps images in their own badger database, one key per link.
type Badger struct {
	db  *badger.DB
	log logrus.FieldLogger
}

var _ Cache = (*Badger)(nil)

// NewBadger opens (or creates) the image database at dir.
func NewBadger(dir string, logger logrus.FieldLogger) (*Badger, error) {
	db, err := storage.OpenBadger(dir, logger)
	if err != nil {
		return nil, err
	}
	return &Badger{db: db, log: logger.WithField("component", "image_cache")}, nil
}

func imageKey(id uuid.UUID) []byte {
	return []byte("image:" + id.String())
}

// Get returns the cached bytes for id.
func (c *Badger) Get(ctx context.Context, id uuid.UUID) ([]byte, error) {
	var data []byte
	err := c.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(imageKey(id))
		if err != nil {
			return err
		}
		data, err = item.ValueCopy(nil)
		return err
	})
	if errors.Is(err, badger.ErrKeyNotFound) {
		return nil, ErrNotFound
	}
	if err != nil {
		return nil, fmt.Errorf("failed to read image %s: %w", id, err)
	}
	return data, nil
}

// Put stores data under id, replacing any previous image.
func (c *Badger) Put(ctx context.Context, id uuid.UUID, data []byte) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.SetEntry(badger.NewEntry(imageKey(id), data))
	})
	if err != nil {
		c.log.WithError(err).WithField("link_id", id).Error("Failed to store image")
		return fmt.Errorf("failed to store image %s: %w", id, err)
	}
	c.log.WithFields(logrus.Fields{"link_id": id, "bytes": len(data)}).Debug("Image stored")
	return nil
}

// Delete removes the image for id.
func (c *Badger) Delete(ctx context.Context, id uuid.UUID) error {
	err := c.db.Update(func(txn *badger.Txn) error {
		return txn.Delete(imageKey(id))
	})
	if err != nil {
		return fmt.Errorf("failed to delete image %s: %w", id, err)
	}
	return nil
}

// Close closes the underlying database.
func (c *Badger) Close() error {
	return c.db.Close()
}
