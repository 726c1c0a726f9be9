package store

import (
	"context"
	"fmt"
	"time"

	bolt "go.etcd.io/bbolt"
)

var settingsBucket = []byte("settings")

type Bolt struct {
	db *bolt.DB
}

func OpenBolt(path string) (*Bolt, error) {
	db, err := bolt.Open(path, 0o600, &bolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, fmt.Errorf("opening bolt database: %w", err)
	}

	err = db.Update(func(tx *bolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(settingsBucket)
		return err
	})
	if err != nil {
		_ = db.Close()
		return nil, fmt.Errorf("creating settings bucket: %w", err)
	}
	return &Bolt{db: db}, nil
}

func (b *Bolt) LastRemote(ctx context.Context) (string, error) {
	if err := ctx.Err(); err != nil {
		return "", err
	}

	var id string
	err := b.db.View(func(tx *bolt.Tx) error {
		id = string(tx.Bucket(settingsBucket).Get([]byte(lastRemoteKey)))
		return nil
	})
	return id, err
}

func (b *Bolt) SetLastRemote(ctx context.Context, id string) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	return b.db.Update(func(tx *bolt.Tx) error {
		bucket := tx.Bucket(settingsBucket)
		if id == "" {
			return bucket.Delete([]byte(lastRemoteKey))
		}
		return bucket.Put([]byte(lastRemoteKey), []byte(id))
	})
}

func (b *Bolt) Close() error {
	return b.db.Close()
}
