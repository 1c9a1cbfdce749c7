package bolt

import (
	"context"
	"encoding/binary"
	"encoding/json"
	"fmt"
	"slices"
	"time"

	bbolt "go.etcd.io/bbolt"

	"github.com/haukened/serpfilter/internal/serp/common/clock"
	"github.com/haukened/serpfilter/internal/serp/domain"
	"github.com/haukened/serpfilter/internal/serp/repos/blocklist"
)

var (
	bucketSync = []byte("sync")
	bucketMeta = []byte("meta")

	metaVersion = []byte("version")
	metaUpdated = []byte("updated")
)

// boltStore implements blocklist.Store using bbolt.
// Values are JSON arrays of strings stored under their key in the sync bucket.
type boltStore struct {
	blocklist.Broadcaster
	db    *bbolt.DB
	clock clock.Clock
}

// New opens (or creates) a Bolt database at path and ensures buckets exist.
func New(path string, clk clock.Clock) (blocklist.Store, error) {
	if clk == nil {
		clk = clock.RealClock{}
	}
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: 1 * time.Second})
	if err != nil {
		return nil, fmt.Errorf("open blocklist store %s: %w", path, err)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		if _, err := tx.CreateBucketIfNotExists(bucketSync); err != nil {
			return err
		}
		if _, err := tx.CreateBucketIfNotExists(bucketMeta); err != nil {
			return err
		}
		return nil
	}); err != nil {
		_ = db.Close()
		return nil, err
	}
	return &boltStore{db: db, clock: clk}, nil
}

func (s *boltStore) Close() error { return s.db.Close() }

func (s *boltStore) Get(ctx context.Context, key string) ([]string, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	var out []string
	err := s.db.View(func(tx *bbolt.Tx) error {
		v, err := readValue(tx, key)
		out = v
		return err
	})
	if err != nil {
		return nil, err
	}
	return out, nil
}

func (s *boltStore) Set(ctx context.Context, key string, value []string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	next := slices.Clone(value)
	if next == nil {
		next = []string{}
	}
	raw, err := json.Marshal(next)
	if err != nil {
		return fmt.Errorf("encode %s: %w", key, err)
	}

	var (
		old     []string
		changed bool
	)
	err = s.db.Update(func(tx *bbolt.Tx) error {
		prev, err := readValue(tx, key)
		if err != nil {
			return err
		}
		old = prev
		if slices.Equal(prev, next) && tx.Bucket(bucketSync).Get([]byte(key)) != nil {
			return nil
		}
		changed = true
		if err := tx.Bucket(bucketSync).Put([]byte(key), raw); err != nil {
			return err
		}
		return bumpMeta(tx, s.clock.Now().Unix())
	})
	if err != nil {
		return err
	}
	if changed {
		s.Publish(domain.StoreChange{Key: key, OldValue: old, NewValue: slices.Clone(next)})
	}
	return nil
}

func (s *boltStore) Stats() blocklist.StoreStats {
	st := blocklist.StoreStats{}
	_ = s.db.View(func(tx *bbolt.Tx) error {
		if b := tx.Bucket(bucketSync); b != nil {
			st.Keys = uint64(b.Stats().KeyN)
		}
		if b := tx.Bucket(bucketMeta); b != nil {
			if v := b.Get(metaVersion); len(v) == 8 {
				st.Version = binary.BigEndian.Uint64(v)
			}
			if v := b.Get(metaUpdated); len(v) == 8 {
				st.UpdatedUnix = int64(binary.BigEndian.Uint64(v))
			}
		}
		return nil
	})
	return st
}

// readValue decodes the list under key; a missing key yields an empty list.
func readValue(tx *bbolt.Tx, key string) ([]string, error) {
	b := tx.Bucket(bucketSync)
	if b == nil {
		return []string{}, nil
	}
	v := b.Get([]byte(key))
	if v == nil {
		return []string{}, nil
	}
	var out []string
	if err := json.Unmarshal(v, &out); err != nil {
		return nil, fmt.Errorf("decode %s: %w", key, err)
	}
	if out == nil {
		out = []string{}
	}
	return out, nil
}

func bumpMeta(tx *bbolt.Tx, updatedUnix int64) error {
	b := tx.Bucket(bucketMeta)
	var version uint64
	if v := b.Get(metaVersion); len(v) == 8 {
		version = binary.BigEndian.Uint64(v)
	}
	vbuf := make([]byte, 8)
	ubuf := make([]byte, 8)
	binary.BigEndian.PutUint64(vbuf, version+1)
	binary.BigEndian.PutUint64(ubuf, uint64(updatedUnix))
	if err := b.Put(metaVersion, vbuf); err != nil {
		return err
	}
	return b.Put(metaUpdated, ubuf)
}
