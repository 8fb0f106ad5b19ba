// Copyright 2018 Dan Jacques. All rights reserved.
// Use of this source code is governed under the MIT License
// that can be found in the LICENSE file.

// Package cache persists the cut sections resolved for a capture, so that a
// later run with the same configuration can skip the analysis pass.
package cache

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/danjacques/godemocut/pattern"
	"github.com/danjacques/godemocut/support/logging"

	"github.com/dgraph-io/badger/v3"
	"github.com/pkg/errors"
)

// DefaultTTL is the lifetime of a cache entry.
const DefaultTTL = 30 * 24 * time.Hour

// Store is a badger-backed cut section cache. It is safe for concurrent use.
type Store struct {
	db *badger.DB

	// TTL is the lifetime of new entries. If zero, entries never expire.
	TTL time.Duration
}

// Open opens (creating if necessary) the cache in dir. If dir is empty, the
// cache is held in memory.
func Open(dir string, logger logging.L) (*Store, error) {
	opts := badger.DefaultOptions(dir)
	if dir == "" {
		opts = opts.WithInMemory(true)
	}
	opts.Logger = badgerLogger{logging.Must(logger)}

	db, err := badger.Open(opts)
	if err != nil {
		return nil, errors.Wrapf(err, "opening cache %q", dir)
	}
	return &Store{db: db, TTL: DefaultTTL}, nil
}

// Close closes the cache.
func (s *Store) Close() error { return s.db.Close() }

// entry is the stored value.
type entry struct {
	Sections []pattern.CutSection `json:"sections"`
}

// Key returns the cache key for a capture file, as it is on disk, analyzed
// with a configuration identified by fingerprint.
//
// The file's size and modification time are part of the key, so a modified
// file misses the cache.
func Key(path string, fingerprint string) ([]byte, error) {
	st, err := os.Stat(path)
	if err != nil {
		return nil, err
	}

	h := sha256.New()
	fmt.Fprintf(h, "%s\x00%d\x00%d\x00%s", path, st.Size(), st.ModTime().UnixNano(), fingerprint)
	return []byte("sections:" + hex.EncodeToString(h.Sum(nil))), nil
}

// Get returns the sections stored for key. The returned bool is false if key
// is not in the cache.
func (s *Store) Get(key []byte) ([]pattern.CutSection, bool, error) {
	var e entry
	err := s.db.View(func(txn *badger.Txn) error {
		item, err := txn.Get(key)
		if err != nil {
			return err
		}
		return item.Value(func(v []byte) error { return json.Unmarshal(v, &e) })
	})
	switch err {
	case nil:
		return e.Sections, true, nil
	case badger.ErrKeyNotFound:
		return nil, false, nil
	default:
		return nil, false, errors.Wrap(err, "reading cache entry")
	}
}

// Put stores sections under key.
func (s *Store) Put(key []byte, sections []pattern.CutSection) error {
	data, err := json.Marshal(&entry{Sections: sections})
	if err != nil {
		return errors.Wrap(err, "encoding cache entry")
	}

	err = s.db.Update(func(txn *badger.Txn) error {
		e := badger.NewEntry(key, data)
		if s.TTL > 0 {
			e = e.WithTTL(s.TTL)
		}
		return txn.SetEntry(e)
	})
	return errors.Wrap(err, "writing cache entry")
}

// badgerLogger adapts a logging.L to badger's Logger. badger's informational
// chatter is demoted to debug.
type badgerLogger struct {
	logging.L
}

func (l badgerLogger) Infof(format string, args ...interface{})    { l.L.Debugf(format, args...) }
func (l badgerLogger) Warningf(format string, args ...interface{}) { l.L.Warnf(format, args...) }
