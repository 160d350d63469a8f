// Package persist is Quark's optional snapshot store: a periodic,
// zstd-compressed dump of the byte cache's resident-path index to a local
// bbolt file, restored best-effort at startup so a freshly remounted
// Quark can immediately re-warm the files it held before a restart.
//
// This is a convenience, never part of the read-path contract (spec.md
// §6: "Optional save/load for predictors is a convenience and not part of
// the contract"). Grounded on internal/backend/arpc/fs.go's bbolt-backed
// logWorker/flushBatch: a single background goroutine writes a snapshot on
// each ticker tick and once more on shutdown. There is no size-triggered
// flush.
package persist

import (
	"bytes"
	"encoding/gob"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/klauspost/compress/zstd"
	"github.com/zeebo/xxh3"
	"go.etcd.io/bbolt"

	"github.com/sonroyaalmerol/quark/internal/cache"
	"github.com/sonroyaalmerol/quark/internal/qlog"
)

var bucketName = []byte("quark_snapshot")
var snapshotKey = []byte("residents")

// Snapshot is the serialized shape persisted to bbolt.
type Snapshot struct {
	Residents []string
	SavedUnix int64
}

// Store periodically snapshots a cache's resident-path index into a bbolt
// file, and can restore the most recent one at startup. It owns no
// prefetch behavior itself; callers decide whether to re-enqueue restored
// paths with a fetch.Worker.
type Store struct {
	db  *bbolt.DB
	c   *cache.Cache
	log *qlog.Logger

	interval time.Duration
	quit     chan struct{}
	done     chan struct{}

	lastSig uint64 // xxh3 hash of the last written resident set; skips redundant writes
}

// Open opens (creating if needed) a bbolt file at path for snapshotting c
// on interval.
func Open(path string, c *cache.Cache, l *qlog.Logger, interval time.Duration) (*Store, error) {
	db, err := bbolt.Open(path, 0o600, &bbolt.Options{Timeout: time.Second})
	if err != nil {
		return nil, errors.Wrapf(err, "open snapshot store %q", path)
	}
	if err := db.Update(func(tx *bbolt.Tx) error {
		_, err := tx.CreateBucketIfNotExists(bucketName)
		return err
	}); err != nil {
		db.Close()
		return nil, errors.Wrap(err, "create snapshot bucket")
	}

	if interval <= 0 {
		interval = 30 * time.Second
	}
	return &Store{
		db:       db,
		c:        c,
		log:      l,
		interval: interval,
		quit:     make(chan struct{}),
		done:     make(chan struct{}),
	}, nil
}

// Run starts the periodic-snapshot goroutine. It flushes once more before
// returning when Stop is called, matching logWorker's shutdown flush.
func (s *Store) Run() {
	go s.loop()
}

func (s *Store) loop() {
	defer close(s.done)
	ticker := time.NewTicker(s.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			s.snapshot()
		case <-s.quit:
			s.snapshot()
			return
		}
	}
}

// Stop flushes a final snapshot, closes the bbolt file, and waits for the
// background goroutine to exit.
func (s *Store) Stop() error {
	close(s.quit)
	<-s.done
	return s.db.Close()
}

// residentSignature hashes the resident set the way
// internal/backend/arpc/fs.go's hashPath hashes individual paths, so a
// snapshot tick with no change since the last write can skip the bbolt
// transaction entirely.
func residentSignature(residents []string) uint64 {
	return xxh3.HashString(strings.Join(residents, "\x00"))
}

func (s *Store) snapshot() {
	_, residents := s.c.Status()
	sig := residentSignature(residents)
	if sig == s.lastSig {
		return
	}
	snap := Snapshot{Residents: residents, SavedUnix: time.Now().Unix()}

	var raw bytes.Buffer
	if err := gob.NewEncoder(&raw).Encode(snap); err != nil {
		s.logError(err, "encode snapshot")
		return
	}

	enc, err := zstd.NewWriter(nil)
	if err != nil {
		s.logError(err, "create zstd encoder")
		return
	}
	defer enc.Close()
	compressed := enc.EncodeAll(raw.Bytes(), nil)

	err = s.db.Update(func(tx *bbolt.Tx) error {
		return tx.Bucket(bucketName).Put(snapshotKey, compressed)
	})
	if err != nil {
		s.logError(err, "write snapshot")
		return
	}
	s.lastSig = sig
}

// Load returns the most recently persisted snapshot, or (Snapshot{},
// false) if none exists.
func (s *Store) Load() (Snapshot, bool) {
	var compressed []byte
	_ = s.db.View(func(tx *bbolt.Tx) error {
		v := tx.Bucket(bucketName).Get(snapshotKey)
		if v != nil {
			compressed = append([]byte(nil), v...)
		}
		return nil
	})
	if compressed == nil {
		return Snapshot{}, false
	}

	dec, err := zstd.NewReader(nil)
	if err != nil {
		s.logError(err, "create zstd decoder")
		return Snapshot{}, false
	}
	defer dec.Close()
	raw, err := dec.DecodeAll(compressed, nil)
	if err != nil {
		s.logError(err, "decode snapshot")
		return Snapshot{}, false
	}

	var snap Snapshot
	if err := gob.NewDecoder(bytes.NewReader(raw)).Decode(&snap); err != nil {
		s.logError(err, "decode gob snapshot")
		return Snapshot{}, false
	}
	return snap, true
}

func (s *Store) logError(err error, msg string) {
	if s.log != nil {
		s.log.Error(err).WithMessage(msg).Write()
	}
}
