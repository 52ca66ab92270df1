// Package persist_store provides a durable tree.NodeStore backed by PebbleDB.
//
// The committed root is kept in memory for snapshot reads. Every merge
// writes the nodes that changed as one pebble batch before the new head is
// published, so a reopened store resumes from the last successful commit.
package persist_store

import (
	"errors"
	"fmt"
	"log/slog"
	"os"
	"sync/atomic"

	"github.com/cockroachdb/pebble"
	"github.com/cockroachdb/pebble/bloom"
	"github.com/syntrixbase/hybridindex/internal/tree"
)

// Config configures the PebbleStore.
type Config struct {
	// Path is the directory to store the database.
	Path string `yaml:"path"`

	// BlockCacheSize is the size of the block cache in bytes.
	BlockCacheSize int64 `yaml:"block_cache_size"`

	// Sync forces an fsync on every commit.
	Sync bool `yaml:"sync"`
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		Path:           "data/hybridindex/tree.db",
		BlockCacheSize: 64 * 1024 * 1024, // 64MB
		Sync:           true,
	}
}

// PebbleStore implements tree.NodeStore on PebbleDB.
type PebbleStore struct {
	*tree.MemoryNodeStore

	db        DB
	logger    *slog.Logger
	writeOpts *pebble.WriteOptions
	head      atomic.Value // string
}

var _ tree.NodeStore = (*PebbleStore)(nil)

// Open opens (or creates) the store at cfg.Path and loads the last
// committed root.
func Open(cfg Config, logger *slog.Logger) (*PebbleStore, error) {
	if cfg.Path == "" {
		return nil, fmt.Errorf("store path is required")
	}

	if err := os.MkdirAll(cfg.Path, 0755); err != nil {
		return nil, fmt.Errorf("failed to create store directory: %w", err)
	}

	cacheSize := cfg.BlockCacheSize
	if cacheSize <= 0 {
		cacheSize = DefaultConfig().BlockCacheSize
	}
	cache := pebble.NewCache(cacheSize)
	defer cache.Unref()

	dbOpts := &pebble.Options{
		Cache: cache,
		Levels: []pebble.LevelOptions{
			{FilterPolicy: bloom.FilterPolicy(10)}, // 10 bits per key, ~1% false positive
		},
	}

	db, err := pebble.Open(cfg.Path, dbOpts)
	if err != nil {
		return nil, fmt.Errorf("failed to open pebble database: %w", err)
	}

	s, err := newStore(&PebbleDB{db: db}, cfg, logger)
	if err != nil {
		db.Close()
		return nil, err
	}
	return s, nil
}

func newStore(db DB, cfg Config, logger *slog.Logger) (*PebbleStore, error) {
	if logger == nil {
		logger = slog.Default()
	}

	s := &PebbleStore{
		db:        db,
		logger:    logger.With("component", "tree-store"),
		writeOpts: pebble.NoSync,
	}
	if cfg.Sync {
		s.writeOpts = pebble.Sync
	}

	root, count, err := s.load()
	if err != nil {
		return nil, err
	}
	head, err := s.loadHead()
	if err != nil {
		return nil, err
	}
	s.head.Store(head)

	s.MemoryNodeStore = tree.NewMemoryNodeStore(
		tree.WithInitialRoot(root),
		tree.WithCommitObserver(s.persist),
		tree.WithLogger(logger),
	)

	s.logger.Info("tree store opened", "path", cfg.Path, "nodes", count, "head", head)
	return s, nil
}

// Close closes the underlying database.
func (s *PebbleStore) Close() error {
	if err := s.db.Close(); err != nil {
		return fmt.Errorf("failed to close pebble database: %w", err)
	}
	return nil
}

// Head returns the ID of the last persisted commit, "" for a fresh store.
func (s *PebbleStore) Head() string {
	head, _ := s.head.Load().(string)
	return head
}

// load rebuilds the committed tree from all node keys.
func (s *PebbleStore) load() (*tree.NodeState, int, error) {
	lower, upper := subtreeBounds(tree.RootPath)
	iter, err := s.db.NewIter(&pebble.IterOptions{
		LowerBound: lower,
		UpperBound: upper,
	})
	if err != nil {
		return nil, 0, fmt.Errorf("failed to create iterator: %w", err)
	}
	defer iter.Close()

	b := tree.EmptyNode.Builder()
	count := 0
	for valid := iter.First(); valid; valid = iter.Next() {
		path, err := parseNodeKey(iter.Key())
		if err != nil {
			return nil, 0, err
		}
		nb := b.ChildPath(path)
		if err := decodeProperties(iter.Value(), nb); err != nil {
			return nil, 0, fmt.Errorf("node %s: %w", path, err)
		}
		count++
	}
	if err := iter.Error(); err != nil {
		return nil, 0, fmt.Errorf("failed to scan nodes: %w", err)
	}
	return b.NodeState(), count, nil
}

func (s *PebbleStore) loadHead() (string, error) {
	value, closer, err := s.db.Get([]byte(keyHead))
	if errors.Is(err, pebble.ErrNotFound) {
		return "", nil
	}
	if err != nil {
		return "", fmt.Errorf("failed to read head: %w", err)
	}
	defer closer.Close()
	return string(value), nil
}

// persist writes the difference between two heads as one batch.
func (s *PebbleStore) persist(before, after *tree.NodeState, info tree.CommitInfo) error {
	batch := s.db.NewBatch()
	defer batch.Close()

	written, removed := 0, 0
	err := tree.Diff(tree.RootPath, before, after, func(path string, b, a *tree.NodeState) (bool, error) {
		if !a.Exists() {
			if err := batch.Delete(nodeKey(path), nil); err != nil {
				return false, err
			}
			lower, upper := subtreeBounds(path)
			if err := batch.DeleteRange(lower, upper, nil); err != nil {
				return false, err
			}
			removed++
			return false, nil
		}
		if !b.Exists() || !tree.SameProperties(b, a) {
			data, err := encodeProperties(a)
			if err != nil {
				return false, fmt.Errorf("node %s: %w", path, err)
			}
			if err := batch.Set(nodeKey(path), data, nil); err != nil {
				return false, err
			}
			written++
		}
		return true, nil
	})
	if err != nil {
		return fmt.Errorf("failed to stage commit: %w", err)
	}

	if err := batch.Set([]byte(keyHead), []byte(info.ID), nil); err != nil {
		return fmt.Errorf("failed to stage head: %w", err)
	}
	if err := batch.Commit(s.writeOpts); err != nil {
		return fmt.Errorf("failed to commit batch: %w", err)
	}
	s.head.Store(info.ID)

	s.logger.Debug("commit persisted", "commit", info.ID, "written", written, "removed", removed)
	return nil
}
