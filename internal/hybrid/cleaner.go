package hybrid

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"math"
	"sync"
	"time"

	"github.com/syntrixbase/hybridindex/internal/async"
	"github.com/syntrixbase/hybridindex/internal/clock"
	"github.com/syntrixbase/hybridindex/internal/indexconfig"
	"github.com/syntrixbase/hybridindex/internal/tree"
)

// cleanerUser is the commit user of cleaner merges.
const cleanerUser = "hybrid-index-cleaner"

// CleanupStats summarizes one cleaner run.
type CleanupStats struct {
	IndexesScanned int
	IndexesSkipped int
	IndexesCleaned int
	IndexesFailed  int
	Rotations      int
	PurgedEntries  int
	RemovedEntries int
	Elapsed        time.Duration
}

// LogValue implements slog.LogValuer.
func (s CleanupStats) LogValue() slog.Value {
	return slog.GroupValue(
		slog.Int("scanned", s.IndexesScanned),
		slog.Int("skipped", s.IndexesSkipped),
		slog.Int("cleaned", s.IndexesCleaned),
		slog.Int("failed", s.IndexesFailed),
		slog.Int("rotations", s.Rotations),
		slog.Int("purged", s.PurgedEntries),
		slog.Int("removed", s.RemovedEntries),
		slog.Duration("elapsed", s.Elapsed),
	)
}

// Cleaner retires synchronous index entries once the async lane of their
// index has made progress. Each index is cleaned in its own merge.
type Cleaner struct {
	store    tree.NodeStore
	paths    func() []string
	provider async.Provider
	clock    clock.Clock
	logger   *slog.Logger

	mu        sync.Mutex
	threshold int64 // milliseconds
	lastStats CleanupStats
}

// CleanerOption configures a Cleaner.
type CleanerOption func(*Cleaner)

// WithClock sets the clock used to stamp cleaner state.
func WithClock(clk clock.Clock) CleanerOption {
	return func(c *Cleaner) {
		if clk != nil {
			c.clock = clk
		}
	}
}

// NewCleaner creates a cleaner over the candidate index paths returned by
// paths.
func NewCleaner(store tree.NodeStore, paths func() []string, provider async.Provider, logger *slog.Logger, opts ...CleanerOption) *Cleaner {
	if logger == nil {
		logger = slog.Default()
	}
	c := &Cleaner{
		store:     store,
		paths:     paths,
		provider:  provider,
		clock:     clock.NewReal(),
		logger:    logger.With("component", "hybrid-cleaner"),
		threshold: math.MaxInt64,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// SetCreatedTimeThreshold sets how far the watermark must be past the
// creation time of a unique entry before the entry is purged. Zero or a
// negative duration purges every entry older than the watermark.
func (c *Cleaner) SetCreatedTimeThreshold(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.threshold = max(d.Milliseconds(), 0)
}

func (c *Cleaner) createdTimeThreshold() int64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.threshold
}

// LastStats returns the statistics of the most recent run.
func (c *Cleaner) LastStats() CleanupStats {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.lastStats
}

// GetSyncIndexPaths returns the candidate paths that have received at least
// one synchronous entry.
func (c *Cleaner) GetSyncIndexPaths() []string {
	root := c.store.Root()
	var paths []string
	for _, p := range c.paths() {
		if tree.GetNode(root, p).Child(SyncIndexNode).ChildCount() > 0 {
			paths = append(paths, p)
		}
	}
	return paths
}

// Run performs one pass over all sync index paths and reports whether any
// index was changed. A failing index does not stop the pass; all failures
// are returned joined.
func (c *Cleaner) Run(ctx context.Context) (bool, error) {
	start := time.Now()
	threshold := c.createdTimeThreshold()

	var stats CleanupStats
	var errs []error
	changed := false
	for _, path := range c.GetSyncIndexPaths() {
		if err := ctx.Err(); err != nil {
			errs = append(errs, err)
			break
		}
		stats.IndexesScanned++
		cleaned, err := c.cleanIndex(ctx, path, threshold, &stats)
		switch {
		case err != nil:
			stats.IndexesFailed++
			cleanerFailures.WithLabelValues(path).Inc()
			c.logger.Warn("Index cleanup failed", "index", path, "error", err)
			errs = append(errs, fmt.Errorf("index %s: %w", path, err))
		case cleaned:
			stats.IndexesCleaned++
			changed = true
		default:
			stats.IndexesSkipped++
		}
	}
	stats.Elapsed = time.Since(start)

	c.mu.Lock()
	c.lastStats = stats
	c.mu.Unlock()

	err := errors.Join(errs...)
	switch {
	case err != nil:
		cleanerRuns.WithLabelValues("error").Inc()
	case changed:
		cleanerRuns.WithLabelValues("changed").Inc()
	default:
		cleanerRuns.WithLabelValues("noop").Inc()
	}
	if changed || err != nil {
		c.logger.Info("Cleanup finished", "stats", stats)
	} else {
		c.logger.Debug("Cleanup finished", "stats", stats)
	}
	return changed, err
}

// cleanIndex rotates or purges the entries of one index and records the
// watermark it acted upon, all in one merge.
func (c *Cleaner) cleanIndex(ctx context.Context, path string, threshold int64, stats *CleanupStats) (bool, error) {
	root := c.store.Root()
	index := tree.GetNode(root, path)

	lane := indexconfig.DefaultLane
	def, defErr := indexconfig.Read(root, path)
	if defErr == nil {
		lane = def.Lane
	}

	info, err := c.provider.LaneInfo(ctx, lane)
	if errors.Is(err, async.ErrLaneNotFound) {
		c.logger.Debug("No progress reported for lane", "index", path, "lane", lane)
		return false, nil
	}
	if err != nil {
		return false, err
	}

	watermark := info.LastIndexedTo
	state := index.Child(CleanerStateNode)
	if lastSeen, ok := state.Int64(propLastIndexedTo); ok {
		if watermark == lastSeen {
			c.logger.Debug("Lane has not advanced", "index", path, "lane", lane, "watermark", watermark)
			return false, nil
		}
		if watermark < lastSeen {
			c.logger.Warn("Lane watermark went backwards", "index", path, "lane", lane,
				"watermark", watermark, "lastSeen", lastSeen)
			return false, nil
		}
	}

	builder := root.Builder()
	ib := builder.ChildPath(path)
	entries := ib.Child(SyncIndexNode)

	var rotations, purged, removed int
	index.Child(SyncIndexNode).EachChild(func(property string, bucket *tree.NodeState) bool {
		pb := entries.Child(property)
		unique := bucket.Bool(propUnique)
		if defErr == nil {
			unique = def.Unique
		}
		if unique {
			purged += purgeAged(pb, bucket, watermark, threshold)
		} else {
			removed += rotate(pb, bucket)
			rotations++
		}
		return true
	})

	ib.Child(CleanerStateNode).
		SetString(propLane, lane).
		SetInt64(propLastIndexedTo, watermark).
		SetInt64(propLastRunAt, c.clock.Millis())

	commit := tree.NewCommitInfo(cleanerUser, fmt.Sprintf("cleanup %s at %d", path, watermark))
	if _, err := c.store.Merge(ctx, builder, nil, commit); err != nil {
		return false, err
	}

	stats.Rotations += rotations
	stats.PurgedEntries += purged
	stats.RemovedEntries += removed
	cleanerRotations.WithLabelValues(path).Add(float64(rotations))
	cleanerPurged.WithLabelValues(path).Add(float64(purged + removed))
	cleanerWatermark.WithLabelValues(path).Set(float64(watermark))

	c.logger.Info("Index cleaned", "index", path, "lane", lane, "watermark", watermark,
		"rotations", rotations, "purged", purged, "removed", removed)
	return true, nil
}

// rotate drops the previous generation, demotes current to previous and
// starts an empty current. It returns the number of entries dropped.
func rotate(pb *tree.NodeBuilder, bucket *tree.NodeState) int {
	dropped := countEntries(bucket.Child(Previous.String()))
	pb.SetChildNode(Previous.String(), bucket.Child(Current.String()))
	pb.SetChildNode(Current.String(), tree.EmptyNode)
	return dropped
}

// purgeAged removes the unique entries whose age at watermark exceeds the
// threshold. Entries are judged one by one. Entries without createdAt were
// written while the index was plain: in previous they have already been
// demoted once and are dropped, in current they are stamped with the
// watermark and age from there.
func purgeAged(pb *tree.NodeBuilder, bucket *tree.NodeState, watermark, threshold int64) int {
	purged := 0
	for _, g := range generations {
		genState := bucket.Child(g.String())
		if genState.ChildCount() == 0 {
			continue
		}
		gen := pb.Child(g.String())
		genState.EachChild(func(vk string, value *tree.NodeState) bool {
			remaining := value.ChildCount()
			value.EachChild(func(key string, leaf *tree.NodeState) bool {
				createdAt, ok := leaf.Int64(propCreatedAt)
				switch {
				case !ok && g == Current:
					gen.Child(vk).Child(key).SetInt64(propCreatedAt, watermark)
				case !ok || expired(watermark, createdAt, threshold):
					gen.Child(vk).RemoveChild(key)
					remaining--
					purged++
				}
				return true
			})
			if remaining == 0 {
				gen.RemoveChild(vk)
			}
			return true
		})
	}
	return purged
}

// expired reports whether watermark - createdAt > threshold without
// overflowing.
func expired(watermark, createdAt, threshold int64) bool {
	if createdAt > watermark {
		return false
	}
	age := watermark - createdAt
	if age < 0 {
		// overflow: createdAt is far in the past
		return true
	}
	return age > threshold
}
