package tree

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
)

// CommitInfo carries metadata about a commit.
type CommitInfo struct {
	ID      string
	User    string
	Message string
	Time    time.Time
}

// NewCommitInfo returns commit metadata with a fresh commit ID.
func NewCommitInfo(user, message string) CommitInfo {
	return CommitInfo{
		ID:      uuid.NewString(),
		User:    user,
		Message: message,
		Time:    time.Now(),
	}
}

// CommitHook validates or rewrites a commit. It receives the head the
// commit is applied to and the proposed new root, and returns the root to
// publish. A non-nil error rejects the whole commit.
type CommitHook interface {
	ProcessCommit(before, after *NodeState, info CommitInfo) (*NodeState, error)
}

// CommitHookFunc adapts a function to CommitHook.
type CommitHookFunc func(before, after *NodeState, info CommitInfo) (*NodeState, error)

// ProcessCommit implements CommitHook.
func (f CommitHookFunc) ProcessCommit(before, after *NodeState, info CommitInfo) (*NodeState, error) {
	return f(before, after, info)
}

// EmptyHook accepts every commit unchanged.
var EmptyHook CommitHook = CommitHookFunc(func(_, after *NodeState, _ CommitInfo) (*NodeState, error) {
	return after, nil
})

// CompositeHook runs hooks in order, each seeing the output of the previous.
func CompositeHook(hooks ...CommitHook) CommitHook {
	return CommitHookFunc(func(before, after *NodeState, info CommitInfo) (*NodeState, error) {
		var err error
		for _, h := range hooks {
			if h == nil {
				continue
			}
			after, err = h.ProcessCommit(before, after, info)
			if err != nil {
				return nil, err
			}
		}
		return after, nil
	})
}

// NodeStore is a transactional hierarchical store.
type NodeStore interface {
	// Root returns the current head snapshot.
	Root() *NodeState

	// Merge applies the changes staged on a root builder atomically and
	// returns the new head. On success the builder is reset to the new head.
	Merge(ctx context.Context, builder *NodeBuilder, hook CommitHook, info CommitInfo) (*NodeState, error)
}

// CommitObserver is called with the old and new head before a commit is
// published. An error aborts the commit.
type CommitObserver func(before, after *NodeState, info CommitInfo) error

// ErrNotRootBuilder is returned when Merge is given a child builder.
var ErrNotRootBuilder = errors.New("builder is not a root checkout")

// MemoryNodeStore keeps the head in memory and serializes merges.
type MemoryNodeStore struct {
	mu       sync.RWMutex
	head     *NodeState
	observer CommitObserver
	logger   *slog.Logger
}

// Option configures a MemoryNodeStore.
type Option func(*MemoryNodeStore)

// WithInitialRoot starts the store from an existing snapshot.
func WithInitialRoot(root *NodeState) Option {
	return func(s *MemoryNodeStore) {
		if root.Exists() {
			s.head = root
		}
	}
}

// WithCommitObserver installs an observer that runs inside every merge.
func WithCommitObserver(o CommitObserver) Option {
	return func(s *MemoryNodeStore) {
		s.observer = o
	}
}

// WithLogger sets the store logger.
func WithLogger(logger *slog.Logger) Option {
	return func(s *MemoryNodeStore) {
		if logger != nil {
			s.logger = logger
		}
	}
}

// NewMemoryNodeStore creates a store whose root is an empty node.
func NewMemoryNodeStore(opts ...Option) *MemoryNodeStore {
	s := &MemoryNodeStore{
		head:   EmptyNode,
		logger: slog.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.With("component", "node-store")
	return s
}

// Root implements NodeStore.
func (s *MemoryNodeStore) Root() *NodeState {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.head
}

// Merge implements NodeStore.
func (s *MemoryNodeStore) Merge(ctx context.Context, builder *NodeBuilder, hook CommitHook, info CommitInfo) (*NodeState, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	base := builder.Base()
	if base == nil {
		return nil, ErrNotRootBuilder
	}
	if hook == nil {
		hook = EmptyHook
	}
	if info.ID == "" {
		info.ID = uuid.NewString()
	}

	ours := builder.NodeState()

	s.mu.Lock()
	defer s.mu.Unlock()

	head := s.head
	merged := ours
	if base != head {
		var err error
		merged, err = rebase(RootPath, base, ours, head)
		if err != nil {
			s.logger.Debug("rebase failed", "commit", info.ID, "error", err)
			return nil, err
		}
	}

	after, err := hook.ProcessCommit(head, merged, info)
	if err != nil {
		return nil, err
	}

	if s.observer != nil {
		if err := s.observer(head, after, info); err != nil {
			return nil, fmt.Errorf("failed to persist commit %s: %w", info.ID, err)
		}
	}

	s.head = after
	builder.reset(after)
	return after, nil
}
