// Package async reports the progress of asynchronous indexing lanes.
//
// A lane is a named background indexer. Its watermark (LastIndexedTo) only
// moves forward and is expressed in milliseconds since the Unix epoch, the
// same unit used to stamp synchronous index entries.
package async

import (
	"context"
	"errors"
	"sync"
)

// ErrLaneNotFound is returned when a lane has not reported any progress.
var ErrLaneNotFound = errors.New("async lane not found")

// Info is the progress of one lane.
type Info struct {
	Lane          string `json:"lane"`
	LastIndexedTo int64  `json:"lastIndexedTo"`
}

// Provider reports lane progress.
type Provider interface {
	// LaneInfo returns the latest progress of a lane, or ErrLaneNotFound.
	LaneInfo(ctx context.Context, lane string) (Info, error)
}

// Reporter records lane progress. Implemented by the async indexer side.
type Reporter interface {
	Report(ctx context.Context, info Info) error
}

// MemoryProvider keeps lane progress in process memory.
type MemoryProvider struct {
	mu    sync.RWMutex
	lanes map[string]Info
}

var (
	_ Provider = (*MemoryProvider)(nil)
	_ Reporter = (*MemoryProvider)(nil)
)

// NewMemoryProvider creates an empty provider.
func NewMemoryProvider() *MemoryProvider {
	return &MemoryProvider{lanes: make(map[string]Info)}
}

// LaneInfo implements Provider.
func (p *MemoryProvider) LaneInfo(_ context.Context, lane string) (Info, error) {
	p.mu.RLock()
	defer p.mu.RUnlock()
	info, ok := p.lanes[lane]
	if !ok {
		return Info{}, ErrLaneNotFound
	}
	return info, nil
}

// Set records the watermark of a lane unconditionally.
func (p *MemoryProvider) Set(lane string, lastIndexedTo int64) {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.lanes[lane] = Info{Lane: lane, LastIndexedTo: lastIndexedTo}
}

// Report implements Reporter. Regressions are ignored.
func (p *MemoryProvider) Report(_ context.Context, info Info) error {
	p.advance(info)
	return nil
}

// Remove forgets a lane.
func (p *MemoryProvider) Remove(lane string) {
	p.mu.Lock()
	defer p.mu.Unlock()
	delete(p.lanes, lane)
}

// advance stores info unless it would move the lane backwards. It reports
// whether the stored value changed.
func (p *MemoryProvider) advance(info Info) bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	if cur, ok := p.lanes[info.Lane]; ok && cur.LastIndexedTo >= info.LastIndexedTo {
		return false
	}
	p.lanes[info.Lane] = info
	return true
}
