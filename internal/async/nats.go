package async

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"sync"

	"github.com/nats-io/nats.go"
)

// DefaultSubjectPrefix is the subject prefix lane progress is published on.
const DefaultSubjectPrefix = "hybridindex.lanes"

// natsConn abstracts the nats.Conn for testing purposes
type natsConn interface {
	Subscribe(subject string, handler nats.MsgHandler) (subscription, error)
	Publish(subject string, data []byte) error
	Close()
}

type subscription interface {
	Unsubscribe() error
}

// natsConnectFunc is a function type for connecting to NATS (injectable for testing)
type natsConnectFunc func(url string) (natsConn, error)

type natsConnAdapter struct {
	nc *nats.Conn
}

func (a natsConnAdapter) Subscribe(subject string, handler nats.MsgHandler) (subscription, error) {
	return a.nc.Subscribe(subject, handler)
}

func (a natsConnAdapter) Publish(subject string, data []byte) error {
	return a.nc.Publish(subject, data)
}

func (a natsConnAdapter) Close() {
	a.nc.Close()
}

var defaultNatsConnect natsConnectFunc = func(url string) (natsConn, error) {
	nc, err := nats.Connect(url)
	if err != nil {
		return nil, err
	}
	return natsConnAdapter{nc: nc}, nil
}

func laneSubject(prefix, lane string) string {
	return prefix + "." + lane
}

// NATSProvider tracks lane progress published on NATS subjects
// <prefix>.<lane>. The latest watermark per lane is cached in memory.
type NATSProvider struct {
	url         string
	prefix      string
	logger      *slog.Logger
	natsConnect natsConnectFunc // injectable for testing

	mu    sync.Mutex
	nc    natsConn
	sub   subscription
	lanes *MemoryProvider
}

var _ Provider = (*NATSProvider)(nil)

// NewNATSProvider creates a provider for the NATS server at url.
func NewNATSProvider(url, prefix string, logger *slog.Logger) *NATSProvider {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &NATSProvider{
		url:         url,
		prefix:      prefix,
		logger:      logger.With("component", "async-nats"),
		natsConnect: defaultNatsConnect,
		lanes:       NewMemoryProvider(),
	}
}

// Start connects to NATS and subscribes to all lane subjects.
func (p *NATSProvider) Start(ctx context.Context) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nc != nil {
		return nil
	}

	nc, err := p.natsConnect(p.url)
	if err != nil {
		return fmt.Errorf("failed to connect to NATS at %s: %w", p.url, err)
	}
	sub, err := nc.Subscribe(p.prefix+".*", p.handle)
	if err != nil {
		nc.Close()
		return fmt.Errorf("failed to subscribe to lane progress: %w", err)
	}
	p.nc, p.sub = nc, sub

	p.logger.Info("Subscribed to lane progress", "url", p.url, "subject", p.prefix+".*")
	return nil
}

// LaneInfo implements Provider.
func (p *NATSProvider) LaneInfo(ctx context.Context, lane string) (Info, error) {
	return p.lanes.LaneInfo(ctx, lane)
}

// Close unsubscribes and closes the connection.
func (p *NATSProvider) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.nc == nil {
		return nil
	}
	var err error
	if p.sub != nil {
		err = p.sub.Unsubscribe()
	}
	p.nc.Close()
	p.nc, p.sub = nil, nil
	return err
}

func (p *NATSProvider) handle(msg *nats.Msg) {
	info, err := decodeInfo(p.prefix, msg)
	if err != nil {
		p.logger.Warn("Dropping malformed lane progress", "subject", msg.Subject, "error", err)
		return
	}
	if p.lanes.advance(info) {
		p.logger.Debug("Lane progress", "lane", info.Lane, "lastIndexedTo", info.LastIndexedTo)
	}
}

func decodeInfo(prefix string, msg *nats.Msg) (Info, error) {
	var info Info
	if err := json.Unmarshal(msg.Data, &info); err != nil {
		return Info{}, err
	}
	if info.Lane == "" {
		info.Lane = strings.TrimPrefix(msg.Subject, prefix+".")
	}
	if info.Lane == "" || info.Lane == msg.Subject {
		return Info{}, errors.New("missing lane name")
	}
	return info, nil
}

// NATSPublisher publishes lane progress for NATSProvider consumers.
type NATSPublisher struct {
	nc     natsConn
	prefix string
}

var _ Reporter = (*NATSPublisher)(nil)

// NewNATSPublisher connects to the NATS server at url.
func NewNATSPublisher(url, prefix string) (*NATSPublisher, error) {
	return newNATSPublisher(url, prefix, defaultNatsConnect)
}

func newNATSPublisher(url, prefix string, connect natsConnectFunc) (*NATSPublisher, error) {
	if prefix == "" {
		prefix = DefaultSubjectPrefix
	}
	nc, err := connect(url)
	if err != nil {
		return nil, fmt.Errorf("failed to connect to NATS at %s: %w", url, err)
	}
	return &NATSPublisher{nc: nc, prefix: prefix}, nil
}

// Report implements Reporter.
func (p *NATSPublisher) Report(ctx context.Context, info Info) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	if info.Lane == "" {
		return errors.New("lane name is required")
	}
	data, err := json.Marshal(info)
	if err != nil {
		return fmt.Errorf("failed to encode lane progress: %w", err)
	}
	if err := p.nc.Publish(laneSubject(p.prefix, info.Lane), data); err != nil {
		return fmt.Errorf("failed to publish lane progress: %w", err)
	}
	return nil
}

// Close closes the connection.
func (p *NATSPublisher) Close() {
	p.nc.Close()
}
