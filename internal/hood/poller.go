package hood

import (
	"context"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Poll interval bounds. The device's embedded server gets flaky below a
// few seconds, and anything above five minutes defeats the point of
// polling.
const (
	MinPollInterval     = 5 * time.Second
	MaxPollInterval     = 5 * time.Minute
	DefaultPollInterval = 10 * time.Second
)

// ClampPollInterval bounds an interval to the supported range. Zero picks
// the default.
func ClampPollInterval(interval time.Duration) time.Duration {
	switch {
	case interval <= 0:
		return DefaultPollInterval
	case interval < MinPollInterval:
		return MinPollInterval
	case interval > MaxPollInterval:
		return MaxPollInterval
	default:
		return interval
	}
}

// Poller refreshes the device state on a fixed interval and publishes
// each new snapshot to subscribers. A failed poll is logged and the last
// good snapshot keeps serving; the poller never stops itself over a
// single failure.
type Poller struct {
	client   *Client
	interval time.Duration
	logger   zerolog.Logger

	mu          sync.Mutex
	subscribers map[int]func(State)
	nextID      int

	cancel context.CancelFunc
	done   chan struct{}
}

func NewPoller(client *Client, interval time.Duration, logger zerolog.Logger) *Poller {
	return &Poller{
		client:      client,
		interval:    ClampPollInterval(interval),
		logger:      logger,
		subscribers: make(map[int]func(State)),
	}
}

// Interval returns the effective (clamped) poll interval.
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Subscribe registers a callback invoked with each refreshed snapshot.
// The returned function unsubscribes.
func (p *Poller) Subscribe(cb func(State)) func() {
	p.mu.Lock()
	defer p.mu.Unlock()
	id := p.nextID
	p.nextID++
	p.subscribers[id] = cb
	return func() {
		p.mu.Lock()
		defer p.mu.Unlock()
		delete(p.subscribers, id)
	}
}

// Start launches the poll loop. The first poll runs immediately so the
// snapshot is fresh before the first tick.
func (p *Poller) Start() {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.done != nil {
		return
	}
	ctx, cancel := context.WithCancel(context.Background())
	p.cancel = cancel
	p.done = make(chan struct{})
	go p.run(ctx, p.done)
}

// Stop cancels the loop and waits for any in-flight exchange to finish,
// so no socket outlives the poller.
func (p *Poller) Stop() {
	p.mu.Lock()
	cancel, done := p.cancel, p.done
	p.cancel, p.done = nil, nil
	p.mu.Unlock()
	if cancel == nil {
		return
	}
	cancel()
	<-done
}

func (p *Poller) run(ctx context.Context, done chan struct{}) {
	defer close(done)

	p.pollOnce(ctx)

	ticker := time.NewTicker(p.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			p.pollOnce(ctx)
		}
	}
}

func (p *Poller) pollOnce(ctx context.Context) {
	snapshot, err := p.client.SendSymbolic(ctx, CmdStatusQuery)
	if err != nil {
		// Subscribers keep the last good snapshot; the failure is only
		// visible here and in the client's health counters.
		p.logger.Warn().Err(err).Msg("status poll failed")
		return
	}

	p.mu.Lock()
	subs := make([]func(State), 0, len(p.subscribers))
	for _, cb := range p.subscribers {
		subs = append(subs, cb)
	}
	p.mu.Unlock()

	for _, cb := range subs {
		cb(snapshot.Clone())
	}
}
