// Package poller repeatedly fetches job metadata until every job has
// playable audio or the caller gives up.
package poller

import (
	"context"
	"fmt"
	"time"
)

// DefaultInterval matches the five second refresh of the mobile clients
const DefaultInterval = 5 * time.Second

// Options configures a Poller
type Options struct {
	Interval time.Duration
}

// Callbacks receive session events. All fields are optional.
// Callbacks never run concurrently for one session and may call Cancel.
type Callbacks struct {
	// OnUpdate gets the full snapshot after every successful fetch
	OnUpdate func(records []StatusRecord)
	// OnAllReady fires once when every tracked job has audio
	OnAllReady func()
	// OnError gets failed fetches wrapped in ErrFetchFailed
	OnError func(err error)
}

// Poller starts polling sessions that share a fetcher and a timer
type Poller struct {
	fetcher  MetadataFetcher
	timer    Timer
	interval time.Duration
}

// New creates a Poller. A zero interval falls back to DefaultInterval.
func New(fetcher MetadataFetcher, timer Timer, opts Options) *Poller {
	interval := opts.Interval
	if interval == 0 {
		interval = DefaultInterval
	}
	return &Poller{
		fetcher:  fetcher,
		timer:    timer,
		interval: interval,
	}
}

// Interval returns the tick interval of sessions started by p
func (p *Poller) Interval() time.Duration {
	return p.interval
}

// Start begins polling jobIDs. One fetch is issued immediately, then one
// per interval until every job is ready, Cancel is called or ctx ends.
// Duplicate ids are tracked once, in first-occurrence order.
func (p *Poller) Start(ctx context.Context, jobIDs []string, cb Callbacks) (*Session, error) {
	ids, err := NormalizeJobIDs(jobIDs)
	if err != nil {
		return nil, err
	}
	if p.interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidArgument, p.interval)
	}
	if p.fetcher == nil || p.timer == nil {
		return nil, fmt.Errorf("%w: fetcher and timer are required", ErrInvalidArgument)
	}
	if ctx == nil {
		ctx = context.Background()
	}

	s := &Session{
		ctx:     ctx,
		ids:     ids,
		fetcher: p.fetcher,
		cb:      cb,
		state:   StatePolling,
		done:    make(chan struct{}),
	}

	// Hold the lock so a tick cannot finish the session before the handle is stored
	s.mu.Lock()
	handle, err := p.timer.Schedule(p.interval, s.tick)
	if err != nil {
		s.mu.Unlock()
		return nil, fmt.Errorf("poller: couldn't schedule polling: %w", err)
	}
	s.handle = handle
	s.mu.Unlock()

	s.tick()

	if ctx.Done() != nil {
		go func() {
			select {
			case <-ctx.Done():
				s.Cancel()
			case <-s.done:
			}
		}()
	}
	return s, nil
}
