package poller

import (
	"fmt"
	"sync"
	"time"

	"github.com/robfig/cron/v3"
)

// Timer schedules repeated invocation of fn every interval.
// Schedule must not call fn synchronously.
type Timer interface {
	Schedule(interval time.Duration, fn func()) (TimerHandle, error)
}

// TimerHandle is a live schedule. Stop is idempotent and must not wait for
// a running fn to return.
type TimerHandle interface {
	Stop()
}

// CronTimer runs every schedule on one shared robfig/cron runner.
// It only accepts whole-second intervals.
type CronTimer struct {
	cron *cron.Cron
}

// NewCronTimer creates and starts a cron-backed timer
func NewCronTimer() *CronTimer {
	c := cron.New(cron.WithChain(cron.Recover(cron.DefaultLogger)))
	c.Start()
	return &CronTimer{cron: c}
}

// Schedule registers fn with the cron runner
func (t *CronTimer) Schedule(interval time.Duration, fn func()) (TimerHandle, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidArgument, interval)
	}
	// cron.Every truncates to seconds
	if interval%time.Second != 0 {
		return nil, fmt.Errorf("%w: cron interval must be a whole number of seconds, got %v", ErrInvalidArgument, interval)
	}
	id := t.cron.Schedule(cron.Every(interval), cron.FuncJob(fn))
	return &cronHandle{cron: t.cron, id: id}, nil
}

// Close stops the runner; running jobs are not waited for
func (t *CronTimer) Close() {
	t.cron.Stop()
}

type cronHandle struct {
	cron *cron.Cron
	id   cron.EntryID
	once sync.Once
}

func (h *cronHandle) Stop() {
	h.once.Do(func() {
		h.cron.Remove(h.id)
	})
}

// TickerTimer gives each schedule its own time.Ticker goroutine. Use it for
// sub-second intervals, which CronTimer cannot express.
type TickerTimer struct{}

// NewTickerTimer creates a ticker-backed timer
func NewTickerTimer() *TickerTimer {
	return &TickerTimer{}
}

// Schedule starts a ticker goroutine calling fn on every tick
func (t *TickerTimer) Schedule(interval time.Duration, fn func()) (TimerHandle, error) {
	if interval <= 0 {
		return nil, fmt.Errorf("%w: interval must be positive, got %v", ErrInvalidArgument, interval)
	}
	h := &tickerHandle{stop: make(chan struct{})}
	ticker := time.NewTicker(interval)
	go func() {
		defer ticker.Stop()
		for {
			select {
			case <-h.stop:
				return
			case <-ticker.C:
				fn()
			}
		}
	}()
	return h, nil
}

// Close does nothing; each schedule's goroutine exits when its handle is stopped
func (t *TickerTimer) Close() {}

type tickerHandle struct {
	stop chan struct{}
	once sync.Once
}

func (h *tickerHandle) Stop() {
	h.once.Do(func() {
		close(h.stop)
	})
}
