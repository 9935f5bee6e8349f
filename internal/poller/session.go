package poller

import (
	"context"
	"fmt"
	"sync"
)

// State of a polling session
type State int

const (
	StatePolling State = iota + 1
	StateReady
	StateCancelled
)

func (s State) String() string {
	switch s {
	case StatePolling:
		return "polling"
	case StateReady:
		return "ready"
	case StateCancelled:
		return "cancelled"
	default:
		return fmt.Sprintf("state(%d)", int(s))
	}
}

// Stats counts what a session has done so far
type Stats struct {
	Fetches   int `json:"fetches"`
	Failures  int `json:"failures"`
	Skipped   int `json:"skipped"`
	Discarded int `json:"discarded"`
}

// Session is one running poll over a fixed set of job ids.
// It is active iff its timer handle is live.
type Session struct {
	ctx     context.Context
	ids     []string
	fetcher MetadataFetcher
	cb      Callbacks

	// deliverMu serializes callback delivery in fetch-completion order
	deliverMu sync.Mutex

	mu       sync.Mutex
	state    State
	handle   TimerHandle
	inFlight bool
	records  []StatusRecord
	stats    Stats
	done     chan struct{}
}

// JobIDs returns the tracked ids in reporting order
func (s *Session) JobIDs() []string {
	out := make([]string, len(s.ids))
	copy(out, s.ids)
	return out
}

// State returns the current state
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Active reports whether the session is still polling
func (s *Session) Active() bool {
	return s.State() == StatePolling
}

// Done is closed when the session becomes ready or cancelled
func (s *Session) Done() <-chan struct{} {
	return s.done
}

// Records returns the latest snapshot; empty before the first successful fetch
func (s *Session) Records() []StatusRecord {
	s.mu.Lock()
	defer s.mu.Unlock()
	return cloneRecords(s.records)
}

// Stats returns the session counters
func (s *Session) Stats() Stats {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stats
}

// Cancel stops polling. It is a no-op on a finished session. A fetch in
// flight is allowed to complete but its result is dropped.
func (s *Session) Cancel() {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.state != StatePolling {
		return
	}
	s.finish(StateCancelled)
}

// finish moves to a terminal state and releases the timer. s.mu must be held.
func (s *Session) finish(state State) {
	s.state = state
	if s.handle != nil {
		s.handle.Stop()
		s.handle = nil
	}
	close(s.done)
}

// tick starts a fetch unless one is outstanding, in which case the tick is dropped
func (s *Session) tick() {
	s.mu.Lock()
	if s.state != StatePolling {
		s.mu.Unlock()
		return
	}
	if s.inFlight {
		s.stats.Skipped++
		s.mu.Unlock()
		return
	}
	s.inFlight = true
	s.stats.Fetches++
	s.mu.Unlock()

	go s.poll()
}

func (s *Session) poll() {
	records, fetchErr := s.fetcher.FetchMetadata(s.ctx, s.JobIDs())

	s.deliverMu.Lock()
	defer s.deliverMu.Unlock()

	s.mu.Lock()
	s.inFlight = false
	if s.state != StatePolling {
		s.stats.Discarded++
		s.mu.Unlock()
		return
	}
	if fetchErr != nil {
		s.stats.Failures++
		s.mu.Unlock()
		if s.cb.OnError != nil {
			s.cb.OnError(fmt.Errorf("%w: %v", ErrFetchFailed, fetchErr))
		}
		return
	}

	snapshot := s.snapshot(records)
	s.records = snapshot
	ready := allReady(snapshot)
	if ready {
		s.finish(StateReady)
	}
	s.mu.Unlock()

	if s.cb.OnUpdate != nil {
		s.cb.OnUpdate(cloneRecords(snapshot))
	}
	if ready && s.cb.OnAllReady != nil {
		s.cb.OnAllReady()
	}
}

// snapshot builds one record per tracked id, in tracking order. Ids absent
// from the response are kept as missing and never count as ready.
func (s *Session) snapshot(fetched []StatusRecord) []StatusRecord {
	byID := make(map[string]StatusRecord, len(fetched))
	for _, r := range fetched {
		byID[r.ID] = r
	}
	out := make([]StatusRecord, 0, len(s.ids))
	for _, id := range s.ids {
		r, ok := byID[id]
		if !ok {
			r = StatusRecord{ID: id, Missing: true}
		}
		out = append(out, r)
	}
	return out
}

func cloneRecords(in []StatusRecord) []StatusRecord {
	if in == nil {
		return nil
	}
	out := make([]StatusRecord, len(in))
	copy(out, in)
	return out
}
