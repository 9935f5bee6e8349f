package service

import (
	"context"
	"testing"

	"github.com/makeasinger/clipwatch/internal/poller"
	"github.com/makeasinger/clipwatch/internal/poller/pollertest"
)

func TestSessionRegistry(t *testing.T) {
	timer := pollertest.NewManualTimer()
	fetcher := poller.FetcherFunc(func(context.Context, []string) ([]poller.StatusRecord, error) {
		return nil, nil
	})
	p := poller.New(fetcher, timer, poller.Options{})

	first, _ := p.Start(context.Background(), []string{"a"}, poller.Callbacks{})
	second, _ := p.Start(context.Background(), []string{"a"}, poller.Callbacks{})

	r := NewSessionRegistry()
	r.Register("g1", first)
	r.Register("g1", second)

	// A finished worker must not drop a newer session of the same generation
	r.Remove("g1", first)
	if s, ok := r.Get("g1"); !ok || s != second {
		t.Fatal("expected the newer session to stay registered")
	}

	if !r.Cancel("g1") {
		t.Fatal("expected Cancel to find the session")
	}
	if second.Active() {
		t.Error("expected session to be cancelled")
	}
	if r.Cancel("unknown") {
		t.Error("expected Cancel of unknown generation to report false")
	}

	r.Remove("g1", second)
	if r.Len() != 0 {
		t.Errorf("expected empty registry, got %d", r.Len())
	}
	first.Cancel()
}
