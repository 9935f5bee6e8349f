package poller

import (
	"context"
	"fmt"
)

// StatusRecord is the latest known state of one tracked job
type StatusRecord struct {
	ID         string  `json:"id"`
	AudioReady bool    `json:"audioReady"`
	Missing    bool    `json:"missing,omitempty"`
	Status     string  `json:"status,omitempty"`
	Title      string  `json:"title,omitempty"`
	Tags       string  `json:"tags,omitempty"`
	AudioURL   string  `json:"audioUrl,omitempty"`
	VideoURL   string  `json:"videoUrl,omitempty"`
	ImageURL   string  `json:"imageUrl,omitempty"`
	Duration   float64 `json:"duration,omitempty"`
}

// MetadataFetcher maps a set of job ids to their current status records.
// Retries, auth and caching belong to the implementation.
type MetadataFetcher interface {
	FetchMetadata(ctx context.Context, jobIDs []string) ([]StatusRecord, error)
}

// FetcherFunc adapts a plain function to MetadataFetcher
type FetcherFunc func(ctx context.Context, jobIDs []string) ([]StatusRecord, error)

// FetchMetadata calls f(ctx, jobIDs)
func (f FetcherFunc) FetchMetadata(ctx context.Context, jobIDs []string) ([]StatusRecord, error) {
	return f(ctx, jobIDs)
}

// ReadyCount returns how many records have playable audio
func ReadyCount(records []StatusRecord) int {
	n := 0
	for _, r := range records {
		if r.AudioReady {
			n++
		}
	}
	return n
}

func allReady(records []StatusRecord) bool {
	if len(records) == 0 {
		return false
	}
	return ReadyCount(records) == len(records)
}

// NormalizeJobIDs returns the ids a session would track for jobIDs.
// It fails with ErrInvalidArgument when nothing is left to poll.
func NormalizeJobIDs(jobIDs []string) ([]string, error) {
	ids := dedupe(jobIDs)
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: at least one job id is required", ErrInvalidArgument)
	}
	return ids, nil
}

// dedupe drops empty and repeated ids, keeping first-occurrence order
func dedupe(ids []string) []string {
	seen := make(map[string]struct{}, len(ids))
	out := make([]string, 0, len(ids))
	for _, id := range ids {
		if id == "" {
			continue
		}
		if _, ok := seen[id]; ok {
			continue
		}
		seen[id] = struct{}{}
		out = append(out, id)
	}
	return out
}
