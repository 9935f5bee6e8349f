package client

import (
	"context"
	"time"

	"github.com/makeasinger/clipwatch/internal/config"
	"github.com/makeasinger/clipwatch/internal/poller"
	"github.com/makeasinger/clipwatch/internal/telemetry"
)

// MetadataFetcher adapts SongAPI.GetMetadata to poller.MetadataFetcher
type MetadataFetcher struct {
	api        SongAPI
	creds      Credentials
	needsVideo bool
}

// NewMetadataFetcher returns a fetcher that polls with creds. readiness is
// config.ReadinessAudio or config.ReadinessAudioVideo; anything else means audio.
func NewMetadataFetcher(api SongAPI, creds Credentials, readiness string) *MetadataFetcher {
	return &MetadataFetcher{
		api:        api,
		creds:      creds,
		needsVideo: readiness == config.ReadinessAudioVideo,
	}
}

// FetchMetadata implements poller.MetadataFetcher
func (f *MetadataFetcher) FetchMetadata(ctx context.Context, jobIDs []string) ([]poller.StatusRecord, error) {
	start := time.Now()
	clips, err := f.api.GetMetadata(ctx, f.creds, jobIDs)
	telemetry.FetchLatency.Observe(time.Since(start).Seconds())
	telemetry.MetadataFetches.Inc()
	if err != nil {
		telemetry.MetadataFailures.Inc()
		return nil, err
	}

	records := make([]poller.StatusRecord, 0, len(clips))
	for _, clip := range clips {
		records = append(records, f.toRecord(clip))
	}
	return records, nil
}

// Ready reports whether clip satisfies the readiness criterion
func (f *MetadataFetcher) Ready(clip Clip) bool {
	if clip.AudioURL == "" {
		return false
	}
	return !f.needsVideo || clip.VideoURL != ""
}

func (f *MetadataFetcher) toRecord(clip Clip) poller.StatusRecord {
	return poller.StatusRecord{
		ID:         clip.ID,
		AudioReady: f.Ready(clip),
		Status:     clip.Status,
		Title:      clip.Title,
		Tags:       clip.Metadata.Tags,
		AudioURL:   clip.AudioURL,
		VideoURL:   clip.VideoURL,
		ImageURL:   clip.ImageURL,
		Duration:   clip.Metadata.Duration,
	}
}
