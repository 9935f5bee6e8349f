package client

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"path"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/makeasinger/clipwatch/internal/poller"
	"github.com/makeasinger/clipwatch/internal/telemetry"
)

const (
	maxParallelUploads = 4

	// largest download held in memory when the server sends no length
	maxBufferedAudio = 100 << 20
)

// Archiver copies the audio of ready clips into object storage
type Archiver struct {
	storage    StorageClient
	httpClient *http.Client
}

// NewArchiver returns an Archiver writing to storage
func NewArchiver(storage StorageClient) *Archiver {
	return &Archiver{
		storage: storage,
		httpClient: &http.Client{
			Timeout: 5 * time.Minute,
		},
	}
}

// ArchiveKey is the object key of a clip's audio
func ArchiveKey(generationID, clipID, audioURL string) string {
	ext := path.Ext(strings.SplitN(audioURL, "?", 2)[0])
	if ext == "" || len(ext) > 5 {
		ext = ".mp3"
	}
	return fmt.Sprintf("generations/%s/%s%s", generationID, clipID, ext)
}

// Archive uploads every clip with an audio URL and returns clip id → public URL.
// Clips already stored are not uploaded again. The first failure cancels the rest.
func (a *Archiver) Archive(ctx context.Context, generationID string, clips []poller.StatusRecord) (map[string]string, error) {
	var (
		mu   sync.Mutex
		urls = make(map[string]string, len(clips))
	)

	g, ctx := errgroup.WithContext(ctx)
	g.SetLimit(maxParallelUploads)
	for _, clip := range clips {
		if clip.AudioURL == "" {
			continue
		}
		clip := clip
		g.Go(func() error {
			url, err := a.archiveClip(ctx, generationID, clip)
			if err != nil {
				return fmt.Errorf("failed to archive clip %s: %w", clip.ID, err)
			}
			mu.Lock()
			urls[clip.ID] = url
			mu.Unlock()
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	return urls, nil
}

func (a *Archiver) archiveClip(ctx context.Context, generationID string, clip poller.StatusRecord) (string, error) {
	key := ArchiveKey(generationID, clip.ID, clip.AudioURL)

	exists, err := a.storage.Exists(ctx, key)
	if err != nil {
		return "", err
	}
	if exists {
		return a.storage.PublicURL(key), nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, clip.AudioURL, nil)
	if err != nil {
		return "", fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := a.httpClient.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to download audio: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("failed to download audio: status %d", resp.StatusCode)
	}

	contentType := resp.Header.Get("Content-Type")
	if contentType == "" {
		contentType = "audio/mpeg"
	}

	var body io.Reader = resp.Body
	size := resp.ContentLength
	if size < 0 {
		// PutObject needs a length, so chunked downloads are buffered
		data, err := io.ReadAll(io.LimitReader(resp.Body, maxBufferedAudio+1))
		if err != nil {
			return "", fmt.Errorf("failed to download audio: %w", err)
		}
		if len(data) > maxBufferedAudio {
			return "", fmt.Errorf("failed to download audio: larger than %d bytes without content length", maxBufferedAudio)
		}
		body = bytes.NewReader(data)
		size = int64(len(data))
	}

	url, err := a.storage.Upload(ctx, key, body, size, contentType)
	if err != nil {
		return "", err
	}
	telemetry.ArchivedClips.Inc()
	log.Printf("[Archive] Stored clip %s as %s", clip.ID, key)
	return url, nil
}
