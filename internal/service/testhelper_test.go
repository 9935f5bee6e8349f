package service

import (
	"context"
	"sync"
	"testing"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/clipwatch/internal/client"
)

func newTestRedis(t *testing.T) (*miniredis.Miniredis, *redis.Client) {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })
	return mr, rdb
}

// fakeEnqueuer records enqueued tasks
type fakeEnqueuer struct {
	mu     sync.Mutex
	tasks  []*asynq.Task
	queues []string
	err    error
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	info := &asynq.TaskInfo{Type: task.Type(), Queue: "default"}
	for _, o := range opts {
		switch o.Type() {
		case asynq.QueueOpt:
			info.Queue = o.Value().(string)
		case asynq.TaskIDOpt:
			info.ID = o.Value().(string)
		}
	}
	f.tasks = append(f.tasks, task)
	f.queues = append(f.queues, info.Queue)
	return info, nil
}

// fakeSongAPI serves canned remote responses
type fakeSongAPI struct {
	songs    []client.Clip
	search   []client.Clip
	playlist *client.Playlist
	lyrics   *client.LyricsResult
	err      error

	lastCreds client.Credentials
	lastPage  int
	lastID    string
}

func (f *fakeSongAPI) Generate(_ context.Context, creds client.Credentials, _ *client.GenerateSongRequest) ([]string, error) {
	f.lastCreds = creds
	return []string{"clip-1"}, f.err
}

func (f *fakeSongAPI) GetMetadata(_ context.Context, creds client.Credentials, _ []string) ([]client.Clip, error) {
	f.lastCreds = creds
	return f.songs, f.err
}

func (f *fakeSongAPI) Search(_ context.Context, creds client.Credentials, _, _ string) ([]client.Clip, error) {
	f.lastCreds = creds
	return f.search, f.err
}

func (f *fakeSongAPI) GenerateLyrics(_ context.Context, creds client.Credentials, _ string) (*client.LyricsResult, error) {
	f.lastCreds = creds
	return f.lyrics, f.err
}

func (f *fakeSongAPI) GetPlaylist(_ context.Context, creds client.Credentials, id string, page int) (*client.Playlist, error) {
	f.lastCreds = creds
	f.lastID = id
	f.lastPage = page
	return f.playlist, f.err
}

func (f *fakeSongAPI) ListSongs(_ context.Context, creds client.Credentials) ([]client.Clip, error) {
	f.lastCreds = creds
	return f.songs, f.err
}
