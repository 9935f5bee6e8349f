package worker

import (
	"context"
	"encoding/json"
	"errors"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/clipwatch/internal/client"
	"github.com/makeasinger/clipwatch/internal/config"
	"github.com/makeasinger/clipwatch/internal/model"
	"github.com/makeasinger/clipwatch/internal/poller"
	"github.com/makeasinger/clipwatch/internal/poller/pollertest"
	"github.com/makeasinger/clipwatch/internal/service"
)

const testInterval = 5 * time.Second

// scriptedAPI answers metadata calls from a list of steps; the last step repeats
type scriptedAPI struct {
	client.SongAPI

	mu        sync.Mutex
	steps     []metadataStep
	calls     int
	generated []string
	genErr    error
	genCreds  client.Credentials
	genReq    *client.GenerateSongRequest
}

type metadataStep struct {
	clips []client.Clip
	err   error
}

func (a *scriptedAPI) Generate(_ context.Context, creds client.Credentials, req *client.GenerateSongRequest) ([]string, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.genCreds = creds
	a.genReq = req
	return a.generated, a.genErr
}

func (a *scriptedAPI) GetMetadata(_ context.Context, _ client.Credentials, _ []string) ([]client.Clip, error) {
	a.mu.Lock()
	defer a.mu.Unlock()
	i := a.calls
	if i >= len(a.steps) {
		i = len(a.steps) - 1
	}
	a.calls++
	return a.steps[i].clips, a.steps[i].err
}

func (a *scriptedAPI) metadataCalls() int {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.calls
}

// recordingHub captures broadcasts
type recordingHub struct {
	mu     sync.Mutex
	events []hubEvent
}

type hubEvent struct {
	kind     string
	progress int
	code     string
	result   interface{}
}

func (h *recordingHub) BroadcastProgress(_ string, progress int, _ model.GenerationStatus, _ []poller.StatusRecord) {
	h.add(hubEvent{kind: model.WSMessageTypeProgress, progress: progress})
}

func (h *recordingHub) BroadcastComplete(_ string, result interface{}) {
	h.add(hubEvent{kind: model.WSMessageTypeComplete, result: result})
}

func (h *recordingHub) BroadcastError(_ string, code, _ string) {
	h.add(hubEvent{kind: model.WSMessageTypeError, code: code})
}

func (h *recordingHub) add(e hubEvent) {
	h.mu.Lock()
	defer h.mu.Unlock()
	h.events = append(h.events, e)
}

func (h *recordingHub) count(kind string) int {
	h.mu.Lock()
	defer h.mu.Unlock()
	n := 0
	for _, e := range h.events {
		if e.kind == kind {
			n++
		}
	}
	return n
}

func (h *recordingHub) codes() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []string
	for _, e := range h.events {
		if e.code != "" {
			out = append(out, e.code)
		}
	}
	return out
}

type fakeArchiver struct {
	err error
}

func (a *fakeArchiver) Archive(_ context.Context, generationID string, clips []poller.StatusRecord) (map[string]string, error) {
	if a.err != nil {
		return nil, a.err
	}
	urls := make(map[string]string, len(clips))
	for _, c := range clips {
		urls[c.ID] = "https://files.example/" + generationID + "/" + c.ID
	}
	return urls, nil
}

type noopEnqueuer struct{}

func (noopEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

type workerFixture struct {
	worker      *GenerationWorker
	generations *service.GenerationService
	profiles    *service.ProfileService
	registry    *service.SessionRegistry
	api         *scriptedAPI
	hub         *recordingHub
	timer       *pollertest.ManualTimer
}

func newWorkerFixture(t *testing.T, api *scriptedAPI, archiver Archiver, maxWait time.Duration) *workerFixture {
	t.Helper()
	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	rdb := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { rdb.Close() })

	profiles := service.NewProfileService(rdb)
	registry := service.NewSessionRegistry()
	generations := service.NewGenerationService(rdb, noopEnqueuer{}, profiles, registry, maxWait)
	hub := &recordingHub{}
	timer := pollertest.NewManualTimer()

	w := NewGenerationWorker(generations, profiles, registry, api, timer, archiver, hub, Options{
		Interval:  testInterval,
		Readiness: config.ReadinessAudio,
		MaxWait:   maxWait,
	})
	return &workerFixture{
		worker:      w,
		generations: generations,
		profiles:    profiles,
		registry:    registry,
		api:         api,
		hub:         hub,
		timer:       timer,
	}
}

func taskFor(t *testing.T, generationID string) *asynq.Task {
	t.Helper()
	data, err := json.Marshal(model.GenerationTaskPayload{GenerationID: generationID})
	if err != nil {
		t.Fatal(err)
	}
	return asynq.NewTask(service.TaskTypeGenerationWatch, data)
}

func readyClip(id string) client.Clip {
	return client.Clip{ID: id, Status: "complete", AudioURL: "https://cdn/" + id + ".mp3"}
}

func pendingClip(id string) client.Clip {
	return client.Clip{ID: id, Status: "streaming"}
}

func eventually(t *testing.T, cond func() bool, what string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(2 * time.Millisecond)
	}
}

func runAsync(f *workerFixture, task *asynq.Task) <-chan error {
	done := make(chan error, 1)
	go func() { done <- f.worker.ProcessTask(context.Background(), task) }()
	return done
}

func waitResult(t *testing.T, done <-chan error) error {
	t.Helper()
	select {
	case err := <-done:
		return err
	case <-time.After(3 * time.Second):
		t.Fatal("ProcessTask did not return")
	}
	return nil
}

func TestProcessTask_WatchReadyImmediately(t *testing.T) {
	ctx := context.Background()
	api := &scriptedAPI{steps: []metadataStep{{clips: []client.Clip{readyClip("a"), readyClip("b")}}}}
	f := newWorkerFixture(t, api, &fakeArchiver{}, 0)

	res, err := f.generations.Watch(ctx, "u1", []string{"a", "b"})
	if err != nil {
		t.Fatalf("Watch failed: %v", err)
	}

	if err := f.worker.ProcessTask(ctx, taskFor(t, res.GenerationID)); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	gen, _ := f.generations.Load(ctx, res.GenerationID)
	if gen.Status != model.GenerationStatusReady || gen.Progress != 100 {
		t.Errorf("expected ready at 100%%, got %s at %d", gen.Status, gen.Progress)
	}
	if len(gen.Clips) != 2 || !gen.Clips[0].AudioReady {
		t.Errorf("unexpected clips %+v", gen.Clips)
	}
	if gen.ArchivedURLs["b"] == "" {
		t.Errorf("expected archived URLs, got %v", gen.ArchivedURLs)
	}
	if f.hub.count(model.WSMessageTypeComplete) != 1 {
		t.Errorf("expected one complete broadcast, got %d", f.hub.count(model.WSMessageTypeComplete))
	}
	if f.registry.Len() != 0 {
		t.Errorf("expected session removed from registry")
	}
	if f.timer.Live() != 0 {
		t.Errorf("expected timer released, %d live", f.timer.Live())
	}
}

func TestProcessTask_SubmitsThenPollsUntilReady(t *testing.T) {
	ctx := context.Background()
	api := &scriptedAPI{
		generated: []string{"c1", "c2"},
		steps: []metadataStep{
			{clips: []client.Clip{readyClip("c1"), pendingClip("c2")}},
			{clips: []client.Clip{readyClip("c1"), readyClip("c2")}},
		},
	}
	f := newWorkerFixture(t, api, nil, 0)
	f.profiles.Create(ctx, "u1", &model.ProfileRequest{Name: "main", Sess: "s1", Cookie: "c1"})

	res, err := f.generations.Start(ctx, "u1", &model.GenerateRequest{Title: "T", Tags: "pop", Prompt: "words"})
	if err != nil {
		t.Fatalf("Start failed: %v", err)
	}

	done := runAsync(f, taskFor(t, res.GenerationID))
	eventually(t, func() bool { return f.hub.count(model.WSMessageTypeProgress) == 1 }, "first progress")

	gen, _ := f.generations.Load(ctx, res.GenerationID)
	if gen.Status != model.GenerationStatusPolling || gen.Progress != 50 {
		t.Errorf("expected polling at 50%%, got %s at %d", gen.Status, gen.Progress)
	}

	f.timer.Advance(testInterval)
	if err := waitResult(t, done); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	gen, _ = f.generations.Load(ctx, res.GenerationID)
	if gen.Status != model.GenerationStatusReady {
		t.Errorf("expected ready, got %s", gen.Status)
	}
	if len(gen.ClipIDs) != 2 || gen.ClipIDs[0] != "c1" {
		t.Errorf("expected submitted clip ids stored, got %v", gen.ClipIDs)
	}
	if gen.Fetches != 2 {
		t.Errorf("expected 2 fetches, got %d", gen.Fetches)
	}
	if api.genCreds.Sess != "s1" || api.genReq.Prompt == nil || *api.genReq.Prompt != "words" || api.genReq.Model != model.DefaultModel {
		t.Errorf("unexpected submission %+v with %+v", api.genReq, api.genCreds)
	}
	if len(gen.ArchivedURLs) != 0 {
		t.Errorf("expected no archive without storage, got %v", gen.ArchivedURLs)
	}
}

func TestProcessTask_FetchFailureKeepsPolling(t *testing.T) {
	ctx := context.Background()
	api := &scriptedAPI{steps: []metadataStep{
		{err: errors.New("gateway timeout")},
		{clips: []client.Clip{readyClip("a")}},
	}}
	f := newWorkerFixture(t, api, nil, 0)
	res, _ := f.generations.Watch(ctx, "u1", []string{"a"})

	done := runAsync(f, taskFor(t, res.GenerationID))
	eventually(t, func() bool { return f.hub.count(model.WSMessageTypeError) == 1 }, "fetch error broadcast")

	gen, _ := f.generations.Load(ctx, res.GenerationID)
	if gen.Status != model.GenerationStatusPolling || gen.Failures != 1 || gen.Error == nil {
		t.Errorf("expected polling with one failure, got %+v", gen)
	}

	f.timer.Advance(testInterval)
	if err := waitResult(t, done); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	codes := f.hub.codes()
	if len(codes) != 1 || codes[0] != model.WSErrorFetchFailed {
		t.Errorf("expected one FETCH_FAILED, got %v", codes)
	}
	gen, _ = f.generations.Load(ctx, res.GenerationID)
	if gen.Status != model.GenerationStatusReady || gen.Error != nil {
		t.Errorf("expected ready without error, got %s / %v", gen.Status, gen.Error)
	}
}

func TestProcessTask_SubmissionFailure(t *testing.T) {
	ctx := context.Background()
	api := &scriptedAPI{genErr: errors.New("insufficient credits")}
	f := newWorkerFixture(t, api, nil, 0)
	f.profiles.Create(ctx, "u1", &model.ProfileRequest{Name: "main", Sess: "s", Cookie: "c"})
	res, _ := f.generations.Start(ctx, "u1", &model.GenerateRequest{Prompt: "x"})

	err := f.worker.ProcessTask(ctx, taskFor(t, res.GenerationID))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry, got %v", err)
	}

	gen, _ := f.generations.Load(ctx, res.GenerationID)
	if gen.Status != model.GenerationStatusFailed || gen.Error == nil {
		t.Errorf("expected failed generation, got %+v", gen)
	}
	codes := f.hub.codes()
	if len(codes) != 1 || codes[0] != model.WSErrorGenerationFailed {
		t.Errorf("expected GENERATION_FAILED, got %v", codes)
	}
	if api.metadataCalls() != 0 {
		t.Errorf("expected no polling after failed submission")
	}
}

func TestProcessTask_CancelStopsSession(t *testing.T) {
	ctx := context.Background()
	api := &scriptedAPI{steps: []metadataStep{{clips: []client.Clip{pendingClip("a")}}}}
	f := newWorkerFixture(t, api, nil, 0)
	res, _ := f.generations.Watch(ctx, "u1", []string{"a"})

	done := runAsync(f, taskFor(t, res.GenerationID))
	eventually(t, func() bool { return f.registry.Len() == 1 }, "session registered")

	if _, err := f.generations.Cancel(ctx, "u1", res.GenerationID); err != nil {
		t.Fatalf("Cancel failed: %v", err)
	}
	if err := waitResult(t, done); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	calls := api.metadataCalls()
	f.timer.Advance(4 * testInterval)
	if api.metadataCalls() != calls {
		t.Errorf("expected no fetches after cancel")
	}
	gen, _ := f.generations.Load(ctx, res.GenerationID)
	if gen.Status != model.GenerationStatusCanceled {
		t.Errorf("expected canceled, got %s", gen.Status)
	}
	if f.hub.count(model.WSMessageTypeComplete) != 0 {
		t.Errorf("expected no completion after cancel")
	}
}

func TestProcessTask_DeadlineMarksFailed(t *testing.T) {
	ctx := context.Background()
	api := &scriptedAPI{steps: []metadataStep{{clips: []client.Clip{pendingClip("a")}}}}
	f := newWorkerFixture(t, api, nil, 50*time.Millisecond)
	res, _ := f.generations.Watch(ctx, "u1", []string{"a"})

	if err := f.worker.ProcessTask(ctx, taskFor(t, res.GenerationID)); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}

	gen, _ := f.generations.Load(ctx, res.GenerationID)
	if gen.Status != model.GenerationStatusFailed || gen.Error == nil || *gen.Error != "polling deadline exceeded" {
		t.Errorf("expected deadline failure, got %+v", gen)
	}
	if f.timer.Live() != 0 {
		t.Errorf("expected timer released after deadline")
	}
}

func TestProcessTask_SkipsFinishedGeneration(t *testing.T) {
	ctx := context.Background()
	api := &scriptedAPI{steps: []metadataStep{{clips: []client.Clip{readyClip("a")}}}}
	f := newWorkerFixture(t, api, nil, 0)
	res, _ := f.generations.Watch(ctx, "u1", []string{"a"})
	f.generations.Cancel(ctx, "u1", res.GenerationID)

	if err := f.worker.ProcessTask(ctx, taskFor(t, res.GenerationID)); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}
	if api.metadataCalls() != 0 {
		t.Errorf("expected no fetch for a canceled generation")
	}
}

func TestProcessTask_BadPayload(t *testing.T) {
	f := newWorkerFixture(t, &scriptedAPI{}, nil, 0)

	err := f.worker.ProcessTask(context.Background(), asynq.NewTask(service.TaskTypeGenerationWatch, []byte("{")))
	if !errors.Is(err, asynq.SkipRetry) {
		t.Errorf("expected SkipRetry, got %v", err)
	}
}

func TestProcessTask_ArchiveFailureStillCompletes(t *testing.T) {
	ctx := context.Background()
	api := &scriptedAPI{steps: []metadataStep{{clips: []client.Clip{readyClip("a")}}}}
	f := newWorkerFixture(t, api, &fakeArchiver{err: errors.New("bucket gone")}, 0)
	res, _ := f.generations.Watch(ctx, "u1", []string{"a"})

	if err := f.worker.ProcessTask(ctx, taskFor(t, res.GenerationID)); err != nil {
		t.Fatalf("ProcessTask failed: %v", err)
	}
	gen, _ := f.generations.Load(ctx, res.GenerationID)
	if gen.Status != model.GenerationStatusReady || len(gen.ArchivedURLs) != 0 {
		t.Errorf("expected ready without archive, got %s / %v", gen.Status, gen.ArchivedURLs)
	}
}
