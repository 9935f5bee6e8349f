package worker

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log"
	"sync"
	"time"

	"github.com/hibiken/asynq"

	"github.com/makeasinger/clipwatch/internal/client"
	"github.com/makeasinger/clipwatch/internal/model"
	"github.com/makeasinger/clipwatch/internal/poller"
	"github.com/makeasinger/clipwatch/internal/service"
	"github.com/makeasinger/clipwatch/internal/telemetry"
)

// Broadcaster pushes generation events to subscribers
type Broadcaster interface {
	BroadcastProgress(generationID string, progress int, status model.GenerationStatus, clips []poller.StatusRecord)
	BroadcastComplete(generationID string, result interface{})
	BroadcastError(generationID string, code, message string)
}

// Archiver copies ready audio to object storage
type Archiver interface {
	Archive(ctx context.Context, generationID string, clips []poller.StatusRecord) (map[string]string, error)
}

// Options tunes how generations are polled
type Options struct {
	Interval  time.Duration
	Readiness string
	MaxWait   time.Duration
}

// GenerationWorker processes generation:watch tasks
type GenerationWorker struct {
	generations *service.GenerationService
	profiles    *service.ProfileService
	registry    *service.SessionRegistry
	api         client.SongAPI
	timer       poller.Timer
	archiver    Archiver
	hub         Broadcaster
	opts        Options
}

// NewGenerationWorker creates a new generation worker. archiver may be nil.
func NewGenerationWorker(
	generations *service.GenerationService,
	profiles *service.ProfileService,
	registry *service.SessionRegistry,
	api client.SongAPI,
	timer poller.Timer,
	archiver Archiver,
	hub Broadcaster,
	opts Options,
) *GenerationWorker {
	return &GenerationWorker{
		generations: generations,
		profiles:    profiles,
		registry:    registry,
		api:         api,
		timer:       timer,
		archiver:    archiver,
		hub:         hub,
		opts:        opts,
	}
}

// ProcessTask handles generation task processing
func (w *GenerationWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload model.GenerationTaskPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("failed to unmarshal task payload: %v: %w", err, asynq.SkipRetry)
	}

	id := payload.GenerationID
	gen, err := w.generations.Load(ctx, id)
	if errors.Is(err, service.ErrNotFound) {
		log.Printf("[Worker] Generation %s expired before it was processed", id)
		return nil
	}
	if err != nil {
		return err
	}
	if gen.Status.Terminal() {
		log.Printf("[Worker] Generation %s already %s, skipping", id, gen.Status)
		return nil
	}

	log.Printf("[Worker] Starting generation %s (%d clips known)", id, len(gen.ClipIDs))

	if len(gen.ClipIDs) == 0 {
		gen, err = w.submit(ctx, gen)
		if err != nil || gen == nil {
			return err
		}
	}

	creds, err := w.profiles.Credentials(ctx, gen.UserID)
	if err != nil {
		return err
	}
	return w.watch(ctx, gen, creds)
}

// submit sends the generate request and stores the returned clip ids.
// A nil generation with nil error means the generation was finished elsewhere.
func (w *GenerationWorker) submit(ctx context.Context, gen *model.Generation) (*model.Generation, error) {
	if gen.Request == nil {
		w.fail(ctx, gen.ID, "Generation has neither clip ids nor a request")
		return nil, fmt.Errorf("generation %s has nothing to submit: %w", gen.ID, asynq.SkipRetry)
	}

	profile, err := w.profiles.Active(ctx, gen.UserID)
	if errors.Is(err, service.ErrNoActiveProfile) {
		w.fail(ctx, gen.ID, "No active profile")
		return nil, fmt.Errorf("generation %s: %v: %w", gen.ID, err, asynq.SkipRetry)
	}
	if err != nil {
		return nil, err
	}

	if _, err := w.setStatus(ctx, gen.ID, model.GenerationStatusSubmitting); err != nil {
		return nil, ignoreFinished(err)
	}

	req := gen.Request
	songReq := &client.GenerateSongRequest{
		Title:            req.Title,
		Tags:             req.Tags,
		Model:            req.Model,
		ContinueClipID:   req.ContinueClipID,
		ContinueAt:       req.ContinueAt,
		MakeInstrumental: req.MakeInstrumental,
	}
	if !req.MakeInstrumental {
		prompt := req.Prompt
		songReq.Prompt = &prompt
	}

	creds := client.Credentials{Sess: profile.Sess, Cookie: profile.Cookie}
	ids, err := w.api.Generate(ctx, creds, songReq)
	if err != nil {
		w.fail(ctx, gen.ID, fmt.Sprintf("Song generation failed: %v", err))
		// resubmitting could create duplicate songs
		return nil, fmt.Errorf("generation %s: %v: %w", gen.ID, err, asynq.SkipRetry)
	}

	log.Printf("[Worker] Generation %s submitted, clips: %v", gen.ID, ids)

	updated, err := w.generations.Update(ctx, gen.ID, func(g *model.Generation) error {
		if g.Status.Terminal() {
			return service.ErrAlreadyFinished
		}
		g.ClipIDs = ids
		return nil
	})
	if err != nil {
		return nil, ignoreFinished(err)
	}
	return updated, nil
}

// watch runs a poller session for the generation's clips until it ends
func (w *GenerationWorker) watch(taskCtx context.Context, gen *model.Generation, creds client.Credentials) error {
	ctx := taskCtx
	if w.opts.MaxWait > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(taskCtx, w.opts.MaxWait)
		defer cancel()
	}

	if _, err := w.setStatus(ctx, gen.ID, model.GenerationStatusPolling); err != nil {
		return ignoreFinished(err)
	}

	var (
		allReady = make(chan struct{})
		stopped  = make(chan struct{})
		stopOnce sync.Once
	)
	stop := func() { stopOnce.Do(func() { close(stopped) }) }

	fetcher := client.NewMetadataFetcher(w.api, creds, w.opts.Readiness)
	p := poller.New(fetcher, w.timer, poller.Options{Interval: w.opts.Interval})
	session, err := p.Start(ctx, gen.ClipIDs, poller.Callbacks{
		OnUpdate: func(records []poller.StatusRecord) {
			if !w.onUpdate(ctx, gen.ID, records) {
				stop()
			}
		},
		OnError: func(err error) {
			if !w.onError(ctx, gen.ID, err) {
				stop()
			}
		},
		OnAllReady: func() { close(allReady) },
	})
	if err != nil {
		w.fail(ctx, gen.ID, fmt.Sprintf("Polling could not start: %v", err))
		return fmt.Errorf("generation %s: %v: %w", gen.ID, err, asynq.SkipRetry)
	}

	w.registry.Register(gen.ID, session)
	telemetry.ActiveSessions.Inc()
	defer func() {
		w.registry.Remove(gen.ID, session)
		telemetry.ActiveSessions.Dec()
		telemetry.SkippedTicks.Add(float64(session.Stats().Skipped))
	}()

	select {
	case <-allReady:
	case <-stopped:
		session.Cancel()
		log.Printf("[Worker] Generation %s finished elsewhere, polling stopped", gen.ID)
		return nil
	case <-session.Done():
		if session.State() != poller.StateReady {
			return w.interrupted(taskCtx, ctx, gen.ID)
		}
		<-allReady
	case <-ctx.Done():
		session.Cancel()
		return w.interrupted(taskCtx, ctx, gen.ID)
	}

	stats := session.Stats()
	log.Printf("[Worker] Generation %s ready after %d fetches (%d failed)", gen.ID, stats.Fetches, stats.Failures)
	return w.complete(context.WithoutCancel(taskCtx), gen.ID, session.Records())
}

// interrupted decides what a session that ended without readiness means
func (w *GenerationWorker) interrupted(taskCtx, ctx context.Context, id string) error {
	if taskCtx.Err() != nil {
		// shutdown or asynq timeout, leave the generation for a retry
		log.Printf("[Worker] Generation %s interrupted: %v", id, taskCtx.Err())
		return taskCtx.Err()
	}
	if errors.Is(ctx.Err(), context.DeadlineExceeded) {
		w.fail(context.WithoutCancel(taskCtx), id, "polling deadline exceeded")
		return nil
	}
	log.Printf("[Worker] Generation %s canceled", id)
	return nil
}

// onUpdate stores and broadcasts a snapshot. It reports false once the
// generation has been finished by someone else.
func (w *GenerationWorker) onUpdate(ctx context.Context, id string, records []poller.StatusRecord) bool {
	progress := 0
	if len(records) > 0 {
		progress = poller.ReadyCount(records) * 100 / len(records)
	}

	_, err := w.generations.Update(ctx, id, func(g *model.Generation) error {
		if g.Status.Terminal() {
			return service.ErrAlreadyFinished
		}
		g.Clips = records
		g.Progress = progress
		g.Fetches++
		return nil
	})
	if errors.Is(err, service.ErrAlreadyFinished) || errors.Is(err, service.ErrNotFound) {
		return false
	}
	if err != nil {
		log.Printf("[Worker] Failed to save snapshot of %s: %v", id, err)
	}

	w.hub.BroadcastProgress(id, progress, model.GenerationStatusPolling, records)
	return true
}

// onError records a failed fetch; polling continues
func (w *GenerationWorker) onError(ctx context.Context, id string, fetchErr error) bool {
	msg := fetchErr.Error()
	log.Printf("[Worker] Fetch for generation %s failed: %s", id, msg)

	_, err := w.generations.Update(ctx, id, func(g *model.Generation) error {
		if g.Status.Terminal() {
			return service.ErrAlreadyFinished
		}
		g.Fetches++
		g.Failures++
		g.Error = &msg
		return nil
	})
	if errors.Is(err, service.ErrAlreadyFinished) || errors.Is(err, service.ErrNotFound) {
		return false
	}
	if err != nil {
		log.Printf("[Worker] Failed to record fetch failure of %s: %v", id, err)
	}

	w.hub.BroadcastError(id, model.WSErrorFetchFailed, msg)
	return true
}

// complete archives the clips and marks the generation ready
func (w *GenerationWorker) complete(ctx context.Context, id string, records []poller.StatusRecord) error {
	var archived map[string]string
	if w.archiver != nil {
		urls, err := w.archiver.Archive(ctx, id, records)
		if err != nil {
			log.Printf("[Worker] Archiving generation %s failed, keeping remote URLs: %v", id, err)
		} else {
			archived = urls
		}
	}

	_, err := w.generations.Update(ctx, id, func(g *model.Generation) error {
		if g.Status.Terminal() {
			return service.ErrAlreadyFinished
		}
		now := time.Now()
		g.Status = model.GenerationStatusReady
		g.Clips = records
		g.Progress = 100
		g.Error = nil
		g.ArchivedURLs = archived
		g.CompletedAt = &now
		return nil
	})
	if err != nil {
		return ignoreFinished(err)
	}

	telemetry.GenerationsFinished.WithLabelValues(string(model.GenerationStatusReady)).Inc()
	w.hub.BroadcastComplete(id, model.GenerationResult{Clips: records, ArchivedURLs: archived})
	log.Printf("[Worker] Generation %s completed", id)
	return nil
}

func (w *GenerationWorker) setStatus(ctx context.Context, id string, status model.GenerationStatus) (*model.Generation, error) {
	return w.generations.Update(ctx, id, func(g *model.Generation) error {
		if g.Status.Terminal() {
			return service.ErrAlreadyFinished
		}
		g.Status = status
		if g.StartedAt == nil {
			now := time.Now()
			g.StartedAt = &now
		}
		return nil
	})
}

func (w *GenerationWorker) fail(ctx context.Context, id, errMsg string) {
	_, err := w.generations.Update(ctx, id, func(g *model.Generation) error {
		if g.Status.Terminal() {
			return service.ErrAlreadyFinished
		}
		now := time.Now()
		g.Status = model.GenerationStatusFailed
		g.Error = &errMsg
		g.CompletedAt = &now
		return nil
	})
	if errors.Is(err, service.ErrAlreadyFinished) {
		return
	}
	if err != nil {
		log.Printf("[Worker] Failed to mark generation %s as failed: %v", id, err)
	}
	telemetry.GenerationsFinished.WithLabelValues(string(model.GenerationStatusFailed)).Inc()
	w.hub.BroadcastError(id, model.WSErrorGenerationFailed, errMsg)
	log.Printf("[Worker] Generation %s failed: %s", id, errMsg)
}

// ignoreFinished turns "finished elsewhere" into a successful no-op
func ignoreFinished(err error) error {
	if errors.Is(err, service.ErrAlreadyFinished) {
		return nil
	}
	return err
}
