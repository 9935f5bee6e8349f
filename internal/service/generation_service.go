package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/clipwatch/internal/model"
	"github.com/makeasinger/clipwatch/internal/poller"
	"github.com/makeasinger/clipwatch/internal/telemetry"
)

const (
	TaskTypeGenerationWatch = "generation:watch"
	QueueGenerations        = "generations"

	generationTTL     = 24 * time.Hour
	recentGenerations = 50
)

// TaskEnqueuer is the part of asynq.Client used to queue work
type TaskEnqueuer interface {
	Enqueue(task *asynq.Task, opts ...asynq.Option) (*asynq.TaskInfo, error)
}

// GenerationService manages generation records and their watch tasks
type GenerationService struct {
	redis    *redis.Client
	enqueuer TaskEnqueuer
	profiles *ProfileService
	registry *SessionRegistry
	maxWait  time.Duration
}

func NewGenerationService(redisClient *redis.Client, enqueuer TaskEnqueuer, profiles *ProfileService, registry *SessionRegistry, maxWait time.Duration) *GenerationService {
	return &GenerationService{
		redis:    redisClient,
		enqueuer: enqueuer,
		profiles: profiles,
		registry: registry,
		maxWait:  maxWait,
	}
}

// Start queues a new generation that is submitted to the remote API by the worker
func (s *GenerationService) Start(ctx context.Context, userID string, req *model.GenerateRequest) (*model.GenerationStartResponse, error) {
	if _, err := s.profiles.Active(ctx, userID); err != nil {
		return nil, err
	}
	if req.Model == "" {
		req.Model = model.DefaultModel
	}
	return s.create(ctx, userID, req, nil)
}

// Watch queues a generation for clips that were already submitted
func (s *GenerationService) Watch(ctx context.Context, userID string, clipIDs []string) (*model.GenerationStartResponse, error) {
	ids, err := poller.NormalizeJobIDs(clipIDs)
	if err != nil {
		return nil, err
	}
	return s.create(ctx, userID, nil, ids)
}

// Get returns a generation owned by userID
func (s *GenerationService) Get(ctx context.Context, userID, generationID string) (*model.Generation, error) {
	gen, err := s.Load(ctx, generationID)
	if err != nil {
		return nil, err
	}
	if gen.UserID != userID {
		return nil, ErrNotFound
	}
	return gen, nil
}

// Status returns the current state of a generation
func (s *GenerationService) Status(ctx context.Context, userID, generationID string) (*model.GenerationStatusResponse, error) {
	gen, err := s.Get(ctx, userID, generationID)
	if err != nil {
		return nil, err
	}
	return toStatusResponse(gen), nil
}

// List returns the user's most recent generations, newest first
func (s *GenerationService) List(ctx context.Context, userID string) ([]model.GenerationStatusResponse, error) {
	ids, err := s.redis.LRange(ctx, userGenerationsKey(userID), 0, recentGenerations-1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to list generations: %w", err)
	}
	out := make([]model.GenerationStatusResponse, 0, len(ids))
	for _, id := range ids {
		gen, err := s.Load(ctx, id)
		if errors.Is(err, ErrNotFound) {
			// expired record
			continue
		}
		if err != nil {
			return nil, err
		}
		out = append(out, *toStatusResponse(gen))
	}
	return out, nil
}

// Cancel stops polling for a generation and marks it canceled
func (s *GenerationService) Cancel(ctx context.Context, userID, generationID string) (*model.GenerationCancelResponse, error) {
	if _, err := s.Get(ctx, userID, generationID); err != nil {
		return nil, err
	}

	_, err := s.Update(ctx, generationID, func(gen *model.Generation) error {
		if gen.Status.Terminal() {
			return ErrAlreadyFinished
		}
		now := time.Now()
		gen.Status = model.GenerationStatusCanceled
		gen.CompletedAt = &now
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.registry.Cancel(generationID)
	telemetry.GenerationsFinished.WithLabelValues(string(model.GenerationStatusCanceled)).Inc()

	return &model.GenerationCancelResponse{
		Success:      true,
		GenerationID: generationID,
		Status:       model.GenerationStatusCanceled,
	}, nil
}

// Load reads a generation regardless of owner (called by worker)
func (s *GenerationService) Load(ctx context.Context, generationID string) (*model.Generation, error) {
	data, err := s.redis.Get(ctx, generationKey(generationID)).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to load generation: %w", err)
	}
	return decodeGeneration(data)
}

// Update applies fn to a generation atomically (called by worker and Cancel).
// An error from fn aborts the write and is returned unchanged.
func (s *GenerationService) Update(ctx context.Context, generationID string, fn func(gen *model.Generation) error) (*model.Generation, error) {
	key := generationKey(generationID)
	var updated *model.Generation
	txf := func(tx *redis.Tx) error {
		data, err := tx.Get(ctx, key).Bytes()
		if err != nil {
			if errors.Is(err, redis.Nil) {
				return ErrNotFound
			}
			return err
		}
		gen, err := decodeGeneration(data)
		if err != nil {
			return err
		}
		if err := fn(gen); err != nil {
			return err
		}
		data, err = json.Marshal(gen)
		if err != nil {
			return err
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Set(ctx, key, data, generationTTL)
			return nil
		})
		if err == nil {
			updated = gen
		}
		return err
	}
	if err := watchRetry(ctx, s.redis, txf, key); err != nil {
		return nil, err
	}
	return updated, nil
}

// Helper methods

func (s *GenerationService) create(ctx context.Context, userID string, req *model.GenerateRequest, clipIDs []string) (*model.GenerationStartResponse, error) {
	id := uuid.New().String()
	now := time.Now()

	gen := &model.Generation{
		ID:        id,
		UserID:    userID,
		Status:    model.GenerationStatusQueued,
		Request:   req,
		ClipIDs:   clipIDs,
		TaskID:    id,
		CreatedAt: now,
	}
	if err := s.save(ctx, gen); err != nil {
		return nil, fmt.Errorf("failed to save generation: %w", err)
	}

	task, err := newGenerationTask(id)
	if err != nil {
		return nil, fmt.Errorf("failed to create task: %w", err)
	}

	opts := []asynq.Option{
		asynq.Queue(QueueGenerations),
		asynq.TaskID(id),
		asynq.MaxRetry(3),
		asynq.Retention(generationTTL),
	}
	if s.maxWait > 0 {
		// leave the worker room to record the deadline before asynq kills the task
		opts = append(opts, asynq.Timeout(s.maxWait+time.Minute))
	}
	if _, err := s.enqueuer.Enqueue(task, opts...); err != nil {
		msg := "failed to enqueue task"
		_, _ = s.Update(ctx, id, func(gen *model.Generation) error {
			gen.Status = model.GenerationStatusFailed
			gen.Error = &msg
			gen.CompletedAt = &now
			return nil
		})
		return nil, fmt.Errorf("failed to enqueue task: %w", err)
	}
	telemetry.GenerationsEnqueued.Inc()

	return &model.GenerationStartResponse{
		GenerationID: id,
		Status:       model.GenerationStatusQueued,
		CreatedAt:    now,
	}, nil
}

func (s *GenerationService) save(ctx context.Context, gen *model.Generation) error {
	data, err := json.Marshal(gen)
	if err != nil {
		return err
	}
	listKey := userGenerationsKey(gen.UserID)
	_, err = s.redis.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
		pipe.Set(ctx, generationKey(gen.ID), data, generationTTL)
		pipe.LPush(ctx, listKey, gen.ID)
		pipe.LTrim(ctx, listKey, 0, recentGenerations-1)
		pipe.Expire(ctx, listKey, generationTTL)
		return nil
	})
	return err
}

func generationKey(id string) string {
	return fmt.Sprintf("generation:%s", id)
}

func userGenerationsKey(userID string) string {
	return fmt.Sprintf("generations:%s", userID)
}

func decodeGeneration(data []byte) (*model.Generation, error) {
	var gen model.Generation
	if err := json.Unmarshal(data, &gen); err != nil {
		return nil, fmt.Errorf("failed to decode generation: %w", err)
	}
	return &gen, nil
}

func toStatusResponse(gen *model.Generation) *model.GenerationStatusResponse {
	return &model.GenerationStatusResponse{
		GenerationID: gen.ID,
		Status:       gen.Status,
		Progress:     gen.Progress,
		ClipIDs:      gen.ClipIDs,
		Clips:        gen.Clips,
		Fetches:      gen.Fetches,
		Failures:     gen.Failures,
		Error:        gen.Error,
		ArchivedURLs: gen.ArchivedURLs,
		CreatedAt:    gen.CreatedAt,
		StartedAt:    gen.StartedAt,
		CompletedAt:  gen.CompletedAt,
	}
}

func newGenerationTask(generationID string) (*asynq.Task, error) {
	data, err := json.Marshal(model.GenerationTaskPayload{GenerationID: generationID})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskTypeGenerationWatch, data), nil
}
