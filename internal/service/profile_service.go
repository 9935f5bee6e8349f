package service

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/clipwatch/internal/client"
	"github.com/makeasinger/clipwatch/internal/model"
)

const maxTxRetries = 5

// ProfileService stores remote API credential profiles per user
type ProfileService struct {
	redis *redis.Client
}

func NewProfileService(redisClient *redis.Client) *ProfileService {
	return &ProfileService{
		redis: redisClient,
	}
}

// List returns the user's profiles in creation order
func (s *ProfileService) List(ctx context.Context, userID string) ([]model.Profile, error) {
	return s.load(ctx, s.redis, userID)
}

// Create adds a profile. The first profile of a user becomes active.
func (s *ProfileService) Create(ctx context.Context, userID string, req *model.ProfileRequest) (*model.Profile, error) {
	profile := model.Profile{
		ID:        uuid.New().String(),
		Name:      req.Name,
		Sess:      req.Sess,
		Cookie:    req.Cookie,
		CreatedAt: time.Now(),
	}
	err := s.mutate(ctx, userID, func(profiles []model.Profile) ([]model.Profile, error) {
		profile.IsActive = len(profiles) == 0
		return append(profiles, profile), nil
	})
	if err != nil {
		return nil, err
	}
	return &profile, nil
}

// Update replaces the name and credentials of a profile
func (s *ProfileService) Update(ctx context.Context, userID, profileID string, req *model.ProfileRequest) (*model.Profile, error) {
	var updated model.Profile
	err := s.mutate(ctx, userID, func(profiles []model.Profile) ([]model.Profile, error) {
		i := indexOfProfile(profiles, profileID)
		if i < 0 {
			return nil, ErrNotFound
		}
		profiles[i].Name = req.Name
		profiles[i].Sess = req.Sess
		profiles[i].Cookie = req.Cookie
		updated = profiles[i]
		return profiles, nil
	})
	if err != nil {
		return nil, err
	}
	return &updated, nil
}

// Activate makes profileID the only active profile
func (s *ProfileService) Activate(ctx context.Context, userID, profileID string) (*model.Profile, error) {
	var active model.Profile
	err := s.mutate(ctx, userID, func(profiles []model.Profile) ([]model.Profile, error) {
		i := indexOfProfile(profiles, profileID)
		if i < 0 {
			return nil, ErrNotFound
		}
		for j := range profiles {
			profiles[j].IsActive = j == i
		}
		active = profiles[i]
		return profiles, nil
	})
	if err != nil {
		return nil, err
	}
	return &active, nil
}

// Delete removes a profile. Deleting the active one activates the oldest remaining.
func (s *ProfileService) Delete(ctx context.Context, userID, profileID string) error {
	return s.mutate(ctx, userID, func(profiles []model.Profile) ([]model.Profile, error) {
		i := indexOfProfile(profiles, profileID)
		if i < 0 {
			return nil, ErrNotFound
		}
		wasActive := profiles[i].IsActive
		profiles = append(profiles[:i], profiles[i+1:]...)
		if wasActive && len(profiles) > 0 {
			profiles[0].IsActive = true
		}
		return profiles, nil
	})
}

// Active returns the user's active profile or ErrNoActiveProfile
func (s *ProfileService) Active(ctx context.Context, userID string) (*model.Profile, error) {
	profiles, err := s.List(ctx, userID)
	if err != nil {
		return nil, err
	}
	for i := range profiles {
		if profiles[i].IsActive {
			return &profiles[i], nil
		}
	}
	return nil, ErrNoActiveProfile
}

// Credentials returns the active profile's credentials, or empty
// credentials when the user has none.
func (s *ProfileService) Credentials(ctx context.Context, userID string) (client.Credentials, error) {
	p, err := s.Active(ctx, userID)
	if errors.Is(err, ErrNoActiveProfile) {
		return client.Credentials{}, nil
	}
	if err != nil {
		return client.Credentials{}, err
	}
	return client.Credentials{Sess: p.Sess, Cookie: p.Cookie}, nil
}

// Helper methods

func profilesKey(userID string) string {
	return fmt.Sprintf("profiles:%s", userID)
}

// hashReader is satisfied by both *redis.Client and *redis.Tx
type hashReader interface {
	HGetAll(ctx context.Context, key string) *redis.MapStringStringCmd
}

func (s *ProfileService) load(ctx context.Context, c hashReader, userID string) ([]model.Profile, error) {
	fields, err := c.HGetAll(ctx, profilesKey(userID)).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load profiles: %w", err)
	}
	profiles := make([]model.Profile, 0, len(fields))
	for _, raw := range fields {
		var p model.Profile
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to decode profile: %w", err)
		}
		profiles = append(profiles, p)
	}
	sort.Slice(profiles, func(i, j int) bool {
		if !profiles[i].CreatedAt.Equal(profiles[j].CreatedAt) {
			return profiles[i].CreatedAt.Before(profiles[j].CreatedAt)
		}
		return profiles[i].ID < profiles[j].ID
	})
	return profiles, nil
}

// mutate applies fn to the user's profiles inside an optimistic transaction
func (s *ProfileService) mutate(ctx context.Context, userID string, fn func([]model.Profile) ([]model.Profile, error)) error {
	key := profilesKey(userID)
	txf := func(tx *redis.Tx) error {
		profiles, err := s.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		profiles, err = fn(profiles)
		if err != nil {
			return err
		}
		values := make([]interface{}, 0, len(profiles)*2)
		for _, p := range profiles {
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			values = append(values, p.ID, data)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(values) > 0 {
				pipe.HSet(ctx, key, values...)
			}
			return nil
		})
		return err
	}
	return watchRetry(ctx, s.redis, txf, key)
}

// watchRetry runs txf under WATCH, retrying when another client raced it
func watchRetry(ctx context.Context, c *redis.Client, txf func(*redis.Tx) error, keys ...string) error {
	for i := 0; i < maxTxRetries; i++ {
		err := c.Watch(ctx, txf, keys...)
		if !errors.Is(err, redis.TxFailedErr) {
			return err
		}
	}
	return fmt.Errorf("failed to update %v: too many concurrent writers", keys)
}

func indexOfProfile(profiles []model.Profile, id string) int {
	for i := range profiles {
		if profiles[i].ID == id {
			return i
		}
	}
	return -1
}
