package service

import (
	"context"
	"encoding/json"
	"fmt"
	"net/url"
	"strings"

	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/clipwatch/internal/client"
	"github.com/makeasinger/clipwatch/internal/model"
)

// PlaylistService stores bookmarked remote playlists per user
type PlaylistService struct {
	redis    *redis.Client
	api      client.SongAPI
	profiles *ProfileService
}

func NewPlaylistService(redisClient *redis.Client, api client.SongAPI, profiles *ProfileService) *PlaylistService {
	return &PlaylistService{
		redis:    redisClient,
		api:      api,
		profiles: profiles,
	}
}

// List returns saved playlists in the order they were saved
func (s *PlaylistService) List(ctx context.Context, userID string) ([]model.SavedPlaylist, error) {
	return s.load(ctx, s.redis, userID)
}

// Save bookmarks a playlist. Saving an id twice renames the existing entry.
func (s *PlaylistService) Save(ctx context.Context, userID string, req *model.PlaylistSaveRequest) (*model.SavedPlaylist, error) {
	id := PlaylistID(req.ID)
	if id == "" {
		return nil, fmt.Errorf("%w: playlist id is empty", ErrInvalidPlaylist)
	}
	saved := model.SavedPlaylist{ID: id, Name: req.Name}
	err := s.mutate(ctx, userID, func(playlists []model.SavedPlaylist) ([]model.SavedPlaylist, error) {
		if i := indexOfPlaylist(playlists, id); i >= 0 {
			playlists[i].Name = req.Name
			return playlists, nil
		}
		return append(playlists, saved), nil
	})
	if err != nil {
		return nil, err
	}
	return &saved, nil
}

// Rename changes the display name of a saved playlist
func (s *PlaylistService) Rename(ctx context.Context, userID, playlistID, name string) (*model.SavedPlaylist, error) {
	var renamed model.SavedPlaylist
	err := s.mutate(ctx, userID, func(playlists []model.SavedPlaylist) ([]model.SavedPlaylist, error) {
		i := indexOfPlaylist(playlists, playlistID)
		if i < 0 {
			return nil, ErrNotFound
		}
		playlists[i].Name = name
		renamed = playlists[i]
		return playlists, nil
	})
	if err != nil {
		return nil, err
	}
	return &renamed, nil
}

// Delete removes a saved playlist
func (s *PlaylistService) Delete(ctx context.Context, userID, playlistID string) error {
	return s.mutate(ctx, userID, func(playlists []model.SavedPlaylist) ([]model.SavedPlaylist, error) {
		i := indexOfPlaylist(playlists, playlistID)
		if i < 0 {
			return nil, ErrNotFound
		}
		return append(playlists[:i], playlists[i+1:]...), nil
	})
}

// Clips fetches one page of a remote playlist
func (s *PlaylistService) Clips(ctx context.Context, userID, playlistID string, page int) (*model.PlaylistClipsResponse, error) {
	if page < 1 {
		page = 1
	}
	creds, err := s.profiles.Credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	pl, err := s.api.GetPlaylist(ctx, creds, PlaylistID(playlistID), page)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch playlist: %w", err)
	}

	songs := make([]model.Song, 0, len(pl.Clips))
	for _, pc := range pl.Clips {
		songs = append(songs, toSong(pc.Clip))
	}
	return &model.PlaylistClipsResponse{
		ID:              pl.ID,
		Name:            pl.Name,
		Description:     pl.Description,
		ImageURL:        pl.ImageURL,
		UserDisplayName: pl.UserDisplayName,
		Page:            page,
		Songs:           songs,
	}, nil
}

// PlaylistID extracts the playlist id from a share URL. Plain ids are returned as-is.
func PlaylistID(raw string) string {
	raw = strings.TrimSpace(raw)
	if u, err := url.Parse(raw); err == nil && u.Host != "" {
		raw = u.Path
	}
	raw = strings.TrimRight(raw, "/")
	if i := strings.LastIndex(raw, "/"); i >= 0 {
		raw = raw[i+1:]
	}
	return raw
}

// Helper methods

func playlistsKey(userID string) string {
	return fmt.Sprintf("playlists:%s", userID)
}

// listReader is satisfied by both *redis.Client and *redis.Tx
type listReader interface {
	LRange(ctx context.Context, key string, start, stop int64) *redis.StringSliceCmd
}

func (s *PlaylistService) load(ctx context.Context, c listReader, userID string) ([]model.SavedPlaylist, error) {
	items, err := c.LRange(ctx, playlistsKey(userID), 0, -1).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to load playlists: %w", err)
	}
	playlists := make([]model.SavedPlaylist, 0, len(items))
	for _, raw := range items {
		var p model.SavedPlaylist
		if err := json.Unmarshal([]byte(raw), &p); err != nil {
			return nil, fmt.Errorf("failed to decode playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	return playlists, nil
}

func (s *PlaylistService) mutate(ctx context.Context, userID string, fn func([]model.SavedPlaylist) ([]model.SavedPlaylist, error)) error {
	key := playlistsKey(userID)
	txf := func(tx *redis.Tx) error {
		playlists, err := s.load(ctx, tx, userID)
		if err != nil {
			return err
		}
		playlists, err = fn(playlists)
		if err != nil {
			return err
		}
		values := make([]interface{}, 0, len(playlists))
		for _, p := range playlists {
			data, err := json.Marshal(p)
			if err != nil {
				return err
			}
			values = append(values, data)
		}
		_, err = tx.TxPipelined(ctx, func(pipe redis.Pipeliner) error {
			pipe.Del(ctx, key)
			if len(values) > 0 {
				pipe.RPush(ctx, key, values...)
			}
			return nil
		})
		return err
	}
	return watchRetry(ctx, s.redis, txf, key)
}

func indexOfPlaylist(playlists []model.SavedPlaylist, id string) int {
	for i := range playlists {
		if playlists[i].ID == id {
			return i
		}
	}
	return -1
}
