package service

import (
	"context"
	"fmt"

	"github.com/makeasinger/clipwatch/internal/client"
	"github.com/makeasinger/clipwatch/internal/model"
)

// CatalogService passes library, search and lyrics calls through to the
// remote API with the caller's active credentials
type CatalogService struct {
	api      client.SongAPI
	profiles *ProfileService
}

func NewCatalogService(api client.SongAPI, profiles *ProfileService) *CatalogService {
	return &CatalogService{
		api:      api,
		profiles: profiles,
	}
}

// Songs returns the library of the user's active account
func (s *CatalogService) Songs(ctx context.Context, userID string) (*model.SongListResponse, error) {
	creds, err := s.profiles.Credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	clips, err := s.api.ListSongs(ctx, creds)
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	return &model.SongListResponse{Songs: toSongs(clips)}, nil
}

// Search finds songs by text and style
func (s *CatalogService) Search(ctx context.Context, userID, query, style string) (*model.SongListResponse, error) {
	creds, err := s.profiles.Credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	clips, err := s.api.Search(ctx, creds, query, style)
	if err != nil {
		return nil, fmt.Errorf("failed to search songs: %w", err)
	}
	return &model.SongListResponse{Songs: toSongs(clips)}, nil
}

// Lyrics generates lyrics for a prompt
func (s *CatalogService) Lyrics(ctx context.Context, userID string, req *model.LyricsRequest) (*model.LyricsResponse, error) {
	creds, err := s.profiles.Credentials(ctx, userID)
	if err != nil {
		return nil, err
	}
	res, err := s.api.GenerateLyrics(ctx, creds, req.Prompt)
	if err != nil {
		return nil, fmt.Errorf("failed to generate lyrics: %w", err)
	}
	return &model.LyricsResponse{Title: res.Title, Lyrics: res.Lyrics}, nil
}

func toSongs(clips []client.Clip) []model.Song {
	songs := make([]model.Song, 0, len(clips))
	for _, c := range clips {
		songs = append(songs, toSong(c))
	}
	return songs
}

// toSong falls back to the prompt, then "Untitled", for clips without a title
func toSong(c client.Clip) model.Song {
	title := c.Title
	if title == "" {
		title = c.Metadata.Prompt
	}
	if title == "" {
		title = "Untitled"
	}
	return model.Song{
		ID:       c.ID,
		Title:    title,
		Artist:   c.DisplayName,
		Subtitle: c.Metadata.Tags,
		ImageURL: c.ImageURL,
		AudioURL: c.AudioURL,
		VideoURL: c.VideoURL,
		Prompt:   c.Metadata.Prompt,
		Duration: c.Metadata.Duration,
	}
}
