package client

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/makeasinger/clipwatch/internal/config"
)

// ErrNoSongs is returned when a generate call is accepted but yields no clip ids
var ErrNoSongs = errors.New("no songs generated")

// SongAPI defines the remote song API operations used by the service
type SongAPI interface {
	Generate(ctx context.Context, creds Credentials, req *GenerateSongRequest) ([]string, error)
	GetMetadata(ctx context.Context, creds Credentials, ids []string) ([]Clip, error)
	Search(ctx context.Context, creds Credentials, query, style string) ([]Clip, error)
	GenerateLyrics(ctx context.Context, creds Credentials, prompt string) (*LyricsResult, error)
	GetPlaylist(ctx context.Context, creds Credentials, id string, page int) (*Playlist, error)
	ListSongs(ctx context.Context, creds Credentials) ([]Clip, error)
}

// Credentials are the session values of the caller's active profile.
// Empty credentials are sent as-is, which the remote API may reject.
type Credentials struct {
	Sess   string
	Cookie string
}

// Empty reports whether no credential is set
func (c Credentials) Empty() bool {
	return c.Sess == "" && c.Cookie == ""
}

// SunoClient implements SongAPI over HTTP
type SunoClient struct {
	httpClient *http.Client
	baseURL    string
	model      string
}

// GenerateSongRequest represents the body of a generate call
type GenerateSongRequest struct {
	Title            string   `json:"title"`
	Tags             string   `json:"tags"`
	Prompt           *string  `json:"prompt"`
	Model            string   `json:"mv"`
	ContinueClipID   string   `json:"continue_clip_id,omitempty"`
	ContinueAt       *float64 `json:"continue_at,omitempty"`
	MakeInstrumental bool     `json:"make_instrumental"`
}

type generateResponse struct {
	Songs []string `json:"songs"`
}

// Clip represents one remote clip
type Clip struct {
	ID          string       `json:"id"`
	Title       string       `json:"title"`
	DisplayName string       `json:"display_name,omitempty"`
	Status      string       `json:"status"`
	AudioURL    string       `json:"audio_url"`
	VideoURL    string       `json:"video_url"`
	ImageURL    string       `json:"image_url"`
	Metadata    ClipMetadata `json:"metadata"`
}

// ClipMetadata holds the generation parameters of a clip
type ClipMetadata struct {
	Tags     string  `json:"tags"`
	Prompt   string  `json:"prompt"`
	Duration float64 `json:"duration"`
}

type metadataResponse struct {
	Metadata []Clip `json:"metadata"`
}

type songsResponse struct {
	Songs []Clip `json:"songs"`
}

// LyricsResult represents generated lyrics
type LyricsResult struct {
	Title  string `json:"title,omitempty"`
	Lyrics string `json:"lyrics"`
}

// Playlist represents one page of a remote playlist
type Playlist struct {
	ID              string         `json:"id"`
	Name            string         `json:"name"`
	Description     string         `json:"description"`
	ImageURL        string         `json:"image_url"`
	UserDisplayName string         `json:"user_display_name"`
	Clips           []PlaylistClip `json:"playlist_clips"`
}

// PlaylistClip wraps a clip inside a playlist page
type PlaylistClip struct {
	Clip Clip `json:"clip"`
}

// NewSunoClient creates a new remote song API client
func NewSunoClient(cfg *config.SunoConfig) *SunoClient {
	timeout := time.Duration(cfg.Timeout) * time.Second
	if timeout <= 0 {
		timeout = 60 * time.Second
	}
	model := cfg.Model
	if model == "" {
		model = "chirp-v3-5"
	}
	return &SunoClient{
		httpClient: &http.Client{
			Timeout: timeout,
		},
		baseURL: strings.TrimRight(cfg.BaseURL, "/"),
		model:   model,
	}
}

// Model returns the default model version sent with generate calls
func (c *SunoClient) Model() string {
	return c.model
}

// Generate submits a song generation and returns the new clip ids
func (c *SunoClient) Generate(ctx context.Context, creds Credentials, req *GenerateSongRequest) ([]string, error) {
	body := *req
	if body.Model == "" {
		body.Model = c.model
	}
	var result generateResponse
	if err := c.post(ctx, "/generate", creds, nil, &body, &result); err != nil {
		return nil, err
	}
	if len(result.Songs) == 0 {
		return nil, ErrNoSongs
	}
	return result.Songs, nil
}

// GetMetadata returns the current metadata of the given clips
func (c *SunoClient) GetMetadata(ctx context.Context, creds Credentials, ids []string) ([]Clip, error) {
	query := url.Values{}
	query.Set("ids", strings.Join(ids, ","))
	var result metadataResponse
	if err := c.get(ctx, "/metadata", creds, query, &result); err != nil {
		return nil, err
	}
	if result.Metadata == nil {
		return nil, fmt.Errorf("no metadata found for ids %s", strings.Join(ids, ","))
	}
	return result.Metadata, nil
}

// Search finds public clips by free text and style
func (c *SunoClient) Search(ctx context.Context, creds Credentials, query, style string) ([]Clip, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("style", style)
	var result []Clip
	if err := c.get(ctx, "/search", creds, params, &result); err != nil {
		return nil, err
	}
	return result, nil
}

// GenerateLyrics asks the remote API to write lyrics for a prompt
func (c *SunoClient) GenerateLyrics(ctx context.Context, creds Credentials, prompt string) (*LyricsResult, error) {
	req := map[string]string{"prompt": prompt}
	var result LyricsResult
	if err := c.post(ctx, "/generate-lyrics", creds, nil, req, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// GetPlaylist fetches one page of a playlist. Pages start at 1.
func (c *SunoClient) GetPlaylist(ctx context.Context, creds Credentials, id string, page int) (*Playlist, error) {
	if page < 1 {
		page = 1
	}
	query := url.Values{}
	query.Set("id", id)
	query.Set("page", strconv.Itoa(page))
	var result Playlist
	if err := c.get(ctx, "/playlist", creds, query, &result); err != nil {
		return nil, err
	}
	return &result, nil
}

// ListSongs returns the library of the credentials' account
func (c *SunoClient) ListSongs(ctx context.Context, creds Credentials) ([]Clip, error) {
	var result songsResponse
	if err := c.get(ctx, "/all-songs", creds, nil, &result); err != nil {
		return nil, err
	}
	return result.Songs, nil
}

// endpointURL builds the request URL, appending credentials when present
func (c *SunoClient) endpointURL(endpoint string, creds Credentials, query url.Values) string {
	if query == nil {
		query = url.Values{}
	}
	if !creds.Empty() {
		query.Set("sess", creds.Sess)
		query.Set("cookie", creds.Cookie)
	}
	u := c.baseURL + endpoint
	if encoded := query.Encode(); encoded != "" {
		u += "?" + encoded
	}
	return u
}

// post sends a POST request with JSON body
func (c *SunoClient) post(ctx context.Context, endpoint string, creds Credentials, query url.Values, body interface{}, result interface{}) error {
	bodyBytes, err := json.Marshal(body)
	if err != nil {
		return fmt.Errorf("failed to marshal request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.endpointURL(endpoint, creds, query), bytes.NewReader(bodyBytes))
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")

	return c.doRequest(req, endpoint, result)
}

// get sends a GET request and parses JSON response
func (c *SunoClient) get(ctx context.Context, endpoint string, creds Credentials, query url.Values, result interface{}) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.endpointURL(endpoint, creds, query), nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}

	return c.doRequest(req, endpoint, result)
}

// doRequest executes an HTTP request and parses the response.
// Only the endpoint path is logged; the query carries credentials.
func (c *SunoClient) doRequest(req *http.Request, endpoint string, result interface{}) error {
	req.Header.Set("Accept", "application/json")

	log.Printf("[Suno API] → %s %s", req.Method, endpoint)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		log.Printf("[Suno API] ✗ %s %s request failed: %v", req.Method, endpoint, redact(err))
		return fmt.Errorf("failed to send request to %s: %w", endpoint, redactError(err))
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		log.Printf("[Suno API] ✗ %s %s failed to read response: %v", req.Method, endpoint, err)
		return fmt.Errorf("failed to read response: %w", err)
	}

	log.Printf("[Suno API] ← %d %s %s (%d bytes)", resp.StatusCode, req.Method, endpoint, len(respBody))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return &APIError{StatusCode: resp.StatusCode, Endpoint: endpoint, Body: truncate(string(respBody), 512)}
	}

	if err := json.Unmarshal(respBody, result); err != nil {
		log.Printf("[Suno API] ✗ unmarshal error for %s %s: %v", req.Method, endpoint, err)
		return fmt.Errorf("failed to unmarshal response: %w", err)
	}

	return nil
}

// APIError is a non-2xx answer from the remote API
type APIError struct {
	StatusCode int
	Endpoint   string
	Body       string
}

func (e *APIError) Error() string {
	return fmt.Sprintf("suno API error on %s (status %d): %s", e.Endpoint, e.StatusCode, e.Body)
}

// redactError strips the request URL, and with it the credentials, from transport errors
func redactError(err error) error {
	var urlErr *url.Error
	if errors.As(err, &urlErr) {
		return urlErr.Err
	}
	return err
}

func redact(err error) string {
	return redactError(err).Error()
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
