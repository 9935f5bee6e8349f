package handler_test

import (
	"context"
	"encoding/json"
	"io"
	"net/http"
	"strings"
	"sync"
	"testing"
	"time"

	miniredis "github.com/alicebob/miniredis/v2"
	"github.com/go-playground/validator/v10"
	"github.com/gofiber/fiber/v2"
	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/makeasinger/clipwatch/internal/auth"
	"github.com/makeasinger/clipwatch/internal/client"
	"github.com/makeasinger/clipwatch/internal/handler"
	"github.com/makeasinger/clipwatch/internal/middleware"
	"github.com/makeasinger/clipwatch/internal/service"
	ws "github.com/makeasinger/clipwatch/internal/websocket"
)

const (
	testJWTSecret = "test-secret-for-handlers"
	testUserID    = "test-user-123"
)

// testApp holds the app plus the collaborators tests inspect
type testApp struct {
	app         *fiber.App
	redis       *redis.Client
	enqueuer    *fakeEnqueuer
	api         *fakeSongAPI
	profiles    *service.ProfileService
	generations *service.GenerationService
}

type appOptions struct {
	generatePerHour int
	catalogPerMin   int
}

// setupApp builds the routes from main.go on miniredis with a fake song API
func setupApp(t *testing.T) *testApp {
	return setupAppWith(t, appOptions{generatePerHour: 10000, catalogPerMin: 10000})
}

func setupAppWith(t *testing.T, opts appOptions) *testApp {
	t.Helper()

	mr, err := miniredis.Run()
	if err != nil {
		t.Fatalf("miniredis: %v", err)
	}
	t.Cleanup(mr.Close)
	redisClient := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { redisClient.Close() })

	ctx, cancel := context.WithCancel(context.Background())
	t.Cleanup(cancel)
	hub := ws.NewHub()
	go hub.Run(ctx)

	validate := validator.New()
	enqueuer := &fakeEnqueuer{}
	api := &fakeSongAPI{}

	registry := service.NewSessionRegistry()
	profileService := service.NewProfileService(redisClient)
	generationService := service.NewGenerationService(redisClient, enqueuer, profileService, registry, 30*time.Minute)
	playlistService := service.NewPlaylistService(redisClient, api, profileService)
	catalogService := service.NewCatalogService(api, profileService)

	app := fiber.New()
	routes := &handler.Routes{
		Auth:            handler.NewAuthHandler(nil, testJWTSecret),
		Generations:     handler.NewGenerationHandler(generationService, hub, validate),
		Profiles:        handler.NewProfileHandler(profileService, validate),
		Playlists:       handler.NewPlaylistHandler(playlistService, validate),
		Catalog:         handler.NewCatalogHandler(catalogService, validate),
		APIAuth:         middleware.NewLegacyAuthMiddleware(testJWTSecret).Authenticate(),
		Limiter:         middleware.NewRateLimiter(redisClient),
		GeneratePerHour: opts.generatePerHour,
		CatalogPerMin:   opts.catalogPerMin,
	}
	routes.Mount(app)

	return &testApp{
		app:         app,
		redis:       redisClient,
		enqueuer:    enqueuer,
		api:         api,
		profiles:    profileService,
		generations: generationService,
	}
}

// generateToken creates a legacy HMAC JWT token for userID
func generateToken(t *testing.T, userID string) string {
	t.Helper()
	signed, err := auth.IssueLegacyToken(userID, userID+"@example.com", testJWTSecret, time.Hour)
	if err != nil {
		t.Fatalf("failed to generate test token: %v", err)
	}
	return signed
}

// doRequest is a helper to perform HTTP requests against the test app.
func doRequest(app *fiber.App, method, path string, body string, headers map[string]string) (*http.Response, error) {
	var bodyReader io.Reader
	if body != "" {
		bodyReader = strings.NewReader(body)
	}

	req, err := http.NewRequest(method, path, bodyReader)
	if err != nil {
		return nil, err
	}

	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	for k, v := range headers {
		req.Header.Set(k, v)
	}

	return app.Test(req, -1)
}

// doAuthRequest performs a request as testUserID
func doAuthRequest(t *testing.T, app *fiber.App, method, path, body string) *http.Response {
	t.Helper()
	return doAuthRequestAs(t, app, testUserID, method, path, body)
}

func doAuthRequestAs(t *testing.T, app *fiber.App, userID, method, path, body string) *http.Response {
	t.Helper()
	resp, err := doRequest(app, method, path, body, map[string]string{
		"Authorization": "Bearer " + generateToken(t, userID),
	})
	if err != nil {
		t.Fatalf("request failed: %v", err)
	}
	return resp
}

// readBody reads and returns the response body as a string.
func readBody(t *testing.T, resp *http.Response) string {
	t.Helper()
	defer resp.Body.Close()
	b, err := io.ReadAll(resp.Body)
	if err != nil {
		t.Fatalf("failed to read response body: %v", err)
	}
	return string(b)
}

// parseJSON parses response body into a map.
func parseJSON(t *testing.T, resp *http.Response) map[string]interface{} {
	t.Helper()
	body := readBody(t, resp)
	var result map[string]interface{}
	if err := json.Unmarshal([]byte(body), &result); err != nil {
		t.Fatalf("failed to parse JSON: %v\nbody: %s", err, body)
	}
	return result
}

// assertStatus checks the HTTP status code.
func assertStatus(t *testing.T, resp *http.Response, expected int) {
	t.Helper()
	if resp.StatusCode != expected {
		t.Errorf("expected status %d, got %d", expected, resp.StatusCode)
	}
}

// errorCode returns error.code of a uniform error body
func errorCode(t *testing.T, resp *http.Response) string {
	t.Helper()
	body := parseJSON(t, resp)
	e, ok := body["error"].(map[string]interface{})
	if !ok {
		t.Fatalf("expected error body, got %v", body)
	}
	code, _ := e["code"].(string)
	return code
}

type fakeEnqueuer struct {
	mu    sync.Mutex
	tasks []*asynq.Task
}

func (f *fakeEnqueuer) Enqueue(task *asynq.Task, _ ...asynq.Option) (*asynq.TaskInfo, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.tasks = append(f.tasks, task)
	return &asynq.TaskInfo{Type: task.Type()}, nil
}

func (f *fakeEnqueuer) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.tasks)
}

// fakeSongAPI serves canned remote responses
type fakeSongAPI struct {
	client.SongAPI

	songs    []client.Clip
	playlist *client.Playlist
	lyrics   *client.LyricsResult
	err      error

	lastCreds client.Credentials
	lastQuery string
	lastPage  int
	lastID    string
}

func (f *fakeSongAPI) Search(_ context.Context, creds client.Credentials, query, _ string) ([]client.Clip, error) {
	f.lastCreds = creds
	f.lastQuery = query
	return f.songs, f.err
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
