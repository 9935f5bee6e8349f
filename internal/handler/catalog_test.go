package handler_test

import (
	"net/http"
	"testing"

	"github.com/makeasinger/clipwatch/internal/client"
)

func TestCatalog_Songs(t *testing.T) {
	ta := setupApp(t)
	ta.api.songs = []client.Clip{{ID: "c1", Title: "One", AudioURL: "https://cdn/c1.mp3"}, {ID: "c2"}}

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/songs", "")
	assertStatus(t, resp, http.StatusOK)
	songs := parseJSON(t, resp)["songs"].([]interface{})
	if len(songs) != 2 {
		t.Fatalf("expected 2 songs, got %d", len(songs))
	}
	if s := songs[1].(map[string]interface{}); s["title"] != "Untitled" {
		t.Errorf("expected Untitled fallback, got %v", s["title"])
	}
	if !ta.api.lastCreds.Empty() {
		t.Errorf("expected empty credentials without a profile, got %+v", ta.api.lastCreds)
	}
}

func TestCatalog_Search(t *testing.T) {
	ta := setupApp(t)
	addProfile(t, ta, testUserID)
	ta.api.songs = []client.Clip{{ID: "c1", Title: "Rain"}}

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/search?query=rain&style=lofi", "")
	assertStatus(t, resp, http.StatusOK)
	if ta.api.lastQuery != "rain" || ta.api.lastCreds.Cookie != "cookie" {
		t.Errorf("unexpected remote call query=%q creds=%+v", ta.api.lastQuery, ta.api.lastCreds)
	}

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/search", "")
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCatalog_Lyrics(t *testing.T) {
	ta := setupApp(t)
	ta.api.lyrics = &client.LyricsResult{Title: "Song", Lyrics: "[Verse]\nla la"}

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/lyrics", `{"prompt":"a song about rain"}`)
	assertStatus(t, resp, http.StatusOK)
	if parseJSON(t, resp)["lyrics"] != "[Verse]\nla la" {
		t.Error("expected lyrics in response")
	}

	resp = doAuthRequest(t, ta.app, http.MethodPost, "/api/lyrics", `{"prompt":""}`)
	assertStatus(t, resp, http.StatusBadRequest)
}

func TestCatalog_UpstreamStatusError(t *testing.T) {
	ta := setupApp(t)
	ta.api.err = &client.APIError{StatusCode: http.StatusServiceUnavailable, Endpoint: "/all-songs", Body: "down"}

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/songs", "")
	assertStatus(t, resp, http.StatusBadGateway)
}

func TestCatalog_RateLimited(t *testing.T) {
	ta := setupAppWith(t, appOptions{generatePerHour: 10, catalogPerMin: 2})

	for i := 0; i < 2; i++ {
		resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/songs", "")
		assertStatus(t, resp, http.StatusOK)
		if i == 0 && resp.Header.Get("X-RateLimit-Remaining") != "1" {
			t.Errorf("expected 1 remaining, got %q", resp.Header.Get("X-RateLimit-Remaining"))
		}
	}
	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/search?query=x", "")
	assertStatus(t, resp, http.StatusTooManyRequests)

	// limits are per user
	resp = doAuthRequestAs(t, ta.app, "other-user", http.MethodGet, "/api/songs", "")
	assertStatus(t, resp, http.StatusOK)
}
