package handler_test

import (
	"errors"
	"net/http"
	"testing"

	"github.com/makeasinger/clipwatch/internal/client"
	"github.com/makeasinger/clipwatch/pkg/response"
)

func TestPlaylists_SaveRenameDelete(t *testing.T) {
	ta := setupApp(t)

	resp := doAuthRequest(t, ta.app, http.MethodPost, "/api/playlists", `{"id":"https://suno.com/playlist/pl-42","name":"Favourites"}`)
	assertStatus(t, resp, http.StatusCreated)
	if id := parseJSON(t, resp)["id"]; id != "pl-42" {
		t.Errorf("expected id parsed from URL, got %v", id)
	}

	resp = doAuthRequest(t, ta.app, http.MethodPut, "/api/playlists/pl-42", `{"name":"Best"}`)
	assertStatus(t, resp, http.StatusOK)

	resp = doAuthRequest(t, ta.app, http.MethodGet, "/api/playlists", "")
	playlists := parseJSON(t, resp)["playlists"].([]interface{})
	if len(playlists) != 1 || playlists[0].(map[string]interface{})["name"] != "Best" {
		t.Errorf("unexpected playlists %v", playlists)
	}

	resp = doAuthRequest(t, ta.app, http.MethodDelete, "/api/playlists/pl-42", "")
	assertStatus(t, resp, http.StatusNoContent)

	resp = doAuthRequest(t, ta.app, http.MethodDelete, "/api/playlists/pl-42", "")
	assertStatus(t, resp, http.StatusNotFound)
}

func TestPlaylists_Clips(t *testing.T) {
	ta := setupApp(t)
	addProfile(t, ta, testUserID)
	ta.api.playlist = &client.Playlist{
		ID:   "pl-1",
		Name: "Mix",
		Clips: []client.PlaylistClip{
			{Clip: client.Clip{ID: "c1", Title: "One", DisplayName: "artist"}},
			{Clip: client.Clip{ID: "c2", Metadata: client.ClipMetadata{Prompt: "a prompt"}}},
		},
	}

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/playlists/pl-1/clips?page=2", "")
	assertStatus(t, resp, http.StatusOK)
	result := parseJSON(t, resp)
	songs := result["songs"].([]interface{})
	if len(songs) != 2 {
		t.Fatalf("expected 2 songs, got %d", len(songs))
	}
	if s := songs[1].(map[string]interface{}); s["title"] != "a prompt" {
		t.Errorf("expected prompt as title fallback, got %v", s["title"])
	}
	if ta.api.lastPage != 2 || ta.api.lastID != "pl-1" || ta.api.lastCreds.Sess != "sess" {
		t.Errorf("unexpected remote call id=%s page=%d creds=%+v", ta.api.lastID, ta.api.lastPage, ta.api.lastCreds)
	}
}

func TestPlaylists_ClipsUpstreamFailure(t *testing.T) {
	ta := setupApp(t)
	ta.api.err = errors.New("connection refused")

	resp := doAuthRequest(t, ta.app, http.MethodGet, "/api/playlists/pl-1/clips", "")
	assertStatus(t, resp, http.StatusBadGateway)
	if code := errorCode(t, resp); code != response.CodeUpstreamError {
		t.Errorf("expected UPSTREAM_ERROR, got %s", code)
	}
}
