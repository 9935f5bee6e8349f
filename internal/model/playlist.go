package model

// SavedPlaylist is a remote playlist bookmarked by a user
type SavedPlaylist struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

// PlaylistSaveRequest accepts either a playlist id or its share URL
type PlaylistSaveRequest struct {
	ID   string `json:"id" validate:"required,max=512"`
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// PlaylistRenameRequest renames a saved playlist
type PlaylistRenameRequest struct {
	Name string `json:"name" validate:"required,min=1,max=100"`
}

// PlaylistListResponse lists saved playlists
type PlaylistListResponse struct {
	Playlists []SavedPlaylist `json:"playlists"`
}
