package model

// Song is a remote clip shaped for list screens
type Song struct {
	ID       string  `json:"id"`
	Title    string  `json:"title"`
	Artist   string  `json:"artist,omitempty"`
	Subtitle string  `json:"subtitle,omitempty"`
	ImageURL string  `json:"imageUrl,omitempty"`
	AudioURL string  `json:"audioUrl,omitempty"`
	VideoURL string  `json:"videoUrl,omitempty"`
	Prompt   string  `json:"prompt,omitempty"`
	Duration float64 `json:"duration,omitempty"`
}

// SongListResponse wraps a list of songs
type SongListResponse struct {
	Songs []Song `json:"songs"`
}

// PlaylistClipsResponse is one page of a remote playlist
type PlaylistClipsResponse struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Description     string `json:"description,omitempty"`
	ImageURL        string `json:"imageUrl,omitempty"`
	UserDisplayName string `json:"userDisplayName,omitempty"`
	Page            int    `json:"page"`
	Songs           []Song `json:"songs"`
}

// LyricsRequest represents the request body for lyrics generation
type LyricsRequest struct {
	Prompt string `json:"prompt" validate:"required,min=1,max=1000"`
}

// LyricsResponse represents generated lyrics
type LyricsResponse struct {
	Title  string `json:"title,omitempty"`
	Lyrics string `json:"lyrics"`
}
