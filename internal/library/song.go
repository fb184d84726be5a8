package library

import (
	"time"
)

// Metadata statuses.
const (
	StatusComplete      = "complete"
	StatusPendingReview = "pending_review"
)

// Metadata describes one song. Empty strings and nil pointers mean unknown.
type Metadata struct {
	Title          string `json:"title"`
	Artist         string `json:"artist"`
	Album          string `json:"album"`
	Year           string `json:"year,omitempty"`
	Genre          string `json:"genre,omitempty"`
	Duration       string `json:"duration,omitempty"`
	Length         string `json:"length,omitempty"`
	CoverArt       string `json:"coverArt,omitempty"`
	Bitrate        *int   `json:"bitrate,omitempty"`
	SampleRate     *int   `json:"sampleRate,omitempty"`
	BitsPerSample  *int   `json:"bitsPerSample,omitempty"`
	DisplayQuality string `json:"display_quality,omitempty"`
	IsFake         *bool  `json:"is_fake,omitempty"`
	MusicBrainzID  string `json:"musicbrainzId,omitempty"`
	Status         string `json:"metadata_status,omitempty"`
}

// Song is a library record, unique per path relative to the library root.
type Song struct {
	Path      string    `json:"path"`
	Metadata  Metadata  `json:"metadata"`
	DateAdded time.Time `json:"dateAdded"`
}

// Lyrics is a cached lyrics entry for one song path.
type Lyrics struct {
	FilePath        string    `json:"filePath"`
	Plain           string    `json:"plain"`
	Synced          string    `json:"synced,omitempty"`
	RomanizedPlain  string    `json:"romanizedPlain,omitempty"`
	RomanizedSynced string    `json:"romanizedSynced,omitempty"`
	Source          string    `json:"source,omitempty"`
	FetchedAt       time.Time `json:"fetchedAt"`
}

// Playlist is a named, ordered list of song paths.
type Playlist struct {
	ID          string    `json:"id"`
	Name        string    `json:"name"`
	Description string    `json:"description"`
	Thumbnail   string    `json:"thumbnail"`
	Songs       []string  `json:"songs"`
	CreatedAt   time.Time `json:"createdAt"`
	UpdatedAt   time.Time `json:"updatedAt"`
}

// PlaylistInput holds the editable playlist fields.
type PlaylistInput struct {
	Name        string `json:"name"`
	Description string `json:"description"`
	Thumbnail   string `json:"thumbnail"`
}
