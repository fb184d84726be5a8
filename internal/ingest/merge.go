package ingest

import (
	"regexp"
	"strings"

	"github.com/tunedrift/tunedrift/internal/audio"
	"github.com/tunedrift/tunedrift/internal/library"
)

var trackNumberPrefix = regexp.MustCompile(`^\d+\s*[-.]\s*`)

// GuessFromFilename derives artist and title from a file name such as
// "03 - Artist - Title.flac". A name without " - " yields only a title.
func GuessFromFilename(name string) (artist, title string) {
	cleaned := trackNumberPrefix.ReplaceAllString(audio.StripExt(name), "")

	parts := strings.Split(cleaned, " - ")
	if len(parts) >= 2 {
		return strings.TrimSpace(parts[0]), strings.TrimSpace(strings.Join(parts[1:], " - "))
	}
	return "", cleaned
}

// Merge combines embedded tags, the download-time hint and the file name
// into the record's metadata.
//
// Bitrate and length come from the hint first, since the network reported
// them for the exact file transferred. Every other field prefers the tags.
// Title and artist finally fall back to the file name, and the title is
// never left empty.
func Merge(tags library.Metadata, hint *library.Metadata, filename string) library.Metadata {
	var h library.Metadata
	if hint != nil {
		h = *hint
	}
	guessArtist, guessTitle := GuessFromFilename(filename)

	out := library.Metadata{
		Bitrate: firstInt(h.Bitrate, tags.Bitrate),
		Length:  first(h.Length, tags.Length),

		Title:          first(tags.Title, h.Title, guessTitle),
		Artist:         first(tags.Artist, h.Artist, guessArtist),
		Album:          first(tags.Album, h.Album),
		Year:           first(tags.Year, h.Year),
		Genre:          first(tags.Genre, h.Genre),
		Duration:       first(tags.Duration, h.Duration),
		SampleRate:     firstInt(tags.SampleRate, h.SampleRate),
		BitsPerSample:  firstInt(tags.BitsPerSample, h.BitsPerSample),
		DisplayQuality: first(tags.DisplayQuality, h.DisplayQuality),
		CoverArt:       first(tags.CoverArt, h.CoverArt),
		MusicBrainzID:  first(tags.MusicBrainzID, h.MusicBrainzID),
	}

	if out.Title == "" {
		out.Title = audio.StripExt(filename)
	}
	return out
}

func first(values ...string) string {
	for _, v := range values {
		if strings.TrimSpace(v) != "" {
			return v
		}
	}
	return ""
}

func firstInt(values ...*int) *int {
	for _, v := range values {
		if v != nil && *v > 0 {
			n := *v
			return &n
		}
	}
	return nil
}
