package ingest

import (
	"context"
	"strconv"
	"strings"

	"github.com/dhowden/tag"
	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/tunedrift/tunedrift/internal/audio"
	"github.com/tunedrift/tunedrift/internal/library"
	"github.com/tunedrift/tunedrift/internal/mediainfo"
)

// Prober reads stream properties from an audio file.
type Prober interface {
	Probe(ctx context.Context, path string) (*mediainfo.StreamInfo, error)
}

// CoverSaver stores embedded artwork and returns its served path.
type CoverSaver interface {
	Save(artist, album string, data []byte) (string, error)
}

// extractor reads what a file says about itself: embedded tags and picture,
// plus stream properties when a probe tool is installed.
type extractor struct {
	fs     afero.Fs
	prober Prober
	covers CoverSaver
	logger zerolog.Logger
}

// extract never fails; unreadable tags yield empty metadata.
func (e *extractor) extract(ctx context.Context, absPath string) library.Metadata {
	var meta library.Metadata
	e.readTags(absPath, &meta)
	e.probe(ctx, absPath, &meta)

	meta.DisplayQuality = audio.DisplayQuality(audio.Ext(absPath), deref(meta.Bitrate), deref(meta.SampleRate), deref(meta.BitsPerSample))
	return meta
}

func (e *extractor) readTags(absPath string, meta *library.Metadata) {
	f, err := e.fs.Open(absPath)
	if err != nil {
		e.logger.Debug().Err(err).Str("path", absPath).Msg("Cannot open file for tags")
		return
	}
	defer f.Close()

	m, err := tag.ReadFrom(f)
	if err != nil {
		e.logger.Debug().Err(err).Str("path", absPath).Msg("No readable tags")
		return
	}

	meta.Title = strings.TrimSpace(m.Title())
	meta.Artist = strings.TrimSpace(m.Artist())
	if meta.Artist == "" {
		meta.Artist = strings.TrimSpace(m.AlbumArtist())
	}
	meta.Album = strings.TrimSpace(m.Album())
	meta.Genre = strings.TrimSpace(m.Genre())
	if y := m.Year(); y > 0 {
		meta.Year = strconv.Itoa(y)
	}

	if pic := m.Picture(); pic != nil && len(pic.Data) > 0 && e.covers != nil {
		path, err := e.covers.Save(orUnknown(meta.Artist), orUnknown(meta.Album), pic.Data)
		if err != nil {
			e.logger.Warn().Err(err).Str("path", absPath).Msg("Failed to store embedded cover")
		} else {
			meta.CoverArt = path
		}
	}
}

func (e *extractor) probe(ctx context.Context, absPath string, meta *library.Metadata) {
	if e.prober == nil {
		return
	}
	info, err := e.prober.Probe(ctx, absPath)
	if err != nil {
		e.logger.Debug().Err(err).Str("path", absPath).Msg("Probe failed")
		return
	}
	if info == nil || info.Empty() {
		return
	}

	meta.Duration = audio.FormatLength(int(info.Duration.Seconds()))
	meta.Bitrate = positive(info.Bitrate)
	meta.SampleRate = positive(info.SampleRate)
	meta.BitsPerSample = positive(info.BitsPerSample)
}

func orUnknown(s string) string {
	if s == "" {
		return "unknown"
	}
	return s
}

func positive(n int) *int {
	if n <= 0 {
		return nil
	}
	return &n
}

func deref(p *int) int {
	if p == nil {
		return 0
	}
	return *p
}
