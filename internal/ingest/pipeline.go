// Package ingest turns audio files in the library root into enriched
// library records.
package ingest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/tunedrift/tunedrift/internal/audio"
	"github.com/tunedrift/tunedrift/internal/forensics"
	"github.com/tunedrift/tunedrift/internal/library"
	"github.com/tunedrift/tunedrift/internal/lyrics"
	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/musicbrainz"
)

// Event types broadcast after the library changes.
const (
	EventLibraryUpdated = "library:updated"
)

// HintSource returns the metadata a download was requested with.
type HintSource interface {
	ForFile(path string) (library.Metadata, bool)
	ForgetFile(path string)
}

// Analyzer classifies lossless files as genuine or transcoded.
type Analyzer interface {
	Analyze(ctx context.Context, path string) (forensics.Verdict, error)
}

// RecordingFinder looks up a recording by artist and title.
type RecordingFinder interface {
	FindRecording(ctx context.Context, artist, title string) (*musicbrainz.Recording, error)
}

// CoverFinder finds cover art online and returns its served path.
type CoverFinder interface {
	Lookup(ctx context.Context, artist, album string) (string, error)
}

// LyricsFinder fetches lyrics. A nil result means none exist.
type LyricsFinder interface {
	Name() string
	Get(ctx context.Context, artist, title string) (*lyrics.Result, error)
}

// Romanizer renders text in Latin script.
type Romanizer interface {
	Romanize(text string) string
}

// Broadcaster pushes events to connected clients.
type Broadcaster interface {
	Broadcast(msgType string, payload any) error
}

// LibraryEvent is the payload of EventLibraryUpdated.
type LibraryEvent struct {
	Action string        `json:"action"`
	Path   string        `json:"path"`
	Song   *library.Song `json:"song,omitempty"`
}

// Pipeline ingests files. Collaborators left unset are skipped.
type Pipeline struct {
	store    *library.Store
	fs       afero.Fs
	root     string
	inFlight *InFlightSet
	extract  *extractor
	logger   zerolog.Logger

	hints       HintSource
	analyzer    Analyzer
	recordings  RecordingFinder
	covers      CoverFinder
	lyrics      LyricsFinder
	romanizer   Romanizer
	broadcaster Broadcaster
}

// NewPipeline creates a pipeline for files under root.
func NewPipeline(store *library.Store, fs afero.Fs, root string, logger zerolog.Logger) *Pipeline {
	l := logger.With().Str("component", "ingest").Logger()
	return &Pipeline{
		store:    store,
		fs:       fs,
		root:     root,
		inFlight: NewInFlightSet(),
		extract:  &extractor{fs: fs, logger: l},
		logger:   l,
	}
}

// SetHints sets where download-time metadata is looked up.
func (p *Pipeline) SetHints(h HintSource) {
	p.hints = h
}

// SetAnalyzer enables authenticity checks for lossless files.
func (p *Pipeline) SetAnalyzer(a Analyzer) {
	p.analyzer = a
}

// SetRecordingFinder enables identity completion.
func (p *Pipeline) SetRecordingFinder(r RecordingFinder) {
	p.recordings = r
}

// SetLyrics enables lyrics fetching.
func (p *Pipeline) SetLyrics(l LyricsFinder) {
	p.lyrics = l
}

// SetRomanizer enables romanized lyrics variants.
func (p *Pipeline) SetRomanizer(r Romanizer) {
	p.romanizer = r
}

// SetBroadcaster sets the broadcaster for library updates.
func (p *Pipeline) SetBroadcaster(b Broadcaster) {
	p.broadcaster = b
}

// SetProber enables stream probing.
func (p *Pipeline) SetProber(pr Prober) {
	p.extract.prober = pr
}

// SetCovers sets the cover store used for embedded pictures and the online
// fallback. saver and finder are usually the same coverart.Service.
func (p *Pipeline) SetCovers(saver CoverSaver, finder CoverFinder) {
	p.extract.covers = saver
	p.covers = finder
}

// InFlight returns the set of paths being ingested.
func (p *Pipeline) InFlight() *InFlightSet {
	return p.inFlight
}

// Ingest extracts, merges, enriches and commits one file. A second call for a
// path that is already being ingested returns immediately.
func (p *Pipeline) Ingest(ctx context.Context, absPath string) error {
	_, err := p.IngestFile(ctx, absPath)
	return err
}

// IngestFile is Ingest reporting whether a record was committed.
func (p *Pipeline) IngestFile(ctx context.Context, absPath string) (library.IngestOutcome, error) {
	if !p.inFlight.TryAcquire(absPath) {
		p.logger.Debug().Str("path", absPath).Msg("Already ingesting, skipping")
		metrics.IngestionsTotal.WithLabelValues("skipped").Inc()
		return library.IngestSkipped, nil
	}
	defer p.inFlight.Release(absPath)

	start := time.Now()
	defer func() { metrics.IngestionDuration.Observe(time.Since(start).Seconds()) }()

	song, err := p.ingest(ctx, absPath)
	switch {
	case err != nil:
		metrics.IngestionsTotal.WithLabelValues("failed").Inc()
		return library.IngestSkipped, err
	case song == nil:
		metrics.IngestionsTotal.WithLabelValues("skipped").Inc()
		return library.IngestSkipped, nil
	}

	metrics.IngestionsTotal.WithLabelValues("committed").Inc()
	p.logger.Info().
		Str("path", song.Path).
		Str("title", song.Metadata.Title).
		Str("artist", song.Metadata.Artist).
		Dur("took", time.Since(start)).
		Msg("Ingested song")
	p.broadcast(LibraryEvent{Action: "added", Path: song.Path, Song: song})
	return library.IngestCommitted, nil
}

func (p *Pipeline) ingest(ctx context.Context, absPath string) (*library.Song, error) {
	rel, err := library.RelPath(p.root, absPath)
	if err != nil {
		return nil, err
	}

	info, err := p.fs.Stat(absPath)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			p.logger.Warn().Str("path", absPath).Msg("File vanished before ingestion")
			return nil, nil
		}
		return nil, fmt.Errorf("failed to stat %s: %w", absPath, err)
	}
	if info.IsDir() {
		return nil, nil
	}

	filename := audio.BaseName(absPath)
	tags := p.extract.extract(ctx, absPath)

	var hint *library.Metadata
	if p.hints != nil {
		if h, ok := p.hints.ForFile(absPath); ok {
			hint = &h
		}
	}
	meta := Merge(tags, hint, filename)

	if audio.IsLossless(absPath) {
		p.checkAuthenticity(ctx, absPath, &meta)
	}

	lookedUp := false
	if meta.Artist == "" {
		p.completeIdentity(ctx, &meta)
		lookedUp = true
	}
	meta.Status = library.StatusComplete
	if meta.Artist == "" {
		meta.Status = library.StatusPendingReview
	}

	if meta.CoverArt == "" {
		if meta.Album == "" && !lookedUp {
			p.completeIdentity(ctx, &meta)
		}
		p.findCover(ctx, &meta)
	}

	p.fetchLyrics(ctx, rel, meta)

	// Enrichment can take seconds; a file deleted meanwhile must not come back.
	if _, err := p.fs.Stat(absPath); errors.Is(err, os.ErrNotExist) {
		p.logger.Warn().Str("path", absPath).Msg("File vanished during ingestion")
		return nil, nil
	}

	song := library.Song{Path: rel, Metadata: meta, DateAdded: info.ModTime()}
	if err := p.store.UpsertSong(ctx, song); err != nil {
		return nil, fmt.Errorf("failed to commit %s: %w", rel, err)
	}
	if p.hints != nil {
		p.hints.ForgetFile(absPath)
	}
	return &song, nil
}

func (p *Pipeline) checkAuthenticity(ctx context.Context, absPath string, meta *library.Metadata) {
	if p.analyzer == nil {
		return
	}
	verdict, err := p.analyzer.Analyze(ctx, absPath)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", absPath).Msg("Authenticity check failed")
		return
	}
	meta.IsFake = verdict.IsFake()
	p.logger.Debug().Str("path", absPath).Str("verdict", string(verdict)).Msg("Authenticity checked")
}

// completeIdentity fills blank identity fields from MusicBrainz.
func (p *Pipeline) completeIdentity(ctx context.Context, meta *library.Metadata) {
	if p.recordings == nil {
		return
	}
	rec, err := p.recordings.FindRecording(ctx, meta.Artist, meta.Title)
	if err != nil {
		p.logger.Warn().Err(err).Str("title", meta.Title).Msg("Recording lookup failed")
		return
	}
	if rec == nil {
		return
	}
	if meta.Artist == "" {
		meta.Artist = rec.Artist
	}
	if meta.Title == "" {
		meta.Title = rec.Title
	}
	if meta.Album == "" {
		meta.Album = rec.Album
	}
	if meta.Year == "" {
		meta.Year = rec.Year
	}
	if meta.MusicBrainzID == "" {
		meta.MusicBrainzID = rec.ID
	}
}

func (p *Pipeline) findCover(ctx context.Context, meta *library.Metadata) {
	if p.covers == nil || meta.Artist == "" || meta.Album == "" {
		return
	}
	path, err := p.covers.Lookup(ctx, meta.Artist, meta.Album)
	if err != nil {
		p.logger.Debug().Err(err).Str("artist", meta.Artist).Str("album", meta.Album).Msg("No cover art found")
		return
	}
	meta.CoverArt = path
}

// fetchLyrics caches lyrics for rel unless they are already cached.
func (p *Pipeline) fetchLyrics(ctx context.Context, rel string, meta library.Metadata) {
	if _, err := p.store.GetLyrics(ctx, rel); err == nil {
		return
	} else if !errors.Is(err, library.ErrNotFound) {
		p.logger.Warn().Err(err).Str("path", rel).Msg("Failed to read cached lyrics")
		return
	}
	if _, err := p.downloadLyrics(ctx, rel, meta); err != nil {
		p.logger.Warn().Err(err).Str("path", rel).Msg("Lyrics lookup failed")
	}
}

// downloadLyrics fetches, romanizes and caches lyrics. It returns nil when
// none exist.
func (p *Pipeline) downloadLyrics(ctx context.Context, rel string, meta library.Metadata) (*library.Lyrics, error) {
	if p.lyrics == nil || meta.Artist == "" || meta.Title == "" {
		return nil, nil
	}
	res, err := p.lyrics.Get(ctx, meta.Artist, meta.Title)
	if err != nil || res == nil {
		return nil, err
	}

	entry := library.Lyrics{
		FilePath:  rel,
		Plain:     res.Plain,
		Synced:    res.Synced,
		Source:    p.lyrics.Name(),
		FetchedAt: time.Now(),
	}
	if p.romanizer != nil {
		entry.RomanizedPlain = p.romanizer.Romanize(res.Plain)
		entry.RomanizedSynced = p.romanizer.Romanize(res.Synced)
	}
	if err := p.store.UpsertLyrics(ctx, entry); err != nil {
		return nil, err
	}
	return &entry, nil
}

// LyricsFor returns cached lyrics for a library path, fetching them for the
// song's recorded artist and title on a cache miss.
func (p *Pipeline) LyricsFor(ctx context.Context, relPath string) (*library.Lyrics, error) {
	cached, err := p.store.GetLyrics(ctx, relPath)
	if err == nil {
		return cached, nil
	}
	if !errors.Is(err, library.ErrNotFound) {
		return nil, err
	}

	song, err := p.store.GetSong(ctx, relPath)
	if errors.Is(err, library.ErrNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}

	entry, err := p.downloadLyrics(ctx, relPath, song.Metadata)
	if err != nil {
		p.logger.Warn().Err(err).Str("path", relPath).Msg("Lyrics lookup failed")
		return nil, nil
	}
	return entry, nil
}

// Remove deletes the record for a file that left the library root.
func (p *Pipeline) Remove(ctx context.Context, absPath string) error {
	rel, err := library.RelPath(p.root, absPath)
	if err != nil {
		return err
	}
	removed, err := p.store.RemoveSong(ctx, rel)
	if err != nil {
		return err
	}
	if removed {
		p.logger.Info().Str("path", rel).Msg("Removed song")
		p.broadcast(LibraryEvent{Action: "removed", Path: rel})
	}
	return nil
}

func (p *Pipeline) broadcast(event LibraryEvent) {
	if p.broadcaster == nil {
		return
	}
	if err := p.broadcaster.Broadcast(EventLibraryUpdated, event); err != nil {
		p.logger.Debug().Err(err).Msg("Failed to broadcast library update")
	}
}
