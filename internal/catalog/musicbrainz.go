package catalog

import (
	"context"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/sync/errgroup"

	"github.com/tunedrift/tunedrift/internal/config"
	"github.com/tunedrift/tunedrift/internal/musicbrainz"
)

const (
	musicBrainzSearchLimit = 20
	musicBrainzKeep        = 15
	coverCheckWorkers      = 10
	coverCheckTimeout      = 5 * time.Second
)

// RecordingSearcher runs MusicBrainz recording queries.
type RecordingSearcher interface {
	SearchRecordings(ctx context.Context, query string, limit int) ([]musicbrainz.Recording, error)
}

// MusicBrainz searches recordings and decorates the best hits with Cover Art
// Archive thumbnails.
type MusicBrainz struct {
	searcher   RecordingSearcher
	httpClient *http.Client
	caaURL     string
	logger     zerolog.Logger
}

// NewMusicBrainz creates the MusicBrainz provider.
func NewMusicBrainz(searcher RecordingSearcher, cfg config.MetadataConfig, logger zerolog.Logger) *MusicBrainz {
	return &MusicBrainz{
		searcher:   searcher,
		httpClient: &http.Client{Timeout: coverCheckTimeout},
		caaURL:     strings.TrimSuffix(cfg.CoverArtURL, "/"),
		logger:     logger.With().Str("component", "catalog-musicbrainz").Logger(),
	}
}

// Name returns the provider name.
func (m *MusicBrainz) Name() string {
	return ProviderMusicBrainz
}

// Search returns a single "Songs" section.
func (m *MusicBrainz) Search(ctx context.Context, query string) ([]Section, error) {
	recordings, err := m.searcher.SearchRecordings(ctx, query, musicBrainzSearchLimit)
	if err != nil {
		return nil, err
	}

	sort.SliceStable(recordings, func(i, j int) bool {
		return recordings[i].Score > recordings[j].Score
	})
	if len(recordings) > musicBrainzKeep {
		recordings = recordings[:musicBrainzKeep]
	}

	items := make([]Item, len(recordings))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(coverCheckWorkers)
	for i, rec := range recordings {
		items[i] = Item{
			ID:       rec.ID,
			Title:    rec.Title,
			Artist:   rec.Artist,
			Album:    rec.Album,
			Type:     "Song",
			Duration: formatDuration(rec.LengthMs),
			Year:     rec.Year,
			Score:    rec.Score,
		}
		if rec.ReleaseID == "" {
			continue
		}
		g.Go(func() error {
			// A missing cover never fails the search.
			items[i].Thumbnail = m.coverURL(gctx, rec.ReleaseID)
			return nil
		})
	}
	_ = g.Wait()

	if len(items) == 0 {
		return nil, nil
	}
	return []Section{{Title: "Songs", Items: items}}, nil
}

// coverURL returns the resolved front thumbnail URL of a release, or "".
func (m *MusicBrainz) coverURL(ctx context.Context, releaseID string) string {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, m.caaURL+"/release/"+releaseID+"/front-250", nil)
	if err != nil {
		return ""
	}
	resp, err := m.httpClient.Do(req)
	if err != nil {
		m.logger.Debug().Err(err).Str("release", releaseID).Msg("Cover check failed")
		return ""
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return ""
	}
	return resp.Request.URL.String()
}
