// Package coverart finds album artwork and stores it under the covers directory.
package coverart

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"path/filepath"
	"strings"
	"time"
	"unicode"

	"github.com/rs/zerolog"
	"github.com/spf13/afero"

	"github.com/tunedrift/tunedrift/internal/config"
	"github.com/tunedrift/tunedrift/internal/metrics"
	"github.com/tunedrift/tunedrift/internal/musicbrainz"
)

// URLPrefix is where stored covers are served from.
const URLPrefix = "/covers/"

const maxImageBytes = 10 << 20

var ErrAPIError = errors.New("cover art API error")

// ReleaseFinder resolves an album to a MusicBrainz release.
type ReleaseFinder interface {
	FindRelease(ctx context.Context, artist, album string) (*musicbrainz.Release, error)
}

// Service looks up covers on the Cover Art Archive, then iTunes.
type Service struct {
	httpClient *http.Client
	fs         afero.Fs
	dir        string
	caaURL     string
	itunesURL  string
	userAgent  string
	releases   ReleaseFinder
	logger     zerolog.Logger
}

// NewService creates a cover art service writing into dir on fs. releases may be nil.
func NewService(cfg config.MetadataConfig, fs afero.Fs, dir string, releases ReleaseFinder, logger zerolog.Logger) *Service {
	return &Service{
		httpClient: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		fs:         fs,
		dir:        dir,
		caaURL:     strings.TrimSuffix(cfg.CoverArtURL, "/"),
		itunesURL:  strings.TrimSuffix(cfg.ITunesURL, "/"),
		userAgent:  cfg.UserAgent,
		releases:   releases,
		logger:     logger.With().Str("component", "coverart").Logger(),
	}
}

// FileName returns the stored file name for an album cover.
func FileName(artist, album string) string {
	return sanitize(artist) + "_" + sanitize(album) + ".jpg"
}

// Lookup returns the served path of a cover for artist and album, fetching
// and storing it when needed. An empty path with a nil error means no cover exists.
func (s *Service) Lookup(ctx context.Context, artist, album string) (string, error) {
	if artist == "" && album == "" {
		return "", nil
	}

	name := FileName(artist, album)
	if ok, _ := afero.Exists(s.fs, filepath.Join(s.dir, name)); ok {
		return URLPrefix + name, nil
	}

	imageURL, source := s.fromCoverArtArchive(ctx, artist, album), "coverartarchive"
	if imageURL == "" {
		imageURL, source = s.fromITunes(ctx, artist, album), "itunes"
	}
	if imageURL == "" {
		return "", nil
	}

	data, err := s.download(ctx, imageURL)
	if err != nil {
		return "", err
	}
	path, err := s.Save(artist, album, data)
	if err != nil {
		return "", err
	}

	s.logger.Debug().Str("artist", artist).Str("album", album).Str("source", source).Msg("Stored cover art")
	return path, nil
}

// Save writes image data as the cover for artist and album and returns its served path.
func (s *Service) Save(artist, album string, data []byte) (string, error) {
	if len(data) == 0 {
		return "", fmt.Errorf("empty image for %s - %s", artist, album)
	}
	if err := s.fs.MkdirAll(s.dir, 0o755); err != nil {
		return "", fmt.Errorf("failed to create covers directory: %w", err)
	}
	name := FileName(artist, album)
	if err := afero.WriteFile(s.fs, filepath.Join(s.dir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("failed to write cover: %w", err)
	}
	return URLPrefix + name, nil
}

type caaResponse struct {
	Images []struct {
		Image      string `json:"image"`
		Front      bool   `json:"front"`
		Thumbnails struct {
			Large string `json:"large"`
		} `json:"thumbnails"`
	} `json:"images"`
}

func (s *Service) fromCoverArtArchive(ctx context.Context, artist, album string) string {
	if s.releases == nil || album == "" {
		return ""
	}
	release, err := s.releases.FindRelease(ctx, artist, album)
	if err != nil || release == nil {
		if err != nil {
			s.logger.Debug().Err(err).Str("album", album).Msg("Release lookup failed")
		}
		return ""
	}

	var resp caaResponse
	err = s.getJSON(ctx, fmt.Sprintf("%s/release/%s", s.caaURL, url.PathEscape(release.ID)), &resp)
	found := err == nil && len(resp.Images) > 0
	metrics.Lookup("coverartarchive", found, err)
	if !found {
		return ""
	}

	img := resp.Images[0]
	if img.Thumbnails.Large != "" {
		return img.Thumbnails.Large
	}
	return img.Image
}

type itunesResponse struct {
	ResultCount int `json:"resultCount"`
	Results     []struct {
		ArtistName     string `json:"artistName"`
		CollectionName string `json:"collectionName"`
		ArtworkURL100  string `json:"artworkUrl100"`
	} `json:"results"`
}

func (s *Service) fromITunes(ctx context.Context, artist, album string) string {
	params := url.Values{}
	params.Set("term", strings.TrimSpace(artist+" "+album))
	params.Set("entity", "album")
	params.Set("limit", "1")

	var resp itunesResponse
	err := s.getJSON(ctx, s.itunesURL+"/search?"+params.Encode(), &resp)
	found := err == nil && len(resp.Results) > 0 && resp.Results[0].ArtworkURL100 != ""
	metrics.Lookup("itunes", found, err)
	if !found {
		return ""
	}
	return strings.Replace(resp.Results[0].ArtworkURL100, "100x100", "600x600", 1)
}

func (s *Service) getJSON(ctx context.Context, reqURL string, result any) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}
	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func (s *Service) download(ctx context.Context, imageURL string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, imageURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", s.userAgent)

	resp, err := s.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to download cover: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("%w: image status %d", ErrAPIError, resp.StatusCode)
	}
	return io.ReadAll(io.LimitReader(resp.Body, maxImageBytes))
}

func sanitize(s string) string {
	s = strings.TrimSpace(s)
	if s == "" {
		return "unknown"
	}
	return strings.Map(func(r rune) rune {
		if unicode.IsLetter(r) || unicode.IsDigit(r) || r == '-' {
			return r
		}
		return '_'
	}, s)
}
