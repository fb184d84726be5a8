// Package catalog searches public music catalogs so users can pick what to
// look for on the peer network.
package catalog

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"

	"github.com/rs/zerolog"
)

// Provider names.
const (
	ProviderAppleMusic  = "apple_music"
	ProviderMusicBrainz = "musicbrainz"
)

var (
	ErrUnknownProvider = errors.New("unknown catalog provider")
	ErrEmptyQuery      = errors.New("query is empty")
	ErrUpstream        = errors.New("catalog provider error")
)

// Item is one catalog hit. Fields a provider does not know stay empty.
type Item struct {
	ID         string `json:"id,omitempty"`
	Title      string `json:"title"`
	Artist     string `json:"artist"`
	Album      string `json:"album,omitempty"`
	Type       string `json:"type,omitempty"`
	Duration   string `json:"duration,omitempty"`
	TrackCount *int   `json:"trackCount,omitempty"`
	URL        string `json:"url,omitempty"`
	Thumbnail  string `json:"thumbnail,omitempty"`
	Explicit   bool   `json:"explicit"`
	Year       string `json:"year,omitempty"`
	Score      int    `json:"score,omitempty"`
}

// Section is a titled group of items, e.g. "Songs" or "Albums".
type Section struct {
	Title string `json:"title"`
	Items []Item `json:"items"`
}

// Provider searches one catalog.
type Provider interface {
	Name() string
	Search(ctx context.Context, query string) ([]Section, error)
}

// Service dispatches searches to registered providers.
type Service struct {
	providers map[string]Provider
	fallback  string
	logger    zerolog.Logger
}

// NewService creates a catalog service. The first provider is the default.
func NewService(logger zerolog.Logger, providers ...Provider) *Service {
	s := &Service{
		providers: make(map[string]Provider, len(providers)),
		logger:    logger.With().Str("component", "catalog").Logger(),
	}
	for _, p := range providers {
		if s.fallback == "" {
			s.fallback = p.Name()
		}
		s.providers[p.Name()] = p
	}
	return s
}

// Providers returns the registered provider names, sorted.
func (s *Service) Providers() []string {
	names := make([]string, 0, len(s.providers))
	for name := range s.providers {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Search runs query against the named provider, or the default one when
// provider is empty.
func (s *Service) Search(ctx context.Context, provider, query string) ([]Section, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, ErrEmptyQuery
	}
	if provider == "" {
		provider = s.fallback
	}
	p, ok := s.providers[provider]
	if !ok {
		return nil, fmt.Errorf("%w: %q", ErrUnknownProvider, provider)
	}

	sections, err := p.Search(ctx, query)
	if err != nil {
		s.logger.Warn().Err(err).Str("provider", provider).Str("query", query).Msg("Catalog search failed")
		return nil, err
	}
	s.logger.Debug().Str("provider", provider).Str("query", query).Int("sections", len(sections)).Msg("Catalog search completed")
	return sections, nil
}

// formatDuration renders milliseconds as MM:SS.
func formatDuration(ms int) string {
	if ms <= 0 {
		return ""
	}
	secs := ms / 1000
	return fmt.Sprintf("%02d:%02d", secs/60, secs%60)
}
