// Package lyrics fetches song lyrics from LRCLIB.
package lyrics

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/config"
	"github.com/tunedrift/tunedrift/internal/metrics"
)

var ErrAPIError = errors.New("LRCLIB API error")

// Result holds plain and time-synced lyrics. Either may be empty.
type Result struct {
	Plain        string
	Synced       string
	Instrumental bool
}

type getResponse struct {
	ID           int     `json:"id"`
	TrackName    string  `json:"trackName"`
	ArtistName   string  `json:"artistName"`
	AlbumName    string  `json:"albumName"`
	Duration     float64 `json:"duration"`
	Instrumental bool    `json:"instrumental"`
	PlainLyrics  string  `json:"plainLyrics"`
	SyncedLyrics string  `json:"syncedLyrics"`
}

// Client is an LRCLIB API client.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	logger     zerolog.Logger
}

// NewClient creates a new LRCLIB client.
func NewClient(cfg config.MetadataConfig, logger zerolog.Logger) *Client {
	return &Client{
		httpClient: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		baseURL:    strings.TrimSuffix(cfg.LrclibURL, "/"),
		userAgent:  cfg.UserAgent,
		logger:     logger.With().Str("component", "lyrics").Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "lrclib"
}

// Get returns lyrics for a track. A nil result with a nil error means LRCLIB
// has no lyrics for it.
func (c *Client) Get(ctx context.Context, artist, title string) (*Result, error) {
	if artist == "" || title == "" {
		return nil, nil
	}

	params := url.Values{}
	params.Set("artist_name", artist)
	params.Set("track_name", title)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+"/api/get?"+params.Encode(), nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		metrics.Lookup(c.Name(), false, err)
		return nil, fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusNotFound:
		metrics.Lookup(c.Name(), false, nil)
		return nil, nil
	default:
		err := fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
		metrics.Lookup(c.Name(), false, err)
		return nil, err
	}

	var body getResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		metrics.Lookup(c.Name(), false, err)
		return nil, fmt.Errorf("failed to decode response: %w", err)
	}

	found := body.PlainLyrics != "" || body.SyncedLyrics != ""
	metrics.Lookup(c.Name(), found, nil)
	if !found {
		return nil, nil
	}

	c.logger.Debug().Str("artist", artist).Str("title", title).Msg("Found lyrics")
	return &Result{
		Plain:        body.PlainLyrics,
		Synced:       body.SyncedLyrics,
		Instrumental: body.Instrumental,
	}, nil
}
