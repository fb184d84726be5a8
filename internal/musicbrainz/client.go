// Package musicbrainz is a rate-limited client for the MusicBrainz search API.
package musicbrainz

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"golang.org/x/time/rate"

	"github.com/tunedrift/tunedrift/internal/config"
	"github.com/tunedrift/tunedrift/internal/metrics"
)

var (
	ErrAPIError    = errors.New("MusicBrainz API error")
	ErrRateLimited = errors.New("MusicBrainz API rate limited")
)

// Recording is a normalized recording search hit.
type Recording struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Artist    string `json:"artist"`
	Album     string `json:"album,omitempty"`
	ReleaseID string `json:"releaseId,omitempty"`
	Year      string `json:"year,omitempty"`
	LengthMs  int    `json:"lengthMs,omitempty"`
	Score     int    `json:"score"`
}

// Release is a normalized release search hit.
type Release struct {
	ID     string `json:"id"`
	Title  string `json:"title"`
	Artist string `json:"artist"`
	Year   string `json:"year,omitempty"`
	Score  int    `json:"score"`
}

// Client is a MusicBrainz API client. MusicBrainz allows one request per
// second per client, which the limiter enforces across goroutines.
type Client struct {
	httpClient *http.Client
	baseURL    string
	userAgent  string
	limiter    *rate.Limiter
	logger     zerolog.Logger
}

// NewClient creates a new MusicBrainz client.
func NewClient(cfg config.MetadataConfig, logger zerolog.Logger) *Client {
	perSecond := cfg.MusicBrainzRate
	if perSecond <= 0 {
		perSecond = 1
	}
	return &Client{
		httpClient: &http.Client{
			Timeout: time.Duration(cfg.Timeout) * time.Second,
		},
		baseURL:   strings.TrimSuffix(cfg.MusicBrainzURL, "/"),
		userAgent: cfg.UserAgent,
		limiter:   rate.NewLimiter(rate.Limit(perSecond), 1),
		logger:    logger.With().Str("component", "musicbrainz").Logger(),
	}
}

// Name returns the provider name.
func (c *Client) Name() string {
	return "musicbrainz"
}

// FindRecording returns the best recording for artist and title, or nil when
// nothing matches.
func (c *Client) FindRecording(ctx context.Context, artist, title string) (*Recording, error) {
	var clauses []string
	if artist != "" {
		clauses = append(clauses, fmt.Sprintf("artist:%q", artist))
	}
	if title != "" {
		clauses = append(clauses, fmt.Sprintf("recording:%q", title))
	}
	if len(clauses) == 0 {
		return nil, nil
	}

	recordings, err := c.SearchRecordings(ctx, strings.Join(clauses, " AND "), 1)
	metrics.Lookup(c.Name(), len(recordings) > 0, err)
	if err != nil || len(recordings) == 0 {
		return nil, err
	}
	return &recordings[0], nil
}

// SearchRecordings runs a Lucene recording query.
func (c *Client) SearchRecordings(ctx context.Context, query string, limit int) ([]Recording, error) {
	params := url.Values{}
	params.Set("query", query)
	params.Set("fmt", "json")
	params.Set("limit", strconv.Itoa(limit))

	var response recordingSearchResponse
	if err := c.doRequest(ctx, c.baseURL+"/recording", params, &response); err != nil {
		return nil, err
	}

	results := make([]Recording, 0, len(response.Recordings))
	for _, r := range response.Recordings {
		rec := Recording{
			ID:       r.ID,
			Title:    r.Title,
			Artist:   r.ArtistCredit.String(),
			LengthMs: r.Length,
			Score:    r.Score,
		}
		if len(r.Releases) > 0 {
			rec.Album = r.Releases[0].Title
			rec.ReleaseID = r.Releases[0].ID
			rec.Year = year(r.Releases[0].Date)
		}
		results = append(results, rec)
	}

	c.logger.Debug().Str("query", query).Int("results", len(results)).Msg("Recording search completed")
	return results, nil
}

// FindRelease returns the best release for artist and album, or nil.
func (c *Client) FindRelease(ctx context.Context, artist, album string) (*Release, error) {
	if album == "" {
		return nil, nil
	}

	query := fmt.Sprintf("release:%q", album)
	if artist != "" {
		query = fmt.Sprintf("artist:%q AND %s", artist, query)
	}

	params := url.Values{}
	params.Set("query", query)
	params.Set("fmt", "json")
	params.Set("limit", "1")

	var response releaseSearchResponse
	err := c.doRequest(ctx, c.baseURL+"/release", params, &response)
	metrics.Lookup(c.Name(), err == nil && len(response.Releases) > 0, err)
	if err != nil || len(response.Releases) == 0 {
		return nil, err
	}

	r := response.Releases[0]
	return &Release{
		ID:     r.ID,
		Title:  r.Title,
		Artist: r.ArtistCredit.String(),
		Year:   year(r.Date),
		Score:  r.Score,
	}, nil
}

func (c *Client) doRequest(ctx context.Context, endpoint string, params url.Values, result any) error {
	if err := c.limiter.Wait(ctx); err != nil {
		return err
	}

	reqURL := endpoint
	if len(params) > 0 {
		reqURL = fmt.Sprintf("%s?%s", endpoint, params.Encode())
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("User-Agent", c.userAgent)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Error().Err(err).Str("url", endpoint).Msg("HTTP request failed")
		return fmt.Errorf("HTTP request failed: %w", err)
	}
	defer resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusOK:
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return ErrRateLimited
	default:
		return fmt.Errorf("%w: status %d", ErrAPIError, resp.StatusCode)
	}

	if err := json.NewDecoder(resp.Body).Decode(result); err != nil {
		return fmt.Errorf("failed to decode response: %w", err)
	}
	return nil
}

func year(date string) string {
	if len(date) >= 4 {
		return date[:4]
	}
	return ""
}
