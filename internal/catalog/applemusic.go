package catalog

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/config"
	"github.com/tunedrift/tunedrift/internal/metrics"
)

const (
	browserUserAgent = "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36 (KHTML, like Gecko) Chrome/124.0 Safari/537.36"
	artworkSize      = "200"
)

// sectionsOfInterest lists the Apple Music search sections kept, in order.
var sectionsOfInterest = []string{"Top Results", "Artists", "Albums", "Songs"}

// AppleMusic scrapes the public Apple Music search page. The page embeds its
// results as JSON in script#serialized-server-data.
type AppleMusic struct {
	httpClient *http.Client
	baseURL    string
	logger     zerolog.Logger
}

// NewAppleMusic creates the Apple Music provider.
func NewAppleMusic(cfg config.MetadataConfig, logger zerolog.Logger) *AppleMusic {
	return &AppleMusic{
		httpClient: &http.Client{Timeout: time.Duration(cfg.Timeout) * time.Second},
		baseURL:    strings.TrimSuffix(cfg.AppleMusicURL, "/"),
		logger:     logger.With().Str("component", "applemusic").Logger(),
	}
}

// Name returns the provider name.
func (a *AppleMusic) Name() string {
	return ProviderAppleMusic
}

// Search fetches and parses the search page for query.
func (a *AppleMusic) Search(ctx context.Context, query string) ([]Section, error) {
	reqURL := a.baseURL + "/us/search?term=" + url.QueryEscape(query)
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("User-Agent", browserUserAgent)

	resp, err := a.httpClient.Do(req)
	if err != nil {
		metrics.Lookup(a.Name(), false, err)
		return nil, fmt.Errorf("%w: %w", ErrUpstream, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		err := fmt.Errorf("%w: status %d", ErrUpstream, resp.StatusCode)
		metrics.Lookup(a.Name(), false, err)
		return nil, err
	}

	doc, err := goquery.NewDocumentFromReader(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to parse HTML: %w", err)
	}

	sections, err := parseServerData(doc)
	metrics.Lookup(a.Name(), len(sections) > 0, err)
	return sections, err
}

type serverData []struct {
	Data struct {
		Sections []amSection `json:"sections"`
	} `json:"data"`
}

type amSection struct {
	Header struct {
		Item struct {
			Title     string  `json:"title"`
			TitleLink *amLink `json:"titleLink"`
		} `json:"item"`
	} `json:"header"`
	Items []amItem `json:"items"`
}

type amLink struct {
	Title string `json:"title"`
}

type amItem struct {
	Title             string   `json:"title"`
	TitleLinks        []amLink `json:"titleLinks"`
	Subtitle          string   `json:"subtitle"`
	SubtitleLinks     []amLink `json:"subtitleLinks"`
	ItemKind          string   `json:"itemKind"`
	ShowExplicitBadge bool     `json:"showExplicitBadge"`
	TrackCount        *int     `json:"trackCount"`
	Duration          int      `json:"duration"`
	ContentDescriptor struct {
		Kind string `json:"kind"`
		URL  string `json:"url"`
	} `json:"contentDescriptor"`
	Artwork *struct {
		Dictionary struct {
			URL string `json:"url"`
		} `json:"dictionary"`
	} `json:"artwork"`
}

func parseServerData(doc *goquery.Document) ([]Section, error) {
	script := doc.Find("script#serialized-server-data").First()
	if script.Length() == 0 {
		return nil, fmt.Errorf("%w: search data not found in page", ErrUpstream)
	}

	var data serverData
	if err := json.Unmarshal([]byte(script.Text()), &data); err != nil {
		return nil, fmt.Errorf("%w: invalid search data: %w", ErrUpstream, err)
	}
	if len(data) == 0 {
		return nil, nil
	}

	byTitle := make(map[string][]Item)
	for _, sec := range data[0].Data.Sections {
		title := sec.Header.Item.Title
		if sec.Header.Item.TitleLink != nil && sec.Header.Item.TitleLink.Title != "" {
			title = sec.Header.Item.TitleLink.Title
		}
		if len(sec.Items) == 0 {
			continue
		}
		items := make([]Item, 0, len(sec.Items))
		for _, it := range sec.Items {
			items = append(items, it.toItem())
		}
		byTitle[title] = items
	}

	var sections []Section
	for _, title := range sectionsOfInterest {
		if items, ok := byTitle[title]; ok {
			sections = append(sections, Section{Title: title, Items: items})
		}
	}
	return sections, nil
}

func (it amItem) toItem() Item {
	title := it.Title
	if title == "" && len(it.TitleLinks) > 0 {
		title = it.TitleLinks[0].Title
	}

	artist := it.Subtitle
	if artist == "" && len(it.SubtitleLinks) > 0 {
		names := make([]string, 0, len(it.SubtitleLinks))
		for _, l := range it.SubtitleLinks {
			names = append(names, l.Title)
		}
		artist = strings.Join(names, ", ")
	}

	kind := it.ContentDescriptor.Kind
	if kind == "" {
		kind = it.ItemKind
	}

	var thumbnail string
	if it.Artwork != nil && it.Artwork.Dictionary.URL != "" {
		thumbnail = strings.NewReplacer(
			"{w}", artworkSize,
			"{h}", artworkSize,
			"{c}", "bb",
			"{f}", "jpg",
		).Replace(it.Artwork.Dictionary.URL)
	}

	return Item{
		Title:      title,
		Artist:     artist,
		Type:       kindLabel(kind),
		Duration:   formatDuration(it.Duration),
		TrackCount: it.TrackCount,
		URL:        it.ContentDescriptor.URL,
		Thumbnail:  thumbnail,
		Explicit:   it.ShowExplicitBadge,
	}
}

// kindLabel turns "music_video" into "Music Video".
func kindLabel(kind string) string {
	words := strings.Fields(strings.ReplaceAll(kind, "_", " "))
	for i, w := range words {
		words[i] = strings.ToUpper(w[:1]) + strings.ToLower(w[1:])
	}
	return strings.Join(words, " ")
}
