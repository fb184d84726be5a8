package library

import (
	"context"
	"errors"
	"net/http"

	"github.com/labstack/echo/v4"
)

// LyricsSource returns lyrics for a song path, fetching them when not cached.
// A nil result without error means no lyrics exist.
type LyricsSource interface {
	LyricsFor(ctx context.Context, relPath string) (*Lyrics, error)
}

// Handlers provides HTTP handlers for songs, lyrics and playlists.
type Handlers struct {
	store  *Store
	syncer *Syncer
	lyrics LyricsSource
}

// NewHandlers creates a new library handlers instance.
func NewHandlers(store *Store, syncer *Syncer, lyrics LyricsSource) *Handlers {
	return &Handlers{store: store, syncer: syncer, lyrics: lyrics}
}

// RegisterRoutes registers library routes on the library group.
func (h *Handlers) RegisterRoutes(g *echo.Group) {
	g.GET("/songs", h.ListSongs)
	g.POST("/songs/process", h.ProcessSongs)
	g.GET("/lyrics", h.GetLyrics)
}

// RegisterPlaylistRoutes registers playlist routes on the playlists group.
func (h *Handlers) RegisterPlaylistRoutes(g *echo.Group) {
	g.GET("", h.ListPlaylists)
	g.POST("", h.CreatePlaylist)
	g.GET("/:id", h.GetPlaylist)
	g.PUT("/:id", h.UpdatePlaylist)
	g.DELETE("/:id", h.DeletePlaylist)
	g.POST("/:id/songs", h.AddPlaylistSong)
	g.DELETE("/:id/songs", h.RemovePlaylistSong)
}

// ListSongs returns every indexed song.
// GET /api/v1/library/songs
func (h *Handlers) ListSongs(c echo.Context) error {
	songs, err := h.store.ListSongs(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, songs)
}

// ProcessSongs ingests every file that has no record yet.
// POST /api/v1/library/songs/process
func (h *Handlers) ProcessSongs(c echo.Context) error {
	if h.syncer == nil {
		return echo.NewHTTPError(http.StatusServiceUnavailable, "library sync not configured")
	}
	result, err := h.syncer.Sync(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, result)
}

// GetLyrics returns lyrics for a song.
// GET /api/v1/library/lyrics?path=
func (h *Handlers) GetLyrics(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}

	ctx := c.Request().Context()
	var (
		lyrics *Lyrics
		err    error
	)
	if h.lyrics != nil {
		lyrics, err = h.lyrics.LyricsFor(ctx, path)
	} else {
		lyrics, err = h.store.GetLyrics(ctx, path)
		if errors.Is(err, ErrNotFound) {
			err = nil
		}
	}
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}

	return c.JSON(http.StatusOK, map[string]any{
		"found":  lyrics != nil,
		"lyrics": lyrics,
	})
}

// ListPlaylists returns all playlists.
// GET /api/v1/playlists
func (h *Handlers) ListPlaylists(c echo.Context) error {
	playlists, err := h.store.ListPlaylists(c.Request().Context())
	if err != nil {
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
	return c.JSON(http.StatusOK, playlists)
}

// GetPlaylist returns one playlist.
// GET /api/v1/playlists/:id
func (h *Handlers) GetPlaylist(c echo.Context) error {
	p, err := h.store.GetPlaylist(c.Request().Context(), c.Param("id"))
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// CreatePlaylist creates a playlist.
// POST /api/v1/playlists
func (h *Handlers) CreatePlaylist(c echo.Context) error {
	var in PlaylistInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.store.CreatePlaylist(c.Request().Context(), in)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusCreated, p)
}

// UpdatePlaylist edits a playlist.
// PUT /api/v1/playlists/:id
func (h *Handlers) UpdatePlaylist(c echo.Context) error {
	var in PlaylistInput
	if err := c.Bind(&in); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.store.UpdatePlaylist(c.Request().Context(), c.Param("id"), in)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// DeletePlaylist deletes a playlist.
// DELETE /api/v1/playlists/:id
func (h *Handlers) DeletePlaylist(c echo.Context) error {
	if err := h.store.DeletePlaylist(c.Request().Context(), c.Param("id")); err != nil {
		return storeError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type playlistSongRequest struct {
	Path string `json:"path"`
}

// AddPlaylistSong appends a song to a playlist.
// POST /api/v1/playlists/:id/songs
func (h *Handlers) AddPlaylistSong(c echo.Context) error {
	var req playlistSongRequest
	if err := c.Bind(&req); err != nil {
		return echo.NewHTTPError(http.StatusBadRequest, "invalid request body")
	}
	p, err := h.store.AddPlaylistSong(c.Request().Context(), c.Param("id"), req.Path)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, p)
}

// RemovePlaylistSong removes a song from a playlist.
// DELETE /api/v1/playlists/:id/songs?path=
func (h *Handlers) RemovePlaylistSong(c echo.Context) error {
	path := c.QueryParam("path")
	if path == "" {
		return echo.NewHTTPError(http.StatusBadRequest, "path is required")
	}
	p, err := h.store.RemovePlaylistSong(c.Request().Context(), c.Param("id"), path)
	if err != nil {
		return storeError(err)
	}
	return c.JSON(http.StatusOK, p)
}

func storeError(err error) error {
	switch {
	case errors.Is(err, ErrNotFound):
		return echo.NewHTTPError(http.StatusNotFound, err.Error())
	case errors.Is(err, ErrInvalidInput):
		return echo.NewHTTPError(http.StatusBadRequest, err.Error())
	default:
		return echo.NewHTTPError(http.StatusInternalServerError, err.Error())
	}
}
