package library

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// ListPlaylists returns all playlists with their songs, oldest first.
func (s *Store) ListPlaylists(ctx context.Context) ([]Playlist, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT id, name, description, thumbnail, created_at, updated_at
		FROM playlists ORDER BY created_at, name`)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlists: %w", err)
	}

	playlists := make([]Playlist, 0)
	for rows.Next() {
		var p Playlist
		if err := rows.Scan(&p.ID, &p.Name, &p.Description, &p.Thumbnail, &p.CreatedAt, &p.UpdatedAt); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan playlist: %w", err)
		}
		playlists = append(playlists, p)
	}
	rows.Close()
	if err := rows.Err(); err != nil {
		return nil, err
	}

	// Songs are loaded after the cursor is closed; the pool has one connection.
	for i := range playlists {
		songs, err := s.playlistSongs(ctx, playlists[i].ID)
		if err != nil {
			return nil, err
		}
		playlists[i].Songs = songs
	}
	return playlists, nil
}

// GetPlaylist returns one playlist with its songs.
func (s *Store) GetPlaylist(ctx context.Context, id string) (*Playlist, error) {
	var p Playlist
	err := s.db.QueryRowContext(ctx, `
		SELECT id, name, description, thumbnail, created_at, updated_at
		FROM playlists WHERE id = ?`, id).
		Scan(&p.ID, &p.Name, &p.Description, &p.Thumbnail, &p.CreatedAt, &p.UpdatedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get playlist: %w", err)
	}

	p.Songs, err = s.playlistSongs(ctx, id)
	if err != nil {
		return nil, err
	}
	return &p, nil
}

func (s *Store) playlistSongs(ctx context.Context, id string) ([]string, error) {
	rows, err := s.db.QueryContext(ctx, `
		SELECT song_path FROM playlist_songs WHERE playlist_id = ? ORDER BY position`, id)
	if err != nil {
		return nil, fmt.Errorf("failed to list playlist songs: %w", err)
	}
	defer rows.Close()

	songs := make([]string, 0)
	for rows.Next() {
		var path string
		if err := rows.Scan(&path); err != nil {
			return nil, err
		}
		songs = append(songs, path)
	}
	return songs, rows.Err()
}

// CreatePlaylist stores a new playlist.
func (s *Store) CreatePlaylist(ctx context.Context, in PlaylistInput) (*Playlist, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: playlist name is required", ErrInvalidInput)
	}

	now := time.Now().UTC()
	p := &Playlist{
		ID:          uuid.NewString(),
		Name:        name,
		Description: in.Description,
		Thumbnail:   in.Thumbnail,
		Songs:       []string{},
		CreatedAt:   now,
		UpdatedAt:   now,
	}

	_, err := s.db.ExecContext(ctx, `
		INSERT INTO playlists (id, name, description, thumbnail, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, ?)`,
		p.ID, p.Name, p.Description, p.Thumbnail, p.CreatedAt, p.UpdatedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to create playlist: %w", err)
	}

	s.logger.Info().Str("id", p.ID).Str("name", p.Name).Msg("Created playlist")
	return p, nil
}

// UpdatePlaylist replaces the editable fields of a playlist.
func (s *Store) UpdatePlaylist(ctx context.Context, id string, in PlaylistInput) (*Playlist, error) {
	name := strings.TrimSpace(in.Name)
	if name == "" {
		return nil, fmt.Errorf("%w: playlist name is required", ErrInvalidInput)
	}

	res, err := s.db.ExecContext(ctx, `
		UPDATE playlists SET name = ?, description = ?, thumbnail = ?, updated_at = ?
		WHERE id = ?`,
		name, in.Description, in.Thumbnail, time.Now().UTC(), id)
	if err != nil {
		return nil, fmt.Errorf("failed to update playlist: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return nil, ErrNotFound
	}
	return s.GetPlaylist(ctx, id)
}

// DeletePlaylist removes a playlist and its song entries.
func (s *Store) DeletePlaylist(ctx context.Context, id string) error {
	res, err := s.db.ExecContext(ctx, `DELETE FROM playlists WHERE id = ?`, id)
	if err != nil {
		return fmt.Errorf("failed to delete playlist: %w", err)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		return ErrNotFound
	}
	s.logger.Info().Str("id", id).Msg("Deleted playlist")
	return nil
}

// AddPlaylistSong appends path to a playlist. Adding a song twice is a no-op.
func (s *Store) AddPlaylistSong(ctx context.Context, id, path string) (*Playlist, error) {
	if path == "" {
		return nil, fmt.Errorf("%w: song path is required", ErrInvalidInput)
	}

	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	defer tx.Rollback()

	var exists int
	if err := tx.QueryRowContext(ctx, `SELECT COUNT(*) FROM playlists WHERE id = ?`, id).Scan(&exists); err != nil {
		return nil, fmt.Errorf("failed to check playlist: %w", err)
	}
	if exists == 0 {
		return nil, ErrNotFound
	}

	var next int
	if err := tx.QueryRowContext(ctx, `
		SELECT COALESCE(MAX(position), -1) + 1 FROM playlist_songs WHERE playlist_id = ?`, id).Scan(&next); err != nil {
		return nil, fmt.Errorf("failed to read playlist position: %w", err)
	}

	now := time.Now().UTC()
	if _, err := tx.ExecContext(ctx, `
		INSERT INTO playlist_songs (playlist_id, song_path, position, added_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT(playlist_id, song_path) DO NOTHING`, id, path, next, now); err != nil {
		return nil, fmt.Errorf("failed to add playlist song: %w", err)
	}
	if _, err := tx.ExecContext(ctx, `UPDATE playlists SET updated_at = ? WHERE id = ?`, now, id); err != nil {
		return nil, fmt.Errorf("failed to touch playlist: %w", err)
	}
	if err := tx.Commit(); err != nil {
		return nil, fmt.Errorf("failed to commit: %w", err)
	}

	return s.GetPlaylist(ctx, id)
}

// RemovePlaylistSong removes path from a playlist.
func (s *Store) RemovePlaylistSong(ctx context.Context, id, path string) (*Playlist, error) {
	if _, err := s.GetPlaylist(ctx, id); err != nil {
		return nil, err
	}
	if _, err := s.db.ExecContext(ctx, `
		DELETE FROM playlist_songs WHERE playlist_id = ? AND song_path = ?`, id, path); err != nil {
		return nil, fmt.Errorf("failed to remove playlist song: %w", err)
	}
	if _, err := s.db.ExecContext(ctx, `UPDATE playlists SET updated_at = ? WHERE id = ?`, time.Now().UTC(), id); err != nil {
		return nil, fmt.Errorf("failed to touch playlist: %w", err)
	}
	return s.GetPlaylist(ctx, id)
}
