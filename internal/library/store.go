// Package library persists songs, cached lyrics and playlists.
package library

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/rs/zerolog"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
)

// Store is the library store backed by SQLite.
type Store struct {
	db     *sql.DB
	logger zerolog.Logger
}

// NewStore creates a store on a migrated database.
func NewStore(db *sql.DB, logger zerolog.Logger) *Store {
	return &Store{
		db:     db,
		logger: logger.With().Str("component", "library").Logger(),
	}
}

// UpsertSong writes song, replacing any record with the same path.
func (s *Store) UpsertSong(ctx context.Context, song Song) error {
	if song.Path == "" {
		return fmt.Errorf("%w: empty song path", ErrInvalidInput)
	}
	blob, err := json.Marshal(song.Metadata)
	if err != nil {
		return fmt.Errorf("failed to encode metadata: %w", err)
	}
	if song.DateAdded.IsZero() {
		song.DateAdded = time.Now()
	}

	_, err = s.db.ExecContext(ctx, `
		INSERT INTO songs (path, title, artist, album, metadata, date_added, updated_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(path) DO UPDATE SET
			title = excluded.title,
			artist = excluded.artist,
			album = excluded.album,
			metadata = excluded.metadata,
			date_added = excluded.date_added,
			updated_at = excluded.updated_at`,
		song.Path, song.Metadata.Title, song.Metadata.Artist, song.Metadata.Album,
		string(blob), song.DateAdded.UTC(), time.Now().UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert song: %w", err)
	}
	return nil
}

// RemoveSong deletes the record for path. It reports whether a record existed.
func (s *Store) RemoveSong(ctx context.Context, path string) (bool, error) {
	res, err := s.db.ExecContext(ctx, `DELETE FROM songs WHERE path = ?`, path)
	if err != nil {
		return false, fmt.Errorf("failed to remove song: %w", err)
	}
	n, err := res.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to remove song: %w", err)
	}
	return n > 0, nil
}

// GetSong returns the record for path.
func (s *Store) GetSong(ctx context.Context, path string) (*Song, error) {
	row := s.db.QueryRowContext(ctx, `SELECT path, metadata, date_added FROM songs WHERE path = ?`, path)
	song, err := scanSong(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get song: %w", err)
	}
	return song, nil
}

// ListSongs returns every song, newest first.
func (s *Store) ListSongs(ctx context.Context) ([]Song, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path, metadata, date_added FROM songs ORDER BY date_added DESC, path`)
	if err != nil {
		return nil, fmt.Errorf("failed to list songs: %w", err)
	}
	defer rows.Close()

	songs := make([]Song, 0)
	for rows.Next() {
		song, err := scanSong(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan song: %w", err)
		}
		songs = append(songs, *song)
	}
	return songs, rows.Err()
}

// SongPaths returns the set of indexed paths.
func (s *Store) SongPaths(ctx context.Context) (map[string]struct{}, error) {
	rows, err := s.db.QueryContext(ctx, `SELECT path FROM songs`)
	if err != nil {
		return nil, fmt.Errorf("failed to list song paths: %w", err)
	}
	defer rows.Close()

	paths := make(map[string]struct{})
	for rows.Next() {
		var p string
		if err := rows.Scan(&p); err != nil {
			return nil, err
		}
		paths[p] = struct{}{}
	}
	return paths, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanSong(row scanner) (*Song, error) {
	var (
		song Song
		blob string
	)
	if err := row.Scan(&song.Path, &blob, &song.DateAdded); err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(blob), &song.Metadata); err != nil {
		return nil, fmt.Errorf("corrupt metadata for %s: %w", song.Path, err)
	}
	return &song, nil
}

// GetLyrics returns the cached lyrics for path.
func (s *Store) GetLyrics(ctx context.Context, path string) (*Lyrics, error) {
	var l Lyrics
	err := s.db.QueryRowContext(ctx, `
		SELECT file_path, plain, synced, romanized_plain, romanized_synced, source, fetched_at
		FROM lyrics WHERE file_path = ?`, path).
		Scan(&l.FilePath, &l.Plain, &l.Synced, &l.RomanizedPlain, &l.RomanizedSynced, &l.Source, &l.FetchedAt)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			return nil, ErrNotFound
		}
		return nil, fmt.Errorf("failed to get lyrics: %w", err)
	}
	return &l, nil
}

// UpsertLyrics caches lyrics, replacing any entry for the same path.
func (s *Store) UpsertLyrics(ctx context.Context, l Lyrics) error {
	if l.FilePath == "" {
		return fmt.Errorf("%w: empty lyrics path", ErrInvalidInput)
	}
	if l.FetchedAt.IsZero() {
		l.FetchedAt = time.Now()
	}
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO lyrics (file_path, plain, synced, romanized_plain, romanized_synced, source, fetched_at)
		VALUES (?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(file_path) DO UPDATE SET
			plain = excluded.plain,
			synced = excluded.synced,
			romanized_plain = excluded.romanized_plain,
			romanized_synced = excluded.romanized_synced,
			source = excluded.source,
			fetched_at = excluded.fetched_at`,
		l.FilePath, l.Plain, l.Synced, l.RomanizedPlain, l.RomanizedSynced, l.Source, l.FetchedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to upsert lyrics: %w", err)
	}
	return nil
}
