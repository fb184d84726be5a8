// Package mediainfo probes audio files with the mediainfo or ffprobe CLI.
package mediainfo

import (
	"context"
	"os"
	"sync"
	"time"

	"github.com/rs/zerolog"
)

// Config holds probe service configuration.
type Config struct {
	MediaInfoPath string        // Path to mediainfo binary (empty = search PATH)
	FFprobePath   string        // Path to ffprobe binary (empty = search PATH)
	CacheEnabled  bool          // Enable caching of probe results
	CacheTTL      time.Duration // How long to keep cached results
}

// DefaultConfig returns the default configuration.
func DefaultConfig() Config {
	return Config{
		CacheEnabled: true,
		CacheTTL:     time.Hour,
	}
}

// cacheEntry holds a cached probe result.
type cacheEntry struct {
	info      *StreamInfo
	timestamp time.Time
	size      int64
	modTime   time.Time
}

// Service extracts stream properties from audio files.
type Service struct {
	config Config
	logger *zerolog.Logger
	cache  map[string]*cacheEntry
	mu     sync.RWMutex

	probeFunc func(ctx context.Context, path string) (*StreamInfo, error)
}

// NewService creates a new probe service.
func NewService(config Config, logger *zerolog.Logger) *Service {
	subLogger := logger.With().Str("component", "mediainfo").Logger()
	s := &Service{
		config: config,
		logger: &subLogger,
		cache:  make(map[string]*cacheEntry),
	}
	s.probeFunc = s.selectProbeMethod()
	return s
}

// selectProbeMethod determines the best available probe method.
func (s *Service) selectProbeMethod() func(context.Context, string) (*StreamInfo, error) {
	if path := findExecutable("ffprobe", s.config.FFprobePath); path != "" {
		s.logger.Info().Str("path", path).Msg("Using ffprobe CLI")
		return func(ctx context.Context, p string) (*StreamInfo, error) {
			out, err := runCommand(ctx, path, "-v", "quiet", "-print_format", "json", "-show_format", "-show_streams", p)
			if err != nil {
				return nil, err
			}
			return parseFFprobeJSON(out)
		}
	}

	if path := findExecutable("mediainfo", s.config.MediaInfoPath); path != "" {
		s.logger.Info().Str("path", path).Msg("Using mediainfo CLI")
		return func(ctx context.Context, p string) (*StreamInfo, error) {
			out, err := runCommand(ctx, path, "--Output=JSON", p)
			if err != nil {
				return nil, err
			}
			return parseMediaInfoJSON(out)
		}
	}

	s.logger.Warn().Msg("No media probe tool found (ffprobe or mediainfo)")
	return nil
}

// Probe extracts stream information from a file. Without a probe tool it
// returns an empty result.
func (s *Service) Probe(ctx context.Context, path string) (*StreamInfo, error) {
	if s.config.CacheEnabled {
		if info := s.getCached(path); info != nil {
			return info, nil
		}
	}

	if s.probeFunc == nil {
		return &StreamInfo{}, nil
	}

	s.logger.Debug().Str("path", path).Msg("Probing audio file")
	info, err := s.probeFunc(ctx, path)
	if err != nil {
		return nil, err
	}

	if s.config.CacheEnabled {
		s.setCache(path, info)
	}
	return info, nil
}

// IsAvailable returns true if a probe tool is available.
func (s *Service) IsAvailable() bool {
	return s.probeFunc != nil
}

// getCached retrieves a cached result if the file is unchanged.
func (s *Service) getCached(path string) *StreamInfo {
	s.mu.RLock()
	entry, ok := s.cache[path]
	s.mu.RUnlock()
	if !ok || time.Since(entry.timestamp) > s.config.CacheTTL {
		return nil
	}

	stat, err := os.Stat(path)
	if err != nil || stat.Size() != entry.size || !stat.ModTime().Equal(entry.modTime) {
		return nil
	}
	return entry.info
}

// setCache stores a result in the cache.
func (s *Service) setCache(path string, info *StreamInfo) {
	stat, err := os.Stat(path)
	if err != nil {
		return
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache[path] = &cacheEntry{
		info:      info,
		timestamp: time.Now(),
		size:      stat.Size(),
		modTime:   stat.ModTime(),
	}
}

// ClearCache clears all cached entries.
func (s *Service) ClearCache() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.cache = make(map[string]*cacheEntry)
}
