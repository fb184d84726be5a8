package network

import (
	"fmt"

	"github.com/tunedrift/tunedrift/internal/audio"
)

// FileAttributes are the optional audio attributes a peer advertises for a file.
type FileAttributes struct {
	Bitrate       int // kbps
	LengthSeconds int
	SampleRate    int // Hz
	BitDepth      int
	VBR           bool
}

// NewFileResult builds a search result, returning false for non-audio files.
// A zero bitrate is recorded as absent.
func NewFileResult(username, path string, size int64, attrs FileAttributes) (FileResult, bool) {
	if !audio.IsAudioFile(path) {
		return FileResult{}, false
	}

	r := FileResult{
		Path:      path,
		Size:      size,
		Username:  username,
		Extension: audio.Ext(path),
		Length:    audio.FormatLength(attrs.LengthSeconds),
		Quality:   qualityLabel(attrs),
	}
	if attrs.Bitrate > 0 {
		bitrate := attrs.Bitrate
		r.Bitrate = &bitrate
	}
	return r, true
}

func qualityLabel(a FileAttributes) string {
	switch {
	case a.SampleRate > 0 && a.BitDepth > 0:
		return fmt.Sprintf("%g kHz / %d bit", float64(a.SampleRate)/1000, a.BitDepth)
	case a.Bitrate > 0 && a.VBR:
		return fmt.Sprintf("%d kbps (vbr)", a.Bitrate)
	case a.Bitrate > 0:
		return fmt.Sprintf("%d kbps", a.Bitrate)
	default:
		return ""
	}
}
