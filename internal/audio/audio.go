// Package audio holds the file-type rules shared by search, watching and ingestion.
package audio

import (
	"fmt"
	"path"
	"path/filepath"
	"strings"
)

var extensions = map[string]bool{
	".mp3":  true,
	".wav":  true,
	".flac": true,
	".m4a":  true,
	".aac":  true,
	".ogg":  true,
	".wma":  true,
	".opus": true,
}

var lossless = map[string]bool{
	".wav":  true,
	".flac": true,
}

// Extensions returns the recognised audio extensions, lowercase with a leading dot.
func Extensions() []string {
	out := make([]string, 0, len(extensions))
	for ext := range extensions {
		out = append(out, ext)
	}
	return out
}

// Ext returns the lowercase extension of name. Both / and \ separators are accepted,
// since remote peers report Windows paths.
func Ext(name string) string {
	return strings.ToLower(path.Ext(strings.ReplaceAll(name, `\`, "/")))
}

// IsAudioFile reports whether name has a recognised audio extension.
func IsAudioFile(name string) bool {
	return extensions[Ext(name)]
}

// IsLossless reports whether name is a lossless container worth authenticity checks.
func IsLossless(name string) bool {
	return lossless[Ext(name)]
}

// BaseName returns the final element of a local or remote path.
func BaseName(name string) string {
	return path.Base(strings.ReplaceAll(name, `\`, "/"))
}

// StripExt returns the base name of name without its extension.
func StripExt(name string) string {
	base := BaseName(name)
	return strings.TrimSuffix(base, filepath.Ext(base))
}

// DisplayQuality renders the quality label shown for a track:
// "44.1kHz / 16 bit" for lossless files with known stream parameters,
// "320kbps" otherwise. It returns "" when nothing is known.
func DisplayQuality(ext string, bitrate, sampleRate, bitsPerSample int) string {
	if lossless[strings.ToLower(ext)] && sampleRate > 0 && bitsPerSample > 0 {
		return fmt.Sprintf("%gkHz / %d bit", float64(sampleRate)/1000, bitsPerSample)
	}
	if bitrate > 0 {
		return fmt.Sprintf("%dkbps", bitrate)
	}
	return ""
}

// FormatLength renders seconds as m:ss, or h:mm:ss past an hour.
func FormatLength(seconds int) string {
	if seconds <= 0 {
		return ""
	}
	h, m, s := seconds/3600, (seconds%3600)/60, seconds%60
	if h > 0 {
		return fmt.Sprintf("%d:%02d:%02d", h, m, s)
	}
	return fmt.Sprintf("%d:%02d", m, s)
}
