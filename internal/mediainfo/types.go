package mediainfo

import (
	"strings"
	"time"
)

// StreamInfo holds the technical properties of an audio file's first audio stream.
type StreamInfo struct {
	Codec         string        `json:"codec"`
	Container     string        `json:"container"`
	Duration      time.Duration `json:"duration"`
	Bitrate       int           `json:"bitrate"` // kbps
	SampleRate    int           `json:"sampleRate"`
	BitsPerSample int           `json:"bitsPerSample"`
	Channels      int           `json:"channels"`
}

// Empty reports whether no property was detected.
func (s *StreamInfo) Empty() bool {
	return s.Codec == "" && s.Duration == 0 && s.Bitrate == 0 && s.SampleRate == 0
}

// AudioCodecMap maps raw audio codec names to display names.
var AudioCodecMap = map[string]string{
	"aac":        "AAC",
	"he-aac":     "HE-AAC",
	"alac":       "ALAC",
	"flac":       "FLAC",
	"mp3":        "MP3",
	"mpeg audio": "MP3",
	"opus":       "Opus",
	"vorbis":     "Vorbis",
	"wmav2":      "WMA",
	"wma":        "WMA",
	"pcm":        "PCM",
	"pcm_s16le":  "PCM",
	"pcm_s24le":  "PCM",
	"pcm_s32le":  "PCM",
}

// NormalizeAudioCodec maps a raw codec name to its display name.
func NormalizeAudioCodec(codec string) string {
	lower := strings.ToLower(strings.TrimSpace(codec))
	if normalized, ok := AudioCodecMap[lower]; ok {
		return normalized
	}
	if strings.HasPrefix(lower, "pcm") {
		return "PCM"
	}
	return codec
}
