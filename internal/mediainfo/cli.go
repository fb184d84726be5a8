package mediainfo

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"os/exec"
	"runtime"
	"strconv"
	"strings"
	"time"
)

const probeTimeout = 30 * time.Second

// findExecutable finds an executable by name or explicit path.
func findExecutable(name, explicitPath string) string {
	if explicitPath != "" {
		if _, err := os.Stat(explicitPath); err == nil {
			return explicitPath
		}
	}

	if path, err := exec.LookPath(name); err == nil {
		return path
	}

	var commonPaths []string
	switch runtime.GOOS {
	case "darwin":
		commonPaths = []string{
			"/usr/local/bin/" + name,
			"/opt/homebrew/bin/" + name,
		}
	case "linux":
		commonPaths = []string{
			"/usr/bin/" + name,
			"/usr/local/bin/" + name,
		}
	case "windows":
		commonPaths = []string{
			`C:\Program Files\MediaInfo\` + name + ".exe",
			`C:\ffmpeg\bin\` + name + ".exe",
		}
	}

	for _, p := range commonPaths {
		if _, err := os.Stat(p); err == nil {
			return p
		}
	}
	return ""
}

// runCommand runs a probe binary and returns its stdout.
func runCommand(ctx context.Context, binary string, args ...string) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, probeTimeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, binary, args...)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%s failed: %w: %s", binary, err, strings.TrimSpace(stderr.String()))
	}
	return stdout.Bytes(), nil
}

// mediaInfoOutput represents the JSON output from mediainfo.
type mediaInfoOutput struct {
	Media struct {
		Track []mediaInfoTrack `json:"track"`
	} `json:"media"`
}

type mediaInfoTrack struct {
	Type           string `json:"@type"`
	Format         string `json:"Format"`
	Duration       string `json:"Duration"`
	OverallBitRate string `json:"OverallBitRate"`
	BitRate        string `json:"BitRate"`
	SamplingRate   string `json:"SamplingRate"`
	BitDepth       string `json:"BitDepth"`
	Channels       string `json:"Channels"`
}

// parseMediaInfoJSON parses mediainfo JSON output.
func parseMediaInfoJSON(data []byte) (*StreamInfo, error) {
	var output mediaInfoOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to parse mediainfo output: %w", err)
	}

	info := &StreamInfo{}
	var overallBitrate int
	firstAudio := false

	for _, track := range output.Media.Track {
		switch track.Type {
		case "General":
			info.Container = track.Format
			if dur, err := parseSeconds(track.Duration); err == nil {
				info.Duration = dur
			}
			if br, err := parseInt(track.OverallBitRate); err == nil {
				overallBitrate = br / 1000
			}

		case "Audio":
			if firstAudio {
				continue
			}
			firstAudio = true

			info.Codec = NormalizeAudioCodec(track.Format)
			if br, err := parseInt(track.BitRate); err == nil {
				info.Bitrate = br / 1000
			}
			if sr, err := parseInt(track.SamplingRate); err == nil {
				info.SampleRate = sr
			}
			if bd, err := parseInt(track.BitDepth); err == nil {
				info.BitsPerSample = bd
			}
			if ch, err := parseInt(track.Channels); err == nil {
				info.Channels = ch
			}
			if info.Duration == 0 {
				if dur, err := parseSeconds(track.Duration); err == nil {
					info.Duration = dur
				}
			}
		}
	}

	if info.Bitrate == 0 {
		info.Bitrate = overallBitrate
	}
	return info, nil
}

// ffprobeOutput represents the JSON output from ffprobe.
type ffprobeOutput struct {
	Format  ffprobeFormat   `json:"format"`
	Streams []ffprobeStream `json:"streams"`
}

type ffprobeFormat struct {
	FormatName string `json:"format_name"`
	Duration   string `json:"duration"`
	BitRate    string `json:"bit_rate"`
}

type ffprobeStream struct {
	CodecType        string `json:"codec_type"`
	CodecName        string `json:"codec_name"`
	SampleRate       string `json:"sample_rate"`
	BitsPerSample    int    `json:"bits_per_sample"`
	BitsPerRawSample string `json:"bits_per_raw_sample"`
	BitRate          string `json:"bit_rate"`
	Channels         int    `json:"channels"`
	Duration         string `json:"duration"`
}

// parseFFprobeJSON parses ffprobe JSON output.
func parseFFprobeJSON(data []byte) (*StreamInfo, error) {
	var output ffprobeOutput
	if err := json.Unmarshal(data, &output); err != nil {
		return nil, fmt.Errorf("failed to parse ffprobe output: %w", err)
	}

	info := &StreamInfo{Container: output.Format.FormatName}
	if dur, err := parseSeconds(output.Format.Duration); err == nil {
		info.Duration = dur
	}

	for _, stream := range output.Streams {
		if stream.CodecType != "audio" {
			continue
		}

		info.Codec = NormalizeAudioCodec(stream.CodecName)
		info.Channels = stream.Channels
		if sr, err := parseInt(stream.SampleRate); err == nil {
			info.SampleRate = sr
		}
		info.BitsPerSample = stream.BitsPerSample
		if bd, err := parseInt(stream.BitsPerRawSample); err == nil && bd > 0 {
			info.BitsPerSample = bd
		}
		if br, err := parseInt(stream.BitRate); err == nil {
			info.Bitrate = br / 1000
		}
		if info.Duration == 0 {
			if dur, err := parseSeconds(stream.Duration); err == nil {
				info.Duration = dur
			}
		}
		break
	}

	if info.Bitrate == 0 {
		if br, err := parseInt(output.Format.BitRate); err == nil {
			info.Bitrate = br / 1000
		}
	}
	return info, nil
}

// parseInt parses an int from a string, ignoring non-numeric suffixes.
func parseInt(s string) (int, error) {
	s = strings.TrimSpace(s)
	for i, c := range s {
		if c < '0' || c > '9' {
			s = s[:i]
			break
		}
	}
	return strconv.Atoi(s)
}

// parseSeconds parses a decimal seconds value as both tools print it.
func parseSeconds(s string) (time.Duration, error) {
	f, err := strconv.ParseFloat(strings.TrimSpace(s), 64)
	if err != nil {
		return 0, err
	}
	return time.Duration(f * float64(time.Second)), nil
}
