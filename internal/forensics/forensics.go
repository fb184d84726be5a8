// Package forensics checks whether lossless files are genuine or upscaled
// lossy transcodes by running an external analyzer.
//
// The analyzer is invoked as `<binary> <file>` and must print a line of the
// form `verdict: <Real|Fake|Corrupted|Undetermined|Error>`. Any other output
// is ignored.
package forensics

import (
	"bufio"
	"bytes"
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/rs/zerolog"

	"github.com/tunedrift/tunedrift/internal/config"
)

// Verdict is the analyzer's classification of a file.
type Verdict string

const (
	VerdictReal         Verdict = "Real"
	VerdictFake         Verdict = "Fake"
	VerdictCorrupted    Verdict = "Corrupted"
	VerdictUndetermined Verdict = "Undetermined"
	VerdictError        Verdict = "Error"
)

const defaultTimeout = time.Minute

var ErrNoVerdict = errors.New("analyzer printed no verdict")

// IsFake converts a verdict to the library's is_fake flag. Verdicts that
// say nothing about authenticity return nil.
func (v Verdict) IsFake() *bool {
	var fake bool
	switch v {
	case VerdictFake:
		fake = true
	case VerdictReal:
		fake = false
	default:
		return nil
	}
	return &fake
}

// Analyzer runs the configured forensics binary.
type Analyzer struct {
	binary  string
	timeout time.Duration
	logger  zerolog.Logger
}

// NewAnalyzer resolves the analyzer binary. A missing binary is not an error;
// Analyze then reports every file as undetermined.
func NewAnalyzer(cfg config.ForensicsConfig, logger zerolog.Logger) *Analyzer {
	a := &Analyzer{
		timeout: cfg.Timeout,
		logger:  logger.With().Str("component", "forensics").Logger(),
	}
	if a.timeout <= 0 {
		a.timeout = defaultTimeout
	}
	if cfg.BinaryPath != "" {
		if path, err := exec.LookPath(cfg.BinaryPath); err == nil {
			a.binary = path
		} else {
			a.logger.Warn().Err(err).Str("binary", cfg.BinaryPath).Msg("Forensics analyzer not found, lossless checks disabled")
		}
	}
	return a
}

// IsAvailable reports whether an analyzer binary was found.
func (a *Analyzer) IsAvailable() bool {
	return a.binary != ""
}

// Analyze classifies one file.
func (a *Analyzer) Analyze(ctx context.Context, path string) (Verdict, error) {
	if !a.IsAvailable() {
		return VerdictUndetermined, nil
	}

	ctx, cancel := context.WithTimeout(ctx, a.timeout)
	defer cancel()

	start := time.Now()
	cmd := exec.CommandContext(ctx, a.binary, path)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	cmd.WaitDelay = time.Second

	if err := cmd.Run(); err != nil {
		if ctx.Err() == context.DeadlineExceeded {
			return VerdictError, fmt.Errorf("analyzer timed out after %s", a.timeout)
		}
		return VerdictError, fmt.Errorf("analyzer failed: %w: %s", err, strings.TrimSpace(stderr.String()))
	}

	verdict, err := parseVerdict(stdout.Bytes())
	if err != nil {
		return VerdictError, err
	}

	a.logger.Debug().
		Str("path", path).
		Str("verdict", string(verdict)).
		Dur("took", time.Since(start)).
		Msg("Analyzed file")
	return verdict, nil
}

func parseVerdict(out []byte) (Verdict, error) {
	scanner := bufio.NewScanner(bytes.NewReader(out))
	for scanner.Scan() {
		key, value, ok := strings.Cut(scanner.Text(), ":")
		if !ok || !strings.EqualFold(strings.TrimSpace(key), "verdict") {
			continue
		}
		value = strings.TrimSpace(value)
		for _, v := range []Verdict{VerdictReal, VerdictFake, VerdictCorrupted, VerdictUndetermined, VerdictError} {
			if strings.EqualFold(value, string(v)) {
				return v, nil
			}
		}
		// "Authentic" is accepted as an alias some analyzers print.
		if strings.EqualFold(value, "authentic") {
			return VerdictReal, nil
		}
		return VerdictUndetermined, nil
	}
	return VerdictError, ErrNoVerdict
}
