/*
Copyright (C) 2026 Friends Incode

SPDX-License-Identifier: AGPL-3.0-or-later
*/

// Package audio shells out to ffmpeg/ffprobe for duration probing and roll
// bundling. The bundling step itself is delegated tooling; this package only
// invokes it and validates the result.
package audio

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/rs/zerolog"
)

// Tool wraps the external audio binaries.
type Tool struct {
	ffmpegBin  string
	ffprobeBin string
	logger     zerolog.Logger
}

// NewTool creates an audio tool wrapper.
func NewTool(ffmpegBin, ffprobeBin string, logger zerolog.Logger) *Tool {
	if ffmpegBin == "" {
		ffmpegBin = "ffmpeg"
	}
	if ffprobeBin == "" {
		ffprobeBin = "ffprobe"
	}
	return &Tool{
		ffmpegBin:  ffmpegBin,
		ffprobeBin: ffprobeBin,
		logger:     logger.With().Str("component", "audio").Logger(),
	}
}

// ProbeDuration reads the container duration of an audio file via ffprobe.
func (t *Tool) ProbeDuration(path string) (time.Duration, error) {
	out, err := exec.Command(t.ffprobeBin,
		"-v", "error",
		"-show_entries", "format=duration",
		"-of", "default=noprint_wrappers=1:nokey=1",
		path,
	).Output()
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: %w", path, err)
	}

	seconds, err := strconv.ParseFloat(strings.TrimSpace(string(out)), 64)
	if err != nil {
		return 0, fmt.Errorf("ffprobe %s: parse duration %q: %w", path, strings.TrimSpace(string(out)), err)
	}

	return time.Duration(seconds * float64(time.Second)), nil
}

// Concat bundles inputs into a single audio file using the ffmpeg concat
// demuxer. Inputs are re-encoded so mixed source formats stay playable.
func (t *Tool) Concat(ctx context.Context, output string, inputs []string) error {
	if len(inputs) == 0 {
		return fmt.Errorf("concat: no inputs")
	}

	listFile, err := writeConcatList(inputs)
	if err != nil {
		return err
	}
	defer os.Remove(listFile)

	cmd := exec.CommandContext(ctx, t.ffmpegBin,
		"-y",
		"-f", "concat",
		"-safe", "0",
		"-i", listFile,
		"-map", "0:a:0",
		"-c:a", "libmp3lame", "-b:a", "192k",
		output,
	)
	if out, err := cmd.CombinedOutput(); err != nil {
		t.logger.Warn().Err(err).Str("output", output).Msg("ffmpeg concat failed")
		return fmt.Errorf("ffmpeg concat: %w: %s", err, truncate(string(out), 300))
	}

	return nil
}

// ValidateBundle probes the bundled output and compares it to the expected
// duration. Returns the drift; errors only when the output is unreadable.
// Re-encoding variance within the tolerance is normal and not reported.
func (t *Tool) ValidateBundle(path string, expected, tolerance time.Duration) (time.Duration, error) {
	actual, err := t.ProbeDuration(path)
	if err != nil {
		return 0, err
	}

	drift := actual - expected
	if drift < 0 {
		drift = -drift
	}
	if drift > tolerance {
		t.logger.Warn().
			Str("bundle", path).
			Dur("expected", expected).
			Dur("actual", actual).
			Dur("tolerance", tolerance).
			Msg("bundle duration outside tolerance")
	}
	return drift, nil
}

func writeConcatList(inputs []string) (string, error) {
	f, err := os.CreateTemp("", "gjallar-concat-*.txt")
	if err != nil {
		return "", fmt.Errorf("concat list: %w", err)
	}
	defer f.Close()

	for _, input := range inputs {
		abs, err := filepath.Abs(input)
		if err != nil {
			abs = input
		}
		// Concat demuxer escaping: single quotes in paths become '\''.
		escaped := strings.ReplaceAll(abs, "'", `'\''`)
		if _, err := fmt.Fprintf(f, "file '%s'\n", escaped); err != nil {
			return "", fmt.Errorf("concat list: %w", err)
		}
	}

	return f.Name(), nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n]
}
