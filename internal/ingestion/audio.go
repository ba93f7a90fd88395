package ingestion

import (
	"context"
	"fmt"
	"os"
	"os/exec"
	"strings"
	"time"
)

const ffmpegTimeout = 10 * time.Minute

// AudioExtractor pulls a 16 kHz mono wav track out of a media file with
// ffmpeg.
type AudioExtractor struct {
	ffmpegPath string
}

func NewAudioExtractor(ffmpegPath string) *AudioExtractor {
	return &AudioExtractor{ffmpegPath: strings.TrimSpace(ffmpegPath)}
}

func (a *AudioExtractor) Enabled() bool {
	return a != nil && a.ffmpegPath != ""
}

// Extract writes the audio track into tempDir and returns its path
// and a cleanup func.
func (a *AudioExtractor) Extract(ctx context.Context, mediaPath, tempDir string) (string, func(), error) {
	out, err := os.CreateTemp(tempDir, "tutor-audio-*.wav")
	if err != nil {
		return "", nil, fmt.Errorf("failed to create audio file: %w", err)
	}
	outPath := out.Name()
	out.Close()
	cleanup := func() { _ = os.Remove(outPath) }

	ctx, cancel := context.WithTimeout(ctx, ffmpegTimeout)
	defer cancel()

	args := []string{
		"-y",
		"-i", mediaPath,
		"-vn",
		"-ac", "1",
		"-ar", "16000",
		"-f", "wav", outPath,
	}

	cmd := exec.CommandContext(ctx, a.ffmpegPath, args...)
	if output, err := cmd.CombinedOutput(); err != nil {
		cleanup()
		return "", nil, fmt.Errorf("ffmpeg extract audio failed: %w; out=%s", err, tail(string(output), 512))
	}

	if info, err := os.Stat(outPath); err != nil || info.Size() == 0 {
		cleanup()
		return "", nil, fmt.Errorf("audio output missing at %s", outPath)
	}
	return outPath, cleanup, nil
}

func tail(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[len(s)-n:]
}
