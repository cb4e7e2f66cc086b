package source

import (
	"bytes"
	"context"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/hyperjump/niteru/internal/audio"
	"github.com/hyperjump/niteru/internal/models"
)

// Transcode describes how ffmpeg turns input audio into raw mono PCM.
type Transcode struct {
	FFmpegPath  string
	TempDir     string
	SampleRate  int
	MaxDuration time.Duration
}

func (t *Transcode) args(input, output string) []string {
	args := []string{"-hide_banner", "-loglevel", "error", "-y", "-i", input}
	if t.MaxDuration > 0 {
		args = append(args, "-t", strconv.FormatFloat(t.MaxDuration.Seconds(), 'f', -1, 64))
	}
	return append(args, "-vn", "-ac", "1", "-ar", strconv.Itoa(t.SampleRate), "-f", audio.FormatPCM16, output)
}

// tempPath returns a fresh uuid-named artifact path in the temp dir.
func (t *Transcode) tempPath() (string, error) {
	dir := t.TempDir
	if dir == "" {
		dir = os.TempDir()
	}
	if err := os.MkdirAll(dir, 0755); err != nil {
		return "", err
	}
	return filepath.Join(dir, "niteru-"+uuid.NewString()+".pcm"), nil
}

// File transcodes a local file into a temporary PCM artifact.
func (t *Transcode) File(ctx context.Context, input string) (*Artifact, error) {
	out, err := t.tempPath()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFetchFailed, err)
	}
	art := &Artifact{Path: out, Format: audio.FormatPCM16, temp: true}

	cmd := exec.CommandContext(ctx, t.FFmpegPath, t.args(input, out)...)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		_ = art.Remove()
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", models.ErrFetchFailed, err, strings.TrimSpace(stderr.String()))
	}
	return art, nil
}
