package source

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/hyperjump/niteru/internal/audio"
	"github.com/hyperjump/niteru/internal/models"
)

// Local resolves queries that carry a file path. WAV and raw PCM files are read in place;
// other formats are transcoded with ffmpeg when Transcode is set.
type Local struct {
	Transcode *Transcode
}

// Resolve checks that the query's file exists.
func (l *Local) Resolve(ctx context.Context, q models.TrackQuery) (*Source, error) {
	if q.Path == "" {
		return nil, fmt.Errorf("%w: %s has no file path", models.ErrSourceResolutionFailed, q)
	}
	info, err := os.Stat(q.Path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrSourceResolutionFailed, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("%w: %s is a directory", models.ErrSourceResolutionFailed, q.Path)
	}
	return &Source{Query: q, Location: q.Path, Local: true}, nil
}

// Fetch returns the file itself or a transcoded temporary artifact.
func (l *Local) Fetch(ctx context.Context, src *Source) (*Artifact, error) {
	switch strings.ToLower(filepath.Ext(src.Location)) {
	case ".wav", ".wave":
		return &Artifact{Path: src.Location, Format: audio.FormatWAV}, nil
	case ".pcm", ".raw":
		return &Artifact{Path: src.Location, Format: audio.FormatPCM16}, nil
	}
	if l.Transcode == nil || l.Transcode.FFmpegPath == "" {
		return nil, fmt.Errorf("%w: %s needs ffmpeg to decode", models.ErrFetchFailed, src.Location)
	}
	return l.Transcode.File(ctx, src.Location)
}
