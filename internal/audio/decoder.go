package audio

import (
	"context"
	"fmt"
	"os"
	"time"

	"github.com/hyperjump/niteru/internal/models"
)

// Artifact formats understood by FileDecoder.
const (
	FormatPCM16 = "s16le"
	FormatWAV   = "wav"
)

// FileDecoder decodes fetched artifacts into clips at a fixed rate and bounded duration.
type FileDecoder struct {
	SampleRate  int
	MaxDuration time.Duration
}

// Decode reads the artifact at path in the given format.
func (d *FileDecoder) Decode(ctx context.Context, path, format string) (*Clip, error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrDecodeFailed, err)
	}
	switch format {
	case FormatPCM16:
		f, err := os.Open(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %v", models.ErrFetchFailed, err)
		}
		defer f.Close()
		return DecodePCM16(f, d.SampleRate, d.MaxDuration)
	case FormatWAV:
		return DecodeWAV(path, d.SampleRate, d.MaxDuration)
	default:
		return nil, fmt.Errorf("%w: unsupported format %q", models.ErrDecodeFailed, format)
	}
}
