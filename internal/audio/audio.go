// Package audio decodes fetched audio into mono float32 clips at the model sample rate.
package audio

import (
	"encoding/binary"
	"fmt"
	"io"
	"os"
	"time"

	goaudio "github.com/go-audio/audio"
	"github.com/go-audio/wav"
	resampling "github.com/tphakala/go-audio-resampling"

	"github.com/hyperjump/niteru/internal/models"
)

// silenceThreshold is the peak amplitude below which a clip counts as silent.
const silenceThreshold = 1e-4

// Clip is decoded mono audio.
type Clip struct {
	Samples    []float32
	SampleRate int
}

// Duration returns the length of the clip.
func (c *Clip) Duration() time.Duration {
	if c.SampleRate <= 0 {
		return 0
	}
	return time.Duration(len(c.Samples)) * time.Second / time.Duration(c.SampleRate)
}

// DecodePCM16 reads raw signed 16-bit little-endian mono PCM, as produced by
// ffmpeg -f s16le -ac 1, and trims it to maxDuration.
func DecodePCM16(r io.Reader, sampleRate int, maxDuration time.Duration) (*Clip, error) {
	if sampleRate <= 0 {
		return nil, fmt.Errorf("%w: invalid sample rate %d", models.ErrDecodeFailed, sampleRate)
	}
	limit := maxSamples(sampleRate, maxDuration)

	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecodeFailed, err)
	}
	n := len(data) / 2
	if limit > 0 && n > limit {
		n = limit
	}
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		samples[i] = float32(int16(binary.LittleEndian.Uint16(data[i*2:]))) / 32768.0
	}
	return finish(samples, sampleRate)
}

// DecodeWAV decodes a WAV file of any rate and channel count into a mono clip at
// sampleRate, trimmed to maxDuration.
func DecodeWAV(path string, sampleRate int, maxDuration time.Duration) (*Clip, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFetchFailed, err)
	}
	defer f.Close()

	d := wav.NewDecoder(f)
	if !d.IsValidFile() {
		return nil, fmt.Errorf("%w: %s is not a valid WAV file", models.ErrDecodeFailed, path)
	}
	var buf *goaudio.IntBuffer
	buf, err = d.FullPCMBuffer()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrDecodeFailed, err)
	}
	if buf == nil || buf.Format == nil || buf.Format.NumChannels <= 0 || buf.Format.SampleRate <= 0 {
		return nil, fmt.Errorf("%w: missing WAV format", models.ErrDecodeFailed)
	}

	mono := downmix(buf.Data, buf.Format.NumChannels, int(d.BitDepth))

	srcRate := buf.Format.SampleRate
	// Trim before resampling so long files do not pay for audio that is discarded.
	if limit := maxSamples(srcRate, maxDuration); limit > 0 && len(mono) > limit {
		mono = mono[:limit]
	}
	if srcRate != sampleRate {
		mono, err = Resample(mono, srcRate, sampleRate)
		if err != nil {
			return nil, err
		}
	}
	if limit := maxSamples(sampleRate, maxDuration); limit > 0 && len(mono) > limit {
		mono = mono[:limit]
	}

	samples := make([]float32, len(mono))
	for i, s := range mono {
		samples[i] = float32(s)
	}
	return finish(samples, sampleRate)
}

// Resample converts mono samples between rates.
func Resample(samples []float64, fromRate, toRate int) ([]float64, error) {
	r, err := resampling.New(&resampling.Config{
		InputRate:  float64(fromRate),
		OutputRate: float64(toRate),
		Channels:   1,
		Quality:    resampling.QualitySpec{Preset: resampling.QualityHigh},
	})
	if err != nil {
		return nil, fmt.Errorf("%w: failed to create resampler: %v", models.ErrDecodeFailed, err)
	}
	out, err := r.Process(samples)
	if err != nil {
		return nil, fmt.Errorf("%w: resample: %v", models.ErrDecodeFailed, err)
	}
	return out, nil
}

// downmix averages interleaved integer channels into normalized mono samples.
func downmix(data []int, channels, bitDepth int) []float64 {
	if bitDepth <= 0 {
		bitDepth = 16
	}
	scale := float64(int64(1) << (bitDepth - 1))
	frames := len(data) / channels
	out := make([]float64, frames)
	for i := 0; i < frames; i++ {
		var sum float64
		for c := 0; c < channels; c++ {
			sum += float64(data[i*channels+c])
		}
		out[i] = sum / float64(channels) / scale
	}
	return out
}

func maxSamples(sampleRate int, maxDuration time.Duration) int {
	if maxDuration <= 0 {
		return 0
	}
	return int(int64(sampleRate) * int64(maxDuration) / int64(time.Second))
}

func finish(samples []float32, sampleRate int) (*Clip, error) {
	if len(samples) == 0 {
		return nil, fmt.Errorf("%w: no audio samples", models.ErrDecodeFailed)
	}
	var peak float32
	for _, s := range samples {
		if s < 0 {
			s = -s
		}
		if s > peak {
			peak = s
		}
	}
	if peak < silenceThreshold {
		return nil, fmt.Errorf("%w: clip is silent", models.ErrDecodeFailed)
	}
	return &Clip{Samples: samples, SampleRate: sampleRate}, nil
}
