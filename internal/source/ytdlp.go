package source

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/hyperjump/niteru/internal/audio"
	"github.com/hyperjump/niteru/internal/models"
)

// YTDLP resolves queries with a yt-dlp web search and fetches the audio through ffmpeg.
// Calls to yt-dlp are paced by a shared rate limiter.
type YTDLP struct {
	path      string
	transcode *Transcode
	limiter   *rate.Limiter
	logger    *zap.Logger
}

// YTDLPOption configures YTDLP.
type YTDLPOption func(*YTDLP)

// WithLogger sets the logger.
func WithLogger(l *zap.Logger) YTDLPOption {
	return func(y *YTDLP) {
		y.logger = l
	}
}

// WithRate limits yt-dlp invocations to perSecond, with bursts of one.
// A non-positive rate disables pacing.
func WithRate(perSecond float64) YTDLPOption {
	return func(y *YTDLP) {
		if perSecond <= 0 {
			y.limiter = rate.NewLimiter(rate.Inf, 1)
			return
		}
		y.limiter = rate.NewLimiter(rate.Limit(perSecond), 1)
	}
}

// NewYTDLP creates a resolver/fetcher using the yt-dlp binary at path.
func NewYTDLP(path string, transcode *Transcode, opts ...YTDLPOption) *YTDLP {
	if path == "" {
		path = "yt-dlp"
	}
	y := &YTDLP{
		path:      path,
		transcode: transcode,
		limiter:   rate.NewLimiter(rate.Inf, 1),
		logger:    zap.NewNop(),
	}
	for _, opt := range opts {
		opt(y)
	}
	return y
}

// Resolve searches for "artist title" and returns the first hit's URL.
func (y *YTDLP) Resolve(ctx context.Context, q models.TrackQuery) (*Source, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrSourceResolutionFailed, err)
	}

	cmd := exec.CommandContext(ctx, y.path,
		"ytsearch1:"+q.SearchText(),
		"--print", "webpage_url",
		"--skip-download",
		"--no-playlist",
		"--no-warnings",
	)
	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr
	if err := cmd.Run(); err != nil {
		return nil, fmt.Errorf("%w: yt-dlp search %q: %v: %s",
			models.ErrSourceResolutionFailed, q.SearchText(), err, strings.TrimSpace(stderr.String()))
	}

	url := firstLine(stdout.String())
	if url == "" {
		return nil, fmt.Errorf("%w: no results for %q", models.ErrSourceResolutionFailed, q.SearchText())
	}
	y.logger.Debug("resolved track", zap.String("query", q.String()), zap.String("url", url))
	return &Source{Query: q, Location: url}, nil
}

// Fetch streams the best audio format from yt-dlp into ffmpeg, which writes mono PCM
// at the model rate, trimmed to the maximum duration, into a temporary artifact.
func (y *YTDLP) Fetch(ctx context.Context, src *Source) (*Artifact, error) {
	if err := y.limiter.Wait(ctx); err != nil {
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, err)
	}

	out, err := y.transcode.tempPath()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFetchFailed, err)
	}
	art := &Artifact{Path: out, Format: audio.FormatPCM16, temp: true}

	dl := exec.CommandContext(ctx, y.path, "-f", "bestaudio", "--no-playlist", "--quiet", "-o", "-", src.Location)
	ff := exec.CommandContext(ctx, y.transcode.FFmpegPath, y.transcode.args("pipe:0", out)...)

	var dlErr, ffErr bytes.Buffer
	dl.Stderr = &dlErr
	ff.Stderr = &ffErr
	pipe, err := dl.StdoutPipe()
	if err != nil {
		return nil, fmt.Errorf("%w: %v", models.ErrFetchFailed, err)
	}
	ff.Stdin = pipe

	if err := dl.Start(); err != nil {
		return nil, fmt.Errorf("%w: start yt-dlp: %v", models.ErrFetchFailed, err)
	}
	if err := ff.Start(); err != nil {
		_ = dl.Process.Kill()
		_ = dl.Wait()
		return nil, fmt.Errorf("%w: start ffmpeg: %v", models.ErrFetchFailed, err)
	}
	// ffmpeg holds its own copy of the read end. Ours must go, or yt-dlp never sees a
	// broken pipe when ffmpeg stops reading at the duration limit.
	_ = pipe.Close()

	ffRunErr := ff.Wait()
	dlRunErr := dl.Wait()

	if ffRunErr != nil {
		_ = art.Remove()
		return nil, fmt.Errorf("%w: ffmpeg: %v: %s", models.ErrFetchFailed, ffRunErr, strings.TrimSpace(ffErr.String()))
	}
	if dlRunErr != nil && ctx.Err() != nil {
		_ = art.Remove()
		return nil, fmt.Errorf("%w: %w", models.ErrFetchFailed, ctx.Err())
	}
	if dlRunErr != nil {
		y.logger.Debug("yt-dlp exited early", zap.String("url", src.Location), zap.Error(dlRunErr))
	}
	return art, nil
}

func firstLine(s string) string {
	for _, line := range strings.Split(s, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			return line
		}
	}
	return ""
}
