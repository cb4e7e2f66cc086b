package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/sethvargo/go-retry"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

// LastFMOption configures a LastFM client.
type LastFMOption func(*LastFM)

// WithHTTPClient sets the HTTP client.
func WithHTTPClient(c *http.Client) LastFMOption {
	return func(l *LastFM) { l.client = c }
}

// WithLimiter sets the request pacing limiter.
func WithLimiter(lim *rate.Limiter) LastFMOption {
	return func(l *LastFM) { l.limiter = lim }
}

// WithRetry sets the number of retries and the initial Fibonacci backoff.
func WithRetry(maxRetries uint64, base time.Duration) LastFMOption {
	return func(l *LastFM) {
		l.maxRetries = maxRetries
		l.backoff = base
	}
}

// WithLastFMLogger sets the logger.
func WithLastFMLogger(logger *zap.Logger) LastFMOption {
	return func(l *LastFM) { l.logger = logger }
}

// LastFM fetches genre top-track charts from the Last.fm API.
type LastFM struct {
	baseURL    string
	apiKey     string
	client     *http.Client
	limiter    *rate.Limiter
	maxRetries uint64
	backoff    time.Duration
	logger     *zap.Logger
}

// NewLastFM creates a client. Requests are paced at 4 per second by default.
func NewLastFM(baseURL, apiKey string, opts ...LastFMOption) *LastFM {
	l := &LastFM{
		baseURL:    baseURL,
		apiKey:     apiKey,
		client:     &http.Client{Timeout: 30 * time.Second},
		limiter:    rate.NewLimiter(rate.Every(250*time.Millisecond), 1),
		maxRetries: 3,
		backoff:    500 * time.Millisecond,
		logger:     zap.NewNop(),
	}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

type topTracksResponse struct {
	Tracks struct {
		Track []struct {
			Name   string `json:"name"`
			URL    string `json:"url"`
			Artist struct {
				Name string `json:"name"`
			} `json:"artist"`
		} `json:"track"`
	} `json:"tracks"`
	Error   int    `json:"error"`
	Message string `json:"message"`
}

// statusError is a non-200 API response.
type statusError struct {
	code int
	body string
}

func (e *statusError) Error() string {
	return fmt.Sprintf("last.fm returned %d: %s", e.code, e.body)
}

// TopTracks returns up to limit top tracks for a tag. Server errors and transport
// failures are retried; other failures are returned immediately.
func (l *LastFM) TopTracks(ctx context.Context, genre string, limit int) ([]Entry, error) {
	if l.apiKey == "" {
		return nil, errors.New("last.fm API key is not set")
	}
	params := url.Values{}
	params.Set("method", "tag.gettoptracks")
	params.Set("tag", genre)
	params.Set("api_key", l.apiKey)
	params.Set("format", "json")
	params.Set("limit", strconv.Itoa(limit))
	endpoint := l.baseURL + "?" + params.Encode()

	var resp topTracksResponse
	b := retry.WithMaxRetries(l.maxRetries, retry.NewFibonacci(l.backoff))
	err := retry.Do(ctx, b, func(ctx context.Context) error {
		if err := l.limiter.Wait(ctx); err != nil {
			return err
		}
		err := l.get(ctx, endpoint, &resp)
		var se *statusError
		if errors.As(err, &se) && se.code < http.StatusInternalServerError {
			return err
		}
		if err != nil {
			l.logger.Warn("last.fm request failed, will retry", zap.String("genre", genre), zap.Error(err))
			return retry.RetryableError(err)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("fetch top tracks for %q: %w", genre, err)
	}
	if resp.Error != 0 {
		return nil, fmt.Errorf("fetch top tracks for %q: last.fm error %d: %s", genre, resp.Error, resp.Message)
	}

	entries := make([]Entry, 0, len(resp.Tracks.Track))
	for _, t := range resp.Tracks.Track {
		entries = append(entries, Entry{
			Title:  t.Name,
			Artist: t.Artist.Name,
			Genre:  genre,
			URL:    t.URL,
		})
	}
	return entries, nil
}

func (l *LastFM) get(ctx context.Context, endpoint string, out *topTracksResponse) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return err
	}
	res, err := l.client.Do(req)
	if err != nil {
		return err
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, 8<<20))
	if err != nil {
		return err
	}
	if res.StatusCode != http.StatusOK {
		return &statusError{code: res.StatusCode, body: string(body)}
	}
	*out = topTracksResponse{}
	return json.Unmarshal(body, out)
}

// BuildDataset fetches perGenre tracks for every genre. A genre that fails is logged and
// skipped; only context cancellation aborts the build.
func (l *LastFM) BuildDataset(ctx context.Context, genres []string, perGenre int) ([]Entry, error) {
	var dataset []Entry
	for _, genre := range genres {
		l.logger.Info("fetching genre", zap.String("genre", genre), zap.Int("limit", perGenre))
		tracks, err := l.TopTracks(ctx, genre, perGenre)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("skipping genre", zap.String("genre", genre), zap.Error(err))
			continue
		}
		dataset = append(dataset, tracks...)
	}
	l.logger.Info("dataset built", zap.Int("tracks", len(dataset)), zap.Int("genres", len(genres)))
	return dataset, nil
}
