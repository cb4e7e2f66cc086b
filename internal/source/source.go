// Package source resolves track queries to audio and fetches it into local artifacts.
package source

import (
	"context"
	"errors"
	"fmt"
	"os"

	"github.com/hyperjump/niteru/internal/models"
)

// Source is a resolved, fetchable audio location.
type Source struct {
	Query models.TrackQuery
	// URL for remote sources, file path for local ones.
	Location string
	Local    bool
}

// Artifact is fetched audio on local disk. Temporary artifacts are deleted by Remove.
type Artifact struct {
	Path   string
	Format string
	temp   bool
}

// TempArtifact wraps a file the caller created and wants deleted by Remove.
func TempArtifact(path, format string) *Artifact {
	return &Artifact{Path: path, Format: format, temp: true}
}

// Remove deletes a temporary artifact. It is a no-op for files the fetcher did not create.
func (a *Artifact) Remove() error {
	if a == nil || !a.temp {
		return nil
	}
	if err := os.Remove(a.Path); err != nil && !errors.Is(err, os.ErrNotExist) {
		return err
	}
	return nil
}

// Resolver turns a query into a Source or fails with models.ErrSourceResolutionFailed.
type Resolver interface {
	Resolve(ctx context.Context, q models.TrackQuery) (*Source, error)
}

// Fetcher downloads or locates a Source's audio or fails with models.ErrFetchFailed.
type Fetcher interface {
	Fetch(ctx context.Context, src *Source) (*Artifact, error)
}

// ResolveFetcher is implemented by sources that both resolve and fetch.
type ResolveFetcher interface {
	Resolver
	Fetcher
}

// Auto sends queries with a path to Local and everything else to Remote.
type Auto struct {
	Local  *Local
	Remote ResolveFetcher
}

// Resolve implements Resolver.
func (a *Auto) Resolve(ctx context.Context, q models.TrackQuery) (*Source, error) {
	if q.Path != "" {
		return a.Local.Resolve(ctx, q)
	}
	if a.Remote == nil {
		return nil, fmt.Errorf("%w: no remote resolver configured for %s", models.ErrSourceResolutionFailed, q)
	}
	return a.Remote.Resolve(ctx, q)
}

// Fetch implements Fetcher.
func (a *Auto) Fetch(ctx context.Context, src *Source) (*Artifact, error) {
	if src.Local {
		return a.Local.Fetch(ctx, src)
	}
	if a.Remote == nil {
		return nil, fmt.Errorf("%w: no remote fetcher configured", models.ErrFetchFailed)
	}
	return a.Remote.Fetch(ctx, src)
}
