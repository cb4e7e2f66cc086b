package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/storage"
)

var httpClient = &http.Client{Timeout: 60 * time.Second}

// serverSearchResponse is the shape of POST /api/search.
type serverSearchResponse struct {
	Query struct {
		Title  string `json:"title"`
		Artist string `json:"artist"`
	} `json:"query"`
	QueryID   int64             `json:"query_id"`
	Songs     []models.Neighbor `json:"songs"`
	QueryTime int64             `json:"query_time_ms"`
}

func similarViaHTTP(serverURL string, q *models.SimilarQuery) (*models.SimilarResponse, error) {
	body, err := json.Marshal(map[string]interface{}{
		"artist": q.Artist,
		"title":  q.Title,
		"id":     q.ID,
		"k":      q.K,
	})
	if err != nil {
		return nil, err
	}
	resp, err := httpClient.Post(strings.TrimRight(serverURL, "/")+"/api/search", "application/json", bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out serverSearchResponse
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &models.SimilarResponse{
		Query:     &models.TrackRecord{ID: out.QueryID, Title: out.Query.Title, Artist: out.Query.Artist},
		Neighbors: out.Songs,
		QueryTime: out.QueryTime,
	}, nil
}

func statusViaHTTP(serverURL string) (*storage.Stats, error) {
	resp, err := httpClient.Get(strings.TrimRight(serverURL, "/") + "/api/status")
	if err != nil {
		return nil, fmt.Errorf("request failed: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		b, _ := io.ReadAll(resp.Body)
		return nil, fmt.Errorf("server returned %d: %s", resp.StatusCode, strings.TrimSpace(string(b)))
	}
	var out struct {
		Tracks     int64  `json:"tracks"`
		Dimensions int    `json:"dimensions"`
		IndexType  string `json:"index_type"`
		DiskBytes  int64  `json:"disk_usage_bytes"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, fmt.Errorf("decode response: %w", err)
	}
	return &storage.Stats{Tracks: out.Tracks, Dimensions: out.Dimensions, IndexType: out.IndexType, DiskBytes: out.DiskBytes}, nil
}
