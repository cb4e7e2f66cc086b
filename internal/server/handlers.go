package server

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"

	"github.com/hyperjump/niteru/internal/keyword"
	"github.com/hyperjump/niteru/internal/models"
	"github.com/hyperjump/niteru/internal/similarity"
	"github.com/hyperjump/niteru/internal/storage"
)

const (
	maxIngestTracks  = 500
	defaultPageLimit = 50
	maxPageLimit     = 500
)

type searchRequest struct {
	Artist string `json:"artist"`
	Title  string `json:"title"`
	ID     int64  `json:"id,omitempty"`
	K      int    `json:"k,omitempty"`
}

type trackKey struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

type searchResponse struct {
	Status    string            `json:"status"`
	Query     trackKey          `json:"query"`
	QueryID   int64             `json:"query_id"`
	Songs     []models.Neighbor `json:"songs"`
	QueryTime int64             `json:"query_time_ms"`
}

func (s *Server) handleSearch(w http.ResponseWriter, r *http.Request) {
	var req searchRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.ID == 0 && (strings.TrimSpace(req.Artist) == "" || strings.TrimSpace(req.Title) == "") {
		s.respondError(w, http.StatusBadRequest, "Artist and title are required")
		return
	}
	s.logger.Debug("search request", zap.String("artist", req.Artist), zap.String("title", req.Title), zap.Int("k", req.K))

	resp, err := s.engine.FindSimilar(r.Context(), &models.SimilarQuery{
		ID:     req.ID,
		Artist: req.Artist,
		Title:  req.Title,
		K:      req.K,
	})
	if err != nil {
		s.respondQueryError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, searchResponse{
		Status:    "success",
		Query:     trackKey{Title: resp.Query.Title, Artist: resp.Query.Artist},
		QueryID:   resp.Query.ID,
		Songs:     resp.Neighbors,
		QueryTime: resp.QueryTime,
	})
}

type vectorRequest struct {
	Vector []float32 `json:"vector"`
	K      int       `json:"k,omitempty"`
}

func (s *Server) handleSimilarVector(w http.ResponseWriter, r *http.Request) {
	var req vectorRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Vector) == 0 {
		s.respondError(w, http.StatusBadRequest, "vector is required")
		return
	}
	resp, err := s.engine.FindSimilar(r.Context(), &models.SimilarQuery{Vector: req.Vector, K: req.K})
	if err != nil {
		s.respondQueryError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"status":        "success",
		"songs":         resp.Neighbors,
		"query_time_ms": resp.QueryTime,
	})
}

type ingestRequest struct {
	Tracks []models.TrackQuery `json:"tracks"`
}

func (s *Server) handleIngest(w http.ResponseWriter, r *http.Request) {
	if s.ingester == nil {
		s.respondError(w, http.StatusNotImplemented, "ingestion not enabled")
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		s.respondError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if len(req.Tracks) == 0 {
		s.respondError(w, http.StatusBadRequest, "tracks are required")
		return
	}
	if len(req.Tracks) > maxIngestTracks {
		s.respondError(w, http.StatusRequestEntityTooLarge, "too many tracks in one batch")
		return
	}
	// HTTP callers identify tracks by name only; local paths come from the watcher or CLI.
	for i := range req.Tracks {
		req.Tracks[i].Path = ""
	}

	s.logger.Info("ingest request", zap.Int("tracks", len(req.Tracks)))
	result, err := s.ingester.IngestBatch(r.Context(), req.Tracks)
	if err != nil {
		s.logger.Error("ingestion failed", zap.Error(err))
		body := map[string]interface{}{"error": err.Error(), "kind": models.Kind(err)}
		if result != nil {
			body["failures"] = result.Failures
		}
		s.respondJSON(w, statusFor(err), body)
		return
	}
	s.respondJSON(w, http.StatusOK, result)
}

func (s *Server) handleListTracks(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	limit := parseInt(q.Get("limit"), defaultPageLimit)
	if limit <= 0 || limit > maxPageLimit {
		limit = defaultPageLimit
	}

	if text := strings.TrimSpace(q.Get("q")); text != "" {
		if s.tracks == nil {
			s.respondError(w, http.StatusNotImplemented, "track search not enabled")
			return
		}
		fuzzy := q.Get("fuzzy") == "true"
		hits, err := s.tracks.Search(r.Context(), text, limit, fuzzy)
		if err != nil {
			s.logger.Error("track search failed", zap.Error(err))
			s.respondError(w, http.StatusInternalServerError, err.Error())
			return
		}
		if hits == nil {
			hits = []*keyword.Hit{}
		}
		s.respondJSON(w, http.StatusOK, map[string]interface{}{"query": text, "tracks": hits})
		return
	}

	offset := parseInt(q.Get("offset"), 0)
	if offset < 0 {
		offset = 0
	}
	records, err := s.store.List(r.Context(), offset, limit)
	if err != nil {
		s.respondQueryError(w, err)
		return
	}
	total, err := s.store.Count(r.Context())
	if err != nil {
		s.respondQueryError(w, err)
		return
	}
	if records == nil {
		records = []*models.TrackRecord{}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"tracks": records,
		"total":  total,
		"offset": offset,
		"limit":  limit,
	})
}

func (s *Server) handleGetTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := s.trackID(w, r)
	if !ok {
		return
	}
	rec, err := s.store.Get(r.Context(), id)
	if err != nil {
		s.respondQueryError(w, err)
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{
		"track":         rec,
		"has_embedding": len(rec.Embedding) > 0,
	})
}

func (s *Server) handleDeleteTrack(w http.ResponseWriter, r *http.Request) {
	id, ok := s.trackID(w, r)
	if !ok {
		return
	}
	s.logger.Debug("delete track request", zap.Int64("id", id))
	if err := s.store.Delete(r.Context(), id); err != nil {
		s.respondQueryError(w, err)
		return
	}
	if s.tracks != nil {
		if err := s.tracks.Delete(r.Context(), id); err != nil {
			s.logger.Warn("failed to remove track from text index", zap.Int64("id", id), zap.Error(err))
		}
	}
	s.respondJSON(w, http.StatusOK, map[string]interface{}{"id": id, "status": "deleted"})
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	if _, err := s.store.Count(r.Context()); err != nil {
		s.logger.Warn("health check failed", zap.Error(err))
		s.respondJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "unhealthy"})
		return
	}
	s.respondJSON(w, http.StatusOK, map[string]string{"status": "healthy"})
}

func (s *Server) handleHello(w http.ResponseWriter, r *http.Request) {
	s.respondJSON(w, http.StatusOK, map[string]string{"message": "Hello from niteru!"})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	stats, err := storage.CollectStats(r.Context(), s.store, s.paths...)
	if err != nil {
		s.logger.Error("status: collect stats failed", zap.Error(err))
		s.respondQueryError(w, err)
		return
	}
	resp := map[string]interface{}{
		"tracks":           stats.Tracks,
		"dimensions":       stats.Dimensions,
		"index_type":       stats.IndexType,
		"disk_usage_bytes": stats.DiskBytes,
	}
	if s.tracks != nil {
		if n, err := s.tracks.DocCount(); err == nil {
			resp["text_index_docs"] = n
		}
	}
	if s.watch != nil {
		resp["watch_directories"] = s.watch.Directories()
	}
	s.respondJSON(w, http.StatusOK, resp)
}

func (s *Server) trackID(w http.ResponseWriter, r *http.Request) (int64, bool) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil || id <= 0 {
		s.respondError(w, http.StatusBadRequest, "invalid track id")
		return 0, false
	}
	return id, true
}

func parseInt(s string, def int) int {
	if s == "" {
		return def
	}
	n, err := strconv.Atoi(s)
	if err != nil {
		return def
	}
	return n
}

// statusFor maps an error kind to an HTTP status.
func statusFor(err error) int {
	switch models.Kind(err) {
	case "InvalidQuery", "DimensionMismatch", "ConstraintViolation":
		return http.StatusBadRequest
	case "NotFound":
		return http.StatusNotFound
	case "AmbiguousKey":
		return http.StatusConflict
	case "MissingEmbedding":
		return http.StatusUnprocessableEntity
	case "StorageUnavailable":
		return http.StatusServiceUnavailable
	default:
		return http.StatusInternalServerError
	}
}

func (s *Server) respondQueryError(w http.ResponseWriter, err error) {
	status := statusFor(err)
	if status >= http.StatusInternalServerError {
		s.logger.Error("request failed", zap.Error(err))
	}
	body := map[string]interface{}{"error": err.Error(), "kind": models.Kind(err)}
	var nf *similarity.NotFoundError
	if errors.As(err, &nf) && len(nf.Suggestions) > 0 {
		body["suggestions"] = nf.Suggestions
	}
	s.respondJSON(w, status, body)
}

func (s *Server) respondJSON(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(data)
}

func (s *Server) respondError(w http.ResponseWriter, status int, message string) {
	s.respondJSON(w, status, map[string]string{"error": message})
}
