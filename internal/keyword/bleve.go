package keyword

import (
	"context"
	"fmt"
	"os"
	"sort"
	"strconv"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/analysis/analyzer/standard"
	blevequery "github.com/blevesearch/bleve/v2/search/query"

	"github.com/hyperjump/niteru/internal/models"
)

// BleveIndex implements TrackIndex using Bleve.
type BleveIndex struct {
	index bleve.Index
}

type trackDoc struct {
	Title  string `json:"title"`
	Artist string `json:"artist"`
}

// NewBleveIndex creates or opens a Bleve index at path. An empty path keeps the index in memory.
// If you change the index mapping in code, remove the index directory to force a rebuild.
func NewBleveIndex(path string) (*BleveIndex, error) {
	im := bleve.NewIndexMapping()

	docMapping := bleve.NewDocumentMapping()
	textFieldMapping := bleve.NewTextFieldMapping()
	// Standard analyzer (lowercase + tokenize, no stemming): band names should match as written.
	textFieldMapping.Analyzer = standard.Name
	textFieldMapping.Store = true
	docMapping.AddFieldMappingsAt("title", textFieldMapping)
	docMapping.AddFieldMappingsAt("artist", textFieldMapping)
	im.AddDocumentMapping("track", docMapping)
	im.DefaultType = "track"
	im.DefaultMapping = docMapping

	if path == "" {
		index, err := bleve.NewMemOnly(im)
		if err != nil {
			return nil, fmt.Errorf("failed to create in-memory Bleve index: %w", err)
		}
		return &BleveIndex{index: index}, nil
	}

	if _, err := os.Stat(path); err == nil {
		index, openErr := bleve.Open(path)
		if openErr != nil {
			return nil, fmt.Errorf("failed to open Bleve index: %w", openErr)
		}
		return &BleveIndex{index: index}, nil
	}

	index, err := bleve.New(path, im)
	if err != nil {
		return nil, fmt.Errorf("failed to create Bleve index: %w", err)
	}
	return &BleveIndex{index: index}, nil
}

// Index adds or replaces records in one Bleve batch.
func (b *BleveIndex) Index(ctx context.Context, records []*models.TrackRecord) error {
	if len(records) == 0 {
		return nil
	}
	batch := b.index.NewBatch()
	for _, rec := range records {
		if err := batch.Index(docID(rec.ID), trackDoc{Title: rec.Title, Artist: rec.Artist}); err != nil {
			return fmt.Errorf("failed to index track %d: %w", rec.ID, err)
		}
	}
	if err := b.index.Batch(batch); err != nil {
		return fmt.Errorf("Bleve batch failed: %w", err)
	}
	return nil
}

// Search runs a match query (or a per-term fuzzy query) over title and artist.
func (b *BleveIndex) Search(ctx context.Context, query string, limit int, fuzzy bool) ([]*Hit, error) {
	query = strings.TrimSpace(query)
	if query == "" || limit <= 0 {
		return nil, nil
	}
	var q blevequery.Query
	if fuzzy {
		q = buildFuzzyQuery(query, 2)
	} else {
		q = bleve.NewMatchQuery(query)
	}
	return b.run(ctx, q, limit)
}

func (b *BleveIndex) run(ctx context.Context, q blevequery.Query, limit int) ([]*Hit, error) {
	req := bleve.NewSearchRequest(q)
	req.Size = limit
	req.Fields = []string{"title", "artist"}
	results, err := b.index.SearchInContext(ctx, req)
	if err != nil {
		return nil, fmt.Errorf("Bleve search failed: %w", err)
	}
	out := make([]*Hit, 0, len(results.Hits))
	for _, hit := range results.Hits {
		id, err := strconv.ParseInt(hit.ID, 10, 64)
		if err != nil {
			continue
		}
		h := &Hit{ID: id, Score: hit.Score}
		h.Title, _ = hit.Fields["title"].(string)
		h.Artist, _ = hit.Fields["artist"].(string)
		out = append(out, h)
	}
	// Stable order for equal scores.
	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Score != out[j].Score {
			return out[i].Score > out[j].Score
		}
		return out[i].ID < out[j].ID
	})
	return out, nil
}

// tokenize splits query into lowercase terms.
func tokenize(query string) []string {
	return strings.Fields(strings.ToLower(query))
}

// buildFuzzyQuery creates a disjunction of FuzzyQueries, one per term.
func buildFuzzyQuery(queryStr string, fuzziness int) blevequery.Query {
	terms := tokenize(queryStr)
	if len(terms) == 0 {
		return bleve.NewMatchQuery(queryStr)
	}
	queries := make([]blevequery.Query, 0, len(terms))
	for _, term := range terms {
		fq := bleve.NewFuzzyQuery(term)
		// Short terms with a large edit budget match almost anything.
		if len([]rune(term)) <= 3 {
			fq.SetFuzziness(1)
		} else {
			fq.SetFuzziness(fuzziness)
		}
		queries = append(queries, fq)
	}
	return bleve.NewDisjunctionQuery(queries...)
}

// Delete removes a track from the index.
func (b *BleveIndex) Delete(ctx context.Context, id int64) error {
	return b.index.Delete(docID(id))
}

// DocCount returns the number of indexed tracks.
func (b *BleveIndex) DocCount() (uint64, error) {
	return b.index.DocCount()
}

// Close closes the Bleve index.
func (b *BleveIndex) Close() error {
	return b.index.Close()
}

func docID(id int64) string {
	return strconv.FormatInt(id, 10)
}
