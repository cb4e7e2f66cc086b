package keyword

import (
	"context"
	"sort"
	"strings"

	"github.com/hyperjump/niteru/internal/models"
)

// Suggest returns catalog tracks that look like q, closest spelling first. It backs the
// suggestions attached to a failed lookup.
func (b *BleveIndex) Suggest(ctx context.Context, q models.TrackQuery, limit int) ([]*Hit, error) {
	text := q.SearchText()
	if strings.TrimSpace(text) == "" || limit <= 0 {
		return nil, nil
	}
	hits, err := b.run(ctx, buildFuzzyQuery(text, 2), limit*4)
	if err != nil {
		return nil, err
	}

	target := normalizeKey(q.Artist, q.Title)
	dist := make(map[int64]int, len(hits))
	for _, h := range hits {
		dist[h.ID] = LevenshteinDistance(target, normalizeKey(h.Artist, h.Title))
	}
	sort.SliceStable(hits, func(i, j int) bool {
		di, dj := dist[hits[i].ID], dist[hits[j].ID]
		if di != dj {
			return di < dj
		}
		return hits[i].Score > hits[j].Score
	})
	if len(hits) > limit {
		hits = hits[:limit]
	}
	return hits, nil
}

func normalizeKey(artist, title string) string {
	return strings.Join(tokenize(artist+" "+title), " ")
}

// LevenshteinDistance is the number of single-rune edits turning a into b.
func LevenshteinDistance(a, b string) int {
	ra, rb := []rune(a), []rune(b)
	if len(ra) == 0 {
		return len(rb)
	}
	if len(rb) == 0 {
		return len(ra)
	}
	prev := make([]int, len(rb)+1)
	curr := make([]int, len(rb)+1)
	for j := range prev {
		prev[j] = j
	}
	for i := 1; i <= len(ra); i++ {
		curr[0] = i
		for j := 1; j <= len(rb); j++ {
			cost := 1
			if ra[i-1] == rb[j-1] {
				cost = 0
			}
			curr[j] = min(prev[j]+1, curr[j-1]+1, prev[j-1]+cost)
		}
		prev, curr = curr, prev
	}
	return prev[len(rb)]
}
