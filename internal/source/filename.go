package source

import (
	"path/filepath"
	"strings"
)

// UnknownArtist is used for local files whose name carries no artist.
const UnknownArtist = "Unknown Artist"

// ParseFileName derives artist and title from an "Artist - Title.ext" file name.
// Names without the separator become the title with UnknownArtist.
func ParseFileName(path string) (artist, title string) {
	base := filepath.Base(path)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	base = strings.TrimSpace(strings.ReplaceAll(base, "_", " "))
	if a, t, ok := strings.Cut(base, " - "); ok {
		a, t = strings.TrimSpace(a), strings.TrimSpace(t)
		if a != "" && t != "" {
			return a, t
		}
	}
	return UnknownArtist, base
}
