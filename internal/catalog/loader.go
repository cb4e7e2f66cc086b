package catalog

import (
	"encoding/csv"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/xuri/excelize/v2"
)

// Load reads a track list, choosing the format by extension: .json (builder output),
// .csv and .xlsx (header row naming title and artist columns), .txt ("Artist - Title" per line).
func Load(path string) ([]Entry, error) {
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".json":
		return loadJSON(path)
	case ".csv":
		return loadCSV(path)
	case ".xlsx":
		return loadExcel(path)
	case ".txt":
		return loadText(path)
	default:
		return nil, fmt.Errorf("unsupported track list format: %q", ext)
	}
}

func loadJSON(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track list: %w", err)
	}
	var entries []Entry
	if err := json.Unmarshal(data, &entries); err != nil {
		return nil, fmt.Errorf("parse track list: %w", err)
	}
	return entries, nil
}

func loadCSV(path string) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("read track list: %w", err)
	}
	defer f.Close()

	r := csv.NewReader(f)
	r.FieldsPerRecord = -1
	r.TrimLeadingSpace = true
	var rows [][]string
	for {
		row, err := r.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("parse CSV: %w", err)
		}
		rows = append(rows, row)
	}
	return fromRows(rows)
}

func loadExcel(path string) ([]Entry, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open Excel: %w", err)
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, fmt.Errorf("open Excel: no sheets")
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, fmt.Errorf("get rows for sheet %q: %w", sheets[0], err)
	}
	return fromRows(rows)
}

func loadText(path string) ([]Entry, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read track list: %w", err)
	}
	var entries []Entry
	for i, line := range strings.Split(string(data), "\n") {
		line = strings.TrimSpace(line)
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		artist, title, ok := strings.Cut(line, " - ")
		if !ok {
			return nil, fmt.Errorf("line %d: expected \"Artist - Title\"", i+1)
		}
		entries = append(entries, Entry{Artist: strings.TrimSpace(artist), Title: strings.TrimSpace(title)})
	}
	return entries, nil
}

// fromRows maps tabular rows to entries using the header row.
func fromRows(rows [][]string) ([]Entry, error) {
	if len(rows) == 0 {
		return nil, nil
	}
	cols := map[string]int{}
	for i, name := range rows[0] {
		cols[strings.ToLower(strings.TrimSpace(name))] = i
	}
	titleCol, okTitle := cols["title"]
	artistCol, okArtist := cols["artist"]
	if !okTitle || !okArtist {
		return nil, fmt.Errorf("header row must name title and artist columns")
	}
	genreCol, okGenre := cols["genre"]
	urlCol, okURL := cols["url"]

	cell := func(row []string, i int, ok bool) string {
		if !ok || i >= len(row) {
			return ""
		}
		return strings.TrimSpace(row[i])
	}
	entries := make([]Entry, 0, len(rows)-1)
	for _, row := range rows[1:] {
		e := Entry{
			Title:  cell(row, titleCol, true),
			Artist: cell(row, artistCol, true),
			Genre:  cell(row, genreCol, okGenre),
			URL:    cell(row, urlCol, okURL),
		}
		if e.Title == "" && e.Artist == "" {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}
