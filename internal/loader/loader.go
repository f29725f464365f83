package loader

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strings"

	"github.com/rs/zerolog/log"
	"gopkg.in/yaml.v3"

	"movie-search/internal/helper"
	"movie-search/internal/models"
)

// IsRecognized reports whether a file name has a movie metadata extension
func IsRecognized(filePath string) bool {
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json", ".yaml", ".yml":
		return true
	default:
		return false
	}
}

// LoadDirectory reads every recognized metadata file directly inside dir, in name order.
// Other files and subdirectories are ignored.
func LoadDirectory(dir string) ([]models.Record, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return nil, fmt.Errorf("%w: reading directory %s: %v", models.ErrIO, dir, err)
	}

	records := make([]models.Record, 0, len(entries))
	for _, entry := range entries {
		if entry.IsDir() || !IsRecognized(entry.Name()) {
			continue
		}
		filePath := filepath.Join(dir, entry.Name())
		meta, err := LoadDocument(filePath)
		if err != nil {
			return nil, err
		}
		records = append(records, NewRecord(filePath, meta))
	}

	log.Debug().Str("dir", dir).Int("records", len(records)).Msg("Loaded movie records")
	return records, nil
}

// LoadDocument parses one metadata file. Fields are passed through without schema checks.
func LoadDocument(filePath string) (map[string]any, error) {
	data, err := os.ReadFile(filePath)
	if err != nil {
		return nil, fmt.Errorf("%w: reading %s: %v", models.ErrIO, filePath, err)
	}

	var meta map[string]any
	switch strings.ToLower(filepath.Ext(filePath)) {
	case ".json":
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		if err := dec.Decode(&meta); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrFileFormat, filePath, err)
		}
		if _, err := dec.Token(); err != io.EOF {
			return nil, fmt.Errorf("%w: %s: trailing data after object", models.ErrFileFormat, filePath)
		}
	case ".yaml", ".yml":
		if err := yaml.Unmarshal(data, &meta); err != nil {
			return nil, fmt.Errorf("%w: %s: %v", models.ErrFileFormat, filePath, err)
		}
	default:
		return nil, fmt.Errorf("%w: unsupported file format: %s", models.ErrFileFormat, filepath.Ext(filePath))
	}
	if meta == nil {
		return nil, fmt.Errorf("%w: %s: expected an object", models.ErrFileFormat, filePath)
	}
	return meta, nil
}

// NewRecord builds a record whose content is the text rendering of its metadata
func NewRecord(source string, meta map[string]any) models.Record {
	return models.Record{
		Source:   source,
		Content:  RenderContent(meta),
		Metadata: meta,
	}
}

// RenderContent renders metadata as "key: value" lines in sorted key order
func RenderContent(meta map[string]any) string {
	keys := make([]string, 0, len(meta))
	for k := range meta {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	var b strings.Builder
	for i, k := range keys {
		if i > 0 {
			b.WriteString("\n")
		}
		b.WriteString(k)
		b.WriteString(": ")
		b.WriteString(helper.FormatValue(meta[k]))
	}
	return b.String()
}
