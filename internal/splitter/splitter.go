package splitter

import (
	"fmt"
	"strings"

	"github.com/tmc/langchaingo/textsplitter"

	"movie-search/internal/models"
)

const (
	DefaultSplitLength  = 512 // words
	DefaultSplitOverlap = 32  // words
)

// WordSplitter cuts text into windows of Length words that share Overlap words with the
// previous window.
type WordSplitter struct {
	Length  int
	Overlap int
}

var _ textsplitter.TextSplitter = WordSplitter{}

// New returns a word splitter, rejecting windows that cannot advance
func New(length, overlap int) (WordSplitter, error) {
	if length < 1 {
		return WordSplitter{}, fmt.Errorf("%w: split length must be positive, got %d", models.ErrConfiguration, length)
	}
	if overlap < 0 || overlap >= length {
		return WordSplitter{}, fmt.Errorf("%w: split overlap must be in [0, %d), got %d", models.ErrConfiguration, length, overlap)
	}
	return WordSplitter{Length: length, Overlap: overlap}, nil
}

// SplitText splits text into word windows. Concatenating the returned chunks with their
// overlapping words removed yields the input.
func (s WordSplitter) SplitText(text string) ([]string, error) {
	windows, err := s.windows(text)
	if err != nil {
		return nil, err
	}
	chunks := make([]string, 0, len(windows))
	for _, w := range windows {
		chunks = append(chunks, w.text)
	}
	return chunks, nil
}

type window struct {
	text  string
	start int
}

func (s WordSplitter) windows(text string) ([]window, error) {
	if s.Length < 1 || s.Overlap < 0 || s.Overlap >= s.Length {
		return nil, fmt.Errorf("%w: invalid split length %d with overlap %d", models.ErrConfiguration, s.Length, s.Overlap)
	}
	if text == "" {
		return nil, nil
	}

	// every unit but the last keeps its trailing space
	units := strings.SplitAfter(text, " ")
	offsets := make([]int, len(units)+1)
	for i, u := range units {
		offsets[i+1] = offsets[i] + len(u)
	}

	var result []window
	step := s.Length - s.Overlap
	for start := 0; start < len(units); start += step {
		end := min(start+s.Length, len(units))
		if chunk := text[offsets[start]:offsets[end]]; chunk != "" {
			result = append(result, window{text: chunk, start: offsets[start]})
		}
		if end == len(units) {
			break
		}
	}
	return result, nil
}

// Split splits every record and annotates each chunk with its source, position within the
// source and character offset.
func (s WordSplitter) Split(records []models.Record) ([]models.Chunk, error) {
	var chunks []models.Chunk
	for _, rec := range records {
		docs, err := textsplitter.CreateDocuments(s, []string{rec.Content}, []map[string]any{rec.Metadata})
		if err != nil {
			return nil, fmt.Errorf("failed to split %s: %w", rec.Source, err)
		}
		windows, err := s.windows(rec.Content)
		if err != nil {
			return nil, err
		}
		if len(docs) != len(windows) {
			return nil, fmt.Errorf("failed to split %s: got %d documents for %d windows", rec.Source, len(docs), len(windows))
		}

		for i, doc := range docs {
			meta := make(map[string]any, len(doc.Metadata)+3)
			for k, v := range doc.Metadata {
				meta[k] = v
			}
			meta[models.MetaSourceID] = rec.Source
			meta[models.MetaSplitID] = i
			meta[models.MetaSplitIdxStart] = windows[i].start

			chunks = append(chunks, models.Chunk{
				Content:       doc.PageContent,
				SourceID:      rec.Source,
				SplitID:       i,
				SplitIdxStart: windows[i].start,
				Metadata:      meta,
			})
		}
	}
	return chunks, nil
}
