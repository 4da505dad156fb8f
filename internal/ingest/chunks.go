package ingest

import (
	"encoding/json"
	"fmt"
	"os"
	"sort"
	"strings"
)

// ProcessedChunk is one entry of the scraping pipeline's output file
// (processed_chunks.json): cleaned text plus the metadata the pipeline
// extracted from the page.
type ProcessedChunk struct {
	Text     string        `json:"text"`
	Metadata ChunkMetadata `json:"metadata"`
}

type ChunkMetadata struct {
	Unit      string `json:"unit,omitempty"`
	UnitName  string `json:"unit_name,omitempty"`
	Category  string `json:"category,omitempty"`
	Title     string `json:"title,omitempty"`
	SourceURL string `json:"source_url"`
	Building  string `json:"building,omitempty"`
	Floor     string `json:"floor,omitempty"`
	Room      string `json:"room,omitempty"`
}

// SourceBatch is all chunks of a single source page, submitted together
// so the server can replace the source atomically.
type SourceBatch struct {
	SourceURL string
	Chunks    []ProcessedChunk
}

// LoadChunks reads and validates a processed_chunks.json file.
func LoadChunks(path string) ([]ProcessedChunk, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("read chunks file: %w", err)
	}

	var chunks []ProcessedChunk
	if err := json.Unmarshal(data, &chunks); err != nil {
		return nil, fmt.Errorf("parse chunks file: %w", err)
	}

	for i, c := range chunks {
		if strings.TrimSpace(c.Text) == "" {
			return nil, fmt.Errorf("chunk %d has empty text", i)
		}
		if strings.TrimSpace(c.Metadata.SourceURL) == "" {
			return nil, fmt.Errorf("chunk %d has no source_url", i)
		}
	}
	return chunks, nil
}

// GroupBySource buckets chunks per source URL. Batches come back sorted
// by URL so runs are deterministic and the cursor can skip submitted
// sources on resume.
func GroupBySource(chunks []ProcessedChunk) []SourceBatch {
	buckets := make(map[string][]ProcessedChunk)
	for _, c := range chunks {
		buckets[c.Metadata.SourceURL] = append(buckets[c.Metadata.SourceURL], c)
	}

	urls := make([]string, 0, len(buckets))
	for url := range buckets {
		urls = append(urls, url)
	}
	sort.Strings(urls)

	batches := make([]SourceBatch, 0, len(urls))
	for _, url := range urls {
		batches = append(batches, SourceBatch{SourceURL: url, Chunks: buckets[url]})
	}
	return batches
}
