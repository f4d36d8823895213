package internal

import (
	"fmt"
	"strings"
)

const (
	// DefaultChunkSize is the number of words sent to a cloud model per request
	DefaultChunkSize = 25000
	// DefaultOllamaChunkSize is smaller because local models have tighter context windows
	DefaultOllamaChunkSize = 4000
	// DefaultChunkingStrategy names the word-count chunker
	DefaultChunkingStrategy = "word"
)

// ChunkingStrategy splits a transcript into pieces that fit one model request
type ChunkingStrategy interface {
	Chunk(text string) []string
}

// WordChunker groups whitespace-delimited words into chunks of at most MaxWords
type WordChunker struct {
	MaxWords int
}

func (c WordChunker) Chunk(text string) []string {
	return ChunkWords(text, c.MaxWords)
}

// ChunkWords splits text on whitespace and rejoins every maxWords words with
// single spaces. Empty input yields no chunks.
func ChunkWords(text string, maxWords int) []string {
	words := strings.Fields(text)
	if len(words) == 0 {
		return nil
	}
	if maxWords <= 0 {
		maxWords = DefaultChunkSize
	}

	chunks := make([]string, 0, (len(words)+maxWords-1)/maxWords)
	for start := 0; start < len(words); start += maxWords {
		end := min(start+maxWords, len(words))
		chunks = append(chunks, strings.Join(words[start:end], " "))
	}
	return chunks
}

// NewChunkingStrategy returns the chunker registered under name
func NewChunkingStrategy(name string, chunkSize int) (ChunkingStrategy, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", DefaultChunkingStrategy:
		return WordChunker{MaxWords: chunkSize}, nil
	default:
		return nil, fmt.Errorf("unknown chunking strategy: %q", name)
	}
}
