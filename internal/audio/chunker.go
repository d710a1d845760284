package audio

import (
	"fmt"
	"sync"
	"time"
)

// ChunkingConfig contains configuration for the chunking process
type ChunkingConfig struct {
	SampleRate    int           // stream sample rate of the PCM being chunked
	FrameDuration time.Duration // target duration of each emitted chunk
	MaxChunkBytes int           // hard cap per chunk, 0 = no cap
}

// ChunkBytes returns the size of one FrameDuration chunk of 16-bit mono PCM
func (c ChunkingConfig) ChunkBytes() int {
	n := int(int64(c.SampleRate) * int64(c.FrameDuration) / int64(time.Second) * 2)
	if c.MaxChunkBytes > 0 && n > c.MaxChunkBytes {
		n = c.MaxChunkBytes
	}
	if n < 2 {
		n = 2
	}
	return n - n%2
}

// Chunker regroups arbitrarily sized PCM writes into fixed-size chunks so the
// sender sees a steady cadence regardless of the capture period.
type Chunker struct {
	config     ChunkingConfig
	chunkBytes int
	pending    []byte

	// Statistics
	chunksCreated uint64
	bytesIn       uint64

	mu sync.Mutex
}

// ChunkerStats represents chunker statistics
type ChunkerStats struct {
	ChunksCreated uint64 `json:"chunks_created"`
	BytesIn       uint64 `json:"bytes_in"`
	PendingBytes  int    `json:"pending_bytes"`
	ChunkBytes    int    `json:"chunk_bytes"`
}

// NewChunker creates a new audio chunker
func NewChunker(config ChunkingConfig) (*Chunker, error) {
	if config.SampleRate <= 0 {
		return nil, fmt.Errorf("sample rate must be positive, got %d", config.SampleRate)
	}
	if config.FrameDuration <= 0 {
		return nil, fmt.Errorf("frame duration must be positive, got %v", config.FrameDuration)
	}

	chunkBytes := config.ChunkBytes()
	return &Chunker{
		config:     config,
		chunkBytes: chunkBytes,
		pending:    make([]byte, 0, chunkBytes*2),
	}, nil
}

// Write appends pcm and returns every complete chunk now available. Returned
// chunks are owned by the caller.
func (c *Chunker) Write(pcm []byte) [][]byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	c.bytesIn += uint64(len(pcm))
	c.pending = append(c.pending, pcm...)

	var chunks [][]byte
	for len(c.pending) >= c.chunkBytes {
		chunk := make([]byte, c.chunkBytes)
		copy(chunk, c.pending)
		chunks = append(chunks, chunk)
		c.pending = c.pending[c.chunkBytes:]
	}

	// Compact so the backing array does not grow without bound
	if len(c.pending) == 0 {
		c.pending = c.pending[:0:cap(c.pending)]
	} else if cap(c.pending)-len(c.pending) < c.chunkBytes {
		c.pending = append(make([]byte, 0, c.chunkBytes*2), c.pending...)
	}

	c.chunksCreated += uint64(len(chunks))
	return chunks
}

// Flush returns the partial chunk left over, or nil. A trailing odd byte is
// dropped so the result always holds whole samples.
func (c *Chunker) Flush() []byte {
	c.mu.Lock()
	defer c.mu.Unlock()

	n := len(c.pending) - len(c.pending)%2
	if n == 0 {
		c.pending = c.pending[:0]
		return nil
	}

	chunk := make([]byte, n)
	copy(chunk, c.pending)
	c.pending = c.pending[:0]
	c.chunksCreated++
	return chunk
}

// GetStats returns current chunker statistics
func (c *Chunker) GetStats() ChunkerStats {
	c.mu.Lock()
	defer c.mu.Unlock()

	return ChunkerStats{
		ChunksCreated: c.chunksCreated,
		BytesIn:       c.bytesIn,
		PendingBytes:  len(c.pending),
		ChunkBytes:    c.chunkBytes,
	}
}
