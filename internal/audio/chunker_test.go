package audio

import (
	"bytes"
	"testing"
	"time"
)

func TestChunkBytes(t *testing.T) {
	tests := []struct {
		name     string
		config   ChunkingConfig
		expected int
	}{
		{"20ms at 16k", ChunkingConfig{SampleRate: 16000, FrameDuration: 20 * time.Millisecond}, 640},
		{"100ms at 16k", ChunkingConfig{SampleRate: 16000, FrameDuration: 100 * time.Millisecond}, 3200},
		{"capped", ChunkingConfig{SampleRate: 16000, FrameDuration: time.Second, MaxChunkBytes: 8000}, 8000},
		{"odd cap rounds down", ChunkingConfig{SampleRate: 16000, FrameDuration: time.Second, MaxChunkBytes: 7999}, 7998},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.config.ChunkBytes(); got != tt.expected {
				t.Errorf("Expected %d, got %d", tt.expected, got)
			}
		})
	}
}

func TestNewChunkerValidation(t *testing.T) {
	tests := []struct {
		name    string
		config  ChunkingConfig
		wantErr bool
	}{
		{"valid", ChunkingConfig{SampleRate: 16000, FrameDuration: 20 * time.Millisecond}, false},
		{"zero rate", ChunkingConfig{FrameDuration: 20 * time.Millisecond}, true},
		{"zero duration", ChunkingConfig{SampleRate: 16000}, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := NewChunker(tt.config)
			if tt.wantErr && err == nil {
				t.Error("Expected error but got none")
			}
			if !tt.wantErr && err != nil {
				t.Errorf("Unexpected error: %v", err)
			}
		})
	}
}

func TestChunkerRegroupsWrites(t *testing.T) {
	c, err := NewChunker(ChunkingConfig{SampleRate: 16000, FrameDuration: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	var input, output []byte
	var chunks int
	for i := 0; i < 50; i++ {
		// Capture periods rarely line up with the chunk size
		write := make([]byte, 222)
		for j := range write {
			write[j] = byte(i + j)
		}
		input = append(input, write...)

		for _, chunk := range c.Write(write) {
			if len(chunk) != 640 {
				t.Fatalf("Expected 640-byte chunk, got %d", len(chunk))
			}
			output = append(output, chunk...)
			chunks++
		}
	}

	if tail := c.Flush(); tail != nil {
		output = append(output, tail...)
	}

	if !bytes.Equal(input, output) {
		t.Error("chunked output does not match input order")
	}

	stats := c.GetStats()
	if stats.BytesIn != uint64(len(input)) {
		t.Errorf("Expected %d bytes in, got %d", len(input), stats.BytesIn)
	}
	if stats.PendingBytes != 0 {
		t.Errorf("Expected nothing pending after flush, got %d", stats.PendingBytes)
	}
	if stats.ChunksCreated != uint64(chunks+1) {
		t.Errorf("Expected %d chunks, got %d", chunks+1, stats.ChunksCreated)
	}
}

func TestChunkerFlush(t *testing.T) {
	c, err := NewChunker(ChunkingConfig{SampleRate: 16000, FrameDuration: 20 * time.Millisecond})
	if err != nil {
		t.Fatalf("NewChunker failed: %v", err)
	}

	if tail := c.Flush(); tail != nil {
		t.Errorf("Expected nil flush on empty chunker, got %d bytes", len(tail))
	}

	c.Write(make([]byte, 101))
	tail := c.Flush()
	if len(tail) != 100 {
		t.Errorf("Expected whole samples only (100 bytes), got %d", len(tail))
	}
}
