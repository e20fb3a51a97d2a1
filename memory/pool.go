// Package memory implements the allocation tracker and eviction engine:
// a ledger of named logical allocations against a fixed pool, pressure
// classification, and the compression/eviction machinery the adaptation
// engine drives when space runs out.
package memory

import (
	"time"
)

// Kind classifies what an allocation backs.
type Kind int

const (
	KindAudio Kind = iota
	KindTranscription
	KindUI
	KindCache
	KindImage
	KindMetadata
)

func (k Kind) String() string {
	switch k {
	case KindAudio:
		return "audio"
	case KindTranscription:
		return "transcription"
	case KindUI:
		return "ui"
	case KindCache:
		return "cache"
	case KindImage:
		return "image"
	case KindMetadata:
		return "metadata"
	default:
		return "unknown"
	}
}

// Priority orders allocations for eviction. Lower rank is evicted first.
type Priority int

const (
	PriorityLow Priority = iota
	PriorityMedium
	PriorityHigh
	PriorityCritical
)

func (p Priority) String() string {
	switch p {
	case PriorityLow:
		return "low"
	case PriorityMedium:
		return "medium"
	case PriorityHigh:
		return "high"
	case PriorityCritical:
		return "critical"
	default:
		return "unknown"
	}
}

// Allocation is a tracked, named claim on the logical pool. Records are
// owned by the Tracker: created on Allocate, shrunk by compression, and
// removed on Deallocate or eviction.
type Allocation struct {
	ID                 string    `json:"id"`
	Kind               Kind      `json:"kind"`
	SizeBytes          uint64    `json:"size_bytes"`
	Priority           Priority  `json:"priority"`
	CreatedAt          time.Time `json:"created_at"`
	StabilityOptimized bool      `json:"stability_optimized"`
	Compressible       bool      `json:"compressible"`
	Evictable          bool      `json:"evictable"`
	Compressed         bool      `json:"compressed"`
}

// Pool describes the logical memory pool. At all times
// UsedBytes + AvailableBytes + ReservedBytes + StabilityBufferBytes ==
// TotalBytes, and UsedBytes equals the sum of live allocation sizes.
// Reserved and stability-buffer bytes are never allocatable.
type Pool struct {
	TotalBytes           uint64 `json:"total_bytes"`
	UsedBytes            uint64 `json:"used_bytes"`
	AvailableBytes       uint64 `json:"available_bytes"`
	ReservedBytes        uint64 `json:"reserved_bytes"`
	StabilityBufferBytes uint64 `json:"stability_buffer_bytes"`
}

// UsageRatio returns used/total, 0 for an empty pool.
func (p Pool) UsageRatio() float64 {
	if p.TotalBytes == 0 {
		return 0
	}
	return float64(p.UsedBytes) / float64(p.TotalBytes)
}
