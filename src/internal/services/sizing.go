package services

import (
	"strconv"

	"github.com/untruncd/untruncd/src/internal/domain"
)

// Resource scaling for remote repair jobs. The repair tool holds the largest
// input plus working buffers in memory and needs scratch space for input,
// reference and output concurrently:
//   - memory: at least 2x the largest single file
//   - storage: at least 3x the largest single file, plus a fixed margin
//
// Both lookups walk explicitly ordered tables and round up, never down.

type resourceTier struct {
	maxTotalGB float64
	vcpu       float64
	memoryMB   int32
	storageGB  int32
}

// Ordered smallest to largest threshold. The last tier doubles as the
// ceiling for aggregates beyond 200GB.
var resourceTiers = []resourceTier{
	{5, 1, 2048, 30},
	{20, 2, 4096, 60},
	{50, 4, 8192, 120},
	{100, 4, 16384, 175},
	{200, 8, 30720, 200},
}

const (
	maxMemoryMB      int32 = 122880 // platform max for the 16 vCPU tier
	maxStorageGB     int32 = 200    // platform max ephemeral storage
	storageMarginGB  int32 = 10
	bytesPerGiB            = 1 << 30
)

type gridTier struct {
	vcpu     float64
	memoryMB []int32
}

// Valid discrete vCPU/memory combinations on the target platform, ordered
// by vCPU. Memory lists are ordered ascending.
var platformGrid = []gridTier{
	{0.25, []int32{512, 1024, 2048}},
	{0.5, []int32{1024, 2048, 3072, 4096}},
	{1, []int32{2048, 3072, 4096, 5120, 6144, 7168, 8192}},
	{2, memoryRange(4096, 16384, 1024)},
	{4, memoryRange(8192, 30720, 1024)},
	{8, memoryRange(16384, 61440, 4096)},
	{16, memoryRange(32768, 122880, 8192)},
}

func memoryRange(lo, hi, step int32) []int32 {
	var out []int32
	for m := lo; m <= hi; m += step {
		out = append(out, m)
	}
	return out
}

// RawResources is a sized request before grid snapping.
type RawResources struct {
	VCPU      float64
	MemoryMB  int32
	StorageGB int32
}

// CalculateResources maps an aggregate workload size to a compute request.
// Monotonic in both inputs; clamped to the platform's absolute maxima.
func CalculateResources(totalBytes, largestFileBytes int64) RawResources {
	totalGB := float64(totalBytes) / bytesPerGiB
	largestGB := float64(largestFileBytes) / bytesPerGiB

	// Ceiling defaults, used when the aggregate exceeds every tier.
	last := resourceTiers[len(resourceTiers)-1]
	vcpu, memory, storage := last.vcpu, last.memoryMB, last.storageGB
	for _, tier := range resourceTiers {
		if totalGB <= tier.maxTotalGB {
			vcpu, memory, storage = tier.vcpu, tier.memoryMB, tier.storageGB
			break
		}
	}

	if min := int32(largestGB * 2 * 1024); min > memory {
		memory = min
	}
	if min := int32(largestGB*3) + storageMarginGB; min > storage {
		storage = min
	}

	if memory > maxMemoryMB {
		memory = maxMemoryMB
	}
	if storage > maxStorageGB {
		storage = maxStorageGB
	}

	return RawResources{VCPU: vcpu, MemoryMB: memory, StorageGB: storage}
}

// SnapToGrid rounds a request up onto the platform grid: the smallest vCPU
// tier >= the request (or the largest tier if none), then the smallest
// allowed memory for that tier >= the request (or that tier's maximum).
func SnapToGrid(vcpu float64, memoryMB int32) (string, int32) {
	tier := platformGrid[len(platformGrid)-1]
	for _, g := range platformGrid {
		if g.vcpu >= vcpu {
			tier = g
			break
		}
	}

	memory := tier.memoryMB[len(tier.memoryMB)-1]
	for _, m := range tier.memoryMB {
		if m >= memoryMB {
			memory = m
			break
		}
	}

	return formatVCPU(tier.vcpu), memory
}

// SizeJob produces the final grid-snapped resource request for a batch.
func SizeJob(totalBytes, largestFileBytes int64) domain.ResourceRequest {
	raw := CalculateResources(totalBytes, largestFileBytes)
	vcpu, memory := SnapToGrid(raw.VCPU, raw.MemoryMB)
	return domain.ResourceRequest{
		VCPU:       vcpu,
		MemoryMB:   memory,
		StorageGB:  raw.StorageGB,
		AutoScaled: true,
	}
}

func formatVCPU(v float64) string {
	if v < 1 {
		return strconv.FormatFloat(v, 'g', -1, 64)
	}
	return strconv.Itoa(int(v))
}
