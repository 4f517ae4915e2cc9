package services

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func gb(n float64) int64 { return int64(n * bytesPerGiB) }

func TestCalculateResources_TierLookup(t *testing.T) {
	tests := []struct {
		name      string
		totalGB   float64
		vcpu      float64
		memoryMB  int32
		storageGB int32
	}{
		{"tiny batch", 1, 1, 2048, 30},
		{"tier boundary inclusive", 5, 1, 2048, 30},
		{"mid tier", 15, 2, 4096, 60},
		{"third tier", 45, 4, 8192, 120},
		{"fourth tier", 90, 4, 16384, 175},
		{"top tier", 150, 8, 30720, 200},
		{"beyond every tier uses ceiling", 500, 8, 30720, 200},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := CalculateResources(gb(tt.totalGB), gb(1))
			assert.Equal(t, tt.vcpu, got.VCPU)
			assert.Equal(t, tt.memoryMB, got.MemoryMB)
			assert.Equal(t, tt.storageGB, got.StorageGB)
		})
	}
}

func TestCalculateResources_LargestFileRaisesMemory(t *testing.T) {
	// 15GB aggregate lands in the 2 vCPU / 4096MB tier, but an 8GB single
	// file demands at least 16GB of memory to hold it plus buffers.
	got := CalculateResources(gb(15), gb(8))
	assert.Equal(t, float64(2), got.VCPU)
	assert.Equal(t, int32(16384), got.MemoryMB)
	assert.Equal(t, int32(60), got.StorageGB)
}

func TestCalculateResources_LargestFileRaisesStorage(t *testing.T) {
	// 3x a 30GB file plus margin exceeds the 4GB-aggregate tier's 30GB disk.
	got := CalculateResources(gb(4), gb(30))
	assert.Equal(t, int32(3*30+10), got.StorageGB)
}

func TestCalculateResources_Clamps(t *testing.T) {
	got := CalculateResources(gb(190), gb(150))
	assert.Equal(t, maxMemoryMB, got.MemoryMB)
	assert.Equal(t, maxStorageGB, got.StorageGB)
}

func TestCalculateResources_Monotonic(t *testing.T) {
	var prev RawResources
	for totalGB := 1; totalGB <= 250; totalGB += 3 {
		got := CalculateResources(gb(float64(totalGB)), gb(1))
		if totalGB > 1 {
			assert.GreaterOrEqual(t, got.VCPU, prev.VCPU, "total %dGB", totalGB)
			assert.GreaterOrEqual(t, got.MemoryMB, prev.MemoryMB, "total %dGB", totalGB)
			assert.GreaterOrEqual(t, got.StorageGB, prev.StorageGB, "total %dGB", totalGB)
		}
		prev = got
	}
}

func TestSnapToGrid_RoundsUpNeverDown(t *testing.T) {
	tests := []struct {
		name     string
		vcpu     float64
		memoryMB int32
		wantCPU  string
		wantMem  int32
	}{
		{"exact fit passes through", 2, 4096, "2", 4096},
		{"memory rounds up within tier", 1, 2500, "1", 3072},
		{"vcpu rounds up to next tier", 3, 20000, "4", 20480},
		{"fractional tier preserved", 0.25, 1024, "0.25", 1024},
		{"fractional half tier", 0.5, 3000, "0.5", 3072},
		{"eight vcpu coarse steps", 8, 17000, "8", 20480},
		{"oversized request hits grid ceiling", 32, 999999, "16", 122880},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cpu, mem := SnapToGrid(tt.vcpu, tt.memoryMB)
			assert.Equal(t, tt.wantCPU, cpu)
			assert.Equal(t, tt.wantMem, mem)
		})
	}
}

func TestSnapToGrid_MemoryCappedByTierMaximum(t *testing.T) {
	// A request beyond the tier's largest memory option is capped at that
	// option rather than escalating the vCPU tier.
	cpu, mem := SnapToGrid(0.25, 4096)
	assert.Equal(t, "0.25", cpu)
	assert.Equal(t, int32(2048), mem)
}

func TestSnapToGrid_AlwaysOnGrid(t *testing.T) {
	valid := make(map[string]map[int32]bool)
	for _, g := range platformGrid {
		mems := make(map[int32]bool)
		for _, m := range g.memoryMB {
			mems[m] = true
		}
		valid[formatVCPU(g.vcpu)] = mems
	}

	for _, vcpu := range []float64{0.1, 0.25, 0.5, 1, 1.5, 2, 3, 4, 6, 8, 12, 16, 64} {
		for _, mem := range []int32{100, 512, 2500, 4096, 9000, 17000, 40000, 130000} {
			cpu, snapped := SnapToGrid(vcpu, mem)
			mems, ok := valid[cpu]
			require.True(t, ok, "vcpu %v snapped to unknown tier %s", vcpu, cpu)
			assert.True(t, mems[snapped], "snap(%v, %d) = (%s, %d) is off-grid", vcpu, mem, cpu, snapped)
		}
	}
}

func TestSizeJob(t *testing.T) {
	// 15GB across files with an 8GB outlier: the raised 16384MB memory
	// still fits the 2 vCPU tier, so no escalation happens.
	req := SizeJob(gb(15), gb(8))
	assert.Equal(t, "2", req.VCPU)
	assert.Equal(t, int32(16384), req.MemoryMB)
	assert.Equal(t, int32(60), req.StorageGB)
	assert.True(t, req.AutoScaled)
}

func TestFormatVCPU(t *testing.T) {
	assert.Equal(t, "0.25", formatVCPU(0.25))
	assert.Equal(t, "0.5", formatVCPU(0.5))
	assert.Equal(t, "1", formatVCPU(1))
	assert.Equal(t, "16", formatVCPU(16))
}
