package live

import (
	"math"
	"sync"
)

// CalculateRMSEnergy computes the root-mean-square energy of PCM audio.
// Input is assumed to be 16-bit signed little-endian PCM.
// Returns a value between 0.0 and 1.0.
func CalculateRMSEnergy(pcm []byte) float64 {
	samples := len(pcm) / 2
	if samples == 0 {
		return 0
	}

	var sum float64
	for i := 0; i+1 < len(pcm); i += 2 {
		normalized := float64(pcmSample(pcm, i)) / 32768.0
		sum += normalized * normalized
	}
	return math.Sqrt(sum / float64(samples))
}

// PeakLevels splits 16-bit PCM into n equal bins and returns the peak
// amplitude of each, scaled to 0..255.
func PeakLevels(pcm []byte, n int) []uint8 {
	if n <= 0 {
		return nil
	}
	out := make([]uint8, n)
	samples := len(pcm) / 2
	if samples == 0 {
		return out
	}

	for bin := 0; bin < n; bin++ {
		lo := bin * samples / n
		hi := (bin + 1) * samples / n
		var peak float64
		for s := lo; s < hi; s++ {
			// float64 avoids overflow when negating -32768
			abs := math.Abs(float64(pcmSample(pcm, s*2)))
			if abs > peak {
				peak = abs
			}
		}
		out[bin] = uint8(math.Min(255, math.Round(peak/32768.0*255)))
	}
	return out
}

func pcmSample(pcm []byte, i int) int16 {
	return int16(pcm[i]) | int16(pcm[i+1])<<8
}

// LevelBuffer holds the latest fixed-length amplitude distribution. It is
// safe for concurrent use and satisfies SampleSource.
type LevelBuffer struct {
	mu   sync.Mutex
	data []uint8
}

// NewLevelBuffer creates a buffer of size bins, initially silent.
func NewLevelBuffer(size int) *LevelBuffer {
	if size < 0 {
		size = 0
	}
	return &LevelBuffer{data: make([]uint8, size)}
}

// Write replaces the snapshot. Extra values are dropped; missing ones read as 0.
func (b *LevelBuffer) Write(levels []uint8) {
	b.mu.Lock()
	defer b.mu.Unlock()
	n := copy(b.data, levels)
	clear(b.data[n:])
}

// WritePCM replaces the snapshot with the peak levels of a PCM chunk.
func (b *LevelBuffer) WritePCM(pcm []byte) {
	b.Write(PeakLevels(pcm, b.Len()))
}

// Levels appends the current snapshot to dst.
func (b *LevelBuffer) Levels(dst []uint8) []uint8 {
	b.mu.Lock()
	defer b.mu.Unlock()
	return append(dst, b.data...)
}

// Len returns the number of bins.
func (b *LevelBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Clear silences the buffer.
func (b *LevelBuffer) Clear() {
	b.mu.Lock()
	defer b.mu.Unlock()
	clear(b.data)
}
