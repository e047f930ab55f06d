package audio

import (
	"math"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestDecodeEncodePCM16(t *testing.T) {
	// 0x0000=0, 0x7fff≈1, 0x8000=-1
	raw := []byte{0x00, 0x00, 0xff, 0x7f, 0x00, 0x80}
	samples := DecodePCM16(raw)
	require.Len(t, samples, 3)
	assert.InDelta(t, 0.0, float64(samples[0]), 1e-6)
	assert.InDelta(t, 1.0, float64(samples[1]), 1e-3)
	assert.InDelta(t, -1.0, float64(samples[2]), 1e-6)

	out := EncodePCM16([]float32{0, 0.5, 2.0, -3.0})
	require.Len(t, out, 8)
	// 越界值被截断而非回绕
	assert.Equal(t, []byte{0xff, 0x7f}, out[4:6])
	assert.Equal(t, byte(0x80), out[7])
}

func TestDecodePCM16OddLength(t *testing.T) {
	samples := DecodePCM16([]byte{0x12, 0x34, 0x56})
	assert.Len(t, samples, 1)
}

func TestDurationMs(t *testing.T) {
	assert.Equal(t, 600, DurationMs(9600, 16000))
	assert.Equal(t, 240, DurationMs(3840, 16000))
	assert.Equal(t, 0, DurationMs(100, 0))
}

func TestScaleVolume(t *testing.T) {
	samples := []float32{0.4, -0.4}
	assert.Equal(t, samples, ScaleVolume(samples, 50))

	loud := ScaleVolume(samples, 100)
	assert.InDelta(t, 0.8, float64(loud[0]), 1e-6)

	quiet := ScaleVolume(samples, 25)
	assert.InDelta(t, 0.2, float64(quiet[0]), 1e-6)

	mute := ScaleVolume(samples, 0)
	assert.Zero(t, mute[0])
}

func TestRMS(t *testing.T) {
	assert.Zero(t, RMS(nil))
	assert.InDelta(t, 0.5, RMS([]float32{0.5, -0.5, 0.5, -0.5}), 1e-6)
	assert.InDelta(t, math.Sqrt(0.5), RMS([]float32{1, 0, -1, 0}), 1e-6)
}

func TestNearfieldGate(t *testing.T) {
	g := &NearfieldGate{Enabled: false, Threshold: 0.01}
	assert.True(t, g.Pass(nil, false), "关闭时全部放行")

	g.Enabled = true
	assert.False(t, g.Pass(nil, false), "空输入不放行")

	quiet := []float32{0.005, -0.005}
	loud := []float32{0.5, -0.5}
	assert.False(t, g.Pass(quiet, false))
	assert.True(t, g.Pass(loud, false))

	// 句内阈值降为0.6倍
	edge := []float32{0.008, -0.008}
	assert.False(t, g.Pass(edge, false))
	assert.True(t, g.Pass(edge, true))
}

func TestChunkBufferPrefersLargestChunk(t *testing.T) {
	var b ChunkBuffer
	b.Write(make([]byte, 9600*2+100))

	chunk := b.Next()
	require.NotNil(t, chunk)
	assert.Len(t, chunk, 9600*2)
	assert.Nil(t, b.Next(), "剩余不足最小块")
	assert.Equal(t, 100, b.Len())
}

func TestChunkBufferSmallChunk(t *testing.T) {
	var b ChunkBuffer
	b.Write(make([]byte, 3840*2))
	chunk := b.Next()
	require.NotNil(t, chunk)
	assert.Len(t, chunk, 3840*2)
	assert.Zero(t, b.Len())
}

func TestChunkBufferAccumulatesAcrossWrites(t *testing.T) {
	var b ChunkBuffer
	for i := 0; i < 6; i++ {
		b.Write(make([]byte, 1280))
		if i < 5 {
			assert.Nil(t, b.Next())
		}
	}
	assert.NotNil(t, b.Next())
}

func TestChunkBufferFlush(t *testing.T) {
	var b ChunkBuffer
	b.Write([]byte{1, 2, 3, 4})
	rest := b.Flush()
	assert.Equal(t, []byte{1, 2, 3, 4}, rest)
	assert.Nil(t, b.Flush())
}

func TestWrapAndExtractWAV(t *testing.T) {
	pcm := EncodePCM16([]float32{0.1, -0.1, 0.2, -0.2})
	data, err := WrapPCM(pcm, 16000, 1)
	require.NoError(t, err)
	assert.True(t, IsWAV(data))

	got, rate, err := ExtractPCM(data)
	require.NoError(t, err)
	assert.Equal(t, 16000, rate)
	assert.Equal(t, pcm, got)
}

func TestIsWAV(t *testing.T) {
	assert.False(t, IsWAV([]byte("RIFF")))
	assert.False(t, IsWAV(make([]byte, 64)))
}
