package audio

import "encoding/binary"

// DecodePCM16 将16bit小端PCM字节解码为[-1,1)的float32采样
func DecodePCM16(data []byte) []float32 {
	n := len(data) / 2
	samples := make([]float32, n)
	for i := 0; i < n; i++ {
		v := int16(binary.LittleEndian.Uint16(data[i*2:]))
		samples[i] = float32(v) / 32768.0
	}
	return samples
}

// EncodePCM16 将float32采样编码为16bit小端PCM，越界值截断
func EncodePCM16(samples []float32) []byte {
	out := make([]byte, len(samples)*2)
	for i, s := range samples {
		if s > 1.0 {
			s = 1.0
		}
		if s < -1.0 {
			s = -1.0
		}
		binary.LittleEndian.PutUint16(out[i*2:], uint16(int16(s*32767)))
	}
	return out
}

// DurationMs 给定采样数和采样率计算毫秒时长
func DurationMs(sampleCount, sampleRate int) int {
	if sampleRate <= 0 {
		return 0
	}
	return sampleCount * 1000 / sampleRate
}

// ScaleVolume 按0~100的音量缩放采样，50为原始音量
func ScaleVolume(samples []float32, volume int) []float32 {
	if volume == 50 {
		return samples
	}
	if volume < 0 {
		volume = 0
	}
	if volume > 100 {
		volume = 100
	}
	gain := float32(volume) / 50.0
	out := make([]float32, len(samples))
	for i, s := range samples {
		out[i] = s * gain
	}
	return out
}
