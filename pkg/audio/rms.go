package audio

import "math"

// RMS 计算采样的均方根能量
func RMS(samples []float32) float64 {
	if len(samples) == 0 {
		return 0
	}
	var sum float64
	for _, s := range samples {
		sum += float64(s) * float64(s)
	}
	return math.Sqrt(sum / float64(len(samples)))
}

// NearfieldGate 近场语音门限，过滤远场背景人声
type NearfieldGate struct {
	Enabled   bool
	Threshold float64
}

// Pass 判定一段音频是否为近场语音。句内用更低的阈值，
// 避免句中音量回落被误判为远场而截断句子。
func (g *NearfieldGate) Pass(samples []float32, inSentence bool) bool {
	if !g.Enabled {
		return true
	}
	if len(samples) == 0 {
		return false
	}
	threshold := g.Threshold
	if inSentence {
		threshold *= 0.6
	}
	return RMS(samples) >= threshold
}
