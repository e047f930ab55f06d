package audio

// 流式识别的推理块大小（采样数），优先取大块降低调用频率
var chunkSizes = []int{9600, 3840}

// ChunkBuffer 按固定块大小切分连续PCM字节流。
// 客户端帧大小不定，缓冲累积到能切出完整块时再产出。
type ChunkBuffer struct {
	buf []byte
}

// Write 追加一帧音频字节
func (b *ChunkBuffer) Write(data []byte) {
	b.buf = append(b.buf, data...)
}

// Next 取出下一个完整推理块，不足时返回nil
func (b *ChunkBuffer) Next() []byte {
	for _, size := range chunkSizes {
		byteLen := size * 2
		if len(b.buf) >= byteLen {
			chunk := make([]byte, byteLen)
			copy(chunk, b.buf[:byteLen])
			b.buf = b.buf[byteLen:]
			return chunk
		}
	}
	return nil
}

// Flush 取出缓冲内剩余的全部字节，流结束时调用
func (b *ChunkBuffer) Flush() []byte {
	if len(b.buf) == 0 {
		return nil
	}
	rest := b.buf
	b.buf = nil
	return rest
}

// Len 当前缓冲字节数
func (b *ChunkBuffer) Len() int {
	return len(b.buf)
}
