package audio

import (
	"math"
	"time"
)

// BytesPerSample 是 signed 16-bit PCM 每个采样点的字节数。
const BytesPerSample = 2

// PCM 是交错存储的 signed 16-bit LE 音频。
type PCM struct {
	SampleRate int
	Channels   int
	Data       []byte
}

// Frames 返回帧数（每帧包含所有声道的一个采样点）。
func (p *PCM) Frames() int {
	if p.Channels <= 0 {
		return 0
	}
	return len(p.Data) / (p.Channels * BytesPerSample)
}

// Duration 返回音频时长。
func (p *PCM) Duration() time.Duration {
	if p.SampleRate <= 0 {
		return 0
	}
	return time.Duration(p.Frames()) * time.Second / time.Duration(p.SampleRate)
}

// Deinterleave 将交错 PCM 拆分为每个声道一条 [-1.0, 1.0] 范围的 float32 序列。
// 尾部不完整的帧被丢弃。
func Deinterleave(data []byte, channels int) [][]float32 {
	if channels <= 0 {
		return nil
	}
	frameSize := channels * BytesPerSample
	n := len(data) / frameSize
	out := make([][]float32, channels)
	for c := range out {
		out[c] = make([]float32, n)
	}
	for i := 0; i < n; i++ {
		base := i * frameSize
		for c := 0; c < channels; c++ {
			off := base + c*BytesPerSample
			s := int16(data[off]) | int16(data[off+1])<<8
			out[c][i] = float32(s) / math.MaxInt16
		}
	}
	return out
}

// Interleave 是 Deinterleave 的逆操作，超出 [-1.0, 1.0] 的样本被钳位。
// 各声道长度不一致时以最短的为准。
func Interleave(channels [][]float32) []byte {
	if len(channels) == 0 {
		return nil
	}
	n := len(channels[0])
	for _, ch := range channels[1:] {
		if len(ch) < n {
			n = len(ch)
		}
	}
	out := make([]byte, n*len(channels)*BytesPerSample)
	pos := 0
	for i := 0; i < n; i++ {
		for _, ch := range channels {
			s := ch[i]
			if s > 1.0 {
				s = 1.0
			} else if s < -1.0 {
				s = -1.0
			}
			v := int16(s * math.MaxInt16)
			out[pos] = byte(v)
			out[pos+1] = byte(v >> 8)
			pos += BytesPerSample
		}
	}
	return out
}
