package tempo

import "math"

// 以毫秒计的 WSOLA 参数，对语音效果较好。
const (
	frameMs     = 40
	toleranceMs = 10
)

// Stretch 用 WSOLA（波形相似叠加）改变语速并基本保持音高。
// speed > 1 加快，speed < 1 放慢；输出长度约为输入长度 / speed。
// 所有声道使用同一组帧偏移，保证声道之间对齐。
func Stretch(channels [][]float32, sampleRate int, speed float64) [][]float32 {
	if len(channels) == 0 || speed <= 0 {
		return channels
	}
	n := len(channels[0])
	frameLen := sampleRate * frameMs / 1000
	if frameLen < 4 {
		frameLen = 4
	}
	frameLen &^= 1
	if speed == 1 || n < frameLen*2 {
		return copyChannels(channels)
	}

	hop := frameLen / 2
	tolerance := sampleRate * toleranceMs / 1000
	analysisHop := float64(hop) * speed
	outLen := int(float64(n) / speed)

	window := hann(frameLen)
	mix := downmix(channels)

	out := make([][]float32, len(channels))
	for c := range out {
		out[c] = make([]float32, outLen+frameLen)
	}
	norm := make([]float32, outLen+frameLen)

	prev := 0
	for k := 0; ; k++ {
		synthPos := k * hop
		if synthPos >= outLen {
			break
		}
		target := int(float64(k) * analysisHop)
		pos := target
		if k > 0 {
			// 与上一帧的自然延续最相似的位置，保证叠加处波形连续
			pos = bestOffset(mix, prev+hop, target, tolerance, hop, n-frameLen)
		}
		if pos+frameLen > n {
			// 输入已用尽，用最后一帧补齐输出尾部
			pos = n - frameLen
		}
		for c, ch := range channels {
			dst := out[c][synthPos:]
			src := ch[pos : pos+frameLen]
			for i, w := range window {
				dst[i] += src[i] * w
			}
		}
		for i, w := range window {
			norm[synthPos+i] += w
		}
		prev = pos
	}

	for c := range out {
		for i := range out[c] {
			if norm[i] > 1e-3 {
				out[c][i] /= norm[i]
			}
		}
		out[c] = out[c][:outLen]
	}
	return out
}

// bestOffset 在 [target-tol, target+tol] 内搜索与 mix[natural:natural+length]
// 互相关最大的起点，起点不超过 limit。
func bestOffset(mix []float32, natural, target, tol, length, limit int) int {
	n := len(mix)
	if natural+length > n {
		return clamp(target, 0, limit)
	}
	ref := mix[natural : natural+length]

	best := clamp(target, 0, limit)
	bestScore := math.Inf(-1)
	lo := clamp(target-tol, 0, limit)
	hi := clamp(target+tol, 0, limit)
	for p := lo; p <= hi; p++ {
		cand := mix[p : p+length]
		var score float64
		// 隔点采样，降低搜索开销
		for i := 0; i < length; i += 2 {
			score += float64(ref[i]) * float64(cand[i])
		}
		if score > bestScore {
			bestScore = score
			best = p
		}
	}
	return best
}

func hann(n int) []float32 {
	w := make([]float32, n)
	for i := range w {
		w[i] = float32(0.5 - 0.5*math.Cos(2*math.Pi*float64(i)/float64(n)))
	}
	return w
}

func downmix(channels [][]float32) []float32 {
	if len(channels) == 1 {
		return channels[0]
	}
	n := len(channels[0])
	out := make([]float32, n)
	scale := 1 / float32(len(channels))
	for _, ch := range channels {
		for i := 0; i < n && i < len(ch); i++ {
			out[i] += ch[i] * scale
		}
	}
	return out
}

func copyChannels(channels [][]float32) [][]float32 {
	out := make([][]float32, len(channels))
	for c, ch := range channels {
		out[c] = append([]float32(nil), ch...)
	}
	return out
}

func clamp(v, lo, hi int) int {
	if v < lo {
		return lo
	}
	if v > hi {
		return hi
	}
	return v
}
