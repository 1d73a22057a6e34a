// Package mp3test 生成测试用的 MP3 数据。
package mp3test

import "bytes"

// FrameSamples 是 MPEG-1 Layer III 每帧的采样数。
const FrameSamples = 1152

// SampleRate 是 Silent 生成的数据的采样率。
const SampleRate = 44100

// frameHeader: MPEG-1 Layer III，无 CRC，128 kbps，44.1 kHz，单声道。
var frameHeader = []byte{0xFF, 0xFB, 0x90, 0xC4}

// frameLen = 144 * 128000 / 44100，不带填充位。
const frameLen = 417

// Silent 返回由 frames 个静音帧组成的合法 MP3 数据。
// 边信息全为零，每个颗粒的主数据长度为 0，解码结果为全零样本。
func Silent(frames int) []byte {
	var buf bytes.Buffer
	frame := make([]byte, frameLen)
	copy(frame, frameHeader)
	for i := 0; i < frames; i++ {
		buf.Write(frame)
	}
	return buf.Bytes()
}
