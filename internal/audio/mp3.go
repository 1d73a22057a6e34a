package audio

import (
	"bytes"
	"fmt"
	"io"
	"os"
	"time"

	"github.com/hajimehoshi/go-mp3"
)

// mp3Channels 是 go-mp3 解码输出的声道数，单声道输入也会被复制成立体声。
const mp3Channels = 2

// DecodeMP3 将 MP3 数据完整解码为 PCM。
func DecodeMP3(r io.Reader) (*PCM, error) {
	decoder, err := mp3.NewDecoder(r)
	if err != nil {
		return nil, fmt.Errorf("[audio] MP3 解码失败: %w", err)
	}

	data, err := io.ReadAll(decoder)
	if err != nil {
		return nil, fmt.Errorf("[audio] 读取 PCM 数据失败: %w", err)
	}

	frameSize := mp3Channels * BytesPerSample
	if len(data)%frameSize != 0 {
		data = data[:len(data)/frameSize*frameSize]
	}

	return &PCM{
		SampleRate: decoder.SampleRate(),
		Channels:   mp3Channels,
		Data:       data,
	}, nil
}

// DecodeMP3File 读取并解码 MP3 文件。
func DecodeMP3File(path string) (*PCM, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("[audio] 读取 %s 失败: %w", path, err)
	}
	return DecodeMP3(bytes.NewReader(data))
}

// MP3Duration 返回 MP3 文件的时长，不解码全部样本。
func MP3Duration(path string) (time.Duration, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("[audio] 打开 %s 失败: %w", path, err)
	}
	defer f.Close()

	decoder, err := mp3.NewDecoder(f)
	if err != nil {
		return 0, fmt.Errorf("[audio] MP3 解码失败: %w", err)
	}

	length := decoder.Length()
	if length < 0 || decoder.SampleRate() <= 0 {
		return 0, fmt.Errorf("[audio] 无法获取 MP3 长度: %s", path)
	}

	frames := length / (mp3Channels * BytesPerSample)
	return time.Duration(frames) * time.Second / time.Duration(decoder.SampleRate()), nil
}
