package tempo

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"strconv"

	"github.com/tcross/narrator/internal/audio"
	"github.com/tcross/narrator/internal/logger"
)

// ErrEncoderUnavailable 表示运行环境中找不到 MP3 编码器。
var ErrEncoderUnavailable = errors.New("mp3 encoder unavailable")

// Encoder 将 PCM 编码为 MP3 文件。
type Encoder interface {
	Encode(ctx context.Context, pcm *audio.PCM, dst string) error
}

// FFmpegEncoder 通过 ffmpeg 子进程编码，PCM 从 stdin 传入。
type FFmpegEncoder struct {
	bin     string
	bitrate string
}

// NewFFmpegEncoder 创建 ffmpeg 编码器。bin 可以是命令名或绝对路径。
func NewFFmpegEncoder(bin, bitrate string) *FFmpegEncoder {
	if bin == "" {
		bin = "ffmpeg"
	}
	if bitrate == "" {
		bitrate = "128k"
	}
	return &FFmpegEncoder{bin: bin, bitrate: bitrate}
}

// Available 检查 ffmpeg 是否可执行。
func (e *FFmpegEncoder) Available() error {
	if _, err := exec.LookPath(e.bin); err != nil {
		return fmt.Errorf("%w: %s: %v", ErrEncoderUnavailable, e.bin, err)
	}
	return nil
}

// Encode 实现 Encoder 接口。失败时删除不完整的输出。
func (e *FFmpegEncoder) Encode(ctx context.Context, pcm *audio.PCM, dst string) error {
	if err := e.Available(); err != nil {
		return err
	}

	cmd := exec.CommandContext(ctx, e.bin,
		"-hide_banner", "-loglevel", "error", "-y",
		"-f", "s16le",
		"-ar", strconv.Itoa(pcm.SampleRate),
		"-ac", strconv.Itoa(pcm.Channels),
		"-i", "pipe:0",
		"-codec:a", "libmp3lame",
		"-b:a", e.bitrate,
		dst,
	)
	cmd.Stdin = bytes.NewReader(pcm.Data)
	var stderr bytes.Buffer
	cmd.Stderr = &stderr

	if err := cmd.Run(); err != nil {
		os.Remove(dst)
		return fmt.Errorf("[tempo] ffmpeg 执行失败: %w, stderr: %s", err, stderr.String())
	}

	logger.Debugf("[tempo] ffmpeg: 已编码 %v 音频到 %s", pcm.Duration(), dst)
	return nil
}
