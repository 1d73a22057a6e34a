package tempo

import (
	"context"
	"fmt"

	"github.com/tcross/narrator/internal/audio"
	"github.com/tcross/narrator/internal/logger"
)

// Transformer 对 MP3 文件做变速处理：解码、WSOLA 变速、重新编码。
type Transformer struct {
	enc Encoder
}

// NewTransformer 创建变速处理器。
func NewTransformer(enc Encoder) *Transformer {
	return &Transformer{enc: enc}
}

// Apply 读取 src，按 speed 变速后写入 dst。src 不会被修改。
func (t *Transformer) Apply(ctx context.Context, src, dst string, speed float64) error {
	if speed <= 0 {
		return fmt.Errorf("[tempo] 非法语速: %v", speed)
	}
	// 编码器缺失时尽早失败，省去解码和变速
	if a, ok := t.enc.(interface{ Available() error }); ok {
		if err := a.Available(); err != nil {
			return err
		}
	}

	pcm, err := audio.DecodeMP3File(src)
	if err != nil {
		return err
	}

	stretched := Stretch(audio.Deinterleave(pcm.Data, pcm.Channels), pcm.SampleRate, speed)
	out := &audio.PCM{
		SampleRate: pcm.SampleRate,
		Channels:   pcm.Channels,
		Data:       audio.Interleave(stretched),
	}

	logger.Debugf("[tempo] %.2fx: %v -> %v", speed, pcm.Duration(), out.Duration())

	return t.enc.Encode(ctx, out, dst)
}
