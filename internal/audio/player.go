package audio

import (
	"context"
	"fmt"
	"sync"

	"github.com/gen2brain/malgo"

	"github.com/tcross/narrator/internal/logger"
)

// Player 使用 malgo (miniaudio) 在本机扬声器上试听生成的音频。
type Player struct {
	ctx    *malgo.AllocatedContext
	mu     sync.Mutex
	closed bool
}

// NewPlayer 创建播放器。
func NewPlayer() (*Player, error) {
	ctx, err := malgo.InitContext(nil, malgo.ContextConfig{}, nil)
	if err != nil {
		return nil, fmt.Errorf("[audio] 初始化播放上下文失败: %w", err)
	}
	return &Player{ctx: ctx}, nil
}

// PlayFile 解码 MP3 文件并播放，阻塞直到播放完成或 ctx 被取消。
func (p *Player) PlayFile(ctx context.Context, path string) error {
	pcm, err := DecodeMP3File(path)
	if err != nil {
		return err
	}
	return p.Play(ctx, pcm)
}

// Play 播放 PCM 数据，阻塞直到播放完成或 ctx 被取消。
func (p *Player) Play(ctx context.Context, pcm *PCM) error {
	if pcm == nil || len(pcm.Data) == 0 {
		return nil
	}

	p.mu.Lock()
	if p.closed {
		p.mu.Unlock()
		return fmt.Errorf("[audio] 播放器已关闭")
	}
	p.mu.Unlock()

	data := pcm.Data
	pos := 0
	done := make(chan struct{})

	deviceConfig := malgo.DefaultDeviceConfig(malgo.Playback)
	deviceConfig.Playback.Format = malgo.FormatS16
	deviceConfig.Playback.Channels = uint32(pcm.Channels)
	deviceConfig.SampleRate = uint32(pcm.SampleRate)
	deviceConfig.PeriodSizeInFrames = 512
	deviceConfig.Periods = 2

	callbacks := malgo.DeviceCallbacks{
		Data: func(output, _ []byte, frameCount uint32) {
			need := int(frameCount) * pcm.Channels * BytesPerSample
			if pos >= len(data) {
				clear(output[:need])
				select {
				case done <- struct{}{}:
				default:
				}
				return
			}
			n := copy(output[:need], data[pos:])
			if n < need {
				clear(output[n:need])
			}
			pos += n
		},
	}

	device, err := malgo.InitDevice(p.ctx.Context, deviceConfig, callbacks)
	if err != nil {
		return fmt.Errorf("[audio] 初始化播放设备失败: %w", err)
	}
	defer device.Uninit()

	if err := device.Start(); err != nil {
		return fmt.Errorf("[audio] 启动播放设备失败: %w", err)
	}
	defer device.Stop()

	logger.Debugf("[audio] 开始播放 %v (%d Hz)", pcm.Duration(), pcm.SampleRate)

	select {
	case <-ctx.Done():
		logger.Info("[audio] 播放被取消")
		return ctx.Err()
	case <-done:
		logger.Debugf("[audio] 播放完成")
		return nil
	}
}

// Close 释放所有资源。
func (p *Player) Close() {
	p.mu.Lock()
	defer p.mu.Unlock()

	if p.closed {
		return
	}
	p.closed = true

	if p.ctx != nil {
		_ = p.ctx.Uninit()
		p.ctx.Free()
		p.ctx = nil
	}
}
