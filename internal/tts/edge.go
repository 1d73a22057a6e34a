package tts

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"time"

	"github.com/pp-group/edge-tts-go/biz/service/tts/edge"

	"github.com/tcross/narrator/internal/logger"
)

// drainIdle 是提前退出后继续读取上游的最长空闲时间。
const drainIdle = 30 * time.Second

// errStreamClosed 表示上游在所有片段结束前关闭了消息通道。
var errStreamClosed = errors.New("edge-tts 消息通道提前关闭")

// EdgeConfig Edge TTS 配置。
type EdgeConfig struct {
	// Proxy 为空时直连。
	Proxy string
}

// EdgeEngine 使用微软 Edge TTS 实现流式语音合成。
type EdgeEngine struct {
	proxy string
}

// NewEdgeEngine 创建 Edge TTS 引擎。
func NewEdgeEngine(cfg EdgeConfig) *EdgeEngine {
	return &EdgeEngine{proxy: cfg.Proxy}
}

// Name 实现 StreamEngine 接口。
func (e *EdgeEngine) Name() string { return "edge-tts" }

// Stream 实现 StreamEngine 接口。
//
// edge-tts-go 把长文本切成多个片段并发合成，所有片段写入同一个通道，
// 每个片段结束时发送一条 {"end": ""}，通道本身不会被关闭。
// 这里按结束消息计数判断完成，并按片段序号输出音频。
func (e *EdgeEngine) Stream(ctx context.Context, text, voice, rate string) (<-chan Chunk, error) {
	logger.Debugf("[tts] edge-tts: 正在合成 %d 个字符，语音=%s，语速=%s", len([]rune(text)), voice, rate)

	var (
		comm *edge.Communicate
		err  error
	)
	if e.proxy != "" {
		comm, err = edge.NewCommunicate(text, edge.WithVoice(voice), edge.WithRate(rate), edge.WithProxy(e.proxy))
	} else {
		comm, err = edge.NewCommunicate(text, edge.WithVoice(voice), edge.WithRate(rate))
	}
	if err != nil {
		return nil, fmt.Errorf("[tts] edge-tts 创建实例失败: %w", err)
	}

	msgs, err := comm.Stream()
	if err != nil {
		return nil, fmt.Errorf("[tts] edge-tts 开始流式合成失败: %w", err)
	}

	// AudioDataIndex 是 Stream 切分出的片段数
	segments := int(comm.AudioDataIndex)
	out := make(chan Chunk)
	go func() {
		defer close(out)
		remaining := pump(ctx, msgs, segments, out)
		if remaining == 0 {
			comm.CloseOutput()
			return
		}
		// 仍有片段在写入，继续读取避免其阻塞
		go drain(msgs, remaining)
	}()
	return out, nil
}

// pump 读取 msgs 并写入 out，直到收到 segments 条结束消息、出现错误、
// 上游关闭或 ctx 结束，返回尚未结束的片段数。
//
// 音频按片段序号缓存，全部结束后按序号输出；其他类型的块立即转发。
// 出错时先发送一个 ChunkError 块再返回。
func pump(ctx context.Context, msgs <-chan map[string]interface{}, segments int, out chan<- Chunk) int {
	if segments < 1 {
		segments = 1
	}
	remaining := segments
	audio := make(map[int][]Chunk)

	send := func(c Chunk) bool {
		select {
		case out <- c:
			return true
		case <-ctx.Done():
			return false
		}
	}

	for remaining > 0 {
		var (
			msg map[string]interface{}
			ok  bool
		)
		select {
		case msg, ok = <-msgs:
		case <-ctx.Done():
			return remaining
		}
		if !ok {
			send(Chunk{Kind: ChunkError, Err: errStreamClosed})
			return remaining
		}

		chunk, ok := toChunk(msg)
		if !ok {
			continue
		}
		switch chunk.Kind {
		case chunkEnd:
			remaining--
		case ChunkError:
			send(chunk)
			return remaining
		case ChunkAudio:
			if len(chunk.Data) > 0 {
				audio[chunk.Index] = append(audio[chunk.Index], chunk)
			}
		default:
			if !send(chunk) {
				return remaining
			}
		}
	}

	indexes := make([]int, 0, len(audio))
	for idx := range audio {
		indexes = append(indexes, idx)
	}
	sort.Ints(indexes)
	for _, idx := range indexes {
		for _, c := range audio[idx] {
			if !send(c) {
				return 0
			}
		}
	}
	return 0
}

// toChunk 转换 edge-tts-go 的一条消息，无法识别的消息返回 false。
func toChunk(msg map[string]interface{}) (Chunk, bool) {
	if v, ok := msg["error"]; ok {
		return Chunk{Kind: ChunkError, Err: edgeError(v)}, true
	}
	if _, ok := msg["end"]; ok {
		return Chunk{Kind: chunkEnd}, true
	}

	kind, ok := msg["type"].(string)
	if !ok {
		return Chunk{}, false
	}
	c := Chunk{Kind: ChunkKind(kind)}
	switch d := msg["data"].(type) {
	case edge.AudioData:
		c.Data, c.Index = d.Data, int(d.Index)
	case *edge.AudioData:
		if d != nil {
			c.Data, c.Index = d.Data, int(d.Index)
		}
	case []byte:
		c.Data = d
	}
	return c, true
}

func edgeError(v interface{}) error {
	if err, ok := v.(error); ok {
		return fmt.Errorf("[tts] edge-tts: %w", err)
	}
	return fmt.Errorf("[tts] edge-tts: %v", v)
}

// drain 读取剩余消息，直到 remaining 个片段结束、通道关闭或空闲超过 drainIdle。
func drain(msgs <-chan map[string]interface{}, remaining int) {
	idle := time.NewTimer(drainIdle)
	defer idle.Stop()
	for remaining > 0 {
		select {
		case msg, ok := <-msgs:
			if !ok {
				return
			}
			if _, end := msg["end"]; end {
				remaining--
			}
			idle.Reset(drainIdle)
		case <-idle.C:
			return
		}
	}
}
