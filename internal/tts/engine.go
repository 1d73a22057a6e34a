package tts

import (
	"context"

	"github.com/tcross/narrator/internal/speech"
)

// ChunkKind 标识流式合成返回的数据块类型。
type ChunkKind string

const (
	// ChunkAudio 携带 MP3 音频数据，是唯一需要写入文件的类型。
	ChunkAudio ChunkKind = "audio"
	// ChunkWordBoundary 和 ChunkSentenceBoundary 是元数据，不含音频。
	ChunkWordBoundary     ChunkKind = "WordBoundary"
	ChunkSentenceBoundary ChunkKind = "SentenceBoundary"
	// ChunkError 表示后端在合成过程中失败，Err 说明原因，之后不会再有数据块。
	ChunkError ChunkKind = "error"

	// chunkEnd 标记一个文本片段合成结束，只在包内使用。
	chunkEnd ChunkKind = "end"
)

// Chunk 是流式合成返回的一个数据块。
type Chunk struct {
	Kind ChunkKind
	Data []byte
	// Index 是音频所属的文本片段序号。
	Index int
	Err   error
}

// StreamEngine 是支持音色和语速参数的流式合成后端（主后端）。
type StreamEngine interface {
	Name() string
	// Stream 开始合成，返回的 channel 在合成结束、失败或 ctx 结束后关闭。
	// 失败时最后一个块的 Kind 为 ChunkError。
	// rate 为带符号百分比，如 "+25%"、"-50%"、"+0%"。
	Stream(ctx context.Context, text, voice, rate string) (<-chan Chunk, error)
}

// FileEngine 是只支持正常语速、直接输出整个文件的合成后端（备用后端）。
type FileEngine interface {
	Name() string
	// Save 将 text 合成为 MP3 并写入 path。失败时不保留不完整的文件。
	Save(ctx context.Context, text string, lang speech.Language, path string) error
}
