package speech

import "sort"

type voiceKey struct {
	lang   Language
	gender Gender
}

// Voice 是音色目录中的一条记录。
type Voice struct {
	Language Language `json:"language"`
	Gender   Gender   `json:"gender"`
	ID       string   `json:"id"`
}

// defaultVoices 是内置的 Edge TTS 音色。
var defaultVoices = map[voiceKey]string{
	{English, Female}:  "en-US-JennyNeural",
	{English, Male}:    "en-US-GuyNeural",
	{Japanese, Female}: "ja-JP-NanamiNeural",
	{Japanese, Male}:   "ja-JP-KeitaNeural",
}

// VoiceCatalog 将 (语言, 性别) 映射到后端音色 ID。
// 创建后只读，可以在多个请求之间共享。
type VoiceCatalog struct {
	voices map[voiceKey]string
}

// NewVoiceCatalog 创建音色目录。overrides 中非空的条目覆盖内置音色。
func NewVoiceCatalog(overrides []Voice) *VoiceCatalog {
	voices := make(map[voiceKey]string, len(defaultVoices)+len(overrides))
	for k, v := range defaultVoices {
		voices[k] = v
	}
	for _, v := range overrides {
		if v.ID == "" {
			continue
		}
		voices[voiceKey{v.Language, v.Gender}] = v.ID
	}
	return &VoiceCatalog{voices: voices}
}

// Resolve 返回 (lang, gender) 对应的音色；未登记的组合回退到英语女声。
func (c *VoiceCatalog) Resolve(lang Language, gender Gender) string {
	if v, ok := c.voices[voiceKey{lang, gender}]; ok {
		return v
	}
	return c.voices[voiceKey{English, Female}]
}

// Voices 返回全部音色，按语言、性别排序。
func (c *VoiceCatalog) Voices() []Voice {
	out := make([]Voice, 0, len(c.voices))
	for k, v := range c.voices {
		out = append(out, Voice{Language: k.lang, Gender: k.gender, ID: v})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Language != out[j].Language {
			return out[i].Language < out[j].Language
		}
		return out[i].Gender < out[j].Gender
	})
	return out
}
