package tts

import (
	"strings"
	"unicode"
)

// maxSegmentRunes 是 Google 翻译 TTS 单次请求允许的最大字符数。
const maxSegmentRunes = 100

// isBreak 报告 r 是否为可以断句的标点（含全角标点）。
func isBreak(r rune) bool {
	switch r {
	case '.', '!', '?', ';', ':', ',', '\n',
		'。', '、', '！', '？', '；', '：', '，', '…':
		return true
	}
	return false
}

// splitText 将文本切分为不超过 max 个字符的片段。
// 优先在标点处断开，其次在空白处，最后硬切。相邻的短句会被合并。
func splitText(text string, max int) []string {
	var pieces []string
	var cur []rune
	for _, r := range strings.TrimSpace(text) {
		cur = append(cur, r)
		if isBreak(r) {
			pieces = append(pieces, string(cur))
			cur = cur[:0]
		}
	}
	if len(cur) > 0 {
		pieces = append(pieces, string(cur))
	}

	var out []string
	var buf []rune
	flush := func() {
		if s := strings.TrimSpace(string(buf)); s != "" && !onlyPunct(s) {
			out = append(out, s)
		}
		buf = buf[:0]
	}
	for _, p := range pieces {
		pr := []rune(p)
		if len(buf)+len(pr) <= max {
			buf = append(buf, pr...)
			continue
		}
		flush()
		for len(pr) > max {
			cut := lastSpace(pr[:max])
			if cut <= 0 {
				cut = max
			}
			buf = append(buf, pr[:cut]...)
			flush()
			pr = pr[cut:]
		}
		buf = append(buf, pr...)
	}
	flush()
	return out
}

func lastSpace(rs []rune) int {
	for i := len(rs) - 1; i > 0; i-- {
		if unicode.IsSpace(rs[i]) {
			return i
		}
	}
	return -1
}

func onlyPunct(s string) bool {
	for _, r := range s {
		if !unicode.IsPunct(r) && !unicode.IsSpace(r) {
			return false
		}
	}
	return true
}
