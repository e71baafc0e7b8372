package knowledge

import (
	"strings"
	"unicode"
)

// 分块策略
const (
	SplitStrategyParagraph = "paragraph"
	SplitStrategyWindow    = "window"
)

// Splitter 文本分块策略，输出顺序即chunk_index
type Splitter interface {
	Split(text string) []string
}

// ParagraphSplitter 按空行切分段落
type ParagraphSplitter struct{}

// Split 按"\n\n"切分，去除首尾空白并丢弃空段落
func (ParagraphSplitter) Split(text string) []string {
	text = strings.ReplaceAll(text, "\r\n", "\n")

	var passages []string
	for _, part := range strings.Split(text, "\n\n") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		passages = append(passages, part)
	}
	return passages
}

// WindowSplitter 先按段落切分，超长段落再按字符窗口切分
type WindowSplitter struct {
	chunkSize    int
	chunkOverlap int
}

// NewWindowSplitter 创建窗口分块器
func NewWindowSplitter(chunkSize, overlap int) *WindowSplitter {
	if chunkSize <= 0 {
		chunkSize = 800
	}
	if overlap < 0 {
		overlap = 0
	}
	if overlap >= chunkSize {
		overlap = chunkSize / 4
	}
	return &WindowSplitter{
		chunkSize:    chunkSize,
		chunkOverlap: overlap,
	}
}

// Split 将文本切分为不超过chunkSize个字符的片段
func (w *WindowSplitter) Split(text string) []string {
	var passages []string
	for _, paragraph := range (ParagraphSplitter{}).Split(text) {
		passages = append(passages, w.splitWindow(normalizeWhitespace(paragraph))...)
	}
	return passages
}

func (w *WindowSplitter) splitWindow(clean string) []string {
	runes := []rune(clean)
	if len(runes) <= w.chunkSize {
		if clean == "" {
			return nil
		}
		return []string{clean}
	}

	step := w.chunkSize - w.chunkOverlap
	if step <= 0 {
		step = w.chunkSize
	}

	var chunks []string
	for start := 0; start < len(runes); start += step {
		end := start + w.chunkSize
		if end > len(runes) {
			end = len(runes)
		}
		chunkText := strings.TrimSpace(string(runes[start:end]))
		if chunkText != "" {
			chunks = append(chunks, chunkText)
		}
		if end == len(runes) {
			break
		}
	}
	return chunks
}

// NewSplitter 根据配置选择分块策略
func NewSplitter(strategy string, chunkSize, overlap int) Splitter {
	switch strings.ToLower(strings.TrimSpace(strategy)) {
	case SplitStrategyWindow:
		return NewWindowSplitter(chunkSize, overlap)
	default:
		return ParagraphSplitter{}
	}
}

func normalizeWhitespace(s string) string {
	var builder strings.Builder
	builder.Grow(len(s))

	var prevSpace bool
	for _, r := range s {
		if unicode.IsSpace(r) {
			if prevSpace {
				continue
			}
			builder.WriteRune(' ')
			prevSpace = true
			continue
		}
		builder.WriteRune(r)
		prevSpace = false
	}

	return strings.TrimSpace(builder.String())
}
